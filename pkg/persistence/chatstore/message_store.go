package chatstore

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/go-go-golems/livechat/pkg/chat"
)

const defaultPageSize = 50

// MessageStore is the local cache of conversations and their messages.
//
// ListMessages returns a window in ascending (created_at, id) order: the most
// recent page when cursor is nil, otherwise the page adjacent to the cursor on
// its side. hasMore reports whether further messages exist beyond the page.
type MessageStore interface {
	UpsertMessages(ctx context.Context, msgs ...chat.Message) error
	ListMessages(ctx context.Context, convID string, cursor *chat.Cursor, limit int) (msgs []chat.Message, hasMore bool, err error)
	UpsertConversation(ctx context.Context, conv chat.Conversation) error
	GetConversation(ctx context.Context, convID string) (chat.Conversation, bool, error)
	ListConversations(ctx context.Context, limit int) ([]chat.Conversation, error)
	Close() error
}

func validateForStore(prefix string, m chat.Message) error {
	if err := m.Validate(); err != nil {
		return errors.Wrap(err, prefix)
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	return limit
}

// SQLiteDSNForFile returns a DSN with WAL and a busy timeout for path.
func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite message store: empty path")
	}
	// WAL for concurrent readers + writer. busy_timeout to avoid transient SQLITE_BUSY.
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}
