// Package history loads the message backlog of a conversation.
package history

import (
	"context"

	"github.com/go-go-golems/livechat/pkg/chat"
)

// Page is one window of history in ascending (created_at, id) order.
type Page struct {
	Messages []chat.Message
	// HasMore reports whether messages exist beyond this page in the
	// direction it was read.
	HasMore bool
}

// Loader reads the most recent window of a conversation.
// It fails with chat.ErrNetwork, chat.ErrNotFound or chat.ErrAuth and never retries.
type Loader interface {
	Load(ctx context.Context, conversationID string) (Page, error)
}

// Pager is implemented by loaders whose backing store paginates.
type Pager interface {
	LoadMore(ctx context.Context, conversationID string, cursor chat.Cursor) (Page, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, conversationID string) (Page, error)

func (f LoaderFunc) Load(ctx context.Context, conversationID string) (Page, error) {
	return f(ctx, conversationID)
}
