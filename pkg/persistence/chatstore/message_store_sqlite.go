package chatstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/livechat/pkg/chat"
)

// SQLiteStore persists conversations and messages in a SQLite database.
// Timestamps are stored as unix nanoseconds so ordering matches chat.Less.
type SQLiteStore struct {
	db *sql.DB
}

var _ MessageStore = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite message store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite message store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
		  id TEXT PRIMARY KEY,
		  participant_a_id TEXT NOT NULL DEFAULT '',
		  participant_b_id TEXT NOT NULL DEFAULT '',
		  vehicle_id TEXT NOT NULL DEFAULT '',
		  updated_at_ns INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS conversations_by_updated
		  ON conversations(updated_at_ns DESC, id ASC);`,
		`CREATE TABLE IF NOT EXISTS messages (
		  id TEXT PRIMARY KEY,
		  conversation_id TEXT NOT NULL,
		  sender_id TEXT NOT NULL,
		  recipient_id TEXT NOT NULL DEFAULT '',
		  content TEXT NOT NULL,
		  created_at_ns INTEGER NOT NULL,
		  is_read INTEGER NOT NULL DEFAULT 0,
		  client_id TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS messages_by_conversation
		  ON messages(conversation_id, created_at_ns, id);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite message store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) UpsertMessages(ctx context.Context, msgs ...chat.Message) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite message store: db is nil")
	}
	if len(msgs) == 0 {
		return nil
	}
	for _, m := range msgs {
		if err := validateForStore("sqlite message store", m); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite message store: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range msgs {
		isRead := 0
		if m.IsRead {
			isRead = 1
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (
				id, conversation_id, sender_id, recipient_id, content, created_at_ns, is_read, client_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET is_read = excluded.is_read
		`, m.ID, m.ConversationID, m.SenderID, m.RecipientID, m.Content, m.CreatedAt.UnixNano(), isRead, m.ClientID); err != nil {
			return errors.Wrap(err, "sqlite message store: upsert message")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, participant_a_id, participant_b_id, updated_at_ns)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				participant_a_id = CASE WHEN conversations.participant_a_id = '' THEN excluded.participant_a_id ELSE conversations.participant_a_id END,
				participant_b_id = CASE WHEN conversations.participant_b_id = '' THEN excluded.participant_b_id ELSE conversations.participant_b_id END,
				updated_at_ns = MAX(conversations.updated_at_ns, excluded.updated_at_ns)
		`, m.ConversationID, m.SenderID, m.RecipientID, m.CreatedAt.UnixNano()); err != nil {
			return errors.Wrap(err, "sqlite message store: bump conversation")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "sqlite message store: commit")
	}
	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, convID string, cursor *chat.Cursor, limit int) ([]chat.Message, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, errors.New("sqlite message store: db is nil")
	}
	convID = strings.TrimSpace(convID)
	if convID == "" {
		return nil, false, errors.New("sqlite message store: convID is empty")
	}
	limit = normalizeLimit(limit)

	query := `
		SELECT id, conversation_id, sender_id, recipient_id, content, created_at_ns, is_read, client_id
		FROM messages
		WHERE conversation_id = ?
	`
	args := []any{convID}
	ascending := false
	if cursor != nil {
		ns := cursor.CreatedAt.UnixNano()
		if cursor.Direction == chat.Newer {
			query += ` AND (created_at_ns > ? OR (created_at_ns = ? AND id > ?))`
			ascending = true
		} else {
			query += ` AND (created_at_ns < ? OR (created_at_ns = ? AND id < ?))`
		}
		args = append(args, ns, ns, cursor.ID)
	}
	if ascending {
		query += ` ORDER BY created_at_ns ASC, id ASC LIMIT ?`
	} else {
		query += ` ORDER BY created_at_ns DESC, id DESC LIMIT ?`
	}
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, errors.Wrap(err, "sqlite message store: list messages")
	}
	defer func() { _ = rows.Close() }()

	msgs := make([]chat.Message, 0, limit+1)
	for rows.Next() {
		var (
			m         chat.Message
			createdNs int64
			isRead    int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.RecipientID, &m.Content, &createdNs, &isRead, &m.ClientID); err != nil {
			return nil, false, errors.Wrap(err, "sqlite message store: scan message")
		}
		m.CreatedAt = time.Unix(0, createdNs).UTC()
		m.IsRead = isRead == 1
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, false, errors.Wrap(err, "sqlite message store: iterate messages")
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	if !ascending {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	return msgs, hasMore, nil
}

func (s *SQLiteStore) UpsertConversation(ctx context.Context, conv chat.Conversation) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite message store: db is nil")
	}
	if strings.TrimSpace(conv.ID) == "" {
		return errors.New("sqlite message store: conversation id is empty")
	}
	var updatedNs int64
	if !conv.UpdatedAt.IsZero() {
		updatedNs = conv.UpdatedAt.UnixNano()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, participant_a_id, participant_b_id, vehicle_id, updated_at_ns)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			participant_a_id = CASE
				WHEN excluded.participant_a_id <> '' THEN excluded.participant_a_id
				ELSE conversations.participant_a_id
			END,
			participant_b_id = CASE
				WHEN excluded.participant_b_id <> '' THEN excluded.participant_b_id
				ELSE conversations.participant_b_id
			END,
			vehicle_id = CASE
				WHEN excluded.vehicle_id <> '' THEN excluded.vehicle_id
				ELSE conversations.vehicle_id
			END,
			updated_at_ns = MAX(conversations.updated_at_ns, excluded.updated_at_ns)
	`, conv.ID, conv.ParticipantAID, conv.ParticipantBID, conv.VehicleID, updatedNs)
	if err != nil {
		return errors.Wrap(err, "sqlite message store: upsert conversation")
	}
	return nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, convID string) (chat.Conversation, bool, error) {
	if s == nil || s.db == nil {
		return chat.Conversation{}, false, errors.New("sqlite message store: db is nil")
	}
	convID = strings.TrimSpace(convID)
	if convID == "" {
		return chat.Conversation{}, false, errors.New("sqlite message store: convID is empty")
	}
	var (
		c         chat.Conversation
		updatedNs int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, participant_a_id, participant_b_id, vehicle_id, updated_at_ns
		FROM conversations
		WHERE id = ?
	`, convID).Scan(&c.ID, &c.ParticipantAID, &c.ParticipantBID, &c.VehicleID, &updatedNs)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, false, nil
	}
	if err != nil {
		return chat.Conversation{}, false, errors.Wrap(err, "sqlite message store: get conversation")
	}
	c.UpdatedAt = nsToTime(updatedNs)
	return c, true, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, limit int) ([]chat.Conversation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite message store: db is nil")
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, participant_a_id, participant_b_id, vehicle_id, updated_at_ns
		FROM conversations
		ORDER BY updated_at_ns DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite message store: list conversations")
	}
	defer func() { _ = rows.Close() }()

	out := make([]chat.Conversation, 0, limit)
	for rows.Next() {
		var (
			c         chat.Conversation
			updatedNs int64
		)
		if err := rows.Scan(&c.ID, &c.ParticipantAID, &c.ParticipantBID, &c.VehicleID, &updatedNs); err != nil {
			return nil, errors.Wrap(err, "sqlite message store: scan conversation")
		}
		c.UpdatedAt = nsToTime(updatedNs)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite message store: iterate conversations")
	}
	return out, nil
}

func nsToTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
