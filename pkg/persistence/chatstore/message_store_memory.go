package chatstore

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/livechat/pkg/chat"
)

// InMemoryStore is a MessageStore kept in process memory. It mirrors the
// ordering semantics of SQLiteStore.
type InMemoryStore struct {
	mu            sync.Mutex
	messages      map[string]map[string]chat.Message
	conversations map[string]chat.Conversation
}

var _ MessageStore = &InMemoryStore{}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		messages:      map[string]map[string]chat.Message{},
		conversations: map[string]chat.Conversation{},
	}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) UpsertMessages(_ context.Context, msgs ...chat.Message) error {
	if s == nil {
		return errors.New("in-memory message store: nil store")
	}
	for _, m := range msgs {
		if err := validateForStore("in-memory message store", m); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		conv := s.messages[m.ConversationID]
		if conv == nil {
			conv = map[string]chat.Message{}
			s.messages[m.ConversationID] = conv
		}
		if existing, ok := conv[m.ID]; ok {
			existing.IsRead = m.IsRead
			conv[m.ID] = existing
		} else {
			conv[m.ID] = m
		}

		c, ok := s.conversations[m.ConversationID]
		if !ok {
			c = chat.Conversation{ID: m.ConversationID}
		}
		if c.ParticipantAID == "" {
			c.ParticipantAID = m.SenderID
		}
		if c.ParticipantBID == "" {
			c.ParticipantBID = m.RecipientID
		}
		if m.CreatedAt.After(c.UpdatedAt) {
			c.UpdatedAt = m.CreatedAt
		}
		s.conversations[m.ConversationID] = c
	}
	return nil
}

func (s *InMemoryStore) ListMessages(_ context.Context, convID string, cursor *chat.Cursor, limit int) ([]chat.Message, bool, error) {
	if s == nil {
		return nil, false, errors.New("in-memory message store: nil store")
	}
	if convID == "" {
		return nil, false, errors.New("in-memory message store: convID is empty")
	}
	limit = normalizeLimit(limit)

	s.mu.Lock()
	all := make([]chat.Message, 0, len(s.messages[convID]))
	for _, m := range s.messages[convID] {
		if cursor != nil && !cursor.Admits(m) {
			continue
		}
		all = append(all, m)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return chat.Less(all[i], all[j]) })
	if len(all) <= limit {
		return all, false, nil
	}
	if cursor != nil && cursor.Direction == chat.Newer {
		return all[:limit], true, nil
	}
	return all[len(all)-limit:], true, nil
}

func (s *InMemoryStore) UpsertConversation(_ context.Context, conv chat.Conversation) error {
	if s == nil {
		return errors.New("in-memory message store: nil store")
	}
	if conv.ID == "" {
		return errors.New("in-memory message store: conversation id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = mergeConversation(s.conversations[conv.ID], conv)
	return nil
}

func (s *InMemoryStore) GetConversation(_ context.Context, convID string) (chat.Conversation, bool, error) {
	if s == nil {
		return chat.Conversation{}, false, errors.New("in-memory message store: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[convID]
	return c, ok, nil
}

func (s *InMemoryStore) ListConversations(_ context.Context, limit int) ([]chat.Conversation, error) {
	if s == nil {
		return nil, errors.New("in-memory message store: nil store")
	}
	if limit <= 0 {
		limit = 200
	}
	s.mu.Lock()
	out := make([]chat.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func mergeConversation(existing, incoming chat.Conversation) chat.Conversation {
	out := existing
	out.ID = incoming.ID
	if incoming.ParticipantAID != "" {
		out.ParticipantAID = incoming.ParticipantAID
	}
	if incoming.ParticipantBID != "" {
		out.ParticipantBID = incoming.ParticipantBID
	}
	if incoming.VehicleID != "" {
		out.VehicleID = incoming.VehicleID
	}
	if incoming.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = incoming.UpdatedAt
	}
	return out
}
