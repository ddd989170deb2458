package chatstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/livechat/pkg/chat"
)

var base = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func storeMsg(conv, id string, offset time.Duration) chat.Message {
	return chat.Message{ID: id, ConversationID: conv, SenderID: "buyer", RecipientID: "vendor", Content: "msg " + id, CreatedAt: base.Add(offset)}
}

func msgIDs(msgs []chat.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func newSQLite(t *testing.T) MessageStore {
	t.Helper()
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "livechat.db"))
	require.NoError(t, err)
	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func forEachStore(t *testing.T, fn func(t *testing.T, s MessageStore)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewInMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLite(t)) })
}

func TestMessageStore_PagingWindows(t *testing.T) {
	forEachStore(t, func(t *testing.T, s MessageStore) {
		ctx := context.Background()
		require.NoError(t, s.UpsertMessages(ctx,
			storeMsg("c1", "m5", 5*time.Second),
			storeMsg("c1", "m1", 1*time.Second),
			storeMsg("c1", "m3", 3*time.Second),
			storeMsg("c1", "m2", 2*time.Second),
			storeMsg("c1", "m4", 4*time.Second),
			storeMsg("c2", "x1", 0),
		))

		latest, more, err := s.ListMessages(ctx, "c1", nil, 2)
		require.NoError(t, err)
		require.True(t, more)
		require.Equal(t, []string{"m4", "m5"}, msgIDs(latest))

		older := chat.CursorFrom(latest[0], chat.Older)
		page, more, err := s.ListMessages(ctx, "c1", &older, 2)
		require.NoError(t, err)
		require.True(t, more)
		require.Equal(t, []string{"m2", "m3"}, msgIDs(page))

		older = chat.CursorFrom(page[0], chat.Older)
		page, more, err = s.ListMessages(ctx, "c1", &older, 2)
		require.NoError(t, err)
		require.False(t, more)
		require.Equal(t, []string{"m1"}, msgIDs(page))

		newer := chat.CursorFrom(storeMsg("c1", "m2", 2*time.Second), chat.Newer)
		page, more, err = s.ListMessages(ctx, "c1", &newer, 2)
		require.NoError(t, err)
		require.True(t, more)
		require.Equal(t, []string{"m3", "m4"}, msgIDs(page))
	})
}

func TestMessageStore_UpsertKeepsContentUpdatesReadFlag(t *testing.T) {
	forEachStore(t, func(t *testing.T, s MessageStore) {
		ctx := context.Background()
		m := storeMsg("c1", "m1", 0)
		require.NoError(t, s.UpsertMessages(ctx, m))

		changed := m
		changed.Content = "rewritten"
		changed.IsRead = true
		require.NoError(t, s.UpsertMessages(ctx, changed))

		msgs, _, err := s.ListMessages(ctx, "c1", nil, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.Equal(t, "msg m1", msgs[0].Content)
		require.True(t, msgs[0].IsRead)
		require.True(t, msgs[0].CreatedAt.Equal(m.CreatedAt))
	})
}

func TestMessageStore_RejectsMalformed(t *testing.T) {
	forEachStore(t, func(t *testing.T, s MessageStore) {
		err := s.UpsertMessages(context.Background(), chat.Message{ID: "m1", ConversationID: "c1"})
		require.Error(t, err)
	})
}

func TestMessageStore_ConversationsBumpedByMessages(t *testing.T) {
	forEachStore(t, func(t *testing.T, s MessageStore) {
		ctx := context.Background()
		require.NoError(t, s.UpsertConversation(ctx, chat.Conversation{
			ID: "c1", ParticipantAID: "buyer", ParticipantBID: "vendor", VehicleID: "v-42", UpdatedAt: base,
		}))
		require.NoError(t, s.UpsertConversation(ctx, chat.Conversation{ID: "c2", UpdatedAt: base.Add(time.Second)}))

		convs, err := s.ListConversations(ctx, 10)
		require.NoError(t, err)
		require.Equal(t, "c2", convs[0].ID)

		require.NoError(t, s.UpsertMessages(ctx, storeMsg("c1", "m1", time.Minute)))

		convs, err = s.ListConversations(ctx, 10)
		require.NoError(t, err)
		require.Len(t, convs, 2)
		require.Equal(t, "c1", convs[0].ID)
		require.True(t, convs[0].UpdatedAt.Equal(base.Add(time.Minute)))

		c, ok, err := s.GetConversation(ctx, "c1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "v-42", c.VehicleID)
		require.Equal(t, "vendor", c.Counterpart("buyer"))

		_, ok, err = s.GetConversation(ctx, "missing")
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestMessageStore_MessageCreatesConversation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s MessageStore) {
		ctx := context.Background()
		require.NoError(t, s.UpsertMessages(ctx, storeMsg("c9", "m1", 0)))
		c, ok, err := s.GetConversation(ctx, "c9")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "buyer", c.ParticipantAID)
		require.Equal(t, "vendor", c.ParticipantBID)
	})
}

func TestMessageStore_MessageFillsParticipantsOfBareConversation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s MessageStore) {
		ctx := context.Background()
		require.NoError(t, s.UpsertConversation(ctx, chat.Conversation{ID: "c1", VehicleID: "v-7"}))
		require.NoError(t, s.UpsertMessages(ctx, storeMsg("c1", "m1", 0)))

		c, ok, err := s.GetConversation(ctx, "c1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "buyer", c.ParticipantAID)
		require.Equal(t, "vendor", c.ParticipantBID)
		require.Equal(t, "v-7", c.VehicleID)

		// known participants are not rewritten by later messages
		reply := storeMsg("c1", "m2", time.Minute)
		reply.SenderID, reply.RecipientID = "vendor", "buyer"
		require.NoError(t, s.UpsertMessages(ctx, reply))
		c, _, err = s.GetConversation(ctx, "c1")
		require.NoError(t, err)
		require.Equal(t, "buyer", c.ParticipantAID)
		require.Equal(t, "vendor", c.ParticipantBID)
	})
}
