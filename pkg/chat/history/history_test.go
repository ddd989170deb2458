package history

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/livechat/pkg/chat"
	"github.com/go-go-golems/livechat/pkg/chat/auth"
	"github.com/go-go-golems/livechat/pkg/chat/chattest"
	"github.com/go-go-golems/livechat/pkg/persistence/chatstore"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func hmsg(id string, offset time.Duration) chat.Message {
	return chat.Message{ID: id, ConversationID: "c1", SenderID: "buyer", RecipientID: "vendor", Content: id, CreatedAt: t0.Add(offset)}
}

func ids(msgs []chat.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func newLoader(t *testing.T, srv *chattest.Server) *HTTPLoader {
	t.Helper()
	cred, err := auth.NewCredential("token-1")
	require.NoError(t, err)
	return NewHTTPLoader(srv.APIURL(), cred)
}

func TestHTTPLoader_LoadAndPaginate(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.SetHistory("c1", hmsg("m3", 3*time.Second), hmsg("m1", time.Second), hmsg("m2", 2*time.Second), hmsg("m4", 4*time.Second))

	l := newLoader(t, srv)
	l.PageSize = 2
	ctx := context.Background()

	page, err := l.Load(ctx, "c1")
	require.NoError(t, err)
	require.True(t, page.HasMore)
	require.Equal(t, []string{"m3", "m4"}, ids(page.Messages))

	older, err := l.LoadMore(ctx, "c1", chat.CursorFrom(page.Messages[0], chat.Older))
	require.NoError(t, err)
	require.False(t, older.HasMore)
	require.Equal(t, []string{"m1", "m2"}, ids(older.Messages))

	newer, err := l.LoadMore(ctx, "c1", chat.CursorFrom(older.Messages[0], chat.Newer))
	require.NoError(t, err)
	require.True(t, newer.HasMore)
	require.Equal(t, []string{"m2", "m3"}, ids(newer.Messages))
}

func TestHTTPLoader_ErrorTaxonomy(t *testing.T) {
	srv := chattest.NewServer(t)
	l := newLoader(t, srv)
	ctx := context.Background()

	_, err := l.Load(ctx, "missing")
	require.True(t, errors.Is(err, chat.ErrNotFound))

	srv.SetHistory("c1", hmsg("m1", 0))
	srv.SetHistoryStatus(http.StatusForbidden)
	_, err = l.Load(ctx, "c1")
	require.True(t, errors.Is(err, chat.ErrAuth))

	srv.SetHistoryStatus(http.StatusBadGateway)
	_, err = l.Load(ctx, "c1")
	require.True(t, errors.Is(err, chat.ErrNetwork))

	unreachable := NewHTTPLoader("http://127.0.0.1:1/api/v1", l.Credential)
	_, err = unreachable.Load(ctx, "c1")
	require.True(t, errors.Is(err, chat.ErrNetwork))
}

func TestHTTPLoader_RejectsMalformedMessages(t *testing.T) {
	srv := chattest.NewServer(t)
	bad := hmsg("m1", 0)
	bad.SenderID = ""
	srv.SetHistory("c1", bad)

	_, err := newLoader(t, srv).Load(context.Background(), "c1")
	require.Error(t, err)
	require.True(t, errors.Is(err, chat.ErrNetwork))
}

func TestHTTPLoader_Idempotent(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.SetHistory("c1", hmsg("m1", 0), hmsg("m2", time.Second))
	l := newLoader(t, srv)

	a, err := l.Load(context.Background(), "c1")
	require.NoError(t, err)
	b, err := l.Load(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, ids(a.Messages), ids(b.Messages))
}

func TestCachingLoader_FeedsStoreLoader(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.SetHistory("c1", hmsg("m1", 0), hmsg("m2", time.Second), hmsg("m3", 2*time.Second))
	remote := newLoader(t, srv)
	remote.PageSize = 2

	store := chatstore.NewInMemoryStore()
	caching := &CachingLoader{Loader: remote, Store: store}
	ctx := context.Background()

	page, err := caching.Load(ctx, "c1")
	require.NoError(t, err)
	_, err = caching.LoadMore(ctx, "c1", chat.CursorFrom(page.Messages[0], chat.Older))
	require.NoError(t, err)

	offline := &StoreLoader{Store: store, PageSize: 10}
	cached, err := offline.Load(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, []string{"m1", "m2", "m3"}, ids(cached.Messages))
	require.False(t, cached.HasMore)

	_, err = offline.Load(ctx, "unknown")
	require.True(t, errors.Is(err, chat.ErrNotFound))
}

func TestCachingLoader_DoesNotCacheFailures(t *testing.T) {
	srv := chattest.NewServer(t)
	store := chatstore.NewInMemoryStore()
	caching := &CachingLoader{Loader: newLoader(t, srv), Store: store}

	_, err := caching.Load(context.Background(), "nope")
	require.True(t, errors.Is(err, chat.ErrNotFound))

	convs, err := store.ListConversations(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, convs)
}

func TestCachingLoader_RecordsParticipants(t *testing.T) {
	dsn, err := chatstore.SQLiteDSNForFile(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	sqlite, err := chatstore.NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	stores := map[string]chatstore.MessageStore{
		"memory": chatstore.NewInMemoryStore(),
		"sqlite": sqlite,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			srv := chattest.NewServer(t)
			srv.SetHistory("c1", hmsg("m1", 0), hmsg("m2", time.Second))
			srv.SetHistory("c2")
			caching := &CachingLoader{Loader: newLoader(t, srv), Store: store}
			ctx := context.Background()

			_, err := caching.Load(ctx, "c1")
			require.NoError(t, err)
			c, ok, err := store.GetConversation(ctx, "c1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "buyer", c.ParticipantAID)
			require.Equal(t, "vendor", c.ParticipantBID)
			require.Equal(t, "vendor", c.Counterpart("buyer"))

			// an empty conversation is still known offline
			_, err = caching.Load(ctx, "c2")
			require.NoError(t, err)
			_, ok, err = store.GetConversation(ctx, "c2")
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}

func TestHTTPDirectory_ListAndCache(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.SetConversations(
		chat.Conversation{ID: "c1", ParticipantAID: "buyer", ParticipantBID: "vendor", VehicleID: "v-1", UpdatedAt: t0},
		chat.Conversation{ID: "c2", ParticipantAID: "buyer", ParticipantBID: "dealer", VehicleID: "v-2", UpdatedAt: t0.Add(time.Hour)},
	)
	cred, err := auth.NewCredential("token-1")
	require.NoError(t, err)

	store := chatstore.NewInMemoryStore()
	dir := &CachingDirectory{Directory: NewHTTPDirectory(srv.APIURL(), cred), Store: store}
	convs, err := dir.List(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 2)
	require.Equal(t, "c2", convs[0].ID)
	require.Equal(t, "dealer", convs[0].Counterpart("buyer"))

	cached, err := store.ListConversations(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, cached, 2)
	require.Equal(t, "v-1", cached[1].VehicleID)

	srv.SetHistoryStatus(http.StatusUnauthorized)
	_, err = dir.List(context.Background())
	require.True(t, errors.Is(err, chat.ErrAuth))
}
