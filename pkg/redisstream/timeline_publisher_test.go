package redisstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/livechat/pkg/chat"
)

func TestTimelinePublisher_InMemoryRoundTrip(t *testing.T) {
	ps, err := Build(DefaultSettings())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := Subscribe(ctx, ps.Subscriber, "c1")
	require.NoError(t, err)
	other, err := Subscribe(ctx, ps.Subscriber, "c2")
	require.NoError(t, err)

	pub := NewTimelinePublisher(ps.Publisher)
	m := chat.Message{ID: "m1", ConversationID: "c1", SenderID: "vendor", RecipientID: "buyer", Content: "ready for pickup", CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	require.NoError(t, pub.Publish(ctx, m))

	select {
	case got := <-ch:
		require.Equal(t, m.ID, got.ID)
		require.Equal(t, m.Content, got.Content)
		require.True(t, m.CreatedAt.Equal(got.CreatedAt))
	case <-time.After(2 * time.Second):
		t.Fatal("no message on c1 topic")
	}

	select {
	case got := <-other:
		t.Fatalf("unexpected message on c2 topic: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBuild_RedisRequiresAddr(t *testing.T) {
	_, err := Build(Settings{Enabled: true})
	require.Error(t, err)
}

func TestTopicFor(t *testing.T) {
	require.Equal(t, "chat:abc", TopicFor("abc"))
}

func TestNewParameterLayer(t *testing.T) {
	section, err := NewParameterLayer()
	require.NoError(t, err)
	require.Equal(t, "redis", section.GetSlug())
}

func TestSettings_Override(t *testing.T) {
	base := DefaultSettings()
	require.Equal(t, base, base.Override(Settings{}))

	got := base.Override(Settings{Enabled: true, Addr: "redis:6379"})
	require.True(t, got.Enabled)
	require.Equal(t, "redis:6379", got.Addr)
	require.Equal(t, "chat-ui", got.Group)

	// a flag left unset does not switch redis off
	require.True(t, got.Override(Settings{}).Enabled)
}
