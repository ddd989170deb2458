package chat

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage_Valid(t *testing.T) {
	m, err := DecodeMessage([]byte(`{"id":"m1","conversation_id":"c1","sender_id":"u1","recipient_id":"u2","content":"halo","created_at":"2025-01-02T03:04:05Z","is_read":false}`))
	require.NoError(t, err)
	require.Equal(t, "m1", m.ID)
	require.Equal(t, "c1", m.ConversationID)
	require.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), m.CreatedAt.UTC())
}

func TestDecodeMessage_MalformedIsNetworkError(t *testing.T) {
	cases := map[string]string{
		"not json":          `{"id":`,
		"missing id":        `{"conversation_id":"c1","sender_id":"u1","created_at":"2025-01-02T03:04:05Z"}`,
		"missing conv":      `{"id":"m1","sender_id":"u1","created_at":"2025-01-02T03:04:05Z"}`,
		"missing created":   `{"id":"m1","conversation_id":"c1","sender_id":"u1","recipient_id":"u2"}`,
		"missing recipient": `{"id":"m1","conversation_id":"c1","sender_id":"u1","created_at":"2025-01-02T03:04:05Z"}`,
		"wrong type":        `{"id":1,"conversation_id":"c1","sender_id":"u1","created_at":"2025-01-02T03:04:05Z"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(payload))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrNetwork))
		})
	}
}

func TestLess_TieBreaksOnID(t *testing.T) {
	ts := time.Unix(100, 0)
	a := Message{ID: "a", CreatedAt: ts}
	b := Message{ID: "b", CreatedAt: ts}
	c := Message{ID: "0", CreatedAt: ts.Add(time.Second)}
	require.True(t, Less(a, b))
	require.False(t, Less(b, a))
	require.True(t, Less(b, c))
}

func TestError_KindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := errors.Wrap(NewError(ErrAuth, "dial", cause), "open")
	require.True(t, errors.Is(err, ErrAuth))
	require.False(t, errors.Is(err, ErrNetwork))
	require.True(t, errors.Is(err, cause))
	require.False(t, IsRetryable(err))
	require.True(t, IsRetryable(NewError(ErrNetwork, "dial", cause)))
}

func TestEncodeOutbound_RequiresRouting(t *testing.T) {
	_, err := EncodeOutbound(OutboundMessage{Content: "hi", ConversationID: "c1"})
	require.Error(t, err)

	b, err := EncodeOutbound(OutboundMessage{Content: "hi", RecipientID: "u2", ConversationID: "c1"})
	require.NoError(t, err)
	require.JSONEq(t, `{"content":"hi","recipient_id":"u2","conversation_id":"c1"}`, string(b))
}

func TestConversationCounterpart(t *testing.T) {
	c := Conversation{ParticipantAID: "buyer", ParticipantBID: "vendor"}
	require.Equal(t, "vendor", c.Counterpart("buyer"))
	require.Equal(t, "buyer", c.Counterpart("vendor"))
}

func TestMessageValidate_RequiresRecipient(t *testing.T) {
	m := Message{ID: "m1", ConversationID: "c1", SenderID: "u1", RecipientID: "u2", CreatedAt: time.Now()}
	require.NoError(t, m.Validate())

	m.RecipientID = " "
	err := m.Validate()
	require.True(t, errors.Is(err, ErrNetwork))
	require.Contains(t, err.Error(), "recipient_id")
}
