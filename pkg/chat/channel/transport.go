// Package channel owns the live websocket of one open conversation: the
// handshake, liveness detection, reconnect with backoff and fire-and-forget sends.
package channel

import (
	"context"

	"github.com/go-go-golems/livechat/pkg/chat/auth"
)

// Conn is one established live transport.
// Read blocks until a data frame arrives or the transport drops.
// Write and Close may be called concurrently with Read.
type Conn interface {
	Read() ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer performs the handshake for a conversation.
// Failures are classified with chat.ErrAuth, chat.ErrNotFound or chat.ErrNetwork.
type Dialer interface {
	Dial(ctx context.Context, conversationID string, cred auth.Credential) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, conversationID string, cred auth.Credential) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, conversationID string, cred auth.Credential) (Conn, error) {
	return f(ctx, conversationID, cred)
}
