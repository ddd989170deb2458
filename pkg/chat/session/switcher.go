package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Factory builds an unopened session for a conversation.
type Factory func(conversationID string) (*Session, error)

// Switcher keeps at most one live session per signed-in user. Switching
// closes the previous session before the next one opens.
type Switcher struct {
	newSession Factory

	mu     sync.Mutex
	active *Session
	closed bool
}

func NewSwitcher(f Factory) *Switcher {
	return &Switcher{newSession: f}
}

// Switch makes conversationID the active conversation and opens it. Asking
// for the conversation that is already active returns the same session.
func (w *Switcher) Switch(ctx context.Context, conversationID string) (*Session, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	prev := w.active
	if prev != nil && prev.ConversationID() == conversationID && !prev.isClosed() {
		w.mu.Unlock()
		return prev, nil
	}
	next, err := w.newSession(conversationID)
	if err != nil {
		w.mu.Unlock()
		return nil, errors.Wrapf(err, "switch to %s", conversationID)
	}
	w.active = next
	w.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}

	if err := next.Open(ctx); err != nil {
		w.mu.Lock()
		if w.active == next {
			w.active = nil
		}
		w.mu.Unlock()
		_ = next.Close()
		return nil, err
	}
	return next, nil
}

// Active returns the current session, or nil.
func (w *Switcher) Active() *Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Close closes the active session and refuses further switches.
func (w *Switcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	active := w.active
	w.active = nil
	w.mu.Unlock()

	if active != nil {
		return active.Close()
	}
	return nil
}
