package channel

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/livechat/pkg/chat"
	"github.com/go-go-golems/livechat/pkg/chat/auth"
)

// ErrClosed is returned by Open when Close interrupted the handshake.
var ErrClosed = errors.New("live channel closed")

// Option configures a Manager.
type Option func(*Manager)

// WithMessageHandler registers the inbound callback. It is invoked once per
// delivery for messages of the owning conversation only.
func WithMessageHandler(fn func(chat.Message)) Option {
	return func(m *Manager) { m.onMessage = fn }
}

// WithStateObserver registers the status callback. Failed reconnect attempts
// are reported as reconnecting → reconnecting with Err set.
func WithStateObserver(fn func(chat.StateChange)) Option {
	return func(m *Manager) { m.onState = fn }
}

// WithBackoff replaces the reconnect policy factory.
func WithBackoff(factory func() backoff.BackOff) Option {
	return func(m *Manager) {
		if factory != nil {
			m.newBackoff = factory
		}
	}
}

// Manager owns at most one live transport for one conversation.
//
// State machine:
//
//	disconnected --Open--> connecting --ok--> connected --drop--> reconnecting --ok--> connected
//	connecting --fail--> disconnected
//	reconnecting --auth/not found--> disconnected
//	any --Close--> disconnected
type Manager struct {
	conversationID string
	dialer         Dialer
	onMessage      func(chat.Message)
	onState        func(chat.StateChange)
	newBackoff     func() backoff.BackOff
	log            zerolog.Logger

	mu    sync.Mutex
	state chat.ConnectionState
	conn  Conn
	cred  auth.Credential
	// lifetime increments on every Open and Close; goroutines of an older
	// lifetime stop touching state once it moves on.
	lifetime uint64
	cancel   context.CancelFunc
}

func NewManager(conversationID string, dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		conversationID: conversationID,
		dialer:         dialer,
		newBackoff:     ExponentialBackoff(DefaultBackoffInitial, DefaultBackoffMax),
		log: log.With().
			Str("component", "channel").
			Str("conv_id", conversationID).
			Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) ConversationID() string { return m.conversationID }

func (m *Manager) State() chat.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Open performs the handshake and starts delivering messages. It is a no-op
// while a channel is already connecting, connected or reconnecting.
// Handshake failures leave the manager disconnected and are returned; there
// is no automatic retry from this path.
func (m *Manager) Open(ctx context.Context, cred auth.Credential) error {
	m.mu.Lock()
	if m.state != chat.StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.lifetime++
	life := m.lifetime
	lifeCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.cred = cred
	change := m.setStateLocked(chat.StateConnecting, nil)
	m.mu.Unlock()
	m.notify(change)

	conn, err := m.dial(ctx, lifeCtx, cred)

	m.mu.Lock()
	if m.lifetime != life {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		m.cancel()
		m.cancel = nil
		change = m.setStateLocked(chat.StateDisconnected, err)
		m.mu.Unlock()
		m.notify(change)
		m.log.Warn().Err(err).Msg("live channel handshake failed")
		return err
	}
	m.conn = conn
	change = m.setStateLocked(chat.StateConnected, nil)
	m.mu.Unlock()
	m.notify(change)
	m.log.Info().Msg("live channel connected")

	go m.run(lifeCtx, life, conn)
	return nil
}

// Send pushes an outbound frame and returns its correlation id.
// It fails with chat.ErrNotConnected unless the channel is connected.
func (m *Manager) Send(ctx context.Context, content, recipientID string) (string, error) {
	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()
	if state != chat.StateConnected || conn == nil {
		return "", chat.NewError(chat.ErrNotConnected, "send", errors.Errorf("channel is %s", state))
	}

	clientID := uuid.NewString()
	data, err := chat.EncodeOutbound(chat.OutboundMessage{
		Content:        content,
		RecipientID:    recipientID,
		ConversationID: m.conversationID,
		ClientID:       clientID,
	})
	if err != nil {
		return "", err
	}
	if err := conn.Write(ctx, data); err != nil {
		// the read side reports the drop and starts reconnecting
		_ = conn.Close()
		return "", chat.NewError(chat.ErrNetwork, "send", err)
	}
	return clientID, nil
}

// Close tears the channel down from any state and cancels a pending
// reconnect. It is safe to call multiple times.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.cancel == nil && m.state == chat.StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.lifetime++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	conn := m.conn
	m.conn = nil
	change := m.setStateLocked(chat.StateDisconnected, nil)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.notify(change)
	m.log.Info().Msg("live channel closed")
	return nil
}

func (m *Manager) dial(ctx, lifeCtx context.Context, cred auth.Credential) (Conn, error) {
	if err := cred.Validate(time.Now()); err != nil {
		return nil, err
	}
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(lifeCtx, cancel)
	defer stop()
	return m.dialer.Dial(dialCtx, m.conversationID, cred)
}

func (m *Manager) run(lifeCtx context.Context, life uint64, conn Conn) {
	for {
		err := m.pump(life, conn)
		if !m.markDropped(life, conn, err) {
			return
		}
		conn = m.reconnect(lifeCtx, life)
		if conn == nil {
			return
		}
	}
}

// pump reads until the transport fails and returns the read error.
func (m *Manager) pump(life uint64, conn Conn) error {
	for {
		data, err := conn.Read()
		if err != nil {
			return err
		}
		msg, err := chat.DecodeMessage(data)
		if err != nil {
			m.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if msg.ConversationID != m.conversationID {
			m.log.Debug().Str("msg_conv_id", msg.ConversationID).Str("msg_id", msg.ID).Msg("dropping message of another conversation")
			continue
		}
		if !m.isCurrent(life, conn) {
			return ErrClosed
		}
		if m.onMessage != nil {
			m.onMessage(msg)
		}
	}
}

func (m *Manager) isCurrent(life uint64, conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lifetime == life && m.conn == conn
}

func (m *Manager) markDropped(life uint64, conn Conn, cause error) bool {
	m.mu.Lock()
	if m.lifetime != life || m.conn != conn {
		m.mu.Unlock()
		return false
	}
	m.conn = nil
	change := m.setStateLocked(chat.StateReconnecting, chat.NewError(chat.ErrNetwork, "read", cause))
	m.mu.Unlock()

	_ = conn.Close()
	m.log.Warn().Err(cause).Msg("live channel dropped, reconnecting")
	m.notify(change)
	return true
}

// reconnect dials with backoff until it succeeds, the lifetime ends, or the
// server rejects the credential or conversation. It returns nil when the loop
// should stop.
func (m *Manager) reconnect(lifeCtx context.Context, life uint64) Conn {
	b := m.newBackoff()
	b.Reset()
	for attempt := 1; ; attempt++ {
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			m.giveUp(life, chat.NewError(chat.ErrNetwork, "reconnect", errors.Errorf("gave up after %d attempts", attempt-1)))
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-lifeCtx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		m.mu.Lock()
		cred := m.cred
		m.mu.Unlock()

		conn, err := m.dial(lifeCtx, lifeCtx, cred)
		if lifeCtx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return nil
		}
		if err != nil {
			if !chat.IsRetryable(err) {
				m.giveUp(life, err)
				return nil
			}
			m.log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("reconnect attempt failed")
			m.notifyAttempt(life, err)
			continue
		}

		m.mu.Lock()
		if m.lifetime != life {
			m.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		m.conn = conn
		change := m.setStateLocked(chat.StateConnected, nil)
		m.mu.Unlock()
		m.log.Info().Int("attempt", attempt).Msg("live channel reconnected")
		m.notify(change)
		return conn
	}
}

func (m *Manager) giveUp(life uint64, err error) {
	m.mu.Lock()
	if m.lifetime != life {
		m.mu.Unlock()
		return
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	change := m.setStateLocked(chat.StateDisconnected, err)
	m.mu.Unlock()
	m.log.Warn().Err(err).Msg("live channel reconnect abandoned")
	m.notify(change)
}

func (m *Manager) notifyAttempt(life uint64, err error) {
	m.mu.Lock()
	current := m.lifetime == life && m.state == chat.StateReconnecting
	m.mu.Unlock()
	if !current {
		return
	}
	m.notify(chat.StateChange{
		ConversationID: m.conversationID,
		From:           chat.StateReconnecting,
		To:             chat.StateReconnecting,
		Err:            err,
	})
}

func (m *Manager) setStateLocked(to chat.ConnectionState, err error) chat.StateChange {
	from := m.state
	m.state = to
	return chat.StateChange{ConversationID: m.conversationID, From: from, To: to, Err: err}
}

func (m *Manager) notify(change chat.StateChange) {
	m.log.Debug().Stringer("from", change.From).Stringer("to", change.To).Msg("state change")
	if m.onState != nil {
		m.onState(change)
	}
}
