// Package session ties one conversation's history, live channel and timeline
// together. A Session is created per opened conversation and discarded when
// the user leaves it; Switcher keeps at most one of them live.
package session

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/livechat/pkg/chat"
	"github.com/go-go-golems/livechat/pkg/chat/auth"
	"github.com/go-go-golems/livechat/pkg/chat/channel"
	"github.com/go-go-golems/livechat/pkg/chat/history"
	"github.com/go-go-golems/livechat/pkg/chat/timeline"
	"github.com/go-go-golems/livechat/pkg/persistence/chatstore"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Source tells observers where a timeline update came from.
type Source string

const (
	SourceHistory Source = "history"
	SourceLive    Source = "live"
	SourceOlder   Source = "older"
)

// TimelineUpdate is delivered after every change of the timeline.
type TimelineUpdate struct {
	ConversationID string
	Source         Source
	// Added holds the messages new to the timeline, in timeline order.
	Added []chat.Message
	// Messages is a snapshot of the whole timeline after the change.
	Messages []chat.Message
}

// Publisher receives every message that enters a timeline from the live channel.
type Publisher interface {
	Publish(ctx context.Context, m chat.Message) error
}

// Config carries the collaborators of a session.
type Config struct {
	Loader     history.Loader
	Dialer     channel.Dialer
	Credential auth.Credential

	// Backoff overrides the reconnect policy. Optional.
	Backoff func() backoff.BackOff
	// Store persists every message merged into the timeline. Optional.
	Store chatstore.MessageStore
	// Publisher fans live messages out to other processes. Optional.
	Publisher Publisher
}

type Option func(*Session)

func WithTimelineObserver(fn func(TimelineUpdate)) Option {
	return func(s *Session) { s.onTimeline = fn }
}

func WithStateObserver(fn func(chat.StateChange)) Option {
	return func(s *Session) { s.onState = fn }
}

// Session is the per-conversation aggregate of history, live channel and
// timeline. Every timeline and state mutation runs on the session's event
// loop and observers are called from that loop.
//
// Close does not wait for an observer that is already running, so an
// observer may call Close itself. When Close races with a delivery from
// another goroutine, at most that one delivery completes after Close
// returns; no delivery starts once the session is marked closed.
type Session struct {
	conversationID string
	cfg            Config
	mgr            *channel.Manager
	loop           *eventLoop
	onTimeline     func(TimelineUpdate)
	onState        func(chat.StateChange)
	log            zerolog.Logger

	// ctx is cancelled by Close and bounds loads started by the session.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	timeline *timeline.Timeline
	state    chat.ConnectionState
	hasMore  bool
	opened   bool
	closed   bool
}

func New(conversationID string, cfg Config, opts ...Option) (*Session, error) {
	if conversationID == "" {
		return nil, errors.New("session: conversation id is empty")
	}
	if cfg.Loader == nil {
		return nil, errors.New("session: history loader is nil")
	}
	if cfg.Dialer == nil {
		return nil, errors.New("session: dialer is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conversationID: conversationID,
		cfg:            cfg,
		loop:           newEventLoop(),
		ctx:            ctx,
		cancel:         cancel,
		timeline:       timeline.New(conversationID, nil),
		log: log.With().
			Str("component", "session").
			Str("conv_id", conversationID).
			Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mgrOpts := []channel.Option{
		channel.WithMessageHandler(func(m chat.Message) {
			s.loop.post(func() { s.applyLive(m) })
		}),
		channel.WithStateObserver(func(c chat.StateChange) {
			s.loop.post(func() { s.applyState(c) })
		}),
	}
	if cfg.Backoff != nil {
		mgrOpts = append(mgrOpts, channel.WithBackoff(cfg.Backoff))
	}
	s.mgr = channel.NewManager(conversationID, cfg.Dialer, mgrOpts...)
	return s, nil
}

func (s *Session) ConversationID() string { return s.conversationID }

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Open loads history, seeds the timeline and opens the live channel.
// History and handshake errors are returned; a failed Open may be retried.
// Close interrupts a pending Open, which then returns ErrClosed.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.opened {
		s.mu.Unlock()
		return nil
	}
	s.opened = true
	s.mu.Unlock()

	opCtx, stop := s.bind(ctx)
	defer stop()

	err := s.open(opCtx)
	if err != nil {
		s.mu.Lock()
		s.opened = false
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return ErrClosed
		}
		s.log.Warn().Err(err).Msg("open failed")
		return err
	}
	return nil
}

func (s *Session) open(ctx context.Context) error {
	page, err := s.cfg.Loader.Load(ctx, s.conversationID)
	if err != nil {
		return err
	}
	if _, err := s.await(ctx, func() int { return s.seed(page) }); err != nil {
		return err
	}
	err = s.mgr.Open(ctx, s.cfg.Credential)
	// state changes raised by the handshake are queued; let them land first
	if _, flushErr := s.await(ctx, func() int { return 0 }); flushErr != nil && err == nil {
		err = flushErr
	}
	if err != nil {
		return err
	}
	s.log.Info().Int("history", len(page.Messages)).Msg("session opened")
	return nil
}

// Send delegates to the live channel. The timeline only changes when the
// server echoes the message back. The returned id correlates that echo.
func (s *Session) Send(ctx context.Context, content, recipientID string) (string, error) {
	if s.isClosed() {
		return "", chat.NewError(chat.ErrNotConnected, "send", ErrClosed)
	}
	return s.mgr.Send(ctx, content, recipientID)
}

// LoadMore merges the next page of older history and returns the number of
// new messages. It returns 0 when the loader does not paginate or nothing
// older remains.
func (s *Session) LoadMore(ctx context.Context) (int, error) {
	s.mu.Lock()
	closed, hasMore := s.closed, s.hasMore
	oldest, nonEmpty := s.timeline.Oldest()
	s.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	pager, ok := s.cfg.Loader.(history.Pager)
	if !ok || !nonEmpty || !hasMore {
		return 0, nil
	}

	opCtx, stop := s.bind(ctx)
	defer stop()

	page, err := pager.LoadMore(opCtx, s.conversationID, chat.CursorFrom(oldest, chat.Older))
	if err != nil {
		if s.isClosed() {
			return 0, ErrClosed
		}
		return 0, err
	}
	return s.await(opCtx, func() int { return s.applyOlder(page) })
}

// HasMore reports whether older history remains on the loader.
func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Timeline returns a snapshot of the merged timeline.
func (s *Session) Timeline() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Messages()
}

// State is the last connection state the session observed.
func (s *Session) State() chat.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Counterpart guesses the other participant from the newest message that
// involves the session's user. It is empty when the user id is unknown or the
// timeline gives no hint.
func (s *Session) Counterpart() string {
	me := s.cfg.Credential.UserID
	if me == "" {
		return ""
	}
	msgs := s.Timeline()
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		switch {
		case m.SenderID == me && m.RecipientID != "":
			return m.RecipientID
		case m.RecipientID == me:
			return m.SenderID
		}
	}
	return ""
}

// Close tears the session down. It is idempotent; afterwards the session
// accepts no input and emits nothing.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = chat.StateDisconnected
	s.mu.Unlock()

	s.cancel()
	s.loop.stop()
	err := s.mgr.Close()
	s.log.Info().Msg("session closed")
	return err
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// bind derives a context cancelled by either ctx or Close.
func (s *Session) bind(ctx context.Context) (context.Context, func()) {
	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

// await runs fn on the event loop and waits for its result.
func (s *Session) await(ctx context.Context, fn func() int) (int, error) {
	res := make(chan int, 1)
	if !s.loop.post(func() { res <- fn() }) {
		return 0, ErrClosed
	}
	select {
	case n := <-res:
		return n, nil
	case <-s.ctx.Done():
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// The apply* functions run on the event loop only.

func (s *Session) seed(page history.Page) int {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	added := s.timeline.MergeAll(page.Messages)
	s.hasMore = page.HasMore
	snapshot := s.timeline.Messages()
	s.mu.Unlock()

	s.persist(added)
	s.emitTimeline(SourceHistory, added, snapshot)
	return len(added)
}

func (s *Session) applyOlder(page history.Page) int {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	added := s.timeline.MergeAll(page.Messages)
	s.hasMore = page.HasMore
	snapshot := s.timeline.Messages()
	s.mu.Unlock()

	s.persist(added)
	if len(added) > 0 {
		s.emitTimeline(SourceOlder, added, snapshot)
	}
	return len(added)
}

func (s *Session) applyLive(m chat.Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !s.timeline.Merge(m) {
		s.mu.Unlock()
		return
	}
	snapshot := s.timeline.Messages()
	s.mu.Unlock()

	added := []chat.Message{m}
	s.persist(added)
	if s.cfg.Publisher != nil {
		if err := s.cfg.Publisher.Publish(s.ctx, m); err != nil {
			s.log.Warn().Err(err).Str("message_id", m.ID).Msg("publish failed")
		}
	}
	s.emitTimeline(SourceLive, added, snapshot)
}

func (s *Session) applyState(c chat.StateChange) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = c.To
	s.mu.Unlock()

	if c.Err != nil {
		s.log.Debug().Err(c.Err).Str("from", c.From.String()).Str("to", c.To.String()).Msg("connection state")
	}
	if fn := s.onState; fn != nil && !s.isClosed() {
		fn(c)
	}
}

func (s *Session) persist(msgs []chat.Message) {
	if s.cfg.Store == nil || len(msgs) == 0 {
		return
	}
	if err := s.cfg.Store.UpsertMessages(s.ctx, msgs...); err != nil && s.ctx.Err() == nil {
		s.log.Warn().Err(err).Int("count", len(msgs)).Msg("cache write failed")
	}
}

func (s *Session) emitTimeline(src Source, added, snapshot []chat.Message) {
	fn := s.onTimeline
	if fn == nil || s.isClosed() {
		return
	}
	fn(TimelineUpdate{
		ConversationID: s.conversationID,
		Source:         src,
		Added:          added,
		Messages:       snapshot,
	})
}
