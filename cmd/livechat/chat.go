package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/livechat/pkg/chat"
	"github.com/go-go-golems/livechat/pkg/chat/channel"
	"github.com/go-go-golems/livechat/pkg/chat/session"
	"github.com/go-go-golems/livechat/pkg/redisstream"
)

func newChatCommand(a *app) *cobra.Command {
	var recipient string
	cmd := &cobra.Command{
		Use:   "chat <conversation-id>",
		Short: "Open a conversation, print new messages and send each input line",
		Long: `Open a conversation, print new messages and send each input line.

Lines starting with a slash are commands:
  /more   load older messages
  /quit   leave the conversation`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runChat(ctx, args[0], recipient, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "Recipient user id (defaults to the other participant of the conversation)")
	return cmd
}

func (a *app) runChat(ctx context.Context, conversationID, recipient string, in io.Reader, out io.Writer) error {
	cred, err := a.credential()
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	cfg := session.Config{
		Loader:     a.remoteLoader(cred, store, a.cfg.PageSize),
		Dialer:     a.dialer(),
		Credential: cred,
		Backoff:    channel.ExponentialBackoff(a.cfg.BackoffInitial, a.cfg.BackoffMax),
		Store:      store,
	}
	if a.cfg.Redis.Enabled {
		ps, err := redisstream.Build(a.cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = ps.Close() }()
		if err := redisstream.EnsureGroupAtTail(ctx, a.cfg.Redis.Addr, redisstream.TopicFor(conversationID), a.cfg.Redis.Group); err != nil {
			log.Warn().Err(err).Msg("could not create redis consumer group")
		}
		cfg.Publisher = redisstream.NewTimelinePublisher(ps.Publisher)
	}

	p := newPrinter(out, cred.UserID)
	sess, err := session.New(conversationID, cfg,
		session.WithTimelineObserver(p.onTimeline),
		session.WithStateObserver(p.onState),
	)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	if err := sess.Open(ctx); err != nil {
		return errors.Wrapf(err, "open conversation %s", conversationID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	go readLines(runCtx, in, lines)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return a.chatLoop(gctx, sess, p, recipient, lines)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-sess.Done():
		}
		return sess.Close()
	})
	return g.Wait()
}

// readLines forwards input lines until EOF, then closes lines. A blocked
// read of an open stdin is only reclaimed at process exit.
func readLines(ctx context.Context, in io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-ctx.Done():
			return
		}
	}
	if err := sc.Err(); err != nil {
		log.Debug().Err(err).Msg("input closed")
	}
}

func (a *app) chatLoop(ctx context.Context, sess *session.Session, p *printer, recipient string, lines <-chan string) error {
	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "":
		case line == "/quit":
			return nil
		case line == "/more":
			n, err := sess.LoadMore(ctx)
			if err != nil {
				p.failure(err)
			} else if n == 0 {
				p.notice("no older messages")
			}
		default:
			to := recipient
			if to == "" {
				to = sess.Counterpart()
			}
			if to == "" {
				p.failure(errors.New("no recipient known yet; pass --recipient"))
				continue
			}
			if _, err := sess.Send(ctx, line, to); err != nil {
				if errors.Is(err, chat.ErrNotConnected) {
					p.failure(errors.New("not connected; message not sent"))
					continue
				}
				p.failure(err)
			}
		}
	}
}
