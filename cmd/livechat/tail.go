package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/sources"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/livechat/pkg/chat"
	"github.com/go-go-golems/livechat/pkg/redisstream"
)

// TailCommand follows the timeline messages that chat sessions of other
// processes publish on Redis Streams.
type TailCommand struct {
	*cmds.CommandDescription
	app *app
}

type TailSettings struct {
	ConversationID string `glazed:"conversation-id"`
}

var _ cmds.BareCommand = (*TailCommand)(nil)

func NewTailCommand(a *app) (*TailCommand, error) {
	redisSection, err := redisstream.NewParameterLayer()
	if err != nil {
		return nil, errors.Wrap(err, "build redis section")
	}
	return &TailCommand{
		CommandDescription: cmds.NewCommandDescription(
			"tail",
			cmds.WithShort("Print the messages chat sessions publish for a conversation"),
			cmds.WithLong(`Print the messages chat sessions publish for a conversation.

Every livechat chat process with redis enabled publishes the live messages
it receives on the stream chat:<conversation-id>. tail reads that stream
from its current end until interrupted.`),
			cmds.WithArguments(
				fields.New("conversation-id", fields.TypeString, fields.WithHelp("Conversation to follow")),
			),
			cmds.WithSections(redisSection),
		),
		app: a,
	}, nil
}

func newTailCobraCommand(a *app) (*cobra.Command, error) {
	c, err := NewTailCommand(a)
	if err != nil {
		return nil, err
	}
	return cli.BuildCobraCommand(c, cli.WithCobraMiddlewaresFunc(tailMiddlewares))
}

// tailMiddlewares only reads what was given on the command line; the
// config file and environment have already been loaded into app.cfg.
func tailMiddlewares(_ *values.Values, cmd *cobra.Command, args []string) ([]sources.Middleware, error) {
	return []sources.Middleware{
		sources.FromCobra(cmd),
		sources.FromArgs(args),
	}, nil
}

func (c *TailCommand) Run(ctx context.Context, parsed *values.Values) error {
	s := &TailSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "init tail settings")
	}
	flags := redisstream.Settings{}
	if err := parsed.DecodeSectionInto("redis", &flags); err != nil {
		return errors.Wrap(err, "init redis settings")
	}
	if s.ConversationID == "" {
		return errors.New("tail: conversation id is required")
	}
	rs := c.app.cfg.Redis.Override(flags)
	if !rs.Enabled {
		return errors.New("tail reads Redis Streams: set redis.enabled in the config or pass --redis-enabled")
	}

	ps, err := redisstream.Build(rs)
	if err != nil {
		return err
	}
	defer func() { _ = ps.Close() }()
	if err := redisstream.EnsureGroupAtTail(ctx, rs.Addr, redisstream.TopicFor(s.ConversationID), rs.Group); err != nil {
		log.Warn().Err(err).Msg("could not create redis consumer group")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Info().Str("addr", rs.Addr).Str("group", rs.Group).Str("conv_id", s.ConversationID).Msg("following conversation")
	return c.app.runTail(ctx, ps.Subscriber, s.ConversationID, c.app.stdout())
}

func (a *app) runTail(ctx context.Context, sub message.Subscriber, conversationID string, out io.Writer) error {
	msgs, err := redisstream.Subscribe(ctx, sub, conversationID)
	if err != nil {
		return err
	}
	p := newPrinter(out, a.cfg.UserID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			p.messages([]chat.Message{m})
		}
	}
}
