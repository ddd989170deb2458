package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/livechat/pkg/chat/history"
)

func newHistoryCommand(a *app) *cobra.Command {
	var (
		offline bool
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Print the most recent messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHistory(cmd.Context(), args[0], offline, limit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Read from the local cache only")
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of messages (defaults to page_size)")
	return cmd
}

func (a *app) runHistory(ctx context.Context, conversationID string, offline bool, limit int, out io.Writer) error {
	if limit <= 0 {
		limit = a.cfg.PageSize
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var loader history.Loader
	me := a.cfg.UserID
	if offline {
		loader = &history.StoreLoader{Store: store, PageSize: limit}
	} else {
		cred, err := a.credential()
		if err != nil {
			return err
		}
		me = cred.UserID
		loader = a.remoteLoader(cred, store, limit)
	}

	page, err := loader.Load(ctx, conversationID)
	if err != nil {
		return err
	}
	p := newPrinter(out, me)
	p.messages(page.Messages)
	if page.HasMore {
		p.notice("older messages available")
	}
	return nil
}
