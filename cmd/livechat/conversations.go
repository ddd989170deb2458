package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newConversationsCommand(a *app) *cobra.Command {
	var (
		limit  int
		remote bool
	)
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List conversations, most recently active first",
		Long: `List conversations, most recently active first.

Without --remote only the local cache is read. With --remote the list is
fetched from the server and recorded in the cache first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConversations(cmd.Context(), remote, limit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of conversations")
	cmd.Flags().BoolVar(&remote, "remote", false, "Refresh the list from the server")
	return cmd
}

func (a *app) runConversations(ctx context.Context, remote bool, limit int, out io.Writer) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	me := a.cfg.UserID
	if remote {
		cred, err := a.credential()
		if err != nil {
			return err
		}
		me = cred.UserID
		if _, err := a.directory(cred, store).List(ctx); err != nil {
			return err
		}
	}

	convs, err := store.ListConversations(ctx, limit)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		_, err := fmt.Fprintln(out, "no cached conversations")
		return err
	}
	for _, c := range convs {
		with := c.ParticipantAID + ", " + c.ParticipantBID
		if me != "" {
			with = c.Counterpart(me)
		}
		vehicle := c.VehicleID
		if vehicle == "" {
			vehicle = "-"
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\tvehicle=%s\t%s\n",
			c.ID, with, vehicle, c.UpdatedAt.Local().Format("2006-01-02 15:04")); err != nil {
			return err
		}
	}
	return nil
}
