package main

import (
	"fmt"
	"time"

	"interview-concierge/internal/admin"

	"github.com/spf13/cobra"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"s"},
		Short:   "List and abandon interview sessions",
	}

	cmd.AddCommand(
		sessionsListCmd(),
		sessionsAbandonCmd(),
	)

	return cmd
}

func sessionsListCmd() *cobra.Command {
	var staleAfter time.Duration

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := connect(ctx)
			if err != nil {
				return err
			}

			svc := admin.NewService(client, tables, staleAfter, time.Local, logger)
			sessions, err := svc.ListSessions(ctx)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), renderSessions(sessions))
			return nil
		},
	}

	cmd.Flags().DurationVar(&staleAfter, "stale-after", 24*time.Hour, "show sessions in progress for longer as abandoned")
	return cmd
}

func sessionsAbandonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abandon <session-record-id>",
		Short: "Mark a session in progress as abandoned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := connect(ctx)
			if err != nil {
				return err
			}

			svc := admin.NewService(client, tables, 24*time.Hour, time.Local, logger)
			session, err := svc.Abandon(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is now %s\n", okMark(), session.RecordID, badge(session.Status))
			return nil
		},
	}
}
