package main

import (
	"fmt"
	"time"

	"interview-concierge/internal/recap"

	"github.com/spf13/cobra"
)

func recapCmd() *cobra.Command {
	var (
		follow   bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "recap <session-record-id>",
		Short: "Show the recap of a session",
		Long: `Show the brief and cleaned answers of a session.

With --follow the recap is reloaded every interval until the brief and
all cleaned transcripts are available.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := connect(ctx)
			if err != nil {
				return err
			}

			svc := recap.NewService(client, tables, logger)
			out := cmd.OutOrStdout()

			if !follow {
				snap, err := svc.Load(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(out, renderRecap(snap))
				return nil
			}

			poller := recap.NewPoller(svc, interval, logger)
			return poller.Watch(ctx, args[0], true, func(snap *recap.Snapshot) {
				fmt.Fprint(out, renderRecap(snap))
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "poll until the recap is ready")
	cmd.Flags().DurationVar(&interval, "interval", recap.DefaultPollInterval, "poll interval with --follow")
	return cmd
}
