package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"interview-concierge/internal/models"
	"interview-concierge/internal/proxyclient"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serverURL string
	passcode  string
	timeout   time.Duration
	noColor   bool
	tables    = models.DefaultTables()
	logger    = zap.NewNop()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conciergectl",
		Short: "Inspect and manage interview sessions",
		Long: `conciergectl talks to a running concierge server through its proxy endpoint.

Examples:
  conciergectl sessions list
  conciergectl sessions abandon recXXXXXXXXXXXXXX
  conciergectl recap recXXXXXXXXXXXXXX --follow
  conciergectl passcode hash
  conciergectl keygen`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setColor(noColor)
		},
	}

	cmd.PersistentFlags().StringVar(&serverURL, "server", envOr("CONCIERGE_URL", "http://localhost:8080"), "concierge server URL")
	cmd.PersistentFlags().StringVar(&passcode, "passcode", os.Getenv("CONCIERGE_PASSCODE"), "passcode for a gated server")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().StringVar(&tables.Sessions, "sessions-table", tables.Sessions, "sessions table name")
	cmd.PersistentFlags().StringVar(&tables.Responses, "responses-table", tables.Responses, "responses table name")

	cmd.AddCommand(
		sessionsCmd(),
		recapCmd(),
		passcodeCmd(),
		keygenCmd(),
	)

	return cmd
}

// connect returns a proxy client, logged in when a passcode is given
func connect(ctx context.Context) (*proxyclient.Client, error) {
	client := proxyclient.NewClient(serverURL, timeout, logger)
	if passcode == "" {
		return client, nil
	}
	if _, err := client.Login(ctx, passcode); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return client, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
