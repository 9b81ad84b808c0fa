package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"interview-concierge/internal/backend"
	"interview-concierge/internal/config"
	"interview-concierge/internal/enricher"
	"interview-concierge/internal/gemini"
	"interview-concierge/internal/proxy"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Backend != config.BackendSQL {
		logger.Fatal("Enricher only runs against the sql backend", zap.String("backend", cfg.Backend))
	}
	if cfg.Enricher.APIKey == "" {
		logger.Fatal("Enricher API key not configured. Set enricher.api_key in the config or its environment variable")
	}

	records, closer, err := backend.Open(cfg, nil, logger)
	if err != nil {
		logger.Fatal("Failed to initialize record backend", zap.Error(err))
	}
	defer closer.Close()

	geminiClient, err := gemini.NewClient(gemini.Config{
		APIKey:    cfg.Enricher.APIKey,
		ModelName: cfg.Enricher.ModelName,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Gemini client", zap.Error(err))
	}
	provider := enricher.NewRateLimitedProvider(geminiClient, cfg.Enricher.RequestsPerMinute, logger)
	defer provider.Close()

	proxySvc := proxy.NewService(records, 0, nil, logger)
	worker := enricher.New(proxySvc, provider, cfg.Tables, cfg.Enricher.Interval, nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Enricher stopped with error", zap.Error(err))
	}
}
