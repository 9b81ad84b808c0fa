package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"interview-concierge/internal/admin"
	"interview-concierge/internal/auth"
	"interview-concierge/internal/backend"
	"interview-concierge/internal/config"
	"interview-concierge/internal/crypto"
	"interview-concierge/internal/enricher"
	"interview-concierge/internal/gemini"
	"interview-concierge/internal/handler"
	"interview-concierge/internal/interview"
	"interview-concierge/internal/metrics"
	"interview-concierge/internal/proxy"
	"interview-concierge/internal/recap"
	"interview-concierge/internal/server"

	"github.com/gin-gonic/gin"
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

	logger.Info("Starting Interview Concierge...",
		zap.String("backend", cfg.Backend),
		zap.String("flow_store", cfg.FlowStore.Type))

	m := metrics.New()

	records, closer, err := backend.Open(cfg, m, logger)
	if err != nil {
		logger.Fatal("Failed to initialize record backend", zap.Error(err))
	}
	defer closer.Close()

	proxySvc := proxy.NewService(records, cfg.Airtable.MaxPages, m, logger)
	recaps := recap.NewService(proxySvc, cfg.Tables, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var flows interview.Store
	switch cfg.FlowStore.Type {
	case "redis":
		redisStore, err := interview.NewRedisStore(ctx, cfg.FlowStore.RedisURL, cfg.FlowStore.TTL)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer redisStore.Close()
		if cfg.FlowStore.EncryptionKey != "" {
			key, err := crypto.ParseKey(cfg.FlowStore.EncryptionKey)
			if err != nil {
				logger.Fatal("Invalid flow store encryption key", zap.Error(err))
			}
			redisStore.SetEncryptionKey(key)
		}
		flows = redisStore
	default:
		flows = interview.NewMemoryStore(cfg.FlowStore.TTL)
	}

	interviews := interview.NewService(interview.Settings{
		Questions:       cfg.Interview.Questions,
		TransitionDelay: cfg.Interview.TransitionDelay,
		ThankYouDelay:   cfg.Interview.ThankYouDelay,
		Tables:          cfg.Tables,
		FlowTTL:         cfg.FlowStore.TTL,
	}, proxySvc, recaps, flows, m, logger)

	var loc *time.Location
	if cfg.Admin.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Admin.Timezone)
		if err != nil {
			logger.Fatal("Invalid admin timezone", zap.Error(err))
		}
	}
	adminSvc := admin.NewService(proxySvc, cfg.Tables, cfg.Interview.StaleAfter, loc, logger)

	gate := auth.NewService(auth.Config{
		Passcode:     cfg.Auth.Passcode,
		PasscodeHash: cfg.Auth.PasscodeHash,
		JWTSecret:    cfg.Auth.JWTSecret,
		TokenTTL:     cfg.Auth.TokenTTL,
	}, logger)
	if !gate.Enabled() {
		logger.Warn("No passcode configured, API is open")
	}

	if cfg.EnricherEnabled() {
		geminiClient, err := gemini.NewClient(gemini.Config{
			APIKey:    cfg.Enricher.APIKey,
			ModelName: cfg.Enricher.ModelName,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Gemini client", zap.Error(err))
		}
		provider := enricher.NewRateLimitedProvider(geminiClient, cfg.Enricher.RequestsPerMinute, logger)
		defer provider.Close()

		worker := enricher.New(proxySvc, provider, cfg.Tables, cfg.Enricher.Interval, m, logger)
		go worker.Run(ctx)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	poller := recap.NewPoller(recaps, cfg.Recap.PollInterval, logger)
	apiHandler := handler.NewHandler(proxySvc, interviews, recaps, poller, adminSvc, gate, m, logger)
	srv := server.NewServer(fmt.Sprintf(":%s", cfg.Server.Port), cfg.Server.AllowedOrigin, apiHandler, gate, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Interview Concierge is running",
		zap.String("port", cfg.Server.Port),
		zap.Int("questions", len(cfg.Interview.Questions)),
		zap.Bool("enricher", cfg.EnricherEnabled()))

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
