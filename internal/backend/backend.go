package backend

import (
	"fmt"
	"io"

	"interview-concierge/internal/airtable"
	"interview-concierge/internal/config"
	"interview-concierge/internal/metrics"
	"interview-concierge/internal/proxy"
	"interview-concierge/internal/sqlstore"

	"go.uber.org/zap"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the record backend selected by cfg.Backend. The closer
// releases its resources.
func Open(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (proxy.Backend, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendAirtable:
		client, err := airtable.NewClient(airtable.Config{
			BaseURL:           cfg.Airtable.BaseURL,
			BaseID:            cfg.Airtable.BaseID,
			Token:             cfg.Airtable.Token,
			Timeout:           cfg.Airtable.Timeout,
			RequestsPerSecond: cfg.Airtable.RequestsPerSecond,
			PageSize:          cfg.Airtable.PageSize,
		}, m, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create airtable client: %w", err)
		}
		return client, nopCloser{}, nil

	case config.BackendSQL:
		store, err := sqlstore.Open(sqlstore.Config{
			Driver: cfg.Database.Type,
			DSN:    cfg.Database.Path,
			Tables: []string{cfg.Tables.Sessions, cfg.Tables.Responses},
		}, m, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open record store: %w", err)
		}
		return store, store, nil
	}

	return nil, nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
}
