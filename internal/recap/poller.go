package recap

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is how often a recap is reloaded while waiting for
// the AI fields
const DefaultPollInterval = 3 * time.Second

// Poller reloads a recap snapshot at a fixed interval
type Poller struct {
	service  *Service
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller creates a poller. interval <= 0 uses DefaultPollInterval.
func NewPoller(service *Service, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		service:  service,
		interval: interval,
		logger:   logger,
	}
}

// Watch loads the snapshot immediately and then every interval, handing
// each one to fn. Failed polls are logged and skipped. It returns the
// context error once ctx is done, or nil after the first ready snapshot
// when untilReady is set.
func (p *Poller) Watch(ctx context.Context, sessionRecordID string, untilReady bool, fn func(*Snapshot)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		snap, err := p.service.Load(ctx, sessionRecordID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("Recap poll failed",
				zap.String("session_record_id", sessionRecordID),
				zap.Error(err))
		} else {
			fn(snap)
			if untilReady && snap.Ready {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
