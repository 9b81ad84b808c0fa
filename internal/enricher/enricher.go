package enricher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"interview-concierge/internal/metrics"
	"interview-concierge/internal/models"

	"go.uber.org/zap"
)

// Store is the subset of the proxy the enricher reads and writes through
type Store interface {
	List(ctx context.Context, table string, opts models.ListOptions) ([]models.Record, error)
	Update(ctx context.Context, table, recordID string, fields models.Fields) (*models.Record, error)
}

var responseFields = []string{
	models.FieldCleanedTranscript,
	models.FieldOneLineSummary,
	models.FieldSentimentSignal,
}

// Stats counts the work done by one pass
type Stats struct {
	Responses int
	Briefs    int
	Failed    int
}

// Enricher fills AI columns of the local table store
type Enricher struct {
	store    Store
	provider Provider
	tables   models.Tables
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New creates an enricher that polls every interval
func New(store Store, provider Provider, tables models.Tables, interval time.Duration, m *metrics.Metrics, logger *zap.Logger) *Enricher {
	return &Enricher{
		store:    store,
		provider: provider,
		tables:   tables,
		interval: interval,
		metrics:  m,
		logger:   logger,
	}
}

// Run enriches until ctx is cancelled
func (e *Enricher) Run(ctx context.Context) error {
	if err := e.ResetStuck(ctx); err != nil {
		e.logger.Warn("Failed to reset stuck fields", zap.Error(err))
	}

	e.logger.Info("Enricher started", zap.Duration("interval", e.interval))

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		if _, err := e.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error("Enrichment pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			e.logger.Info("Enricher stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ResetStuck clears fields left in the loading state by an interrupted run
func (e *Enricher) ResetStuck(ctx context.Context) error {
	responses, err := e.store.List(ctx, e.tables.Responses, models.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list responses: %w", err)
	}
	for _, rec := range responses {
		if isLoading(rec.Fields, models.FieldCleanedTranscript) {
			if _, err := e.store.Update(ctx, e.tables.Responses, rec.ID, clearFields(responseFields...)); err != nil {
				return fmt.Errorf("failed to reset response %s: %w", rec.ID, err)
			}
		}
	}

	sessions, err := e.store.List(ctx, e.tables.Sessions, models.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, rec := range sessions {
		if isLoading(rec.Fields, models.FieldInterviewBrief) {
			if _, err := e.store.Update(ctx, e.tables.Sessions, rec.ID, clearFields(models.FieldInterviewBrief)); err != nil {
				return fmt.Errorf("failed to reset session %s: %w", rec.ID, err)
			}
		}
	}
	return nil
}

// RunOnce enriches every pending response, then every complete session
// whose answers are all cleaned
func (e *Enricher) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats

	responses, err := e.store.List(ctx, e.tables.Responses, models.ListOptions{})
	if err != nil {
		return stats, fmt.Errorf("failed to list responses: %w", err)
	}

	for i := range responses {
		rec := &responses[i]
		if rec.Fields.AIField(models.FieldCleanedTranscript).State != models.AIPending {
			continue
		}
		if strings.TrimSpace(rec.Fields.String(models.FieldRawTranscript)) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		updated, err := e.enrichResponse(ctx, *rec)
		if err != nil {
			stats.Failed++
			e.logger.Error("Failed to enrich response",
				zap.String("record_id", rec.ID),
				zap.Error(err))
			continue
		}
		*rec = *updated
		stats.Responses++
	}

	sessions, err := e.store.List(ctx, e.tables.Sessions, models.ListOptions{})
	if err != nil {
		return stats, fmt.Errorf("failed to list sessions: %w", err)
	}

	for _, session := range sessions {
		if session.Fields.String(models.FieldStatus) != string(models.StatusComplete) {
			continue
		}
		if session.Fields.AIField(models.FieldInterviewBrief).State != models.AIPending {
			continue
		}

		answers, ok := cleanedAnswers(session.ID, responses)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if err := e.writeBrief(ctx, session.ID, answers); err != nil {
			stats.Failed++
			e.logger.Error("Failed to write brief",
				zap.String("session_record_id", session.ID),
				zap.Error(err))
			continue
		}
		stats.Briefs++
	}

	if stats.Responses > 0 || stats.Briefs > 0 || stats.Failed > 0 {
		e.logger.Info("Enrichment pass completed",
			zap.Int("responses", stats.Responses),
			zap.Int("briefs", stats.Briefs),
			zap.Int("failed", stats.Failed))
	}
	return stats, nil
}

func (e *Enricher) enrichResponse(ctx context.Context, rec models.Record) (*models.Record, error) {
	loading := models.Fields{}
	for _, f := range responseFields {
		loading[f] = models.GeneratingValue()
	}
	if _, err := e.store.Update(ctx, e.tables.Responses, rec.ID, loading); err != nil {
		return nil, fmt.Errorf("failed to mark response loading: %w", err)
	}

	insights, err := e.provider.EnrichResponse(ctx,
		rec.Fields.String(models.FieldQuestionText),
		rec.Fields.String(models.FieldRawTranscript))
	if err != nil {
		e.revert(e.tables.Responses, rec.ID, responseFields...)
		return nil, err
	}

	updated, err := e.store.Update(ctx, e.tables.Responses, rec.ID, models.Fields{
		models.FieldCleanedTranscript: models.GeneratedValue(insights.CleanedTranscript),
		models.FieldOneLineSummary:    models.GeneratedValue(insights.OneLineSummary),
		models.FieldSentimentSignal:   models.GeneratedValue(insights.SentimentSignal),
	})
	if err != nil {
		e.revert(e.tables.Responses, rec.ID, responseFields...)
		return nil, fmt.Errorf("failed to write insights: %w", err)
	}

	for _, f := range responseFields {
		e.metrics.FieldEnriched(f)
	}
	return updated, nil
}

func (e *Enricher) writeBrief(ctx context.Context, sessionRecordID string, answers []models.QA) error {
	if _, err := e.store.Update(ctx, e.tables.Sessions, sessionRecordID, models.Fields{
		models.FieldInterviewBrief: models.GeneratingValue(),
	}); err != nil {
		return fmt.Errorf("failed to mark brief loading: %w", err)
	}

	brief, err := e.provider.Brief(ctx, answers)
	if err != nil {
		e.revert(e.tables.Sessions, sessionRecordID, models.FieldInterviewBrief)
		return err
	}

	if _, err := e.store.Update(ctx, e.tables.Sessions, sessionRecordID, models.Fields{
		models.FieldInterviewBrief: models.GeneratedValue(brief),
	}); err != nil {
		e.revert(e.tables.Sessions, sessionRecordID, models.FieldInterviewBrief)
		return fmt.Errorf("failed to write brief: %w", err)
	}

	e.metrics.FieldEnriched(models.FieldInterviewBrief)
	return nil
}

// revert clears fields so the next pass retries them. It must succeed
// even when the pass context is already cancelled.
func (e *Enricher) revert(table, recordID string, fields ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.store.Update(ctx, table, recordID, clearFields(fields...)); err != nil {
		e.logger.Warn("Failed to clear loading fields",
			zap.String("table", table),
			zap.String("record_id", recordID),
			zap.Error(err))
	}
}

func cleanedAnswers(sessionRecordID string, responses []models.Record) ([]models.QA, bool) {
	var answers []models.QA
	for _, rec := range responses {
		if !rec.Fields.LinksTo(models.FieldSession, sessionRecordID) {
			continue
		}
		cleaned := rec.Fields.AIField(models.FieldCleanedTranscript)
		if !cleaned.Ready() {
			return nil, false
		}
		answers = append(answers, models.QA{
			Number:   rec.Fields.Int(models.FieldQuestionNumber),
			Question: rec.Fields.String(models.FieldQuestionText),
			Answer:   cleaned.Value,
		})
	}
	if len(answers) == 0 {
		return nil, false
	}
	sort.SliceStable(answers, func(i, j int) bool { return answers[i].Number < answers[j].Number })
	return answers, true
}

func isLoading(f models.Fields, name string) bool {
	field := f.AIField(name)
	return field.State == models.AIGenerating && field.RawState == "loading"
}

func clearFields(names ...string) models.Fields {
	fields := make(models.Fields, len(names))
	for _, n := range names {
		fields[n] = nil
	}
	return fields
}
