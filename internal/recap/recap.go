package recap

import (
	"context"
	"fmt"
	"sort"
	"time"

	"interview-concierge/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Lister returns every record of a table
type Lister interface {
	List(ctx context.Context, table string, opts models.ListOptions) ([]models.Record, error)
}

// Answer is one response as shown on the recap screen
type Answer struct {
	RecordID          string         `json:"recordId"`
	QuestionNumber    int            `json:"questionNumber"`
	QuestionText      string         `json:"questionText"`
	CleanedTranscript models.AIField `json:"cleanedTranscript"`
}

// Snapshot is the recap state of one session at a point in time
type Snapshot struct {
	SessionRecordID string         `json:"sessionRecordId"`
	Found           bool           `json:"found"`
	Brief           models.AIField `json:"brief"`
	SendEmails      bool           `json:"sendEmails"`
	OtherEmails     string         `json:"otherEmails,omitempty"`
	Answers         []Answer       `json:"answers"`
	Ready           bool           `json:"ready"`
	LoadedAt        time.Time      `json:"loadedAt"`
}

// Service loads recap snapshots through the proxy
type Service struct {
	lister Lister
	tables models.Tables
	logger *zap.Logger
}

// NewService creates a recap service
func NewService(lister Lister, tables models.Tables, logger *zap.Logger) *Service {
	return &Service{
		lister: lister,
		tables: tables,
		logger: logger,
	}
}

// Load lists sessions and responses concurrently and assembles the
// snapshot of one session. Answers are ordered by question number.
func (s *Service) Load(ctx context.Context, sessionRecordID string) (*Snapshot, error) {
	var sessions, responses []models.Record

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := s.lister.List(gctx, s.tables.Sessions, models.ListOptions{
			Fields: []string{models.FieldInterviewBrief, models.FieldSendEmails, models.FieldOtherEmails},
		})
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		sessions = recs
		return nil
	})
	g.Go(func() error {
		recs, err := s.lister.List(gctx, s.tables.Responses, models.ListOptions{
			Fields: []string{models.FieldSession, models.FieldQuestionNumber, models.FieldQuestionText, models.FieldCleanedTranscript},
		})
		if err != nil {
			return fmt.Errorf("failed to list responses: %w", err)
		}
		responses = recs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		SessionRecordID: sessionRecordID,
		Answers:         []Answer{},
		LoadedAt:        time.Now().UTC(),
	}

	for _, rec := range sessions {
		if rec.ID != sessionRecordID {
			continue
		}
		snap.Found = true
		snap.Brief = rec.Fields.AIField(models.FieldInterviewBrief)
		snap.SendEmails = rec.Fields.Bool(models.FieldSendEmails)
		snap.OtherEmails = rec.Fields.String(models.FieldOtherEmails)
		break
	}

	for _, rec := range responses {
		if !rec.Fields.LinksTo(models.FieldSession, sessionRecordID) {
			continue
		}
		snap.Answers = append(snap.Answers, Answer{
			RecordID:          rec.ID,
			QuestionNumber:    rec.Fields.Int(models.FieldQuestionNumber),
			QuestionText:      rec.Fields.String(models.FieldQuestionText),
			CleanedTranscript: rec.Fields.AIField(models.FieldCleanedTranscript),
		})
	}
	sort.SliceStable(snap.Answers, func(i, j int) bool {
		return snap.Answers[i].QuestionNumber < snap.Answers[j].QuestionNumber
	})

	snap.Ready = snap.Brief.Ready()
	for _, a := range snap.Answers {
		if !a.CleanedTranscript.Ready() {
			snap.Ready = false
		}
	}

	return snap, nil
}

// BriefReady reports whether the session's interview brief has a value
func (s *Service) BriefReady(ctx context.Context, sessionRecordID string) (bool, error) {
	snap, err := s.Load(ctx, sessionRecordID)
	if err != nil {
		return false, err
	}
	return snap.Brief.Ready(), nil
}
