package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"interview-concierge/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotInProgress   = errors.New("only sessions in progress can be abandoned")
)

// DateLayout formats session start times
const DateLayout = "Jan 2, 2006 at 3:04 PM"

const noStatus = "—"

// Proxy is the subset of the proxy the admin view needs
type Proxy interface {
	List(ctx context.Context, table string, opts models.ListOptions) ([]models.Record, error)
	Update(ctx context.Context, table, recordID string, fields models.Fields) (*models.Record, error)
}

// Response is one answer summarised for the overview
type Response struct {
	RecordID       string         `json:"recordId"`
	QuestionNumber int            `json:"questionNumber"`
	Summary        models.AIField `json:"summary"`
	Sentiment      models.AIField `json:"sentiment"`
}

// Session is one row of the overview
type Session struct {
	RecordID          string         `json:"recordId"`
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	Status            string         `json:"status"`
	Badge             string         `json:"badge"`
	VisuallyAbandoned bool           `json:"visuallyAbandoned"`
	Dimmed            bool           `json:"dimmed"`
	CanAbandon        bool           `json:"canAbandon"`
	StartedAt         *time.Time     `json:"startedAt,omitempty"`
	StartedAtDisplay  string         `json:"startedAtDisplay,omitempty"`
	Brief             models.AIField `json:"brief"`
	Responses         []Response     `json:"responses"`
}

// Service builds the session overview
type Service struct {
	proxy      Proxy
	tables     models.Tables
	staleAfter time.Duration
	location   *time.Location
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates the admin service. Sessions still in progress after
// staleAfter are shown as abandoned. Dates are shown in loc, or the local
// zone when loc is nil.
func NewService(proxy Proxy, tables models.Tables, staleAfter time.Duration, loc *time.Location, logger *zap.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		proxy:      proxy,
		tables:     tables,
		staleAfter: staleAfter,
		location:   loc,
		logger:     logger,
		now:        time.Now,
	}
}

// ListSessions returns all sessions, newest first, with their responses
func (s *Service) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions, responses []models.Record

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := s.proxy.List(gctx, s.tables.Sessions, models.ListOptions{
			Fields: []string{
				models.FieldIntervieweeName,
				models.FieldEmail,
				models.FieldStatus,
				models.FieldInterviewBrief,
				models.FieldStartedAt,
			},
			Sort: []models.SortSpec{{Field: models.FieldStartedAt, Direction: "desc"}},
		})
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		sessions = recs
		return nil
	})
	g.Go(func() error {
		recs, err := s.proxy.List(gctx, s.tables.Responses, models.ListOptions{
			Fields: []string{
				models.FieldSession,
				models.FieldQuestionNumber,
				models.FieldOneLineSummary,
				models.FieldSentimentSignal,
			},
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

	bySession := make(map[string][]Response)
	for _, rec := range responses {
		resp := Response{
			RecordID:       rec.ID,
			QuestionNumber: rec.Fields.Int(models.FieldQuestionNumber),
			Summary:        rec.Fields.AIField(models.FieldOneLineSummary),
			Sentiment:      rec.Fields.AIField(models.FieldSentimentSignal),
		}
		for _, id := range rec.Fields.LinkedIDs(models.FieldSession) {
			bySession[id] = append(bySession[id], resp)
		}
	}

	now := s.now()
	out := make([]Session, 0, len(sessions))
	for _, rec := range sessions {
		session := s.buildSession(rec, now)
		session.Responses = bySession[rec.ID]
		if session.Responses == nil {
			session.Responses = []Response{}
		}
		sort.SliceStable(session.Responses, func(i, j int) bool {
			return session.Responses[i].QuestionNumber < session.Responses[j].QuestionNumber
		})
		out = append(out, session)
	}

	return out, nil
}

func (s *Service) buildSession(rec models.Record, now time.Time) Session {
	status := rec.Fields.String(models.FieldStatus)
	if status == "" {
		status = noStatus
	}

	session := Session{
		RecordID:   rec.ID,
		Name:       rec.Fields.String(models.FieldIntervieweeName),
		Email:      rec.Fields.String(models.FieldEmail),
		Status:     status,
		Badge:      status,
		CanAbandon: status == string(models.StatusInProgress),
		Brief:      rec.Fields.AIField(models.FieldInterviewBrief),
	}

	if started, ok := rec.Fields.Time(models.FieldStartedAt); ok {
		session.StartedAt = &started
		session.StartedAtDisplay = started.In(s.location).Format(DateLayout)
		if status == string(models.StatusInProgress) && now.Sub(started) > s.staleAfter {
			session.VisuallyAbandoned = true
			session.Badge = string(models.StatusAbandoned)
		}
	}

	session.Dimmed = session.VisuallyAbandoned || status == string(models.StatusAbandoned)
	return session
}

// Abandon marks a session that is still in progress as Abandoned
func (s *Service) Abandon(ctx context.Context, recordID string) (*Session, error) {
	sessions, err := s.proxy.List(ctx, s.tables.Sessions, models.ListOptions{
		Fields: []string{
			models.FieldIntervieweeName,
			models.FieldEmail,
			models.FieldStatus,
			models.FieldInterviewBrief,
			models.FieldStartedAt,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var current *models.Record
	for i := range sessions {
		if sessions[i].ID == recordID {
			current = &sessions[i]
			break
		}
	}
	if current == nil {
		return nil, ErrSessionNotFound
	}
	if current.Fields.String(models.FieldStatus) != string(models.StatusInProgress) {
		return nil, ErrNotInProgress
	}

	updated, err := s.proxy.Update(ctx, s.tables.Sessions, recordID, models.Fields{
		models.FieldStatus: string(models.StatusAbandoned),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session abandoned", zap.String("session_record_id", recordID))

	session := s.buildSession(*updated, s.now())
	session.Responses = []Response{}
	return &session, nil
}
