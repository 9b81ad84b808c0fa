package proxy

import (
	"context"
	"errors"
	"fmt"

	"interview-concierge/internal/metrics"
	"interview-concierge/internal/models"

	"go.uber.org/zap"
)

// Actions accepted on the proxy endpoint
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionList   = "list"
)

var (
	ErrTableRequired    = errors.New("table is required")
	ErrRecordIDRequired = errors.New("recordId is required for update")
	ErrPaginationLoop   = errors.New("upstream pagination did not terminate")
)

// UnknownActionError is returned for an action other than create/update/list
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return "Unknown action: " + e.Action
}

// Backend is a tabular store speaking the Airtable record model
type Backend interface {
	Create(ctx context.Context, table string, fields models.Fields) (*models.Record, error)
	Update(ctx context.Context, table, recordID string, fields models.Fields) (*models.Record, error)
	ListPage(ctx context.Context, table string, opts models.ListOptions, offset string) (*models.Page, error)
}

// Request is the JSON body of the proxy endpoint
type Request struct {
	Action      string              `json:"action"`
	Table       string              `json:"table"`
	RecordID    string              `json:"recordId,omitempty"`
	Fields      models.Fields       `json:"fields,omitempty"`
	ListOptions *models.ListOptions `json:"listOptions,omitempty"`
}

// CreateResponse is the create action reply
type CreateResponse struct {
	ID string `json:"id"`
}

// ListResponse is the list action reply
type ListResponse struct {
	Records []models.Record `json:"records"`
}

// Service forwards create/update/list to a backend and resolves
// pagination before answering.
type Service struct {
	backend  Backend
	maxPages int
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewService creates a proxy service. maxPages <= 0 disables the page cap.
func NewService(backend Backend, maxPages int, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		backend:  backend,
		maxPages: maxPages,
		metrics:  m,
		logger:   logger,
	}
}

// Create inserts a record and returns its id
func (s *Service) Create(ctx context.Context, table string, fields models.Fields) (string, error) {
	if table == "" {
		return "", ErrTableRequired
	}

	record, err := s.backend.Create(ctx, table, fields)
	if err != nil {
		return "", err
	}

	s.logger.Debug("Record created", zap.String("table", table), zap.String("id", record.ID))
	return record.ID, nil
}

// Update patches a record and returns it as stored
func (s *Service) Update(ctx context.Context, table, recordID string, fields models.Fields) (*models.Record, error) {
	if table == "" {
		return nil, ErrTableRequired
	}
	if recordID == "" {
		return nil, ErrRecordIDRequired
	}

	return s.backend.Update(ctx, table, recordID, fields)
}

// List returns every record of a table: all pages are fetched and
// concatenated in upstream order.
func (s *Service) List(ctx context.Context, table string, opts models.ListOptions) ([]models.Record, error) {
	if table == "" {
		return nil, ErrTableRequired
	}

	records := []models.Record{}
	seen := map[string]bool{}
	offset := ""

	for pages := 0; ; pages++ {
		if s.maxPages > 0 && pages >= s.maxPages {
			return nil, fmt.Errorf("%w: more than %d pages", ErrPaginationLoop, s.maxPages)
		}

		page, err := s.backend.ListPage(ctx, table, opts, offset)
		if err != nil {
			return nil, err
		}
		s.metrics.ListPage(table)

		records = append(records, page.Records...)

		if page.Offset == "" {
			break
		}
		if seen[page.Offset] {
			return nil, fmt.Errorf("%w: offset %q repeated", ErrPaginationLoop, page.Offset)
		}
		seen[page.Offset] = true
		offset = page.Offset
	}

	s.logger.Debug("Records listed", zap.String("table", table), zap.Int("count", len(records)))
	return records, nil
}

// Do dispatches a proxy request and returns the reply body
func (s *Service) Do(ctx context.Context, req Request) (interface{}, error) {
	switch req.Action {
	case ActionCreate:
		id, err := s.Create(ctx, req.Table, req.Fields)
		if err != nil {
			return nil, err
		}
		return CreateResponse{ID: id}, nil

	case ActionUpdate:
		return s.Update(ctx, req.Table, req.RecordID, req.Fields)

	case ActionList:
		var opts models.ListOptions
		if req.ListOptions != nil {
			opts = *req.ListOptions
		}
		records, err := s.List(ctx, req.Table, opts)
		if err != nil {
			return nil, err
		}
		return ListResponse{Records: records}, nil
	}

	return nil, &UnknownActionError{Action: req.Action}
}
