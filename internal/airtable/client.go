package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"interview-concierge/internal/metrics"
	"interview-concierge/internal/models"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const backendName = "airtable"

// Config for the Airtable REST client
type Config struct {
	BaseURL           string // Default: "https://api.airtable.com/v0"
	BaseID            string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64 // Airtable allows 5 per base
	PageSize          int     // 0 leaves the upstream default (100)
}

// Client talks to the Airtable REST API for one base
type Client struct {
	baseURL    string
	baseID     string
	token      string
	pageSize   int
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewClient creates a new Airtable client
func NewClient(cfg Config, m *metrics.Metrics, logger *zap.Logger) (*Client, error) {
	if cfg.Token == "" || cfg.BaseID == "" {
		return nil, fmt.Errorf("airtable token and base id are required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.airtable.com/v0"
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	logger.Info("Airtable client initialized",
		zap.String("base_id", cfg.BaseID),
		zap.Float64("requests_per_second", cfg.RequestsPerSecond))

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		baseID:   cfg.BaseID,
		token:    cfg.Token,
		pageSize: cfg.PageSize,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		metrics: m,
		logger:  logger,
	}, nil
}

type fieldsBody struct {
	Fields models.Fields `json:"fields"`
}

// Create inserts a record and returns it as stored upstream
func (c *Client) Create(ctx context.Context, table string, fields models.Fields) (*models.Record, error) {
	var record models.Record
	if err := c.do(ctx, "create", http.MethodPost, c.tableURL(table), fieldsBody{Fields: fields}, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Update patches the given fields of a record; other fields are untouched
func (c *Client) Update(ctx context.Context, table, recordID string, fields models.Fields) (*models.Record, error) {
	endpoint := c.tableURL(table) + "/" + url.PathEscape(recordID)

	var record models.Record
	if err := c.do(ctx, "update", http.MethodPatch, endpoint, fieldsBody{Fields: fields}, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListPage fetches a single page. Pass the previous page's offset to continue.
func (c *Client) ListPage(ctx context.Context, table string, opts models.ListOptions, offset string) (*models.Page, error) {
	query := url.Values{}
	for _, f := range opts.Fields {
		query.Add("fields[]", f)
	}
	for i, s := range opts.Sort {
		direction := s.Direction
		if direction == "" {
			direction = "asc"
		}
		query.Add(fmt.Sprintf("sort[%d][field]", i), s.Field)
		query.Add(fmt.Sprintf("sort[%d][direction]", i), direction)
	}

	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = c.pageSize
	}
	if pageSize > 0 {
		query.Set("pageSize", strconv.Itoa(pageSize))
	}
	if offset != "" {
		query.Set("offset", offset)
	}

	endpoint := c.tableURL(table)
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var page models.Page
	if err := c.do(ctx, "list", http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) tableURL(table string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.baseID), url.PathEscape(table))
}

func (c *Client) do(ctx context.Context, operation, method, endpoint string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream(backendName, operation, 0, started)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.ObserveUpstream(backendName, operation, resp.StatusCode, started)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Airtable request failed",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode))
		return &models.UpstreamError{StatusCode: resp.StatusCode, Body: respBody}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
