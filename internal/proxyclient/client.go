package proxyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"interview-concierge/internal/models"
	"interview-concierge/internal/proxy"

	"go.uber.org/zap"
)

// Error is a non-2xx reply from the proxy
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("proxy error (%d): %s", e.StatusCode, e.Body)
}

// Client talks to the concierge proxy endpoint
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a proxy client for the server at baseURL
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SetToken sets the bearer token sent with every request
func (c *Client) SetToken(token string) {
	c.token = token
}

// Login exchanges the passcode for a token and keeps it for later calls
func (c *Client) Login(ctx context.Context, passcode string) (time.Time, error) {
	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := c.post(ctx, "/api/auth/passcode", map[string]string{"passcode": passcode}, &resp); err != nil {
		return time.Time{}, err
	}
	c.token = resp.Token
	return resp.ExpiresAt, nil
}

// Create creates a record and returns its id
func (c *Client) Create(ctx context.Context, table string, fields models.Fields) (string, error) {
	var resp proxy.CreateResponse
	err := c.post(ctx, "/api/airtable", proxy.Request{
		Action: proxy.ActionCreate,
		Table:  table,
		Fields: fields,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Update patches a record and returns it
func (c *Client) Update(ctx context.Context, table, recordID string, fields models.Fields) (*models.Record, error) {
	var record models.Record
	err := c.post(ctx, "/api/airtable", proxy.Request{
		Action:   proxy.ActionUpdate,
		Table:    table,
		RecordID: recordID,
		Fields:   fields,
	}, &record)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns all records of a table
func (c *Client) List(ctx context.Context, table string, opts models.ListOptions) ([]models.Record, error) {
	var resp proxy.ListResponse
	err := c.post(ctx, "/api/airtable", proxy.Request{
		Action:      proxy.ActionList,
		Table:       table,
		ListOptions: &opts,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Ping checks the health endpoint
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send health check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("Proxy request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return &Error{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
