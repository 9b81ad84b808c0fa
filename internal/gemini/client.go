package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"interview-concierge/internal/models"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Client wraps the Gemini API client
type Client struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	logger     *zap.Logger
	modelName  string
	maxRetries int
	retryDelay time.Duration
}

// Config for Gemini client
type Config struct {
	APIKey     string
	ModelName  string // Default: "gemini-2.0-flash"
	MaxRetries int
	RetryDelay time.Duration
}

// NewClient creates a new Gemini client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "gemini-2.0-flash"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.ModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SystemInstruction)},
	}
	model.ResponseMIMEType = "application/json"
	model.GenerationConfig.Temperature = genai.Ptr[float32](0.2)
	model.GenerationConfig.TopP = genai.Ptr[float32](0.9)
	model.GenerationConfig.MaxOutputTokens = genai.Ptr[int32](1024)

	logger.Info("Gemini client initialized",
		zap.String("model", cfg.ModelName),
		zap.Int("max_retries", cfg.MaxRetries))

	return &Client{
		client:     client,
		model:      model,
		logger:     logger,
		modelName:  cfg.ModelName,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// Close closes the Gemini client
func (c *Client) Close() error {
	return c.client.Close()
}

// EnrichResponse cleans one answer and derives its summary and sentiment
func (c *Client) EnrichResponse(ctx context.Context, question, transcript string) (*models.ResponseInsights, error) {
	var result models.ResponseInsights
	err := c.generate(ctx, BuildResponsePrompt(question, transcript), &result, func() error {
		if strings.TrimSpace(result.CleanedTranscript) == "" {
			return fmt.Errorf("empty cleaned transcript")
		}
		if !models.IsSentiment(result.SentimentSignal) {
			return fmt.Errorf("invalid sentiment: %q", result.SentimentSignal)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Brief writes the interview brief from all cleaned answers
func (c *Client) Brief(ctx context.Context, answers []models.QA) (string, error) {
	var result struct {
		Brief string `json:"brief"`
	}
	err := c.generate(ctx, BuildBriefPrompt(answers), &result, func() error {
		if strings.TrimSpace(result.Brief) == "" {
			return fmt.Errorf("empty brief")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return result.Brief, nil
}

// ModelInfo describes the configured model
func (c *Client) ModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"provider":    "gemini",
		"model":       c.modelName,
		"max_retries": c.maxRetries,
		"retry_delay": c.retryDelay.String(),
	}
}

func (c *Client) generate(ctx context.Context, prompt string, out interface{}, validate func() error) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying Gemini request",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", c.maxRetries))
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			lastErr = fmt.Errorf("gemini API error: %w", err)
			c.logger.Error("Gemini API error", zap.Error(err), zap.Int("attempt", attempt+1))
			continue
		}

		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			lastErr = fmt.Errorf("empty response from gemini")
			c.logger.Error("Empty response from Gemini", zap.Int("attempt", attempt+1))
			continue
		}

		textPart, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
		if !ok {
			lastErr = fmt.Errorf("unexpected response type from gemini")
			c.logger.Error("Unexpected response type", zap.Int("attempt", attempt+1))
			continue
		}

		cleanJSON := StripCodeFence(string(textPart))
		if err := json.Unmarshal([]byte(cleanJSON), out); err != nil {
			lastErr = fmt.Errorf("failed to parse gemini response: %w", err)
			c.logger.Error("Failed to parse JSON response",
				zap.Error(err),
				zap.String("cleaned_response", cleanJSON),
				zap.Int("attempt", attempt+1))
			continue
		}

		if err := validate(); err != nil {
			lastErr = err
			c.logger.Error("Invalid Gemini response", zap.Error(err), zap.Int("attempt", attempt+1))
			continue
		}

		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}

// StripCodeFence removes a markdown code block around a JSON reply.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
