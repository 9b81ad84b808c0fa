package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
backend: sql
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "Interview Sessions", cfg.Tables.Sessions)
	assert.Equal(t, "Interview Responses", cfg.Tables.Responses)
	assert.Len(t, cfg.Interview.Questions, 4)
	assert.Equal(t, 250*time.Millisecond, cfg.Interview.TransitionDelay)
	assert.Equal(t, 2*time.Second, cfg.Interview.ThankYouDelay)
	assert.Equal(t, 24*time.Hour, cfg.Interview.StaleAfter)
	assert.Equal(t, 3*time.Second, cfg.Recap.PollInterval)
	assert.Equal(t, "memory", cfg.FlowStore.Type)
	assert.False(t, cfg.PasscodeEnabled())
}

func TestLoadConfigExpandsSecrets(t *testing.T) {
	t.Setenv("TEST_AIRTABLE_PAT", "pat-123")
	t.Setenv("TEST_AIRTABLE_BASE", "appXYZ")

	path := writeConfig(t, `
backend: airtable
airtable:
  base_id: ${TEST_AIRTABLE_BASE}
  token: ${TEST_AIRTABLE_PAT}
  requests_per_second: 2
interview:
  questions:
    - "What is broken?"
    - "What would good look like?"
  transition_delay: 500ms
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "pat-123", cfg.Airtable.Token)
	assert.Equal(t, "appXYZ", cfg.Airtable.BaseID)
	assert.Equal(t, 2.0, cfg.Airtable.RequestsPerSecond)
	assert.Equal(t, "https://api.airtable.com/v0", cfg.Airtable.BaseURL)
	assert.Equal(t, []string{"What is broken?", "What would good look like?"}, cfg.Interview.Questions)
	assert.Equal(t, 500*time.Millisecond, cfg.Interview.TransitionDelay)
}

func TestLoadConfigRequiresAirtableCredentials(t *testing.T) {
	path := writeConfig(t, `
backend: airtable
airtable:
  base_id: appXYZ
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AIRTABLE_PAT and AIRTABLE_BASE_ID must be set")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"unknown backend", "backend: mongo", "unsupported backend"},
		{"unknown database", "backend: sql\ndatabase:\n  type: mysql", "unsupported database type"},
		{"passcode without secret", "backend: sql\nauth:\n  passcode: airtable", "jwt_secret is required"},
		{"redis without url", "backend: sql\nflow_store:\n  type: redis", "redis_url is required"},
		{"blank question", "backend: sql\ninterview:\n  questions: [\"ok\", \"  \"]", "question 2 is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "debug"
	cfg.Logging.Development = true

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.Logging.Level = "loud"
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}

func TestEnricherSettings(t *testing.T) {
	path := writeConfig(t, `
backend: sql
enricher:
  api_key: key
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.EnricherEnabled())
	assert.Equal(t, "gemini-2.0-flash", cfg.Enricher.ModelName)
	assert.Equal(t, 15, cfg.Enricher.RequestsPerMinute)

	path = writeConfig(t, `
backend: sql
enricher:
  provider: groq
`)
	_, err = LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported enricher provider")
}

func TestFlowStoreEncryptionKey(t *testing.T) {
	path := writeConfig(t, `
backend: sql
flow_store:
  type: redis
  redis_url: redis://localhost:6379/0
  encryption_key: c2hvcnQ=
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid flow_store.encryption_key")
}
