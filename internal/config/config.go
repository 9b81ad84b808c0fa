package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"interview-concierge/internal/crypto"
	"interview-concierge/internal/models"
	"interview-concierge/internal/recap"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend types
const (
	BackendAirtable = "airtable"
	BackendSQL      = "sql"
)

// DefaultQuestions is the interview asked when the config lists none.
var DefaultQuestions = []string{
	"Walk me through the biggest operational headache your team is dealing with right now — what breaks down, and how often?",
	"Have you used or evaluated Airtable before — and if so, what was that experience like?",
	"Where does your team's data live today, and who needs to touch it to get work done?",
	"If we got this right, what would be different about how your team works six months from now?",
}

// Config holds application configuration
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigin   string        `yaml:"allowed_origin"`
	} `yaml:"server"`

	Logging struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"logging"`

	// Backend selects where the proxy forwards: "airtable" or "sql"
	Backend string `yaml:"backend"`

	Airtable struct {
		BaseURL           string        `yaml:"base_url"`
		BaseID            string        `yaml:"base_id"`
		Token             string        `yaml:"token"`
		Timeout           time.Duration `yaml:"timeout"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		PageSize          int           `yaml:"page_size"`
		MaxPages          int           `yaml:"max_pages"`
	} `yaml:"airtable"`

	Database struct {
		Type string `yaml:"type"` // "sqlite" or "postgres"
		Path string `yaml:"path"` // SQLite path or PostgreSQL URL
	} `yaml:"database"`

	Tables models.Tables `yaml:"tables"`

	Interview struct {
		Questions       []string      `yaml:"questions"`
		TransitionDelay time.Duration `yaml:"transition_delay"`
		ThankYouDelay   time.Duration `yaml:"thank_you_delay"`
		StaleAfter      time.Duration `yaml:"stale_after"`
	} `yaml:"interview"`

	Admin struct {
		Timezone string `yaml:"timezone"` // IANA name for displayed dates, empty for local
	} `yaml:"admin"`

	Recap struct {
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"recap"`

	Auth struct {
		Passcode     string        `yaml:"passcode"`
		PasscodeHash string        `yaml:"passcode_hash"` // bcrypt or argon2id
		JWTSecret    string        `yaml:"jwt_secret"`
		TokenTTL     time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	FlowStore struct {
		Type          string        `yaml:"type"` // "memory" or "redis"
		RedisURL      string        `yaml:"redis_url"`
		TTL           time.Duration `yaml:"ttl"`
		EncryptionKey string        `yaml:"encryption_key"` // base64 AES-256 key, redis only
	} `yaml:"flow_store"`

	Enricher struct {
		Provider          string        `yaml:"provider"`
		APIKey            string        `yaml:"api_key"`
		ModelName         string        `yaml:"model_name"`
		Interval          time.Duration `yaml:"interval"`
		RequestsPerMinute int           `yaml:"requests_per_minute"`
	} `yaml:"enricher"`
}

// Path returns the config file location, overridable via CONCIERGE_CONFIG.
func Path() string {
	if p := os.Getenv("CONCIERGE_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yml"
}

// LoadConfig loads configuration from YAML file. A .env file next to the
// working directory is loaded first when present.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	config := &Config{}
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.expandEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) expandEnv() {
	c.Airtable.BaseID = os.ExpandEnv(c.Airtable.BaseID)
	c.Airtable.Token = os.ExpandEnv(c.Airtable.Token)
	c.Database.Path = os.ExpandEnv(c.Database.Path)
	c.Auth.Passcode = os.ExpandEnv(c.Auth.Passcode)
	c.Auth.PasscodeHash = os.ExpandEnv(c.Auth.PasscodeHash)
	c.Auth.JWTSecret = os.ExpandEnv(c.Auth.JWTSecret)
	c.FlowStore.RedisURL = os.ExpandEnv(c.FlowStore.RedisURL)
	c.FlowStore.EncryptionKey = os.ExpandEnv(c.FlowStore.EncryptionKey)
	c.Enricher.APIKey = os.ExpandEnv(c.Enricher.APIKey)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}
	if c.Server.AllowedOrigin == "" {
		c.Server.AllowedOrigin = "*"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Backend == "" {
		c.Backend = BackendAirtable
	}

	if c.Airtable.BaseURL == "" {
		c.Airtable.BaseURL = "https://api.airtable.com/v0"
	}
	if c.Airtable.Timeout == 0 {
		c.Airtable.Timeout = 30 * time.Second
	}
	if c.Airtable.RequestsPerSecond == 0 {
		c.Airtable.RequestsPerSecond = 5
	}
	if c.Airtable.MaxPages == 0 {
		c.Airtable.MaxPages = 1000
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/concierge.db"
	}

	if c.Tables.Sessions == "" {
		c.Tables.Sessions = models.SessionsTable
	}
	if c.Tables.Responses == "" {
		c.Tables.Responses = models.ResponsesTable
	}

	if len(c.Interview.Questions) == 0 {
		c.Interview.Questions = append([]string(nil), DefaultQuestions...)
	}
	if c.Interview.TransitionDelay == 0 {
		c.Interview.TransitionDelay = 250 * time.Millisecond
	}
	if c.Interview.ThankYouDelay == 0 {
		c.Interview.ThankYouDelay = 2 * time.Second
	}
	if c.Interview.StaleAfter == 0 {
		c.Interview.StaleAfter = 24 * time.Hour
	}

	if c.Recap.PollInterval == 0 {
		c.Recap.PollInterval = recap.DefaultPollInterval
	}

	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 12 * time.Hour
	}

	if c.FlowStore.Type == "" {
		c.FlowStore.Type = "memory"
	}
	if c.FlowStore.TTL == 0 {
		c.FlowStore.TTL = 24 * time.Hour
	}

	if c.Enricher.Provider == "" {
		c.Enricher.Provider = "gemini"
	}
	if c.Enricher.ModelName == "" {
		c.Enricher.ModelName = "gemini-2.0-flash"
	}
	if c.Enricher.Interval == 0 {
		c.Enricher.Interval = 5 * time.Second
	}
	if c.Enricher.RequestsPerMinute == 0 {
		c.Enricher.RequestsPerMinute = 15
	}
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAirtable:
		if c.Airtable.Token == "" || c.Airtable.BaseID == "" {
			return fmt.Errorf("server not configured: AIRTABLE_PAT and AIRTABLE_BASE_ID must be set")
		}
	case BackendSQL:
		if c.Database.Type != "sqlite" && c.Database.Type != "postgres" {
			return fmt.Errorf("unsupported database type %q", c.Database.Type)
		}
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}

	for i, q := range c.Interview.Questions {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("interview question %d is empty", i+1)
		}
	}

	if (c.Auth.Passcode != "" || c.Auth.PasscodeHash != "") && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when a passcode is configured")
	}

	if c.Admin.Timezone != "" {
		if _, err := time.LoadLocation(c.Admin.Timezone); err != nil {
			return fmt.Errorf("invalid admin.timezone: %w", err)
		}
	}

	if c.FlowStore.Type != "memory" && c.FlowStore.Type != "redis" {
		return fmt.Errorf("unsupported flow store %q", c.FlowStore.Type)
	}
	if c.FlowStore.Type == "redis" && c.FlowStore.RedisURL == "" {
		return fmt.Errorf("flow_store.redis_url is required for the redis flow store")
	}
	if c.FlowStore.EncryptionKey != "" {
		if _, err := crypto.ParseKey(c.FlowStore.EncryptionKey); err != nil {
			return fmt.Errorf("invalid flow_store.encryption_key: %w", err)
		}
	}

	if c.Enricher.Provider != "gemini" {
		return fmt.Errorf("unsupported enricher provider %q", c.Enricher.Provider)
	}

	return nil
}

// EnricherEnabled reports whether the server should fill AI fields itself.
// Only the local SQL backend is enriched; Airtable computes its own.
func (c *Config) EnricherEnabled() bool {
	return c.Backend == BackendSQL && c.Enricher.APIKey != ""
}

// PasscodeEnabled reports whether the API is gated.
func (c *Config) PasscodeEnabled() bool {
	return c.Auth.Passcode != "" || c.Auth.PasscodeHash != ""
}
