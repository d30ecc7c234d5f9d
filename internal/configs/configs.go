/*
Package configs is responsible for loading and parsing the application's configuration settings.

Settings are read from an optional .env file in the working directory and from the
operating system environment, which takes precedence. They describe the backend
endpoint and session, the realtime provider endpoints and the client-side request policy.
*/
package configs

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig contains all configuration parameters required for the client to run.
type AppConfig struct {
	// General Settings
	Environment string
	LogLevel    string

	// Backend Settings
	APIBaseURL      string
	SessionToken    string
	LocalUserID     string
	RequestTimeout  time.Duration
	RequestRate     float64
	RequestBurst    int
	OutgoingPerPage int

	// Realtime Provider Settings
	ProviderAPIKey   string
	ChatProviderURL  string
	VideoProviderURL string

	// AppOrigin is the public origin used when sharing call links.
	AppOrigin string
}

// IsDevelopment reports whether the client runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig reads and validates the configuration from .env and the environment.
func LoadConfig() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// A missing .env file is fine; the environment alone may carry everything.
	_ = v.ReadInConfig()

	return load(v)
}

func load(v *viper.Viper) (*AppConfig, error) {
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("REQUEST_RATE", 5.0)
	v.SetDefault("REQUEST_BURST", 10)
	v.SetDefault("OUTGOING_PAGE_SIZE", 6)
	v.SetDefault("CHAT_PROVIDER_URL", "ws://localhost:8081/chat")
	v.SetDefault("VIDEO_PROVIDER_URL", "ws://localhost:8081/video")
	v.SetDefault("APP_ORIGIN", "http://localhost:5173")

	cfg := &AppConfig{
		Environment:      v.GetString("ENVIRONMENT"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		APIBaseURL:       strings.TrimRight(v.GetString("API_BASE_URL"), "/"),
		SessionToken:     v.GetString("API_SESSION_TOKEN"),
		LocalUserID:      v.GetString("LOCAL_USER_ID"),
		RequestTimeout:   v.GetDuration("REQUEST_TIMEOUT"),
		RequestRate:      v.GetFloat64("REQUEST_RATE"),
		RequestBurst:     v.GetInt("REQUEST_BURST"),
		OutgoingPerPage:  v.GetInt("OUTGOING_PAGE_SIZE"),
		ProviderAPIKey:   v.GetString("GETSTREAMIO_API_KEY"),
		ChatProviderURL:  v.GetString("CHAT_PROVIDER_URL"),
		VideoProviderURL: v.GetString("VIDEO_PROVIDER_URL"),
		AppOrigin:        strings.TrimRight(v.GetString("APP_ORIGIN"), "/"),
	}

	switch cfg.Environment {
	case "development", "staging", "production":
	default:
		return nil, fmt.Errorf("invalid ENVIRONMENT %q: must be one of development, staging, production", cfg.Environment)
	}

	// --- Backend Settings ---
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL environment variable is required")
	}
	if err := checkURL("API_BASE_URL", cfg.APIBaseURL, "http", "https"); err != nil {
		return nil, err
	}

	if cfg.SessionToken == "" && !cfg.IsDevelopment() {
		return nil, fmt.Errorf("API_SESSION_TOKEN environment variable is required in %s environment", cfg.Environment)
	}

	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be a positive duration, got %s", cfg.RequestTimeout)
	}

	if cfg.RequestBurst < 1 {
		return nil, fmt.Errorf("REQUEST_BURST must be at least 1, got %d", cfg.RequestBurst)
	}

	if cfg.OutgoingPerPage < 1 || cfg.OutgoingPerPage > 100 {
		return nil, fmt.Errorf("OUTGOING_PAGE_SIZE %d is outside the allowed range (1-100)", cfg.OutgoingPerPage)
	}

	// --- Realtime Provider Settings ---
	if cfg.ProviderAPIKey == "" {
		return nil, fmt.Errorf("GETSTREAMIO_API_KEY environment variable is required for provider connections")
	}
	if err := checkURL("CHAT_PROVIDER_URL", cfg.ChatProviderURL, "ws", "wss"); err != nil {
		return nil, err
	}
	if err := checkURL("VIDEO_PROVIDER_URL", cfg.VideoProviderURL, "ws", "wss"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func checkURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q: expected a %s URL", name, raw, strings.Join(schemes, "/"))
}
