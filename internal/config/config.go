// Package config loads service configuration from the environment, with an
// optional dotenv file in the user's config directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AppName     = "rewear"
	EnvFileName = "config.env"
)

// requiredVars must be set for the service to start.
var requiredVars = []string{
	"GEMINI_API_KEY",
	"MARKET_CLIENT_ID",
	"MARKET_CLIENT_SECRET",
	"REWEAR_TOKEN_KEY",
}

// Config is the resolved service configuration.
type Config struct {
	ListenAddr     string
	DBPath         string
	TokenKey       string
	GeminiAPIKey   string
	MarketBaseURL  string
	MarketClientID string
	MarketSecret   string
	RedirectURI    string
	RequestTimeout time.Duration
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory, then from a local .env. Errors are ignored since the
// files may not exist.
func LoadEnvFile() {
	if configBase, err := os.UserConfigDir(); err == nil {
		_ = godotenv.Load(filepath.Join(configBase, AppName, EnvFileName))
	}
	_ = godotenv.Load()
}

// Missing returns the names of required variables that are not set.
func Missing() []string {
	var missing []string
	for _, name := range requiredVars {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// FromEnv builds a Config from the environment. It fails listing every
// missing required variable at once.
func FromEnv() (*Config, error) {
	if missing := Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	cfg := &Config{
		ListenAddr:     envOr("REWEAR_LISTEN_ADDR", ":8080"),
		DBPath:         envOr("REWEAR_DB_PATH", "rewear.db"),
		TokenKey:       os.Getenv("REWEAR_TOKEN_KEY"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		MarketBaseURL:  os.Getenv("MARKET_BASE_URL"),
		MarketClientID: os.Getenv("MARKET_CLIENT_ID"),
		MarketSecret:   os.Getenv("MARKET_CLIENT_SECRET"),
		RedirectURI:    envOr("MARKET_REDIRECT_URI", "http://localhost:8080/api/auth/callback"),
		RequestTimeout: 15 * time.Second,
	}
	return cfg, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
