// Package config loads tallyd settings from the environment and optional
// .env files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/xraph/tally"
)

// Config is the daemon configuration.
type Config struct {
	Env  string
	Port string

	// BasePath prefixes the HTTP routes.
	BasePath string
	// MetricsPath serves Prometheus metrics; empty disables it.
	MetricsPath string

	// DatabaseURL selects the pgx store; empty runs on the memory store.
	DatabaseURL string

	KafkaBrokers []string
	KafkaTopic   string

	AppID         string
	Administrator string
	InitialPrice  string
	Currency      string
	TreasuryMode  string
	StrictPricing bool

	// APIKeys maps SHA-256 hex digests of API keys to principals.
	APIKeys map[string]string

	ShutdownTimeout time.Duration
}

// Load reads the given .env files (".env" when none are named) and then the
// process environment. Variables already set in the environment win over
// file values. A missing .env file is not an error.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		slog.Warn("no .env file loaded, relying on environment variables", "error", err)
	}

	cfg := &Config{
		Env:           getEnv("ENV", "development"),
		Port:          getEnv("PORT", "8080"),
		BasePath:      getEnv("TALLY_BASE_PATH", "/tally"),
		MetricsPath:   getEnv("TALLY_METRICS_PATH", "/metrics"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		KafkaBrokers:  splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "tally.events"),
		AppID:         getEnv("TALLY_APP_ID", tally.DefaultAppID),
		Administrator: getEnv("TALLY_ADMINISTRATOR", ""),
		InitialPrice:  getEnv("TALLY_INITIAL_PRICE", "0.01"),
		Currency:      getEnv("TALLY_CURRENCY", "eth"),
		TreasuryMode:  getEnv("TALLY_TREASURY_MODE", string(tally.TreasuryDrain)),
	}

	var errs tally.MultiError

	strict, err := strconv.ParseBool(getEnv("TALLY_STRICT_PRICING", "false"))
	if err != nil {
		errs.Add(fmt.Errorf("%w: TALLY_STRICT_PRICING: %w", tally.ErrInvalidConfig, err))
	}
	cfg.StrictPricing = strict

	timeout, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		errs.Add(fmt.Errorf("%w: SHUTDOWN_TIMEOUT: %w", tally.ErrInvalidConfig, err))
	}
	cfg.ShutdownTimeout = timeout

	keys, err := parseAPIKeys(getEnv("TALLY_API_KEYS", ""))
	if err != nil {
		errs.Add(err)
	}
	cfg.APIKeys = keys

	if cfg.Administrator == "" {
		errs.Add(fmt.Errorf("%w: TALLY_ADMINISTRATOR is required", tally.ErrInvalidConfig))
	}

	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether ENV is "production".
func (c *Config) IsProduction() bool { return c.Env == "production" }

// parseAPIKeys parses "digest=principal" pairs separated by commas.
func parseAPIKeys(raw string) (map[string]string, error) {
	keys := make(map[string]string)
	for _, pair := range splitList(raw) {
		digest, principal, ok := strings.Cut(pair, "=")
		digest, principal = strings.TrimSpace(digest), strings.TrimSpace(principal)
		if !ok || digest == "" || principal == "" {
			return nil, fmt.Errorf("%w: TALLY_API_KEYS entry %q is not digest=principal", tally.ErrInvalidConfig, pair)
		}
		keys[strings.ToLower(digest)] = principal
	}
	return keys, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv returns the variable or fallback when it is unset.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// ErrMissingFile is returned by MustExist when a named .env file is absent.
var ErrMissingFile = errors.New("config: file not found")

// MustExist checks that every named file exists. tallyd calls it for files
// passed explicitly on the command line, where a typo should not be silent.
func MustExist(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("%w: %s", ErrMissingFile, f)
		}
	}
	return nil
}
