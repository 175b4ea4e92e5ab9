package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreSQLite   = "sqlite"
	StoreJSONFile = "jsonfile"
)

type APSConfig struct {
	ClientID           string
	ClientSecret       string
	BaseURL            string
	Scopes             string
	Region             string
	TokenRefreshMargin time.Duration
}

type PollConfig struct {
	Tick           time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	MaxAttempts    int
	Concurrency    int
	JobMaxDuration time.Duration
	LeaseTTL       time.Duration
}

type Config struct {
	Port        int
	Domain      string
	DataDir     string
	StoreDriver string
	LogLevel    string
	BehindProxy bool

	AuthSecret       string
	AuthUsername     string
	AuthPasswordHash string

	APS            APSConfig
	WebhookSecret  string
	GatewayTimeout time.Duration

	Poll PollConfig

	OrphanAfter     time.Duration
	OrphanSweepCron string
	SubscriberQueue int
}

// Load reads ./.env when present, then the environment.
func Load() (*Config, error) {
	return LoadWithEnvFile(".env")
}

// LoadWithEnvFile reads envFile (if it exists) without overriding variables
// already set, then builds the Config. Every invalid or missing value is
// reported, not just the first.
func LoadWithEnvFile(envFile string) (*Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	l := &loader{}
	cfg := &Config{
		Port:        l.int("PORT", 7890),
		Domain:      getEnv("DOMAIN", "localhost:7890"),
		DataDir:     getEnv("DATA_DIR", "/data"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreSQLite)),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		BehindProxy: l.bool("BEHIND_PROXY", false),

		AuthSecret:       l.required("AUTH_SECRET"),
		AuthUsername:     getEnv("AUTH_USERNAME", "admin"),
		AuthPasswordHash: l.required("AUTH_PASSWORD_HASH"),

		APS: APSConfig{
			ClientID:           l.required("APS_CLIENT_ID"),
			ClientSecret:       l.required("APS_CLIENT_SECRET"),
			BaseURL:            getEnv("APS_BASE_URL", "https://developer.api.autodesk.com"),
			Scopes:             getEnv("APS_SCOPES", "data:read data:write data:create"),
			Region:             getEnv("APS_REGION", "US"),
			TokenRefreshMargin: l.duration("TOKEN_REFRESH_MARGIN", 5*time.Minute),
		},
		WebhookSecret:  l.required("WEBHOOK_SECRET"),
		GatewayTimeout: l.duration("GATEWAY_TIMEOUT", 20*time.Second),

		Poll: PollConfig{
			Tick:           l.duration("POLL_TICK", time.Second),
			BackoffBase:    l.duration("POLL_BACKOFF_BASE", 2*time.Second),
			BackoffMax:     l.duration("POLL_BACKOFF_MAX", 60*time.Second),
			MaxAttempts:    l.int("POLL_MAX_ATTEMPTS", 5),
			Concurrency:    l.int("POLL_CONCURRENCY", 4),
			JobMaxDuration: l.duration("JOB_MAX_DURATION", 30*time.Minute),
			LeaseTTL:       l.duration("LEASE_TTL", 30*time.Second),
		},

		OrphanAfter:     l.duration("ORPHAN_AFTER", 5*time.Minute),
		OrphanSweepCron: getEnv("ORPHAN_SWEEP_CRON", "@every 1m"),
		SubscriberQueue: l.int("SUBSCRIBER_QUEUE", 16),
	}

	switch cfg.StoreDriver {
	case StoreSQLite, StoreJSONFile:
	default:
		l.fail("STORE_DRIVER", fmt.Errorf("unknown driver %q (want %s or %s)", cfg.StoreDriver, StoreSQLite, StoreJSONFile))
	}
	if cfg.Poll.BackoffMax < cfg.Poll.BackoffBase {
		l.fail("POLL_BACKOFF_MAX", errors.New("must not be below POLL_BACKOFF_BASE"))
	}
	for key, v := range map[string]int{"POLL_MAX_ATTEMPTS": cfg.Poll.MaxAttempts, "POLL_CONCURRENCY": cfg.Poll.Concurrency} {
		if v < 1 {
			l.fail(key, errors.New("must be at least 1"))
		}
	}

	if err := errors.Join(l.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type loader struct {
	errs []error
}

func (l *loader) fail(key string, err error) {
	l.errs = append(l.errs, fmt.Errorf("invalid %s: %w", key, err))
}

func (l *loader) required(key string) string {
	v := os.Getenv(key)
	if v == "" {
		l.errs = append(l.errs, fmt.Errorf("%s is required", key))
	}
	return v
}

func (l *loader) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		l.fail(key, err)
		return def
	}
	return n
}

func (l *loader) bool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		l.fail(key, err)
		return def
	}
	return b
}

// A zero duration is allowed; JOB_MAX_DURATION=0 disables the job timeout.
func (l *loader) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		l.fail(key, err)
		return def
	}
	if d < 0 {
		l.fail(key, errors.New("must not be negative"))
		return def
	}
	return d
}
