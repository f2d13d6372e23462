package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where calbook stores its local calendar
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// Timezone is the display timezone (default: Asia/Kolkata)
	Timezone string

	// Calendar backend
	Backend               string // CALBOOK_BACKEND: "local" or "google" (default: local)
	GoogleCredentialsFile string // CALBOOK_GOOGLE_CREDENTIALS_FILE: service account JSON
	GoogleCalendarID      string // CALBOOK_GOOGLE_CALENDAR_ID (default: primary)

	// Oracle
	OracleProvider string // CALBOOK_ORACLE_PROVIDER: "openai" or "rule" (default: rule)
	OracleAPIKey   string // CALBOOK_ORACLE_API_KEY
	OracleBaseURL  string // CALBOOK_ORACLE_BASE_URL (default: https://api.openai.com/v1)
	OracleModel    string // CALBOOK_ORACLE_MODEL (default: gpt-4o-mini)

	// Infrastructure
	RedisAddr string // CALBOOK_REDIS_ADDR: enables the shared oracle cache
	JWTSecret string // CALBOOK_JWT_SECRET: enables bearer auth on the API

	// Tuning
	BackendTimeout     time.Duration // CALBOOK_BACKEND_TIMEOUT (default: 30s)
	RetryBackoff       time.Duration // CALBOOK_RETRY_BACKOFF (default: 500ms)
	SessionIdleTimeout time.Duration // CALBOOK_SESSION_IDLE_TIMEOUT (default: 30m)
	EvictionSchedule   string        // CALBOOK_EVICTION_SCHEDULE cron spec (default: @every 5m)
	HistoryLimit       int           // CALBOOK_HISTORY_LIMIT (default: 20)
	RateLimit          float64       // CALBOOK_RATE_LIMIT requests per second per conversation (default: 5)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// UsesGoogle reports whether events live in Google Calendar rather than the local store.
func (p *Profile) UsesGoogle() bool {
	return p.Backend == "google"
}

// UsesLLM reports whether the LLM oracle is configured.
func (p *Profile) UsesLLM() bool {
	return p.OracleProvider == "openai" && p.OracleAPIKey != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return d
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return n
}

// FromEnv loads configuration from CALBOOK_* environment variables. Fields
// already set (for example from flags) are kept when the variable is unset.
func (p *Profile) FromEnv() {
	keep := func(cur, key, def string) string {
		if cur != "" {
			return getEnvOrDefault(key, cur)
		}
		return getEnvOrDefault(key, def)
	}

	p.Timezone = keep(p.Timezone, "CALBOOK_TIMEZONE", "Asia/Kolkata")
	p.Backend = keep(p.Backend, "CALBOOK_BACKEND", "local")
	p.GoogleCredentialsFile = keep(p.GoogleCredentialsFile, "CALBOOK_GOOGLE_CREDENTIALS_FILE", "")
	p.GoogleCalendarID = keep(p.GoogleCalendarID, "CALBOOK_GOOGLE_CALENDAR_ID", "primary")

	p.OracleProvider = keep(p.OracleProvider, "CALBOOK_ORACLE_PROVIDER", "rule")
	p.OracleAPIKey = keep(p.OracleAPIKey, "CALBOOK_ORACLE_API_KEY", "")
	p.OracleBaseURL = keep(p.OracleBaseURL, "CALBOOK_ORACLE_BASE_URL", "https://api.openai.com/v1")
	p.OracleModel = keep(p.OracleModel, "CALBOOK_ORACLE_MODEL", "gpt-4o-mini")

	p.RedisAddr = keep(p.RedisAddr, "CALBOOK_REDIS_ADDR", "")
	p.JWTSecret = keep(p.JWTSecret, "CALBOOK_JWT_SECRET", "")
	p.EvictionSchedule = keep(p.EvictionSchedule, "CALBOOK_EVICTION_SCHEDULE", "@every 5m")

	p.BackendTimeout = getDurationEnv("CALBOOK_BACKEND_TIMEOUT", orDuration(p.BackendTimeout, 30*time.Second))
	p.RetryBackoff = getDurationEnv("CALBOOK_RETRY_BACKOFF", orDuration(p.RetryBackoff, 500*time.Millisecond))
	p.SessionIdleTimeout = getDurationEnv("CALBOOK_SESSION_IDLE_TIMEOUT", orDuration(p.SessionIdleTimeout, 30*time.Minute))
	p.HistoryLimit = getIntEnv("CALBOOK_HISTORY_LIMIT", orInt(p.HistoryLimit, 20))

	p.RateLimit = 5
	if v := os.Getenv("CALBOOK_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			p.RateLimit = f
		}
	}
}

func orDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "calbook")
		} else {
			p.Data = "/var/opt/calbook"
		}
		if _, err := os.Stat(p.Data); os.IsNotExist(err) {
			if err := os.MkdirAll(p.Data, 0770); err != nil {
				slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
				return err
			}
		}
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q: only sqlite and postgres are supported", p.Driver)
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("calbook_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a DSN")
	}

	switch p.Backend {
	case "", "local":
		p.Backend = "local"
	case "google":
		if p.GoogleCredentialsFile == "" {
			return errors.New("google backend requires CALBOOK_GOOGLE_CREDENTIALS_FILE")
		}
	default:
		return errors.Errorf("unknown calendar backend %q", p.Backend)
	}

	if p.OracleProvider == "openai" && p.OracleAPIKey == "" {
		slog.Warn("openai oracle selected without an API key, falling back to the rule oracle")
		p.OracleProvider = "rule"
	}
	return nil
}
