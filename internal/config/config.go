package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Linear  LinearConfig
	Notion  NotionConfig
	Oracle  OracleConfig
	Storage StorageConfig
	Sync    SyncConfig
	Rollup  RollupConfig
	API     APIConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type LinearConfig struct {
	WebhookSecret string
	APIKey        string
	APIURL        string
}

type NotionConfig struct {
	APIKey            string
	DatabaseID        string
	RollupDatabaseID  string
	APIURL            string
	Version           string
	RequestsPerSecond float64
}

type OracleConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

type StorageConfig struct {
	Backend string
	DataDir string
}

type SyncConfig struct {
	Namespace string
}

type RollupConfig struct {
	Title       string
	Interval    time.Duration
	MaxAttempts int
	BackoffUnit time.Duration
}

type APIConfig struct {
	TriggerToken string
}

type LogConfig struct {
	Level string
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RollupDatabase is the database rollup pages are written to.
func (c Config) RollupDatabase() string {
	if c.Notion.RollupDatabaseID != "" {
		return c.Notion.RollupDatabaseID
	}
	return c.Notion.DatabaseID
}

const (
	BackendNotion = "notion"
	BackendSQLite = "sqlite"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Linear: LinearConfig{
			APIURL: "https://api.linear.app/graphql",
		},
		Notion: NotionConfig{
			APIURL:            "https://api.notion.com/v1",
			Version:           "2022-06-28",
			RequestsPerSecond: 3,
		},
		Oracle: OracleConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  30 * time.Second,
		},
		Storage: StorageConfig{
			Backend: BackendNotion,
			DataDir: defaultDataDir(),
		},
		Sync: SyncConfig{
			Namespace: "linear-update-id",
		},
		Rollup: RollupConfig{
			Title:       "Weekly Update",
			Interval:    time.Hour,
			MaxAttempts: 3,
			BackoffUnit: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file, environment variables,
// and the OS keyring.
//
// The file lives at $XDG_CONFIG_HOME/lnsync/config.json. Environment
// variables override file values. Secrets are never read from the file:
// they come from their environment variable or, failing that, the keyring.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), keyringStore{})
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field rules. An openai oracle without a key is
// downgraded to provider none rather than rejected.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendNotion:
		if c.Notion.APIKey == "" {
			errs = append(errs, errors.New("notion.api_key is required for the notion backend (set NOTION_API_KEY)"))
		}
		if c.Notion.DatabaseID == "" {
			errs = append(errs, errors.New("notion.database_id is required for the notion backend (set NOTION_DATABASE_ID)"))
		}
	case BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q (want notion or sqlite)", c.Storage.Backend))
	}

	switch c.Oracle.Provider {
	case "openai":
		if c.Oracle.APIKey == "" {
			slog.Warn("oracle.api_key is not set, content will use the fallback converter")
			c.Oracle.Provider = "none"
		}
	case "ollama", "none":
	default:
		errs = append(errs, fmt.Errorf("oracle.provider: unknown provider %q (want openai, ollama or none)", c.Oracle.Provider))
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d is out of range", c.Server.Port))
	}
	if c.Notion.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("notion.requests_per_second must be positive"))
	}

	return errors.Join(errs...)
}

// ParseLevel maps log.level to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level: unknown level %q", s)
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "lnsync-data"
		}
	}
	return filepath.Join(dir, "lnsync")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "lnsync", "config.json")
}
