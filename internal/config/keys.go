package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	envAlt  string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "LNSYNC_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "LNSYNC_SERVER_PORT", envAlt: "PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "linear.webhook_secret", typ: kString, env: "LINEAR_WEBHOOK_SECRET",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Linear.WebhookSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Linear.WebhookSecret },
	},
	{
		key: "linear.api_key", typ: kString, env: "LINEAR_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Linear.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Linear.APIKey },
	},
	{
		key: "linear.api_url", typ: kString, env: "LNSYNC_LINEAR_API_URL",
		apply:   func(cfg *Config, v any) { cfg.Linear.APIURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Linear.APIURL },
	},
	{
		key: "notion.api_key", typ: kString, env: "NOTION_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Notion.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Notion.APIKey },
	},
	{
		key: "notion.database_id", typ: kString, env: "NOTION_DATABASE_ID",
		apply:   func(cfg *Config, v any) { cfg.Notion.DatabaseID = v.(string) },
		extract: func(cfg Config) any { return cfg.Notion.DatabaseID },
	},
	{
		key: "notion.rollup_database_id", typ: kString, env: "NOTION_ROLLUP_DATABASE_ID",
		apply:   func(cfg *Config, v any) { cfg.Notion.RollupDatabaseID = v.(string) },
		extract: func(cfg Config) any { return cfg.Notion.RollupDatabaseID },
	},
	{
		key: "notion.api_url", typ: kString, env: "LNSYNC_NOTION_API_URL",
		apply:   func(cfg *Config, v any) { cfg.Notion.APIURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Notion.APIURL },
	},
	{
		key: "notion.version", typ: kString, env: "LNSYNC_NOTION_VERSION",
		apply:   func(cfg *Config, v any) { cfg.Notion.Version = v.(string) },
		extract: func(cfg Config) any { return cfg.Notion.Version },
	},
	{
		key: "notion.requests_per_second", typ: kFloat, env: "LNSYNC_NOTION_RPS",
		apply:   func(cfg *Config, v any) { cfg.Notion.RequestsPerSecond = v.(float64) },
		extract: func(cfg Config) any { return cfg.Notion.RequestsPerSecond },
	},
	{
		key: "oracle.provider", typ: kString, env: "LNSYNC_ORACLE_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Oracle.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.Provider },
	},
	{
		key: "oracle.api_key", typ: kString, env: "OPENAI_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Oracle.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.APIKey },
	},
	{
		key: "oracle.model", typ: kString, env: "OPENAI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Oracle.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.Model },
	},
	{
		key: "oracle.base_url", typ: kString, env: "LNSYNC_ORACLE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Oracle.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.BaseURL },
	},
	{
		key: "oracle.timeout", typ: kDuration, env: "LNSYNC_ORACLE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Oracle.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Oracle.Timeout },
	},
	{
		key: "storage.backend", typ: kString, env: "LNSYNC_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "LNSYNC_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "sync.namespace", typ: kString, env: "LNSYNC_SYNC_NAMESPACE",
		apply:   func(cfg *Config, v any) { cfg.Sync.Namespace = v.(string) },
		extract: func(cfg Config) any { return cfg.Sync.Namespace },
	},
	{
		key: "rollup.title", typ: kString, env: "LNSYNC_ROLLUP_TITLE",
		apply:   func(cfg *Config, v any) { cfg.Rollup.Title = v.(string) },
		extract: func(cfg Config) any { return cfg.Rollup.Title },
	},
	{
		key: "rollup.interval", typ: kDuration, env: "LNSYNC_ROLLUP_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Rollup.Interval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Rollup.Interval },
	},
	{
		key: "rollup.max_attempts", typ: kInt, env: "LNSYNC_ROLLUP_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Rollup.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Rollup.MaxAttempts },
	},
	{
		key: "rollup.backoff_unit", typ: kDuration, env: "LNSYNC_ROLLUP_BACKOFF_UNIT",
		apply:   func(cfg *Config, v any) { cfg.Rollup.BackoffUnit = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Rollup.BackoffUnit },
	},
	{
		key: "api.trigger_token", typ: kString, env: "LNSYNC_TRIGGER_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.API.TriggerToken = v.(string) },
		extract: func(cfg Config) any { return cfg.API.TriggerToken },
	},
	{
		key: "log.level", typ: kString, env: "LNSYNC_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw text to the Go type of s.
func (s keySpec) parseValue(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		default:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if !ok || v == "" {
				continue
			}
			parsed, err := s.parseValue(v)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, v, err)
				continue
			}
			s.apply(cfg, parsed)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := ""
		name := s.env
		if name != "" {
			raw = os.Getenv(name)
		}
		if raw == "" && s.envAlt != "" {
			name = s.envAlt
			raw = os.Getenv(name)
		}
		if raw == "" {
			continue
		}
		v, err := s.parseValue(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", name, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

// applySecrets fills secrets still empty after the environment pass from the
// keyring. A missing entry is not an error.
func applySecrets(cfg *Config, store secretStore) {
	if store == nil {
		return
	}
	for _, s := range specs {
		if !s.secret || s.extract(*cfg).(string) != "" {
			continue
		}
		if v, err := store.Get(s.key); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
