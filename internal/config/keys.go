package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

// account is the secret store account name for the key.
func (s keySpec) account() string {
	return strings.ReplaceAll(s.key, ".", "_")
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "BOLLA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "BOLLA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "BOLLA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.file", typ: kString, env: "BOLLA_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
	{
		key: "log.max_size_mb", typ: kInt, env: "BOLLA_LOG_MAX_SIZE_MB",
		apply:   func(cfg *Config, v any) { cfg.Log.MaxSizeMB = v.(int) },
		extract: func(cfg Config) any { return cfg.Log.MaxSizeMB },
	},
	{
		key: "log.max_age_days", typ: kInt, env: "BOLLA_LOG_MAX_AGE_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Log.MaxAgeDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Log.MaxAgeDays },
	},
	{
		key: "log.max_backups", typ: kInt, env: "BOLLA_LOG_MAX_BACKUPS",
		apply:   func(cfg *Config, v any) { cfg.Log.MaxBackups = v.(int) },
		extract: func(cfg Config) any { return cfg.Log.MaxBackups },
	},
	{
		key: "ollama.url", typ: kString, env: "BOLLA_OLLAMA_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.URL },
	},
	{
		key: "ollama.model", typ: kString, env: "BOLLA_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "ollama.timeout", typ: kDuration, env: "BOLLA_OLLAMA_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Ollama.Timeout },
	},
	{
		key: "ollama.attempts", typ: kInt, env: "BOLLA_OLLAMA_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Attempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Ollama.Attempts },
	},
	{
		key: "ollama.min_interval", typ: kDuration, env: "BOLLA_OLLAMA_MIN_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.MinInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Ollama.MinInterval },
	},
	{
		key: "ollama.max_tokens", typ: kInt, env: "BOLLA_OLLAMA_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Ollama.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Ollama.MaxTokens },
	},
	{
		key: "ollama.fallback", typ: kString, env: "BOLLA_OLLAMA_FALLBACK",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Fallback = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Fallback },
	},
	{
		key: "anthropic.url", typ: kString, env: "BOLLA_ANTHROPIC_URL",
		apply:   func(cfg *Config, v any) { cfg.Anthropic.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Anthropic.URL },
	},
	{
		key: "anthropic.model", typ: kString, env: "BOLLA_ANTHROPIC_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Anthropic.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Anthropic.Model },
	},
	{
		key: "anthropic.timeout", typ: kDuration, env: "BOLLA_ANTHROPIC_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Anthropic.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Anthropic.Timeout },
	},
	{
		key: "anthropic.attempts", typ: kInt, env: "BOLLA_ANTHROPIC_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Anthropic.Attempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Anthropic.Attempts },
	},
	{
		key: "anthropic.min_interval", typ: kDuration, env: "BOLLA_ANTHROPIC_MIN_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Anthropic.MinInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Anthropic.MinInterval },
	},
	{
		key: "anthropic.max_tokens", typ: kInt, env: "BOLLA_ANTHROPIC_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Anthropic.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Anthropic.MaxTokens },
	},
	{
		key: "anthropic.api_key", typ: kString, env: "BOLLA_ANTHROPIC_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Anthropic.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Anthropic.APIKey },
	},
	{
		key: "grok.url", typ: kString, env: "BOLLA_GROK_URL",
		apply:   func(cfg *Config, v any) { cfg.Grok.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Grok.URL },
	},
	{
		key: "grok.model", typ: kString, env: "BOLLA_GROK_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Grok.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Grok.Model },
	},
	{
		key: "grok.timeout", typ: kDuration, env: "BOLLA_GROK_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Grok.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Grok.Timeout },
	},
	{
		key: "grok.attempts", typ: kInt, env: "BOLLA_GROK_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Grok.Attempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Grok.Attempts },
	},
	{
		key: "grok.min_interval", typ: kDuration, env: "BOLLA_GROK_MIN_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Grok.MinInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Grok.MinInterval },
	},
	{
		key: "grok.max_tokens", typ: kInt, env: "BOLLA_GROK_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Grok.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Grok.MaxTokens },
	},
	{
		key: "grok.api_key", typ: kString, env: "BOLLA_GROK_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Grok.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Grok.APIKey },
	},
	{
		key: "router.chain_simple", typ: kString, env: "BOLLA_ROUTER_CHAIN_SIMPLE",
		apply:   func(cfg *Config, v any) { cfg.Router.ChainSimple = v.(string) },
		extract: func(cfg Config) any { return cfg.Router.ChainSimple },
	},
	{
		key: "router.chain_medium", typ: kString, env: "BOLLA_ROUTER_CHAIN_MEDIUM",
		apply:   func(cfg *Config, v any) { cfg.Router.ChainMedium = v.(string) },
		extract: func(cfg Config) any { return cfg.Router.ChainMedium },
	},
	{
		key: "router.chain_complex", typ: kString, env: "BOLLA_ROUTER_CHAIN_COMPLEX",
		apply:   func(cfg *Config, v any) { cfg.Router.ChainComplex = v.(string) },
		extract: func(cfg Config) any { return cfg.Router.ChainComplex },
	},
	{
		key: "router.force_local", typ: kBool, env: "BOLLA_ROUTER_FORCE_LOCAL",
		apply:   func(cfg *Config, v any) { cfg.Router.ForceLocal = v.(bool) },
		extract: func(cfg Config) any { return cfg.Router.ForceLocal },
	},
	{
		key: "router.local_backend", typ: kString, env: "BOLLA_ROUTER_LOCAL_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Router.LocalBackend = v.(string) },
		extract: func(cfg Config) any { return cfg.Router.LocalBackend },
	},
	{
		key: "router.default_tier", typ: kString, env: "BOLLA_ROUTER_DEFAULT_TIER",
		apply:   func(cfg *Config, v any) { cfg.Router.DefaultTier = v.(string) },
		extract: func(cfg Config) any { return cfg.Router.DefaultTier },
	},
	{
		key: "retry.base_delay", typ: kDuration, env: "BOLLA_RETRY_BASE_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Retry.BaseDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Retry.BaseDelay },
	},
	{
		key: "retry.max_delay", typ: kDuration, env: "BOLLA_RETRY_MAX_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Retry.MaxDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Retry.MaxDelay },
	},
	{
		key: "retry.jitter_percent", typ: kInt, env: "BOLLA_RETRY_JITTER_PERCENT",
		apply:   func(cfg *Config, v any) { cfg.Retry.JitterPercent = v.(int) },
		extract: func(cfg Config) any { return cfg.Retry.JitterPercent },
	},
	{
		key: "memory.short_term_size", typ: kInt, env: "BOLLA_MEMORY_SHORT_TERM_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Memory.ShortTermSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Memory.ShortTermSize },
	},
	{
		key: "memory.top_memories", typ: kInt, env: "BOLLA_MEMORY_TOP_MEMORIES",
		apply:   func(cfg *Config, v any) { cfg.Memory.TopMemories = v.(int) },
		extract: func(cfg Config) any { return cfg.Memory.TopMemories },
	},
	{
		key: "memory.auto_remember", typ: kBool, env: "BOLLA_MEMORY_AUTO_REMEMBER",
		apply:   func(cfg *Config, v any) { cfg.Memory.AutoRemember = v.(bool) },
		extract: func(cfg Config) any { return cfg.Memory.AutoRemember },
	},
	{
		key: "maintenance.cleanup_enabled", typ: kBool, env: "BOLLA_MAINTENANCE_CLEANUP_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Maintenance.CleanupEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Maintenance.CleanupEnabled },
	},
	{
		key: "maintenance.cleanup_schedule", typ: kString, env: "BOLLA_MAINTENANCE_CLEANUP_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Maintenance.CleanupSchedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Maintenance.CleanupSchedule },
	},
	{
		key: "maintenance.cleanup_retention", typ: kDuration, env: "BOLLA_MAINTENANCE_CLEANUP_RETENTION",
		apply:   func(cfg *Config, v any) { cfg.Maintenance.CleanupRetention = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Maintenance.CleanupRetention },
	},
	{
		key: "maintenance.cleanup_threshold", typ: kFloat, env: "BOLLA_MAINTENANCE_CLEANUP_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Maintenance.CleanupThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Maintenance.CleanupThreshold },
	},
	{
		key: "maintenance.backup_enabled", typ: kBool, env: "BOLLA_MAINTENANCE_BACKUP_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Maintenance.BackupEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Maintenance.BackupEnabled },
	},
	{
		key: "maintenance.backup_schedule", typ: kString, env: "BOLLA_MAINTENANCE_BACKUP_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Maintenance.BackupSchedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Maintenance.BackupSchedule },
	},
	{
		key: "maintenance.backup_retention", typ: kDuration, env: "BOLLA_MAINTENANCE_BACKUP_RETENTION",
		apply:   func(cfg *Config, v any) { cfg.Maintenance.BackupRetention = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Maintenance.BackupRetention },
	},
	{
		key: "maintenance.health_enabled", typ: kBool, env: "BOLLA_MAINTENANCE_HEALTH_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Maintenance.HealthEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Maintenance.HealthEnabled },
	},
	{
		key: "maintenance.health_schedule", typ: kString, env: "BOLLA_MAINTENANCE_HEALTH_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Maintenance.HealthSchedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Maintenance.HealthSchedule },
	},
	{
		key: "maintenance.health_timeout", typ: kDuration, env: "BOLLA_MAINTENANCE_HEALTH_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Maintenance.HealthTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Maintenance.HealthTimeout },
	},
}

// parse converts a raw string to the key's Go type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func (t keyType) String() string {
	switch t {
	case kInt:
		return "integer"
	case kBool:
		return "bool"
	case kFloat:
		return "float"
	case kDuration:
		return "duration"
	default:
		return "string"
	}
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok, err := b.Lookup(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from config key %s=%q: %v. Using default value.\n", s.typ, s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		if v, err := s.parse(raw); err == nil {
			s.apply(cfg, v)
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from env var %s=%q: %v. Using default value.\n", s.typ, s.env, raw, err)
		}
	}
}
