package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const keychainService = "bolla"

type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	Log         LogConfig
	Ollama      BackendConfig
	Anthropic   BackendConfig
	Grok        BackendConfig
	Router      RouterConfig
	Retry       RetryConfig
	Memory      MemoryConfig
	Maintenance MaintenanceConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
	// File routes logs to a rotating file instead of stderr.
	File       string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
}

// BackendConfig holds the per-backend transport settings. APIKey is empty
// for the local backend; a hosted backend without a key stays unconfigured.
type BackendConfig struct {
	URL         string
	Model       string
	APIKey      string
	Timeout     time.Duration
	Attempts    int
	MinInterval time.Duration
	MaxTokens   int
	// Fallback names the backend that receives a request after every
	// attempt failed. Only the local backend uses it.
	Fallback string
}

type RouterConfig struct {
	ChainSimple  string
	ChainMedium  string
	ChainComplex string
	ForceLocal   bool
	LocalBackend string
	DefaultTier  string
}

// Chains returns the comma-separated chain settings keyed by tier name.
func (r RouterConfig) Chains() map[string][]string {
	return map[string][]string{
		"simple":  SplitList(r.ChainSimple),
		"medium":  SplitList(r.ChainMedium),
		"complex": SplitList(r.ChainComplex),
	}
}

type RetryConfig struct {
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterPercent int
}

type MemoryConfig struct {
	ShortTermSize int
	TopMemories   int
	AutoRemember  bool
}

type MaintenanceConfig struct {
	CleanupEnabled   bool
	CleanupSchedule  string
	CleanupRetention time.Duration
	CleanupThreshold float64
	BackupEnabled    bool
	BackupSchedule   string
	BackupRetention  time.Duration
	HealthEnabled    bool
	HealthSchedule   string
	HealthTimeout    time.Duration
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxAgeDays: 14,
			MaxBackups: 5,
		},
		Ollama: BackendConfig{
			URL:         "http://localhost:11434",
			Model:       "llama3.2:3b",
			Timeout:     30 * time.Second,
			Attempts:    3,
			MinInterval: 200 * time.Millisecond,
			MaxTokens:   1024,
			Fallback:    "anthropic",
		},
		Anthropic: BackendConfig{
			Model:       "claude-3-5-sonnet-latest",
			Timeout:     30 * time.Second,
			Attempts:    3,
			MinInterval: 500 * time.Millisecond,
			MaxTokens:   1024,
		},
		Grok: BackendConfig{
			URL:       "https://api.x.ai/v1",
			Model:     "grok-2",
			Timeout:   30 * time.Second,
			Attempts:  3,
			MaxTokens: 1024,
		},
		Router: RouterConfig{
			ChainSimple:  "ollama,grok,anthropic",
			ChainMedium:  "grok,ollama,anthropic",
			ChainComplex: "anthropic,grok,ollama",
			LocalBackend: "ollama",
			DefaultTier:  "simple",
		},
		Retry: RetryConfig{
			BaseDelay:     300 * time.Millisecond,
			MaxDelay:      3 * time.Second,
			JitterPercent: 10,
		},
		Memory: MemoryConfig{
			ShortTermSize: 20,
			TopMemories:   7,
		},
		Maintenance: MaintenanceConfig{
			CleanupEnabled:   true,
			CleanupSchedule:  "@every 12h",
			CleanupRetention: 720 * time.Hour,
			CleanupThreshold: 0.45,
			BackupEnabled:    true,
			BackupSchedule:   "@every 24h",
			BackupRetention:  336 * time.Hour,
			HealthEnabled:    true,
			HealthSchedule:   "@every 5m",
			HealthTimeout:    30 * time.Second,
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.bolla.app) and secrets
// fall back to macOS Keychain (service: bolla).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/bolla/config.json
// and secrets fall back to $XDG_DATA_HOME/bolla/secrets.json.
//
// A .env file (or the one named by BOLLA_ENV_FILE) is loaded first without
// overriding variables already set. Environment variables (BOLLA_*) then
// override backend values on all platforms.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}
	return loadWith(newPlatformBackend(), platformKeychain{})
}

func loadEnvFile() error {
	path := os.Getenv("BOLLA_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// SecretStore abstracts the platform secret store for testing.
type SecretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store.
func NewKeychain() SecretStore {
	return platformKeychain{}
}

func loadWith(b Backend, kc SecretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Secrets missing from the environment come from the secret store. A
	// hosted backend without a key is simply left out of the router.
	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		if v, err := kc.Get(keychainService, s.account()); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid config server.port: %d", cfg.Server.Port)
	}
	switch cfg.Router.DefaultTier {
	case "simple", "medium", "complex":
	default:
		return fmt.Errorf("invalid config router.default_tier: %q", cfg.Router.DefaultTier)
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid config log.level: %q", cfg.Log.Level)
	}
	if cfg.Memory.ShortTermSize <= 0 {
		return fmt.Errorf("invalid config memory.short_term_size: %d", cfg.Memory.ShortTermSize)
	}
	return nil
}

// GetAPIToken returns the bearer token guarding the HTTP API. BOLLA_API_TOKEN
// wins; otherwise the token is read from the secret store and generated on
// first use.
func GetAPIToken(kc SecretStore) (string, error) {
	if tok := os.Getenv("BOLLA_API_TOKEN"); tok != "" {
		return tok, nil
	}
	if tok, err := kc.Get(keychainService, "api_token"); err == nil && tok != "" {
		return tok, nil
	}
	tok := newToken()
	if err := kc.Set(keychainService, "api_token", tok); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return tok, nil
}

// SplitList splits a comma-separated setting, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// platformKeychain reads from macOS Keychain via the security CLI, or from
// the secrets file elsewhere.
type platformKeychain struct{}

func (platformKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}
