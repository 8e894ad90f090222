package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// StorageMemory keeps sessions in process memory only.
	StorageMemory = "memory"
	// StorageSQLite persists sessions to an embedded SQLite file.
	StorageSQLite = "sqlite"

	defaultPort           = 8000
	defaultTimeoutSeconds = 60
	defaultSQLitePath     = "data/aihub.db"
)

// Config represents the application configuration. Values come from an
// optional YAML file with environment variables filling any gaps, so a bare
// `.env` deployment works the same way the original service ran.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig defines listener and inbound-auth configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
	// APIKey, when set, is required of callers via the X-API-Key header.
	APIKey string `yaml:"api_key"`
	// RequestTimeoutSeconds bounds each upstream provider call.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// RequestTimeout returns the upstream call timeout as a duration.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// StorageConfig selects the session store backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// ProvidersConfig catalogues the five upstream providers.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `yaml:"openai"`
	Anthropic  ProviderConfig `yaml:"anthropic"`
	Google     ProviderConfig `yaml:"google"`
	Mistral    ProviderConfig `yaml:"mistral"`
	Perplexity ProviderConfig `yaml:"perplexity"`
}

// ProviderConfig captures authentication and routing info for a provider.
// An empty APIKey is valid configuration: the adapter reports a
// "not configured" result per request instead of failing startup.
type ProviderConfig struct {
	APIKey  string  `yaml:"api_key"`
	BaseURL string  `yaml:"base_url"`
	Model   string  `yaml:"model"`
	Headers Headers `yaml:"headers"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// Load reads YAML configuration from disk, fills unset fields from the
// environment, and validates the result. An empty path skips the file and
// configures entirely from the environment.
func Load(path string) (Config, error) {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	fillString(&c.Server.APIKey, "API_KEY")

	providers := []struct {
		prefix string
		cfg    *ProviderConfig
	}{
		{"OPENAI", &c.Providers.OpenAI},
		{"ANTHROPIC", &c.Providers.Anthropic},
		{"GOOGLE", &c.Providers.Google},
		{"MISTRAL", &c.Providers.Mistral},
		{"PERPLEXITY", &c.Providers.Perplexity},
	}
	for _, p := range providers {
		fillString(&p.cfg.APIKey, p.prefix+"_API_KEY")
		fillString(&p.cfg.BaseURL, p.prefix+"_BASE_URL")
		fillString(&p.cfg.Model, p.prefix+"_MODEL")
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.RequestTimeoutSeconds == 0 {
		c.Server.RequestTimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}
	if c.Storage.Driver == StorageSQLite && c.Storage.Path == "" {
		c.Storage.Path = defaultSQLitePath
	}
}

func fillString(target *string, envKey string) {
	if *target == "" {
		*target = os.Getenv(envKey)
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be positive, got %d", c.Server.RequestTimeoutSeconds)
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage.path must be provided for the %s driver", StorageSQLite)
		}
	default:
		return fmt.Errorf("storage.driver %q must be one of %q or %q", c.Storage.Driver, StorageMemory, StorageSQLite)
	}

	providers := map[string]ProviderConfig{
		"openai":     c.Providers.OpenAI,
		"anthropic":  c.Providers.Anthropic,
		"google":     c.Providers.Google,
		"mistral":    c.Providers.Mistral,
		"perplexity": c.Providers.Perplexity,
	}
	for name, provider := range providers {
		if err := validateProvider(name, provider); err != nil {
			return err
		}
	}

	return nil
}

func validateProvider(name string, provider ProviderConfig) error {
	for headerKey := range provider.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", name, headerKey)
		}
	}
	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
