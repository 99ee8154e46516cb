// Package config loads csep settings from a YAML file, the environment and
// a .env file, in increasing order of precedence. Command-line flags are
// applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/csep/internal/chunker"
	"github.com/dshills/csep/internal/embedder"
)

// Environment variables that override file settings
const (
	EnvProvider = "CSEP_PROVIDER"
	EnvModel    = "CSEP_MODEL"
	EnvCacheDir = "CSEP_CACHE_DIR"
	EnvConfig   = "CSEP_CONFIG"
)

const (
	appName         = "csep"
	defaultFloor    = 0.2
	defaultLogLevel = "warn"
)

// Config holds every tunable setting.
type Config struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url,omitempty"`
	APIKey   string        `yaml:"api_key,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`

	CacheDir           string `yaml:"cache_dir"`
	EmbeddingCacheSize int    `yaml:"embedding_cache_size"`

	MaxTokens int    `yaml:"max_tokens"`
	Tokenizer string `yaml:"tokenizer"`

	Floor   float32 `yaml:"floor"`
	Limit   int     `yaml:"limit"`
	Workers int     `yaml:"workers"`

	Exclude       []string `yaml:"exclude,omitempty"`
	IncludeHidden bool     `yaml:"include_hidden"`
	MaxFileSize   int64    `yaml:"max_file_size"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Provider:           embedder.ProviderOllama,
		Model:              embedder.DefaultOllamaModel,
		Timeout:            embedder.DefaultTimeout,
		CacheDir:           DefaultCacheDir(),
		EmbeddingCacheSize: 1000,
		MaxTokens:          chunker.DefaultMaxTokens,
		Tokenizer:          chunker.DefaultEncoding,
		Floor:              defaultFloor,
		Workers:            defaultWorkers(),
		MaxFileSize:        4 << 20,
		LogLevel:           defaultLogLevel,
	}
}

func defaultWorkers() int {
	workers := runtime.NumCPU()
	if workers < 1 {
		return 1
	}
	return workers
}

// DefaultCacheDir is <user cache dir>/csep, or a temp directory when the
// user cache dir is unknown.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName)
	}
	return filepath.Join(dir, appName)
}

// DefaultPath is <user config dir>/csep/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appName, "config.yaml")
}

// Load reads the config file at path over the defaults. An empty path means
// $CSEP_CONFIG or DefaultPath, and a missing default file is not an error.
// Environment overrides are applied and the result validated.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfig)
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath()
	}

	// The model default depends on the provider, so it is filled in last.
	cfg := Default()
	cfg.Model = ""
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg.ApplyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads ./.env into the process environment without overriding
// variables that are already set. A missing file is ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from environment variables read via getenv.
// Connection variables only apply to the provider they belong to.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvProvider); v != "" {
		if !strings.EqualFold(v, c.Provider) {
			// A different provider invalidates the file's model and endpoint.
			c.Model = ""
			c.BaseURL = ""
		}
		c.Provider = v
	}
	if v := getenv(EnvModel); v != "" {
		c.Model = v
	}
	if v := getenv(EnvCacheDir); v != "" {
		c.CacheDir = v
	}
	c.applyConnectionEnv(getenv)
}

func (c *Config) applyConnectionEnv(getenv func(string) string) {
	switch strings.ToLower(c.Provider) {
	case embedder.ProviderOllama:
		if v := getenv(embedder.EnvOllamaHost); v != "" {
			c.BaseURL = v
		}
	case embedder.ProviderOpenAI:
		if v := getenv(embedder.EnvOpenAIAPIKey); v != "" {
			c.APIKey = v
		}
		if v := getenv(embedder.EnvOpenAIBaseURL); v != "" {
			c.BaseURL = v
		}
	}
}

// SetProvider switches provider, clearing settings tied to the old one.
func (c *Config) SetProvider(provider string) {
	if strings.EqualFold(provider, c.Provider) {
		return
	}
	c.Provider = strings.ToLower(provider)
	c.Model = embedder.DefaultModel(c.Provider)
	c.BaseURL = ""
	c.applyConnectionEnv(os.Getenv)
}

func (c *Config) applyDefaults() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = embedder.ProviderOllama
	}
	if c.Model == "" {
		c.Model = embedder.DefaultModel(c.Provider)
	}
	if c.Timeout == 0 {
		c.Timeout = embedder.DefaultTimeout
	}
	c.CacheDir = expandUserPath(c.CacheDir)
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir()
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = chunker.DefaultMaxTokens
	}
	if c.Tokenizer == "" {
		c.Tokenizer = chunker.DefaultEncoding
	}
	if c.Workers == 0 {
		c.Workers = defaultWorkers()
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	known := false
	for _, p := range embedder.Providers() {
		if c.Provider == p {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown provider %q (want one of %s)", c.Provider, strings.Join(embedder.Providers(), ", "))
	}
	if math.IsNaN(float64(c.Floor)) || c.Floor < -1 || c.Floor > 1 {
		return fmt.Errorf("floor must be within [-1, 1], got %v", c.Floor)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", c.Limit)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %v", c.Timeout)
	}
	if c.EmbeddingCacheSize < 0 {
		return fmt.Errorf("embedding_cache_size must not be negative, got %d", c.EmbeddingCacheSize)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size must not be negative, got %d", c.MaxFileSize)
	}
	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(strings.TrimPrefix(strings.TrimPrefix(pattern, "!"), "/")) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	return nil
}

// Embedder returns the embedder settings.
func (c *Config) Embedder() embedder.Config {
	return embedder.Config{
		Provider:  c.Provider,
		Model:     c.Model,
		BaseURL:   c.BaseURL,
		APIKey:    c.APIKey,
		CacheSize: c.EmbeddingCacheSize,
		Timeout:   c.Timeout,
	}
}

// YAML renders the settings with secrets masked.
func (c Config) YAML() ([]byte, error) {
	if c.APIKey != "" {
		c.APIKey = "********"
	}
	return yaml.Marshal(c)
}

func expandUserPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
