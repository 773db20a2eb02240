package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the findex API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Index     IndexConfig     `yaml:"index"`
	Session   SessionConfig   `yaml:"session"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// IndexConfig holds catalog index connection settings.
type IndexConfig struct {
	Host             string `yaml:"host"`
	APIKey           string `yaml:"api_key"`
	Name             string `yaml:"name"`
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`
}

// SessionConfig holds session memory store settings. With no addrs the
// engine falls back to the in-process store (sessions do not survive a
// restart).
type SessionConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings for both spaces.
type EmbeddingConfig struct {
	Text         TextEmbedderConfig  `yaml:"text"`
	Image        ImageEmbedderConfig `yaml:"image"`
	CacheEnabled bool                `yaml:"cache_enabled"`
}

// TextEmbedderConfig holds the lexical-semantic provider settings
// (OpenAI-compatible API).
type TextEmbedderConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// ImageEmbedderConfig holds the visual space provider settings (SigLIP-style
// inference endpoint).
type ImageEmbedderConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// SearchConfig holds resolution behaviour settings.
type SearchConfig struct {
	TopK          int      `yaml:"top_k"`
	SemanticRatio float64  `yaml:"semantic_ratio"`
	MinScore      float64  `yaml:"min_score"`   // stage-4 relevance floor
	RelaxOrder    []string `yaml:"relax_order"` // constraints dropped in this order
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Index.Name == "" {
		c.Index.Name = "products"
	}
	if c.Index.ReadinessTimeout <= 0 {
		c.Index.ReadinessTimeout = 10
	}
	if c.Session.KeyPrefix == "" {
		c.Session.KeyPrefix = "findex:"
	}
	if c.Session.ReadinessTimeout <= 0 {
		c.Session.ReadinessTimeout = 10
	}
	if c.Embedding.Text.Model == "" {
		c.Embedding.Text.Model = "text-embedding-3-large"
	}
	if c.Embedding.Text.Dimensions <= 0 {
		c.Embedding.Text.Dimensions = 3072
	}
	if c.Embedding.Image.Dimensions <= 0 {
		c.Embedding.Image.Dimensions = 768
	}
	if c.Embedding.Image.TimeoutSec <= 0 {
		c.Embedding.Image.TimeoutSec = 15
	}
	if c.Search.TopK <= 0 {
		c.Search.TopK = 3
	}
	if c.Search.SemanticRatio <= 0 {
		c.Search.SemanticRatio = 0.6
	}
	if c.Search.MinScore <= 0 {
		c.Search.MinScore = 0.5
	}
	if len(c.Search.RelaxOrder) == 0 {
		c.Search.RelaxOrder = []string{"price", "color"}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Index.Host == "" {
		return fmt.Errorf("index.host is required")
	}
	if c.Search.SemanticRatio < 0 || c.Search.SemanticRatio > 1 {
		return fmt.Errorf("search.semantic_ratio must be in [0,1], got %v", c.Search.SemanticRatio)
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be in [0,1], got %v", c.Search.MinScore)
	}
	if len(c.Search.RelaxOrder) != 2 {
		return fmt.Errorf("search.relax_order must list both constraints, got %v", c.Search.RelaxOrder)
	}
	seen := map[string]bool{}
	for _, name := range c.Search.RelaxOrder {
		switch name {
		case "price", "color":
			// ok
		default:
			return fmt.Errorf("search.relax_order entries must be \"price\" or \"color\", got %q", name)
		}
		if seen[name] {
			return fmt.Errorf("search.relax_order lists %q twice", name)
		}
		seen[name] = true
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
