// Package config provides configuration loading and structs for the kikoe server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kikoe/internal/models"
	"gopkg.in/yaml.v3"
)

// Embedding provider names accepted in embedding.provider.
const (
	ProviderLocal  = "local"
	ProviderRemote = "remote"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Transcripts TranscriptsConfig `yaml:"transcripts"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Search      SearchConfig      `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the location of the persisted index.
type StorageConfig struct {
	IndexDir string `yaml:"index_dir"`
}

// TranscriptsConfig holds the transcript directory and watch settings.
type TranscriptsConfig struct {
	Directory  string   `yaml:"directory"`
	Extensions []string `yaml:"extensions"`
	Watch      bool     `yaml:"watch"`
	Recursive  *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to load and watch subdirectories; defaults to true when unset.
func (t *TranscriptsConfig) RecursiveOrDefault() bool {
	if t.Recursive != nil {
		return *t.Recursive
	}
	return true
}

// ChunkingConfig holds the chunk window and ingestion parallelism.
type ChunkingConfig struct {
	WindowSize      int      `yaml:"window_size"`
	OverlapFraction *float64 `yaml:"overlap_fraction"`
	Workers         int      `yaml:"workers"`
	LocalBatchSize  int      `yaml:"local_batch_size"`
}

// OverlapOrDefault returns the overlap fraction; defaults to 0.1 when unset.
func (c *ChunkingConfig) OverlapOrDefault() float64 {
	if c.OverlapFraction != nil {
		return *c.OverlapFraction
	}
	return DefaultOverlapFraction
}

// EmbeddingConfig selects the default provider and configures both variants.
type EmbeddingConfig struct {
	Provider string                `yaml:"provider"`
	Local    LocalEmbeddingConfig  `yaml:"local"`
	Remote   RemoteEmbeddingConfig `yaml:"remote"`
}

// LocalEmbeddingConfig holds local encoder settings.
type LocalEmbeddingConfig struct {
	Encoder    string `yaml:"encoder"` // "onnx" or "hash"
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// RemoteEmbeddingConfig holds settings for an OpenAI-compatible embeddings API.
type RemoteEmbeddingConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	Dimensions        int     `yaml:"dimensions"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialBackoffMs  int     `yaml:"initial_backoff_ms"`
}

// ResolveAPIKey returns the configured key, falling back to the APIKeyEnv variable.
func (r *RemoteEmbeddingConfig) ResolveAPIKey() string {
	if r.APIKey != "" {
		return r.APIKey
	}
	if r.APIKeyEnv != "" {
		return os.Getenv(r.APIKeyEnv)
	}
	return ""
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	cfg.expandPaths(filepath.Dir(path))
	return &cfg, nil
}

// Default returns the built-in configuration, with relative paths resolved against the
// working directory. It is used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	cfg.expandPaths(wd)
	return cfg
}

func (c *Config) expandPaths(baseDir string) {
	c.Storage.IndexDir = expandPath(c.Storage.IndexDir, baseDir)
	c.Transcripts.Directory = expandPath(c.Transcripts.Directory, baseDir)
	c.Embedding.Local.ModelPath = expandPath(c.Embedding.Local.ModelPath, baseDir)
}

// Validate reports settings that cannot work, wrapped in models.ErrConfiguration.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderLocal, ProviderRemote:
	default:
		return fmt.Errorf("%w: embedding.provider must be %q or %q, got %q",
			models.ErrConfiguration, ProviderLocal, ProviderRemote, c.Embedding.Provider)
	}
	if c.Chunking.WindowSize <= 0 {
		return fmt.Errorf("%w: chunking.window_size must be positive", models.ErrConfiguration)
	}
	if f := c.Chunking.OverlapOrDefault(); f < 0 || f >= 1 {
		return fmt.Errorf("%w: chunking.overlap_fraction must be in [0, 1), got %v", models.ErrConfiguration, f)
	}
	if c.Storage.IndexDir == "" {
		return fmt.Errorf("%w: storage.index_dir is required", models.ErrConfiguration)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
