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

// Config holds the scalesearch service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Cache     CacheConfig     `yaml:"cache"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Derive    DeriveConfig    `yaml:"derive"`
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

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds S3-compatible object storage settings.
type StorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKey       string `yaml:"access_key"`
	SecretKey       string `yaml:"secret_key"`
	Bucket          string `yaml:"bucket"`
	UseSSL          bool   `yaml:"use_ssl"`
	PresignTTLSec   int    `yaml:"presign_ttl_sec"`
	CallTimeoutSec  int    `yaml:"call_timeout_sec"`
	UploadTmpDir    string `yaml:"upload_tmp_dir"`
	FetchTimeoutSec int    `yaml:"fetch_timeout_sec"` // remote query media download
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	BatchSize      int    `yaml:"batch_size"`
	CallTimeoutSec int    `yaml:"call_timeout_sec"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Name            string `yaml:"name"`
	Forward         bool   `yaml:"forward"` // upsert into the index after embedding
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
	CallTimeoutSec  int    `yaml:"call_timeout_sec"`
	// FilterFields are metadata keys indexed as TAG fields so search
	// requests can pre-filter on them.
	FilterFields []string `yaml:"filter_fields"`
}

// CacheConfig holds search response cache settings.
type CacheConfig struct {
	TTLSec         int `yaml:"ttl_sec"`
	CallTimeoutSec int `yaml:"call_timeout_sec"`
}

// PipelineConfig holds task queue and retry settings.
type PipelineConfig struct {
	MaxAttempts      int `yaml:"max_attempts"`
	BackoffBaseSec   int `yaml:"backoff_base_sec"`
	UploadWorkers    int `yaml:"upload_workers"`
	EmbeddingWorkers int `yaml:"embedding_workers"` // bounds provider concurrency
}

// DeriveConfig holds derivative generation settings.
type DeriveConfig struct {
	ThumbnailMaxPx    int `yaml:"thumbnail_max_px"`
	PreviewSeconds    int `yaml:"preview_seconds"`
	ThumbnailQuality  int `yaml:"thumbnail_quality"`
	GenerateTimeoutSec int `yaml:"generate_timeout_sec"`
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
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = "media"
	}
	if c.Storage.PresignTTLSec <= 0 {
		c.Storage.PresignTTLSec = 3600
	}
	if c.Storage.CallTimeoutSec <= 0 {
		c.Storage.CallTimeoutSec = 30
	}
	if c.Storage.FetchTimeoutSec <= 0 {
		c.Storage.FetchTimeoutSec = 15
	}
	if c.Storage.UploadTmpDir == "" {
		c.Storage.UploadTmpDir = filepath.Join(os.TempDir(), "scalesearch_uploads")
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1024
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 32
	}
	if c.Embedding.CallTimeoutSec <= 0 {
		c.Embedding.CallTimeoutSec = 30
	}
	if c.Index.Name == "" {
		c.Index.Name = "media_points"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Index.CallTimeoutSec <= 0 {
		c.Index.CallTimeoutSec = 10
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 3600
	}
	if c.Cache.CallTimeoutSec <= 0 {
		c.Cache.CallTimeoutSec = 5
	}
	if c.Pipeline.MaxAttempts <= 0 {
		c.Pipeline.MaxAttempts = 3
	}
	if c.Pipeline.BackoffBaseSec <= 0 {
		c.Pipeline.BackoffBaseSec = 10
	}
	if c.Pipeline.UploadWorkers <= 0 {
		c.Pipeline.UploadWorkers = 4
	}
	if c.Pipeline.EmbeddingWorkers <= 0 {
		c.Pipeline.EmbeddingWorkers = 2
	}
	if c.Derive.ThumbnailMaxPx <= 0 {
		c.Derive.ThumbnailMaxPx = 300
	}
	if c.Derive.PreviewSeconds <= 0 {
		c.Derive.PreviewSeconds = 3
	}
	if c.Derive.ThumbnailQuality <= 0 {
		c.Derive.ThumbnailQuality = 85
	}
	if c.Derive.GenerateTimeoutSec <= 0 {
		c.Derive.GenerateTimeoutSec = 60
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Storage.Endpoint == "" {
		return fmt.Errorf("storage.endpoint is required")
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required")
	}
	if c.Derive.ThumbnailQuality > 100 {
		return fmt.Errorf("derive.thumbnail_quality must be between 1 and 100, got %d", c.Derive.ThumbnailQuality)
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
