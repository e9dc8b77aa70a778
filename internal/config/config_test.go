package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.Database.Addrs = []string{"localhost:6379"}
	c.Storage.Endpoint = "localhost:9000"
	c.Embedding.BaseURL = "http://localhost:8000/v1"
	c.ApplyDefaults()
	return c
}

func TestApplyDefaults(t *testing.T) {
	c := validConfig()

	if c.Embedding.Dimensions != 1024 {
		t.Errorf("dimensions default = %d, want 1024", c.Embedding.Dimensions)
	}
	if c.Cache.TTLSec != 3600 {
		t.Errorf("cache ttl default = %d, want 3600", c.Cache.TTLSec)
	}
	if c.Pipeline.MaxAttempts != 3 {
		t.Errorf("max attempts default = %d, want 3", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.BackoffBaseSec != 10 {
		t.Errorf("backoff base default = %d, want 10", c.Pipeline.BackoffBaseSec)
	}
	if c.Derive.ThumbnailMaxPx != 300 || c.Derive.ThumbnailQuality != 85 || c.Derive.PreviewSeconds != 3 {
		t.Errorf("derive defaults = %+v", c.Derive)
	}
	if c.Index.Name != "media_points" {
		t.Errorf("index name default = %s", c.Index.Name)
	}
	if c.Storage.UploadTmpDir == "" {
		t.Error("upload tmp dir must default to a non-empty path")
	}
	if c.Storage.CallTimeoutSec != 30 || c.Embedding.CallTimeoutSec != 30 {
		t.Errorf("call timeout defaults = %d/%d, want 30/30",
			c.Storage.CallTimeoutSec, c.Embedding.CallTimeoutSec)
	}
	if c.Index.CallTimeoutSec != 10 || c.Cache.CallTimeoutSec != 5 {
		t.Errorf("call timeout defaults = %d/%d, want 10/5",
			c.Index.CallTimeoutSec, c.Cache.CallTimeoutSec)
	}
	if c.Derive.GenerateTimeoutSec != 60 {
		t.Errorf("generate timeout default = %d, want 60", c.Derive.GenerateTimeoutSec)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(_ *Config) {}, ""},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"no db addrs", func(c *Config) { c.Database.Addrs = nil }, "database.addrs"},
		{"no storage endpoint", func(c *Config) { c.Storage.Endpoint = "" }, "storage.endpoint"},
		{"no embedding url", func(c *Config) { c.Embedding.BaseURL = "" }, "embedding.base_url"},
		{"bad quality", func(c *Config) { c.Derive.ThumbnailQuality = 101 }, "thumbnail_quality"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SCALESEARCH_TEST_VAR", "redis:6379")

	tests := []struct {
		in   string
		want string
	}{
		{"addr: ${SCALESEARCH_TEST_VAR}", "addr: redis:6379"},
		{"addr: ${SCALESEARCH_UNSET_VAR:-fallback}", "addr: fallback"},
		{"addr: ${SCALESEARCH_TEST_VAR:-fallback}", "addr: redis:6379"},
		{"addr: ${SCALESEARCH_UNSET_VAR}", "addr: "},
		{"no vars here", "no vars here"},
	}

	for _, tt := range tests {
		if got := string(expandEnvVars([]byte(tt.in))); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
