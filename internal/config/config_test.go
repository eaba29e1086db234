package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()

	if cfg.MaxRequestsPerMinute != 60 {
		t.Errorf("MaxRequestsPerMinute = %d, want 60", cfg.MaxRequestsPerMinute)
	}
	if cfg.MaxConcurrentRequests != 5 {
		t.Errorf("MaxConcurrentRequests = %d, want 5", cfg.MaxConcurrentRequests)
	}
	if cfg.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", cfg.BackoffMultiplier)
	}
	if cfg.MaxBackoffTime != 30*time.Second {
		t.Errorf("MaxBackoffTime = %v, want 30s", cfg.MaxBackoffTime)
	}
	if cfg.HealthCheckInterval != 10*time.Second {
		t.Errorf("HealthCheckInterval = %v, want 10s", cfg.HealthCheckInterval)
	}
	if cfg.RequestTimeout != 60*time.Second {
		t.Errorf("RequestTimeout = %v, want 60s", cfg.RequestTimeout)
	}
	if cfg.MaxQueueDepth != 1000 {
		t.Errorf("MaxQueueDepth = %d, want 1000", cfg.MaxQueueDepth)
	}
	if !cfg.Notifications.Enabled {
		t.Error("Expected notifications enabled by default")
	}
	if cfg.BaseURL != "" {
		t.Errorf("BaseURL = %q, want empty", cfg.BaseURL)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.MaxRequestsPerMinute != 60 {
		t.Errorf("Expected defaults, got MaxRequestsPerMinute = %d", cfg.MaxRequestsPerMinute)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clientconfig")

	orig := New()
	orig.BaseURL = "http://localhost:8000"
	orig.APIKey = "secret-token"
	orig.MaxRequestsPerMinute = 120
	orig.MaxConcurrentRequests = 8
	orig.BackoffMultiplier = 3.5
	orig.MaxBackoffTime = 45 * time.Second
	orig.HealthCheckInterval = 5 * time.Second
	orig.RequestTimeout = 20 * time.Second
	orig.MaxQueueDepth = 50
	orig.Proxy.Mode = "basic"
	orig.Proxy.Host = "proxy.corp"
	orig.Proxy.Port = 3128
	orig.Proxy.User = "alice"
	orig.Proxy.Password = "hunter2"
	orig.Proxy.NoProxy = "localhost,.internal"
	orig.Notifications.Enabled = false

	if err := Save(orig, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.BaseURL != orig.BaseURL || loaded.APIKey != orig.APIKey {
		t.Errorf("Connection settings did not survive: %+v", loaded)
	}
	if loaded.MaxRequestsPerMinute != 120 || loaded.MaxConcurrentRequests != 8 {
		t.Errorf("Limits did not survive: %+v", loaded)
	}
	if loaded.BackoffMultiplier != 3.5 || loaded.MaxBackoffTime != 45*time.Second {
		t.Errorf("Backoff settings did not survive: %+v", loaded)
	}
	if loaded.HealthCheckInterval != 5*time.Second || loaded.RequestTimeout != 20*time.Second {
		t.Errorf("Intervals did not survive: %+v", loaded)
	}
	if loaded.MaxQueueDepth != 50 {
		t.Errorf("MaxQueueDepth = %d, want 50", loaded.MaxQueueDepth)
	}
	if loaded.Proxy.Mode != "basic" || loaded.Proxy.Host != "proxy.corp" || loaded.Proxy.Port != 3128 {
		t.Errorf("Proxy settings did not survive: %+v", loaded.Proxy)
	}
	if loaded.Notifications.Enabled {
		t.Error("Expected notifications disabled after round trip")
	}

	// The password never touches disk.
	if loaded.Proxy.Password != "" {
		t.Error("Expected proxy password to not be persisted")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Reading config file: %v", err)
	}
	if strings.Contains(string(raw), "hunter2") {
		t.Error("Proxy password leaked into the config file")
	}
}

func TestSaveSetsRestrictivePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clientconfig")
	cfg := New()
	cfg.BaseURL = "http://localhost:8000"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Config file permissions = %o, want 0600", perm)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := New()
		cfg.BaseURL = "http://localhost:8000"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid defaults", func(c *Config) {}, nil},
		{"missing base url", func(c *Config) { c.BaseURL = " " }, ErrMissingBaseURL},
		{"zero rpm", func(c *Config) { c.MaxRequestsPerMinute = 0 }, ErrInvalidRequestsPerMin},
		{"negative concurrency", func(c *Config) { c.MaxConcurrentRequests = -1 }, ErrInvalidConcurrency},
		{"multiplier below one", func(c *Config) { c.BackoffMultiplier = 0.5 }, ErrInvalidBackoffMult},
		{"zero max backoff", func(c *Config) { c.MaxBackoffTime = 0 }, ErrInvalidMaxBackoff},
		{"zero poll interval", func(c *Config) { c.HealthCheckInterval = 0 }, ErrInvalidPollInterval},
		{"negative queue depth", func(c *Config) { c.MaxQueueDepth = -1 }, ErrInvalidQueueDepth},
		{"unbounded queue allowed", func(c *Config) { c.MaxQueueDepth = 0 }, nil},
		{"zero timeout allowed", func(c *Config) { c.RequestTimeout = 0 }, nil},
		{"bad proxy mode", func(c *Config) { c.Proxy.Mode = "socks5" }, ErrUnsupportedProxyMode},
		{"basic proxy without host", func(c *Config) { c.Proxy.Mode = "basic" }, ErrProxyHostRequired},
		{"system proxy ok", func(c *Config) { c.Proxy.Mode = "system" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
