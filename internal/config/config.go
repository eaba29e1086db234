// Package config provides configuration management for the AstraGuard client.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/sr-857/astraguard-client/internal/constants"
)

// Config holds construction-time settings for the admission-controlled
// client. The limit fields are BASE values: the capacity policy scales them
// by backend health but never writes them back.
//
// Config file location:
//   - ~/.config/astraguard/clientconfig
//
// INI format:
//
//	[astraguard]
//	base_url = http://localhost:8000
//	api_key = <optional-bearer-token>
//
//	[astraguard.limits]
//	max_requests_per_minute = 60
//	max_concurrent_requests = 5
//	backoff_multiplier = 2.0
//	max_backoff_ms = 30000
//	health_check_interval_ms = 10000
//	request_timeout_ms = 60000
//	max_queue_depth = 1000
//
//	[astraguard.proxy]
//	mode = system
//
//	[astraguard.notifications]
//	enabled = true
type Config struct {
	// Backend connection settings
	BaseURL string `ini:"base_url"`
	APIKey  string `ini:"api_key"`

	// MaxRequestsPerMinute is the base per-endpoint budget over the
	// trailing 60 seconds.
	MaxRequestsPerMinute int

	// MaxConcurrentRequests is the base cap on in-flight requests.
	MaxConcurrentRequests int

	// BackoffMultiplier scales the server's Retry-After when a 429 arms
	// the global backoff clock.
	BackoffMultiplier float64

	// MaxBackoffTime caps a single backoff period.
	MaxBackoffTime time.Duration

	// HealthCheckInterval is the poll period for /health/state.
	HealthCheckInterval time.Duration

	// RequestTimeout is the per-request deadline enforced at dispatch.
	// 0 disables the deadline (the request then holds its slot until the
	// transport gives up on its own).
	RequestTimeout time.Duration

	// MaxQueueDepth bounds the admission queue. 0 means unbounded.
	MaxQueueDepth int

	// Proxy settings for outbound HTTP
	Proxy ProxyConfig

	// Notification settings
	Notifications NotificationConfig
}

// ProxyConfig contains outbound proxy settings.
type ProxyConfig struct {
	// Mode is one of "", "no-proxy", "system", "basic", "ntlm".
	Mode string `ini:"mode"`

	Host     string `ini:"host"`
	Port     int    `ini:"port"`
	User     string `ini:"user"`
	Password string `ini:"password"`

	// NoProxy is a comma-separated bypass list (hosts, domains, CIDRs).
	NoProxy string `ini:"no_proxy"`
}

// NotificationConfig contains settings for the in-process notification center.
type NotificationConfig struct {
	// Enabled indicates whether notifications are recorded.
	// Default: true
	Enabled bool `ini:"enabled"`
}

// Validation errors
var (
	ErrMissingBaseURL        = errors.New("base_url is required")
	ErrInvalidRequestsPerMin = errors.New("max_requests_per_minute must be positive")
	ErrInvalidConcurrency    = errors.New("max_concurrent_requests must be positive")
	ErrInvalidBackoffMult    = errors.New("backoff_multiplier must be at least 1")
	ErrInvalidMaxBackoff     = errors.New("max_backoff_ms must be positive")
	ErrInvalidPollInterval   = errors.New("health_check_interval_ms must be positive")
	ErrInvalidQueueDepth     = errors.New("max_queue_depth must not be negative")
	ErrUnsupportedProxyMode  = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrProxyHostRequired     = errors.New("proxy host is required for basic and ntlm modes")
)

// DefaultConfigPath returns the default path for the client config file
// (~/.config/astraguard/clientconfig).
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "astraguard", "clientconfig"), nil
}

// New creates a Config with default values. BaseURL is left empty and must
// be provided by the caller, a config file, or a CLI flag.
func New() *Config {
	return &Config{
		MaxRequestsPerMinute:  constants.DefaultMaxRequestsPerMinute,
		MaxConcurrentRequests: constants.DefaultMaxConcurrentRequests,
		BackoffMultiplier:     constants.DefaultBackoffMultiplier,
		MaxBackoffTime:        constants.DefaultMaxBackoffTime,
		HealthCheckInterval:   constants.DefaultHealthCheckInterval,
		RequestTimeout:        constants.DefaultRequestTimeout,
		MaxQueueDepth:         constants.DefaultMaxQueueDepth,
		Notifications: NotificationConfig{
			Enabled: true,
		},
	}
}

// Load reads configuration from an INI file, applying defaults for any
// missing keys. If the file doesn't exist, returns defaults and no error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil // Return defaults if we can't determine path
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load client config: %w", err)
	}

	main := iniFile.Section("astraguard")
	cfg.BaseURL = main.Key("base_url").MustString(cfg.BaseURL)
	cfg.APIKey = main.Key("api_key").String()

	limits := iniFile.Section("astraguard.limits")
	cfg.MaxRequestsPerMinute = limits.Key("max_requests_per_minute").MustInt(cfg.MaxRequestsPerMinute)
	cfg.MaxConcurrentRequests = limits.Key("max_concurrent_requests").MustInt(cfg.MaxConcurrentRequests)
	cfg.BackoffMultiplier = limits.Key("backoff_multiplier").MustFloat64(cfg.BackoffMultiplier)
	cfg.MaxBackoffTime = msKey(limits, "max_backoff_ms", cfg.MaxBackoffTime)
	cfg.HealthCheckInterval = msKey(limits, "health_check_interval_ms", cfg.HealthCheckInterval)
	cfg.RequestTimeout = msKey(limits, "request_timeout_ms", cfg.RequestTimeout)
	cfg.MaxQueueDepth = limits.Key("max_queue_depth").MustInt(cfg.MaxQueueDepth)

	proxy := iniFile.Section("astraguard.proxy")
	cfg.Proxy.Mode = proxy.Key("mode").String()
	cfg.Proxy.Host = proxy.Key("host").String()
	cfg.Proxy.Port = proxy.Key("port").MustInt(0)
	cfg.Proxy.User = proxy.Key("user").String()
	cfg.Proxy.Password = proxy.Key("password").String()
	cfg.Proxy.NoProxy = proxy.Key("no_proxy").String()

	notify := iniFile.Section("astraguard.notifications")
	cfg.Notifications.Enabled = notify.Key("enabled").MustBool(true)

	return cfg, nil
}

// Save writes configuration to an INI file atomically (tmp file + rename).
// Creates parent directories if they don't exist.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	main, err := iniFile.NewSection("astraguard")
	if err != nil {
		return fmt.Errorf("failed to create astraguard section: %w", err)
	}
	main.Key("base_url").SetValue(cfg.BaseURL)
	main.Key("api_key").SetValue(cfg.APIKey)

	limits, err := iniFile.NewSection("astraguard.limits")
	if err != nil {
		return fmt.Errorf("failed to create limits section: %w", err)
	}
	limits.Key("max_requests_per_minute").SetValue(fmt.Sprintf("%d", cfg.MaxRequestsPerMinute))
	limits.Key("max_concurrent_requests").SetValue(fmt.Sprintf("%d", cfg.MaxConcurrentRequests))
	limits.Key("backoff_multiplier").SetValue(fmt.Sprintf("%g", cfg.BackoffMultiplier))
	limits.Key("max_backoff_ms").SetValue(fmt.Sprintf("%d", cfg.MaxBackoffTime.Milliseconds()))
	limits.Key("health_check_interval_ms").SetValue(fmt.Sprintf("%d", cfg.HealthCheckInterval.Milliseconds()))
	limits.Key("request_timeout_ms").SetValue(fmt.Sprintf("%d", cfg.RequestTimeout.Milliseconds()))
	limits.Key("max_queue_depth").SetValue(fmt.Sprintf("%d", cfg.MaxQueueDepth))

	proxy, err := iniFile.NewSection("astraguard.proxy")
	if err != nil {
		return fmt.Errorf("failed to create proxy section: %w", err)
	}
	proxy.Key("mode").SetValue(cfg.Proxy.Mode)
	proxy.Key("host").SetValue(cfg.Proxy.Host)
	proxy.Key("port").SetValue(fmt.Sprintf("%d", cfg.Proxy.Port))
	proxy.Key("user").SetValue(cfg.Proxy.User)
	proxy.Key("no_proxy").SetValue(cfg.Proxy.NoProxy)
	// Password is intentionally not persisted.

	notify, err := iniFile.NewSection("astraguard.notifications")
	if err != nil {
		return fmt.Errorf("failed to create notifications section: %w", err)
	}
	notify.Key("enabled").SetValue(fmt.Sprintf("%t", cfg.Notifications.Enabled))

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// API key may be present; keep the file user-only.
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set config permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks whether the configuration can construct a working client.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	if cfg.MaxRequestsPerMinute <= 0 {
		return ErrInvalidRequestsPerMin
	}
	if cfg.MaxConcurrentRequests <= 0 {
		return ErrInvalidConcurrency
	}
	if cfg.BackoffMultiplier < 1 {
		return ErrInvalidBackoffMult
	}
	if cfg.MaxBackoffTime <= 0 {
		return ErrInvalidMaxBackoff
	}
	if cfg.HealthCheckInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if cfg.MaxQueueDepth < 0 {
		return ErrInvalidQueueDepth
	}

	switch strings.ToLower(cfg.Proxy.Mode) {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if strings.TrimSpace(cfg.Proxy.Host) == "" {
			return ErrProxyHostRequired
		}
	default:
		return ErrUnsupportedProxyMode
	}

	return nil
}

// msKey reads a millisecond INI key as a duration, falling back to def.
func msKey(section *ini.Section, name string, def time.Duration) time.Duration {
	ms := section.Key(name).MustInt64(def.Milliseconds())
	if ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
