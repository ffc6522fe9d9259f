// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Ledger node settings.
	NodeURL        string // Base URL of the node's app interface.
	ConnectTimeout time.Duration
	SubmitTimeout  time.Duration // Bounds one submission attempt end to end.

	// Bundle settings.
	BundlePath  string
	BundleCache bool // Reuse conversions of identical bundle bytes.

	// Remote function targeted by a submission.
	ZomeName string
	FnName   string

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string
	OTELInsecure bool

	// Operational settings.
	LogLevel string
	LogFile  string // Empty discards logs; the terminal belongs to the UI.
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed values are reported together rather than silently replaced.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		NodeURL:      envStr("SENSEMAKER_NODE_URL", "http://127.0.0.1:9999"),
		BundlePath:   envStr("SENSEMAKER_BUNDLE_PATH", "./happs/rep_interchange/rep_interchange.dna"),
		ZomeName:     envStr("SENSEMAKER_ZOME", "interpreter"),
		FnName:       envStr("SENSEMAKER_FN", "create_interchange_entry"),
		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  envStr("OTEL_SERVICE_NAME", "sensemaker"),
		LogLevel:     envStr("SENSEMAKER_LOG_LEVEL", "info"),
		LogFile:      envStr("SENSEMAKER_LOG_FILE", ""),
	}

	var err error
	cfg.ConnectTimeout, err = envDuration("SENSEMAKER_CONNECT_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.SubmitTimeout, err = envDuration("SENSEMAKER_SUBMIT_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.BundleCache, err = envBool("SENSEMAKER_BUNDLE_CACHE", true)
	collect(err)
	cfg.OTELInsecure, err = envBool("SENSEMAKER_OTEL_INSECURE", false)
	collect(err)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.NodeURL == "" {
		return fmt.Errorf("config: SENSEMAKER_NODE_URL is required")
	}
	u, err := url.Parse(c.NodeURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: SENSEMAKER_NODE_URL must be an http(s) URL, got %q", c.NodeURL)
	}
	if c.BundlePath == "" {
		return fmt.Errorf("config: SENSEMAKER_BUNDLE_PATH is required")
	}
	if c.ZomeName == "" || c.FnName == "" {
		return fmt.Errorf("config: SENSEMAKER_ZOME and SENSEMAKER_FN must be non-empty")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("config: SENSEMAKER_CONNECT_TIMEOUT must be positive")
	}
	if c.SubmitTimeout <= 0 {
		return fmt.Errorf("config: SENSEMAKER_SUBMIT_TIMEOUT must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: SENSEMAKER_LOG_LEVEL must be one of debug, info, warn, error")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
