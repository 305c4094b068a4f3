// Package config loads the server's environment-variable configuration,
// following DayQuest-CDN's internal/config.Load: godotenv first, then
// required-variable validation, with backend-specific variables validated
// only when that backend is selected.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// StorageBackend selects where variant files and sidecars are read from.
type StorageBackend string

const (
	BackendLocal StorageBackend = "local"
	BackendMinio StorageBackend = "minio"
)

// Config holds every environment-derived setting the server needs.
type Config struct {
	BindAddr string

	StorageBackend StorageBackend
	VideoRoot      string // used when StorageBackend == BackendLocal

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	SignedAuth       bool
	SendTimeout      int // seconds
	MemBudgetBytes   int64
	EvictionSeconds  int
	LogLevel         string
	TelemetryDSN     string // empty disables telemetry
}

const (
	defaultBindAddr        = ":8090"
	defaultSendTimeout     = 300 // matches DEFAULT_TIMEOUT
	defaultMemBudgetBytes  = 1 << 30
	defaultEvictionSeconds = 60
	defaultLogLevel        = "info"

	// minSendTimeout is the floor applied to SEND_TIMEOUT_SECONDS, matching
	// chopper's MIN_TIMEOUT: a configured timeout below this is raised
	// rather than honored, so a misconfigured value can't starve slow
	// clients of their send window.
	minSendTimeout = 60
)

// Load reads configuration from the environment, loading a .env file first
// if one is present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	cfg := &Config{
		BindAddr:        getOr("BIND_ADDR", defaultBindAddr),
		StorageBackend:  StorageBackend(getOr("STORAGE_BACKEND", string(BackendLocal))),
		VideoRoot:       os.Getenv("VIDEO_ROOT"),
		MinioEndpoint:   os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:  os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:     os.Getenv("MINIO_BUCKET"),
		LogLevel:        getOr("LOG_LEVEL", defaultLogLevel),
		TelemetryDSN:    os.Getenv("TELEMETRY_DSN"),
	}

	var err error
	if cfg.SignedAuth, err = getBoolOr("SIGNED_AUTH", false); err != nil {
		return nil, err
	}
	if cfg.MinioUseSSL, err = getBoolOr("MINIO_USE_SSL", true); err != nil {
		return nil, err
	}
	if cfg.SendTimeout, err = getIntOr("SEND_TIMEOUT_SECONDS", defaultSendTimeout); err != nil {
		return nil, err
	}
	if cfg.SendTimeout < minSendTimeout {
		cfg.SendTimeout = minSendTimeout
	}
	if cfg.EvictionSeconds, err = getIntOr("EVICTION_PERIOD_SECONDS", defaultEvictionSeconds); err != nil {
		return nil, err
	}
	memBudget, err := getInt64Or("MEM_BUDGET_BYTES", defaultMemBudgetBytes)
	if err != nil {
		return nil, err
	}
	cfg.MemBudgetBytes = memBudget

	switch cfg.StorageBackend {
	case BackendLocal:
		if cfg.VideoRoot == "" {
			return nil, fmt.Errorf("config: VIDEO_ROOT is not set")
		}
	case BackendMinio:
		for _, v := range []struct{ name, value string }{
			{"MINIO_ENDPOINT", cfg.MinioEndpoint},
			{"MINIO_ACCESS_KEY", cfg.MinioAccessKey},
			{"MINIO_SECRET_KEY", cfg.MinioSecretKey},
			{"MINIO_BUCKET", cfg.MinioBucket},
		} {
			if v.value == "" {
				return nil, fmt.Errorf("config: %s is not set", v.name)
			}
		}
	default:
		return nil, fmt.Errorf("config: unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	return cfg, nil
}

func getOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func getBoolOr(name string, def bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s must be a boolean: %w", name, err)
	}
	return b, nil
}

func getIntOr(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", name, err)
	}
	return n, nil
}

func getInt64Or(name string, def int64) (int64, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", name, err)
	}
	return n, nil
}
