// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gookit/validate"

	"github.com/twilman/twilman/internal/adapter/driven/jsonfile"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	StorePath  string

	// HTTPTimeout bounds each individual provider request.
	HTTPTimeout time.Duration

	// InactiveDays is the default inactivity threshold for scans.
	InactiveDays int `validate:"min:1" message:"inactive days must be at least 1"`

	// InactiveLookbackDays bounds how far back a scan searches for a
	// number's most recent activity.
	InactiveLookbackDays int `validate:"min:1" message:"inactive lookback days must be at least 1"`
}

// Load reads configuration from environment variables and returns a
// validated Config. All variables are optional:
// TWILMAN_LISTEN_ADDR (127.0.0.1:8087), TWILMAN_STORE_PATH
// (~/.twilman/accounts.json), TWILMAN_HTTP_TIMEOUT (30s),
// TWILMAN_INACTIVE_DAYS (30), TWILMAN_INACTIVE_LOOKBACK_DAYS (365).
func Load() (*Config, error) {
	listenAddr := "127.0.0.1:8087"
	if v, ok := os.LookupEnv("TWILMAN_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	storePath, ok := os.LookupEnv("TWILMAN_STORE_PATH")
	if !ok {
		p, err := jsonfile.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolving default store path: %w", err)
		}
		storePath = p
	}

	httpTimeout := 30 * time.Second
	if v, ok := os.LookupEnv("TWILMAN_HTTP_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("TWILMAN_HTTP_TIMEOUT has invalid duration %q: %w", v, err)
		}
		httpTimeout = parsed
	}
	if httpTimeout <= 0 {
		return nil, fmt.Errorf("TWILMAN_HTTP_TIMEOUT must be positive, got %s", httpTimeout)
	}

	inactiveDays, err := intEnv("TWILMAN_INACTIVE_DAYS", 30)
	if err != nil {
		return nil, err
	}

	lookbackDays, err := intEnv("TWILMAN_INACTIVE_LOOKBACK_DAYS", 365)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddr:           listenAddr,
		StorePath:            storePath,
		HTTPTimeout:          httpTimeout,
		InactiveDays:         inactiveDays,
		InactiveLookbackDays: lookbackDays,
	}

	if v := validate.Struct(cfg); !v.Validate() {
		return nil, v.Errors.OneError()
	}

	return cfg, nil
}

func intEnv(name string, def int) (int, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", name, v, err)
	}
	return parsed, nil
}
