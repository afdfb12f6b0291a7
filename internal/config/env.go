package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv loads configuration from environment variables
// Environment variables override default values
func LoadFromEnv(cfg *Config) {
	// Display configuration
	if display := os.Getenv("LOUPE_DISPLAY"); display != "" {
		cfg.Display.Name = display
	}

	// Magnifier configuration
	if size := os.Getenv("LOUPE_CURSOR_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil && n > 0 && n < 65536 {
			_ = cfg.SetCursorSize(uint16(n))
		}
	}

	if scale := os.Getenv("LOUPE_SCALE"); scale != "" {
		if n, err := strconv.Atoi(scale); err == nil && n > 0 && n < 65536 {
			_ = cfg.SetScale(uint16(n))
		}
	}

	if queue := os.Getenv("LOUPE_SAMPLE_QUEUE"); queue != "" {
		if n, err := strconv.Atoi(queue); err == nil && n > 0 {
			cfg.Magnifier.SampleQueue = n
		}
	}

	// Grab configuration
	if timeout := os.Getenv("LOUPE_SYNC_TIMEOUT_MS"); timeout != "" {
		if ms, err := strconv.Atoi(timeout); err == nil && ms > 0 {
			cfg.Grab.SyncTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	// Database configuration
	if dbPath := os.Getenv("LOUPE_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if diag := os.Getenv("LOUPE_DIAGNOSTICS"); diag != "" {
		if val, err := strconv.ParseBool(diag); err == nil {
			cfg.Database.Enabled = val
		}
	}

	// Daemon configuration
	if pidFile := os.Getenv("LOUPE_PID_FILE"); pidFile != "" {
		cfg.Daemon.PIDFile = pidFile
	}

	// Web configuration
	if webHost := os.Getenv("LOUPE_WEB_HOST"); webHost != "" {
		cfg.Web.Host = webHost
	}

	if webPort := os.Getenv("LOUPE_WEB_PORT"); webPort != "" {
		if port, err := strconv.Atoi(webPort); err == nil && port > 0 && port <= 65535 {
			cfg.Web.Port = port
		}
	}
}

// New creates a new Config with default values and loads from environment
func New() *Config {
	cfg := Default()
	LoadFromEnv(cfg)
	return cfg
}
