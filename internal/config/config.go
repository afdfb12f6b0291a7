package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Display connection configuration
	Display DisplayConfig

	// Magnifier behavior configuration
	Magnifier MagnifierConfig

	// Grab synchronization configuration
	Grab GrabConfig

	// Diagnostics store configuration
	Database DatabaseConfig

	// Daemon process configuration
	Daemon DaemonConfig

	// Web server configuration
	Web WebConfig
}

// DisplayConfig holds X server connection configuration
type DisplayConfig struct {
	Name string // X display string; empty means $DISPLAY
}

// MagnifierConfig holds lens rendering configuration
type MagnifierConfig struct {
	CursorSize  uint16 // Side length of the cursor image; forced odd
	Scale       uint16 // Integer magnification factor
	SampleQueue int    // Pointer sample FIFO depth
}

// GrabConfig holds grab acknowledgment configuration
type GrabConfig struct {
	SyncTimeout time.Duration // Abort path for an unresponsive server
}

// DatabaseConfig holds diagnostics database configuration
type DatabaseConfig struct {
	Path    string // Path to SQLite database file
	Enabled bool   // Whether to persist session diagnostics
}

// DaemonConfig holds daemon process configuration
type DaemonConfig struct {
	PIDFile string // Path to PID file for daemon management
}

// WebConfig holds web server configuration
type WebConfig struct {
	Host string // Host to bind web server to
	Port int    // Port for web server
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Display: DisplayConfig{
			Name: "", // Empty means use $DISPLAY
		},
		Magnifier: MagnifierConfig{
			CursorSize:  255, // Hotspot lands on (127,127)
			Scale:       4,
			SampleQueue: 64,
		},
		Grab: GrabConfig{
			SyncTimeout: 2 * time.Second,
		},
		Database: DatabaseConfig{
			Path:    "", // Empty means use default ~/.config/loupe/loupe.db
			Enabled: true,
		},
		Daemon: DaemonConfig{
			PIDFile: fmt.Sprintf("/tmp/loupe-%d.pid", os.Getuid()),
		},
		Web: WebConfig{
			Host: "localhost",
			Port: 10000 + os.Getuid(),
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Magnifier.CursorSize < 3 || c.Magnifier.CursorSize > 1023 {
		return fmt.Errorf("cursor size must be between 3 and 1023, got %d", c.Magnifier.CursorSize)
	}

	if c.Magnifier.Scale < 1 || c.Magnifier.Scale > 32 {
		return fmt.Errorf("scale must be between 1 and 32, got %d", c.Magnifier.Scale)
	}

	if uint32(c.Magnifier.Scale) > uint32(c.Magnifier.CursorSize) {
		return fmt.Errorf("scale (%d) cannot exceed cursor size (%d)",
			c.Magnifier.Scale, c.Magnifier.CursorSize)
	}

	if c.Magnifier.SampleQueue < 1 {
		return fmt.Errorf("sample queue depth must be positive, got %d", c.Magnifier.SampleQueue)
	}

	if c.Grab.SyncTimeout <= 0 {
		return fmt.Errorf("grab sync timeout must be positive, got %v", c.Grab.SyncTimeout)
	}

	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web port must be between 1 and 65535, got %d", c.Web.Port)
	}

	if c.Web.Host == "" {
		return fmt.Errorf("web host cannot be empty")
	}

	if c.Daemon.PIDFile == "" {
		return fmt.Errorf("PID file path cannot be empty")
	}

	return nil
}

// SetCursorSize sets the cursor image size with validation, forcing it odd
// so the hotspot is an exact pixel center
func (c *Config) SetCursorSize(size uint16) error {
	if size < 3 || size > 1023 {
		return fmt.Errorf("cursor size must be between 3 and 1023")
	}
	if size%2 == 0 {
		size++
	}
	c.Magnifier.CursorSize = size
	return nil
}

// SetScale sets the magnification factor with validation
func (c *Config) SetScale(scale uint16) error {
	if scale < 1 || scale > 32 {
		return fmt.Errorf("scale must be between 1 and 32")
	}
	c.Magnifier.Scale = scale
	return nil
}

// Hotspot returns the hotspot coordinates implied by the cursor size
func (c *Config) Hotspot() (uint16, uint16) {
	return c.Magnifier.CursorSize / 2, c.Magnifier.CursorSize / 2
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  Display:
    Name: %q
  Magnifier:
    Cursor Size: %d
    Scale: %dx
    Sample Queue: %d
  Grab:
    Sync Timeout: %v
  Database:
    Path: %s
    Enabled: %v
  Daemon:
    PID File: %s
  Web:
    Host: %s
    Port: %d`,
		c.Display.Name,
		c.Magnifier.CursorSize,
		c.Magnifier.Scale,
		c.Magnifier.SampleQueue,
		c.Grab.SyncTimeout,
		c.Database.Path,
		c.Database.Enabled,
		c.Daemon.PIDFile,
		c.Web.Host,
		c.Web.Port,
	)
}
