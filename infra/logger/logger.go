package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	corelogger "github.com/xuwkk/power-system-operation/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// Config selects the minimum level and the output format of new loggers.
type Config struct {
	// Level is one of debug, info, warn or error.
	Level string `json:"level"`
	// Format is json or console. APP_ENV=dev forces console.
	Format string `json:"format"`
}

// SetDefaults applies info level JSON output.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
}

// Validate checks the level and format names.
func (c Config) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Level)
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	return nil
}

var (
	mu      sync.RWMutex
	current = Config{Level: "info", Format: "json"}
	output  io.Writer = os.Stdout
)

// Configure sets the level and format used by loggers created afterwards.
func Configure(c Config) error {
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return err
	}
	mu.Lock()
	current = c
	mu.Unlock()
	return nil
}

// New returns a Logger for the given component using the configured level
// and format. The environment is detected via the APP_ENV variable.
func New(component string) Logger {
	mu.RLock()
	c, w := current, output
	mu.RUnlock()
	return NewZerologLogger(component, c, w)
}
