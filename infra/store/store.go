// Package store persists calibration records.
package store

import (
	"errors"
	"fmt"

	"github.com/xuwkk/power-system-operation/core/calibrate"
)

// ErrNoRecord is returned by Latest when no record exists for the case.
var ErrNoRecord = errors.New("store: no calibration record")

// Config selects the store backend.
type Config struct {
	// Backend is jsonl, postgres or none.
	Backend string `json:"backend"`
	// Path is the JSONL file.
	Path string `json:"path"`
	// DSN is the PostgreSQL connection string.
	DSN string `json:"dsn"`
}

// SetDefaults selects a JSONL file in the working directory.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Backend == "jsonl" && c.Path == "" {
		c.Path = "calibration.jsonl"
	}
}

// Validate checks the backend and its settings.
func (c Config) Validate() error {
	switch c.Backend {
	case "none":
	case "jsonl":
		if c.Path == "" {
			return errors.New("store: path is required for the jsonl backend")
		}
	case "postgres":
		if c.DSN == "" {
			return errors.New("store: dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store: unknown backend %q", c.Backend)
	}
	return nil
}

// New opens the configured store. The none backend returns a nil store.
func New(c Config) (calibrate.Store, error) {
	switch c.Backend {
	case "none":
		return nil, nil
	case "jsonl":
		return NewJSONLStore(c.Path)
	case "postgres":
		return OpenPostgres(c.DSN)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", c.Backend)
	}
}
