package config

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/xuwkk/power-system-operation/core/scenario"
	"github.com/xuwkk/power-system-operation/core/solver"
)

// GridConfig locates the grid description.
type GridConfig struct {
	// Path is a YAML or JSON grid description.
	Path string `json:"path"`
	// Case labels results; it defaults to the file name without extension.
	Case string `json:"case"`
}

func (c *GridConfig) SetDefaults() {
	if c.Case == "" && c.Path != "" {
		base := filepath.Base(c.Path)
		c.Case = strings.TrimSuffix(base, filepath.Ext(base))
	}
}

func (c GridConfig) Validate() error {
	if c.Path == "" {
		return errors.New("grid.path is required")
	}
	return nil
}

// DataConfig locates the per-load series.
type DataConfig struct {
	// Dir holds data_<i>.csv files, one per load.
	Dir string `json:"dir"`
	// Hours is the number of rows used from each file.
	Hours int `json:"hours"`
	// Synthetic generates series instead of reading Dir.
	Synthetic bool   `json:"synthetic"`
	Seed      uint64 `json:"seed"`
}

func (c *DataConfig) SetDefaults() {
	if c.Hours == 0 {
		c.Hours = scenario.HoursPerYear
	}
}

func (c DataConfig) Validate() error {
	if c.Dir == "" && !c.Synthetic {
		return errors.New("data.dir is required unless data.synthetic is set")
	}
	if c.Hours < 1 {
		return errors.New("data.hours must be positive")
	}
	return nil
}

// solverDefaults fills zero fields only, so negative values still fail
// validation.
func solverDefaults(o solver.Options) solver.Options {
	d := solver.DefaultOptions()
	if o.Tolerance == 0 {
		o.Tolerance = d.Tolerance
	}
	if o.IntegralityTolerance == 0 {
		o.IntegralityTolerance = d.IntegralityTolerance
	}
	if o.MaxNodes == 0 {
		o.MaxNodes = d.MaxNodes
	}
	if o.MaxCuts == 0 {
		o.MaxCuts = d.MaxCuts
	}
	if o.CutTolerance == 0 {
		o.CutTolerance = d.CutTolerance
	}
	if o.BoxBound == 0 {
		o.BoxBound = d.BoxBound
	}
	return o
}

func validateSolver(o solver.Options) error {
	if o.Tolerance <= 0 || o.IntegralityTolerance <= 0 || o.CutTolerance <= 0 {
		return errors.New("solver tolerances must be positive")
	}
	if o.MaxNodes < 1 || o.MaxCuts < 1 {
		return errors.New("solver.max_nodes and solver.max_cuts must be positive")
	}
	if o.BoxBound <= 0 {
		return errors.New("solver.box_bound must be positive")
	}
	if o.MaxPivots < 0 {
		return errors.New("solver.max_pivots must not be negative")
	}
	return nil
}
