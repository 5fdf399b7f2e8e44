package calibrate

import (
	"context"
	"fmt"
	"time"
)

// Record is the outcome of one calibration run. Limits are per branch in
// per-unit; LimitsMW repeats them in MW.
type Record struct {
	RunID       string    `json:"run_id"`
	Case        string    `json:"case"`
	Formulation string    `json:"formulation"`
	CreatedAt   time.Time `json:"created_at"`
	Horizon     int       `json:"horizon"`
	Stride      int       `json:"stride"`
	Windows     int       `json:"windows"`
	ScaleFactor float64   `json:"scale_factor"`
	MinLimit    float64   `json:"min_limit"`
	Observed    []float64 `json:"observed_pu"`
	Limits      []float64 `json:"limits_pu"`
	LimitsMW    []float64 `json:"limits_mw"`
}

// Validate checks the record is internally consistent.
func (r *Record) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("calibrate: record without run id")
	}
	if len(r.Observed) != len(r.Limits) || len(r.Limits) != len(r.LimitsMW) {
		return fmt.Errorf("calibrate: record %s has %d observed, %d limits and %d MW limits",
			r.RunID, len(r.Observed), len(r.Limits), len(r.LimitsMW))
	}
	return nil
}

// Store persists calibration records.
type Store interface {
	Save(ctx context.Context, r *Record) error
	// Latest returns the newest record for a case.
	Latest(ctx context.Context, caseName string) (*Record, error)
	Close() error
}

// Event reports calibration progress. Record is set on the final event of
// a run only.
type Event struct {
	RunID     string
	Window    int
	Start     int
	Done      int
	Total     int
	Objective float64
	// MaxFlow is the largest absolute branch flow in the window, p.u.
	MaxFlow  float64
	Duration time.Duration
	Err      error
	Record   *Record
	Time     time.Time
}
