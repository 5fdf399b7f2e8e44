package calibrate

import "fmt"

// Invariant checks.
const (
	CheckCapacity          = "capacity"
	CheckLoadShed          = "load_shed"
	CheckSolarCurtailment  = "solar_curtailment"
	CheckWindCurtailment   = "wind_curtailment"
	CheckObservedFlowLimit = "relaxed_flow_limit"
)

// InvariantViolation reports a window where the relaxed-limit scan was not
// feasible without shedding or curtailment, or where forecast load exceeds
// available capacity. It signals bad input data or a formulation bug.
type InvariantViolation struct {
	Window    int
	Start     int
	Period    int
	Check     string
	Value     float64
	Tolerance float64
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("calibration invariant %s violated in window %d (hour %d) period %d: %g exceeds tolerance %g",
		e.Check, e.Window, e.Start, e.Period, e.Value, e.Tolerance)
}
