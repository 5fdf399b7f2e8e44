// Package scenario holds per-asset time series and cuts them into the
// rolling windows the operation problems are solved on.
package scenario

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/xuwkk/power-system-operation/core/grid"
)

// HoursPerYear is the length of a full hourly calendar year.
const HoursPerYear = 365 * 24

// ErrShortSeries is returned when a window does not fit in the series.
var ErrShortSeries = errors.New("scenario: window exceeds series")

// Series holds hourly values per asset in per-unit, one row per hour. Solar
// and Wind are nil for grids without those units.
type Series struct {
	Load, Solar, Wind *mat.Dense
}

// Hours returns the number of rows.
func (s *Series) Hours() int {
	if s.Load == nil {
		return 0
	}
	r, _ := s.Load.Dims()
	return r
}

// Validate checks the series against m: one column per asset, equal row
// counts and finite, nonnegative values.
func (s *Series) Validate(m *grid.Model) error {
	if s.Load == nil {
		return errors.New("scenario: no load series")
	}
	hours := s.Hours()
	check := func(name string, d *mat.Dense, want int) error {
		if want == 0 {
			if d != nil {
				return fmt.Errorf("scenario: %s series given for a grid without %s units", name, name)
			}
			return nil
		}
		if d == nil {
			return fmt.Errorf("scenario: missing %s series", name)
		}
		r, c := d.Dims()
		if r != hours || c != want {
			return fmt.Errorf("scenario: %s series is %dx%d, want %dx%d", name, r, c, hours, want)
		}
		for i := range r {
			for j, v := range d.RawRowView(i) {
				if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
					return fmt.Errorf("scenario: %s series hour %d column %d: invalid value %v", name, i, j, v)
				}
			}
		}
		return nil
	}
	if err := check("load", s.Load, m.NumLoad); err != nil {
		return err
	}
	if err := check("solar", s.Solar, m.NumSolar); err != nil {
		return err
	}
	return check("wind", s.Wind, m.NumWind)
}

// Window is T consecutive hours of a series starting at Start.
type Window struct {
	Start             int
	Load, Solar, Wind *mat.Dense
}

// Window returns hours [start, start+T). The matrices are copies.
func (s *Series) Window(start, T int) (Window, error) {
	if T < 1 || start < 0 || start+T > s.Hours() {
		return Window{}, fmt.Errorf("%w: start %d horizon %d hours %d", ErrShortSeries, start, T, s.Hours())
	}
	return Window{
		Start: start,
		Load:  rowSlice(s.Load, start, T),
		Solar: rowSlice(s.Solar, start, T),
		Wind:  rowSlice(s.Wind, start, T),
	}, nil
}

// Starts returns the window start hours for horizon T advanced by stride,
// keeping only windows that fit entirely in hours.
func Starts(hours, T, stride int) []int {
	if T < 1 || stride < 1 {
		return nil
	}
	var out []int
	for s := 0; s+T <= hours; s += stride {
		out = append(out, s)
	}
	return out
}

// Scale multiplies every value of the load series by k.
func (s *Series) Scale(k float64) {
	s.Load.Scale(k, s.Load)
}

// Perturb returns x·(lo + U·(hi−lo)) element-wise with U uniform on [0, 1).
func Perturb(x *mat.Dense, lo, hi float64, rng *rand.Rand) *mat.Dense {
	if x == nil {
		return nil
	}
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for i := range r {
		for j := range c {
			out.Set(i, j, x.At(i, j)*(lo+rng.Float64()*(hi-lo)))
		}
	}
	return out
}

// Perturb applies Perturb to every series of w.
func (w Window) Perturb(lo, hi float64, rng *rand.Rand) Window {
	return Window{
		Start: w.Start,
		Load:  Perturb(w.Load, lo, hi, rng),
		Solar: Perturb(w.Solar, lo, hi, rng),
		Wind:  Perturb(w.Wind, lo, hi, rng),
	}
}

// Synthetic builds a deterministic series for m: loads follow a daily
// profile peaking at their default, solar follows daylight and wind a
// seeded random walk between 20% and 90% of capacity.
func Synthetic(m *grid.Model, hours int, seed uint64) *Series {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	s := &Series{Load: mat.NewDense(hours, m.NumLoad, nil)}
	for h := range hours {
		hour := float64(h % 24)
		daily := 0.75 + 0.25*math.Sin(2*math.Pi*(hour-9)/24)
		for i, v := range m.LoadDefault {
			s.Load.Set(h, i, v*daily*(0.95+0.05*rng.Float64()))
		}
	}
	if m.NumSolar > 0 {
		s.Solar = mat.NewDense(hours, m.NumSolar, nil)
		for h := range hours {
			sun := math.Max(0, math.Sin(math.Pi*(float64(h%24)-6)/12))
			for i, v := range m.SolarDefault {
				s.Solar.Set(h, i, v*sun)
			}
		}
	}
	if m.NumWind > 0 {
		s.Wind = mat.NewDense(hours, m.NumWind, nil)
		level := make([]float64, m.NumWind)
		for i := range level {
			level[i] = 0.5
		}
		for h := range hours {
			for i, v := range m.WindDefault {
				level[i] = math.Min(0.9, math.Max(0.2, level[i]+0.1*(rng.Float64()-0.5)))
				s.Wind.Set(h, i, v*level[i])
			}
		}
	}
	return s
}

func rowSlice(d *mat.Dense, start, T int) *mat.Dense {
	if d == nil {
		return nil
	}
	_, c := d.Dims()
	return mat.DenseCopyOf(d.Slice(start, start+T, 0, c))
}
