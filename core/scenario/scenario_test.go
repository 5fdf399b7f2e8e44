package scenario

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/xuwkk/power-system-operation/core/grid/gridtest"
)

func TestStarts(t *testing.T) {
	assert.Equal(t, []int{0, 2, 4}, Starts(10, 6, 2))
	assert.Equal(t, []int{0}, Starts(6, 6, 1))
	assert.Empty(t, Starts(5, 6, 1))
	assert.Nil(t, Starts(10, 0, 1))
	assert.Nil(t, Starts(10, 2, 0))
	assert.Len(t, Starts(HoursPerYear, 24, 24), 365)
}

func TestSeries_Window(t *testing.T) {
	s := &Series{Load: mat.NewDense(4, 1, []float64{1, 2, 3, 4})}
	w, err := s.Window(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Start)
	assert.Equal(t, []float64{2, 3}, mat.Col(nil, 0, w.Load))
	assert.Nil(t, w.Solar)

	w.Load.Set(0, 0, 100)
	assert.Equal(t, 2.0, s.Load.At(1, 0), "window must not alias the series")

	_, err = s.Window(3, 2)
	assert.True(t, errors.Is(err, ErrShortSeries))
}

func TestSeries_Validate(t *testing.T) {
	m := gridtest.Model(t, gridtest.ThreeBusRenewable())
	s := Synthetic(m, 48, 7)
	require.NoError(t, s.Validate(m))

	bad := *s
	bad.Wind = nil
	assert.Error(t, bad.Validate(m))

	bad = *s
	bad.Load = mat.NewDense(47, 1, nil)
	assert.Error(t, bad.Validate(m))

	bad = *s
	bad.Solar = mat.DenseCopyOf(s.Solar)
	bad.Solar.Set(3, 0, -1)
	assert.Error(t, bad.Validate(m))

	plain := gridtest.Model(t, gridtest.ThreeBus())
	assert.Error(t, s.Validate(plain), "renewable series on a grid without renewables")
}

func TestSynthetic_Deterministic(t *testing.T) {
	m := gridtest.Model(t, gridtest.Case14())
	a := Synthetic(m, 72, 3)
	b := Synthetic(m, 72, 3)
	assert.True(t, mat.Equal(a.Load, b.Load))
	assert.True(t, mat.Equal(a.Wind, b.Wind))
	assert.Equal(t, 72, a.Hours())

	for h := range 72 {
		for i, v := range m.LoadDefault {
			assert.LessOrEqual(t, a.Load.At(h, i), v+1e-12)
		}
		for i, v := range m.SolarDefault {
			assert.LessOrEqual(t, a.Solar.At(h, i), v+1e-12)
		}
	}
	assert.Zero(t, a.Solar.At(0, 0), "no sun at midnight")
}

func TestPerturb(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	rng := rand.New(rand.NewPCG(1, 1))
	y := Perturb(x, 0.8, 1.2, rng)
	for i := range 3 {
		for j := range 2 {
			ratio := y.At(i, j) / x.At(i, j)
			assert.GreaterOrEqual(t, ratio, 0.8)
			assert.Less(t, ratio, 1.2)
		}
	}
	assert.Nil(t, Perturb(nil, 0.8, 1.2, rng))

	w := Window{Start: 5, Load: x}
	p := w.Perturb(1, 1, rng)
	assert.Equal(t, 5, p.Start)
	assert.True(t, mat.Equal(x, p.Load))
}

func TestSeries_Scale(t *testing.T) {
	s := &Series{Load: mat.NewDense(2, 1, []float64{1, 2})}
	s.Scale(1.5)
	assert.Equal(t, []float64{1.5, 3}, mat.Col(nil, 0, s.Load))
}
