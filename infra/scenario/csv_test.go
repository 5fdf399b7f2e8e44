package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/xuwkk/power-system-operation/core/grid/gridtest"
	corescenario "github.com/xuwkk/power-system-operation/core/scenario"
)

func TestWriteLoad_RoundTrip(t *testing.T) {
	m := gridtest.Model(t, gridtest.Case14())
	want := corescenario.Synthetic(m, 48, 2)
	dir := t.TempDir()
	require.NoError(t, Write(dir, m, want))

	got, err := Load(dir, m, 0)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want.Load, got.Load, 1e-12))
	assert.True(t, mat.EqualApprox(want.Solar, got.Solar, 1e-12))
	assert.True(t, mat.EqualApprox(want.Wind, got.Wind, 1e-12))

	short, err := Load(dir, m, 24)
	require.NoError(t, err)
	assert.Equal(t, 24, short.Hours())

	_, err = Load(dir, m, 49)
	assert.Error(t, err)
}

func TestLoad_ThreeBus(t *testing.T) {
	m := gridtest.Model(t, gridtest.ThreeBus())
	dir := t.TempDir()
	data := "Time,Load,Solar,Wind\n0,40,0,0\n1,80,0,0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data_1.csv"), []byte(data), 0o644))

	s, err := Load(dir, m, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.4, 0.8}, mat.Col(nil, 0, s.Load))
	assert.Nil(t, s.Solar)
}

func TestLoad_Errors(t *testing.T) {
	m := gridtest.Model(t, gridtest.ThreeBus())
	cases := map[string]string{
		"no load column": "Demand\n1\n",
		"bad number":     "Load\nabc\n",
		"negative":       "Load\n-1\n",
		"empty":          "Load\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "data_1.csv"), []byte(data), 0o644))
			_, err := Load(dir, m, 0)
			assert.Error(t, err)
		})
	}
	_, err := Load(t.TempDir(), m, 0)
	assert.Error(t, err, "missing file")
}

func TestLoad_RenewableWithoutColumn(t *testing.T) {
	m := gridtest.Model(t, gridtest.Case14())
	dir := t.TempDir()
	require.NoError(t, Write(dir, m, corescenario.Synthetic(m, 4, 1)))
	for i := range m.NumLoad {
		path := filepath.Join(dir, FileName(i))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var out []string
		for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
			out = append(out, line[:strings.Index(line, ",")])
		}
		require.NoError(t, os.WriteFile(path, []byte(strings.Join(out, "\n")+"\n"), 0o644))
	}
	_, err := Load(dir, m, 0)
	assert.ErrorContains(t, err, "no Solar column")
}

func TestWrite_RenewableAwayFromLoad(t *testing.T) {
	m := gridtest.Model(t, gridtest.ThreeBusRenewable())
	assert.Error(t, Write(t.TempDir(), m, corescenario.Synthetic(m, 4, 1)))
}
