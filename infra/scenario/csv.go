// Package scenario reads and writes per-load hourly series as CSV files.
//
// A data directory holds one file data_<i>.csv per load (1-based, in load
// table order) with a header row and at least a Load column. Solar and Wind
// columns carry the renewable output at the same bus as the load. Values are
// in MW; loaded series are converted to per-unit.
package scenario

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/xuwkk/power-system-operation/core/grid"
	corescenario "github.com/xuwkk/power-system-operation/core/scenario"
)

// Column headers.
const (
	ColLoad  = "Load"
	ColSolar = "Solar"
	ColWind  = "Wind"
)

// FileName returns the file name for load i, 0-based.
func FileName(i int) string { return fmt.Sprintf("data_%d.csv", i+1) }

type busData struct {
	load, solar, wind []float64
}

// Load reads the series of every load of m from dir. hours > 0 keeps the
// first hours rows and fails when a file is shorter; otherwise all rows are
// kept and every file must have the same length.
func Load(dir string, m *grid.Model, hours int) (*corescenario.Series, error) {
	files := make([]busData, m.NumLoad)
	n := -1
	for i := range m.NumLoad {
		path := filepath.Join(dir, FileName(i))
		d, err := readFile(path)
		if err != nil {
			return nil, err
		}
		rows := len(d.load)
		if hours > 0 {
			if rows < hours {
				return nil, fmt.Errorf("scenario: %s has %d rows, want %d", path, rows, hours)
			}
			rows = hours
		}
		if n >= 0 && rows != n {
			return nil, fmt.Errorf("scenario: %s has %d rows, other files have %d", path, rows, n)
		}
		n = rows
		files[i] = d
	}
	if n <= 0 {
		return nil, fmt.Errorf("scenario: no rows in %s", dir)
	}

	s := &corescenario.Series{Load: mat.NewDense(n, m.NumLoad, nil)}
	for i, d := range files {
		for h := range n {
			s.Load.Set(h, i, d.load[h]/m.BaseMVA)
		}
	}
	var err error
	if m.NumSolar > 0 {
		if s.Solar, err = renewable(m, files, m.SolarBus, n, ColSolar, func(d busData) []float64 { return d.solar }); err != nil {
			return nil, err
		}
	}
	if m.NumWind > 0 {
		if s.Wind, err = renewable(m, files, m.WindBus, n, ColWind, func(d busData) []float64 { return d.wind }); err != nil {
			return nil, err
		}
	}
	if err := s.Validate(m); err != nil {
		return nil, err
	}
	return s, nil
}

// renewable takes each unit's series from the file of the load at its bus.
func renewable(m *grid.Model, files []busData, buses []int, n int, col string, pick func(busData) []float64) (*mat.Dense, error) {
	out := mat.NewDense(n, len(buses), nil)
	for j, bus := range buses {
		i := slices.Index(m.LoadBus, bus)
		if i < 0 {
			return nil, fmt.Errorf("scenario: %s unit %d at bus %d has no load at the same bus", col, j+1, bus+1)
		}
		values := pick(files[i])
		if values == nil {
			return nil, fmt.Errorf("scenario: %s has no %s column", FileName(i), col)
		}
		for h := range n {
			out.Set(h, j, values[h]/m.BaseMVA)
		}
	}
	return out, nil
}

func readFile(path string) (busData, error) {
	f, err := os.Open(path)
	if err != nil {
		return busData{}, fmt.Errorf("scenario: %w", err)
	}
	defer f.Close()
	d, err := read(f)
	if err != nil {
		return busData{}, fmt.Errorf("scenario: %s: %w", path, err)
	}
	return d, nil
}

func read(r io.Reader) (busData, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return busData{}, fmt.Errorf("read header: %w", err)
	}
	loadCol := slices.Index(header, ColLoad)
	if loadCol < 0 {
		return busData{}, errors.New("missing Load column")
	}
	solarCol := slices.Index(header, ColSolar)
	windCol := slices.Index(header, ColWind)

	var d busData
	if solarCol >= 0 {
		d.solar = []float64{}
	}
	if windCol >= 0 {
		d.wind = []float64{}
	}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return d, nil
		}
		if err != nil {
			return busData{}, err
		}
		parse := func(col int) (float64, error) {
			v, err := strconv.ParseFloat(rec[col], 64)
			if err != nil {
				return 0, fmt.Errorf("line %d column %s: %w", line, header[col], err)
			}
			return v, nil
		}
		v, err := parse(loadCol)
		if err != nil {
			return busData{}, err
		}
		d.load = append(d.load, v)
		if solarCol >= 0 {
			if v, err = parse(solarCol); err != nil {
				return busData{}, err
			}
			d.solar = append(d.solar, v)
		}
		if windCol >= 0 {
			if v, err = parse(windCol); err != nil {
				return busData{}, err
			}
			d.wind = append(d.wind, v)
		}
	}
}

// Write stores s under dir in the layout Load reads, converting back to MW.
// Every file gets Load, Solar and Wind columns; renewable columns are zero
// at buses without such a unit.
func Write(dir string, m *grid.Model, s *corescenario.Series) error {
	if err := s.Validate(m); err != nil {
		return err
	}
	for _, bus := range slices.Concat(m.SolarBus, m.WindBus) {
		if !slices.Contains(m.LoadBus, bus) {
			return fmt.Errorf("scenario: renewable unit at bus %d has no load at the same bus", bus+1)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i := range m.NumLoad {
		if err := writeFile(filepath.Join(dir, FileName(i)), m, s, i); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, m *grid.Model, s *corescenario.Series, i int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	solar := slices.Index(m.SolarBus, m.LoadBus[i])
	wind := slices.Index(m.WindBus, m.LoadBus[i])
	format := func(v float64) string { return strconv.FormatFloat(v*m.BaseMVA, 'g', -1, 64) }

	w := csv.NewWriter(f)
	if err := w.Write([]string{ColLoad, ColSolar, ColWind}); err != nil {
		return err
	}
	for h := range s.Hours() {
		rec := []string{format(s.Load.At(h, i)), "0", "0"}
		if solar >= 0 {
			rec[1] = format(s.Solar.At(h, solar))
		}
		if wind >= 0 {
			rec[2] = format(s.Wind.At(h, wind))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
