package grid

import "gonum.org/v1/gonum/floats"

// Summary describes the capacity mix of a grid in per-unit.
type Summary struct {
	GenCapacity   float64 `json:"gen_capacity"`
	SolarCapacity float64 `json:"solar_capacity"`
	WindCapacity  float64 `json:"wind_capacity"`
	DefaultLoad   float64 `json:"default_load"`
	// RenewableShare is renewable capacity over total capacity.
	RenewableShare float64 `json:"renewable_share"`
	// LoadPenetration is default load over total capacity.
	LoadPenetration float64 `json:"load_penetration"`
}

// Summary computes the capacity summary of the model.
func (m *Model) Summary() Summary {
	s := Summary{
		GenCapacity:   floats.Sum(m.Gen.PgMax),
		SolarCapacity: floats.Sum(m.SolarDefault),
		WindCapacity:  floats.Sum(m.WindDefault),
		DefaultLoad:   floats.Sum(m.LoadDefault),
	}
	total := s.GenCapacity + s.SolarCapacity + s.WindCapacity
	if total > 0 {
		s.RenewableShare = (s.SolarCapacity + s.WindCapacity) / total
		s.LoadPenetration = s.DefaultLoad / total
	}
	return s
}

// BranchFlow evaluates Bf·theta + Pfshift for one period.
func (m *Model) BranchFlow(theta []float64) []float64 {
	if len(theta) != m.NumBus {
		panic("grid: theta length does not match bus count")
	}
	flow := make([]float64, m.NumBranch)
	for i := range m.NumBranch {
		flow[i] = floats.Dot(m.Bf.RawRowView(i), theta) + m.Pfshift[i]
	}
	return flow
}
