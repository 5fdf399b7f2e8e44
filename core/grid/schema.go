package grid

import (
	"math"
	"sort"
)

// Relation names.
const (
	RelBasic  = "basic"
	RelBus    = "bus"
	RelGen    = "gen"
	RelLoad   = "load"
	RelBranch = "branch"
	RelSolar  = "solar"
	RelWind   = "wind"
)

// Column names.
const (
	ColBaseMVA    = "baseMVA"
	ColSlackIdx   = "slack_idx"
	ColSlackTheta = "slack_theta"

	ColIdx = "idx"
	ColGS  = "GS"

	ColPgmax = "pgmax"
	ColPgmin = "pgmin"
	ColCf    = "cf"
	ColCv    = "cv"
	ColCv2   = "cv2"
	ColCsu   = "csu"
	ColCsd   = "csd"
	ColCes   = "ces"
	ColRu    = "ru"
	ColRd    = "rd"
	ColRsu   = "rsu"
	ColRsd   = "rsd"
	ColRued  = "rued"
	ColRded  = "rded"

	ColDefault = "default"
	ColCls     = "cls"
	ColCsc     = "csc"
	ColCwc     = "cwc"

	ColFbus       = "fbus"
	ColTbus       = "tbus"
	ColX          = "x"
	ColPfmax      = "pfmax"
	ColTapRatio   = "tap_ratio"
	ColShiftAngle = "shift_angle"
)

// column describes one accepted column. A column without a fill function is
// required.
type column struct {
	name string
	fill func(t Table, row int) float64
}

func zero(Table, int) float64 { return 0 }

func copyOf(name string) func(Table, int) float64 {
	return func(t Table, row int) float64 { return t[name][row] }
}

type relation struct {
	required bool
	columns  []column
}

// schema enumerates every accepted relation and column. Fill functions only
// reference required columns or columns listed before them.
var schema = map[string]relation{
	RelBasic: {required: true, columns: []column{
		{name: ColBaseMVA},
		{name: ColSlackIdx},
		{name: ColSlackTheta, fill: zero},
	}},
	RelBus: {required: true, columns: []column{
		{name: ColIdx, fill: func(_ Table, row int) float64 { return float64(row + 1) }},
		{name: ColGS, fill: zero},
	}},
	RelGen: {required: true, columns: []column{
		{name: ColIdx},
		{name: ColPgmax},
		{name: ColPgmin},
		{name: ColCf, fill: zero},
		{name: ColCv, fill: zero},
		{name: ColCv2, fill: zero},
		{name: ColCsu, fill: zero},
		{name: ColCsd, fill: zero},
		{name: ColCes, fill: zero},
		{name: ColRu, fill: copyOf(ColPgmax)},
		{name: ColRd, fill: copyOf(ColPgmax)},
		{name: ColRsu, fill: copyOf(ColPgmax)},
		{name: ColRsd, fill: copyOf(ColPgmax)},
		{name: ColRued, fill: copyOf(ColRu)},
		{name: ColRded, fill: copyOf(ColRd)},
	}},
	RelLoad: {required: true, columns: []column{
		{name: ColIdx},
		{name: ColDefault},
		{name: ColCls, fill: zero},
	}},
	RelBranch: {required: true, columns: []column{
		{name: ColFbus},
		{name: ColTbus},
		{name: ColX},
		{name: ColPfmax},
		{name: ColTapRatio, fill: zero},
		{name: ColShiftAngle, fill: zero},
	}},
	RelSolar: {columns: []column{
		{name: ColIdx},
		{name: ColDefault},
		{name: ColCsc, fill: zero},
	}},
	RelWind: {columns: []column{
		{name: ColIdx},
		{name: ColDefault},
		{name: ColCwc, fill: zero},
	}},
}

// normalize checks the tables against the schema and returns a copy with all
// optional columns filled in. Unknown relations and columns are rejected.
func normalize(ts Tables) (Tables, error) {
	names := make([]string, 0, len(ts))
	for name := range ts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := schema[name]; !ok {
			return nil, &SchemaError{Relation: name, Row: -1, Reason: "unknown relation"}
		}
	}

	out := make(Tables, len(schema))
	for name, rel := range schema {
		t, ok := ts[name]
		if !ok {
			if rel.required {
				return nil, &SchemaError{Relation: name, Row: -1, Reason: "missing relation"}
			}
			continue
		}
		norm, err := normalizeTable(name, rel, t)
		if err != nil {
			return nil, err
		}
		out[name] = norm
	}
	return out, nil
}

func normalizeTable(name string, rel relation, t Table) (Table, error) {
	rows := t.Rows()
	if rows < 0 {
		return nil, &SchemaError{Relation: name, Row: -1, Reason: "columns have different lengths"}
	}
	known := make(map[string]bool, len(rel.columns))
	for _, c := range rel.columns {
		known[c.name] = true
	}
	for _, col := range t.Columns() {
		if !known[col] {
			return nil, &SchemaError{Relation: name, Column: col, Row: -1, Reason: "unknown column"}
		}
	}
	out := make(Table, len(rel.columns))
	for _, c := range rel.columns {
		if values, ok := t[c.name]; ok {
			for i, v := range values {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return nil, &SchemaError{Relation: name, Column: c.name, Row: i, Reason: "value is not finite"}
				}
			}
			out[c.name] = append([]float64(nil), values...)
			continue
		}
		if c.fill == nil {
			return nil, &SchemaError{Relation: name, Column: c.name, Row: -1, Reason: "missing column"}
		}
		values := make([]float64, rows)
		for i := range values {
			values[i] = c.fill(out, i)
		}
		out[c.name] = values
	}
	return out, nil
}
