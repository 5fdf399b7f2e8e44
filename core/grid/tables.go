package grid

import "sort"

// Table is a column-oriented relation. Every column holds one value per row.
type Table map[string][]float64

// Tables holds the named relations of a grid description: basic, bus, gen,
// load, branch and the optional solar and wind.
type Tables map[string]Table

// Rows returns the number of rows in the table, or -1 when the columns have
// different lengths.
func (t Table) Rows() int {
	n := -1
	for _, col := range t {
		if n == -1 {
			n = len(col)
			continue
		}
		if len(col) != n {
			return -1
		}
	}
	if n == -1 {
		return 0
	}
	return n
}

// Columns returns the column names in lexical order.
func (t Table) Columns() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for name, col := range t {
		out[name] = append([]float64(nil), col...)
	}
	return out
}

// Clone returns a deep copy of every relation.
func (ts Tables) Clone() Tables {
	out := make(Tables, len(ts))
	for name, t := range ts {
		out[name] = t.Clone()
	}
	return out
}

// WithBranchLimits returns a copy of the tables whose branch pfmax column is
// replaced by limits, given in MW.
func (ts Tables) WithBranchLimits(limits []float64) (Tables, error) {
	branch, ok := ts[RelBranch]
	if !ok {
		return nil, &SchemaError{Relation: RelBranch, Row: -1, Reason: "missing relation"}
	}
	if n := branch.Rows(); n != len(limits) {
		return nil, &SchemaError{Relation: RelBranch, Column: ColPfmax, Row: -1, Reason: "limit count does not match branch count"}
	}
	out := ts.Clone()
	out[RelBranch][ColPfmax] = append([]float64(nil), limits...)
	return out, nil
}
