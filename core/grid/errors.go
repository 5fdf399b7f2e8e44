package grid

import "fmt"

// SchemaError reports a grid description that cannot be turned into a model.
// Row is -1 when the problem is not tied to a single row.
type SchemaError struct {
	Relation string
	Column   string
	Row      int
	Reason   string
}

func (e *SchemaError) Error() string {
	msg := "grid schema: relation " + e.Relation
	if e.Column != "" {
		msg += " column " + e.Column
	}
	if e.Row >= 0 {
		msg += fmt.Sprintf(" row %d", e.Row)
	}
	return msg + ": " + e.Reason
}
