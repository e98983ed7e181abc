package reconcile

import "fmt"

// SchemaError reports a required column missing from an input. The whole
// operation fails; nothing is partially applied.
type SchemaError struct {
	Side   string // "old", "new", "ledger", "incoming"
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("reconcile: required column %q missing from %s input", e.Column, e.Side)
}

// ValidationError reports a record whose key column is present in the
// schema but empty. Same abort policy as SchemaError.
type ValidationError struct {
	Side   string
	Row    int    // record index within the input snapshot
	Column string // the offending key column
	Key    string // the record's key values that were resolvable
}

func (e *ValidationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("reconcile: empty key column %q in %s row %d (key %q)", e.Column, e.Side, e.Row, e.Key)
	}
	return fmt.Sprintf("reconcile: empty key column %q in %s row %d", e.Column, e.Side, e.Row)
}
