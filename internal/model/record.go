// Package model holds the shared record shapes consumed by the
// reconciliation engine and its adapters: cell values with an explicit
// missing sentinel, ordered-schema snapshots, and the cumulative ledger.
package model

// Value is one cell of a Record. A Value is either present with a string
// payload or missing. The zero value is missing.
type Value struct {
	Str   string
	Valid bool
}

// Missing is the absent-cell sentinel.
var Missing = Value{}

// String wraps a string as a present Value.
func String(s string) Value {
	return Value{Str: s, Valid: true}
}

// IsMissing reports whether the value counts as missing for comparison
// purposes. Both an absent cell and a present-but-empty string are
// missing; the distinction only matters to serialization.
func (v Value) IsMissing() bool {
	return !v.Valid || v.Str == ""
}

// Equal is the shared field-equality predicate used by both diff and
// merge: missing == missing, missing != present, otherwise exact string
// equality.
func (v Value) Equal(o Value) bool {
	if v.IsMissing() || o.IsMissing() {
		return v.IsMissing() && o.IsMissing()
	}
	return v.Str == o.Str
}

// Record maps column names to cell values. Columns absent from the map
// read as Missing.
type Record map[string]Value

// Get returns the value for col, or Missing if the record has no such
// column.
func (r Record) Get(col string) Value {
	if v, ok := r[col]; ok {
		return v
	}
	return Missing
}

// Set stores a value under col.
func (r Record) Set(col string, v Value) {
	r[col] = v
}

// Clone returns a copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Snapshot is one observation of the full population: an ordered column
// schema plus an unordered collection of records. The engine consumes
// snapshots, it never mutates them.
type Snapshot struct {
	Columns []string
	Records []Record
}

// NewSnapshot creates an empty snapshot with the given column order.
func NewSnapshot(columns ...string) *Snapshot {
	return &Snapshot{Columns: append([]string(nil), columns...)}
}

// Len returns the number of records.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// HasColumn reports whether col is part of the snapshot schema.
func (s *Snapshot) HasColumn(col string) bool {
	for _, c := range s.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// AddColumn appends col to the schema if not already present. Existing
// records keep their missing value for the new column.
func (s *Snapshot) AddColumn(col string) {
	if !s.HasColumn(col) {
		s.Columns = append(s.Columns, col)
	}
}

// Append adds a record to the snapshot.
func (s *Snapshot) Append(r Record) {
	s.Records = append(s.Records, r)
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{Columns: append([]string(nil), s.Columns...)}
	out.Records = make([]Record, len(s.Records))
	for i, r := range s.Records {
		out.Records[i] = r.Clone()
	}
	return out
}

// UnionColumns merges two schemas: all of a in order, then the columns
// of b that a lacks, in b's order.
func UnionColumns(a, b []string) []string {
	out := append([]string(nil), a...)
	seen := make(map[string]struct{}, len(a))
	for _, c := range a {
		seen[c] = struct{}{}
	}
	for _, c := range b {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
