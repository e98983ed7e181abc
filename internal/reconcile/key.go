package reconcile

import (
	"strings"

	"github.com/koral-tools/eltunt-cli/internal/model"
)

// keySep joins key column values into a single map key. Unit separator,
// cannot occur in scraped cell values.
const keySep = "\x1f"

// recordKey builds the join key for a record from the ordered key columns.
func recordKey(r model.Record, keyFields []string) string {
	parts := make([]string, len(keyFields))
	for i, f := range keyFields {
		parts[i] = r.Get(f).Str
	}
	return strings.Join(parts, keySep)
}

// displayKey is recordKey with a human-readable separator, for error
// messages.
func displayKey(r model.Record, keyFields []string) string {
	var parts []string
	for _, f := range keyFields {
		if v := r.Get(f); !v.IsMissing() {
			parts = append(parts, v.Str)
		}
	}
	return strings.Join(parts, " / ")
}

// keyIndex maps join keys to record indices within one snapshot. Keys
// are expected to be unique; duplicates are counted, not resolved, and
// joins fan out over every index under the key.
type keyIndex struct {
	order      []string         // keys in first-seen record order
	rows       map[string][]int // key -> record indices
	duplicates int              // records beyond the first under some key
}

func (ix *keyIndex) has(k string) bool {
	_, ok := ix.rows[k]
	return ok
}

// buildKeyIndex validates the key columns of a snapshot and indexes its
// records. A key column absent from the schema is a SchemaError; a
// record with an empty key value is a ValidationError.
func buildKeyIndex(s *model.Snapshot, keyFields []string, side string) (*keyIndex, error) {
	for _, f := range keyFields {
		if !s.HasColumn(f) {
			return nil, &SchemaError{Side: side, Column: f}
		}
	}

	ix := &keyIndex{rows: make(map[string][]int, s.Len())}
	for i, r := range s.Records {
		for _, f := range keyFields {
			if r.Get(f).IsMissing() {
				return nil, &ValidationError{
					Side:   side,
					Row:    i,
					Column: f,
					Key:    displayKey(r, keyFields),
				}
			}
		}

		k := recordKey(r, keyFields)
		if _, seen := ix.rows[k]; seen {
			ix.duplicates++
		} else {
			ix.order = append(ix.order, k)
		}
		ix.rows[k] = append(ix.rows[k], i)
	}
	return ix, nil
}
