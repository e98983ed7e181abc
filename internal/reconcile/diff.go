// Package reconcile implements the reconciliation engine: snapshot
// diffing and ledger merging over key-joined record collections, with
// shared equality-with-missing semantics and set-wide collapsing of
// redundant before/after column pairs.
//
// Both entry points are pure: they take in-memory snapshots, return new
// values, and do no I/O. A single ledger value must not be merged by two
// concurrent calls; independent inputs are safe.
package reconcile

import (
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/koral-tools/eltunt-cli/internal/model"
)

// Change is one classified row of a diff. Added rows carry only After,
// Removed rows only Before, Modified rows both. The kind is set at
// construction and never inferred from position.
type Change struct {
	Kind   model.ChangeKind
	Before model.Record
	After  model.Record
}

// row returns whichever side is populated, preferring After.
func (c Change) row() model.Record {
	if c.After != nil {
		return c.After
	}
	return c.Before
}

// Warnings carries the non-fatal findings of a diff. Duplicate keys
// within one snapshot make joins fan out as cross products; they are
// surfaced here instead of being silently resolved.
type Warnings struct {
	DuplicateOldKeys int
	DuplicateNewKeys int
}

// ChangeSet is the diff output: classified changes plus the union schema
// needed to materialize them as a table.
type ChangeSet struct {
	KeyFields []string
	Columns   []string // union of both input schemas, old order first
	Changes   []Change
	Warnings  Warnings
}

// Empty reports whether the diff found no changes.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Changes) == 0
}

// Counts returns the number of added, removed, and modified rows.
func (cs *ChangeSet) Counts() (added, removed, modified int) {
	for _, ch := range cs.Changes {
		switch ch.Kind {
		case model.ChangeAdded:
			added++
		case model.ChangeRemoved:
			removed++
		case model.ChangeModified:
			modified++
		}
	}
	return added, removed, modified
}

// Options tunes diff output.
type Options struct {
	// SortByName orders each change group by the person's name using
	// Hungarian collation. Without it, groups keep the join's natural
	// order, which callers must not rely on.
	SortByName bool
}

// Diff compares two snapshots joined on keyFields and classifies every
// difference. Output order is all Added, then all Removed, then all
// Modified. Pairs with no differing non-key field produce no output.
func Diff(oldSnap, newSnap *model.Snapshot, keyFields []string, opts Options) (*ChangeSet, error) {
	if len(keyFields) == 0 {
		return nil, eris.New("reconcile: diff requires at least one key column")
	}

	oldIdx, err := buildKeyIndex(oldSnap, keyFields, "old")
	if err != nil {
		return nil, err
	}
	newIdx, err := buildKeyIndex(newSnap, keyFields, "new")
	if err != nil {
		return nil, err
	}

	cs := &ChangeSet{
		KeyFields: append([]string(nil), keyFields...),
		Columns:   model.UnionColumns(oldSnap.Columns, newSnap.Columns),
		Warnings: Warnings{
			DuplicateOldKeys: oldIdx.duplicates,
			DuplicateNewKeys: newIdx.duplicates,
		},
	}

	isKey := make(map[string]bool, len(keyFields))
	for _, f := range keyFields {
		isKey[f] = true
	}

	var added, removed, modified []Change

	// Left-anti-join of new against old: Added.
	for _, k := range newIdx.order {
		if oldIdx.has(k) {
			continue
		}
		for _, i := range newIdx.rows[k] {
			added = append(added, Change{Kind: model.ChangeAdded, After: newSnap.Records[i]})
		}
	}

	// Left-anti-join of old against new: Removed.
	for _, k := range oldIdx.order {
		if newIdx.has(k) {
			continue
		}
		for _, i := range oldIdx.rows[k] {
			removed = append(removed, Change{Kind: model.ChangeRemoved, Before: oldSnap.Records[i]})
		}
	}

	// Inner join: candidate pairs, a full cross product under duplicate
	// keys. A pair is Modified when any non-key column differs.
	for _, k := range oldIdx.order {
		if !newIdx.has(k) {
			continue
		}
		for _, oi := range oldIdx.rows[k] {
			for _, ni := range newIdx.rows[k] {
				before, after := oldSnap.Records[oi], newSnap.Records[ni]
				if pairDiffers(before, after, cs.Columns, isKey) {
					modified = append(modified, Change{Kind: model.ChangeModified, Before: before, After: after})
				}
			}
		}
	}

	if opts.SortByName {
		coll := collate.New(language.Hungarian)
		for _, group := range [][]Change{added, removed, modified} {
			sortByName(coll, group)
		}
	}

	cs.Changes = make([]Change, 0, len(added)+len(removed)+len(modified))
	cs.Changes = append(cs.Changes, added...)
	cs.Changes = append(cs.Changes, removed...)
	cs.Changes = append(cs.Changes, modified...)
	return cs, nil
}

// pairDiffers reports whether any non-key column differs between the two
// records under the shared equality predicate.
func pairDiffers(before, after model.Record, columns []string, isKey map[string]bool) bool {
	for _, c := range columns {
		if isKey[c] {
			continue
		}
		if !before.Get(c).Equal(after.Get(c)) {
			return true
		}
	}
	return false
}

func sortByName(coll *collate.Collator, group []Change) {
	sort.SliceStable(group, func(i, j int) bool {
		a := group[i].row().Get(model.ColName).Str
		b := group[j].row().Get(model.ColName).Str
		return coll.CompareString(a, b) < 0
	})
}
