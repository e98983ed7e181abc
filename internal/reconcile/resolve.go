package reconcile

import "github.com/koral-tools/eltunt-cli/internal/model"

// Table materializes a change set as a snapshot. For every non-key
// column the whole set is inspected: if no row shows a real before/after
// difference the column collapses to a single reconciled one, otherwise
// it stays as an adjacent " (előző)" / " (új)" pair. Column order is key
// columns, non-key columns in union order, then the change kind tag.
func (cs *ChangeSet) Table() *model.Snapshot {
	isKey := make(map[string]bool, len(cs.KeyFields))
	for _, f := range cs.KeyFields {
		isKey[f] = true
	}

	type colPlan struct {
		name      string
		collapsed bool
	}
	var plans []colPlan
	for _, c := range cs.Columns {
		if isKey[c] {
			continue
		}
		plans = append(plans, colPlan{name: c, collapsed: cs.collapsible(c)})
	}

	columns := append([]string(nil), cs.KeyFields...)
	for _, p := range plans {
		if p.collapsed {
			columns = append(columns, p.name)
		} else {
			columns = append(columns, p.name+model.SuffixBefore, p.name+model.SuffixAfter)
		}
	}
	columns = append(columns, model.ChangeColumn)

	out := model.NewSnapshot(columns...)
	for _, ch := range cs.Changes {
		r := make(model.Record, len(columns))
		src := ch.row()
		for _, f := range cs.KeyFields {
			r.Set(f, src.Get(f))
		}
		for _, p := range plans {
			b := sideValue(ch.Before, p.name)
			a := sideValue(ch.After, p.name)
			if p.collapsed {
				// The non-missing side; before preferred, though by the
				// collapse rule both sides agree whenever both exist.
				v := b
				if v.IsMissing() {
					v = a
				}
				if !v.IsMissing() {
					r.Set(p.name, v)
				}
			} else {
				if !b.IsMissing() {
					r.Set(p.name+model.SuffixBefore, b)
				}
				if !a.IsMissing() {
					r.Set(p.name+model.SuffixAfter, a)
				}
			}
		}
		r.Set(model.ChangeColumn, model.String(string(ch.Kind)))
		out.Append(r)
	}
	return out
}

// collapsible reports whether col can fold into a single column: in
// every row of the set the before and after values are equal or at
// least one side is missing.
func (cs *ChangeSet) collapsible(col string) bool {
	for _, ch := range cs.Changes {
		b := sideValue(ch.Before, col)
		a := sideValue(ch.After, col)
		if b.IsMissing() || a.IsMissing() {
			continue
		}
		if b.Str != a.Str {
			return false
		}
	}
	return true
}

func sideValue(r model.Record, col string) model.Value {
	if r == nil {
		return model.Missing
	}
	return r.Get(col)
}
