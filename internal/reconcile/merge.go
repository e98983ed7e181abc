package reconcile

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/koral-tools/eltunt-cli/internal/model"
)

// Stats summarizes one merge cycle. Invariants:
// Final == Prior + NewOnly and Common + OnlyInLedger == Prior.
type Stats struct {
	Prior        int `json:"prior"`
	Incoming     int `json:"incoming"`
	Common       int `json:"common"`
	NewOnly      int `json:"new_only"`
	OnlyInLedger int `json:"only_in_ledger"`
	Final        int `json:"final"`

	// Non-fatal: duplicate keys within an input make the join fan out.
	DuplicateLedgerKeys   int `json:"duplicate_ledger_keys,omitempty"`
	DuplicateIncomingKeys int `json:"duplicate_incoming_keys,omitempty"`
}

// MergeOptions configures a merge cycle.
type MergeOptions struct {
	// KeyFields identify a person across snapshots. Defaults to
	// name + birth date.
	KeyFields []string

	// CycleDate is the ISO date identifying this merge cycle. The dated
	// ledger column is derived from it; required.
	CycleDate string

	// ObservationField names the incoming column holding the observed
	// disappearance date. When empty, the newest dated observation
	// column in the incoming snapshot is used, falling back to the
	// undated "Eltűnés dátuma" column.
	ObservationField string
}

// DiscoverObservationField picks the incoming column holding the
// disappearance date: the newest dated observation column if any,
// otherwise the bare prefix column, otherwise "".
func DiscoverObservationField(columns []string) string {
	if dated := model.ObservationColumns(columns); len(dated) > 0 {
		return dated[0]
	}
	for _, c := range columns {
		if c == model.ObservationPrefix {
			return c
		}
	}
	return ""
}

// Merge folds one incoming snapshot into the ledger and returns the new
// ledger value plus cycle statistics. The input ledger is never
// mutated; on any error it is returned unchanged in spirit (nil ledger,
// nothing applied).
//
// Rows present in both sides get their current-cycle dated column
// overwritten from the incoming observation field and keep every other
// ledger value: once a row exists, the ledger owns its biography. Rows
// only in the incoming snapshot are appended. Rows only in the ledger
// are retained untouched rather than deleted. Auxiliary sheets pass
// through as-is.
func Merge(ledger *model.Ledger, incoming *model.Snapshot, opts MergeOptions) (*model.Ledger, Stats, error) {
	keyFields := opts.KeyFields
	if len(keyFields) == 0 {
		keyFields = model.DefaultKeyColumns()
	}
	if opts.CycleDate == "" {
		return nil, Stats{}, eris.New("reconcile: merge requires a cycle date")
	}

	stats := Stats{Prior: ledger.Len(), Incoming: incoming.Len()}

	// Empty incoming is a no-op cycle: no schema widening, no new dated
	// column, ledger content unchanged.
	if incoming.Len() == 0 {
		out := ledger.Clone()
		stats.Final = out.Len()
		return out, stats, nil
	}

	obsField := opts.ObservationField
	if obsField == "" {
		obsField = DiscoverObservationField(incoming.Columns)
	}
	if obsField == "" || !incoming.HasColumn(obsField) {
		missing := obsField
		if missing == "" {
			missing = model.ObservationPrefix
		}
		return nil, Stats{}, &SchemaError{Side: "incoming", Column: missing}
	}

	inIdx, err := buildKeyIndex(incoming, keyFields, "incoming")
	if err != nil {
		return nil, Stats{}, err
	}

	out := ledger.Clone()
	if out == nil || out.Main == nil {
		out = model.NewLedger(model.NewSnapshot())
	}

	// Schema widening: every incoming column the ledger lacks, then the
	// cycle's dated column. The column set only grows. Widening first
	// also lets a freshly created empty ledger pass key validation.
	for _, c := range incoming.Columns {
		out.Main.AddColumn(c)
	}
	cycleCol := model.ObservationColumn(opts.CycleDate)
	out.Main.AddColumn(cycleCol)

	ledIdx, err := buildKeyIndex(out.Main, keyFields, "ledger")
	if err != nil {
		return nil, Stats{}, err
	}
	stats.DuplicateIncomingKeys = inIdx.duplicates
	stats.DuplicateLedgerKeys = ledIdx.duplicates
	if inIdx.duplicates > 0 || ledIdx.duplicates > 0 {
		zap.L().Warn("reconcile: duplicate keys, joins will fan out",
			zap.Int("ledger", ledIdx.duplicates),
			zap.Int("incoming", inIdx.duplicates),
		)
	}

	// Common vs only-in-ledger, counted over ledger rows.
	for _, r := range out.Main.Records {
		k := recordKey(r, keyFields)
		rows, ok := inIdx.rows[k]
		if !ok {
			stats.OnlyInLedger++
			continue
		}
		stats.Common++
		r.Set(cycleCol, incoming.Records[rows[0]].Get(obsField))
	}

	// New-only incoming rows are appended, copying every column the
	// widened schema knows; ledger-only columns default to missing.
	for _, k := range inIdx.order {
		if ledIdx.has(k) {
			continue
		}
		for _, ri := range inIdx.rows[k] {
			src := incoming.Records[ri]
			nr := make(model.Record, len(out.Main.Columns))
			for _, c := range out.Main.Columns {
				if c == cycleCol {
					continue
				}
				if v := src.Get(c); v.Valid {
					nr.Set(c, v)
				}
			}
			nr.Set(cycleCol, src.Get(obsField))
			out.Main.Append(nr)
			stats.NewOnly++
		}
	}

	stats.Final = out.Len()
	return out, stats, nil
}
