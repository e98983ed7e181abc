package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koral-tools/eltunt-cli/internal/model"
)

func ledgerOf(s *model.Snapshot) *model.Ledger {
	return model.NewLedger(s)
}

func TestMergeRecordsNewCycleColumn(t *testing.T) {
	t.Parallel()

	ledger := ledgerOf(snap(
		[]string{model.ColName, model.ColBirthDate, "Eltűnés dátuma 2023-01-01"},
		[]string{"A", "2000-01-01", "2023-01-01"},
	))
	incoming := snap(
		[]string{model.ColName, model.ColBirthDate, model.ObservationPrefix},
		[]string{"A", "2000-01-01", "2024-06-01"},
	)

	out, stats, err := Merge(ledger, incoming, MergeOptions{CycleDate: "2024-06-01"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Common)
	assert.Zero(t, stats.NewOnly)
	assert.Zero(t, stats.OnlyInLedger)
	assert.Equal(t, 1, stats.Final)

	require.Equal(t, 1, out.Len())
	row := out.Main.Records[0]
	assert.Equal(t, "2023-01-01", row.Get("Eltűnés dátuma 2023-01-01").Str, "prior cycle retained")
	assert.Equal(t, "2024-06-01", row.Get("Eltűnés dátuma 2024-06-01").Str, "new cycle recorded")
}

func TestMergeStatsInvariants(t *testing.T) {
	t.Parallel()

	ledger := ledgerOf(snap(
		[]string{model.ColName, model.ColBirthDate, model.ObservationPrefix},
		[]string{"Közös", "1990-01-01", "2023-05-05"},
		[]string{"Megtalált", "1991-01-01", "2023-05-05"},
	))
	incoming := snap(
		[]string{model.ColName, model.ColBirthDate, model.ObservationPrefix},
		[]string{"Közös", "1990-01-01", "2024-06-01"},
		[]string{"Újonnan", "1992-01-01", "2024-06-01"},
	)

	out, stats, err := Merge(ledger, incoming, MergeOptions{CycleDate: "2024-06-01"})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Prior)
	assert.Equal(t, 2, stats.Incoming)
	assert.Equal(t, 1, stats.Common)
	assert.Equal(t, 1, stats.NewOnly)
	assert.Equal(t, 1, stats.OnlyInLedger)
	assert.Equal(t, stats.Prior+stats.NewOnly, stats.Final)
	assert.Equal(t, stats.Prior, stats.Common+stats.OnlyInLedger)
	assert.Equal(t, stats.Final, out.Len())
}

func TestMergeIdempotentForSameCycle(t *testing.T) {
	t.Parallel()

	ledger := ledgerOf(snap(
		[]string{model.ColName, model.ColBirthDate},
		[]string{"A", "2000-01-01"},
	))
	incoming := snap(
		[]string{model.ColName, model.ColBirthDate, model.ObservationPrefix},
		[]string{"A", "2000-01-01", "2024-06-01"},
		[]string{"B", "2001-01-01", "2024-06-01"},
	)
	opts := MergeOptions{CycleDate: "2024-06-01"}

	once, stats1, err := Merge(ledger, incoming, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, stats1.NewOnly)

	twice, stats2, err := Merge(once, incoming, opts)
	require.NoError(t, err)
	assert.Zero(t, stats2.NewOnly)
	assert.Equal(t, 2, stats2.Common)
	assert.Equal(t, once.Len(), twice.Len())
	assert.Equal(t, once.Main.Columns, twice.Main.Columns)
	for i, row := range once.Main.Records {
		for _, c := range once.Main.Columns {
			assert.True(t, row.Get(c).Equal(twice.Main.Records[i].Get(c)),
				"row %d column %q changed on re-merge", i, c)
		}
	}
}

func TestMergeLedgerOwnsBiography(t *testing.T) {
	t.Parallel()

	ledger := ledgerOf(snap(
		[]string{model.ColName, model.ColBirthDate, model.ColBirthPlace},
		[]string{"A", "2000-01-01", "Pécs"},
	))
	incoming := snap(
		[]string{model.ColName, model.ColBirthDate, model.ColBirthPlace, model.ObservationPrefix},
		[]string{"A", "2000-01-01", "Budapest", "2024-06-01"},
	)

	out, _, err := Merge(ledger, incoming, MergeOptions{CycleDate: "2024-06-01"})
	require.NoError(t, err)

	row := out.Main.Records[0]
	assert.Equal(t, "Pécs", row.Get(model.ColBirthPlace).Str,
		"existing ledger rows keep their biographical fields")
}

func TestMergeWidensSchemaNeverNarrows(t *testing.T) {
	t.Parallel()

	ledger := ledgerOf(snap(
		[]string{model.ColName, model.ColBirthDate, "Megjegyzés"},
		[]string{"A", "2000-01-01", "kézi jegyzet"},
	))
	incoming := snap(
		[]string{model.ColName, model.ColBirthDate, model.ColBirthCountry, model.ObservationPrefix},
		[]string{"B", "2001-01-01", "Magyarország", "2024-06-01"},
	)

	out, _, err := Merge(ledger, incoming, MergeOptions{CycleDate: "2024-06-01"})
	require.NoError(t, err)

	for _, c := range []string{"Megjegyzés", model.ColBirthCountry, "Eltűnés dátuma 2024-06-01"} {
		assert.True(t, out.Main.HasColumn(c), "missing column %q", c)
	}

	// Prior row: new columns missing. New row: ledger-only column missing,
	// incoming fields copied.
	prior := out.Main.Records[0]
	assert.True(t, prior.Get(model.ColBirthCountry).IsMissing())
	assert.Equal(t, "kézi jegyzet", prior.Get("Megjegyzés").Str)

	added := out.Main.Records[1]
	assert.Equal(t, "Magyarország", added.Get(model.ColBirthCountry).Str)
	assert.True(t, added.Get("Megjegyzés").IsMissing())
	assert.Equal(t, "2024-06-01", added.Get("Eltűnés dátuma 2024-06-01").Str)
}

func TestMergeOnlyInLedgerRetained(t *testing.T) {
	t.Parallel()

	ledger := ledgerOf(snap(
		[]string{model.ColName, model.ColBirthDate, "Eltűnés dátuma 2023-01-01"},
		[]string{"Megkerült", "1985-03-03", "2023-01-01"},
	))
	incoming := snap(
		[]string{model.ColName, model.ColBirthDate, model.ObservationPrefix},
		[]string{"Más Valaki", "1999-09-09", "2024-06-01"},
	)

	out, stats, err := Merge(ledger, incoming, MergeOptions{CycleDate: "2024-06-01"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.OnlyInLedger)
	row := out.Main.Records[0]
	assert.Equal(t, "Megkerült", row.Get(model.ColName).Str)
	assert.Equal(t, "2023-01-01", row.Get("Eltűnés dátuma 2023-01-01").Str)
	assert.True(t, row.Get("Eltűnés dátuma 2024-06-01").IsMissing(),
		"not observed this cycle stays empty, not deleted")
}

func TestMergeAuxSheetsPassThrough(t *testing.T) {
	t.Parallel()

	ledger := ledgerOf(snap(
		[]string{model.ColName, model.ColBirthDate},
		[]string{"A", "2000-01-01"},
	))
	ledger.Aux = []model.AuxSheet{
		{Name: "Összesítés 2023-01-01", Rows: [][]string{{"Leírás", "Érték"}, {"Új adatok száma", "3"}}},
	}
	incoming := snap(
		[]string{model.ColName, model.ColBirthDate, model.ObservationPrefix},
		[]string{"A", "2000-01-01", "2024-06-01"},
	)

	out, _, err := Merge(ledger, incoming, MergeOptions{CycleDate: "2024-06-01"})
	require.NoError(t, err)

	require.Len(t, out.Aux, 1)
	assert.Equal(t, "Összesítés 2023-01-01", out.Aux[0].Name)
	assert.Equal(t, ledger.Aux[0].Rows, out.Aux[0].Rows)
}

func TestMergeEmptyIncomingIsNoOp(t *testing.T) {
	t.Parallel()

	ledger := ledgerOf(snap(
		[]string{model.ColName, model.ColBirthDate},
		[]string{"A", "2000-01-01"},
	))
	incoming := model.NewSnapshot()

	out, stats, err := Merge(ledger, incoming, MergeOptions{CycleDate: "2024-06-01"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Prior)
	assert.Equal(t, 1, stats.Final)
	assert.Zero(t, stats.Common)
	assert.Zero(t, stats.NewOnly)
	assert.Zero(t, stats.OnlyInLedger)
	assert.Equal(t, ledger.Main.Columns, out.Main.Columns, "no dated column added on a no-op cycle")
}

func TestMergeMissingObservationFieldAborts(t *testing.T) {
	t.Parallel()

	ledger := ledgerOf(snap(
		[]string{model.ColName, model.ColBirthDate},
		[]string{"A", "2000-01-01"},
	))
	incoming := snap(
		[]string{model.ColName, model.ColBirthDate},
		[]string{"A", "2000-01-01"},
	)

	out, _, err := Merge(ledger, incoming, MergeOptions{CycleDate: "2024-06-01"})
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "incoming", schemaErr.Side)
	assert.Equal(t, model.ObservationPrefix, schemaErr.Column)
	assert.Nil(t, out, "nothing partially applied")
}

func TestMergeMissingKeyColumnAborts(t *testing.T) {
	t.Parallel()

	ledger := ledgerOf(snap(
		[]string{model.ColName, model.ColBirthDate},
		[]string{"A", "2000-01-01"},
	))
	incoming := snap(
		[]string{model.ColName, model.ObservationPrefix},
		[]string{"A", "2024-06-01"},
	)

	out, _, err := Merge(ledger, incoming, MergeOptions{CycleDate: "2024-06-01"})
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "incoming", schemaErr.Side)
	assert.Equal(t, model.ColBirthDate, schemaErr.Column)
	assert.Nil(t, out)
}

func TestMergeEmptyKeyValueAborts(t *testing.T) {
	t.Parallel()

	ledger := ledgerOf(snap(
		[]string{model.ColName, model.ColBirthDate},
		[]string{"A", "2000-01-01"},
	))
	incoming := snap(
		[]string{model.ColName, model.ColBirthDate, model.ObservationPrefix},
		[]string{"", "2001-01-01", "2024-06-01"},
	)

	out, _, err := Merge(ledger, incoming, MergeOptions{CycleDate: "2024-06-01"})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "incoming", valErr.Side)
	assert.Equal(t, model.ColName, valErr.Column)
	assert.Nil(t, out)
}

func TestMergeRequiresCycleDate(t *testing.T) {
	t.Parallel()

	ledger := ledgerOf(model.NewSnapshot(model.ColName, model.ColBirthDate))
	incoming := snap(
		[]string{model.ColName, model.ColBirthDate, model.ObservationPrefix},
		[]string{"A", "2000-01-01", "2024-06-01"},
	)

	_, _, err := Merge(ledger, incoming, MergeOptions{})
	require.Error(t, err)
}

func TestMergeIntoEmptyLedger(t *testing.T) {
	t.Parallel()

	ledger := ledgerOf(model.NewSnapshot())
	incoming := snap(
		[]string{model.ColName, model.ColBirthDate, model.ObservationPrefix},
		[]string{"A", "2000-01-01", "2024-06-01"},
		[]string{"B", "2001-01-01", "2024-06-01"},
	)

	out, stats, err := Merge(ledger, incoming, MergeOptions{CycleDate: "2024-06-01"})
	require.NoError(t, err)

	assert.Zero(t, stats.Prior)
	assert.Equal(t, 2, stats.NewOnly)
	assert.Equal(t, 2, stats.Final)
	assert.Equal(t, "2024-06-01", out.Main.Records[0].Get("Eltűnés dátuma 2024-06-01").Str)
}

func TestMergeDatedObservationFieldPreferred(t *testing.T) {
	t.Parallel()

	ledger := ledgerOf(snap(
		[]string{model.ColName, model.ColBirthDate},
		[]string{"A", "2000-01-01"},
	))
	// Incoming carries both a bare and a dated observation column; the
	// dated one wins.
	incoming := snap(
		[]string{model.ColName, model.ColBirthDate, model.ObservationPrefix, "Eltűnés dátuma 2024-06-01"},
		[]string{"A", "2000-01-01", "régi", "2024-06-01"},
	)

	out, _, err := Merge(ledger, incoming, MergeOptions{CycleDate: "2024-06-01"})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", out.Main.Records[0].Get("Eltűnés dátuma 2024-06-01").Str)
}

func TestMergeDuplicateKeysCounted(t *testing.T) {
	t.Parallel()

	ledger := ledgerOf(snap(
		[]string{model.ColName, model.ColBirthDate},
		[]string{"A", "2000-01-01"},
	))
	incoming := snap(
		[]string{model.ColName, model.ColBirthDate, model.ObservationPrefix},
		[]string{"B", "2001-01-01", "2024-06-01"},
		[]string{"B", "2001-01-01", "2024-06-02"},
	)

	_, stats, err := Merge(ledger, incoming, MergeOptions{CycleDate: "2024-06-01"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DuplicateIncomingKeys)
	assert.Equal(t, 2, stats.NewOnly, "cross-product fan-out is documented, not corrected")
}

func TestMergeInputLedgerNotMutated(t *testing.T) {
	t.Parallel()

	ledger := ledgerOf(snap(
		[]string{model.ColName, model.ColBirthDate},
		[]string{"A", "2000-01-01"},
	))
	incoming := snap(
		[]string{model.ColName, model.ColBirthDate, model.ObservationPrefix},
		[]string{"A", "2000-01-01", "2024-06-01"},
		[]string{"B", "2001-01-01", "2024-06-01"},
	)

	_, _, err := Merge(ledger, incoming, MergeOptions{CycleDate: "2024-06-01"})
	require.NoError(t, err)

	assert.Equal(t, 1, ledger.Len())
	assert.Equal(t, []string{model.ColName, model.ColBirthDate}, ledger.Main.Columns)
}

func TestDiscoverObservationField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cols []string
		want string
	}{
		{
			"dated column preferred",
			[]string{model.ColName, model.ObservationPrefix, "Eltűnés dátuma 2024-06-01"},
			"Eltűnés dátuma 2024-06-01",
		},
		{
			"newest dated column wins",
			[]string{"Eltűnés dátuma 2023-01-01", "Eltűnés dátuma 2024-06-01"},
			"Eltűnés dátuma 2024-06-01",
		},
		{
			"bare fallback",
			[]string{model.ColName, model.ObservationPrefix},
			model.ObservationPrefix,
		},
		{
			"none",
			[]string{model.ColName},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DiscoverObservationField(tt.cols))
		})
	}
}
