package xlsxio

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/koral-tools/eltunt-cli/internal/model"
	"github.com/koral-tools/eltunt-cli/internal/reconcile"
)

func createWorkbook(t *testing.T, sheets []model.AuxSheet) string {
	t.Helper()
	f := xlsx.NewFile()
	for _, s := range sheets {
		sheet, err := f.AddSheet(s.Name)
		require.NoError(t, err)
		for _, rowData := range s.Rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadSnapshot(t *testing.T) {
	t.Parallel()

	path := createWorkbook(t, []model.AuxSheet{{
		Name: "Munkalap1",
		Rows: [][]string{
			{model.ColName, model.ColBirthDate, model.ColGender},
			{"Kovács Anna", "2001-02-03", "nő"},
			{"Kiss Péter", "1995-07-19", ""},
			{"", "", ""}, // blank row is skipped
		},
	}})

	snap, err := ReadSnapshot(path)
	require.NoError(t, err)

	assert.Equal(t, []string{model.ColName, model.ColBirthDate, model.ColGender}, snap.Columns)
	require.Equal(t, 2, snap.Len())
	assert.Equal(t, "Kovács Anna", snap.Records[0].Get(model.ColName).Str)
	assert.True(t, snap.Records[1].Get(model.ColGender).IsMissing(), "empty cell reads as missing")
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	snap := model.NewSnapshot(model.ColName, model.ColBirthDate, model.ColBirthPlace)
	snap.Append(model.Record{
		model.ColName:      model.String("Nagy Éva"),
		model.ColBirthDate: model.String("1988-12-01"),
	})

	path := filepath.Join(t.TempDir(), "snap.xlsx")
	require.NoError(t, WriteSnapshot(path, snap))

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snap.Columns, got.Columns)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, "Nagy Éva", got.Records[0].Get(model.ColName).Str)
	assert.True(t, got.Records[0].Get(model.ColBirthPlace).IsMissing())
}

func TestReadLedgerCarriesAuxSheets(t *testing.T) {
	t.Parallel()

	path := createWorkbook(t, []model.AuxSheet{
		{
			Name: LedgerSheetName,
			Rows: [][]string{
				{model.ColName, model.ColBirthDate},
				{"A", "2000-01-01"},
			},
		},
		{
			Name: "Összesítés 2023-01-01",
			Rows: [][]string{{"Leírás", "Érték"}, {"Új adatok száma", "5"}},
		},
	})

	ledger, err := ReadLedger(path)
	require.NoError(t, err)

	assert.Equal(t, 1, ledger.Len())
	require.Len(t, ledger.Aux, 1)
	assert.Equal(t, "Összesítés 2023-01-01", ledger.Aux[0].Name)
	assert.Equal(t, "5", ledger.Aux[0].Rows[1][1])
}

func TestWriteLedgerWithSummary(t *testing.T) {
	t.Parallel()

	main := model.NewSnapshot(model.ColName, model.ColBirthDate, "Eltűnés dátuma 2024-06-01")
	main.Append(model.Record{
		model.ColName:              model.String("A"),
		model.ColBirthDate:         model.String("2000-01-01"),
		"Eltűnés dátuma 2024-06-01": model.String("2024-06-01"),
	})
	ledger := model.NewLedger(main)
	ledger.Aux = []model.AuxSheet{
		{Name: "Összesítés 2023-01-01", Rows: [][]string{{"Leírás", "Érték"}}},
		// Stale sheet for the same cycle gets replaced by the new summary.
		{Name: "Összesítés 2024-06-01", Rows: [][]string{{"régi", "tartalom"}}},
	}

	summary := &MergeSummary{
		CycleDate:         "2024-06-01",
		ObservationColumn: "Eltűnés dátuma 2024-06-01",
		LedgerFile:        "ledger.xlsx",
		IncomingFile:      "incoming.xlsx",
		Stats:             reconcile.Stats{Prior: 1, Incoming: 1, Common: 1, Final: 1},
	}

	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	require.NoError(t, WriteLedger(path, ledger, summary))

	got, err := ReadLedger(path)
	require.NoError(t, err)

	names := make([]string, len(got.Aux))
	for i, aux := range got.Aux {
		names[i] = aux.Name
	}
	assert.ElementsMatch(t, []string{"Összesítés 2024-06-01", "Összesítés 2023-01-01"}, names)

	for _, aux := range got.Aux {
		if aux.Name == "Összesítés 2024-06-01" {
			assert.Equal(t, []string{"Leírás", "Érték"}, aux.Rows[0])
		}
	}
}

func TestSaveWithFallback(t *testing.T) {
	t.Parallel()

	t.Run("primary path succeeds", func(t *testing.T) {
		t.Parallel()
		var wrote []string
		path, err := SaveWithFallback("out.xlsx", func(p string) error {
			wrote = append(wrote, p)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "out.xlsx", path)
		assert.Equal(t, []string{"out.xlsx"}, wrote)
	})

	t.Run("falls back to timestamped name", func(t *testing.T) {
		t.Parallel()
		var wrote []string
		path, err := SaveWithFallback("out.xlsx", func(p string) error {
			wrote = append(wrote, p)
			if p == "out.xlsx" {
				return eris.New("locked")
			}
			return nil
		})
		require.NoError(t, err)
		assert.NotEqual(t, "out.xlsx", path)
		assert.Regexp(t, `^out_\d{8}_\d{6}\.xlsx$`, path)
		assert.Len(t, wrote, 2)
	})

	t.Run("both attempts fail", func(t *testing.T) {
		t.Parallel()
		_, err := SaveWithFallback("out.xlsx", func(string) error {
			return eris.New("disk full")
		})
		require.Error(t, err)
	})
}

func TestFallbackName(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 30, 45, 0, time.UTC)
	assert.Equal(t, "dir/ledger_20240601_123045.xlsx", fallbackName("dir/ledger.xlsx", now))
	assert.Equal(t, "plain_20240601_123045", fallbackName("plain", now))
}
