// Package xlsxio adapts snapshots and ledgers to xlsx workbooks. The
// engine never touches files; everything path-shaped lives here.
package xlsxio

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/koral-tools/eltunt-cli/internal/model"
)

// ReadSnapshot loads the first sheet of a workbook as a snapshot. The
// first row is the header; empty cells stay missing; fully blank rows
// are skipped.
func ReadSnapshot(path string) (*model.Snapshot, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsxio: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("xlsxio: %s has no sheets", path)
	}
	return sheetSnapshot(f.Sheets[0])
}

// ReadLedger loads a ledger workbook: the first sheet is the record
// collection, every other sheet is carried opaquely so merges can pass
// it through.
func ReadLedger(path string) (*model.Ledger, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsxio: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("xlsxio: %s has no sheets", path)
	}

	main, err := sheetSnapshot(f.Sheets[0])
	if err != nil {
		return nil, err
	}

	ledger := model.NewLedger(main)
	for _, sheet := range f.Sheets[1:] {
		aux := model.AuxSheet{Name: sheet.Name}
		for _, row := range sheet.Rows {
			aux.Rows = append(aux.Rows, rowStrings(row))
		}
		ledger.Aux = append(ledger.Aux, aux)
	}
	return ledger, nil
}

func sheetSnapshot(sheet *xlsx.Sheet) (*model.Snapshot, error) {
	if len(sheet.Rows) == 0 {
		return model.NewSnapshot(), nil
	}

	header := rowStrings(sheet.Rows[0])
	type headerCol struct {
		name string
		idx  int
	}
	var cols []headerCol
	for i, name := range header {
		if name != "" {
			cols = append(cols, headerCol{name: name, idx: i})
		}
	}
	if len(cols) == 0 {
		return nil, eris.Errorf("xlsxio: sheet %q has an empty header row", sheet.Name)
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	snap := model.NewSnapshot(names...)

	for _, row := range sheet.Rows[1:] {
		cells := rowStrings(row)
		rec := make(model.Record, len(cols))
		for _, c := range cols {
			if c.idx < len(cells) && cells[c.idx] != "" {
				rec.Set(c.name, model.String(cells[c.idx]))
			}
		}
		if len(rec) == 0 {
			continue
		}
		snap.Append(rec)
	}
	return snap, nil
}

func rowStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}
