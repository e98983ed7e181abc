package xlsxio

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/koral-tools/eltunt-cli/internal/model"
	"github.com/koral-tools/eltunt-cli/internal/reconcile"
)

// Sheet names used by written workbooks.
const (
	SnapshotSheetName = "Eltűnt személyek"
	LedgerSheetName   = "Adatbázis"
	summaryPrefix     = "Összesítés"
)

// WriteSnapshot writes a snapshot as a single-sheet workbook.
func WriteSnapshot(path string, snap *model.Snapshot) error {
	f := xlsx.NewFile()
	if err := addSnapshotSheet(f, SnapshotSheetName, snap); err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "xlsxio: save %s", path)
}

// MergeSummary describes one merge cycle for the per-cycle summary
// sheet appended to the ledger workbook.
type MergeSummary struct {
	CycleDate         string
	ObservationColumn string
	LedgerFile        string
	IncomingFile      string
	Stats             reconcile.Stats
}

// SheetName returns the dated summary sheet name.
func (s MergeSummary) SheetName() string {
	return summaryPrefix + " " + s.CycleDate
}

func (s MergeSummary) rows() [][]string {
	return [][]string{
		{"Leírás", "Érték"},
		{"Meglévő adatbázis", s.LedgerFile},
		{"Új adatok", s.IncomingFile},
		{"Frissítés dátuma", s.CycleDate},
		{"Használt eltűnési dátum oszlop", s.ObservationColumn},
		{"Meglévő adatbázis rekordok száma", fmt.Sprint(s.Stats.Prior)},
		{"Új adatok száma", fmt.Sprint(s.Stats.Incoming)},
		{"Frissített rekordok száma", fmt.Sprint(s.Stats.Common)},
		{"Hozzáadott új rekordok száma", fmt.Sprint(s.Stats.NewOnly)},
		{"Csak meglévőben található rekordok száma", fmt.Sprint(s.Stats.OnlyInLedger)},
		{"Egyesített adatbázis rekordok száma", fmt.Sprint(s.Stats.Final)},
	}
}

// WriteLedger writes the ledger workbook: main sheet first, then the
// cycle summary when given, then every auxiliary sheet. An auxiliary
// sheet sharing the summary's name is replaced by it, so re-running a
// cycle does not duplicate sheets.
func WriteLedger(path string, ledger *model.Ledger, summary *MergeSummary) error {
	f := xlsx.NewFile()
	if err := addSnapshotSheet(f, LedgerSheetName, ledger.Main); err != nil {
		return err
	}

	skip := ""
	if summary != nil {
		skip = summary.SheetName()
		if err := addRawSheet(f, skip, summary.rows()); err != nil {
			return err
		}
	}

	for _, aux := range ledger.Aux {
		if aux.Name == skip || aux.Name == LedgerSheetName {
			continue
		}
		if err := addRawSheet(f, aux.Name, aux.Rows); err != nil {
			return err
		}
	}
	return eris.Wrapf(f.Save(path), "xlsxio: save %s", path)
}

// SaveWithFallback attempts write(path); when that fails (typically the
// file is open in a spreadsheet program) it retries once with a
// timestamped name next to the original. Returns the path actually
// written.
func SaveWithFallback(path string, write func(string) error) (string, error) {
	err := write(path)
	if err == nil {
		return path, nil
	}

	alt := fallbackName(path, time.Now())
	if err2 := write(alt); err2 != nil {
		return "", eris.Wrapf(err2, "xlsxio: save failed for both %s (%v) and %s", path, err, alt)
	}
	zap.L().Warn("xlsxio: saved to fallback path, original may be open in another program",
		zap.String("path", path),
		zap.String("fallback", alt),
		zap.Error(err),
	)
	return alt, nil
}

func fallbackName(path string, now time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s_%s%s", base, now.Format("20060102_150405"), ext)
}

func addSnapshotSheet(f *xlsx.File, name string, snap *model.Snapshot) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "xlsxio: add sheet %q", name)
	}

	header := sheet.AddRow()
	for _, col := range snap.Columns {
		header.AddCell().SetString(col)
	}
	for _, rec := range snap.Records {
		row := sheet.AddRow()
		for _, col := range snap.Columns {
			cell := row.AddCell()
			if v := rec.Get(col); !v.IsMissing() {
				cell.SetString(v.Str)
			}
		}
	}
	return nil
}

func addRawSheet(f *xlsx.File, name string, rows [][]string) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "xlsxio: add sheet %q", name)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for _, cell := range r {
			row.AddCell().SetString(cell)
		}
	}
	return nil
}
