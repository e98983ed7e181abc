package model

import (
	"sort"
	"strings"
)

// Column names as they appear on the police.hu detail pages and in every
// workbook produced by this tool. The Hungarian vocabulary is the wire
// format; ledgers built by earlier versions depend on it verbatim.
const (
	ColName              = "Név"
	ColGender            = "Nem"
	ColBirthPlace        = "Születési hely"
	ColBirthDate         = "Születési dátum"
	ColBirthCountry      = "Születési ország"
	ColOrderingAuthority = "Körözést elrendelő szerv"
	ColCaseReference     = "Körözési eljárás határozat száma"

	// ObservationPrefix is the label under which per-cycle disappearance
	// dates are recorded. One dated column per merge cycle.
	ObservationPrefix = "Eltűnés dátuma"

	// ChangeColumn holds the change kind tag in diff output.
	ChangeColumn = "Változás"

	// SuffixBefore and SuffixAfter mark unresolved before/after column
	// pairs in diff output.
	SuffixBefore = " (előző)"
	SuffixAfter  = " (új)"
)

// ChangeKind classifies one row of a diff.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "Új"
	ChangeRemoved  ChangeKind = "Törölt"
	ChangeModified ChangeKind = "Adatváltozás"
)

// DefaultKeyColumns returns the columns identifying a person across
// snapshots.
func DefaultKeyColumns() []string {
	return []string{ColName, ColBirthDate}
}

// BaseColumns returns the biographical columns every collected snapshot
// carries, in display order.
func BaseColumns() []string {
	return []string{
		ColName,
		ColGender,
		ColBirthPlace,
		ColBirthDate,
		ColBirthCountry,
		ColOrderingAuthority,
		ColCaseReference,
	}
}

// ObservationColumn resolves the display name of the dated observation
// column for a cycle date (ISO format, e.g. "2024-06-01"). This is the
// only place the name is assembled; the engine otherwise treats the
// cycle date as an opaque identity.
func ObservationColumn(cycleDate string) string {
	return ObservationPrefix + " " + cycleDate
}

// ObservationDate extracts the cycle date embedded in an observation
// column name. The bare, undated prefix yields ok == false.
func ObservationDate(col string) (date string, ok bool) {
	if !strings.HasPrefix(col, ObservationPrefix+" ") {
		return "", false
	}
	date = strings.TrimSpace(strings.TrimPrefix(col, ObservationPrefix+" "))
	return date, date != ""
}

// ObservationColumns returns the dated observation columns found in
// cols, sorted by embedded date descending: index 0 is the current
// cycle, index 1 the previous one.
func ObservationColumns(cols []string) []string {
	var out []string
	for _, c := range cols {
		if _, ok := ObservationDate(c); ok {
			out = append(out, c)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}
