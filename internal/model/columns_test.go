package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObservationColumn(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Eltűnés dátuma 2024-06-01", ObservationColumn("2024-06-01"))
}

func TestObservationDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		col  string
		date string
		ok   bool
	}{
		{"Eltűnés dátuma 2024-06-01", "2024-06-01", true},
		{"Eltűnés dátuma", "", false},
		{"Eltűnés dátuma ", "", false},
		{"Születési dátum", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.col, func(t *testing.T) {
			t.Parallel()
			date, ok := ObservationDate(tt.col)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.date, date)
		})
	}
}

func TestObservationColumnsSortsDescending(t *testing.T) {
	t.Parallel()

	cols := []string{
		ColName,
		"Eltűnés dátuma 2023-01-15",
		ColBirthDate,
		"Eltűnés dátuma 2024-06-01",
		"Eltűnés dátuma", // undated source column is not a cycle column
		"Eltűnés dátuma 2023-11-30",
	}
	got := ObservationColumns(cols)
	assert.Equal(t, []string{
		"Eltűnés dátuma 2024-06-01",
		"Eltűnés dátuma 2023-11-30",
		"Eltűnés dátuma 2023-01-15",
	}, got)
}

func TestDefaultKeyColumns(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{ColName, ColBirthDate}, DefaultKeyColumns())
}
