package model

// AuxSheet is an opaque extra worksheet carried alongside the ledger's
// main sheet. Merges pass these through untouched.
type AuxSheet struct {
	Name string
	Rows [][]string
}

// Ledger is the caller-owned cumulative database: the main record
// collection plus any auxiliary sheets from the backing workbook. A
// merge returns a new Ledger value; the input is never mutated.
type Ledger struct {
	Main *Snapshot
	Aux  []AuxSheet
}

// NewLedger wraps a snapshot as a ledger with no auxiliary sheets.
func NewLedger(main *Snapshot) *Ledger {
	return &Ledger{Main: main}
}

// Len returns the number of rows in the main sheet.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return l.Main.Len()
}

// Clone returns a deep copy of the ledger. Auxiliary sheet rows are
// copied as well so the result shares nothing with the receiver.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	out := &Ledger{Main: l.Main.Clone()}
	for _, sheet := range l.Aux {
		rows := make([][]string, len(sheet.Rows))
		for i, row := range sheet.Rows {
			rows[i] = append([]string(nil), row...)
		}
		out.Aux = append(out.Aux, AuxSheet{Name: sheet.Name, Rows: rows})
	}
	return out
}
