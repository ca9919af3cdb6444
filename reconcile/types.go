// Package reconcile matches GSTN filed invoices against the books ledger.
//
// A pass filters both sources, outer-joins them on (party id, normalized invoice
// number), flags tax differences on matched pairs, buckets GSTN-only invoices by
// fiscal period and shapes up to four result tables. The package is pure: it
// does no I/O and does not log, everything worth reporting comes back as a
// Diagnostic.
package reconcile

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/models"
	"github.com/shopspring/decimal"
)

// Table is an in-memory sheet. Rows are aligned to Columns; a cell holds nil,
// string, decimal.Decimal, time.Time, bool or a plain number.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

func NewTable(name string, columns ...string) *Table {
	return &Table{Name: name, Columns: columns}
}

// AddRow appends a row, padding or truncating to the column count.
func (t *Table) AddRow(values ...any) {
	row := make([]any, len(t.Columns))
	copy(row, values)
	t.Rows = append(t.Rows, row)
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (t *Table) HasColumn(name string) bool {
	return name != "" && t.ColumnIndex(name) >= 0
}

// Value returns the cell at (row, column) or nil when the column is unknown.
func (t *Table) Value(row int, column string) any {
	idx := t.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) || idx >= len(t.Rows[row]) {
		return nil
	}
	return t.Rows[row][idx]
}

// Field is one source column value carried by a record, tagged by the record's Source.
type Field struct {
	Column string
	Value  any
}

type InvoiceRecord struct {
	Source           models.Source
	Row              int
	PartyId          string
	RawInvoiceNumber string
	NormalizedKey    string
	InvoiceDate      *time.Time
	FilingDate       *time.Time
	// missing entry means the amount was absent in the source
	Taxes  map[models.TaxField]decimal.Decimal
	Fields []Field
}

// Value looks up a source column on the record.
func (r InvoiceRecord) Value(column string) (any, bool) {
	for _, f := range r.Fields {
		if f.Column == column {
			return f.Value, true
		}
	}
	return nil, false
}

// Tax returns the zero-filled amount for field.
func (r InvoiceRecord) Tax(field models.TaxField) decimal.Decimal {
	if v, ok := r.Taxes[field]; ok {
		return v
	}
	return decimal.Zero
}

func (r InvoiceRecord) String() string {
	return fmt.Sprintf("%s %s/%s", r.Source, r.PartyId, r.RawInvoiceNumber)
}

// MatchedPair joins one GSTN and one BOOKS record sharing (party id, normalized key).
type MatchedPair struct {
	Gstn        InvoiceRecord
	Books       InvoiceRecord
	HasMismatch bool
}

type UnmatchedGstnRecord struct {
	Record InvoiceRecord
	Bucket models.PeriodBucket
}

type UnmatchedBooksRecord struct {
	Record InvoiceRecord
}

// Diagnostic is a non-fatal finding of a pass. PartyId and InvoiceNumber are set
// for row level findings, Column for schema and cell findings.
type Diagnostic struct {
	Kind          models.DiagnosticKind
	Source        models.Source
	PartyId       string
	InvoiceNumber string
	Column        string
	Message       string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s", d.Kind, d.Message)
}
