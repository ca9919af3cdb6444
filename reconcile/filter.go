package reconcile

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/models"
	"github.com/shopspring/decimal"
)

type FilterStats struct {
	Rows                 int `json:"rows"`
	MissingPartyId       int `json:"missing_party_id"`
	MissingInvoiceNumber int `json:"missing_invoice_number"`
	EmptyKey             int `json:"empty_key"`
	Kept                 int `json:"kept"`
}

func (s FilterStats) Excluded() int {
	return s.MissingPartyId + s.MissingInvoiceNumber + s.EmptyKey
}

// RecordSet is the cleaned record list of one source.
type RecordSet struct {
	Source  models.Source
	Columns []string
	Records []InvoiceRecord
	Stats   FilterStats
}

// HasColumn reports whether the source schema carries column.
func (rs *RecordSet) HasColumn(column string) bool {
	for _, c := range rs.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// FilterRecords turns a raw source table into records that can be joined.
// Rows without party id or invoice number are dropped, as are rows whose invoice
// number has nothing left after normalization. Unreadable tax or date cells are
// treated as missing and reported.
func FilterRecords(table *Table, source models.Source, schema Schema, normalize KeyNormalizer) (*RecordSet, []Diagnostic, error) {
	if table == nil {
		return nil, nil, fmt.Errorf("%s: %w", source, ErrNilTable)
	}
	for _, col := range []string{schema.PartyColumn, schema.InvoiceNumberColumn} {
		if !table.HasColumn(col) {
			return nil, nil, fmt.Errorf("%s sheet %q: %w: %q", source, table.Name, ErrMissingKeyColumn, col)
		}
	}
	if normalize == nil {
		normalize = StripAlpha
	}

	partyIdx := table.ColumnIndex(schema.PartyColumn)
	invoiceIdx := table.ColumnIndex(schema.InvoiceNumberColumn)

	rs := &RecordSet{
		Source:  source,
		Columns: append([]string(nil), table.Columns...),
		Records: make([]InvoiceRecord, 0, len(table.Rows)),
	}
	var diagnostics []Diagnostic

	for i, row := range table.Rows {
		rs.Stats.Rows++
		partyId, ok := cellString(cellAt(row, partyIdx))
		if !ok {
			rs.Stats.MissingPartyId++
			continue
		}
		rawInvoice, ok := cellString(cellAt(row, invoiceIdx))
		if !ok {
			rs.Stats.MissingInvoiceNumber++
			continue
		}
		key := normalize(rawInvoice)
		if key == "" {
			rs.Stats.EmptyKey++
			continue
		}

		rec := InvoiceRecord{
			Source:           source,
			Row:              i,
			PartyId:          partyId,
			RawInvoiceNumber: rawInvoice,
			NormalizedKey:    key,
			Taxes:            make(map[models.TaxField]decimal.Decimal),
			Fields:           make([]Field, 0, len(table.Columns)),
		}

		for c, column := range table.Columns {
			value := cellAt(row, c)
			switch {
			case column == schema.PartyColumn:
				value = partyId
			case column == schema.InvoiceNumberColumn:
				value = rawInvoice
			case schema.isDateColumn(column):
				date, err := cellDate(value)
				if err != nil {
					diagnostics = append(diagnostics, unparseableCell(rec, column, value, err))
				}
				if column == schema.InvoiceDateColumn {
					rec.InvoiceDate = date
				} else {
					rec.FilingDate = date
				}
				value = dateValue(date)
			default:
				field, isTax := schema.taxFieldOf(column)
				if !isTax {
					break
				}
				amount, present, err := cellDecimal(value)
				if err != nil {
					diagnostics = append(diagnostics, unparseableCell(rec, column, value, err))
				}
				if present {
					rec.Taxes[field] = amount
					value = amount
				} else {
					value = nil
				}
			}
			rec.Fields = append(rec.Fields, Field{Column: column, Value: value})
		}

		rs.Records = append(rs.Records, rec)
		rs.Stats.Kept++
	}

	return rs, diagnostics, nil
}

func cellAt(row []any, idx int) any {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return row[idx]
}

func dateValue(d *time.Time) any {
	if d == nil {
		return nil
	}
	return *d
}

func unparseableCell(rec InvoiceRecord, column string, value any, err error) Diagnostic {
	return Diagnostic{
		Kind:          models.DiagnosticUnparseableCell,
		Source:        rec.Source,
		PartyId:       rec.PartyId,
		InvoiceNumber: rec.RawInvoiceNumber,
		Column:        column,
		Message: fmt.Sprintf("%s %s/%s: column %q value %v treated as missing: %v",
			rec.Source, rec.PartyId, rec.RawInvoiceNumber, column, value, err),
	}
}
