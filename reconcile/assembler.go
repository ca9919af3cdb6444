package reconcile

import (
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/models"
	"bitbucket.org/mmdatafocus/itc_backend/utils"
)

type AssemblyInput struct {
	Schema       Schema
	GstnColumns  []string
	BooksColumns []string
	// ComparedTaxes empty means no MIS_MATCHED column.
	ComparedTaxes []models.TaxField
	Pairs         []MatchedPair
	GstnOnly      []UnmatchedGstnRecord
	BooksOnly     []UnmatchedBooksRecord
}

// Assemble shapes the result sheets in output order, leaving out empty ones.
func Assemble(in AssemblyInput) []*Table {
	var prior, pending []InvoiceRecord
	for _, u := range in.GstnOnly {
		if u.Bucket == models.PeriodBucketPrior {
			prior = append(prior, u.Record)
		} else {
			pending = append(pending, u.Record)
		}
	}
	books := make([]InvoiceRecord, 0, len(in.BooksOnly))
	for _, u := range in.BooksOnly {
		books = append(books, u.Record)
	}

	candidates := []*Table{
		assembleMatched(in),
		assembleSingleSource(models.ResultSheetPrevFyItc, in.Schema, in.GstnColumns, prior),
		assembleSingleSource(models.ResultSheetNotInBooks, in.Schema, in.GstnColumns, pending),
		assembleSingleSource(models.ResultSheetNextFyItc, in.Schema, nextFyColumns(in), books),
	}

	tables := make([]*Table, 0, len(candidates))
	for _, t := range candidates {
		if t.Len() > 0 {
			tables = append(tables, t)
		}
	}
	return tables
}

// MATCHED keeps every GSTN column with the GSTN value, appends columns only BOOKS
// has, and closes with the mismatch flag when any tax column was compared.
func assembleMatched(in AssemblyInput) *Table {
	booksOnlyCols := missingFrom(in.GstnColumns, in.BooksColumns)
	flagged := len(in.ComparedTaxes) > 0
	columns := make([]string, 0, len(in.GstnColumns)+len(booksOnlyCols)+1)
	columns = append(columns, in.GstnColumns...)
	columns = append(columns, booksOnlyCols...)
	if flagged {
		columns = append(columns, MismatchColumn)
	}

	t := NewTable(string(models.ResultSheetMatched), columns...)
	for _, p := range in.Pairs {
		row := make([]any, 0, len(columns))
		for _, c := range in.GstnColumns {
			row = append(row, presentValue(in.Schema, p.Gstn, c))
		}
		for _, c := range booksOnlyCols {
			row = append(row, presentValue(in.Schema, p.Books, c))
		}
		if flagged {
			row = append(row, p.HasMismatch)
		}
		t.AddRow(row...)
	}
	return t
}

// NEXT_FY_ITC carries the BOOKS columns with the late filing date moved last.
// GSTN-only columns other than the filing date are not shown.
func nextFyColumns(in AssemblyInput) []string {
	filing := in.Schema.FilingDateColumn
	hasFiling := false
	columns := make([]string, 0, len(in.BooksColumns)+1)
	for _, c := range in.BooksColumns {
		if filing != "" && c == filing {
			hasFiling = true
			continue
		}
		columns = append(columns, c)
	}
	if !hasFiling && filing != "" && contains(in.GstnColumns, filing) {
		hasFiling = true
	}
	if hasFiling {
		columns = append(columns, filing)
	}
	return columns
}

func assembleSingleSource(name models.ResultSheet, schema Schema, columns []string, records []InvoiceRecord) *Table {
	t := NewTable(string(name), columns...)
	for _, r := range records {
		row := make([]any, 0, len(columns))
		for _, c := range columns {
			row = append(row, presentValue(schema, r, c))
		}
		t.AddRow(row...)
	}
	return t
}

// presentValue renders dates as dd/mm/yyyy; a date column without a value is an empty string.
func presentValue(schema Schema, r InvoiceRecord, column string) any {
	v, _ := r.Value(column)
	if !schema.isDateColumn(column) {
		return v
	}
	switch d := v.(type) {
	case time.Time:
		return utils.FormatDisplayDate(&d)
	case nil:
		return ""
	default:
		return v
	}
}

// missingFrom returns the columns of other that base lacks, in other's order.
func missingFrom(base, other []string) []string {
	var out []string
	for _, c := range other {
		if !contains(base, c) {
			out = append(out, c)
		}
	}
	return out
}

func contains(cols []string, c string) bool {
	for _, x := range cols {
		if x == c {
			return true
		}
	}
	return false
}
