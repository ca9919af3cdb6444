package sheet

import (
	"fmt"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/itc_backend/reconcile"
	"github.com/xuri/excelize/v2"
)

type ReadOptions struct {
	// HeaderRow is the 1-based row holding column names. Rows above it are ignored.
	HeaderRow int
	// DateColumns hold Excel serial dates that are turned into time.Time.
	DateColumns []string
}

// ReadTable loads sheet name as a table. Cells are read raw: blanks become nil,
// serial numbers in date columns become time.Time, everything else stays the
// untrimmed string for the engine to interpret. Fully blank rows are skipped.
func (w *Workbook) ReadTable(name string, opts ReadOptions) (*reconcile.Table, error) {
	if !w.HasSheet(name) {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	headerRow := opts.HeaderRow
	if headerRow < 1 {
		headerRow = 1
	}

	rows, err := w.file.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("unable to read sheet %q: %w", name, err)
	}
	if len(rows) < headerRow {
		return nil, fmt.Errorf("sheet %q has %d rows, header expected on row %d", name, len(rows), headerRow)
	}

	columns := headerNames(rows[headerRow-1])
	table := reconcile.NewTable(name, columns...)

	dateCols := make(map[int]bool)
	for i, c := range columns {
		for _, d := range opts.DateColumns {
			if c == d {
				dateCols[i] = true
			}
		}
	}
	date1904 := w.date1904()

	for _, raw := range rows[headerRow:] {
		row := make([]any, len(columns))
		blank := true
		for i := 0; i < len(columns) && i < len(raw); i++ {
			v := strings.TrimSpace(raw[i])
			if v == "" {
				continue
			}
			blank = false
			if dateCols[i] {
				row[i] = serialDate(v, date1904)
				continue
			}
			// padding is part of the invoice number and of its key
			row[i] = raw[i]
		}
		if blank {
			continue
		}
		table.AddRow(row...)
	}
	return table, nil
}

// headerNames trims header cells and names blank or repeated ones after their
// position so every column stays addressable.
func headerNames(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n := seen[name]; n > 0 {
			name = fmt.Sprintf("%s.%d", name, n)
		}
		seen[strings.TrimSpace(h)]++
		names[i] = name
	}
	return names
}

func serialDate(v string, date1904 bool) any {
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return v
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return v
	}
	return t
}

// LoadSources reads the GSTN and BOOKS sheets with the date columns of schema.
func (w *Workbook) LoadSources(gstnSheet, booksSheet string, headerRow int, schema reconcile.Schema) (gstn, books *reconcile.Table, err error) {
	opts := ReadOptions{HeaderRow: headerRow}
	for _, c := range []string{schema.InvoiceDateColumn, schema.FilingDateColumn} {
		if c != "" {
			opts.DateColumns = append(opts.DateColumns, c)
		}
	}
	if gstn, err = w.ReadTable(gstnSheet, opts); err != nil {
		return nil, nil, err
	}
	if books, err = w.ReadTable(booksSheet, opts); err != nil {
		return nil, nil, err
	}
	return gstn, books, nil
}
