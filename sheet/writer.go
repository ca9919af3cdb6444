package sheet

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/reconcile"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// ReplaceTables writes tables as sheets in the given order. Any sheet listed in
// managed is removed first so results of an earlier pass never linger; other
// sheets, including the inputs, are left alone.
func (w *Workbook) ReplaceTables(tables []*reconcile.Table, managed []string) error {
	for _, name := range managed {
		if err := w.deleteSheet(name); err != nil {
			return err
		}
	}
	for _, t := range tables {
		if err := w.deleteSheet(t.Name); err != nil {
			return err
		}
		if err := w.writeTable(t); err != nil {
			return err
		}
	}

	if w.fresh && len(tables) > 0 && !containsTable(tables, defaultSheet) {
		if err := w.deleteSheet(defaultSheet); err != nil {
			return err
		}
	}
	w.file.SetActiveSheet(0)
	return nil
}

func (w *Workbook) deleteSheet(name string) error {
	if !w.HasSheet(name) || len(w.file.GetSheetList()) == 1 {
		return nil
	}
	if err := w.file.DeleteSheet(name); err != nil {
		return fmt.Errorf("failed to delete sheet %q: %w", name, err)
	}
	return nil
}

func (w *Workbook) writeTable(t *reconcile.Table) error {
	if !w.HasSheet(t.Name) {
		if _, err := w.file.NewSheet(t.Name); err != nil {
			return fmt.Errorf("failed to add sheet %q: %w", t.Name, err)
		}
	}

	header := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := w.file.SetSheetRow(t.Name, "A1", &header); err != nil {
		return err
	}
	bold, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := w.file.SetRowStyle(t.Name, 1, 1, bold); err != nil {
		return err
	}

	for r, row := range t.Rows {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			cells[i] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := w.file.SetSheetRow(t.Name, cell, &cells); err != nil {
			return fmt.Errorf("failed to write row %d of sheet %q: %w", r+2, t.Name, err)
		}
	}
	return nil
}

// cellValue stores amounts as numbers and leaves missing cells empty.
func cellValue(v any) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return t.InexactFloat64()
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	default:
		return v
	}
}

func containsTable(tables []*reconcile.Table, name string) bool {
	for _, t := range tables {
		if t.Name == name {
			return true
		}
	}
	return false
}
