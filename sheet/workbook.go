// Package sheet moves reconcile tables in and out of xlsx workbooks.
package sheet

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

var ErrSheetNotFound = errors.New("sheet not found")

// Workbook wraps an excelize file together with the path it was opened from.
type Workbook struct {
	file  *excelize.File
	path  string
	fresh bool
}

func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file %s: %w", path, err)
	}
	return &Workbook{file: f, path: path}, nil
}

func OpenReader(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	return &Workbook{file: f}, nil
}

// NewWorkbook starts an empty workbook. The default sheet excelize creates is
// dropped once result tables are written.
func NewWorkbook() *Workbook {
	return &Workbook{file: excelize.NewFile(), fresh: true}
}

func (w *Workbook) Path() string {
	return w.path
}

func (w *Workbook) SheetNames() []string {
	return w.file.GetSheetList()
}

func (w *Workbook) HasSheet(name string) bool {
	idx, err := w.file.GetSheetIndex(name)
	return err == nil && idx >= 0
}

// Save writes the workbook back to the path it was opened from.
func (w *Workbook) Save() error {
	if w.path == "" {
		return errors.New("workbook has no path, use SaveAs")
	}
	return w.file.SaveAs(w.path)
}

func (w *Workbook) SaveAs(path string) error {
	if err := w.file.SaveAs(path); err != nil {
		return err
	}
	w.path = path
	return nil
}

func (w *Workbook) WriteTo(out io.Writer) (int64, error) {
	return w.file.WriteTo(out)
}

func (w *Workbook) Close() error {
	return w.file.Close()
}

func (w *Workbook) date1904() bool {
	props, err := w.file.GetWorkbookProps()
	if err != nil || props.Date1904 == nil {
		return false
	}
	return *props.Date1904
}
