package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/reconcile"
	"github.com/shopspring/decimal"
)

// Fingerprint identifies a pass by its inputs: both tables cell by cell and the
// options that change the outcome. AsOf is left out so a rerun on another day
// still hits the same run row.
func Fingerprint(gstn, books *reconcile.Table, opts reconcile.Options) string {
	h := sha256.New()
	writeTable(h, gstn)
	writeTable(h, books)

	fmt.Fprintf(h, "cutoff=%s|fy=%d|norm=%s|",
		dateKey(opts.Cutoff), opts.FiscalYearStartMonth, opts.KeyNormalizer)
	s := opts.Schema
	fmt.Fprintf(h, "schema=%s|%s|%s|%s|", s.PartyColumn, s.InvoiceNumberColumn, s.InvoiceDateColumn, s.FilingDateColumn)
	taxKeys := make([]string, 0, len(s.TaxColumns))
	for f, c := range s.TaxColumns {
		taxKeys = append(taxKeys, string(f)+"="+c)
	}
	sort.Strings(taxKeys)
	for _, k := range taxKeys {
		fmt.Fprintf(h, "%s|", k)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeTable(w io.Writer, t *reconcile.Table) {
	if t == nil {
		fmt.Fprint(w, "<nil>\x1e")
		return
	}
	fmt.Fprintf(w, "%s\x1d", t.Name)
	for _, c := range t.Columns {
		fmt.Fprintf(w, "%s\x1f", c)
	}
	fmt.Fprint(w, "\x1e")
	for _, row := range t.Rows {
		for _, v := range row {
			fmt.Fprintf(w, "%s\x1f", cellKey(v))
		}
		fmt.Fprint(w, "\x1e")
	}
}

// cellKey tags each value with its type so "1" and 1 hash differently.
func cellKey(v any) string {
	switch t := v.(type) {
	case nil:
		return "n:"
	case string:
		return "s:" + t
	case decimal.Decimal:
		return "d:" + t.String()
	case time.Time:
		return "t:" + t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

func dateKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
