package reconcile

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

type Options struct {
	// Cutoff splits GSTN-only invoices into PRIOR and PENDING. Zero means DefaultCutoff.
	Cutoff               time.Time
	FiscalYearStartMonth time.Month `validate:"min=1,max=12"`
	// AsOf anchors the cutoff when no GSTN invoice is dated. Callers pass today.
	AsOf          time.Time
	KeyNormalizer string
	Schema        Schema
}

func DefaultOptions() Options {
	return Options{
		FiscalYearStartMonth: time.April,
		KeyNormalizer:        StripAlphaNormalizer,
		Schema:               DefaultSchema(),
	}
}

func (o Options) withDefaults() Options {
	if o.FiscalYearStartMonth == 0 {
		o.FiscalYearStartMonth = time.April
	}
	if o.KeyNormalizer == "" {
		o.KeyNormalizer = StripAlphaNormalizer
	}
	if o.Schema.PartyColumn == "" && o.Schema.InvoiceNumberColumn == "" && o.Schema.TaxColumns == nil {
		o.Schema = DefaultSchema()
	}
	return o
}

type Summary struct {
	Gstn          FilterStats     `json:"gstn"`
	Books         FilterStats     `json:"books"`
	Matched       int             `json:"matched"`
	Mismatched    int             `json:"mismatched"`
	PrevFy        int             `json:"prev_fy"`
	NotInBooks    int             `json:"not_in_books"`
	NextFy        int             `json:"next_fy"`
	Excluded      int             `json:"excluded"`
	ComparedTaxes []string        `json:"compared_taxes"`
	GstnTaxable   decimal.Decimal `json:"gstn_taxable"`
	BooksTaxable  decimal.Decimal `json:"books_taxable"`
}

type Result struct {
	Cutoff      time.Time
	Tables      []*Table
	Pairs       []MatchedPair
	GstnOnly    []UnmatchedGstnRecord
	BooksOnly   []UnmatchedBooksRecord
	Diagnostics []Diagnostic
	Summary     Summary
}

// Table returns the named result sheet, nil when it was empty.
func (r *Result) Table(name models.ResultSheet) *Table {
	for _, t := range r.Tables {
		if t.Name == string(name) {
			return t
		}
	}
	return nil
}

// Reconcile runs one full pass over the two loaded sources. It fails only on
// invalid options or a missing key column; everything else is a diagnostic.
func Reconcile(gstn, books *Table, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	normalize, ok := NormalizerByName(opts.KeyNormalizer)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNormalizer, opts.KeyNormalizer)
	}

	gstnSet, gstnDiags, err := FilterRecords(gstn, models.SourceGstn, opts.Schema, normalize)
	if err != nil {
		return nil, err
	}
	booksSet, booksDiags, err := FilterRecords(books, models.SourceBooks, opts.Schema, normalize)
	if err != nil {
		return nil, err
	}

	var diagnostics []Diagnostic
	diagnostics = append(diagnostics, gstnDiags...)
	diagnostics = append(diagnostics, booksDiags...)

	matched := Match(gstnSet, booksSet)
	diagnostics = append(diagnostics, matched.Diagnostics...)

	fields, taxDiags := ComparableTaxFields(gstnSet, booksSet, opts.Schema)
	diagnostics = append(diagnostics, taxDiags...)
	pairs := DetectMismatches(matched.Pairs, fields)

	cutoff := opts.Cutoff
	if cutoff.IsZero() {
		cutoff = DefaultCutoff(gstnSet.Records, opts.FiscalYearStartMonth, opts.AsOf)
	}
	gstnOnly, periodDiags := ClassifyPeriods(matched.GstnOnly, cutoff)
	diagnostics = append(diagnostics, periodDiags...)

	booksOnly := make([]UnmatchedBooksRecord, 0, len(matched.BooksOnly))
	for _, r := range matched.BooksOnly {
		booksOnly = append(booksOnly, UnmatchedBooksRecord{Record: r})
	}

	tables := Assemble(AssemblyInput{
		Schema:        opts.Schema,
		GstnColumns:   gstnSet.Columns,
		BooksColumns:  booksSet.Columns,
		ComparedTaxes: fields,
		Pairs:         pairs,
		GstnOnly:      gstnOnly,
		BooksOnly:     booksOnly,
	})

	return &Result{
		Cutoff:      cutoff,
		Tables:      tables,
		Pairs:       pairs,
		GstnOnly:    gstnOnly,
		BooksOnly:   booksOnly,
		Diagnostics: diagnostics,
		Summary:     summarize(gstnSet, booksSet, pairs, gstnOnly, booksOnly, fields),
	}, nil
}

func summarize(gstn, books *RecordSet, pairs []MatchedPair, gstnOnly []UnmatchedGstnRecord, booksOnly []UnmatchedBooksRecord, fields []models.TaxField) Summary {
	s := Summary{
		Gstn:         gstn.Stats,
		Books:        books.Stats,
		Matched:      len(pairs),
		NextFy:       len(booksOnly),
		Excluded:     gstn.Stats.Excluded() + books.Stats.Excluded(),
		GstnTaxable:  decimal.Zero,
		BooksTaxable: decimal.Zero,
	}
	for _, f := range fields {
		s.ComparedTaxes = append(s.ComparedTaxes, string(f))
	}
	for _, p := range pairs {
		if p.HasMismatch {
			s.Mismatched++
		}
	}
	for _, u := range gstnOnly {
		if u.Bucket == models.PeriodBucketPrior {
			s.PrevFy++
		} else {
			s.NotInBooks++
		}
	}
	for _, r := range gstn.Records {
		s.GstnTaxable = s.GstnTaxable.Add(r.Tax(models.TaxFieldTaxable))
	}
	for _, r := range books.Records {
		s.BooksTaxable = s.BooksTaxable.Add(r.Tax(models.TaxFieldTaxable))
	}
	return s
}
