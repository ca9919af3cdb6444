package reconcile

import (
	"fmt"

	"bitbucket.org/mmdatafocus/itc_backend/models"
)

// ComparableTaxFields returns the tax fields whose column exists in both sources.
// A field missing from either schema is left out for every row and reported once.
func ComparableTaxFields(gstn, books *RecordSet, schema Schema) ([]models.TaxField, []Diagnostic) {
	var fields []models.TaxField
	var diagnostics []Diagnostic
	for _, f := range models.TaxFields {
		column := schema.TaxColumn(f)
		var missing []models.Source
		if !gstn.HasColumn(column) {
			missing = append(missing, models.SourceGstn)
		}
		if !books.HasColumn(column) {
			missing = append(missing, models.SourceBooks)
		}
		if len(missing) == 0 {
			fields = append(fields, f)
			continue
		}
		d := Diagnostic{
			Kind:    models.DiagnosticMissingTaxColumn,
			Column:  column,
			Message: fmt.Sprintf("missing tax column %s in %s; excluded from mismatch comparison", column, missing[0]),
		}
		if len(missing) == 1 {
			d.Source = missing[0]
		} else {
			d.Message = fmt.Sprintf("missing tax column %s in %s and %s; excluded from mismatch comparison", column, missing[0], missing[1])
		}
		diagnostics = append(diagnostics, d)
	}
	return fields, diagnostics
}

// HasTaxMismatch compares zero-filled amounts with exact decimal equality.
func HasTaxMismatch(gstn, books InvoiceRecord, fields []models.TaxField) bool {
	for _, f := range fields {
		if !gstn.Tax(f).Equal(books.Tax(f)) {
			return true
		}
	}
	return false
}

// DetectMismatches returns a copy of pairs with HasMismatch set. Per-field
// results are not kept.
func DetectMismatches(pairs []MatchedPair, fields []models.TaxField) []MatchedPair {
	out := make([]MatchedPair, len(pairs))
	for i, p := range pairs {
		out[i] = MatchedPair{
			Gstn:        p.Gstn,
			Books:       p.Books,
			HasMismatch: HasTaxMismatch(p.Gstn, p.Books, fields),
		}
	}
	return out
}
