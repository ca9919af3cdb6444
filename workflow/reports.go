package workflow

import (
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/itc_backend/models"
	"bitbucket.org/mmdatafocus/itc_backend/reconcile"
	"bitbucket.org/mmdatafocus/itc_backend/utils"
)

const CheckTypeMismatch = "MIS_MATCHED"

// BuildReports lists the reviewable findings of a pass: mismatched pairs, every
// unmatched record under its result sheet, and the engine diagnostics.
func BuildReports(runId, correlationId string, res *reconcile.Result) []models.ReconciliationReport {
	var reports []models.ReconciliationReport
	add := func(checkType string, source models.Source, partyId, invoice, details string) {
		reports = append(reports, models.ReconciliationReport{
			RunId:         runId,
			CheckType:     checkType,
			Source:        source,
			PartyId:       partyId,
			InvoiceNumber: invoice,
			Details:       details,
			CorrelationId: correlationId,
		})
	}

	fields := make([]models.TaxField, 0, len(res.Summary.ComparedTaxes))
	for _, f := range res.Summary.ComparedTaxes {
		fields = append(fields, models.TaxField(f))
	}
	for _, p := range res.Pairs {
		if !p.HasMismatch {
			continue
		}
		add(CheckTypeMismatch, models.SourceGstn, p.Gstn.PartyId, p.Gstn.RawInvoiceNumber, mismatchDetails(p, fields))
	}

	for _, u := range res.GstnOnly {
		sheet := models.ResultSheetNotInBooks
		if u.Bucket == models.PeriodBucketPrior {
			sheet = models.ResultSheetPrevFyItc
		}
		add(string(sheet), models.SourceGstn, u.Record.PartyId, u.Record.RawInvoiceNumber,
			fmt.Sprintf("invoice date %s, taxable %s", utils.FormatDisplayDate(u.Record.InvoiceDate), u.Record.Tax(models.TaxFieldTaxable)))
	}
	for _, u := range res.BooksOnly {
		add(string(models.ResultSheetNextFyItc), models.SourceBooks, u.Record.PartyId, u.Record.RawInvoiceNumber,
			fmt.Sprintf("invoice date %s, taxable %s", utils.FormatDisplayDate(u.Record.InvoiceDate), u.Record.Tax(models.TaxFieldTaxable)))
	}

	for _, d := range res.Diagnostics {
		add(string(d.Kind), d.Source, d.PartyId, d.InvoiceNumber, d.Message)
	}
	return reports
}

// mismatchDetails names every differing field, e.g. "CGST 90 vs 90.01".
func mismatchDetails(p reconcile.MatchedPair, fields []models.TaxField) string {
	var parts []string
	for _, f := range fields {
		g, b := p.Gstn.Tax(f), p.Books.Tax(f)
		if !g.Equal(b) {
			parts = append(parts, fmt.Sprintf("%s %s vs %s", f, g, b))
		}
	}
	return fmt.Sprintf("books invoice %s: %s", p.Books.RawInvoiceNumber, strings.Join(parts, "; "))
}
