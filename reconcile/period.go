package reconcile

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/models"
	"bitbucket.org/mmdatafocus/itc_backend/utils"
)

// ClassifyPeriod buckets one GSTN-only record. Dated before cutoff is PRIOR,
// dated on or after cutoff is PENDING. Undated records go to PENDING and come
// back with a diagnostic naming the record.
func ClassifyPeriod(rec InvoiceRecord, cutoff time.Time) (UnmatchedGstnRecord, *Diagnostic) {
	if rec.InvoiceDate == nil {
		return UnmatchedGstnRecord{Record: rec, Bucket: models.PeriodBucketPending}, &Diagnostic{
			Kind:          models.DiagnosticMissingInvoiceDate,
			Source:        rec.Source,
			PartyId:       rec.PartyId,
			InvoiceNumber: rec.RawInvoiceNumber,
			Message:       fmt.Sprintf("Missing Invoice Date: %s, %s", rec.PartyId, rec.RawInvoiceNumber),
		}
	}
	if utils.TruncateToDate(*rec.InvoiceDate).Before(utils.TruncateToDate(cutoff)) {
		return UnmatchedGstnRecord{Record: rec, Bucket: models.PeriodBucketPrior}, nil
	}
	return UnmatchedGstnRecord{Record: rec, Bucket: models.PeriodBucketPending}, nil
}

func ClassifyPeriods(records []InvoiceRecord, cutoff time.Time) ([]UnmatchedGstnRecord, []Diagnostic) {
	out := make([]UnmatchedGstnRecord, 0, len(records))
	var diagnostics []Diagnostic
	for _, rec := range records {
		classified, diag := ClassifyPeriod(rec, cutoff)
		out = append(out, classified)
		if diag != nil {
			diagnostics = append(diagnostics, *diag)
		}
	}
	return out, diagnostics
}

// DefaultCutoff is the start of the fiscal year holding the latest GSTN invoice
// date. With no dated GSTN record it falls back to the fiscal year holding asOf;
// a zero asOf gives the zero time.
func DefaultCutoff(records []InvoiceRecord, fiscalYearStartMonth time.Month, asOf time.Time) time.Time {
	var latest *time.Time
	for _, r := range records {
		if r.InvoiceDate == nil {
			continue
		}
		if latest == nil || r.InvoiceDate.After(*latest) {
			latest = r.InvoiceDate
		}
	}
	switch {
	case latest != nil:
		return utils.GetFiscalYearStart(*latest, fiscalYearStartMonth)
	case !asOf.IsZero():
		return utils.GetFiscalYearStart(asOf, fiscalYearStartMonth)
	default:
		return time.Time{}
	}
}
