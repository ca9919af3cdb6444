package reconcile

import (
	"bitbucket.org/mmdatafocus/itc_backend/models"
)

// Column names of the ITC MATCH workbook.
const (
	DefaultPartyColumn         = "GSTN"
	DefaultInvoiceNumberColumn = "Invoice Number"
	DefaultInvoiceDateColumn   = "Invoice Date"
	DefaultFilingDateColumn    = "gstr1_filing_date"

	MismatchColumn = "MIS_MATCHED"
)

// Schema names the columns the engine interprets. Every other column is carried
// through untouched.
type Schema struct {
	PartyColumn         string `validate:"required"`
	InvoiceNumberColumn string `validate:"required,nefield=PartyColumn"`
	InvoiceDateColumn   string
	FilingDateColumn    string
	TaxColumns          map[models.TaxField]string `validate:"required"`
}

func DefaultSchema() Schema {
	taxColumns := make(map[models.TaxField]string, len(models.TaxFields))
	for _, f := range models.TaxFields {
		taxColumns[f] = string(f)
	}
	return Schema{
		PartyColumn:         DefaultPartyColumn,
		InvoiceNumberColumn: DefaultInvoiceNumberColumn,
		InvoiceDateColumn:   DefaultInvoiceDateColumn,
		FilingDateColumn:    DefaultFilingDateColumn,
		TaxColumns:          taxColumns,
	}
}

// TaxColumn returns the column holding field, falling back to the field name.
func (s Schema) TaxColumn(field models.TaxField) string {
	if c, ok := s.TaxColumns[field]; ok && c != "" {
		return c
	}
	return string(field)
}

func (s Schema) taxFieldOf(column string) (models.TaxField, bool) {
	for _, f := range models.TaxFields {
		if s.TaxColumn(f) == column {
			return f, true
		}
	}
	return "", false
}

func (s Schema) isDateColumn(column string) bool {
	return column != "" && (column == s.InvoiceDateColumn || column == s.FilingDateColumn)
}
