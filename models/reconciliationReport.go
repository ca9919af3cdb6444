package models

import "time"

// ReconciliationReport is one reviewable finding of a run: a mismatched pair,
// a reconciliation gap, or an engine diagnostic.
type ReconciliationReport struct {
	ID            int       `gorm:"primary_key" json:"id"`
	RunId         string    `gorm:"size:64;index;not null" json:"run_id"`
	CheckType     string    `gorm:"size:50;index;not null" json:"check_type"` // e.g. MIS_MATCHED, PREV_FY_ITC, MISSING_INVOICE_DATE
	Source        Source    `gorm:"size:10" json:"source"`
	PartyId       string    `gorm:"size:32;index" json:"party_id"`
	InvoiceNumber string    `gorm:"size:100" json:"invoice_number"`
	Details       string    `gorm:"type:text" json:"details"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
