package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RunStatus string

const (
	RunStatusStarted   RunStatus = "STARTED"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
)

// ReconciliationRun is the durable idempotency row of one reconciliation pass.
// Fingerprint covers both input tables and the effective options, so re-running
// unchanged inputs hits the same row.
type ReconciliationRun struct {
	ID            int             `gorm:"primary_key" json:"id"`
	RunId         string          `gorm:"size:64;not null;index" json:"run_id"`
	Fingerprint   string          `gorm:"size:64;not null;uniqueIndex" json:"fingerprint"`
	SourceName    string          `gorm:"size:255" json:"source_name"`
	CutoffDate    time.Time       `gorm:"type:date" json:"cutoff_date"`
	Status        RunStatus       `gorm:"size:20;not null;index" json:"status"`
	MatchedCount  int             `json:"matched_count"`
	MismatchCount int             `json:"mismatch_count"`
	PrevFyCount   int             `json:"prev_fy_count"`
	PendingCount  int             `json:"pending_count"`
	NextFyCount   int             `json:"next_fy_count"`
	ExcludedCount int             `json:"excluded_count"`
	ComparedTaxes string          `gorm:"size:100" json:"compared_taxes"` // comma separated, e.g. Taxable,CGST,SGST
	GstnTaxable   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"gstn_taxable"`
	BooksTaxable  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"books_taxable"`
	LastError     *string         `gorm:"type:text" json:"last_error"`
	CorrelationId string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
