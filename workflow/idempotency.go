package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/models"
	"bitbucket.org/mmdatafocus/itc_backend/reconcile"
	"bitbucket.org/mmdatafocus/itc_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ErrRunInProgress means another worker holds the same fingerprint.
var ErrRunInProgress = errors.New("reconciliation run in progress")

// a STARTED row older than this is considered abandoned and taken over
const staleRunAfter = 5 * time.Minute

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// RunStore keeps the durable run rows and their findings.
type RunStore interface {
	// BeginRun inserts run as STARTED. When the fingerprint already SUCCEEDED and
	// allowSkip is set it returns (true, previous row) meaning "skip safely".
	BeginRun(ctx context.Context, run *models.ReconciliationRun, allowSkip bool) (skip bool, prev *models.ReconciliationRun, err error)
	MarkRunSucceeded(ctx context.Context, fingerprint string, cutoff time.Time, summary reconcile.Summary) error
	MarkRunFailed(ctx context.Context, fingerprint string, err error) error
	SaveReports(ctx context.Context, reports []models.ReconciliationReport) error
}

type gormRunStore struct {
	db *gorm.DB
}

func NewGormRunStore(db *gorm.DB) RunStore {
	return &gormRunStore{db: db}
}

func (s *gormRunStore) BeginRun(ctx context.Context, run *models.ReconciliationRun, allowSkip bool) (bool, *models.ReconciliationRun, error) {
	tx := s.db.WithContext(ctx)
	run.Status = models.RunStatusStarted
	if err := tx.Create(run).Error; err == nil {
		return false, nil, nil
	} else if !isDuplicateKeyErr(err) {
		return false, nil, err
	}

	var existing models.ReconciliationRun
	if err := tx.Where("fingerprint = ?", run.Fingerprint).First(&existing).Error; err != nil {
		return false, nil, err
	}

	switch existing.Status {
	case models.RunStatusSucceeded:
		if allowSkip {
			return true, &existing, nil
		}
	case models.RunStatusStarted:
		if time.Since(existing.UpdatedAt) < staleRunAfter {
			return false, &existing, ErrRunInProgress
		}
	}
	return false, &existing, tx.Model(&models.ReconciliationRun{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"run_id":         run.RunId,
			"status":         models.RunStatusStarted,
			"correlation_id": run.CorrelationId,
			"source_name":    run.SourceName,
			"last_error":     nil,
		}).Error
}

func (s *gormRunStore) MarkRunSucceeded(ctx context.Context, fingerprint string, cutoff time.Time, summary reconcile.Summary) error {
	return s.db.WithContext(ctx).Model(&models.ReconciliationRun{}).
		Where("fingerprint = ?", fingerprint).
		Updates(map[string]interface{}{
			"status":         models.RunStatusSucceeded,
			"cutoff_date":    cutoff,
			"matched_count":  summary.Matched,
			"mismatch_count": summary.Mismatched,
			"prev_fy_count":  summary.PrevFy,
			"pending_count":  summary.NotInBooks,
			"next_fy_count":  summary.NextFy,
			"excluded_count": summary.Excluded,
			"compared_taxes": strings.Join(summary.ComparedTaxes, ","),
			"gstn_taxable":   summary.GstnTaxable,
			"books_taxable":  summary.BooksTaxable,
			"last_error":     nil,
		}).Error
}

func (s *gormRunStore) MarkRunFailed(ctx context.Context, fingerprint string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return s.db.WithContext(ctx).Model(&models.ReconciliationRun{}).
		Where("fingerprint = ?", fingerprint).
		Updates(map[string]interface{}{"status": models.RunStatusFailed, "last_error": &msg}).Error
}

// SaveReports replaces the findings of the run ids in reports.
func (s *gormRunStore) SaveReports(ctx context.Context, reports []models.ReconciliationReport) error {
	if len(reports) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", reports[0].RunId).Delete(&models.ReconciliationReport{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(reports, 500).Error
	})
}

// RunSummaryFromRow rebuilds the counts of a stored run for skipped passes.
func RunSummaryFromRow(run *models.ReconciliationRun) reconcile.Summary {
	return reconcile.Summary{
		Matched:       run.MatchedCount,
		Mismatched:    run.MismatchCount,
		PrevFy:        run.PrevFyCount,
		NotInBooks:    run.PendingCount,
		NextFy:        run.NextFyCount,
		Excluded:      run.ExcludedCount,
		ComparedTaxes: utils.SplitAndTrim(run.ComparedTaxes),
		GstnTaxable:   run.GstnTaxable,
		BooksTaxable:  run.BooksTaxable,
	}
}
