package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/config"
	"bitbucket.org/mmdatafocus/itc_backend/models"
	"bitbucket.org/mmdatafocus/itc_backend/reconcile"
	"bitbucket.org/mmdatafocus/itc_backend/sheet"
	"bitbucket.org/mmdatafocus/itc_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("itc-reconciliation")

const (
	PersistTargetExcel  = "excel"
	PersistTargetDB     = "db"
	PersistTargetGCS    = "gcs"
	PersistTargetPubSub = "pubsub"

	runLockTTL = 2 * time.Minute
)

// PersistOutcome reports one write of a finished pass. A failed write leaves the
// computed tables intact; the caller may retry it.
type PersistOutcome struct {
	Target   string `json:"target"`
	OK       bool   `json:"ok"`
	Location string `json:"location,omitempty"`
	Err      error  `json:"-"`
}

// Runner wires a pass to its optional collaborators. Any nil collaborator is skipped.
type Runner struct {
	Logger    *logrus.Logger
	Runs      RunStore
	Locker    RunLocker
	Cache     SummaryCache
	Uploader  ObjectUploader
	Publisher EventPublisher
	// ObjectPrefix is prepended to uploaded object names.
	ObjectPrefix string
	Now          func() time.Time
}

type RunInput struct {
	SourceName string
	Gstn       *reconcile.Table
	Books      *reconcile.Table
	Options    reconcile.Options
	// Target receives the result sheets. Nil means no workbook is written.
	Target *sheet.Workbook
	// OutputPath saves Target elsewhere; empty saves it where it was opened from.
	OutputPath string
	// AllowSkip returns the stored summary when the same inputs already succeeded.
	AllowSkip bool
	DryRun    bool
}

type RunOutput struct {
	RunId         string
	CorrelationId string
	Fingerprint   string
	Skipped       bool
	// Result is nil when the pass was skipped.
	Result   *reconcile.Result
	Summary  reconcile.Summary
	Outcomes []PersistOutcome
}

// Failed returns the persistence outcomes that did not succeed.
func (o *RunOutput) Failed() []PersistOutcome {
	var out []PersistOutcome
	for _, p := range o.Outcomes {
		if !p.OK {
			out = append(out, p)
		}
	}
	return out
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) logger() *logrus.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return config.GetLogger()
}

// Run executes one reconciliation pass: fingerprint, lock, idempotency row,
// engine, then every configured write. Engine errors fail the pass; write
// errors are collected in Outcomes.
func (r *Runner) Run(ctx context.Context, in RunInput) (*RunOutput, error) {
	logger := r.logger()
	ctx, cid := utils.EnsureCorrelationId(ctx)
	runId := uuid.NewString()
	ctx = utils.SetRunIdInContext(ctx, runId)
	ctx = utils.SetSourceNameInContext(ctx, in.SourceName)

	ctx, span := tracer.Start(ctx, "reconciliation.run")
	defer span.End()

	if in.Options.AsOf.IsZero() {
		in.Options.AsOf = r.now()
	}
	fp := Fingerprint(in.Gstn, in.Books, in.Options)
	span.SetAttributes(
		attribute.String("run_id", runId),
		attribute.String("fingerprint", fp),
		attribute.String("source_name", in.SourceName),
	)
	out := &RunOutput{RunId: runId, CorrelationId: cid, Fingerprint: fp}
	fields := logrus.Fields{
		"field":          "ReconciliationRun",
		"run_id":         runId,
		"fingerprint":    fp,
		"source_name":    in.SourceName,
		"correlation_id": cid,
	}

	if r.Locker != nil {
		unlock, err := r.Locker.Lock(ctx, fp, runLockTTL)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				logger.WithFields(fields).Warn("failed to release run lock: " + err.Error())
			}
		}()
	}

	if in.AllowSkip && r.Cache != nil {
		if cached, ok, err := r.Cache.Get(ctx, fp); err != nil {
			logger.WithFields(fields).Warn("summary cache unavailable: " + err.Error())
		} else if ok {
			logger.WithFields(fields).Info("inputs already reconciled; skipping (cache)")
			out.Skipped, out.Summary = true, *cached
			return out, nil
		}
	}

	// dry runs leave no run row behind
	if r.Runs != nil && !in.DryRun {
		run := &models.ReconciliationRun{
			RunId:         runId,
			Fingerprint:   fp,
			SourceName:    in.SourceName,
			CorrelationId: cid,
		}
		skip, prev, err := r.Runs.BeginRun(ctx, run, in.AllowSkip)
		if err != nil {
			config.LogError(logger, "reconciliationWorkflow.go", "Run", "BeginRun", fields, err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if skip {
			logger.WithFields(fields).Info("inputs already reconciled; skipping")
			out.Skipped, out.Summary = true, RunSummaryFromRow(prev)
			return out, nil
		}
	}

	res, err := r.reconcile(ctx, in)
	if err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "Run", "Reconcile", fields, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if r.Runs != nil && !in.DryRun {
			if markErr := r.Runs.MarkRunFailed(context.WithoutCancel(ctx), fp, err); markErr != nil {
				config.LogError(logger, "reconciliationWorkflow.go", "Run", "MarkRunFailed", fields, markErr)
			}
		}
		return nil, err
	}
	out.Result, out.Summary = res, res.Summary
	r.logDiagnostics(logger, fields, res.Diagnostics)

	if !in.DryRun {
		out.Outcomes = r.persist(ctx, in, out)
	}
	for _, o := range out.Failed() {
		config.LogError(logger, "reconciliationWorkflow.go", "Run", "persist "+o.Target, fields, o.Err)
	}

	logger.WithFields(fields).WithFields(logrus.Fields{
		"cutoff":     res.Cutoff.Format("2006-01-02"),
		"matched":    res.Summary.Matched,
		"mismatched": res.Summary.Mismatched,
		"prev_fy":    res.Summary.PrevFy,
		"pending":    res.Summary.NotInBooks,
		"next_fy":    res.Summary.NextFy,
		"excluded":   res.Summary.Excluded,
	}).Info("reconciliation finished")
	return out, nil
}

func (r *Runner) reconcile(ctx context.Context, in RunInput) (*reconcile.Result, error) {
	_, span := tracer.Start(ctx, "reconciliation.engine")
	defer span.End()
	span.SetAttributes(attribute.Int("gstn_rows", in.Gstn.Len()), attribute.Int("books_rows", in.Books.Len()))
	return reconcile.Reconcile(in.Gstn, in.Books, in.Options)
}

func (r *Runner) logDiagnostics(logger *logrus.Logger, fields logrus.Fields, diagnostics []reconcile.Diagnostic) {
	for _, d := range diagnostics {
		logger.WithFields(fields).WithFields(logrus.Fields{
			"kind":           d.Kind,
			"source":         d.Source,
			"party_id":       d.PartyId,
			"invoice_number": d.InvoiceNumber,
			"column":         d.Column,
		}).Warn(d.Message)
	}
}

// persist writes the workbook first; upload and event depend on it, the DB rows do not.
func (r *Runner) persist(ctx context.Context, in RunInput, out *RunOutput) []PersistOutcome {
	ctx, span := tracer.Start(ctx, "reconciliation.persist")
	defer span.End()

	res := out.Result
	tables := WritableTables(res.Tables)
	var outcomes []PersistOutcome

	var workbook *sheet.Workbook
	if in.Target != nil {
		o := PersistOutcome{Target: PersistTargetExcel}
		o.Location, o.Err = writeWorkbook(in.Target, tables, in.OutputPath)
		o.OK = o.Err == nil
		outcomes = append(outcomes, o)
		if o.OK {
			workbook = in.Target
		}
	}

	var resultUri string
	if r.Uploader != nil {
		o := PersistOutcome{Target: PersistTargetGCS}
		o.Location, o.Err = r.upload(ctx, in, out, workbook, tables)
		o.OK = o.Err == nil
		resultUri = o.Location
		outcomes = append(outcomes, o)
	}

	if r.Runs != nil {
		o := PersistOutcome{Target: PersistTargetDB}
		o.Err = r.Runs.SaveReports(ctx, BuildReports(out.RunId, out.CorrelationId, res))
		o.OK = o.Err == nil
		outcomes = append(outcomes, o)
	}

	// A run only counts as done once every write landed; otherwise the next
	// pass over the same inputs must not be skipped.
	status := models.RunStatusSucceeded
	if err := persistError(outcomes); err != nil {
		status = models.RunStatusFailed
		if r.Runs != nil {
			if markErr := r.Runs.MarkRunFailed(context.WithoutCancel(ctx), out.Fingerprint, err); markErr != nil {
				config.LogError(r.logger(), "reconciliationWorkflow.go", "persist", "MarkRunFailed", contextFields(ctx), markErr)
			}
		}
	} else {
		if r.Runs != nil {
			if err := r.Runs.MarkRunSucceeded(ctx, out.Fingerprint, res.Cutoff, res.Summary); err != nil {
				status = models.RunStatusFailed
				outcomes[len(outcomes)-1].OK, outcomes[len(outcomes)-1].Err = false, err
			}
		}
		if status == models.RunStatusSucceeded && r.Cache != nil {
			if err := r.Cache.Set(ctx, out.Fingerprint, res.Summary); err != nil {
				r.logger().WithFields(contextFields(ctx)).Warn("failed to cache run summary: " + err.Error())
			}
		}
	}

	if r.Publisher != nil {
		o := PersistOutcome{Target: PersistTargetPubSub}
		o.Location, o.Err = r.publish(ctx, in, out, resultUri, status)
		o.OK = o.Err == nil
		outcomes = append(outcomes, o)
	}

	for _, o := range outcomes {
		if !o.OK {
			span.SetStatus(codes.Error, fmt.Sprintf("%s: %v", o.Target, o.Err))
		}
	}
	return outcomes
}

// contextFields carries the request scoped ids set by Run into a log line.
func contextFields(ctx context.Context) logrus.Fields {
	fields := logrus.Fields{"field": "ReconciliationRun"}
	if runId, ok := utils.GetRunIdFromContext(ctx); ok {
		fields["run_id"] = runId
	}
	if name, ok := utils.GetSourceNameFromContext(ctx); ok {
		fields["source_name"] = name
	}
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		fields["correlation_id"] = cid
	}
	return fields
}

// persistError joins the failed writes, nil when all of them succeeded.
func persistError(outcomes []PersistOutcome) error {
	var errs []error
	for _, o := range outcomes {
		if !o.OK {
			errs = append(errs, fmt.Errorf("%s: %w", o.Target, o.Err))
		}
	}
	return errors.Join(errs...)
}

// WritableTables drops result sheets listed in RECON_SKIP_SHEETS.
func WritableTables(tables []*reconcile.Table) []*reconcile.Table {
	out := make([]*reconcile.Table, 0, len(tables))
	for _, t := range tables {
		if !config.SkipSheet(t.Name) {
			out = append(out, t)
		}
	}
	return out
}

// ManagedSheets are the sheet names a pass owns in a workbook.
func ManagedSheets() []string {
	names := make([]string, 0, len(models.ResultSheets))
	for _, s := range models.ResultSheets {
		names = append(names, string(s))
	}
	return names
}

func writeWorkbook(w *sheet.Workbook, tables []*reconcile.Table, outputPath string) (string, error) {
	if err := w.ReplaceTables(tables, ManagedSheets()); err != nil {
		return "", err
	}
	if outputPath != "" {
		if err := w.SaveAs(outputPath); err != nil {
			return "", err
		}
		return outputPath, nil
	}
	if w.Path() == "" {
		// in-memory workbook, the caller streams it
		return "", nil
	}
	if err := w.Save(); err != nil {
		return "", err
	}
	return w.Path(), nil
}

func (r *Runner) upload(ctx context.Context, in RunInput, out *RunOutput, workbook *sheet.Workbook, tables []*reconcile.Table) (string, error) {
	if workbook == nil {
		workbook = sheet.NewWorkbook()
		defer workbook.Close()
		if err := workbook.ReplaceTables(tables, nil); err != nil {
			return "", err
		}
	}
	var buf bytes.Buffer
	if _, err := workbook.WriteTo(&buf); err != nil {
		return "", err
	}
	object := utils.ResultObjectName(r.ObjectPrefix, out.RunId, in.SourceName, r.now().Format("2006-01-02"))
	return r.Uploader.Upload(ctx, object, buf.Bytes())
}

func (r *Runner) publish(ctx context.Context, in RunInput, out *RunOutput, resultUri string, status models.RunStatus) (string, error) {
	summary, err := json.Marshal(out.Summary)
	if err != nil {
		return "", err
	}
	return r.Publisher.Publish(ctx, config.RunEventMessage{
		RunId:         out.RunId,
		Fingerprint:   out.Fingerprint,
		SourceName:    in.SourceName,
		Status:        string(status),
		CutoffDate:    out.Result.Cutoff.Format("2006-01-02"),
		Summary:       summary,
		ResultUri:     resultUri,
		CorrelationId: out.CorrelationId,
		OccurredAt:    r.now().UTC(),
	})
}

// IsFatalInput reports whether err comes from unusable input rather than infrastructure.
func IsFatalInput(err error) bool {
	return errors.Is(err, reconcile.ErrMissingKeyColumn) ||
		errors.Is(err, reconcile.ErrInvalidOptions) ||
		errors.Is(err, reconcile.ErrUnknownNormalizer) ||
		errors.Is(err, reconcile.ErrNilTable) ||
		errors.Is(err, sheet.ErrSheetNotFound)
}
