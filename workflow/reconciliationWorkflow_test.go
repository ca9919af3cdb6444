package workflow

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/config"
	"bitbucket.org/mmdatafocus/itc_backend/models"
	"bitbucket.org/mmdatafocus/itc_backend/reconcile"
	"bitbucket.org/mmdatafocus/itc_backend/sheet"
	"bitbucket.org/mmdatafocus/itc_backend/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const party = "27AAAAA0000A1Z5"

type fakeRunStore struct {
	mu       sync.Mutex
	runs     map[string]*models.ReconciliationRun
	reports  []models.ReconciliationReport
	saveErr  error
	failures int
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: map[string]*models.ReconciliationRun{}}
}

func (s *fakeRunStore) BeginRun(_ context.Context, run *models.ReconciliationRun, allowSkip bool) (bool, *models.ReconciliationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[run.Fingerprint]
	if !ok {
		copied := *run
		copied.Status = models.RunStatusStarted
		s.runs[run.Fingerprint] = &copied
		return false, nil, nil
	}
	switch {
	case existing.Status == models.RunStatusSucceeded && allowSkip:
		return true, existing, nil
	case existing.Status == models.RunStatusStarted:
		return false, existing, ErrRunInProgress
	}
	existing.Status = models.RunStatusStarted
	existing.RunId = run.RunId
	return false, existing, nil
}

func (s *fakeRunStore) MarkRunSucceeded(_ context.Context, fp string, cutoff time.Time, summary reconcile.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := s.runs[fp]
	run.Status = models.RunStatusSucceeded
	run.CutoffDate = cutoff
	run.MatchedCount = summary.Matched
	run.MismatchCount = summary.Mismatched
	run.PendingCount = summary.NotInBooks
	run.NextFyCount = summary.NextFy
	run.ExcludedCount = summary.Excluded
	run.ComparedTaxes = strings.Join(summary.ComparedTaxes, ",")
	return nil
}

func (s *fakeRunStore) MarkRunFailed(_ context.Context, fp string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := err.Error()
	s.runs[fp].Status = models.RunStatusFailed
	s.runs[fp].LastError = &msg
	s.failures++
	return nil
}

func (s *fakeRunStore) SaveReports(_ context.Context, reports []models.ReconciliationReport) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, reports...)
	return nil
}

type fakeLocker struct {
	held     map[string]bool
	released int
}

func (l *fakeLocker) Lock(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	if l.held[key] {
		return nil, ErrRunInProgress
	}
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

type fakeUploader struct {
	objects map[string][]byte
}

func (u *fakeUploader) Upload(_ context.Context, objectName string, data []byte) (string, error) {
	u.objects[objectName] = data
	return "gs://results/" + objectName, nil
}

type fakePublisher struct {
	messages []config.RunEventMessage
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, msg config.RunEventMessage) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, msg)
	return "msg-1", nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func fixedNow() time.Time {
	return time.Date(2024, 6, 30, 10, 0, 0, 0, time.UTC)
}

func sources() (*reconcile.Table, *reconcile.Table) {
	day := func(s string) time.Time {
		t, _ := time.Parse("2006-01-02", s)
		return t
	}
	gstn := reconcile.NewTable("GSTN", "GSTN", "Invoice Number", "Invoice Date", "Taxable", "CGST", "SGST", "IGST", "CESS", "gstr1_filing_date")
	gstn.AddRow(party, "INV001A", day("2024-05-10"), "1000", "90", "90", "0", "0", day("2024-06-11"))
	gstn.AddRow(party, "INV002", day("2024-05-12"), "500", "45", "45", "0", "0", nil)
	gstn.AddRow(party, "OLD-7", day("2023-12-01"), "100", "9", "9", "0", "0", nil)
	books := reconcile.NewTable("BOOKS", "GSTN", "Invoice Number", "Invoice Date", "Taxable", "CGST", "SGST", "IGST", "CESS")
	books.AddRow(party, "inv001a", day("2024-05-10"), "1000", "90", "90", "0", "0")
	books.AddRow(party, "002", day("2024-05-12"), "500", "45", "45.5", "0", "0")
	books.AddRow(party, "B-9", day("2024-06-01"), "25", "", "", "", "")
	return gstn, books
}

func runInput() RunInput {
	gstn, books := sources()
	opts := reconcile.DefaultOptions()
	opts.Cutoff = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	return RunInput{SourceName: "ITC MATCH.xlsx", Gstn: gstn, Books: books, Options: opts}
}

func TestRunner_FullPass(t *testing.T) {
	store := newFakeRunStore()
	locker := &fakeLocker{held: map[string]bool{}}
	uploader := &fakeUploader{objects: map[string][]byte{}}
	publisher := &fakePublisher{}
	runner := &Runner{
		Logger:       quietLogger(),
		Runs:         store,
		Locker:       locker,
		Uploader:     uploader,
		Publisher:    publisher,
		ObjectPrefix: "itc",
		Now:          fixedNow,
	}

	in := runInput()
	target := sheet.NewWorkbook()
	in.Target = target
	ctx := utils.SetCorrelationIdInContext(context.Background(), "cid-1")

	out, err := runner.Run(ctx, in)
	require.NoError(t, err)

	assert.False(t, out.Skipped)
	assert.Equal(t, "cid-1", out.CorrelationId)
	assert.Equal(t, 2, out.Summary.Matched)
	assert.Equal(t, 1, out.Summary.Mismatched)
	assert.Equal(t, 1, out.Summary.PrevFy)
	assert.Equal(t, 0, out.Summary.NotInBooks)
	assert.Equal(t, 1, out.Summary.NextFy)
	assert.Empty(t, out.Failed())
	assert.Equal(t, 1, locker.released)

	assert.Equal(t, []string{"MATCHED", "PREV_FY_ITC", "NEXT_FY_ITC"}, target.SheetNames())

	require.Len(t, uploader.objects, 1)
	for name := range uploader.objects {
		assert.Equal(t, "itc/2024/06/30/"+out.RunId+"-ITC_MATCH.xlsx", name)
	}

	require.Len(t, publisher.messages, 1)
	msg := publisher.messages[0]
	assert.Equal(t, out.RunId, msg.RunId)
	assert.Equal(t, "2024-04-01", msg.CutoffDate)
	assert.Equal(t, "gs://results/itc/2024/06/30/"+out.RunId+"-ITC_MATCH.xlsx", msg.ResultUri)
	assert.Equal(t, "cid-1", msg.CorrelationId)

	run := store.runs[out.Fingerprint]
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusSucceeded, run.Status)
	assert.Equal(t, 2, run.MatchedCount)

	checkTypes := map[string]int{}
	for _, r := range store.reports {
		checkTypes[r.CheckType]++
		assert.Equal(t, out.RunId, r.RunId)
	}
	assert.Equal(t, map[string]int{"MIS_MATCHED": 1, "PREV_FY_ITC": 1, "NEXT_FY_ITC": 1}, checkTypes)
}

func TestRunner_SkipsSucceededFingerprint(t *testing.T) {
	store := newFakeRunStore()
	runner := &Runner{Logger: quietLogger(), Runs: store, Now: fixedNow}

	in := runInput()
	in.AllowSkip = true
	first, err := runner.Run(context.Background(), in)
	require.NoError(t, err)
	require.False(t, first.Skipped)

	again := runInput()
	again.AllowSkip = true
	second, err := runner.Run(context.Background(), again)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Nil(t, second.Result)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Summary.Matched, second.Summary.Matched)

	forced := runInput()
	third, err := runner.Run(context.Background(), forced)
	require.NoError(t, err)
	assert.False(t, third.Skipped)
	assert.NotNil(t, third.Result)
}

func TestRunner_LockHeldElsewhere(t *testing.T) {
	in := runInput()
	fp := Fingerprint(in.Gstn, in.Books, in.Options)
	runner := &Runner{Logger: quietLogger(), Locker: &fakeLocker{held: map[string]bool{fp: true}}}

	_, err := runner.Run(context.Background(), in)
	assert.True(t, errors.Is(err, ErrRunInProgress))
}

func TestRunner_FatalInputMarksRunFailed(t *testing.T) {
	store := newFakeRunStore()
	runner := &Runner{Logger: quietLogger(), Runs: store}

	in := runInput()
	in.Books = reconcile.NewTable("BOOKS", "GSTN", "Inv No")

	out, err := runner.Run(context.Background(), in)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, IsFatalInput(err))
	assert.Equal(t, 1, store.failures)
}

func TestRunner_PersistFailureDoesNotFailPass(t *testing.T) {
	store := newFakeRunStore()
	store.saveErr = errors.New("db down")
	publisher := &fakePublisher{err: errors.New("pubsub down")}
	runner := &Runner{Logger: quietLogger(), Runs: store, Publisher: publisher}

	out, err := runner.Run(context.Background(), runInput())
	require.NoError(t, err)
	require.NotNil(t, out.Result)

	failed := out.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, PersistTargetDB, failed[0].Target)
	assert.Equal(t, PersistTargetPubSub, failed[1].Target)
	assert.Len(t, out.Result.Tables, 3)

	assert.Equal(t, models.RunStatusFailed, store.runs[out.Fingerprint].Status)
	require.NotNil(t, store.runs[out.Fingerprint].LastError)
	assert.Contains(t, *store.runs[out.Fingerprint].LastError, "db down")
}

func TestRunner_FailedWorkbookWriteIsRetriedNextRun(t *testing.T) {
	store := newFakeRunStore()
	cache := &fakeSummaryCache{items: map[string]reconcile.Summary{}}
	publisher := &fakePublisher{}
	runner := &Runner{Logger: quietLogger(), Runs: store, Cache: cache, Publisher: publisher, Now: fixedNow}

	in := runInput()
	in.AllowSkip = true
	in.Target = sheet.NewWorkbook()
	in.OutputPath = filepath.Join(t.TempDir(), "missing", "ITC MATCH_RESULT.xlsx")
	first, err := runner.Run(context.Background(), in)
	require.NoError(t, err)

	failed := first.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, PersistTargetExcel, failed[0].Target)
	assert.Equal(t, models.RunStatusFailed, store.runs[first.Fingerprint].Status)
	assert.Empty(t, cache.items)
	require.Len(t, publisher.messages, 1)
	assert.Equal(t, string(models.RunStatusFailed), publisher.messages[0].Status)

	again := runInput()
	again.AllowSkip = true
	again.Target = sheet.NewWorkbook()
	again.OutputPath = filepath.Join(t.TempDir(), "ITC MATCH_RESULT.xlsx")
	second, err := runner.Run(context.Background(), again)
	require.NoError(t, err)
	assert.False(t, second.Skipped)
	assert.Empty(t, second.Failed())
	assert.Equal(t, models.RunStatusSucceeded, store.runs[second.Fingerprint].Status)
	assert.Contains(t, cache.items, second.Fingerprint)
}

func TestRunner_SkippedRunKeepsStoredSummary(t *testing.T) {
	store := newFakeRunStore()
	runner := &Runner{Logger: quietLogger(), Runs: store, Now: fixedNow}

	in := runInput()
	in.Gstn.AddRow(nil, "INV404", nil, "1", "", "", "", "", nil)
	in.AllowSkip = true
	first, err := runner.Run(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 1, first.Summary.Excluded)

	again := runInput()
	again.Gstn.AddRow(nil, "INV404", nil, "1", "", "", "", "", nil)
	again.AllowSkip = true
	second, err := runner.Run(context.Background(), again)
	require.NoError(t, err)
	require.True(t, second.Skipped)
	assert.Equal(t, 1, second.Summary.Excluded)
	assert.Equal(t, first.Summary.ComparedTaxes, second.Summary.ComparedTaxes)
	assert.Equal(t, []string{"Taxable", "CGST", "SGST", "IGST", "CESS"}, second.Summary.ComparedTaxes)
}

func TestRunner_DryRunWritesNothing(t *testing.T) {
	uploader := &fakeUploader{objects: map[string][]byte{}}
	runner := &Runner{Logger: quietLogger(), Uploader: uploader}

	in := runInput()
	in.DryRun = true
	in.Target = sheet.NewWorkbook()

	out, err := runner.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, out.Outcomes)
	assert.Empty(t, uploader.objects)
	assert.Equal(t, []string{"Sheet1"}, in.Target.SheetNames())
}

func TestRunner_SkipSheetsEnv(t *testing.T) {
	t.Setenv("RECON_SKIP_SHEETS", "PREV_FY_ITC")
	runner := &Runner{Logger: quietLogger()}

	in := runInput()
	in.Target = sheet.NewWorkbook()
	out, err := runner.Run(context.Background(), in)
	require.NoError(t, err)

	assert.Len(t, out.Result.Tables, 3)
	assert.Equal(t, []string{"MATCHED", "NEXT_FY_ITC"}, in.Target.SheetNames())
}

type fakeSummaryCache struct {
	mu    sync.Mutex
	items map[string]reconcile.Summary
}

func (c *fakeSummaryCache) Get(_ context.Context, fp string) (*reconcile.Summary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.items[fp]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (c *fakeSummaryCache) Set(_ context.Context, fp string, s reconcile.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[fp] = s
	return nil
}

func TestRunner_SummaryCacheShortCircuits(t *testing.T) {
	cache := &fakeSummaryCache{items: map[string]reconcile.Summary{}}
	runner := &Runner{Logger: quietLogger(), Cache: cache, Now: fixedNow}

	in := runInput()
	in.AllowSkip = true
	first, err := runner.Run(context.Background(), in)
	require.NoError(t, err)
	require.False(t, first.Skipped)
	require.Contains(t, cache.items, first.Fingerprint)

	again := runInput()
	again.AllowSkip = true
	second, err := runner.Run(context.Background(), again)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.Summary.Matched, second.Summary.Matched)
}

func TestContextFields(t *testing.T) {
	ctx := utils.SetCorrelationIdInContext(context.Background(), "cid-1")
	ctx = utils.SetRunIdInContext(ctx, "run-1")

	fields := contextFields(ctx)
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Equal(t, "cid-1", fields["correlation_id"])
	assert.NotContains(t, fields, "source_name")
}
