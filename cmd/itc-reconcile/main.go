package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/config"
	"bitbucket.org/mmdatafocus/itc_backend/reconcile"
	"bitbucket.org/mmdatafocus/itc_backend/sheet"
	"bitbucket.org/mmdatafocus/itc_backend/utils"
	"bitbucket.org/mmdatafocus/itc_backend/workflow"
)

func main() {
	cfg, err := config.LoadReconConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	file := flag.String("file", cfg.InputFile, "Workbook holding the GSTN and BOOKS sheets")
	gstnSheet := flag.String("gstn-sheet", cfg.GstnSheet, "Sheet with the GSTN filed invoices")
	booksSheet := flag.String("books-sheet", cfg.BooksSheet, "Sheet with the books ledger")
	headerRow := flag.Int("header-row", cfg.HeaderRow, "1-based row holding the column names")
	cutoffStr := flag.String("cutoff", "", "Optional: cutoff date (YYYY-MM-DD). Defaults to RECON_CUTOFF_DATE, then the fiscal year start of the latest GSTN invoice.")
	fyStart := flag.String("fy-start", "", "Optional: fiscal year start month (Jan..Dec)")
	outDir := flag.String("out-dir", cfg.OutputDir, "Optional: write results to a new workbook in this directory instead of the input file")
	dryRun := flag.Bool("dry-run", false, "Reconcile and print the summary without writing anything")
	force := flag.Bool("force", false, "Reconcile even when the same inputs already succeeded")
	flag.Parse()

	cfg.InputFile = strings.TrimSpace(*file)
	cfg.GstnSheet = strings.TrimSpace(*gstnSheet)
	cfg.BooksSheet = strings.TrimSpace(*booksSheet)
	cfg.HeaderRow = *headerRow
	cfg.OutputDir = strings.TrimSpace(*outDir)
	if s := strings.TrimSpace(*cutoffStr); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid cutoff date: %v\n", err)
			os.Exit(1)
		}
		cfg.CutoffDate = d
	}
	if s := strings.TrimSpace(*fyStart); s != "" {
		m, err := utils.GetFiscalYearStartMonth(s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid fy-start: %v\n", err)
			os.Exit(1)
		}
		cfg.FiscalYearStartMonth = m
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := config.GetLogger()

	wb, err := sheet.Open(cfg.InputFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer wb.Close()

	opts := reconcile.DefaultOptions()
	opts.Cutoff = cfg.CutoffDate
	opts.FiscalYearStartMonth = cfg.FiscalYearStartMonth
	opts.KeyNormalizer = cfg.KeyNormalizer

	gstn, books, err := wb.LoadSources(cfg.GstnSheet, cfg.BooksSheet, cfg.HeaderRow, opts.Schema)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", cfg.InputFile, err)
		os.Exit(1)
	}

	runner := &workflow.Runner{Logger: logger}
	closeRunner := func() {}
	if !*dryRun {
		runner, closeRunner, err = workflow.NewRunnerFromConfig(ctx, cfg, logger, 5)
		if err != nil {
			fmt.Fprintf(os.Stderr, "setup: %v\n", err)
			os.Exit(1)
		}
	}
	defer closeRunner()

	in := workflow.RunInput{
		SourceName: filepath.Base(cfg.InputFile),
		Gstn:       gstn,
		Books:      books,
		Options:    opts,
		Target:     wb,
		AllowSkip:  !*force,
		DryRun:     *dryRun,
	}
	if cfg.OutputDir != "" {
		in.Target = sheet.NewWorkbook()
		in.OutputPath = filepath.Join(cfg.OutputDir, strings.TrimSuffix(filepath.Base(cfg.InputFile), filepath.Ext(cfg.InputFile))+"_RESULT.xlsx")
	}

	out, err := runner.Run(ctx, in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile failed: %v\n", err)
		os.Exit(1)
	}

	s := out.Summary
	if out.Skipped {
		fmt.Printf("Inputs unchanged since run with fingerprint %s; nothing to do (use -force to rerun)\n", out.Fingerprint)
	} else {
		fmt.Printf("Cutoff %s\n", out.Result.Cutoff.Format("2006-01-02"))
		fmt.Printf("Diagnostics %d\n", len(out.Result.Diagnostics))
	}
	fmt.Printf("MATCHED=%d (mismatched=%d) PREV_FY_ITC=%d NOTINBOOKS=%d NEXT_FY_ITC=%d excluded=%d\n",
		s.Matched, s.Mismatched, s.PrevFy, s.NotInBooks, s.NextFy, s.Excluded)
	fmt.Printf("Taxable GSTN=%s BOOKS=%s\n", s.GstnTaxable.StringFixed(2), s.BooksTaxable.StringFixed(2))

	failed := out.Failed()
	for _, o := range out.Outcomes {
		if o.OK {
			fmt.Printf("wrote %s %s\n", o.Target, o.Location)
		} else {
			fmt.Fprintf(os.Stderr, "%s write failed: %v\n", o.Target, o.Err)
		}
	}
	if len(failed) > 0 {
		os.Exit(1)
	}
}
