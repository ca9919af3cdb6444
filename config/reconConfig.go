package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/models"
	"bitbucket.org/mmdatafocus/itc_backend/utils"
	"github.com/go-playground/validator/v10"
)

// ReconConfig holds the env driven settings of a reconciliation pass.
type ReconConfig struct {
	FiscalYearStartMonth time.Month `validate:"min=1,max=12"`
	// zero means the engine derives it from the GSTN invoice dates
	CutoffDate    time.Time
	InputFile     string `validate:"required"`
	GstnSheet     string `validate:"required"`
	BooksSheet    string `validate:"required,nefield=GstnSheet"`
	HeaderRow     int    `validate:"min=1"`
	OutputDir     string
	KeyNormalizer string `validate:"required"`
	GcsBucket     string `validate:"required_with=UploadToGCS"`
	PersistToDB   bool
	UploadToGCS   bool
	PublishEvents bool
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// LoadReconConfig reads RECON_* settings with their defaults and validates them.
func LoadReconConfig() (*ReconConfig, error) {
	fyStart, err := utils.GetFiscalYearStartMonth(envOr("RECON_FISCAL_YEAR_START", "Apr"))
	if err != nil {
		return nil, fmt.Errorf("RECON_FISCAL_YEAR_START: %w", err)
	}

	cfg := &ReconConfig{
		FiscalYearStartMonth: fyStart,
		InputFile:            envOr("RECON_INPUT_FILE", "data/ITC MATCH.xlsx"),
		GstnSheet:            envOr("RECON_GSTN_SHEET", "GSTN"),
		BooksSheet:           envOr("RECON_BOOKS_SHEET", "BOOKS"),
		HeaderRow:            intFromEnv("RECON_HEADER_ROW", 2),
		OutputDir:            envOr("RECON_OUTPUT_DIR", ""),
		KeyNormalizer:        envOr("RECON_KEY_NORMALIZER", "strip_alpha"),
		GcsBucket:            envOr("GCS_BUCKET", ""),
		PersistToDB:          PersistRunsToDB(),
		UploadToGCS:          UploadResultsToGCS(),
		PublishEvents:        PublishRunEvents(),
	}

	if raw := envOr("RECON_CUTOFF_DATE", ""); raw != "" {
		cutoff, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("RECON_CUTOFF_DATE must be YYYY-MM-DD: %w", err)
		}
		cfg.CutoffDate = cutoff
	}

	for _, name := range utils.SplitAndTrim(os.Getenv("RECON_SKIP_SHEETS")) {
		if !models.ResultSheet(strings.ToUpper(name)).IsValid() {
			return nil, fmt.Errorf("RECON_SKIP_SHEETS: unknown result sheet %q", name)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ReconConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid reconciliation config: %w", err)
	}
	return nil
}
