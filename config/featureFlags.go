package config

import (
	"os"
	"strings"
)

func flagEnabled(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// PersistRunsToDB stores run rows and diagnostics in MySQL.
//
// Set via env:
// - RECON_PERSIST_DB=true
func PersistRunsToDB() bool {
	return flagEnabled("RECON_PERSIST_DB")
}

// UploadResultsToGCS copies the result workbook to the configured bucket.
//
// Set via env:
// - RECON_UPLOAD_GCS=true
func UploadResultsToGCS() bool {
	return flagEnabled("RECON_UPLOAD_GCS")
}

// PublishRunEvents announces finished runs on Pub/Sub.
//
// Set via env:
// - RECON_PUBLISH_EVENTS=true
func PublishRunEvents() bool {
	return flagEnabled("RECON_PUBLISH_EVENTS")
}

// SkipSheets lists result sheets that are computed but not written.
//
// Set via env:
// - RECON_SKIP_SHEETS="PREV_FY_ITC,NEXT_FY_ITC"
//
// Sheet names are case-insensitive.
func SkipSheet(sheet string) bool {
	sheet = strings.ToUpper(strings.TrimSpace(sheet))
	if sheet == "" {
		return false
	}
	raw := os.Getenv("RECON_SKIP_SHEETS")
	if strings.TrimSpace(raw) == "" {
		return false
	}
	for _, part := range strings.Split(raw, ",") {
		if strings.ToUpper(strings.TrimSpace(part)) == sheet {
			return true
		}
	}
	return false
}
