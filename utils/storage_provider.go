package utils

import (
	"os"
	"strings"
)

const (
	StorageProviderGCS = "gcs"
	// local keeps the result workbook on disk only
	StorageProviderLocal = "local"
)

func GetStorageProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return StorageProviderGCS
	}
	return provider
}

// BuildObjectAccessURL turns an object key into the URL handed to consumers.
// STORAGE_ACCESS_BASE_URL wins, then GCS_URL/GCS_BUCKET, then a gs:// URI.
func BuildObjectAccessURL(bucket, objectKey string) string {
	if base := strings.TrimSpace(os.Getenv("STORAGE_ACCESS_BASE_URL")); base != "" {
		if strings.Contains(base, "{objectKey}") {
			return strings.ReplaceAll(base, "{objectKey}", objectKey)
		}
		return strings.TrimRight(base, "/") + "/" + objectKey
	}
	if gcsURL := strings.TrimSpace(os.Getenv("GCS_URL")); gcsURL != "" && bucket != "" {
		return "https://" + gcsURL + "/" + bucket + "/" + objectKey
	}
	return "gs://" + bucket + "/" + objectKey
}

// ResultObjectName places a run's workbook under prefix/yyyy/mm/dd/<run>-<source>.xlsx.
func ResultObjectName(prefix, runId, sourceName string, date string) string {
	name := strings.TrimSuffix(sourceName, ".xlsx")
	name = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\':
			return '_'
		}
		return r
	}, name)
	if name == "" {
		name = "result"
	}
	parts := []string{}
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, strings.ReplaceAll(date, "-", "/"), runId+"-"+name+".xlsx")
	return strings.Join(parts, "/")
}
