package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFiscalYearStartMonth(t *testing.T) {
	for in, want := range map[string]time.Month{"Apr": time.April, "apr": time.April, "APRIL": time.April, "Jan": time.January, "december": time.December} {
		got, err := GetFiscalYearStartMonth(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "Ap", "Q1", "Foo"} {
		_, err := GetFiscalYearStartMonth(in)
		assert.Error(t, err, in)
	}
}

func TestGetFiscalYearStart(t *testing.T) {
	cases := []struct {
		date  string
		month time.Month
		want  string
	}{
		{"2024-05-10", time.April, "2024-04-01"},
		{"2024-04-01", time.April, "2024-04-01"},
		{"2024-03-31", time.April, "2023-04-01"},
		{"2024-12-31", time.January, "2024-01-01"},
	}
	for _, tc := range cases {
		date, _ := time.Parse("2006-01-02", tc.date)
		want, _ := time.Parse("2006-01-02", tc.want)
		assert.Equal(t, want, GetFiscalYearStart(date, tc.month), tc.date)
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-05-10", "10/05/2024", "10-05-2024", "10.05.2024", "10-May-2024", "10-May-24", "10-05-24", "2024-05-10 13:45:00"} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}

	_, err := ParseDate("")
	assert.Error(t, err)
	_, err = ParseDate("next tuesday")
	assert.Error(t, err)
}

func TestFormatDisplayDate(t *testing.T) {
	d := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "01/04/2024", FormatDisplayDate(&d))
	assert.Equal(t, "", FormatDisplayDate(nil))
	assert.Equal(t, "", FormatDisplayDate(&time.Time{}))
}

func TestParseDecimal(t *testing.T) {
	cases := map[string]string{
		"1000":      "1000",
		"1,234.50":  "1234.5",
		"Rs. 90":    "90",
		"₹ -10":     "-10",
		"INR 5":     "5",
		"(250.00)":  "-250",
		" 0.01 ":    "0.01",
		"(-3)":      "3",
		"12,34,567": "1234567",
	}
	for in, want := range cases {
		got, err := ParseDecimal(in)
		require.NoError(t, err, in)
		assert.True(t, decimal.RequireFromString(want).Equal(got), "%s -> %s", in, got)
	}

	for _, in := range []string{"", "abc", "1.2.3"} {
		_, err := ParseDecimal(in)
		assert.Error(t, err, in)
	}
}

func TestResultObjectName(t *testing.T) {
	assert.Equal(t,
		"itc/2024/06/01/run1-ITC_MATCH.xlsx",
		ResultObjectName("/itc/", "run1", "ITC MATCH.xlsx", "2024-06-01"))
	assert.Equal(t, "2024/06/01/run1-result.xlsx", ResultObjectName("", "run1", "", "2024-06-01"))
}

func TestBuildObjectAccessURL(t *testing.T) {
	t.Setenv("STORAGE_ACCESS_BASE_URL", "")
	t.Setenv("GCS_URL", "")
	assert.Equal(t, "gs://bucket/a/b.xlsx", BuildObjectAccessURL("bucket", "a/b.xlsx"))

	t.Setenv("GCS_URL", "storage.googleapis.com")
	assert.Equal(t, "https://storage.googleapis.com/bucket/a/b.xlsx", BuildObjectAccessURL("bucket", "a/b.xlsx"))

	t.Setenv("STORAGE_ACCESS_BASE_URL", "https://cdn.example.com/files/")
	assert.Equal(t, "https://cdn.example.com/files/a/b.xlsx", BuildObjectAccessURL("bucket", "a/b.xlsx"))
}
