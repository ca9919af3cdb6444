package utils

import (
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/models"
	"github.com/shopspring/decimal"
)

// DisplayDateLayout is the day/month/year layout used on every result sheet.
const DisplayDateLayout = "02/01/2006"

// input layouts accepted for invoice and filing dates, tried in order
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"02-Jan-2006",
	"02-Jan-06",
	"02-01-06",
}

// to get the fiscal year start month, e.g. "Apr", "apr" or "April"
func GetFiscalYearStartMonth(fiscalYear string) (time.Month, error) {
	fy, err := models.ParseFiscalYear(fiscalYear)
	if err != nil {
		return 0, errors.New("invalid fiscal year month")
	}
	switch fy {
	case models.FiscalYearJan:
		return time.January, nil
	case models.FiscalYearFeb:
		return time.February, nil
	case models.FiscalYearMar:
		return time.March, nil
	case models.FiscalYearApr:
		return time.April, nil
	case models.FiscalYearMay:
		return time.May, nil
	case models.FiscalYearJun:
		return time.June, nil
	case models.FiscalYearJul:
		return time.July, nil
	case models.FiscalYearAug:
		return time.August, nil
	case models.FiscalYearSep:
		return time.September, nil
	case models.FiscalYearOct:
		return time.October, nil
	case models.FiscalYearNov:
		return time.November, nil
	default:
		return time.December, nil
	}
}

func GetFiscalYearRange(fiscalYearStartMonth time.Month, year int) (time.Time, time.Time) {
	start := time.Date(year, fiscalYearStartMonth, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, -1).Add(time.Hour*23 + time.Minute*59 + time.Second*59)
	return start, end
}

// GetFiscalYearStart returns the first day of the fiscal year that contains date.
func GetFiscalYearStart(date time.Time, fiscalYearStartMonth time.Month) time.Time {
	year := date.Year()
	if fiscalYearStartMonth > date.Month() {
		year--
	}
	start, _ := GetFiscalYearRange(fiscalYearStartMonth, year)
	return start
}

// TruncateToDate drops the clock part, keeping the calendar date in UTC.
func TruncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate tries the known invoice date layouts and returns the calendar date.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty date string")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return TruncateToDate(t), nil
		}
	}
	return time.Time{}, errors.New("unrecognised date: " + value)
}

func FormatDisplayDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(DisplayDateLayout)
}

// ParseDecimal converts a spreadsheet amount to a decimal.Decimal value.
// Accepts grouping commas, a currency marker and accounting style negatives, e.g.
// "1,234.50", "Rs. 90", "₹ -10", "(250.00)".
func ParseDecimal(value string) (decimal.Decimal, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	for _, marker := range []string{"INR", "Rs.", "Rs", "₹", ","} {
		s = strings.ReplaceAll(s, marker, "")
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		neg = !neg
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}

	dec, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if neg {
		dec = dec.Neg()
	}
	return dec, nil
}

func SplitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
