package reconcile

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/itc_backend/utils"
	"github.com/shopspring/decimal"
)

// cellString renders an identifying cell. ok is false for nil and blank cells.
func cellString(v any) (s string, ok bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, strings.TrimSpace(t) != ""
	case decimal.Decimal:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case time.Time:
		return t.Format("2006-01-02"), true
	case fmt.Stringer:
		s := t.String()
		return s, strings.TrimSpace(s) != ""
	default:
		s := fmt.Sprint(t)
		return s, strings.TrimSpace(s) != ""
	}
}

// cellDecimal reads an amount. present is false for nil and blank cells.
func cellDecimal(v any) (d decimal.Decimal, present bool, err error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, false, nil
	case decimal.Decimal:
		return t, true, nil
	case float64:
		return decimal.NewFromFloat(t), true, nil
	case float32:
		return decimal.NewFromFloat32(t), true, nil
	case int:
		return decimal.NewFromInt(int64(t)), true, nil
	case int64:
		return decimal.NewFromInt(t), true, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return decimal.Zero, false, nil
		}
		d, err := utils.ParseDecimal(t)
		if err != nil {
			return decimal.Zero, false, err
		}
		return d, true, nil
	default:
		return decimal.Zero, false, fmt.Errorf("unsupported amount cell %T", v)
	}
}

// cellDate reads a calendar date. A nil result without error means the cell is empty.
func cellDate(v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if t.IsZero() {
			return nil, nil
		}
		d := utils.TruncateToDate(t)
		return &d, nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return nil, nil
		}
		d := utils.TruncateToDate(*t)
		return &d, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		d, err := utils.ParseDate(t)
		if err != nil {
			return nil, err
		}
		return &d, nil
	default:
		return nil, fmt.Errorf("unsupported date cell %T", v)
	}
}
