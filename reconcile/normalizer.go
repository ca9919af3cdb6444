package reconcile

import (
	"strings"
	"sync"
)

// KeyNormalizer derives the join key from a raw invoice number.
type KeyNormalizer func(string) string

// StripAlphaNormalizer is the registry name of StripAlpha and the default strategy.
const StripAlphaNormalizer = "strip_alpha"

var (
	normalizersMu sync.RWMutex
	normalizers   = make(map[string]KeyNormalizer)
)

func init() {
	RegisterNormalizer(StripAlphaNormalizer, StripAlpha)
}

// RegisterNormalizer adds or replaces a named key strategy.
func RegisterNormalizer(name string, fn KeyNormalizer) {
	normalizersMu.Lock()
	defer normalizersMu.Unlock()
	normalizers[name] = fn
}

// NormalizerByName resolves a strategy; an empty name resolves to StripAlpha.
func NormalizerByName(name string) (KeyNormalizer, bool) {
	if name == "" {
		name = StripAlphaNormalizer
	}
	normalizersMu.RLock()
	defer normalizersMu.RUnlock()
	fn, ok := normalizers[name]
	return fn, ok
}

// StripAlpha removes ASCII letters and keeps every other rune in place, so
// "INV/001-A" becomes "/001-". Digits, punctuation, whitespace and non-ASCII
// letters are kept. Only series letters are tolerated as a difference between
// the two ledgers.
func StripAlpha(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeInvoiceNumber applies StripAlpha to raw. A nil raw has no key.
func NormalizeInvoiceNumber(raw *string) *string {
	if raw == nil {
		return nil
	}
	key := StripAlpha(*raw)
	return &key
}
