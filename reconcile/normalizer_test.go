package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripAlpha(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"INV001A", "001"},
		{"inv001a", "001"},
		{"INV/001-A", "/001-"},
		{"inv-001-a", "-001-"},
		{"ABC", ""},
		{"", ""},
		{" 12 34 ", " 12 34 "},
		{"Ä12", "Ä12"},
		{"2024/25/0042", "2024/25/0042"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got := StripAlpha(tc.in)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, StripAlpha(got), "normalizing twice changes nothing")
		})
	}
}

func TestNormalizeInvoiceNumber(t *testing.T) {
	assert.Nil(t, NormalizeInvoiceNumber(nil))

	raw := "GST/77B"
	key := NormalizeInvoiceNumber(&raw)
	require.NotNil(t, key)
	assert.Equal(t, "/77", *key)
}

func TestNormalizerRegistry(t *testing.T) {
	fn, ok := NormalizerByName("")
	require.True(t, ok)
	assert.Equal(t, "001", fn("INV001"))

	_, ok = NormalizerByName("digits_only")
	assert.False(t, ok)

	RegisterNormalizer("digits_only", func(s string) string {
		out := make([]rune, 0, len(s))
		for _, r := range s {
			if r >= '0' && r <= '9' {
				out = append(out, r)
			}
		}
		return string(out)
	})
	fn, ok = NormalizerByName("digits_only")
	require.True(t, ok)
	assert.Equal(t, "001", fn("inv-001-a"))
}
