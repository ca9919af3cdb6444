package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	base := runInput()
	fp := Fingerprint(base.Gstn, base.Books, base.Options)
	assert.Len(t, fp, 64)

	same := runInput()
	same.Options.AsOf = time.Now()
	assert.Equal(t, fp, Fingerprint(same.Gstn, same.Books, same.Options))

	cutoff := runInput()
	cutoff.Options.Cutoff = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	assert.NotEqual(t, fp, Fingerprint(cutoff.Gstn, cutoff.Books, cutoff.Options))

	cell := runInput()
	cell.Books.Rows[0][3] = "1000.01"
	assert.NotEqual(t, fp, Fingerprint(cell.Gstn, cell.Books, cell.Options))

	typed := runInput()
	typed.Books.Rows[0][3] = 1000
	assert.NotEqual(t, fp, Fingerprint(typed.Gstn, typed.Books, typed.Options))
}
