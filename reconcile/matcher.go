package reconcile

import (
	"fmt"

	"bitbucket.org/mmdatafocus/itc_backend/models"
)

type compositeKey struct {
	partyId string
	key     string
}

func keyOf(r InvoiceRecord) compositeKey {
	return compositeKey{partyId: r.PartyId, key: r.NormalizedKey}
}

// MatchResult is the outer join of the two cleaned sources.
type MatchResult struct {
	Pairs     []MatchedPair
	GstnOnly  []InvoiceRecord
	BooksOnly []InvoiceRecord
	// duplicate key warnings, one per source and key
	Diagnostics []Diagnostic
}

// Counts returns the number of result rows per join category.
func (m *MatchResult) Counts() map[models.MatchCategory]int {
	return map[models.MatchCategory]int{
		models.MatchCategoryBoth:      len(m.Pairs),
		models.MatchCategoryLeftOnly:  len(m.GstnOnly),
		models.MatchCategoryRightOnly: len(m.BooksOnly),
	}
}

// Match full outer joins gstn and books on (party id, normalized key).
// Duplicated keys pair every combination inside the key group and are reported,
// never collapsed. Pairs and GSTN-only rows follow GSTN input order, fan-out
// follows BOOKS input order, BOOKS-only rows follow BOOKS input order.
func Match(gstn, books *RecordSet) *MatchResult {
	result := &MatchResult{}

	booksByKey := make(map[compositeKey][]int, len(books.Records))
	for i, r := range books.Records {
		k := keyOf(r)
		booksByKey[k] = append(booksByKey[k], i)
	}

	gstnKeys := make(map[compositeKey]int, len(gstn.Records))
	for _, r := range gstn.Records {
		gstnKeys[keyOf(r)]++
	}

	result.Diagnostics = append(result.Diagnostics, duplicateKeys(gstn, gstnKeys)...)
	booksCounts := make(map[compositeKey]int, len(booksByKey))
	for k, idx := range booksByKey {
		booksCounts[k] = len(idx)
	}
	result.Diagnostics = append(result.Diagnostics, duplicateKeys(books, booksCounts)...)

	for _, g := range gstn.Records {
		idx, ok := booksByKey[keyOf(g)]
		if !ok {
			result.GstnOnly = append(result.GstnOnly, g)
			continue
		}
		for _, i := range idx {
			result.Pairs = append(result.Pairs, MatchedPair{Gstn: g, Books: books.Records[i]})
		}
	}

	for _, b := range books.Records {
		if _, ok := gstnKeys[keyOf(b)]; !ok {
			result.BooksOnly = append(result.BooksOnly, b)
		}
	}

	return result
}

// duplicateKeys reports keys seen more than once, in order of first appearance.
func duplicateKeys(rs *RecordSet, counts map[compositeKey]int) []Diagnostic {
	var out []Diagnostic
	reported := make(map[compositeKey]bool)
	for _, r := range rs.Records {
		k := keyOf(r)
		n := counts[k]
		if n < 2 || reported[k] {
			continue
		}
		reported[k] = true
		out = append(out, Diagnostic{
			Kind:          models.DiagnosticDuplicateKey,
			Source:        rs.Source,
			PartyId:       r.PartyId,
			InvoiceNumber: r.RawInvoiceNumber,
			Message: fmt.Sprintf("%s has %d records for party %s invoice key %q (first %q); all combinations are paired",
				rs.Source, n, r.PartyId, r.NormalizedKey, r.RawInvoiceNumber),
		})
	}
	return out
}
