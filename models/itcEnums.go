package models

import (
	"errors"
	"strings"
)

// Source is the provenance of an invoice record. It never changes after the record is built.
type Source string

const (
	SourceGstn  Source = "GSTN"
	SourceBooks Source = "BOOKS"
)

// TaxField is one of the fixed tax amount columns compared between GSTN and BOOKS.
type TaxField string

const (
	TaxFieldTaxable TaxField = "Taxable"
	TaxFieldCGST    TaxField = "CGST"
	TaxFieldSGST    TaxField = "SGST"
	TaxFieldIGST    TaxField = "IGST"
	TaxFieldCESS    TaxField = "CESS"
)

// TaxFields is the comparison order used everywhere (mismatch detection, summaries).
var TaxFields = []TaxField{
	TaxFieldTaxable,
	TaxFieldCGST,
	TaxFieldSGST,
	TaxFieldIGST,
	TaxFieldCESS,
}

type MatchCategory string

const (
	MatchCategoryBoth      MatchCategory = "BOTH"
	MatchCategoryLeftOnly  MatchCategory = "LEFT_ONLY"
	MatchCategoryRightOnly MatchCategory = "RIGHT_ONLY"
)

// PeriodBucket is assigned to GSTN-only records by invoice date against the fiscal cutoff.
type PeriodBucket string

const (
	PeriodBucketPrior   PeriodBucket = "PRIOR"
	PeriodBucketPending PeriodBucket = "PENDING"
)

type ResultSheet string

const (
	ResultSheetMatched    ResultSheet = "MATCHED"
	ResultSheetPrevFyItc  ResultSheet = "PREV_FY_ITC"
	ResultSheetNotInBooks ResultSheet = "NOTINBOOKS"
	ResultSheetNextFyItc  ResultSheet = "NEXT_FY_ITC"
)

// ResultSheets is the fixed output order.
var ResultSheets = []ResultSheet{
	ResultSheetMatched,
	ResultSheetPrevFyItc,
	ResultSheetNotInBooks,
	ResultSheetNextFyItc,
}

func (s ResultSheet) IsValid() bool {
	for _, r := range ResultSheets {
		if r == s {
			return true
		}
	}
	return false
}

type DiagnosticKind string

const (
	DiagnosticDuplicateKey       DiagnosticKind = "DUPLICATE_KEY"
	DiagnosticMissingTaxColumn   DiagnosticKind = "MISSING_TAX_COLUMN"
	DiagnosticMissingInvoiceDate DiagnosticKind = "MISSING_INVOICE_DATE"
	DiagnosticUnparseableCell    DiagnosticKind = "UNPARSEABLE_CELL"
)

type FiscalYear string

const (
	FiscalYearJan FiscalYear = "Jan"
	FiscalYearFeb FiscalYear = "Feb"
	FiscalYearMar FiscalYear = "Mar"
	FiscalYearApr FiscalYear = "Apr"
	FiscalYearMay FiscalYear = "May"
	FiscalYearJun FiscalYear = "Jun"
	FiscalYearJul FiscalYear = "Jul"
	FiscalYearAug FiscalYear = "Aug"
	FiscalYearSep FiscalYear = "Sep"
	FiscalYearOct FiscalYear = "Oct"
	FiscalYearNov FiscalYear = "Nov"
	FiscalYearDec FiscalYear = "Dec"
)

// ParseFiscalYear accepts "Apr", "apr" or "APRIL".
func ParseFiscalYear(str string) (FiscalYear, error) {
	s := strings.TrimSpace(str)
	if len(s) < 3 {
		return "", errors.New("invalid FiscalYear")
	}
	s = strings.ToUpper(s[:1]) + strings.ToLower(s[1:3])

	fiscalYears := map[string]FiscalYear{
		"Jan": FiscalYearJan,
		"Feb": FiscalYearFeb,
		"Mar": FiscalYearMar,
		"Apr": FiscalYearApr,
		"May": FiscalYearMay,
		"Jun": FiscalYearJun,
		"Jul": FiscalYearJul,
		"Aug": FiscalYearAug,
		"Sep": FiscalYearSep,
		"Oct": FiscalYearOct,
		"Nov": FiscalYearNov,
		"Dec": FiscalYearDec,
	}

	y, ok := fiscalYears[s]
	if !ok {
		return "", errors.New("invalid FiscalYear")
	}
	return y, nil
}
