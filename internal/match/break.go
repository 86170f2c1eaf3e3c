package match

import "github.com/shopspring/decimal"

// BreakType classifies one discrepancy. Downstream safeguard rules key off
// these values, so the strings are part of the wire contract.
type BreakType string

const (
	BreakAmountMismatch   BreakType = "AMOUNT_MISMATCH"
	BreakTaxRateMismatch  BreakType = "TAX_RATE_MISMATCH"
	BreakDateMismatch     BreakType = "DATE_MISMATCH"
	BreakMissingInCustody BreakType = "MISSING_IN_CUSTODY"
	BreakMissingInNBIM    BreakType = "MISSING_IN_NBIM"
	BreakDuplicateKey     BreakType = "DUPLICATE_KEY"
)

// Unmatched reports whether t is one of the classes with no one-to-one
// record pair behind it (missing on a side, or ambiguous duplicates).
func (t BreakType) Unmatched() bool {
	switch t {
	case BreakMissingInCustody, BreakMissingInNBIM, BreakDuplicateKey:
		return true
	}
	return false
}

// FieldDelta holds both raw values of one differing field and, for numeric
// fields, the signed delta (custody − nbim).
type FieldDelta struct {
	NBIM    string           `json:"nbim"`
	Custody string           `json:"custody"`
	Delta   *decimal.Decimal `json:"delta,omitempty"`
}

// Break is a discrepancy discovered for one event key. Created only by the
// matcher and never mutated afterwards; enrichment (diagnosis, market facts)
// travels alongside it, not inside it.
type Break struct {
	BreakID     int                   `json:"break_id"`
	ISIN        string                `json:"isin"`
	Custodian   string                `json:"custodian"`
	Type        BreakType             `json:"type"`
	ExDate      string                `json:"ex_date"`
	PayDate     string                `json:"pay_date"`
	Note        string                `json:"note,omitempty"`
	FieldDeltas map[string]FieldDelta `json:"field_deltas,omitempty"`
}
