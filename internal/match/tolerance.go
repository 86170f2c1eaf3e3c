package match

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tolerances holds the comparison thresholds used when classifying field
// differences. A delta strictly greater than the applicable tolerance is a
// mismatch; a delta equal to it is not.
type Tolerances struct {
	// TaxRate absorbs floating rounding from the source systems.
	TaxRate decimal.Decimal
	// AmountAbs and AmountRel combine: the effective amount tolerance is
	// min(AmountAbs, AmountRel × max(|nbim|, |custody|)).
	AmountAbs decimal.Decimal
	AmountRel decimal.Decimal
}

// DefaultTolerances are the values from the reconciliation runbook:
// 1e-4 on tax rate, 0.01 currency units or 1e-6 relative on amounts.
func DefaultTolerances() Tolerances {
	return Tolerances{
		TaxRate:   decimal.New(1, -4),
		AmountAbs: decimal.New(1, -2),
		AmountRel: decimal.New(1, -6),
	}
}

// ToleranceConfigError reports an invalid threshold. It is fatal at startup:
// running with a bad tolerance would silently change break classification.
type ToleranceConfigError struct {
	Field string
	Value decimal.Decimal
}

func (e *ToleranceConfigError) Error() string {
	return fmt.Sprintf("tolerance %s: invalid value %s (must be > 0)", e.Field, e.Value)
}

// Validate rejects non-positive thresholds.
func (t Tolerances) Validate() error {
	for _, f := range []struct {
		name string
		val  decimal.Decimal
	}{
		{"tax_rate", t.TaxRate},
		{"amount_abs", t.AmountAbs},
		{"amount_rel", t.AmountRel},
	} {
		if !f.val.IsPositive() {
			return &ToleranceConfigError{Field: f.name, Value: f.val}
		}
	}
	return nil
}

// amountTolerance returns the effective tolerance for one amount pair.
func (t Tolerances) amountTolerance(nbim, custody decimal.Decimal) decimal.Decimal {
	ref := nbim.Abs()
	if c := custody.Abs(); c.GreaterThan(ref) {
		ref = c
	}
	rel := t.AmountRel.Mul(ref)
	if rel.LessThan(t.AmountAbs) {
		return rel
	}
	return t.AmountAbs
}
