package safeguard

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/martegra/divrecon/internal/match"
)

// Rule is a named deterministic predicate over (break, diagnosis, proposal).
// A triggered rule forces auto_fixable to false. Rules are static
// configuration: pure functions of their input with no hidden state.
type Rule interface {
	Name() string
	Triggered(in Input) bool
}

// Input is everything a rule may look at for one proposal.
type Input struct {
	Break     match.Break
	Diagnosis *Diagnosis // nil when no diagnosis was supplied for the break
	Proposal  Proposal
}

// Config keys selecting the canonical rules. The configured order is the
// evaluation order; first match wins.
const (
	KeyUnmatchedBreak   = "unmatched_break"
	KeyMagnitude        = "magnitude"
	KeyLowConfidence    = "low_confidence"
	KeyUnverifiedSource = "unverified_source"
)

// Thresholds parameterize the configurable rules.
type Thresholds struct {
	// ConfidenceFloor is the minimum upstream confidence for unattended fixes.
	ConfidenceFloor float64
	// MagnitudeAbs is the absolute amount delta above which a fix always
	// needs human review, in currency units.
	MagnitudeAbs decimal.Decimal
	// MagnitudeRel is the same cut expressed relative to the NBIM amount.
	MagnitudeRel decimal.Decimal
}

// Build resolves configured rule keys into the ordered rule list.
// Unknown keys are rejected so a typo cannot silently disable a safeguard.
func Build(keys []string, th Thresholds) ([]Rule, error) {
	rules := make([]Rule, 0, len(keys))
	for _, key := range keys {
		switch key {
		case KeyUnmatchedBreak:
			rules = append(rules, unmatchedBreakRule{})
		case KeyMagnitude:
			rules = append(rules, magnitudeRule{abs: th.MagnitudeAbs, rel: th.MagnitudeRel})
		case KeyLowConfidence:
			rules = append(rules, lowConfidenceRule{floor: th.ConfidenceFloor})
		case KeyUnverifiedSource:
			rules = append(rules, unverifiedSourceRule{})
		default:
			return nil, fmt.Errorf("unknown safeguard rule %q", key)
		}
	}
	return rules, nil
}

// unmatchedBreakRule blocks automation on breaks with no one-to-one record
// pair: there is no factual record to automate against.
type unmatchedBreakRule struct{}

func (unmatchedBreakRule) Name() string { return "Unmatched-break rule" }

func (unmatchedBreakRule) Triggered(in Input) bool {
	return in.Break.Type.Unmatched()
}

// magnitudeRule blocks automation when the amount delta is too large,
// regardless of upstream confidence.
type magnitudeRule struct {
	abs decimal.Decimal
	rel decimal.Decimal
}

func (magnitudeRule) Name() string { return "Magnitude rule" }

// amountFields are the deltas that measure money movement. Rate and date
// deltas never count toward magnitude: a 0.10 tax-rate delta is a rate
// question, not a large amount.
var amountFields = []string{"gross_amount", "net_amount"}

func (r magnitudeRule) Triggered(in Input) bool {
	for _, name := range amountFields {
		fd, ok := in.Break.FieldDeltas[name]
		if !ok || fd.Delta == nil {
			continue
		}
		delta := fd.Delta.Abs()
		if delta.GreaterThan(r.abs) {
			return true
		}
		// Relative cut against the NBIM side of the same amount. Amount
		// deltas always carry decimal-rendered values, so the parse only
		// fails for a zero-information empty string.
		base, err := decimal.NewFromString(fd.NBIM)
		if err != nil || base.IsZero() {
			continue
		}
		if delta.Div(base.Abs()).GreaterThan(r.rel) {
			return true
		}
	}
	return false
}

// lowConfidenceRule blocks automation below the configured confidence floor.
type lowConfidenceRule struct {
	floor float64
}

func (lowConfidenceRule) Name() string { return "Low-confidence rule" }

func (r lowConfidenceRule) Triggered(in Input) bool {
	return in.Proposal.Confidence < r.floor
}

// unverifiedSourceRule blocks automation of amount and tax-rate breaks whose
// diagnosis lacks corroborating external market evidence.
type unverifiedSourceRule struct{}

func (unverifiedSourceRule) Name() string { return "Unverified-source rule" }

func (unverifiedSourceRule) Triggered(in Input) bool {
	switch in.Break.Type {
	case match.BreakAmountMismatch, match.BreakTaxRateMismatch:
		return !in.Diagnosis.Verified()
	}
	return false
}
