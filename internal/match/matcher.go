package match

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/martegra/divrecon/internal/ledger"
)

// Result is the output of one matching pass: every event key present in
// either ledger lands in exactly one of Breaks or the clean-match count.
type Result struct {
	Breaks       []Break            `json:"breaks"`
	CleanMatches int                `json:"clean_matches"`
	LoadErrors   []ledger.LoadError `json:"load_errors,omitempty"`
}

// Match indexes both record sets by event key and classifies each key.
// Break ids are assigned in first-appearance order (NBIM sequence first,
// then custody-only keys in custody sequence order), so identical inputs
// always produce the same break list in the same order.
func Match(nbim, custody []ledger.Record, tol Tolerances) (*Result, error) {
	if err := tol.Validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	nbimByKey := make(map[string][]ledger.Record)
	custodyByKey := make(map[string][]ledger.Record)
	var keyOrder []string

	index := func(recs []ledger.Record, source ledger.Source, byKey map[string][]ledger.Record) {
		for i, rec := range recs {
			if reason := rec.Validate(); reason != "" {
				res.LoadErrors = append(res.LoadErrors, ledger.LoadError{
					Source: source, Row: i + 1, Reason: reason,
				})
				continue
			}
			key := rec.EventKey
			if key == "" {
				key = ledger.DeriveEventKey(rec.ISIN, rec.ExDate, rec.PayDate)
			}
			if _, seenNBIM := nbimByKey[key]; !seenNBIM {
				if _, seenCustody := custodyByKey[key]; !seenCustody {
					keyOrder = append(keyOrder, key)
				}
			}
			byKey[key] = append(byKey[key], rec)
		}
	}
	index(nbim, ledger.SourceNBIM, nbimByKey)
	index(custody, ledger.SourceCustody, custodyByKey)

	mate := pairShiftedDates(keyOrder, nbimByKey, custodyByKey)

	nextID := 1
	emit := func(b Break) {
		b.BreakID = nextID
		nextID++
		res.Breaks = append(res.Breaks, b)
	}

	paired := make(map[string]bool)
	for _, key := range keyOrder {
		if paired[key] {
			continue
		}
		n, c := nbimByKey[key], custodyByKey[key]
		switch {
		case len(n) > 1 || len(c) > 1:
			emit(duplicateBreak(n, c))
		case len(c) == 0:
			if other, ok := mate[key]; ok {
				paired[other] = true
				if b, ok := comparePair(n[0], custodyByKey[other][0], tol); ok {
					emit(b)
				} else {
					res.CleanMatches++
				}
				continue
			}
			emit(unmatchedBreak(n[0], BreakMissingInCustody))
		case len(n) == 0:
			if other, ok := mate[key]; ok {
				paired[other] = true
				if b, ok := comparePair(nbimByKey[other][0], c[0], tol); ok {
					emit(b)
				} else {
					res.CleanMatches++
				}
				continue
			}
			emit(unmatchedBreak(c[0], BreakMissingInNBIM))
		default:
			if b, ok := comparePair(n[0], c[0], tol); ok {
				emit(b)
			} else {
				res.CleanMatches++
			}
		}
	}
	return res, nil
}

// pairShiftedDates links one-sided keys that differ only in the date
// component of the event key. A booking whose ex-date was entered
// differently on the two sides lands under two keys; without this pass it
// would surface as a MISSING pair instead of one date break. Pairing is
// attempted only when it is unambiguous: exactly one unmatched record per
// side for the ISIN. Anything else stays a missing-record break; no
// heuristic disambiguation.
func pairShiftedDates(keyOrder []string, nbimByKey, custodyByKey map[string][]ledger.Record) map[string]string {
	nbimOnly := make(map[string][]string)
	custodyOnly := make(map[string][]string)
	for _, key := range keyOrder {
		n, c := nbimByKey[key], custodyByKey[key]
		switch {
		case len(n) == 1 && len(c) == 0:
			isin := n[0].ISIN
			nbimOnly[isin] = append(nbimOnly[isin], key)
		case len(c) == 1 && len(n) == 0:
			isin := c[0].ISIN
			custodyOnly[isin] = append(custodyOnly[isin], key)
		}
	}
	mate := make(map[string]string)
	for isin, nKeys := range nbimOnly {
		cKeys := custodyOnly[isin]
		if len(nKeys) == 1 && len(cKeys) == 1 {
			mate[nKeys[0]] = cKeys[0]
			mate[cKeys[0]] = nKeys[0]
		}
	}
	return mate
}

// duplicateBreak flags a key with more than one record on a side. The match
// is ambiguous; no heuristic disambiguation is attempted.
func duplicateBreak(nbim, custody []ledger.Record) Break {
	ref := firstOf(nbim, custody)
	return Break{
		ISIN:      ref.ISIN,
		Custodian: ref.Custodian,
		Type:      BreakDuplicateKey,
		ExDate:    ref.ExDate,
		PayDate:   ref.PayDate,
		Note:      fmt.Sprintf("ambiguous key: %d NBIM and %d custody records", len(nbim), len(custody)),
	}
}

// unmatchedBreak flags a key present on only one side. No field comparison
// is attempted; there is nothing to compare against.
func unmatchedBreak(rec ledger.Record, t BreakType) Break {
	return Break{
		ISIN:      rec.ISIN,
		Custodian: rec.Custodian,
		Type:      t,
		ExDate:    rec.ExDate,
		PayDate:   rec.PayDate,
	}
}

func firstOf(nbim, custody []ledger.Record) ledger.Record {
	if len(nbim) > 0 {
		return nbim[0]
	}
	return custody[0]
}

// comparePair compares one NBIM/custody record pair field by field in fixed
// order: ex_date, pay_date, tax_rate, then amounts. The order doubles as
// break-type precedence: the first differing field determines the type.
// field_deltas still records every differing field.
func comparePair(n, c ledger.Record, tol Tolerances) (Break, bool) {
	b := Break{
		ISIN:        n.ISIN,
		Custodian:   n.Custodian,
		ExDate:      n.ExDate,
		PayDate:     n.PayDate,
		FieldDeltas: map[string]FieldDelta{},
	}
	setType := func(t BreakType) {
		if b.Type == "" {
			b.Type = t
		}
	}

	if n.ExDate != c.ExDate {
		b.FieldDeltas["ex_date"] = FieldDelta{NBIM: n.ExDate, Custody: c.ExDate}
		setType(BreakDateMismatch)
	}
	if n.PayDate != c.PayDate {
		b.FieldDeltas["pay_date"] = FieldDelta{NBIM: n.PayDate, Custody: c.PayDate}
		setType(BreakDateMismatch)
	}

	if delta := c.TaxRate.Sub(n.TaxRate); delta.Abs().GreaterThan(tol.TaxRate) {
		b.FieldDeltas["tax_rate"] = numericDelta(n.TaxRate, c.TaxRate, delta)
		setType(BreakTaxRateMismatch)
	}

	if n.Currency != c.Currency {
		// Different units: record the mismatch but never convert or compare
		// the amounts across currencies.
		b.FieldDeltas["currency"] = FieldDelta{NBIM: n.Currency, Custody: c.Currency}
		b.Note = "currency mismatch; amounts not compared"
		setType(BreakAmountMismatch)
	} else {
		for _, f := range []struct {
			name          string
			nbim, custody decimal.Decimal
		}{
			{"gross_amount", n.GrossAmount, c.GrossAmount},
			{"net_amount", n.NetAmount, c.NetAmount},
		} {
			delta := f.custody.Sub(f.nbim)
			if delta.Abs().GreaterThan(tol.amountTolerance(f.nbim, f.custody)) {
				b.FieldDeltas[f.name] = numericDelta(f.nbim, f.custody, delta)
				setType(BreakAmountMismatch)
			}
		}
	}

	if len(b.FieldDeltas) == 0 {
		return Break{}, false
	}
	return b, true
}

func numericDelta(nbim, custody, delta decimal.Decimal) FieldDelta {
	return FieldDelta{NBIM: nbim.String(), Custody: custody.String(), Delta: &delta}
}
