package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies which ledger a record came from.
type Source string

const (
	SourceNBIM    Source = "NBIM"
	SourceCustody Source = "CUSTODY"
)

// Record is one dividend-booking line from either source ledger.
// It is immutable once loaded; the matcher only reads it.
type Record struct {
	Source      Source          `json:"source"`
	ISIN        string          `json:"isin"`
	Custodian   string          `json:"custodian"`
	EventKey    string          `json:"event_key"`
	ExDate      string          `json:"ex_date"`
	PayDate     string          `json:"pay_date"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Currency    string          `json:"currency"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// LoadError reports a raw row that could not be turned into a keyable Record.
// Such rows are quarantined at the ingestion boundary and never reach the
// matcher; they are not breaks.
type LoadError struct {
	Source Source `json:"source"`
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s row %d: %s", e.Source, e.Row, e.Reason)
}

// Row is one loosely structured ledger line as delivered by a collaborator
// (CSV export, API payload). Keys are normalized field names.
type Row map[string]string

const dateLayout = "2006-01-02"

// FromRow parses a raw row into a strongly typed Record.
// A row missing isin, or missing both date fields, cannot be keyed and is
// returned as a LoadError. Malformed numbers and dates are LoadErrors too.
func FromRow(source Source, rowIdx int, row Row) (Record, *LoadError) {
	fail := func(format string, args ...interface{}) (Record, *LoadError) {
		return Record{}, &LoadError{Source: source, Row: rowIdx, Reason: fmt.Sprintf(format, args...)}
	}

	isin := strings.TrimSpace(row["isin"])
	if isin == "" {
		return fail("missing isin")
	}
	exDate := strings.TrimSpace(row["ex_date"])
	payDate := strings.TrimSpace(row["pay_date"])
	if exDate == "" && payDate == "" {
		return fail("missing both ex_date and pay_date")
	}
	for _, d := range []struct{ name, val string }{{"ex_date", exDate}, {"pay_date", payDate}} {
		if d.val == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, d.val); err != nil {
			return fail("invalid %s %q", d.name, d.val)
		}
	}

	rec := Record{
		Source:    source,
		ISIN:      isin,
		Custodian: strings.TrimSpace(row["custodian"]),
		ExDate:    exDate,
		PayDate:   payDate,
		Currency:  strings.ToUpper(strings.TrimSpace(row["currency"])),
	}

	for _, f := range []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"gross_amount", &rec.GrossAmount},
		{"net_amount", &rec.NetAmount},
		{"tax_rate", &rec.TaxRate},
		{"quantity", &rec.Quantity},
	} {
		raw := strings.TrimSpace(row[f.name])
		if raw == "" {
			continue // zero value; amounts may legitimately be absent on one side
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
		if err != nil {
			return fail("invalid %s %q", f.name, raw)
		}
		*f.dst = d
	}

	rec.EventKey = DeriveEventKey(rec.ISIN, rec.ExDate, rec.PayDate)
	return rec, nil
}

// FromRows converts a whole raw sequence, quarantining bad rows.
// Row indexes in LoadErrors are 1-based positions in the input sequence.
func FromRows(source Source, rows []Row) ([]Record, []LoadError) {
	records := make([]Record, 0, len(rows))
	var errs []LoadError
	for i, row := range rows {
		rec, lerr := FromRow(source, i+1, row)
		if lerr != nil {
			errs = append(errs, *lerr)
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

// DeriveEventKey builds the composite matching key (ISIN + ex-date).
// When ex_date is absent the pay date stands in, so a record with a single
// missing date still pairs with its counterpart instead of being quarantined.
func DeriveEventKey(isin, exDate, payDate string) string {
	date := exDate
	if date == "" {
		date = payDate
	}
	return isin + "|" + date
}

// Validate reports why a directly constructed Record cannot be keyed,
// mirroring the FromRow quarantine checks. Returns "" for a keyable record.
func (r Record) Validate() string {
	if strings.TrimSpace(r.ISIN) == "" {
		return "missing isin"
	}
	if r.ExDate == "" && r.PayDate == "" {
		return "missing both ex_date and pay_date"
	}
	return ""
}
