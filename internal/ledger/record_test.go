package ledger

import (
	"strings"
	"testing"
)

func validRow() Row {
	return Row{
		"isin":         "US0378331005",
		"custodian":    "CUST_A",
		"ex_date":      "2024-02-09",
		"pay_date":     "2024-02-15",
		"gross_amount": "1000.00",
		"net_amount":   "850.00",
		"tax_rate":     "0.15",
		"currency":     "usd",
		"quantity":     "500",
	}
}

func TestFromRow_Valid(t *testing.T) {
	rec, lerr := FromRow(SourceNBIM, 1, validRow())
	if lerr != nil {
		t.Fatalf("unexpected load error: %v", lerr)
	}
	if rec.EventKey != "US0378331005|2024-02-09" {
		t.Errorf("event key = %q", rec.EventKey)
	}
	if rec.Currency != "USD" {
		t.Errorf("currency not normalized: %q", rec.Currency)
	}
	if rec.GrossAmount.String() != "1000" {
		t.Errorf("gross = %s", rec.GrossAmount)
	}
}

func TestFromRow_Quarantine(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(Row)
		reason string
	}{
		{"missing isin", func(r Row) { r["isin"] = "" }, "missing isin"},
		{"missing both dates", func(r Row) { r["ex_date"] = ""; r["pay_date"] = "" }, "missing both"},
		{"bad date", func(r Row) { r["ex_date"] = "09/02/2024" }, "invalid ex_date"},
		{"bad amount", func(r Row) { r["gross_amount"] = "one thousand" }, "invalid gross_amount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := validRow()
			tc.mutate(row)
			_, lerr := FromRow(SourceCustody, 7, row)
			if lerr == nil {
				t.Fatal("expected load error")
			}
			if lerr.Row != 7 || lerr.Source != SourceCustody {
				t.Errorf("wrong position: %+v", lerr)
			}
			if !strings.Contains(lerr.Reason, tc.reason) {
				t.Errorf("reason %q does not mention %q", lerr.Reason, tc.reason)
			}
		})
	}
}

func TestFromRow_PayDateKeyFallback(t *testing.T) {
	row := validRow()
	row["ex_date"] = ""
	rec, lerr := FromRow(SourceNBIM, 1, row)
	if lerr != nil {
		t.Fatalf("unexpected load error: %v", lerr)
	}
	if rec.EventKey != "US0378331005|2024-02-15" {
		t.Errorf("event key = %q, want pay-date fallback", rec.EventKey)
	}
}

func TestFromRows_QuarantineIsolation(t *testing.T) {
	bad := validRow()
	bad["isin"] = ""
	records, errs := FromRows(SourceNBIM, []Row{validRow(), bad, validRow()})
	if len(records) != 2 {
		t.Errorf("records = %d, want 2", len(records))
	}
	if len(errs) != 1 || errs[0].Row != 2 {
		t.Errorf("errs = %+v, want one error at row 2", errs)
	}
}

func TestReadCSV(t *testing.T) {
	csv := strings.Join([]string{
		"ISIN,Custodian,Ex Date,Pay Date,Gross Amount,Net Amount,Tax Rate,Currency,Quantity",
		"US0378331005,CUST_A,2024-02-09,2024-02-15,1000.00,850.00,0.15,USD,500",
		",CUST_A,2024-02-09,2024-02-15,1000.00,850.00,0.15,USD,500",
		"CH0038863350,CUST_B,2024-03-01,2024-03-08,2500.00,2125.00,0.35,CHF,100",
	}, "\n")

	records, loadErrs, err := ReadCSV(SourceCustody, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if len(loadErrs) != 1 || loadErrs[0].Row != 2 {
		t.Errorf("loadErrs = %+v, want one quarantined row at 2", loadErrs)
	}
	if records[0].ISIN != "US0378331005" || records[1].Currency != "CHF" {
		t.Errorf("unexpected records: %+v", records)
	}
	if records[0].EventKey != "US0378331005|2024-02-09" {
		t.Errorf("header normalization broke keying: %q", records[0].EventKey)
	}
}

func TestReadCSV_MissingHeader(t *testing.T) {
	_, _, err := ReadCSV(SourceNBIM, strings.NewReader(""))
	if err == nil {
		t.Fatal("expected header error")
	}
}
