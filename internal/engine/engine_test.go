package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/martegra/divrecon/internal/config"
	"github.com/martegra/divrecon/internal/ledger"
	"github.com/martegra/divrecon/internal/safeguard"
)

func testConfig() *config.Config {
	cfg := &config.Config{Version: "v1"}
	config.ApplyDefaults(cfg)
	cfg.Engine.SafeguardWorkers = 4
	cfg.Engine.QueueDepth = 16 // small queue to exercise the inline fallback
	return cfg
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	eng, err := New(ctx, testConfig(), nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() {
		eng.Shutdown()
		cancel()
	})
	return eng
}

func rec(t *testing.T, source ledger.Source, isin, gross string) ledger.Record {
	t.Helper()
	r, lerr := ledger.FromRow(source, 1, ledger.Row{
		"isin":         isin,
		"custodian":    "CUST_A",
		"ex_date":      "2024-02-09",
		"pay_date":     "2024-02-15",
		"gross_amount": gross,
		"net_amount":   gross,
		"tax_rate":     "0.15",
		"currency":     "USD",
		"quantity":     "100",
	})
	if lerr != nil {
		t.Fatalf("bad test record: %v", lerr)
	}
	return r
}

func TestReconcile(t *testing.T) {
	eng := testEngine(t)

	preErr := ledger.LoadError{Source: ledger.SourceNBIM, Row: 3, Reason: "missing isin"}
	run, err := eng.Reconcile(context.Background(), Input{
		NBIM: []ledger.Record{
			rec(t, ledger.SourceNBIM, "US0378331005", "1000.00"),
			rec(t, ledger.SourceNBIM, "CH0038863350", "2500.00"),
		},
		Custody: []ledger.Record{
			rec(t, ledger.SourceCustody, "US0378331005", "1000.00"),
			rec(t, ledger.SourceCustody, "CH0038863350", "2400.00"),
		},
		LoadErrors: []ledger.LoadError{preErr},
	})
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if run.RunID == "" {
		t.Error("run id must be assigned")
	}
	if run.CleanMatches != 1 || len(run.Breaks) != 1 {
		t.Errorf("clean = %d breaks = %+v", run.CleanMatches, run.Breaks)
	}
	if len(run.LoadErrors) != 1 || run.LoadErrors[0] != preErr {
		t.Errorf("ingestion load errors not carried: %+v", run.LoadErrors)
	}
}

func TestSafeguard_PreservesInputOrder(t *testing.T) {
	eng := testEngine(t)

	// One break per ISIN, alternating severity so neighbouring proposals get
	// different decisions and an ordering slip would be visible.
	var nbim, custody []ledger.Record
	for i := 0; i < 50; i++ {
		isin := fmt.Sprintf("US%010d", i)
		nbim = append(nbim, rec(t, ledger.SourceNBIM, isin, "1000.00"))
		gross := "1000.50" // small break, passes through
		if i%2 == 1 {
			gross = "1200.00" // 20% delta, magnitude override
		}
		custody = append(custody, rec(t, ledger.SourceCustody, isin, gross))
	}
	run, err := eng.Reconcile(context.Background(), Input{NBIM: nbim, Custody: custody})
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if len(run.Breaks) != 50 {
		t.Fatalf("breaks = %d, want 50", len(run.Breaks))
	}

	var proposals []safeguard.Proposal
	var diagnoses []safeguard.Diagnosis
	for _, b := range run.Breaks {
		proposals = append(proposals, safeguard.Proposal{BreakID: b.BreakID, AutoFixable: true, Confidence: 0.95})
		diagnoses = append(diagnoses, safeguard.Diagnosis{
			BreakID:      b.BreakID,
			LikelySource: "external",
			Sources:      []string{"https://example.com"},
		})
	}

	out, err := eng.Safeguard(context.Background(), run.RunID, proposals, diagnoses)
	if err != nil {
		t.Fatalf("Safeguard error: %v", err)
	}
	if len(out.Decisions) != len(proposals) {
		t.Fatalf("decisions = %d, want %d", len(out.Decisions), len(proposals))
	}
	for i, d := range out.Decisions {
		if d.BreakID != proposals[i].BreakID {
			t.Fatalf("decision %d is for break %d, want %d", i, d.BreakID, proposals[i].BreakID)
		}
		wantAuto := i%2 == 0
		if d.AutoFixable != wantAuto {
			t.Errorf("decision %d auto_fixable = %v, want %v", i, d.AutoFixable, wantAuto)
		}
	}
	if out.Summary.AutoFixable+out.Summary.HumanRequired != len(out.Decisions) {
		t.Errorf("summary inconsistent: %+v", out.Summary)
	}
	if out.Summary.SafeguardOverrides != 25 {
		t.Errorf("overrides = %d, want 25", out.Summary.SafeguardOverrides)
	}
}

func TestSafeguard_UnknownRun(t *testing.T) {
	eng := testEngine(t)
	_, err := eng.Safeguard(context.Background(), "no-such-run", []safeguard.Proposal{{BreakID: 1}}, nil)
	if !errors.Is(err, ErrUnknownRun) {
		t.Fatalf("err = %v, want ErrUnknownRun", err)
	}
}

func TestSafeguard_RejectsUnknownBreakReference(t *testing.T) {
	eng := testEngine(t)
	run, err := eng.Reconcile(context.Background(), Input{
		NBIM:    []ledger.Record{rec(t, ledger.SourceNBIM, "US0378331005", "1000.00")},
		Custody: []ledger.Record{rec(t, ledger.SourceCustody, "US0378331005", "990.00")},
	})
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	out, err := eng.Safeguard(context.Background(), run.RunID, []safeguard.Proposal{
		{BreakID: run.Breaks[0].BreakID, AutoFixable: false, Confidence: 0.5},
		{BreakID: 424242, AutoFixable: true, Confidence: 0.9},
	}, nil)
	if err != nil {
		t.Fatalf("Safeguard error: %v", err)
	}
	if len(out.Decisions) != 1 || len(out.Rejected) != 1 {
		t.Fatalf("decisions = %d rejected = %d", len(out.Decisions), len(out.Rejected))
	}
	if out.Rejected[0].BreakID != 424242 || out.Rejected[0].ProposalIndex != 1 {
		t.Errorf("rejected = %+v", out.Rejected[0])
	}
}

func TestSwapConfig_InvalidTolerance(t *testing.T) {
	eng := testEngine(t)
	bad := testConfig()
	bad.Matcher.TaxRateTolerance = -1
	if err := eng.SwapConfig(bad); err == nil {
		t.Fatal("expected tolerance error")
	}

	// The previous config keeps working.
	if _, err := eng.Reconcile(context.Background(), Input{
		NBIM: []ledger.Record{rec(t, ledger.SourceNBIM, "US0378331005", "1000.00")},
	}); err != nil {
		t.Fatalf("engine unusable after rejected swap: %v", err)
	}
}
