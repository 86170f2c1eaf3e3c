// Command reconcile is the one-shot batch entry point: it matches two ledger
// CSV exports, optionally re-validates a proposals file against the detected
// breaks, prints the run as JSON, and records the audit trail.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"

	"github.com/martegra/divrecon/internal/config"
	"github.com/martegra/divrecon/internal/engine"
	"github.com/martegra/divrecon/internal/ledger"
	"github.com/martegra/divrecon/internal/safeguard"
	"github.com/martegra/divrecon/internal/store"
)

type proposalsFile struct {
	Proposals []safeguard.Proposal  `json:"proposals"`
	Diagnoses []safeguard.Diagnosis `json:"diagnoses"`
}

type runReport struct {
	*engine.RunResult
	Safeguard *safeguard.Outcome `json:"safeguard,omitempty"`
}

func main() {
	cfgPath := flag.String("config", "configs/reconcile.yaml", "Path to reconciliation YAML config")
	nbimPath := flag.String("nbim", "", "Path to the NBIM dividend bookings CSV")
	custodyPath := flag.String("custody", "", "Path to the custody dividend bookings CSV")
	proposalsPath := flag.String("proposals", "", "Optional JSON file with resolution proposals and diagnoses")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *nbimPath == "" || *custodyPath == "" {
		slog.Error("both -nbim and -custody are required")
		os.Exit(2)
	}

	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	var st *store.Store
	if cfg.Store.Path != "" {
		st, err = store.Open(cfg.Store.Path)
		if err != nil {
			slog.Error("failed to open audit store", "err", err)
			os.Exit(1)
		}
		defer st.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := engine.New(ctx, cfg, st)
	if err != nil {
		slog.Error("failed to start engine", "err", err)
		os.Exit(1)
	}
	defer eng.Shutdown()

	nbim, nbimErrs := readLedger(ledger.SourceNBIM, *nbimPath)
	custody, custodyErrs := readLedger(ledger.SourceCustody, *custodyPath)

	run, err := eng.Reconcile(ctx, engine.Input{
		NBIM:       nbim,
		Custody:    custody,
		LoadErrors: append(nbimErrs, custodyErrs...),
	})
	if err != nil {
		slog.Error("reconciliation failed", "err", err)
		os.Exit(1)
	}
	slog.Info("reconciliation complete",
		"run_id", run.RunID,
		"breaks", len(run.Breaks),
		"clean_matches", run.CleanMatches,
		"load_errors", len(run.LoadErrors),
	)

	report := runReport{RunResult: run}
	if *proposalsPath != "" {
		pf := readProposals(*proposalsPath)
		out, err := eng.Safeguard(ctx, run.RunID, pf.Proposals, pf.Diagnoses)
		if err != nil {
			slog.Error("safeguard evaluation failed", "err", err)
			os.Exit(1)
		}
		slog.Info("safeguards applied",
			"auto_fixable", out.Summary.AutoFixable,
			"human_required", out.Summary.HumanRequired,
			"overrides", out.Summary.SafeguardOverrides,
			"rejected", len(out.Rejected),
		)
		report.Safeguard = out
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		slog.Error("failed to write report", "err", err)
		os.Exit(1)
	}
}

func readLedger(source ledger.Source, path string) ([]ledger.Record, []ledger.LoadError) {
	f, err := os.Open(path)
	if err != nil {
		slog.Error("failed to open ledger file", "source", source, "path", path, "err", err)
		os.Exit(1)
	}
	defer f.Close()

	records, loadErrs, err := ledger.ReadCSV(source, f)
	if err != nil {
		slog.Error("failed to read ledger file", "source", source, "path", path, "err", err)
		os.Exit(1)
	}
	for _, le := range loadErrs {
		slog.Warn("row quarantined", "source", le.Source, "row", le.Row, "reason", le.Reason)
	}
	return records, loadErrs
}

func readProposals(path string) proposalsFile {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("failed to read proposals file", "path", path, "err", err)
		os.Exit(1)
	}
	var pf proposalsFile
	if err := json.Unmarshal(data, &pf); err != nil {
		slog.Error("failed to parse proposals file", "path", path, "err", err)
		os.Exit(1)
	}
	return pf
}
