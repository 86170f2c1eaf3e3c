// Package engine orchestrates one reconciliation run: the matcher pass over
// both ledgers, then safeguard evaluation of the externally supplied
// proposals. The core transformations live in match and safeguard; this
// package adds run identity, concurrency, metrics, and audit persistence.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/martegra/divrecon/internal/config"
	"github.com/martegra/divrecon/internal/ledger"
	"github.com/martegra/divrecon/internal/match"
	"github.com/martegra/divrecon/internal/metrics"
	"github.com/martegra/divrecon/internal/safeguard"
	"github.com/martegra/divrecon/internal/store"
)

// ErrUnknownRun is returned when proposals reference a run this engine never
// produced.
var ErrUnknownRun = fmt.Errorf("unknown run")

// runtimeConf is the compiled form of the YAML config: tolerances plus the
// ordered safeguard rule set. A run snapshots one pointer, so a hot reload
// mid-run cannot mix rule sets.
type runtimeConf struct {
	tolerances match.Tolerances
	guard      *safeguard.Engine
}

// Engine holds compiled config, the per-proposal worker pool, and the run
// registry linking safeguard requests back to their breaks.
type Engine struct {
	conf atomic.Pointer[runtimeConf]
	st   *store.Store // nil disables persistence

	pool *workerPool[*decideWork]

	mu   sync.RWMutex
	runs map[string][]match.Break
}

type decideWork struct {
	guard    *safeguard.Engine
	brk      match.Break
	diag     *safeguard.Diagnosis
	proposal safeguard.Proposal
	idx      int
	out      []safeguard.Decision
	wg       *sync.WaitGroup
}

// New compiles cfg and starts the safeguard worker pool.
func New(ctx context.Context, cfg *config.Config, st *store.Store) (*Engine, error) {
	e := &Engine{st: st, runs: make(map[string][]match.Break)}
	if err := e.SwapConfig(cfg); err != nil {
		return nil, err
	}
	e.pool = newWorkerPool(ctx, cfg.Engine.SafeguardWorkers, cfg.Engine.QueueDepth,
		func(_ context.Context, w *decideWork) {
			w.out[w.idx] = w.guard.Decide(w.brk, w.diag, w.proposal)
			w.wg.Done()
		})
	return e, nil
}

// SwapConfig atomically replaces the compiled tolerances and rule set
// (used on hot-reload). Worker counts are fixed at startup.
func (e *Engine) SwapConfig(cfg *config.Config) error {
	tol := cfg.Matcher.Tolerances()
	if err := tol.Validate(); err != nil {
		return err
	}
	rules, err := cfg.Safeguards.BuildRules()
	if err != nil {
		return err
	}
	e.conf.Store(&runtimeConf{tolerances: tol, guard: safeguard.New(rules)})
	return nil
}

// Input is one run's already-materialized ledger data. LoadErrors carries
// rows quarantined at the ingestion boundary so the run report includes them.
type Input struct {
	NBIM       []ledger.Record
	Custody    []ledger.Record
	LoadErrors []ledger.LoadError
}

// RunResult is the matcher stage output for one run.
type RunResult struct {
	RunID        string             `json:"run_id"`
	CreatedAt    time.Time          `json:"created_at"`
	Breaks       []match.Break      `json:"breaks"`
	CleanMatches int                `json:"clean_matches"`
	LoadErrors   []ledger.LoadError `json:"load_errors,omitempty"`
}

// Reconcile runs the matcher over both ledgers, registers the run, and
// persists the audit row.
func (e *Engine) Reconcile(ctx context.Context, in Input) (*RunResult, error) {
	start := time.Now()
	rc := e.conf.Load()

	res, err := match.Match(in.NBIM, in.Custody, rc.tolerances)
	if err != nil {
		return nil, err
	}

	out := &RunResult{
		RunID:        uuid.New().String(),
		CreatedAt:    time.Now().UTC(),
		Breaks:       res.Breaks,
		CleanMatches: res.CleanMatches,
		LoadErrors:   append(in.LoadErrors, res.LoadErrors...),
	}

	e.mu.Lock()
	e.runs[out.RunID] = out.Breaks
	e.mu.Unlock()

	if e.st != nil {
		if err := e.st.InsertRun(ctx, out.RunID, out.CreatedAt, out.CleanMatches, len(out.LoadErrors), out.Breaks); err != nil {
			return nil, fmt.Errorf("persist run: %w", err)
		}
	}

	metrics.RecordsLoaded.WithLabelValues(string(ledger.SourceNBIM)).Add(float64(len(in.NBIM)))
	metrics.RecordsLoaded.WithLabelValues(string(ledger.SourceCustody)).Add(float64(len(in.Custody)))
	for _, le := range out.LoadErrors {
		metrics.LoadErrors.WithLabelValues(string(le.Source)).Inc()
	}
	for _, b := range out.Breaks {
		metrics.BreaksDetected.WithLabelValues(string(b.Type)).Inc()
	}
	metrics.CleanMatches.Add(float64(out.CleanMatches))
	metrics.RunDuration.Observe(float64(time.Since(start).Milliseconds()))

	return out, nil
}

// Safeguard evaluates proposals against a previously produced run.
// Per-proposal evaluations are independent, so they fan out over the worker
// pool; each decision is written back to its input index, so the returned
// order is the input order regardless of scheduling.
func (e *Engine) Safeguard(ctx context.Context, runID string, proposals []safeguard.Proposal, diagnoses []safeguard.Diagnosis) (*safeguard.Outcome, error) {
	breaks, err := e.runBreaks(ctx, runID)
	if err != nil {
		return nil, err
	}
	rc := e.conf.Load()

	breakByID := make(map[int]match.Break, len(breaks))
	for _, b := range breaks {
		breakByID[b.BreakID] = b
	}
	diagByID := make(map[int]*safeguard.Diagnosis, len(diagnoses))
	for i := range diagnoses {
		diagByID[diagnoses[i].BreakID] = &diagnoses[i]
	}

	out := &safeguard.Outcome{}
	type accepted struct {
		proposal safeguard.Proposal
		brk      match.Break
		slot     int
	}
	var work []accepted
	for i, p := range proposals {
		brk, ok := breakByID[p.BreakID]
		if !ok {
			refErr := &safeguard.UnknownBreakReference{ProposalIndex: i, BreakID: p.BreakID}
			out.Rejected = append(out.Rejected, safeguard.RejectedProposal{
				ProposalIndex: i,
				BreakID:       p.BreakID,
				Reason:        refErr.Error(),
			})
			continue
		}
		work = append(work, accepted{proposal: p, brk: brk, slot: len(work)})
	}

	out.Decisions = make([]safeguard.Decision, len(work))
	var wg sync.WaitGroup
	wg.Add(len(work))
	for _, a := range work {
		w := &decideWork{
			guard:    rc.guard,
			brk:      a.brk,
			diag:     diagByID[a.proposal.BreakID],
			proposal: a.proposal,
			idx:      a.slot,
			out:      out.Decisions,
			wg:       &wg,
		}
		if !e.pool.Submit(w) {
			// Queue full or pool drained: evaluate inline. The decision is
			// identical either way; rules are pure.
			w.out[w.idx] = w.guard.Decide(w.brk, w.diag, w.proposal)
			wg.Done()
		}
	}
	wg.Wait()
	out.Summary = safeguard.Summarize(out.Decisions)

	if e.st != nil {
		if err := e.st.InsertDecisions(ctx, runID, out.Decisions, out.Summary); err != nil {
			return nil, fmt.Errorf("persist decisions: %w", err)
		}
	}

	metrics.ProposalsEvaluated.Add(float64(len(proposals)))
	metrics.ProposalsRejected.Add(float64(len(out.Rejected)))
	for _, d := range out.Decisions {
		if d.Overridden {
			metrics.SafeguardOverrides.WithLabelValues(d.OverrideReason).Inc()
		}
	}

	return out, nil
}

// runBreaks resolves the breaks behind a run id, falling back to the audit
// store for runs produced before a restart.
func (e *Engine) runBreaks(ctx context.Context, runID string) ([]match.Break, error) {
	e.mu.RLock()
	breaks, ok := e.runs[runID]
	e.mu.RUnlock()
	if ok {
		return breaks, nil
	}
	if e.st != nil {
		stored, err := e.st.GetRun(ctx, runID)
		if err == nil {
			return stored.Breaks, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
}

// Shutdown drains the worker pool.
func (e *Engine) Shutdown() {
	e.pool.Drain()
}
