package safeguard

import "github.com/martegra/divrecon/internal/match"

// Engine re-validates externally proposed fixes against the ordered rule
// list. It is a pure transformation: evaluating the same inputs twice yields
// identical decisions, and proposals are never mutated.
type Engine struct {
	rules []Rule
}

// New creates an engine with the given rule order.
func New(rules []Rule) *Engine {
	return &Engine{rules: rules}
}

// Decide evaluates one proposal. Rules run in priority order and the first
// triggered rule wins (first-match semantics, not voting); when none trigger,
// the upstream auto_fixable value passes through unchanged.
func (e *Engine) Decide(brk match.Break, diag *Diagnosis, p Proposal) Decision {
	in := Input{Break: brk, Diagnosis: diag, Proposal: p}
	for _, r := range e.rules {
		if r.Triggered(in) {
			return Decision{
				BreakID:        p.BreakID,
				AutoFixable:    false,
				Overridden:     p.AutoFixable, // true only when the value actually flipped
				OverrideReason: r.Name(),
			}
		}
	}
	return Decision{BreakID: p.BreakID, AutoFixable: p.AutoFixable}
}

// Outcome is the result of evaluating a full proposal list.
type Outcome struct {
	Decisions []Decision         `json:"decisions"`
	Rejected  []RejectedProposal `json:"rejected,omitempty"`
	Summary   Summary            `json:"summary"`
}

// Evaluate produces one decision per accepted proposal, preserving input
// order. A proposal referencing a break_id the matcher never produced is a
// contract violation: it is rejected individually and the rest of the list
// is still processed.
func (e *Engine) Evaluate(breaks []match.Break, diagnoses []Diagnosis, proposals []Proposal) Outcome {
	breakByID := make(map[int]match.Break, len(breaks))
	for _, b := range breaks {
		breakByID[b.BreakID] = b
	}
	diagByID := make(map[int]*Diagnosis, len(diagnoses))
	for i := range diagnoses {
		diagByID[diagnoses[i].BreakID] = &diagnoses[i]
	}

	out := Outcome{Decisions: make([]Decision, 0, len(proposals))}
	for i, p := range proposals {
		brk, ok := breakByID[p.BreakID]
		if !ok {
			err := &UnknownBreakReference{ProposalIndex: i, BreakID: p.BreakID}
			out.Rejected = append(out.Rejected, RejectedProposal{
				ProposalIndex: i,
				BreakID:       p.BreakID,
				Reason:        err.Error(),
			})
			continue
		}
		out.Decisions = append(out.Decisions, e.Decide(brk, diagByID[p.BreakID], p))
	}
	out.Summary = Summarize(out.Decisions)
	return out
}
