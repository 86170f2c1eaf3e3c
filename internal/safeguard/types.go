package safeguard

import "fmt"

// Proposal is an externally produced candidate action for one break.
// It arrives from an upstream recommender (human, scripted, or model) and is
// treated as untrusted input: the engine re-validates it and never mutates it.
type Proposal struct {
	BreakID     int     `json:"break_id"`
	AutoFixable bool    `json:"auto_fixable"`
	Action      string  `json:"action"`
	Confidence  float64 `json:"confidence"`
	Rationale   string  `json:"rationale"`
}

// Diagnosis is the out-of-scope enrichment explaining why a break occurred.
// The engine never parses it for business meaning; rules only look at whether
// external evidence corroborates it.
type Diagnosis struct {
	BreakID      int      `json:"break_id"`
	LikelySource string   `json:"likely_source"` // internal | external | uncertain
	Summary      string   `json:"summary"`
	Sources      []string `json:"sources"`
}

// Verified reports whether the diagnosis carries corroborating external
// market evidence: a definite likely_source and at least one source URL.
func (d *Diagnosis) Verified() bool {
	return d != nil && d.LikelySource != "" && d.LikelySource != "uncertain" && len(d.Sources) > 0
}

// Decision is the engine's per-proposal output and forms the audit trail.
// The original proposal is preserved separately for comparison; a decision is
// never edited after it is produced.
type Decision struct {
	BreakID     int    `json:"break_id"`
	AutoFixable bool   `json:"auto_fixable"`
	Overridden  bool   `json:"overridden"`
	// OverrideReason names the rule that triggered, or is empty when the
	// upstream value passed through.
	OverrideReason string `json:"override_reason,omitempty"`
}

// Summary holds the aggregate counters for one evaluation. Always derived
// from the decision list, never accumulated alongside it.
type Summary struct {
	AutoFixable        int `json:"auto_fixable"`
	HumanRequired      int `json:"human_required"`
	SafeguardOverrides int `json:"safeguard_overrides"`
}

// Summarize recomputes the aggregates from a decision list.
func Summarize(decisions []Decision) Summary {
	var s Summary
	for _, d := range decisions {
		if d.AutoFixable {
			s.AutoFixable++
		} else {
			s.HumanRequired++
		}
		if d.Overridden {
			s.SafeguardOverrides++
		}
	}
	return s
}

// UnknownBreakReference reports a proposal naming a break_id the matcher
// never produced in this run. It is a contract violation: the proposal is
// rejected individually, not silently dropped, and the run continues.
type UnknownBreakReference struct {
	ProposalIndex int
	BreakID       int
}

func (e *UnknownBreakReference) Error() string {
	return fmt.Sprintf("proposal %d references unknown break_id %d", e.ProposalIndex, e.BreakID)
}

// RejectedProposal is the per-item report for a contract-violating proposal.
type RejectedProposal struct {
	ProposalIndex int    `json:"proposal_index"`
	BreakID       int    `json:"break_id"`
	Reason        string `json:"reason"`
}
