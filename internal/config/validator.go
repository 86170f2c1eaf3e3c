package config

import (
	"fmt"
	"strings"

	"github.com/martegra/divrecon/internal/safeguard"
)

// DefaultRuleOrder is the canonical safeguard priority order.
func DefaultRuleOrder() []string {
	return []string{
		safeguard.KeyUnmatchedBreak,
		safeguard.KeyMagnitude,
		safeguard.KeyLowConfidence,
		safeguard.KeyUnverifiedSource,
	}
}

// Validate checks the config for:
//   - Required fields
//   - Tolerance thresholds that would silently change break classification
//   - Safeguard thresholds and unknown rule names
//
// All problems are collected and reported together; any of them is fatal at
// startup.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Version == "" {
		errs = append(errs, "version is required")
	}

	if err := cfg.Matcher.Tolerances().Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("matcher: %s", err))
	}

	if f := cfg.Safeguards.ConfidenceFloor; f < 0 || f > 1 {
		errs = append(errs, fmt.Sprintf("safeguards: confidence_floor %v outside [0,1]", f))
	}
	if cfg.Safeguards.MagnitudeAbs <= 0 {
		errs = append(errs, fmt.Sprintf("safeguards: magnitude_abs %v must be > 0", cfg.Safeguards.MagnitudeAbs))
	}
	if cfg.Safeguards.MagnitudeRel <= 0 {
		errs = append(errs, fmt.Sprintf("safeguards: magnitude_rel %v must be > 0", cfg.Safeguards.MagnitudeRel))
	}
	if _, err := cfg.Safeguards.BuildRules(); err != nil {
		errs = append(errs, fmt.Sprintf("safeguards: %s", err))
	}
	seen := make(map[string]struct{}, len(cfg.Safeguards.Rules))
	for _, key := range cfg.Safeguards.Rules {
		if _, dup := seen[key]; dup {
			errs = append(errs, fmt.Sprintf("safeguards: rule %q listed twice", key))
		}
		seen[key] = struct{}{}
	}

	if cfg.Engine.SafeguardWorkers < 1 {
		errs = append(errs, fmt.Sprintf("engine: safeguard_workers %d must be >= 1", cfg.Engine.SafeguardWorkers))
	}
	if cfg.Engine.QueueDepth < 1 {
		errs = append(errs, fmt.Sprintf("engine: queue_depth %d must be >= 1", cfg.Engine.QueueDepth))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
