package config

import (
	"github.com/shopspring/decimal"

	"github.com/martegra/divrecon/internal/match"
	"github.com/martegra/divrecon/internal/safeguard"
)

// Config is the top-level YAML structure.
type Config struct {
	Version    string        `yaml:"version"`
	Engine     EngineConf    `yaml:"engine"`
	Matcher    MatcherConf   `yaml:"matcher"`
	Safeguards SafeguardConf `yaml:"safeguards"`
	Store      StoreConf     `yaml:"store"`
	Server     ServerConf    `yaml:"server"`
}

// EngineConf holds tunable concurrency settings.
type EngineConf struct {
	SafeguardWorkers int `yaml:"safeguard_workers"`
	QueueDepth       int `yaml:"queue_depth"`
}

// MatcherConf holds the comparison thresholds.
type MatcherConf struct {
	TaxRateTolerance   float64 `yaml:"tax_rate_tolerance"`
	AmountToleranceAbs float64 `yaml:"amount_tolerance_abs"`
	AmountToleranceRel float64 `yaml:"amount_tolerance_rel"`
}

// Tolerances converts the raw YAML numbers into matcher thresholds.
func (m MatcherConf) Tolerances() match.Tolerances {
	return match.Tolerances{
		TaxRate:   decimal.NewFromFloat(m.TaxRateTolerance),
		AmountAbs: decimal.NewFromFloat(m.AmountToleranceAbs),
		AmountRel: decimal.NewFromFloat(m.AmountToleranceRel),
	}
}

// SafeguardConf holds rule thresholds and the rule evaluation order.
// Omitting a rule from Rules disables it; the listed order is the priority.
type SafeguardConf struct {
	ConfidenceFloor float64  `yaml:"confidence_floor"`
	MagnitudeAbs    float64  `yaml:"magnitude_abs"`
	MagnitudeRel    float64  `yaml:"magnitude_rel"`
	Rules           []string `yaml:"rules"`
}

// Thresholds converts the raw YAML numbers into rule thresholds.
func (s SafeguardConf) Thresholds() safeguard.Thresholds {
	return safeguard.Thresholds{
		ConfidenceFloor: s.ConfidenceFloor,
		MagnitudeAbs:    decimal.NewFromFloat(s.MagnitudeAbs),
		MagnitudeRel:    decimal.NewFromFloat(s.MagnitudeRel),
	}
}

// BuildRules resolves the configured rule order into rule instances.
func (s SafeguardConf) BuildRules() ([]safeguard.Rule, error) {
	return safeguard.Build(s.Rules, s.Thresholds())
}

// StoreConf points at the sqlite audit-trail file. An empty path disables
// persistence.
type StoreConf struct {
	Path string `yaml:"path"`
}

// ServerConf holds the HTTP listener settings.
type ServerConf struct {
	Addr string `yaml:"addr"`
}
