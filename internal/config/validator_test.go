package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{Version: "v1"}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Matcher.TaxRateTolerance != 1e-4 {
		t.Errorf("tax tolerance default = %v", cfg.Matcher.TaxRateTolerance)
	}
	if len(cfg.Safeguards.Rules) != 4 {
		t.Errorf("default rule order = %v", cfg.Safeguards.Rules)
	}
}

func TestValidate_MissingVersion(t *testing.T) {
	cfg := validConfig()
	cfg.Version = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidate_NegativeTolerance(t *testing.T) {
	cfg := validConfig()
	cfg.Matcher.AmountToleranceAbs = -0.01
	err := Validate(cfg)
	if err == nil {
		t.Fatal("negative tolerance must be fatal")
	}
	if !strings.Contains(err.Error(), "amount_abs") {
		t.Errorf("error does not name the field: %v", err)
	}
}

func TestValidate_UnknownRule(t *testing.T) {
	cfg := validConfig()
	cfg.Safeguards.Rules = []string{"unmatched_break", "coin_flip"}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("unknown rule must be fatal")
	}
	if !strings.Contains(err.Error(), "coin_flip") {
		t.Errorf("error does not name the rule: %v", err)
	}
}

func TestValidate_DuplicateRule(t *testing.T) {
	cfg := validConfig()
	cfg.Safeguards.Rules = []string{"magnitude", "magnitude"}
	if err := Validate(cfg); err == nil {
		t.Fatal("duplicate rule must be fatal")
	}
}

func TestValidate_ConfidenceFloorRange(t *testing.T) {
	cfg := validConfig()
	cfg.Safeguards.ConfidenceFloor = 1.5
	if err := Validate(cfg); err == nil {
		t.Fatal("floor above 1 must be fatal")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Version = ""
	cfg.Matcher.TaxRateTolerance = -1
	cfg.Engine.SafeguardWorkers = -3
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, frag := range []string{"version", "tax_rate", "safeguard_workers"} {
		if !strings.Contains(err.Error(), frag) {
			t.Errorf("aggregated error missing %q: %v", frag, err)
		}
	}
}
