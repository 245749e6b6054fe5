package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Addr)
	}
	if cfg.CortexBaseURL != "https://api.openai.com/v1" {
		t.Errorf("base url = %q", cfg.CortexBaseURL)
	}
	if cfg.OptimizeLimit != 60 || cfg.SessionLimit != 120 {
		t.Errorf("limits = %d/%d, want 60/120", cfg.OptimizeLimit, cfg.SessionLimit)
	}
	if cfg.ContextMaxTokens != 4000 {
		t.Errorf("context max tokens = %d, want 4000", cfg.ContextMaxTokens)
	}
	if cfg.TokenEstimator != "heuristic" {
		t.Errorf("token estimator = %q, want heuristic", cfg.TokenEstimator)
	}
	if cfg.PublicModel != "gpt-4o-mini" || cfg.PublicMaxPrompt != 4000 {
		t.Errorf("public defaults = %q/%d", cfg.PublicModel, cfg.PublicMaxPrompt)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("shutdown timeout = %v, want 30s", cfg.ShutdownTimeout)
	}
	if cfg.UseBedrock {
		t.Error("bedrock should be off by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ADDR", ":9090")
	t.Setenv("RATE_LIMIT_OPTIMIZE", "5")
	t.Setenv("SHUTDOWN_TIMEOUT", "10")
	t.Setenv("USE_BEDROCK", "true")
	t.Setenv("TOKEN_ESTIMATOR", "tiktoken")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.OptimizeLimit != 5 {
		t.Errorf("optimize limit = %d, want 5", cfg.OptimizeLimit)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %v, want 10s", cfg.ShutdownTimeout)
	}
	if !cfg.UseBedrock {
		t.Error("bedrock should be enabled")
	}
	if cfg.TokenEstimator != "tiktoken" {
		t.Errorf("token estimator = %q", cfg.TokenEstimator)
	}
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_OPTIMIZE", "not-a-number")
	t.Setenv("CONTEXT_MAX_TOKENS", "-5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OptimizeLimit != 60 {
		t.Errorf("optimize limit = %d, want the default", cfg.OptimizeLimit)
	}
	if cfg.ContextMaxTokens != 4000 {
		t.Errorf("context max tokens = %d, want the default", cfg.ContextMaxTokens)
	}
}
