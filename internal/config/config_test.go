package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Role != RoleGreen || cfg.Port != 9010 || cfg.MaxRetries != 20 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ReadyTimeout != 10*time.Second || cfg.AgentTimeout != 0 {
		t.Fatalf("unexpected timeouts: ready=%v agent=%v", cfg.ReadyTimeout, cfg.AgentTimeout)
	}
	if cfg.AgentURL != "http://127.0.0.1:9010" {
		t.Fatalf("agent url = %q", cfg.AgentURL)
	}
	if cfg.Evaluator != EvaluatorStockfish || cfg.EvalDepth != 12 {
		t.Fatalf("unexpected evaluator defaults: %s depth=%d", cfg.Evaluator, cfg.EvalDepth)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHESSBENCH_ROLE", " White ")
	t.Setenv("AGENT_PORT", "9019")
	t.Setenv("AGENT_URL", "http://peer.local:9019/")
	t.Setenv("MATCH_MAX_RETRIES", "0")
	t.Setenv("READY_TIMEOUT", "30s")
	t.Setenv("EVALUATOR", "chessapi")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Role != RoleWhite || cfg.Port != 9019 {
		t.Fatalf("role/port not applied: %+v", cfg)
	}
	if cfg.AgentURL != "http://peer.local:9019" {
		t.Fatalf("agent url should be trimmed: %q", cfg.AgentURL)
	}
	if cfg.MaxRetries != 0 || cfg.ReadyTimeout != 30*time.Second {
		t.Fatalf("retries/timeout not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"role":             {"CHESSBENCH_ROLE": "referee"},
		"negative retries": {"MATCH_MAX_RETRIES": "-1"},
		"redis missing":    {"ARTIFACT_BACKEND": "redis"},
		"postgres missing": {"RATING_BACKEND": "postgres"},
		"evaluator":        {"EVALUATOR": "oracle"},
		"bad duration":     {"READY_TIMEOUT": "soon"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
