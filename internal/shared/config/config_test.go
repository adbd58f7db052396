package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.InferenceProvider != "ollama" {
		t.Fatalf("InferenceProvider = %q, want ollama", cfg.InferenceProvider)
	}
	if cfg.TaskTimeout != 1800*time.Second {
		t.Fatalf("TaskTimeout = %v, want 30m", cfg.TaskTimeout)
	}
	if cfg.MaxRetries != 3 {
		t.Fatalf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.WorkerConcurrency != 1 {
		t.Fatalf("WorkerConcurrency = %d, want 1", cfg.WorkerConcurrency)
	}
	if cfg.ReconcileInterval != 60*time.Second {
		t.Fatalf("ReconcileInterval = %v, want 60s", cfg.ReconcileInterval)
	}
	if cfg.PendingGrace != 300*time.Second {
		t.Fatalf("PendingGrace = %v, want 5m", cfg.PendingGrace)
	}
	if cfg.ReportFormat != "pdf" {
		t.Fatalf("ReportFormat = %q, want pdf", cfg.ReportFormat)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DD_TASK_TIMEOUT_SECONDS", "600")
	t.Setenv("DD_MAX_RETRIES", "5")
	t.Setenv("INFERENCE_PROVIDER", "OpenAI")
	t.Setenv("DD_REPORT_FORMAT", "DOCX")

	cfg := Load()
	if cfg.TaskTimeout != 600*time.Second {
		t.Fatalf("TaskTimeout = %v, want 10m", cfg.TaskTimeout)
	}
	if cfg.MaxRetries != 5 {
		t.Fatalf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.InferenceProvider != "openai" {
		t.Fatalf("InferenceProvider = %q, want openai", cfg.InferenceProvider)
	}
	if cfg.ReportFormat != "docx" {
		t.Fatalf("ReportFormat = %q, want docx", cfg.ReportFormat)
	}
}

func TestLoadIgnoresMalformedInts(t *testing.T) {
	t.Setenv("DD_MAX_RETRIES", "not-a-number")
	cfg := Load()
	if cfg.MaxRetries != 3 {
		t.Fatalf("MaxRetries = %d, want default 3", cfg.MaxRetries)
	}
}

func TestNormalizeEnv(t *testing.T) {
	cases := map[string]string{
		"prod":       "production",
		"PRODUCTION": "production",
		"staging":    "staging",
		"local":      "local",
		"dev":        "dev",
		"":           "dev",
		"unknown":    "dev",
	}
	for raw, want := range cases {
		if got := normalizeEnv(raw); got != want {
			t.Fatalf("normalizeEnv(%q) = %q, want %q", raw, got, want)
		}
	}
}
