package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// clearEnv blanks every variable LoadFromEnv reads so host environment
// leakage cannot skew a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LISTEN_ADDR", "META_DB_PATH", "LOG_LEVEL", "ENV",
		"GEMINI_API_KEY", "GEMINI_API_URL", "GEMINI_MODEL",
		"GATEWAY_URL", "GATEWAY_API_KEY",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"CORS_ALLOWED_ORIGINS", "WORKFLOW_CRON", "WORKFLOW_CONFIG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("META_DB_PATH", "/tmp/test.sqlite")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GEMINI_API_KEY", "testkey")
	t.Setenv("GEMINI_MODEL", "gemini-2.0-flash")
	t.Setenv("GATEWAY_URL", "http://gateway:8001")
	t.Setenv("RATE_LIMIT_RPS", "50")
	t.Setenv("RATE_LIMIT_BURST", "75")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.MetaDBPath != "/tmp/test.sqlite" {
		t.Errorf("MetaDBPath = %q, want %q", cfg.MetaDBPath, "/tmp/test.sqlite")
	}
	if cfg.GeminiAPIKey != "testkey" {
		t.Errorf("GeminiAPIKey = %q, want %q", cfg.GeminiAPIKey, "testkey")
	}
	if cfg.RateLimitRPS != 50 {
		t.Errorf("RateLimitRPS = %v, want 50", cfg.RateLimitRPS)
	}
	if cfg.RateLimitBurst != 75 {
		t.Errorf("RateLimitBurst = %d, want 75", cfg.RateLimitBurst)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("CORSAllowedOrigins = %v, want two trimmed origins", cfg.CORSAllowedOrigins)
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", cfg.Warnings)
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr default = %q, want %q", cfg.ListenAddr, ":8080")
	}
	if cfg.MetaDBPath != "tablelens_meta.sqlite" {
		t.Errorf("MetaDBPath default = %q, want %q", cfg.MetaDBPath, "tablelens_meta.sqlite")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel default = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.GatewayURL != "http://localhost:8001" {
		t.Errorf("GatewayURL default = %q, want %q", cfg.GatewayURL, "http://localhost:8001")
	}
	if cfg.RateLimitRPS != 100 || cfg.RateLimitBurst != 200 {
		t.Errorf("rate limit defaults = %v/%d, want 100/200", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Errorf("CORSAllowedOrigins default = %v, want [*]", cfg.CORSAllowedOrigins)
	}

	// Missing gateway URL and API key produce warnings, not errors.
	if len(cfg.Warnings) != 2 {
		t.Errorf("Warnings = %v, want gateway and API key warnings", cfg.Warnings)
	}
}

func TestLoadFromEnv_WorkflowConfigFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "workflow.yaml")
	yaml := `metadata_source_id: srcMeta
metadata_table_id: tblMeta
target_source_ids:
  - srcA
  - srcB
batch_size: 3
categories:
  - structure
  - performance
auto_update: false
quality_threshold: 0.8
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WORKFLOW_CONFIG_FILE", path)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wf := cfg.Workflow
	if wf.MetadataSourceID != "srcMeta" || wf.MetadataTableID != "tblMeta" {
		t.Errorf("metadata coordinates = %q/%q", wf.MetadataSourceID, wf.MetadataTableID)
	}
	if len(wf.TargetSourceIDs) != 2 {
		t.Errorf("TargetSourceIDs = %v, want 2 entries", wf.TargetSourceIDs)
	}
	if wf.BatchSize != 3 {
		t.Errorf("BatchSize = %d, want 3", wf.BatchSize)
	}
	if wf.AutoUpdate == nil || *wf.AutoUpdate {
		t.Errorf("AutoUpdate = %v, want false", wf.AutoUpdate)
	}
	if wf.QualityThreshold != 0.8 {
		t.Errorf("QualityThreshold = %v, want 0.8", wf.QualityThreshold)
	}
}

func TestLoadFromEnv_MissingWorkflowConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("WORKFLOW_CONFIG_FILE", "/nonexistent/workflow.yaml")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for missing workflow config file")
	}
}

func TestLoadFromEnv_ProductionRequiresAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for missing GEMINI_API_KEY in production")
	}
}

func TestLoadFromEnv_ProductionRejectsCORSWildcard(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("GEMINI_API_KEY", "testkey")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for CORS wildcard in production")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.in}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsProduction(t *testing.T) {
	for in, want := range map[string]bool{
		"production":  true,
		"PRODUCTION":  true,
		"development": false,
		"":            false,
	} {
		cfg := &Config{Env: in}
		if got := cfg.IsProduction(); got != want {
			t.Errorf("IsProduction(%q) = %v, want %v", in, got, want)
		}
	}
}
