package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"taskroute/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if !cfg.Workflow.EnforceTransitions {
		t.Fatalf("transitions should be enforced by default")
	}
	if !cfg.Allows(domain.StatusDraft, domain.StatusPending) {
		t.Fatalf("draft -> pending should be allowed")
	}
	if cfg.Allows(domain.StatusDraft, domain.StatusCompleted) {
		t.Fatalf("draft -> completed should be rejected")
	}
	if got := cfg.Targets(domain.StatusCompleted); len(got) != 0 {
		t.Fatalf("completed should be terminal, got %v", got)
	}
	ttl, err := cfg.SessionTTL()
	if err != nil || ttl != 30*24*time.Hour {
		t.Fatalf("ttl = %v, %v", ttl, err)
	}
}

func TestFromYAMLOverridesAndValidates(t *testing.T) {
	cfg, err := FromYAML([]byte("workflow:\n  enforce_transitions: false\nlisting:\n  default_limit: 10\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Workflow.EnforceTransitions {
		t.Fatalf("override ignored")
	}
	if cfg.Listing.DefaultLimit != 10 || cfg.Listing.MaxLimit != 200 {
		t.Fatalf("listing = %+v", cfg.Listing)
	}
	if _, err := FromYAML([]byte("workflow:\n  transitions:\n    draft: [shipped]\n")); err == nil {
		t.Fatalf("expected unknown status error")
	}
	if _, err := FromYAML([]byte("sessions:\n  ttl: soon\n")); err == nil {
		t.Fatalf("expected ttl error")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("missing file: cfg=%v err=%v", cfg, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "taskroute.yml"), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("load: %v", err)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	if err := os.WriteFile(dotenv, []byte("TASKROUTE_SERVICE_NAME=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TASKROUTE_JWT_SECRET", "s3cret")
	t.Setenv("TASKROUTE_SERVICE_NAME", "")
	os.Unsetenv("TASKROUTE_SERVICE_NAME")
	cfg, err := LoadEnv(dotenv, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if cfg.JWTSecret != "s3cret" || cfg.ServiceName != "from-dotenv" || !cfg.OTELEnabled {
		t.Fatalf("unexpected env: %+v", cfg)
	}
}
