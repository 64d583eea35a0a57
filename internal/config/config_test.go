package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Compactor.ThresholdTokens != 4000 {
		t.Errorf("ThresholdTokens = %d, want 4000", cfg.Compactor.ThresholdTokens)
	}
	if cfg.Compactor.KeepRecent != 10 {
		t.Errorf("KeepRecent = %d, want 10", cfg.Compactor.KeepRecent)
	}
	if cfg.Compactor.MaxCheckpoints != 20 {
		t.Errorf("MaxCheckpoints = %d, want 20", cfg.Compactor.MaxCheckpoints)
	}
	if cfg.Scheduler.StealQueueCapacity != 64 {
		t.Errorf("StealQueueCapacity = %d, want 64", cfg.Scheduler.StealQueueCapacity)
	}
	if cfg.LLM.Provider != "google" {
		t.Errorf("Provider = %q, want google", cfg.LLM.Provider)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := `
log_level: debug
scheduler:
  interactive_workers: 8
  background_workers: 2
compactor:
  threshold_tokens: 1000
  keep_recent: 5
budget:
  session_limit_usd: 2.5
llm:
  provider: anthropic
  model: claude-sonnet-4-5
`
	if err := os.WriteFile(Path(dir), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.InteractiveWorkers != 8 || cfg.Scheduler.BackgroundWorkers != 2 {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Compactor.ThresholdTokens != 1000 || cfg.Compactor.KeepRecent != 5 {
		t.Errorf("compactor = %+v", cfg.Compactor)
	}
	if cfg.Budget.SessionLimitUSD != 2.5 {
		t.Errorf("budget = %+v", cfg.Budget)
	}
	if cfg.LLM.Model != "claude-sonnet-4-5" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(Path(dir), []byte("llm:\n  provider: skynet\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestLoadRejectsNegativeBudget(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(Path(dir), []byte("budget:\n  session_limit_usd: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for negative budget")
	}
}

func TestWatcherEmitsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir)
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWatcher(dir, nil)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Give the watcher a moment to register before writing.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		if filepath.Base(ev.Path) != "config.yaml" {
			t.Errorf("unexpected path %q", ev.Path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload event received")
	}
}
