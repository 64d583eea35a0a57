package compactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/basket/go-governor/internal/llm"
	"github.com/basket/go-governor/internal/persistence"
)

type stubBrain struct {
	summary   string
	err       error
	available bool
	calls     int
}

func (s *stubBrain) Chat(context.Context, string, string) (string, llm.Usage, error) {
	s.calls++
	if s.err != nil {
		return "", llm.Usage{}, s.err
	}
	return s.summary, llm.Usage{InputTokens: 100, OutputTokens: 80, Cost: 0.001}, nil
}

func (s *stubBrain) Available() bool { return s.available }

func newTestStore(t *testing.T) *persistence.Store {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "governor.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestSession(t *testing.T, store *persistence.Store) string {
	t.Helper()
	id := uuid.NewString()
	if err := store.EnsureSession(context.Background(), id); err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	return id
}

func addMessages(t *testing.T, store *persistence.Store, sessionID string, n, tokens int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		content := fmt.Sprintf("msg-%03d %s", i, strings.Repeat("word ", tokens))
		if _, err := store.AddMessage(context.Background(), sessionID, role, content, tokens); err != nil {
			t.Fatalf("add message %d: %v", i, err)
		}
	}
}

func TestThresholdFromModelWindow(t *testing.T) {
	tests := []struct {
		name   string
		window int
		want   int
	}{
		{"clamped to floor", 1000, 1000},
		{"in range", 8000, 6000},
		{"clamped to ceiling", 200000, 100000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(newTestStore(t), nil, Config{}, nil, slog.Default())
			c.SetModelThreshold(tt.window)
			if got := c.Threshold(); got != tt.want {
				t.Errorf("threshold for window %d = %d, want %d", tt.window, got, tt.want)
			}
			c.ResetThreshold()
			if got := c.Threshold(); got != 4000 {
				t.Errorf("threshold after reset = %d, want 4000", got)
			}
		})
	}
}

func TestSetDefaultThreshold(t *testing.T) {
	c := New(newTestStore(t), nil, Config{}, nil, slog.Default())

	c.SetModelThreshold(8000)
	c.SetDefaultThreshold(2500)
	if got := c.Threshold(); got != 2500 {
		t.Errorf("threshold after update = %d, want 2500", got)
	}

	c.SetModelThreshold(8000)
	c.ResetThreshold()
	if got := c.Threshold(); got != 2500 {
		t.Errorf("threshold after reset = %d, want updated default 2500", got)
	}

	c.SetDefaultThreshold(0)
	if got := c.Threshold(); got != 2500 {
		t.Errorf("threshold after zero update = %d, want unchanged 2500", got)
	}
}

func TestBuildContextBelowThreshold(t *testing.T) {
	store := newTestStore(t)
	sid := newTestSession(t, store)
	addMessages(t, store, sid, 5, 10)

	c := New(store, nil, Config{}, nil, slog.Default())
	out, compacted := c.BuildContext(context.Background(), sid, "hello")

	if compacted {
		t.Fatal("below-threshold session was compacted")
	}
	for i := 0; i < 5; i++ {
		if !strings.Contains(out, fmt.Sprintf("msg-%03d", i)) {
			t.Errorf("verbatim context missing message %d", i)
		}
	}
	if !strings.Contains(out, "user: hello") {
		t.Error("context missing pending user input")
	}
}

func TestBuildContextEmptySession(t *testing.T) {
	store := newTestStore(t)
	sid := newTestSession(t, store)
	c := New(store, nil, Config{}, nil, slog.Default())
	out, compacted := c.BuildContext(context.Background(), sid, "hi")
	if out != "" || compacted {
		t.Errorf("empty session: got (%q, %v), want (\"\", false)", out, compacted)
	}
}

func TestCompactionKeepsRecentVerbatim(t *testing.T) {
	store := newTestStore(t)
	sid := newTestSession(t, store)
	addMessages(t, store, sid, 50, 50)

	brain := &stubBrain{summary: "SUMMARY-STUB", available: true}
	c := New(store, brain, Config{ThresholdTokens: 1000, KeepRecent: 10}, nil, slog.Default())

	out, compacted := c.BuildContext(context.Background(), sid, "")
	if !compacted {
		t.Fatal("over-threshold session was not compacted")
	}
	if brain.calls != 1 {
		t.Errorf("summarizer called %d times, want 1", brain.calls)
	}
	if !strings.Contains(out, "SUMMARY-STUB") {
		t.Error("context missing summary section")
	}
	for i := 40; i < 50; i++ {
		if !strings.Contains(out, fmt.Sprintf("msg-%03d", i)) {
			t.Errorf("recent message %d not verbatim in context", i)
		}
	}
	for i := 0; i < 40; i++ {
		if strings.Contains(out, fmt.Sprintf("msg-%03d", i)) {
			t.Errorf("compacted message %d leaked into context verbatim", i)
		}
	}

	cp, err := store.LatestCheckpoint(context.Background(), sid)
	if err != nil || cp == nil {
		t.Fatalf("latest checkpoint: cp=%v err=%v", cp, err)
	}
	n, err := store.CountMessages(context.Background(), sid)
	if err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if n != 10 {
		t.Errorf("active messages after compaction = %d, want 10", n)
	}
}

func TestSecondBuildContextNotCompacted(t *testing.T) {
	store := newTestStore(t)
	sid := newTestSession(t, store)
	addMessages(t, store, sid, 40, 50)

	brain := &stubBrain{summary: strings.Repeat("fact ", 80), available: true}
	c := New(store, brain, Config{ThresholdTokens: 1000, KeepRecent: 5}, nil, slog.Default())

	_, compacted := c.BuildContext(context.Background(), sid, "")
	if !compacted {
		t.Fatal("first call did not compact")
	}
	_, compacted = c.BuildContext(context.Background(), sid, "")
	if compacted {
		t.Error("second call re-compacted with no new messages")
	}
	if brain.calls != 1 {
		t.Errorf("summarizer called %d times total, want 1", brain.calls)
	}
}

func TestInsufficientHistoryFallsBackToFull(t *testing.T) {
	store := newTestStore(t)
	sid := newTestSession(t, store)
	addMessages(t, store, sid, 8, 500)

	c := New(store, &stubBrain{summary: "s", available: true},
		Config{ThresholdTokens: 1000, KeepRecent: 10}, nil, slog.Default())

	out, compacted := c.BuildContext(context.Background(), sid, "")
	if compacted {
		t.Fatal("compacted with fewer messages than keep_recent")
	}
	for i := 0; i < 8; i++ {
		if !strings.Contains(out, fmt.Sprintf("msg-%03d", i)) {
			t.Errorf("full-history fallback missing message %d", i)
		}
	}
}

func TestNeededStopsAtCheckpointCap(t *testing.T) {
	store := newTestStore(t)
	sid := newTestSession(t, store)
	c := New(store, nil, Config{ThresholdTokens: 100, MaxCheckpoints: 1}, nil, slog.Default())

	if !c.Needed(context.Background(), sid, 500) {
		t.Fatal("over-threshold session below cap should need compaction")
	}
	err := store.SaveCheckpoint(context.Background(), &persistence.Checkpoint{
		SessionID: sid, FromID: 1, ToID: 5, Summary: "s",
	})
	if err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	if c.Needed(context.Background(), sid, 500) {
		t.Error("session at checkpoint cap still reports needed")
	}
	if c.Needed(context.Background(), sid, 50) {
		t.Error("under-threshold tokens report needed")
	}
}

func TestSummarizeTruncationFallback(t *testing.T) {
	store := newTestStore(t)
	sid := newTestSession(t, store)

	long := strings.Repeat("a", 3000) + strings.Repeat("z", 3000)
	tests := []struct {
		name  string
		brain Summarizer
	}{
		{"no summarizer", nil},
		{"unavailable", &stubBrain{available: false}},
		{"call fails", &stubBrain{available: true, err: errors.New("provider down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(store, tt.brain, Config{}, nil, slog.Default())
			cp := c.Summarize(context.Background(), sid, 1, 10, long)

			if !strings.HasPrefix(cp.Summary, strings.Repeat("a", 2000)) {
				t.Error("fallback summary does not start with first 2000 chars")
			}
			if !strings.HasSuffix(cp.Summary, strings.Repeat("z", 2000)) {
				t.Error("fallback summary does not end with last 2000 chars")
			}
			if !strings.Contains(cp.Summary, "truncated") {
				t.Error("fallback summary missing truncation marker")
			}
			if cp.Seq == 0 {
				t.Error("fallback checkpoint was not persisted")
			}
		})
	}

	t.Run("short text kept whole", func(t *testing.T) {
		c := New(store, nil, Config{}, nil, slog.Default())
		cp := c.Summarize(context.Background(), sid, 1, 10, "short transcript")
		if cp.Summary != "short transcript" {
			t.Errorf("short text was altered: %q", cp.Summary)
		}
	})
}

func TestContextNeverOverflowsBound(t *testing.T) {
	store := newTestStore(t)
	sid := newTestSession(t, store)
	for i := 0; i < 3; i++ {
		if _, err := store.AddMessage(context.Background(), sid, "user",
			strings.Repeat("x", 15000), 10); err != nil {
			t.Fatalf("add message: %v", err)
		}
	}

	c := New(store, nil, Config{ThresholdTokens: 1000000}, nil, slog.Default())
	out, _ := c.BuildContext(context.Background(), sid, "")
	if len(out) > maxContextBytes {
		t.Errorf("context length %d exceeds bound %d", len(out), maxContextBytes)
	}
	if !strings.Contains(out, "truncated") {
		t.Error("oversized context missing truncation marker")
	}
}
