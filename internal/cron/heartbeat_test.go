package cron

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func TestNextRunTime(t *testing.T) {
	after := time.Date(2026, 3, 1, 10, 15, 30, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"*/30 * * * *", time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"0 * * * *", time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)},
		{"0 0 * * *", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := NextRunTime(tt.expr, after)
		if err != nil {
			t.Errorf("NextRunTime(%q): %v", tt.expr, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("NextRunTime(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestNextRunTimeRejectsGarbage(t *testing.T) {
	for _, expr := range []string{"", "not a cron", "99 * * * *", "* * * *"} {
		if _, err := NextRunTime(expr, time.Now()); err == nil {
			t.Errorf("NextRunTime(%q) accepted invalid expression", expr)
		}
	}
}

func TestHeartbeatFiresOnStartup(t *testing.T) {
	var fires atomic.Int64
	h := New(Config{
		Expr:         "0 0 * * *", // far away; only the startup fire counts
		Tick:         func(context.Context) { fires.Add(1) },
		Logger:       slog.Default(),
		PollInterval: time.Millisecond,
	})
	h.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for fires.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("heartbeat never fired at startup")
		}
		time.Sleep(time.Millisecond)
	}
	h.Stop()
	if got := fires.Load(); got != 1 {
		t.Errorf("fires = %d, want 1", got)
	}
}

func TestInvalidExprFallsBackToDefault(t *testing.T) {
	h := New(Config{Expr: "bogus", Logger: slog.Default()})
	if h.expr != defaultExpr {
		t.Errorf("expr = %q, want default %q", h.expr, defaultExpr)
	}
}

func TestStopWithoutStart(t *testing.T) {
	h := New(Config{Logger: slog.Default()})
	h.Stop() // must not panic or hang
}
