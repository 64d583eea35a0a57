// Package cron runs the governor's heartbeat: a periodic tick driven by a
// standard cron expression that reports runtime health.
package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom,
// month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

const defaultExpr = "*/30 * * * *"

// Config holds the heartbeat dependencies.
type Config struct {
	Expr   string // 5-field cron expression; defaults to every 30 minutes
	Tick   func(ctx context.Context)
	Logger *slog.Logger

	// PollInterval bounds how often the loop re-checks the schedule.
	// Tests shrink it; zero means one second.
	PollInterval time.Duration
}

// Heartbeat fires Tick on a cron schedule plus once at startup.
type Heartbeat struct {
	expr   string
	tick   func(ctx context.Context)
	logger *slog.Logger
	poll   time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Heartbeat. An unparseable expression falls back to the
// default with a warning rather than failing startup.
func New(cfg Config) *Heartbeat {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	expr := cfg.Expr
	if expr == "" {
		expr = defaultExpr
	}
	if _, err := NextRunTime(expr, time.Now()); err != nil {
		logger.Warn("invalid heartbeat expression, using default",
			"expr", expr, "default", defaultExpr, "error", err)
		expr = defaultExpr
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &Heartbeat{
		expr:   expr,
		tick:   cfg.Tick,
		logger: logger,
		poll:   poll,
	}
}

// Start begins the heartbeat loop in a background goroutine.
func (h *Heartbeat) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	h.wg.Add(1)
	go h.loop(ctx)
	h.logger.Info("heartbeat started", "expr", h.expr)
}

// Stop cancels the loop and waits for it to exit.
func (h *Heartbeat) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
	h.logger.Info("heartbeat stopped")
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer h.wg.Done()

	// Fire once at startup, then on schedule.
	h.fire(ctx)
	next, err := NextRunTime(h.expr, time.Now())
	if err != nil {
		h.logger.Error("heartbeat schedule parse failed", "expr", h.expr, "error", err)
		return
	}

	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Before(next) {
				continue
			}
			h.fire(ctx)
			next, err = NextRunTime(h.expr, now)
			if err != nil {
				h.logger.Error("heartbeat schedule parse failed", "expr", h.expr, "error", err)
				return
			}
		}
	}
}

func (h *Heartbeat) fire(ctx context.Context) {
	if h.tick == nil {
		return
	}
	h.tick(ctx)
}

// NextRunTime parses the cron expression and returns the next run time
// after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
