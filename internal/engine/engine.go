// Package engine orchestrates a turn: bounded context from the compactor,
// one model call on the scheduler, spend recorded in the ledger, and the
// approval gate in front of anything that touches the system.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/basket/go-governor/internal/approval"
	"github.com/basket/go-governor/internal/compactor"
	"github.com/basket/go-governor/internal/ledger"
	"github.com/basket/go-governor/internal/llm"
	"github.com/basket/go-governor/internal/persistence"
	"github.com/basket/go-governor/internal/pkgmgr"
	"github.com/basket/go-governor/internal/scheduler"
	"github.com/basket/go-governor/internal/tokenutil"
)

const systemPrompt = `You are a local agent runtime assistant. Be concise.
Ask before assuming; never fabricate command output.`

// ErrOverBudget rejects a turn before any provider call is made.
var ErrOverBudget = errors.New("session budget exhausted")

// ErrInterrupted reports a turn abandoned at a cooperative stop point.
var ErrInterrupted = errors.New("interrupted")

// runCommand executes an approved install command. Swappable for tests.
var runCommand = func(ctx context.Context, command string) error {
	return exec.CommandContext(ctx, "sh", "-c", command).Run()
}

// resolveInstall maps a tool name to an install command. Swappable for tests.
var resolveInstall = pkgmgr.Resolve

// Engine wires the governor's components behind a synchronous turn API.
type Engine struct {
	sched     *scheduler.Scheduler
	compactor *compactor.Compactor
	gate      *approval.Gate
	ledger    *ledger.Ledger
	brain     llm.Brain
	store     *persistence.Store
	interrupt *scheduler.Interrupt
	logger    *slog.Logger
}

// New assembles an Engine. When the brain is available its model's context
// window recalibrates the compaction threshold.
func New(sched *scheduler.Scheduler, comp *compactor.Compactor, gate *approval.Gate,
	led *ledger.Ledger, brain llm.Brain, store *persistence.Store,
	interrupt *scheduler.Interrupt, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if brain != nil && brain.Available() {
		comp.SetModelThreshold(llm.ContextWindowForModel(brain.Model()))
	}
	return &Engine{
		sched:     sched,
		compactor: comp,
		gate:      gate,
		ledger:    led,
		brain:     brain,
		store:     store,
		interrupt: interrupt,
		logger:    logger,
	}
}

// RunTurn executes one conversational turn and blocks for the reply. The
// model call runs as a high-priority scheduler task so turn work shares the
// same pools, counters and failure isolation as everything else.
func (e *Engine) RunTurn(ctx context.Context, sessionID, input string) (string, error) {
	if e.interrupt != nil && e.interrupt.Interrupted() {
		return "", ErrInterrupted
	}
	if e.ledger != nil && e.ledger.IsOverBudget() {
		return "", fmt.Errorf("%w: spent $%.4f", ErrOverBudget, e.ledger.SessionCost())
	}
	if e.brain == nil || !e.brain.Available() {
		return "", errors.New("no model provider configured")
	}

	if err := e.store.EnsureSession(ctx, sessionID); err != nil {
		return "", err
	}
	if _, err := e.store.AddMessage(ctx, sessionID, "user", input, tokenutil.Estimate(input)); err != nil {
		return "", fmt.Errorf("persist user message: %w", err)
	}

	// The user message is already persisted, so the compactor renders it as
	// part of the history; passing it again would duplicate it.
	turnContext, compacted := e.compactor.BuildContext(ctx, sessionID, "")
	if compacted {
		e.logger.Info("turn context compacted", "session_id", sessionID)
	}
	if turnContext == "" {
		turnContext = "user: " + input + "\n"
	}

	var (
		reply string
		usage llm.Usage
		err   error
	)
	done := make(chan struct{})
	e.sched.Submit(scheduler.Task{
		Name: "chat_turn",
		Run: func(context.Context) error {
			reply, usage, err = e.brain.Chat(ctx, systemPrompt, turnContext)
			return err
		},
		Cleanup: func() { close(done) },
	}, scheduler.PriorityHigh)
	select {
	case <-done:
	case <-ctx.Done():
		// Submit after shutdown is a silent no-op; do not wait forever.
		return "", ctx.Err()
	}

	if err != nil {
		return "", fmt.Errorf("model call: %w", err)
	}
	if e.ledger != nil {
		e.ledger.Record(e.brain.Model(), usage)
	}
	if _, err := e.store.AddMessage(ctx, sessionID, "assistant", reply, tokenutil.Estimate(reply)); err != nil {
		e.logger.Warn("persist assistant message failed", "session_id", sessionID, "error", err)
	}
	return reply, nil
}

// Install resolves the install command for tool and runs it only after the
// gate approves. An unknown tool or package manager is an error, never a
// guessed command.
func (e *Engine) Install(ctx context.Context, tool string) error {
	command := resolveInstall(tool)
	if command == "" {
		return fmt.Errorf("no install command known for %q", tool)
	}
	ok := e.gate.RequestApproval(ctx, approval.Request{
		Action:  "install_" + tool,
		Reason:  fmt.Sprintf("agent needs the %s tool", tool),
		Command: command,
	})
	if !ok {
		return fmt.Errorf("install of %q denied", tool)
	}

	e.logger.Info("running install", "tool", tool, "command", command)
	if err := runCommand(ctx, command); err != nil {
		return fmt.Errorf("install %s: %w", tool, err)
	}
	return nil
}

// ClearApprovals forgets every remembered gate decision.
func (e *Engine) ClearApprovals(ctx context.Context) error {
	return e.gate.ClearApprovals(ctx)
}

// Status is a point-in-time snapshot for the CLI.
type Status struct {
	Scheduler   scheduler.Metrics
	SessionCost float64
	TotalCost   float64
	Remaining   float64
	OverBudget  bool
	Threshold   int
}

func (e *Engine) Status() Status {
	st := Status{
		Scheduler: e.sched.GetMetrics(),
		Threshold: e.compactor.Threshold(),
	}
	if e.ledger != nil {
		st.SessionCost = e.ledger.SessionCost()
		st.TotalCost = e.ledger.TotalCost()
		st.Remaining = e.ledger.Remaining()
		st.OverBudget = e.ledger.IsOverBudget()
	}
	return st
}
