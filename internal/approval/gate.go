// Package approval is the consent gate in front of every system-modifying
// action. Nothing it guards may run before RequestApproval returns true, and
// every outcome is audited.
package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/basket/go-governor/internal/audit"
	"github.com/basket/go-governor/internal/bus"
	"github.com/basket/go-governor/internal/persistence"
)

// Request describes one action awaiting consent.
type Request struct {
	Action      string
	Reason      string
	Command     string
	Destructive bool
}

// Gate prompts for and remembers approval decisions. The prompt reads from
// in and writes to out so tests can drive it without a terminal.
type Gate struct {
	store  *persistence.Store
	trail  *audit.Log
	events *bus.Bus
	in     *bufio.Reader
	out    io.Writer
	logger *slog.Logger
}

// New creates a Gate. trail and events may be nil.
func New(store *persistence.Store, trail *audit.Log, events *bus.Bus, in io.Reader, out io.Writer, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:  store,
		trail:  trail,
		events: events,
		in:     bufio.NewReader(in),
		out:    out,
		logger: logger,
	}
}

// IsApproved reports whether action has a persisted approval. Only an
// explicit stored true counts; absence and stored denials are both false.
func (g *Gate) IsApproved(ctx context.Context, action string) bool {
	approved, found, err := g.store.GetApproval(ctx, action)
	if err != nil {
		g.logger.Warn("approval lookup failed", "action", action, "error", err)
		return false
	}
	return found && approved
}

// RequestApproval blocks until the action is resolved. A remembered decision
// short-circuits the prompt in either direction. Otherwise the user picks
// one of four resolutions:
//
//	y  approve once
//	a  approve always (persisted)
//	n  deny once (default on empty input and EOF)
//	f  deny forever (persisted)
//
// Unrecognized input denies once. End of input denies: the gate fails safe,
// never open.
func (g *Gate) RequestApproval(ctx context.Context, req Request) bool {
	approved, found, err := g.store.GetApproval(ctx, req.Action)
	if err != nil {
		g.logger.Warn("approval lookup failed", "action", req.Action, "error", err)
	} else if found {
		g.record(req, approved, true, "remembered decision")
		if approved {
			fmt.Fprintf(g.out, "Action %q approved (remembered).\n", req.Action)
		} else {
			fmt.Fprintf(g.out, "Action %q denied (remembered).\n", req.Action)
		}
		return approved
	}

	g.prompt(req)
	line, err := g.in.ReadString('\n')
	if err != nil && line == "" {
		g.record(req, false, false, "input closed")
		return false
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		g.record(req, true, false, "approved once")
		return true
	case "a", "always":
		if err := g.store.SetApproval(ctx, req.Action, true); err != nil {
			g.logger.Warn("persist approval failed", "action", req.Action, "error", err)
		}
		g.record(req, true, false, "approved always")
		return true
	case "f", "forever", "never":
		if err := g.store.SetApproval(ctx, req.Action, false); err != nil {
			g.logger.Warn("persist denial failed", "action", req.Action, "error", err)
		}
		g.record(req, false, false, "denied forever")
		return false
	case "n", "no", "":
		g.record(req, false, false, "denied once")
		return false
	default:
		g.record(req, false, false, "unrecognized input")
		return false
	}
}

// StoreApproval persists a decision without prompting.
func (g *Gate) StoreApproval(ctx context.Context, action string, approved bool) error {
	return g.store.SetApproval(ctx, action, approved)
}

// ClearApprovals forgets every remembered decision. Safe when none exist.
func (g *Gate) ClearApprovals(ctx context.Context) error {
	return g.store.ClearApprovals(ctx)
}

func (g *Gate) prompt(req Request) {
	fmt.Fprintf(g.out, "\nApproval required: %s\n", req.Action)
	if req.Reason != "" {
		fmt.Fprintf(g.out, "  Reason:  %s\n", req.Reason)
	}
	if req.Command != "" {
		fmt.Fprintf(g.out, "  Command: %s\n", req.Command)
	}
	if req.Destructive {
		fmt.Fprintln(g.out, "  WARNING: this action is destructive.")
	}
	fmt.Fprint(g.out, "Allow? [y]es once / [a]lways / [n]o (default) / [f]orever deny: ")
}

// record writes the outcome to the audit trail and the event bus. Every
// resolution path lands here so a decision can never go unobserved.
func (g *Gate) record(req Request, approved, remembered bool, reason string) {
	decision := "deny"
	if approved {
		decision = "approve"
	}
	source := "prompt"
	if remembered {
		source = "remembered"
	}
	g.trail.Record(decision, req.Action, reason, req.Command, source)
	if g.events != nil {
		g.events.Publish(bus.TopicApprovalDecision, bus.ApprovalDecisionEvent{
			Action:     req.Action,
			Approved:   approved,
			Remembered: remembered,
		})
	}
	g.logger.Info("approval decision",
		"action", req.Action,
		"approved", approved,
		"remembered", remembered,
		"reason", reason)
}
