// Package ledger tracks provider spend per session and for the process
// lifetime, and raises a one-shot event when a session crosses its budget.
package ledger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/basket/go-governor/internal/bus"
	"github.com/basket/go-governor/internal/llm"
	"github.com/basket/go-governor/internal/otel"
	"github.com/basket/go-governor/internal/pricing"
)

// Totals accumulates token counts and spend.
type Totals struct {
	InputTokens  int
	OutputTokens int
	CachedTokens int
	Cost         float64
}

func (t *Totals) add(u llm.Usage, cost float64) {
	t.InputTokens += u.InputTokens
	t.OutputTokens += u.OutputTokens
	t.CachedTokens += u.CachedTokens
	t.Cost += cost
}

// Ledger is safe for concurrent use. Session totals reset per session;
// cumulative totals only reset with the process.
type Ledger struct {
	mu           sync.Mutex
	sessionID    string
	session      Totals
	cumulative   Totals
	limit        float64
	overNotified bool

	events  *bus.Bus
	metrics *otel.Metrics
	logger  *slog.Logger
}

// New creates a Ledger with the given session budget in USD. A zero or
// negative limit disables budget enforcement. events and metrics may be nil.
func New(limitUSD float64, events *bus.Bus, metrics *otel.Metrics, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{limit: limitUSD, events: events, metrics: metrics, logger: logger}
}

// Record folds one provider call into both session and cumulative totals.
// When the usage carries no cost, it is derived from the pricing table; an
// unknown model records zero cost rather than guessing. Crossing the session
// budget publishes budget.over exactly once per session.
func (l *Ledger) Record(model string, u llm.Usage) {
	cost := u.Cost
	if cost == 0 {
		cost = pricing.Cost(model, u.InputTokens, u.OutputTokens, u.CachedTokens)
	}

	l.mu.Lock()
	l.session.add(u, cost)
	l.cumulative.add(u, cost)
	spent := l.session.Cost
	crossed := l.limit > 0 && spent > l.limit && !l.overNotified
	if crossed {
		l.overNotified = true
	}
	limit := l.limit
	sessionID := l.sessionID
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.TokensUsed.Add(context.Background(), int64(u.InputTokens+u.OutputTokens))
		l.metrics.SpendUSD.Add(context.Background(), cost)
	}
	if crossed {
		l.logger.Warn("session budget exceeded",
			"session_id", sessionID, "limit_usd", limit, "spent_usd", spent)
		if l.events != nil {
			l.events.Publish(bus.TopicBudgetOver, bus.BudgetOverEvent{
				SessionID: sessionID,
				Limit:     limit,
				Spent:     spent,
			})
		}
	}
}

// StartSession resets session-scoped totals for a new session. Cumulative
// totals and the configured limit carry over.
func (l *Ledger) StartSession(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessionID = sessionID
	l.session = Totals{}
	l.overNotified = false
}

// SetBudget replaces the session limit without touching recorded spend. The
// over-budget notification re-arms so a raised limit can fire again later.
func (l *Ledger) SetBudget(limitUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = limitUSD
	l.overNotified = false
}

// SessionCost returns the current session's spend in USD.
func (l *Ledger) SessionCost() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session.Cost
}

// TotalCost returns spend across all sessions this process has run.
func (l *Ledger) TotalCost() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cumulative.Cost
}

// Remaining returns limit minus session spend; negative once over budget.
func (l *Ledger) Remaining() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit - l.session.Cost
}

// IsOverBudget reports whether session spend exceeds the limit. Always
// false when no limit is set.
func (l *Ledger) IsOverBudget() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit > 0 && l.session.Cost > l.limit
}

// SessionTotals returns a copy of the session accumulator.
func (l *Ledger) SessionTotals() Totals {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// CumulativeTotals returns a copy of the process-lifetime accumulator.
func (l *Ledger) CumulativeTotals() Totals {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cumulative
}
