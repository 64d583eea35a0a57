// Package compactor keeps a session's conversation inside a token budget by
// replacing old messages with a persisted summary checkpoint while the most
// recent messages stay verbatim.
package compactor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/basket/go-governor/internal/llm"
	"github.com/basket/go-governor/internal/otel"
	"github.com/basket/go-governor/internal/persistence"
	"github.com/basket/go-governor/internal/tokenutil"
)

// maxContextBytes bounds the assembled context. Sections are truncated to
// fit, never overflowed.
const maxContextBytes = 32 * 1024

const truncationMarker = "\n[... truncated ...]\n"

// summaryInstruction is the fixed system prompt for checkpoint summaries.
const summaryInstruction = `Summarize this conversation segment for future context. Extract:
- Decisions made and their outcomes
- Key facts established
- Current task state and remaining work
- User preferences and constraints
- Errors that were hit and how they were resolved
Use bullet points. Stay under 500 tokens.`

// Config tunes thresholds and retention. Zero values get defaults.
type Config struct {
	ThresholdTokens int     // compact when history exceeds this (default 4000)
	ThresholdRatio  float64 // per-model threshold = window * ratio (default 0.75)
	MinThreshold    int     // clamp floor for per-model threshold (default 1000)
	MaxThreshold    int     // clamp ceiling (default 100000)
	KeepRecent      int     // trailing messages kept verbatim (default 10)
	MaxCheckpoints  int     // per-session checkpoint cap (default 20)
}

func (c *Config) applyDefaults() {
	if c.ThresholdTokens <= 0 {
		c.ThresholdTokens = 4000
	}
	if c.ThresholdRatio <= 0 || c.ThresholdRatio >= 1 {
		c.ThresholdRatio = 0.75
	}
	if c.MinThreshold <= 0 {
		c.MinThreshold = 1000
	}
	if c.MaxThreshold <= 0 {
		c.MaxThreshold = 100000
	}
	if c.KeepRecent <= 0 {
		c.KeepRecent = 10
	}
	if c.MaxCheckpoints <= 0 {
		c.MaxCheckpoints = 20
	}
}

// Summarizer is the single capability the compactor needs from the model
// layer. llm.Brain satisfies it.
type Summarizer interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, llm.Usage, error)
	Available() bool
}

// Compactor decides when to compact and builds bounded context windows.
type Compactor struct {
	store   *persistence.Store
	brain   Summarizer
	cfg     Config
	metrics *otel.Metrics
	logger  *slog.Logger

	threshold        atomic.Int64
	defaultThreshold atomic.Int64
}

// New creates a Compactor. brain and metrics may be nil; without a brain
// every summary falls back to deterministic truncation.
func New(store *persistence.Store, brain Summarizer, cfg Config, metrics *otel.Metrics, logger *slog.Logger) *Compactor {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	c := &Compactor{
		store:   store,
		brain:   brain,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
	c.threshold.Store(int64(cfg.ThresholdTokens))
	c.defaultThreshold.Store(int64(cfg.ThresholdTokens))
	return c
}

// Threshold returns the active compaction threshold in tokens.
func (c *Compactor) Threshold() int {
	return int(c.threshold.Load())
}

// SetModelThreshold recalculates the threshold from a model's context window
// as window*ratio, clamped to the configured range.
func (c *Compactor) SetModelThreshold(contextWindow int) {
	t := int(float64(contextWindow) * c.cfg.ThresholdRatio)
	if t < c.cfg.MinThreshold {
		t = c.cfg.MinThreshold
	}
	if t > c.cfg.MaxThreshold {
		t = c.cfg.MaxThreshold
	}
	c.threshold.Store(int64(t))
}

// SetDefaultThreshold replaces the default threshold and makes it the active
// one. Called when the configuration is reloaded at runtime.
func (c *Compactor) SetDefaultThreshold(tokens int) {
	if tokens <= 0 {
		return
	}
	c.defaultThreshold.Store(int64(tokens))
	c.threshold.Store(int64(tokens))
}

// ResetThreshold restores the default threshold.
func (c *Compactor) ResetThreshold() {
	c.threshold.Store(c.defaultThreshold.Load())
}

// Needed reports whether the session should compact at currentTokens. Once
// the session reaches its checkpoint cap it never compacts again.
func (c *Compactor) Needed(ctx context.Context, sessionID string, currentTokens int) bool {
	n, err := c.store.CountCheckpoints(ctx, sessionID)
	if err != nil {
		c.logger.Warn("checkpoint count failed", "session_id", sessionID, "error", err)
		return false
	}
	if n >= c.cfg.MaxCheckpoints {
		return false
	}
	return currentTokens > c.Threshold()
}

// GetCheckpoint returns the session's most recent checkpoint, or nil.
func (c *Compactor) GetCheckpoint(ctx context.Context, sessionID string) (*persistence.Checkpoint, error) {
	return c.store.LatestCheckpoint(ctx, sessionID)
}

// BuildContext assembles the conversation context for the next turn. Under
// the threshold the active history is returned verbatim. Over it, messages
// older than the cutoff are summarized into a checkpoint (reusing the latest
// one when it already covers the range), archived, and replaced by a labeled
// summary section ahead of the verbatim recent messages. Persistence
// failures degrade to warnings; a usable context always comes back.
func (c *Compactor) BuildContext(ctx context.Context, sessionID, userInput string) (string, bool) {
	msgs, err := c.store.LoadRecentMessages(ctx, sessionID, 100)
	if err != nil {
		c.logger.Warn("load history failed", "session_id", sessionID, "error", err)
		return "", false
	}
	if len(msgs) == 0 {
		return "", false
	}

	total := historyTokens(msgs)
	if !c.Needed(ctx, sessionID, total) {
		return bound(renderMessages(msgs) + pendingLine(userInput)), false
	}

	cutoffID, ok, err := c.store.CutoffIDForRecent(ctx, sessionID, c.cfg.KeepRecent)
	if err != nil {
		c.logger.Warn("cutoff lookup failed", "session_id", sessionID, "error", err)
		return bound(renderMessages(msgs) + pendingLine(userInput)), false
	}
	if !ok {
		// Not enough history to leave keep_recent behind.
		return bound(renderMessages(msgs) + pendingLine(userInput)), false
	}

	cp, err := c.checkpointFor(ctx, sessionID, cutoffID)
	if err != nil {
		c.logger.Warn("compaction failed, returning full history",
			"session_id", sessionID, "error", err)
		return bound(renderMessages(msgs) + pendingLine(userInput)), false
	}

	if err := c.store.ArchiveMessages(ctx, sessionID, cutoffID); err != nil {
		c.logger.Warn("archive failed", "session_id", sessionID, "error", err)
	}

	var recent []persistence.Message
	for _, m := range msgs {
		if m.ID > cutoffID {
			recent = append(recent, m)
		}
	}

	var b strings.Builder
	b.WriteString("=== Conversation summary ===\n")
	b.WriteString(cp.Summary)
	b.WriteString("\n\n=== Recent messages ===\n")
	b.WriteString(renderMessages(recent))
	b.WriteString(pendingLine(userInput))

	if c.metrics != nil {
		c.metrics.Compactions.Add(ctx, 1)
	}
	c.logger.Info("context compacted",
		"session_id", sessionID,
		"original_tokens", cp.OriginalTokens,
		"compressed_tokens", cp.CompressedTokens,
		"ratio", fmt.Sprintf("%.1f", cp.CompressionRatio()),
		"kept_recent", len(recent))

	return bound(b.String()), true
}

// checkpointFor returns a checkpoint covering [start, cutoffID], reusing the
// latest persisted one when its range still matches.
func (c *Compactor) checkpointFor(ctx context.Context, sessionID string, cutoffID int64) (*persistence.Checkpoint, error) {
	if cp, err := c.store.LatestCheckpoint(ctx, sessionID); err != nil {
		c.logger.Warn("checkpoint lookup failed", "session_id", sessionID, "error", err)
	} else if cp != nil && cp.ToID == cutoffID {
		return cp, nil
	}

	minID, _, err := c.store.MessageIDRange(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	old, err := c.store.LoadMessagesBetween(ctx, sessionID, minID, cutoffID)
	if err != nil {
		return nil, err
	}
	if len(old) == 0 {
		return nil, fmt.Errorf("no messages in range [%d, %d]", minID, cutoffID)
	}
	return c.Summarize(ctx, sessionID, minID, cutoffID, renderMessages(old)), nil
}

// Summarize produces and persists a checkpoint for the message range
// [fromID, toID] whose transcript is text. One model call with a fixed
// instruction; on unavailability or failure the summary degrades to
// deterministic truncation. A checkpoint write failure is logged, not
// propagated: the caller still gets the computed checkpoint.
func (c *Compactor) Summarize(ctx context.Context, sessionID string, fromID, toID int64, text string) *persistence.Checkpoint {
	originalTokens := tokenutil.Estimate(text)

	var summary string
	var cost float64
	if c.brain != nil && c.brain.Available() {
		out, usage, err := c.brain.Chat(ctx, summaryInstruction, text)
		if err != nil {
			c.logger.Warn("summarization failed, falling back to truncation",
				"session_id", sessionID, "error", err)
			summary = truncateText(text)
		} else {
			summary = out
			cost = usage.Cost
			if c.metrics != nil {
				c.metrics.TokensUsed.Add(ctx, int64(usage.InputTokens+usage.OutputTokens))
			}
		}
	} else {
		summary = truncateText(text)
	}

	cp := &persistence.Checkpoint{
		SessionID:        sessionID,
		FromID:           fromID,
		ToID:             toID,
		Summary:          summary,
		OriginalTokens:   originalTokens,
		CompressedTokens: tokenutil.Estimate(summary),
		Cost:             cost,
	}
	if err := c.store.SaveCheckpoint(ctx, cp); err != nil {
		c.logger.Warn("checkpoint persist failed", "session_id", sessionID, "error", err)
	}
	return cp
}

// truncateText is the deterministic fallback summary: text over 4000 chars
// keeps the first and last 2000 around a marker.
func truncateText(text string) string {
	if len(text) <= 4000 {
		return text
	}
	return text[:2000] + truncationMarker + text[len(text)-2000:]
}

func historyTokens(msgs []persistence.Message) int {
	total := 0
	for _, m := range msgs {
		if m.Tokens > 0 {
			total += m.Tokens
		} else {
			total += tokenutil.Estimate(m.Content)
		}
	}
	return total
}

// pendingLine renders the not-yet-persisted user input as the final turn.
func pendingLine(userInput string) string {
	if userInput == "" {
		return ""
	}
	return "user: " + userInput + "\n"
}

func renderMessages(msgs []persistence.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

// bound caps s at maxContextBytes with a trailing truncation marker.
func bound(s string) string {
	if len(s) <= maxContextBytes {
		return s
	}
	keep := maxContextBytes - len(truncationMarker)
	return s[:keep] + truncationMarker
}
