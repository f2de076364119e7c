// Package decider wraps the external decider (LLM or rule) call plus its
// optional best-effort enrichers (spec.md §6, §C).
package decider

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Action is the decider's verdict.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// CallTimeout bounds every external decider call (spec.md §5).
const CallTimeout = 30 * time.Second

// Decider is the single external call contract: Decide(agent_id, prompt,
// system_prompt, max_tokens) -> text|null.
type Decider interface {
	Decide(ctx context.Context, agentID, prompt, systemPrompt string, maxTokens int) (string, error)
}

// InstitutionalDetector is the optional ICT/SMC pattern detector.
type InstitutionalDetector interface {
	Analyze(ctx context.Context, highs, lows, closes []float64) (InstitutionalAnalysis, error)
}

// InstitutionalAnalysis is the detector's structured output.
type InstitutionalAnalysis struct {
	MarketStructure   string
	PatternsDetected  []string
	LiquidityZones    []float64
	Recommendation    string
}

// Enricher is a best-effort, non-blocking sentiment/futures source. A
// failing enricher must never block the decision cycle (spec.md §6).
type Enricher interface {
	Enrich(ctx context.Context, symbol string) (string, error)
}

// Client bounds calls to one in-flight request and enforces the call
// timeout, acting as a belt-and-braces guard on top of whatever rate
// limiting the underlying decider implementation does itself.
type Client struct {
	decider   Decider
	limiter   *rate.Limiter
	inFlight  map[string]bool
}

// NewClient wraps a Decider with a per-agent single-flight guard and a
// one-call-per-second rate limit shared by all agents.
func NewClient(d Decider) *Client {
	return &Client{
		decider:  d,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		inFlight: make(map[string]bool),
	}
}

// Decide calls the wrapped decider with a bounded timeout. If an identical
// agent already has a call in flight, it returns HOLD immediately rather
// than queueing, since a stale decision by the time it resolves would be
// worthless for a 10s tick.
func (c *Client) Decide(ctx context.Context, agentID, prompt, systemPrompt string, maxTokens int) (Action, string, error) {
	if c.inFlight[agentID] {
		return Hold, "decider call already in flight for this agent", nil
	}
	c.inFlight[agentID] = true
	defer delete(c.inFlight, agentID)

	if err := c.limiter.Wait(ctx); err != nil {
		return Hold, "rate limited", nil
	}

	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	text, err := c.decider.Decide(ctx, agentID, prompt, systemPrompt, maxTokens)
	if err != nil {
		return Hold, fmt.Sprintf("decider error: %v", err), nil
	}
	if text == "" {
		return Hold, "decider returned no text", nil
	}

	return ParseAction(text)
}
