// Package classify labels chat messages for importance and topical
// routing. Classification degrades through three layers: model call,
// one retried model call, then a deterministic keyword heuristic. The
// package never returns an error and never panics past its boundary.
package classify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulsecoach/backend/internal/agent"
	"github.com/pulsecoach/backend/internal/ai"
	"github.com/pulsecoach/backend/internal/common"
)

const (
	maxInputChars  = 2000
	maxReasonChars = 120
	callTimeout    = 30 * time.Second
)

// FallbackReason marks results produced by the heuristic path so callers
// can distinguish them from model-derived classification.
const FallbackReason = "fallback"

type Result struct {
	Important bool           `json:"important"`
	Agent     agent.Category `json:"agent_type"`
	Reason    string         `json:"reason"`
}

type Classifier struct {
	provider   ai.Provider
	log        *zap.Logger
	retryDelay time.Duration
}

func New(provider ai.Provider, log *zap.Logger) *Classifier {
	return &Classifier{provider: provider, log: log, retryDelay: 300 * time.Millisecond}
}

const instructions = `You classify a single message sent by a user to their wellness coach.
Decide whether the message is important for coaching (injuries, health changes,
schedule or plan changes, deadlines, adherence problems) and which coaching
domain it belongs to.
Respond with ONLY a JSON object:
{"important": bool, "agent_type": "Training"|"Nutrition"|"Sleep"|"Clinical"|"Other", "reason": "short explanation, max 120 chars"}`

// Classify labels text. It is pure over its input; persistence of the
// result is the caller's concern.
func (c *Classifier) Classify(ctx context.Context, text string) Result {
	text = common.TruncateRunes(text, maxInputChars)

	res, err := c.callModel(ctx, text)
	if err != nil {
		c.log.Warn("classification call failed, retrying once", zap.Error(err))
		time.Sleep(c.retryDelay)
		res, err = c.callModel(ctx, text)
	}
	if err == nil {
		return res
	}

	c.log.Warn("classification retry failed, using heuristic", zap.Error(err))
	return c.heuristic(text)
}

func (c *Classifier) callModel(ctx context.Context, text string) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	raw, err := c.provider.Generate(cctx, ai.GenerationRequest{
		Instructions: instructions,
		Input:        text,
		Temperature:  0,
		MaxTokens:    200,
		JSONOnly:     true,
	})
	if err != nil {
		return Result{}, err
	}

	var decoded struct {
		Important bool   `json:"important"`
		AgentType string `json:"agent_type"`
		Reason    string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &decoded); err != nil {
		return Result{}, err
	}

	reason := common.TruncateRunes(decoded.Reason, maxReasonChars)
	return Result{
		Important: decoded.Important,
		Agent:     agent.Parse(decoded.AgentType),
		Reason:    reason,
	}, nil
}

// heuristic is the last-resort classification. It recovers its own
// panics and falls back to the neutral result, so Classify can uphold
// its never-throws contract even on malformed input.
func (c *Classifier) heuristic(text string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("heuristic classification panicked", zap.Any("panic", r))
			res = Result{Important: false, Agent: agent.Other, Reason: FallbackReason}
		}
	}()

	lower := strings.ToLower(text)
	important := planChangeRe.MatchString(lower) ||
		circumstanceRe.MatchString(lower) ||
		healthRe.MatchString(lower) ||
		deadlineRe.MatchString(lower) ||
		adherenceRe.MatchString(lower)

	return Result{
		Important: important,
		Agent:     heuristicAgent(lower),
		Reason:    FallbackReason,
	}
}
