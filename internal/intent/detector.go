// Package intent infers, from a single chat message, whether the user is
// requesting creation or modification of a structured program, along with
// the structured parameters of the request.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulsecoach/backend/internal/agent"
	"github.com/pulsecoach/backend/internal/ai"
)

const callTimeout = 30 * time.Second

type Action string

const (
	ActionCreate Action = "create"
	ActionChange Action = "change"
	ActionNone   Action = "none"
)

type Params struct {
	StartDate     string   `json:"start_date,omitempty"`
	DurationWeeks int      `json:"duration_weeks,omitempty"`
	DaysPerWeek   int      `json:"days_per_week,omitempty"`
	Modalities    []string `json:"modalities,omitempty"`
	TrainingDays  []string `json:"training_days,omitempty"`
}

type Result struct {
	ShouldCreate bool           `json:"should_create"`
	Confidence   float64        `json:"confidence"`
	Agent        agent.Category `json:"agent"`
	Action       Action         `json:"action"`
	Parsed       Params         `json:"parsed"`
}

func neutral() Result {
	return Result{ShouldCreate: false, Confidence: 0, Agent: agent.Other, Action: ActionNone}
}

type Detector struct {
	provider ai.Provider
	log      *zap.Logger
}

func New(provider ai.Provider, log *zap.Logger) *Detector {
	return &Detector{provider: provider, log: log}
}

const instructionsTmpl = `You detect whether a message to a wellness coach requests creating or
changing a multi-week program (training, nutrition or sleep).
Today's date is %s. Tomorrow is %s. Resolve relative phrases like
"tomorrow" or "next week" to absolute ISO dates (YYYY-MM-DD); always emit
absolute dates, never relative ones.
Respond with ONLY a JSON object:
{"should_create": bool,
 "confidence": number between 0 and 1,
 "agent": "Training"|"Nutrition"|"Sleep"|"Clinical"|"Other",
 "action": "create"|"change"|"none",
 "start_date": "YYYY-MM-DD" or null,
 "duration_weeks": int or null,
 "days_per_week": int or null,
 "modalities": [string] or null,
 "training_days": ["Mon".."Sun"] or null}`

// Detect never returns an error: malformed or failed model output is
// treated as "no intent".
func (d *Detector) Detect(ctx context.Context, text string, referenceDate time.Time) Result {
	today := referenceDate.UTC().Format("2006-01-02")
	tomorrow := referenceDate.UTC().AddDate(0, 0, 1).Format("2006-01-02")

	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	raw, err := d.provider.Generate(cctx, ai.GenerationRequest{
		Instructions: fmt.Sprintf(instructionsTmpl, today, tomorrow),
		Input:        text,
		Temperature:  0,
		MaxTokens:    300,
		JSONOnly:     true,
	})
	if err != nil {
		d.log.Warn("intent detection call failed", zap.Error(err))
		return neutral()
	}

	var decoded struct {
		ShouldCreate  bool     `json:"should_create"`
		Confidence    float64  `json:"confidence"`
		Agent         string   `json:"agent"`
		Action        string   `json:"action"`
		StartDate     string   `json:"start_date"`
		DurationWeeks int      `json:"duration_weeks"`
		DaysPerWeek   int      `json:"days_per_week"`
		Modalities    []string `json:"modalities"`
		TrainingDays  []string `json:"training_days"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &decoded); err != nil {
		d.log.Warn("intent detection output unparseable", zap.Error(err))
		return neutral()
	}

	conf := decoded.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	action := ActionNone
	switch {
	case strings.EqualFold(decoded.Action, string(ActionChange)):
		action = ActionChange
	case decoded.ShouldCreate:
		action = ActionCreate
	}

	return Result{
		ShouldCreate: decoded.ShouldCreate,
		Confidence:   conf,
		Agent:        agent.Parse(decoded.Agent),
		Action:       action,
		Parsed: Params{
			StartDate:     decoded.StartDate,
			DurationWeeks: decoded.DurationWeeks,
			DaysPerWeek:   decoded.DaysPerWeek,
			Modalities:    decoded.Modalities,
			TrainingDays:  decoded.TrainingDays,
		},
	}
}
