package program

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulsecoach/backend/internal/ai"
	"github.com/pulsecoach/backend/internal/common"
)

const (
	minWeeks      = 1
	maxWeeks      = 52
	maxNoteChars  = 120
	maxBlockChars = 2000
)

type Hints struct {
	StartDate    string // ISO date; empty means today
	DaysPerWeek  int
	Modalities   []string
	TrainingDays []string
}

type GeneratedPlan struct {
	Metadata Metadata `json:"metadata"`
	Days     []Day    `json:"days"`
}

// Generator produces a calendarized day array from the generation model
// and forces it into the canonical day shape. It does not retry and does
// not treat an empty result as an error: callers decide whether zero
// days is fatal.
type Generator struct {
	provider ai.Provider
	log      *zap.Logger
}

func NewGenerator(provider ai.Provider, log *zap.Logger) *Generator {
	return &Generator{provider: provider, log: log}
}

const generatorInstructionsTmpl = `You generate a calendarized %s plan.
Produce %d weeks of days starting %s, aiming for %d active days per week.
Respond with ONLY a JSON object:
{"metadata": {"plan_type": string, "cadence_days_per_week": int, "rationale": string, "start_date": "YYYY-MM-DD"},
 "days": [{"title": string, "active": bool, "notes": "max 120 chars", "blocks": [string], "intensity": string, "tags": [string], "date": "YYYY-MM-DD"}]}
Each entry in "blocks" must be a self-contained plain markdown fragment
(a string, max 2000 chars). Never emit nested objects inside "blocks"
and never emit a field named "kind" anywhere.`

// GenerateDays clamps weeks to [1,52] and the days-per-week hint to
// [1,7], asks the model for weeks*7 days, and reconciles the output:
// over-production is truncated, under-production is accepted as-is, and
// a transport or parse failure yields a metadata-only result with no
// days.
func (g *Generator) GenerateDays(ctx context.Context, planType string, weeks int, requestText string, hints Hints) GeneratedPlan {
	if weeks < minWeeks {
		weeks = minWeeks
	}
	if weeks > maxWeeks {
		weeks = maxWeeks
	}
	dpw := hints.DaysPerWeek
	if dpw < 1 {
		dpw = 1
	}
	if dpw > 7 {
		dpw = 7
	}

	start := TodayUTC()
	if hints.StartDate != "" {
		if d, err := ParseDate(hints.StartDate); err == nil {
			start = d
		}
	}
	startISO := FormatDate(start)

	meta := Metadata{
		PlanType:           planType,
		CadenceDaysPerWeek: dpw,
		StartDate:          startISO,
	}
	empty := GeneratedPlan{Metadata: meta}

	input := requestText
	if len(hints.Modalities) > 0 {
		input += "\nModalities: " + strings.Join(hints.Modalities, ", ")
	}
	if len(hints.TrainingDays) > 0 {
		input += "\nPreferred days: " + strings.Join(hints.TrainingDays, ", ")
	}

	raw, err := g.provider.Generate(ctx, ai.GenerationRequest{
		Instructions: fmt.Sprintf(generatorInstructionsTmpl, planType, weeks, startISO, dpw),
		Input:        input,
		Temperature:  0.3,
		MaxTokens:    8000,
		JSONOnly:     true,
	})
	if err != nil {
		g.log.Warn("day generation call failed", zap.String("plan_type", planType), zap.Error(err))
		return empty
	}

	var decoded struct {
		Metadata struct {
			PlanType           string `json:"plan_type"`
			CadenceDaysPerWeek int    `json:"cadence_days_per_week"`
			Rationale          string `json:"rationale"`
			StartDate          string `json:"start_date"`
		} `json:"metadata"`
		Days []rawDay `json:"days"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &decoded); err != nil {
		g.log.Warn("day generation output unparseable", zap.String("plan_type", planType), zap.Error(err))
		return empty
	}

	if decoded.Metadata.Rationale != "" {
		meta.Rationale = decoded.Metadata.Rationale
	}

	target := weeks * 7
	rawDays := decoded.Days
	if len(rawDays) > target {
		rawDays = rawDays[:target]
	}

	days := make([]Day, 0, len(rawDays))
	for i, rd := range rawDays {
		days = append(days, coerceDay(rd, start, i))
	}

	return GeneratedPlan{Metadata: meta, Days: days}
}

type rawDay struct {
	Title         string          `json:"title"`
	Active        *bool           `json:"active"`
	Notes         *string         `json:"notes"`
	Blocks        []any           `json:"blocks"`
	Intensity     string          `json:"intensity"`
	Tags          []string        `json:"tags"`
	DaysFromToday *int            `json:"days_from_today"`
	Date          string          `json:"date"`
	Schedule      json.RawMessage `json:"schedule"`
}

// coerceDay forces a model-produced day into the canonical shape:
// active defaults true, notes defaults empty, blocks keep string entries
// only (truncated), and the title gets an idempotent weekday prefix
// derived from the start date, UTC calendar.
func coerceDay(rd rawDay, start time.Time, index int) Day {
	d := Day{
		Active:        true,
		Notes:         "",
		Blocks:        []string{},
		Intensity:     rd.Intensity,
		Tags:          rd.Tags,
		DaysFromToday: index,
		Date:          FormatDate(start.AddDate(0, 0, index)),
		Schedule:      rd.Schedule,
	}
	if rd.Active != nil {
		d.Active = *rd.Active
	}
	if rd.Notes != nil {
		d.Notes = common.TruncateRunes(*rd.Notes, maxNoteChars)
	}
	for _, b := range rd.Blocks {
		s, ok := b.(string)
		if !ok {
			continue
		}
		d.Blocks = append(d.Blocks, common.TruncateRunes(s, maxBlockChars))
	}
	if rd.DaysFromToday != nil {
		d.DaysFromToday = *rd.DaysFromToday
	}
	if rd.Date != "" {
		if _, err := ParseDate(rd.Date); err == nil {
			d.Date = rd.Date
		}
	}
	if rd.Title != "" {
		weekday := start.UTC().AddDate(0, 0, index).Weekday().String()
		d.Title = weekday + ": " + stripWeekdayPrefix(rd.Title)
	}
	return d
}

var weekdayPrefixRe = regexp.MustCompile(`^(Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday):\s*`)

func stripWeekdayPrefix(title string) string {
	return weekdayPrefixRe.ReplaceAllString(strings.TrimSpace(title), "")
}
