package program

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pulsecoach/backend/internal/ai"
)

type fakeProvider struct {
	generateFn func(req ai.GenerationRequest) (string, error)
	chatFn     func(messages []ai.Message) (string, error)
}

func (f *fakeProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	if f.chatFn == nil {
		return "", errors.New("chat not scripted")
	}
	return f.chatFn(messages)
}

func (f *fakeProvider) Generate(ctx context.Context, req ai.GenerationRequest) (string, error) {
	if f.generateFn == nil {
		return "", errors.New("generate not scripted")
	}
	return f.generateFn(req)
}

func planJSON(t *testing.T, start string, n int) string {
	t.Helper()
	days := make([]map[string]any, n)
	for i := range days {
		days[i] = map[string]any{
			"title":  "Session",
			"active": true,
			"notes":  "easy pace",
			"blocks": []string{fmt.Sprintf("- Workout %d", i+1)},
		}
	}
	b, err := json.Marshal(map[string]any{
		"metadata": map[string]any{
			"plan_type":             "Training",
			"cadence_days_per_week": 3,
			"rationale":             "progressive overload",
			"start_date":            start,
		},
		"days": days,
	})
	if err != nil {
		t.Fatalf("marshal plan: %v", err)
	}
	return string(b)
}

func TestGenerateDays_TruncatesOverProduction(t *testing.T) {
	prov := &fakeProvider{generateFn: func(req ai.GenerationRequest) (string, error) {
		return planJSON(t, "2025-01-06", 10), nil
	}}
	g := NewGenerator(prov, zap.NewNop())

	plan := g.GenerateDays(context.Background(), "Training", 1, "plan please", Hints{StartDate: "2025-01-06"})
	if len(plan.Days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(plan.Days))
	}
}

func TestGenerateDays_AcceptsUnderProduction(t *testing.T) {
	prov := &fakeProvider{generateFn: func(req ai.GenerationRequest) (string, error) {
		return planJSON(t, "2025-01-06", 5), nil
	}}
	g := NewGenerator(prov, zap.NewNop())

	plan := g.GenerateDays(context.Background(), "Training", 2, "plan please", Hints{StartDate: "2025-01-06"})
	if len(plan.Days) != 5 {
		t.Fatalf("expected 5 days as generated, got %d", len(plan.Days))
	}
}

func TestGenerateDays_ParseFailureYieldsMetadataOnly(t *testing.T) {
	prov := &fakeProvider{generateFn: func(req ai.GenerationRequest) (string, error) {
		return "sorry, I can't do that", nil
	}}
	g := NewGenerator(prov, zap.NewNop())

	plan := g.GenerateDays(context.Background(), "Training", 4, "plan", Hints{StartDate: "2025-01-06", DaysPerWeek: 3})
	if len(plan.Days) != 0 {
		t.Fatalf("expected 0 days, got %d", len(plan.Days))
	}
	if plan.Metadata.PlanType != "Training" {
		t.Fatalf("unexpected plan_type %q", plan.Metadata.PlanType)
	}
	if plan.Metadata.CadenceDaysPerWeek != 3 {
		t.Fatalf("unexpected cadence %d", plan.Metadata.CadenceDaysPerWeek)
	}
	if plan.Metadata.StartDate != "2025-01-06" {
		t.Fatalf("unexpected start_date %q", plan.Metadata.StartDate)
	}
}

func TestGenerateDays_TransportFailureYieldsMetadataOnly(t *testing.T) {
	prov := &fakeProvider{generateFn: func(req ai.GenerationRequest) (string, error) {
		return "", errors.New("connection refused")
	}}
	g := NewGenerator(prov, zap.NewNop())

	plan := g.GenerateDays(context.Background(), "Sleep", 2, "plan", Hints{})
	if len(plan.Days) != 0 {
		t.Fatalf("expected 0 days, got %d", len(plan.Days))
	}
}

func TestGenerateDays_WeeksClamped(t *testing.T) {
	var gotInstructions string
	prov := &fakeProvider{generateFn: func(req ai.GenerationRequest) (string, error) {
		gotInstructions = req.Instructions
		return planJSON(t, "2025-01-06", 400), nil
	}}
	g := NewGenerator(prov, zap.NewNop())

	plan := g.GenerateDays(context.Background(), "Training", 100, "plan", Hints{StartDate: "2025-01-06"})
	if len(plan.Days) != 52*7 {
		t.Fatalf("expected %d days after clamp, got %d", 52*7, len(plan.Days))
	}
	if gotInstructions == "" {
		t.Fatal("provider not called")
	}
}

func TestCoerceDay_CanonicalShape(t *testing.T) {
	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'x'
	}
	rd := rawDay{
		Title:  "Push day",
		Blocks: []any{"- Bench 5x5", 42, map[string]any{"kind": "exercise"}, string(long)},
	}
	start := mustDate(t, "2025-01-06") // Monday

	d := coerceDay(rd, start, 1)

	if !d.Active {
		t.Fatal("active should default true")
	}
	if d.Notes != "" {
		t.Fatalf("notes should default empty, got %q", d.Notes)
	}
	if len(d.Blocks) != 2 {
		t.Fatalf("non-string blocks should drop, got %d blocks", len(d.Blocks))
	}
	if len(d.Blocks[1]) != maxBlockChars {
		t.Fatalf("block not truncated, len=%d", len(d.Blocks[1]))
	}
	if d.Title != "Tuesday: Push day" {
		t.Fatalf("unexpected title %q", d.Title)
	}
	if d.Date != "2025-01-07" {
		t.Fatalf("unexpected date %q", d.Date)
	}
}

func TestCoerceDay_TruncationKeepsValidUTF8(t *testing.T) {
	notes := strings.Repeat("日", 200)
	rd := rawDay{
		Notes:  &notes,
		Blocks: []any{strings.Repeat("é", 3000)},
	}

	d := coerceDay(rd, mustDate(t, "2025-01-06"), 0)

	if utf8.RuneCountInString(d.Notes) != maxNoteChars || !utf8.ValidString(d.Notes) {
		t.Fatalf("notes truncation broke UTF-8: %d runes", utf8.RuneCountInString(d.Notes))
	}
	if utf8.RuneCountInString(d.Blocks[0]) != maxBlockChars || !utf8.ValidString(d.Blocks[0]) {
		t.Fatalf("block truncation broke UTF-8: %d runes", utf8.RuneCountInString(d.Blocks[0]))
	}
}

func TestCoerceDay_WeekdayPrefixIdempotent(t *testing.T) {
	start := mustDate(t, "2025-01-06")
	rd := rawDay{Title: "Friday: Long run"}

	d := coerceDay(rd, start, 0)
	if d.Title != "Monday: Long run" {
		t.Fatalf("stale weekday prefix should be stripped, got %q", d.Title)
	}

	again := coerceDay(rawDay{Title: d.Title}, start, 0)
	if again.Title != d.Title {
		t.Fatalf("prefixing is not idempotent: %q vs %q", again.Title, d.Title)
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}
