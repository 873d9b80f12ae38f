package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pulsecoach/backend/internal/ai"
	"github.com/pulsecoach/backend/internal/program"
)

type cannedProvider struct {
	lastInput string
	days      int
	start     string
}

func (p *cannedProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	return "", nil
}

func (p *cannedProvider) Generate(ctx context.Context, req ai.GenerationRequest) (string, error) {
	p.lastInput = req.Input
	days := make([]map[string]any, p.days)
	for i := range days {
		days[i] = map[string]any{"title": "Session", "active": true, "blocks": []string{"- Work"}}
	}
	b, err := json.Marshal(map[string]any{
		"metadata": map[string]any{"plan_type": "Training", "start_date": p.start},
		"days":     days,
	})
	return string(b), err
}

func openWorkerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&program.Program{}, &program.Period{}, &program.Job{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestHandleJob_ChangeAppliesPayloadSpec(t *testing.T) {
	db := openWorkerDB(t)
	log := zap.NewNop()
	prov := &cannedProvider{days: 28, start: "2025-01-06"}
	repo := program.NewRepo(db)
	svc := program.NewService(repo, program.NewGenerator(prov, log), nil, time.Minute, log)
	ctx := context.Background()

	p, _, err := svc.Create(ctx, program.CreateRequest{
		UserID:            7,
		Type:              "training.v1",
		StartDate:         "2025-01-06",
		PeriodLengthWeeks: 4,
		Spec:              program.Spec{RawRequest: "4 days strength", DaysPerWeek: 4, SpecVersion: 1},
	})
	if err != nil {
		t.Fatalf("seed program: %v", err)
	}

	prov.days = 14
	prov.start = "2025-01-20"
	text := "drop my plan to 2 days a week, my knee hurts"
	pid := p.ProgramID
	job := &program.Job{
		ID:        "01JWORKERCHANGESPECPATCHXX",
		UserID:    7,
		Kind:      program.JobChange,
		ProgramID: &pid,
		Status:    program.JobQueued,
		Payload: program.JobPayload{
			RequestText:    text,
			Agent:          "Training",
			EffectiveDate:  "2025-01-20",
			NewPeriodWeeks: 2,
			DaysPerWeek:    2,
		},
	}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := handleJob(ctx, svc, repo, job.ID); err != nil {
		t.Fatalf("handleJob: %v", err)
	}

	done, err := repo.GetJobByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if done.Status != program.JobSucceeded {
		t.Fatalf("job status = %q, error = %v", done.Status, done.Error)
	}

	// The regeneration prompt must be built from the change message.
	if !strings.HasPrefix(prov.lastInput, text) {
		t.Fatalf("generator input = %q, want the change request", prov.lastInput)
	}

	updated, err := repo.GetByProgramID(ctx, p.ProgramID)
	if err != nil {
		t.Fatalf("reload program: %v", err)
	}
	if updated.Spec.DaysPerWeek != 2 {
		t.Fatalf("spec days_per_week = %d, want the requested cadence", updated.Spec.DaysPerWeek)
	}
	if updated.Spec.RawRequest != text {
		t.Fatalf("spec raw_request = %q, want the change request", updated.Spec.RawRequest)
	}
}

func TestHandleJob_CreateBuildsProgramFromPayload(t *testing.T) {
	db := openWorkerDB(t)
	log := zap.NewNop()
	prov := &cannedProvider{days: 14, start: "2025-01-06"}
	repo := program.NewRepo(db)
	svc := program.NewService(repo, program.NewGenerator(prov, log), nil, time.Minute, log)
	ctx := context.Background()

	job := &program.Job{
		ID:     "01JWORKERCREATEFROMCHATXXX",
		UserID: 7,
		Kind:   program.JobCreate,
		Status: program.JobQueued,
		Payload: program.JobPayload{
			RequestText:   "3x/week strength for 2 weeks",
			Agent:         "Training",
			StartDate:     "2025-01-06",
			DurationWeeks: 2,
			DaysPerWeek:   3,
		},
	}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := handleJob(ctx, svc, repo, job.ID); err != nil {
		t.Fatalf("handleJob: %v", err)
	}

	done, err := repo.GetJobByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if done.Status != program.JobSucceeded || done.ResultProgramID == nil {
		t.Fatalf("job = %+v", done)
	}

	p, err := repo.GetByProgramID(ctx, *done.ResultProgramID)
	if err != nil {
		t.Fatalf("load created program: %v", err)
	}
	if p.Type != "training.v1" || p.Spec.Source != "chat" {
		t.Fatalf("program = %+v", p)
	}
	if p.Spec.RawRequest != job.Payload.RequestText {
		t.Fatalf("spec raw_request = %q", p.Spec.RawRequest)
	}
}
