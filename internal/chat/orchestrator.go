package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/pulsecoach/backend/internal/agent"
	"github.com/pulsecoach/backend/internal/ai"
	"github.com/pulsecoach/backend/internal/classify"
	"github.com/pulsecoach/backend/internal/common"
	"github.com/pulsecoach/backend/internal/intent"
	"github.com/pulsecoach/backend/internal/program"
)

const (
	// Program side effects require this much intent confidence.
	dispatchThreshold = 0.6

	importantLookback = 30 * 24 * time.Hour
	importantCap      = 5
	topicFetchCap     = 10
	topicKeep         = 5

	backgroundTimeout = 15 * time.Second
)

// JobPublisher enqueues a program job id for the worker.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

// ReplyMeta is returned alongside the coach reply so the client can
// render importance/intent affordances without waiting for the
// background classification patch.
type ReplyMeta struct {
	Important         bool    `json:"important"`
	Agent             string  `json:"agent"`
	IntentAction      string  `json:"intent_action"`
	IntentConfidence  float64 `json:"intent_confidence"`
	ProgramDispatched bool    `json:"program_dispatched"`
}

type Orchestrator struct {
	repo       *Repo
	provider   ai.Provider
	classifier *classify.Classifier
	detector   *intent.Detector
	programs   *program.Service
	jobs       JobPublisher // may be nil
	httpClient *http.Client // may be nil; disables the change callback
	selfBase   string       // empty disables the change callback
	coachID    uint64
	window     int
	log        *zap.Logger
}

func NewOrchestrator(
	repo *Repo,
	provider ai.Provider,
	classifier *classify.Classifier,
	detector *intent.Detector,
	programs *program.Service,
	jobs JobPublisher,
	httpClient *http.Client,
	selfBase string,
	coachID uint64,
	contextWindow int,
	log *zap.Logger,
) *Orchestrator {
	if contextWindow <= 0 || contextWindow > 100 {
		contextWindow = 20
	}
	return &Orchestrator{
		repo:       repo,
		provider:   provider,
		classifier: classifier,
		detector:   detector,
		programs:   programs,
		jobs:       jobs,
		httpClient: httpClient,
		selfBase:   selfBase,
		coachID:    coachID,
		window:     contextWindow,
		log:        log,
	}
}

// HandleMessage runs the full per-message pipeline. Only persisting the
// inbound message, the reply-model call, and persisting the reply can
// fail the request; every other stage degrades or runs in the
// background. The caller gets a reply even when classification, intent
// detection and program dispatch all fail.
func (o *Orchestrator) HandleMessage(ctx context.Context, humanID uint64, text string) (string, ReplyMeta, error) {
	// 1) persist inbound; the reply cannot be built on unpersisted input
	inbound := &Message{SenderID: humanID, ReceiverID: o.coachID, Content: text}
	if err := o.repo.InsertMessage(ctx, inbound); err != nil {
		return "", ReplyMeta{}, fmt.Errorf("persist inbound: %w", err)
	}

	// 2) fan out classification, context fetch and intent detection;
	// join on all three, order between them is irrelevant
	var (
		cls  classify.Result
		it   intent.Result
		base []Message
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cls = o.classifier.Classify(gctx, text)
		return nil
	})
	g.Go(func() error {
		it = o.detector.Detect(gctx, text, time.Now())
		return nil
	})
	g.Go(func() error {
		fetched, err := o.fetchContext(gctx, humanID)
		if err != nil {
			o.log.Warn("context fetch failed", zap.Uint64("human_id", humanID), zap.Error(err))
			return nil
		}
		base = fetched
		return nil
	})
	_ = g.Wait()

	// 3) patch the inbound row; failure is logged, not retried
	go o.patchClassification(inbound.ID, cls)

	// 4) topic-scoped slice, skipped for the catch-all category
	var topical []Message
	if cls.Agent != agent.Other {
		topical = o.topicSlice(ctx, humanID, string(cls.Agent), base)
	}

	// 5) program side effect, decoupled from the reply path
	resolved := resolveAgent(it.Agent, cls.Agent)
	dispatched := false
	if it.Confidence >= dispatchThreshold && resolved.ProgramCapable() {
		switch it.Action {
		case intent.ActionCreate:
			dispatched = true
			go o.dispatchCreate(humanID, text, resolved, it)
		case intent.ActionChange:
			dispatched = true
			go o.dispatchChange(humanID, text, resolved, it)
		}
	}

	meta := ReplyMeta{
		Important:         cls.Important,
		Agent:             string(resolved),
		IntentAction:      string(it.Action),
		IntentConfidence:  it.Confidence,
		ProgramDispatched: dispatched,
	}

	// 6-7) build context, call the reply model
	msgs := o.buildReplyContext(cls.Agent, topical, base)
	reply, err := o.provider.Chat(ctx, msgs)
	if err != nil {
		return "", meta, fmt.Errorf("reply generation: %w", err)
	}

	replyMsg := &Message{SenderID: o.coachID, ReceiverID: humanID, Content: reply}
	if err := o.repo.InsertMessage(ctx, replyMsg); err != nil {
		return "", meta, fmt.Errorf("persist reply: %w", err)
	}

	// 9) classify the reply after the response is on its way
	go o.reclassifyReply(replyMsg.ID, reply)

	return reply, meta, nil
}

// fetchContext returns the base model context in chronological order:
// the recent window plus importance-boosted older turns within the
// lookback, deduplicated against the recent set.
func (o *Orchestrator) fetchContext(ctx context.Context, humanID uint64) ([]Message, error) {
	recentDesc, err := o.repo.ListRecentDesc(ctx, humanID, o.coachID, o.window)
	if err != nil {
		return nil, err
	}

	recent := make([]Message, 0, len(recentDesc))
	for i := len(recentDesc) - 1; i >= 0; i-- {
		recent = append(recent, recentDesc[i])
	}

	oldest := time.Now()
	if len(recent) > 0 {
		oldest = recent[0].CreatedAt
	}

	boosted, err := o.repo.ListImportantBetween(ctx, humanID, o.coachID,
		time.Now().Add(-importantLookback), oldest, importantCap)
	if err != nil {
		o.log.Warn("important-history fetch failed", zap.Error(err))
		return recent, nil
	}

	seen := make(map[uint64]bool, len(recent))
	for _, m := range recent {
		seen[m.ID] = true
	}
	var merged []Message
	for i := len(boosted) - 1; i >= 0; i-- {
		if !seen[boosted[i].ID] {
			merged = append(merged, boosted[i])
		}
	}
	return append(merged, recent...), nil
}

// topicSlice fetches agent-labeled history older than the base context,
// deduplicated against it, chronological, trimmed to the newest few.
// Failures degrade to no slice.
func (o *Orchestrator) topicSlice(ctx context.Context, humanID uint64, agentType string, base []Message) []Message {
	before := time.Now()
	if len(base) > 0 {
		before = base[0].CreatedAt
	}

	msgs, err := o.repo.ListTopicBefore(ctx, humanID, o.coachID, agentType, before, topicFetchCap)
	if err != nil {
		o.log.Warn("topic-history fetch failed", zap.String("agent", agentType), zap.Error(err))
		return nil
	}

	seen := make(map[uint64]bool, len(base))
	for _, m := range base {
		seen[m.ID] = true
	}
	var out []Message
	for _, m := range msgs {
		if !seen[m.ID] {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > topicKeep {
		out = out[len(out)-topicKeep:]
	}
	return out
}

// resolveAgent prefers the intent detector's agent when program-capable,
// then the classifier's, else Other (which disables side effects).
func resolveAgent(intentAgent, classifierAgent agent.Category) agent.Category {
	if intentAgent.ProgramCapable() {
		return intentAgent
	}
	if classifierAgent.ProgramCapable() {
		return classifierAgent
	}
	return agent.Other
}

func (o *Orchestrator) buildReplyContext(topic agent.Category, topical, base []Message) []ai.Message {
	system := systemPrompt
	switch topic {
	case agent.Training:
		system += "\n\n" + trainingGuidance
	case agent.Other:
		system += "\n\n" + outOfScopeGuidance
	}

	msgs := make([]ai.Message, 0, 1+len(topical)+len(base))
	msgs = append(msgs, ai.Message{Role: "system", Content: system})
	for _, m := range topical {
		msgs = append(msgs, o.toProviderMessage(m))
	}
	for _, m := range base {
		msgs = append(msgs, o.toProviderMessage(m))
	}
	return msgs
}

func (o *Orchestrator) toProviderMessage(m Message) ai.Message {
	role := "user"
	if m.SenderID == o.coachID {
		role = "assistant"
	}
	return ai.Message{Role: role, Content: m.Content}
}

func (o *Orchestrator) patchClassification(id uint64, cls classify.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()
	if err := o.repo.PatchClassification(ctx, id, cls.Important, string(cls.Agent)); err != nil {
		o.log.Warn("classification patch failed", zap.Uint64("message_id", id), zap.Error(err))
	}
}

func (o *Orchestrator) reclassifyReply(id uint64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout+classifyBudget)
	defer cancel()
	cls := o.classifier.Classify(ctx, text)
	if err := o.repo.PatchClassification(ctx, id, cls.Important, string(cls.Agent)); err != nil {
		o.log.Warn("reply classification patch failed", zap.Uint64("message_id", id), zap.Error(err))
	}
}

const classifyBudget = 60 * time.Second

// dispatchCreate records a create job and hands it to the worker. It
// runs detached from the request; failures are logged, never surfaced.
func (o *Orchestrator) dispatchCreate(humanID uint64, text string, cat agent.Category, it intent.Result) {
	if o.jobs == nil {
		o.log.Debug("program create skipped, no job publisher")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	jobID, err := common.NewULID()
	if err != nil {
		o.log.Error("program create dispatch failed", zap.Error(err))
		return
	}
	job := &program.Job{
		ID:     jobID,
		UserID: humanID,
		Kind:   program.JobCreate,
		Status: program.JobQueued,
		Payload: program.JobPayload{
			RequestText:   text,
			Agent:         string(cat),
			StartDate:     it.Parsed.StartDate,
			DurationWeeks: it.Parsed.DurationWeeks,
			DaysPerWeek:   it.Parsed.DaysPerWeek,
			Modalities:    it.Parsed.Modalities,
			TrainingDays:  it.Parsed.TrainingDays,
		},
	}
	if err := o.programs.EnqueueJob(ctx, job); err != nil {
		o.log.Error("program job insert failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if err := o.jobs.PublishJob(ctx, jobID); err != nil {
		o.log.Error("program job publish failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// dispatchChange revises the user's current program of the resolved
// type, carrying the message text and every parsed field so the revised
// segment is regenerated from what the user just asked for, not the
// original creation request. When a self base URL is configured the
// change goes through the program-change endpoint; otherwise it is
// queued for the worker, and with neither configured it is skipped
// silently.
func (o *Orchestrator) dispatchChange(humanID uint64, text string, cat agent.Category, it intent.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	p, err := o.programs.LatestForUserType(ctx, humanID, cat.ProgramType())
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			o.log.Warn("program lookup for change failed", zap.Error(err))
		}
		return
	}

	effective := it.Parsed.StartDate
	if effective == "" {
		effective = time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	}

	if o.selfBase != "" && o.httpClient != nil {
		o.changeViaCallback(ctx, p.ProgramID, effective, text, it.Parsed)
		return
	}

	if o.jobs == nil {
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		o.log.Error("program change dispatch failed", zap.Error(err))
		return
	}
	pid := p.ProgramID
	job := &program.Job{
		ID:        jobID,
		UserID:    humanID,
		Kind:      program.JobChange,
		ProgramID: &pid,
		Status:    program.JobQueued,
		Payload: program.JobPayload{
			RequestText:    text,
			Agent:          string(cat),
			EffectiveDate:  effective,
			NewPeriodWeeks: it.Parsed.DurationWeeks,
			DaysPerWeek:    it.Parsed.DaysPerWeek,
			Modalities:     it.Parsed.Modalities,
			TrainingDays:   it.Parsed.TrainingDays,
		},
	}
	if err := o.programs.EnqueueJob(ctx, job); err != nil {
		o.log.Error("program job insert failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if err := o.jobs.PublishJob(ctx, jobID); err != nil {
		o.log.Error("program job publish failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (o *Orchestrator) changeViaCallback(ctx context.Context, programID, effective, text string, parsed intent.Params) {
	payload := map[string]any{
		"effective_date":   effective,
		"new_period_weeks": parsed.DurationWeeks,
	}
	if text != "" {
		payload["request_text"] = text
	}
	if patch := changeSpecPatch(text, parsed); patch != nil {
		payload["spec_patch"] = patch
	}
	body, err := json.Marshal(payload)
	if err != nil {
		o.log.Error("change callback marshal failed", zap.Error(err))
		return
	}
	url := fmt.Sprintf("%s/programs/%s/change", o.selfBase, programID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		o.log.Error("change callback request failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.httpClient.Do(req)
	if err != nil {
		o.log.Warn("change callback failed", zap.String("program_id", programID), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		o.log.Warn("change callback rejected",
			zap.String("program_id", programID), zap.Int("status", resp.StatusCode))
	}
}

// changeSpecPatch maps a change request onto the program spec so the
// regenerated segment reflects the new cadence, modalities and wording.
// Nil when the message carried nothing to patch.
func changeSpecPatch(text string, parsed intent.Params) *program.Spec {
	if text == "" && parsed.DaysPerWeek == 0 &&
		len(parsed.Modalities) == 0 && len(parsed.TrainingDays) == 0 {
		return nil
	}
	return &program.Spec{
		RawRequest:   text,
		DaysPerWeek:  parsed.DaysPerWeek,
		Modalities:   parsed.Modalities,
		TrainingDays: parsed.TrainingDays,
	}
}
