package program

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pulsecoach/backend/internal/agent"
	"github.com/pulsecoach/backend/internal/common"
)

// ErrNoDays is the hard failure every caller surfaces when the generator
// comes back empty; empty content is never silently substituted.
var ErrNoDays = errors.New("Generator returned 0 days")

// ErrBadEffectiveDate rejects change requests whose effective date falls
// outside the program's date range (allowing the day right after the
// last period, which extends the program).
var ErrBadEffectiveDate = errors.New("effective_date outside program range")

const defaultPeriodWeeks = 4

// DebounceStore is the best-effort marker store for suppressing
// duplicate program creation. A lookup miss returns ("", nil).
type DebounceStore interface {
	ProgramMarker(ctx context.Context, userID uint64, ptype string) (string, error)
	SetProgramMarker(ctx context.Context, userID uint64, ptype, programID string, ttl time.Duration) error
}

type Service struct {
	repo     *Repo
	gen      *Generator
	debounce DebounceStore // may be nil
	window   time.Duration
	log      *zap.Logger
}

func NewService(repo *Repo, gen *Generator, debounce DebounceStore, window time.Duration, log *zap.Logger) *Service {
	if window <= 0 {
		window = 120 * time.Second
	}
	return &Service{repo: repo, gen: gen, debounce: debounce, window: window, log: log}
}

type CreateRequest struct {
	UserID            uint64
	Type              string // e.g. "training.v1"
	StartDate         string // ISO; empty means today
	PeriodLengthWeeks int    // 0 means default
	Spec              Spec
}

// Create builds a program and its period 0. A duplicate creation request
// for the same user+type within the debounce window returns the existing
// program instead of creating a new one: the redis marker is consulted
// first, then a created-at comparison against the store when redis is
// unavailable. The check is best-effort; a race that creates two
// programs inside the window is accepted.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Program, *Period, error) {
	if req.Type == "" || req.UserID == 0 {
		return nil, nil, errors.New("user_id and type are required")
	}

	if existing := s.debounced(ctx, req.UserID, req.Type); existing != nil {
		periods, err := s.repo.LoadPeriods(ctx, existing.ProgramID)
		if err != nil {
			return nil, nil, err
		}
		var first *Period
		if len(periods) > 0 {
			first = &periods[0]
		}
		return existing, first, nil
	}

	start := TodayUTC()
	if req.StartDate != "" {
		d, err := ParseDate(req.StartDate)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid start_date: %w", err)
		}
		start = d
	}

	weeks := req.PeriodLengthWeeks
	if weeks <= 0 {
		weeks = defaultPeriodWeeks
	}
	if weeks > maxWeeks {
		weeks = maxWeeks
	}

	cat := agent.FromProgramType(req.Type)
	plan := s.gen.GenerateDays(ctx, string(cat), weeks, req.Spec.RawRequest, Hints{
		StartDate:    FormatDate(start),
		DaysPerWeek:  req.Spec.DaysPerWeek,
		Modalities:   req.Spec.Modalities,
		TrainingDays: req.Spec.TrainingDays,
	})
	if len(plan.Days) == 0 {
		return nil, nil, ErrNoDays
	}

	days := NormalizeCadence(plan.Days, start, plan.Metadata.CadenceDaysPerWeek, req.Spec.TrainingDays)

	// The date range is sized to what was actually generated.
	end := start.AddDate(0, 0, len(days)-1)

	status := StatusScheduled
	today := TodayUTC()
	if !today.Before(start) && !today.After(end) {
		status = StatusActive
	}

	programID, err := common.NewULID()
	if err != nil {
		return nil, nil, err
	}

	p := &Program{
		ProgramID:         programID,
		UserID:            req.UserID,
		Type:              req.Type,
		Status:            status,
		StartDate:         start,
		EndDate:           end,
		PeriodLengthWeeks: weeks,
		Spec:              req.Spec,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, nil, err
	}

	period := &Period{
		ProgramID:   programID,
		PeriodIndex: 0,
		StartDate:   start,
		EndDate:     end,
		Payload:     Payload{Metadata: plan.Metadata, Days: days},
	}
	if err := s.repo.InsertPeriod(ctx, period); err != nil {
		return nil, nil, err
	}

	if s.debounce != nil {
		if err := s.debounce.SetProgramMarker(ctx, req.UserID, req.Type, programID, s.window); err != nil {
			s.log.Warn("debounce marker write failed", zap.Error(err))
		}
	}

	return p, period, nil
}

func (s *Service) debounced(ctx context.Context, userID uint64, ptype string) *Program {
	if s.debounce != nil {
		id, err := s.debounce.ProgramMarker(ctx, userID, ptype)
		if err != nil {
			s.log.Warn("debounce marker read failed", zap.Error(err))
		} else if id != "" {
			if p, err := s.repo.GetByProgramID(ctx, id); err == nil {
				return p
			}
		}
	}
	p, err := s.repo.RecentForUserType(ctx, userID, ptype, time.Now().Add(-s.window))
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("debounce store lookup failed", zap.Error(err))
		}
		return nil
	}
	return p
}

// Get loads a program and lazily applies the scheduled->active
// transition the first time "today" falls inside its date range. The
// transition never reverts.
func (s *Service) Get(ctx context.Context, programID string) (*Program, error) {
	p, err := s.repo.GetByProgramID(ctx, programID)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusScheduled {
		today := TodayUTC()
		if !today.Before(truncateToDate(p.StartDate)) && !today.After(truncateToDate(p.EndDate)) {
			if err := s.repo.MarkActive(ctx, p.ProgramID); err != nil {
				s.log.Warn("status activation failed", zap.String("program_id", p.ProgramID), zap.Error(err))
			} else {
				p.Status = StatusActive
			}
		}
	}
	return p, nil
}

func (s *Service) Periods(ctx context.Context, programID string) ([]Period, error) {
	return s.repo.LoadPeriods(ctx, programID)
}

// ResolveDay scans periods for the one whose [start,end] contains date
// and returns the day at the date's offset into that period, or nil when
// no period covers the date or the offset is out of range.
func ResolveDay(periods []Period, date time.Time) *Day {
	date = truncateToDate(date)
	for i := range periods {
		p := &periods[i]
		start := truncateToDate(p.StartDate)
		end := truncateToDate(p.EndDate)
		if date.Before(start) || date.After(end) {
			continue
		}
		offset := daysBetween(start, date)
		if offset < 0 || offset >= len(p.Payload.Days) {
			return nil
		}
		return &p.Payload.Days[offset]
	}
	return nil
}

// Window resolves n consecutive dates starting at start; dates not
// covered by any period yield nil entries.
func Window(periods []Period, start time.Time, n int) []*Day {
	out := make([]*Day, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ResolveDay(periods, start.AddDate(0, 0, i)))
	}
	return out
}

type ChangeRequest struct {
	EffectiveDate  string // ISO, required
	RequestText    string
	NewPeriodWeeks int // 0 means the program's period length
	SpecPatch      *Spec
}

// ApplyChange revises a program from an effective date forward: the
// period overlapping the date is truncated to the segment strictly
// before it, strictly-later periods are deleted, and a freshly generated
// period is appended with the next period index. Indices are never
// recycled. After the splice the program's periods still tile a
// contiguous, non-overlapping date range.
//
// Concurrent changes to the same program are not transaction-protected;
// the last writer wins and a torn interleaving can break contiguity.
func (s *Service) ApplyChange(ctx context.Context, programID string, req ChangeRequest) (*Period, error) {
	if req.EffectiveDate == "" {
		return nil, errors.New("effective_date is required")
	}
	eff, err := ParseDate(req.EffectiveDate)
	if err != nil {
		return nil, fmt.Errorf("invalid effective_date: %w", err)
	}
	eff = truncateToDate(eff)

	p, err := s.repo.GetByProgramID(ctx, programID)
	if err != nil {
		return nil, err
	}

	periods, err := s.repo.LoadPeriods(ctx, programID)
	if err != nil {
		return nil, err
	}
	if len(periods) == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	firstStart := truncateToDate(periods[0].StartDate)
	lastEnd := truncateToDate(periods[len(periods)-1].EndDate)
	if eff.Before(firstStart) || eff.After(lastEnd.AddDate(0, 0, 1)) {
		return nil, ErrBadEffectiveDate
	}

	spec := p.Spec
	if req.SpecPatch != nil {
		spec = mergeSpec(spec, *req.SpecPatch)
	}

	weeks := req.NewPeriodWeeks
	if weeks <= 0 {
		weeks = p.PeriodLengthWeeks
	}

	requestText := req.RequestText
	if requestText == "" {
		requestText = spec.RawRequest
	}

	cat := agent.FromProgramType(p.Type)
	plan := s.gen.GenerateDays(ctx, string(cat), weeks, requestText, Hints{
		StartDate:    FormatDate(eff),
		DaysPerWeek:  spec.DaysPerWeek,
		Modalities:   spec.Modalities,
		TrainingDays: spec.TrainingDays,
	})
	if len(plan.Days) == 0 {
		return nil, ErrNoDays
	}
	days := NormalizeCadence(plan.Days, eff, plan.Metadata.CadenceDaysPerWeek, spec.TrainingDays)

	// Max index before any deletion, so deleted indices are never reused.
	maxIndex := 0
	for _, pd := range periods {
		if pd.PeriodIndex > maxIndex {
			maxIndex = pd.PeriodIndex
		}
	}

	for i := range periods {
		pd := &periods[i]
		start := truncateToDate(pd.StartDate)
		end := truncateToDate(pd.EndDate)
		if eff.Before(start) || eff.After(end) {
			continue
		}
		keep := daysBetween(start, eff)
		if keep <= 0 {
			// The overlapping period starts on the effective date; the
			// trim would leave it empty, so it is replaced outright.
			if err := s.repo.DeletePeriod(ctx, pd.ID); err != nil {
				return nil, err
			}
			break
		}
		if keep < len(pd.Payload.Days) {
			pd.Payload.Days = pd.Payload.Days[:keep]
		}
		pd.EndDate = eff.AddDate(0, 0, -1)
		if err := s.repo.SavePeriod(ctx, pd); err != nil {
			return nil, err
		}
		break
	}

	if err := s.repo.DeletePeriodsStartingAfter(ctx, programID, eff); err != nil {
		return nil, err
	}

	newPeriod := &Period{
		ProgramID:   programID,
		PeriodIndex: maxIndex + 1,
		StartDate:   eff,
		EndDate:     eff.AddDate(0, 0, len(days)-1),
		Payload:     Payload{Metadata: plan.Metadata, Days: days},
	}
	if err := s.repo.InsertPeriod(ctx, newPeriod); err != nil {
		return nil, err
	}

	p.EndDate = newPeriod.EndDate
	if req.SpecPatch != nil {
		p.Spec = spec
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}

	return newPeriod, nil
}

// ReplacePeriodDays swaps the day array of one period, used by the
// manual period PATCH. The replacement must keep the program's periods
// tiling: only the chronologically last period may change length.
func (s *Service) ReplacePeriodDays(ctx context.Context, programID string, index int, days []Day) (*Period, error) {
	periods, err := s.repo.LoadPeriods(ctx, programID)
	if err != nil {
		return nil, err
	}

	var target *Period
	for i := range periods {
		if periods[i].PeriodIndex == index {
			target = &periods[i]
		}
	}
	if target == nil {
		return nil, gorm.ErrRecordNotFound
	}

	span := daysBetween(target.StartDate, target.EndDate) + 1
	last := &periods[len(periods)-1]
	if len(days) != span && target.ID != last.ID {
		return nil, fmt.Errorf("days length %d does not match period range %d", len(days), span)
	}

	days = TrimCadence(days, truncateToDate(target.StartDate),
		target.Payload.Metadata.CadenceDaysPerWeek, nil)

	target.Payload.Days = days
	target.EndDate = truncateToDate(target.StartDate).AddDate(0, 0, len(days)-1)
	if err := s.repo.SavePeriod(ctx, target); err != nil {
		return nil, err
	}

	if target.ID == last.ID {
		p, err := s.repo.GetByProgramID(ctx, programID)
		if err != nil {
			return nil, err
		}
		p.EndDate = target.EndDate
		if err := s.repo.Save(ctx, p); err != nil {
			return nil, err
		}
	}

	return target, nil
}

// LatestForUserType resolves the program a chat-detected change applies to.
func (s *Service) LatestForUserType(ctx context.Context, userID uint64, ptype string) (*Program, error) {
	return s.repo.LatestForUserType(ctx, userID, ptype)
}

// EnqueueJob records a queued side-effect job; the caller publishes its
// id to the queue afterwards.
func (s *Service) EnqueueJob(ctx context.Context, job *Job) error {
	return s.repo.CreateJob(ctx, job)
}

func mergeSpec(base, patch Spec) Spec {
	out := base
	if patch.RawRequest != "" {
		out.RawRequest = patch.RawRequest
	}
	if patch.Source != "" {
		out.Source = patch.Source
	}
	if patch.Agent != "" {
		out.Agent = patch.Agent
	}
	if len(patch.Modalities) > 0 {
		out.Modalities = patch.Modalities
	}
	if patch.DaysPerWeek > 0 {
		out.DaysPerWeek = patch.DaysPerWeek
	}
	if len(patch.TrainingDays) > 0 {
		out.TrainingDays = patch.TrainingDays
	}
	if len(patch.Constraints) > 0 {
		out.Constraints = patch.Constraints
	}
	if len(patch.Goals) > 0 {
		out.Goals = patch.Goals
	}
	if patch.SpecVersion > 0 {
		out.SpecVersion = patch.SpecVersion
	}
	return out
}
