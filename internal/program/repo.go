package program

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, p *Program) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *Repo) GetByProgramID(ctx context.Context, programID string) (*Program, error) {
	var p Program
	if err := r.db.WithContext(ctx).
		Where("program_id = ?", programID).
		First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// RecentForUserType finds the newest scheduled/active program of a type
// for a user created at or after since. Drives the creation debounce.
func (r *Repo) RecentForUserType(ctx context.Context, userID uint64, ptype string, since time.Time) (*Program, error) {
	var p Program
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND status IN ? AND created_at >= ?",
			userID, ptype, []Status{StatusScheduled, StatusActive}, since).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// LatestForUserType finds the newest scheduled/active program regardless
// of age; used to resolve chat-detected change requests to a program id.
func (r *Repo) LatestForUserType(ctx context.Context, userID uint64, ptype string) (*Program, error) {
	var p Program
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND status IN ?",
			userID, ptype, []Status{StatusScheduled, StatusActive}).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) Save(ctx context.Context, p *Program) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *Repo) MarkActive(ctx context.Context, programID string) error {
	return r.db.WithContext(ctx).Model(&Program{}).
		Where("program_id = ? AND status = ?", programID, StatusScheduled).
		Update("status", StatusActive).Error
}

// Periods

func (r *Repo) InsertPeriod(ctx context.Context, p *Period) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *Repo) SavePeriod(ctx context.Context, p *Period) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// LoadPeriods returns a program's periods ordered by period_index ASC.
func (r *Repo) LoadPeriods(ctx context.Context, programID string) ([]Period, error) {
	var periods []Period
	if err := r.db.WithContext(ctx).
		Where("program_id = ?", programID).
		Order("period_index ASC").
		Find(&periods).Error; err != nil {
		return nil, err
	}
	return periods, nil
}

func (r *Repo) DeletePeriod(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&Period{}, id).Error
}

// DeletePeriodsStartingAfter removes every period of a program whose
// start_date is strictly after the cutoff.
func (r *Repo) DeletePeriodsStartingAfter(ctx context.Context, programID string, cutoff time.Time) error {
	return r.db.WithContext(ctx).
		Where("program_id = ? AND start_date > ?", programID, cutoff).
		Delete(&Period{}).Error
}

// Jobs

func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, programID string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_program_id": programID,
			"error":             nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_program_id": nil,
		}).Error
}
