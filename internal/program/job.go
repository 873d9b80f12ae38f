package program

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

type JobKind string

const (
	JobCreate JobKind = "create"
	JobChange JobKind = "change"
)

// Job is a queued program side effect detected from chat. The chat
// orchestrator inserts the row and publishes its id; the worker executes
// it. Failures land in Error and never reach the chat reply path.
type Job struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	UserID uint64  `gorm:"index;not null"`
	Kind   JobKind `gorm:"type:varchar(16);not null"`

	// Set for change jobs: the program being revised.
	ProgramID *string `gorm:"type:varchar(26);index"`

	Payload JobPayload `gorm:"type:json"`

	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when succeeded
	ResultProgramID *string `gorm:"type:varchar(26);index"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Job) TableName() string { return "program_jobs" }

type JobPayload struct {
	RequestText    string   `json:"request_text"`
	Agent          string   `json:"agent"`
	StartDate      string   `json:"start_date,omitempty"`
	EffectiveDate  string   `json:"effective_date,omitempty"`
	DurationWeeks  int      `json:"duration_weeks,omitempty"`
	NewPeriodWeeks int      `json:"new_period_weeks,omitempty"`
	DaysPerWeek    int      `json:"days_per_week,omitempty"`
	Modalities     []string `json:"modalities,omitempty"`
	TrainingDays   []string `json:"training_days,omitempty"`
}

func (p JobPayload) Value() (driver.Value, error) { return json.Marshal(p) }
func (p *JobPayload) Scan(v any) error { return scanJSON(v, p) }
