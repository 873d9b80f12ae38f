package program

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
)

type Program struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ProgramID         string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"program_id"`
	UserID            uint64    `gorm:"not null;index:idx_programs_user_type,priority:1" json:"user_id"`
	Type              string    `gorm:"type:varchar(64);not null;index:idx_programs_user_type,priority:2" json:"type"`
	Status            Status    `gorm:"type:varchar(16);not null" json:"status"`
	StartDate         time.Time `json:"start_date"`
	EndDate           time.Time `json:"end_date"`
	PeriodLengthWeeks int       `json:"period_length_weeks"`
	Spec              Spec      `gorm:"type:json" json:"spec_json"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Program) TableName() string { return "programs" }

// Spec is the versioned free-form record describing what the user asked
// for; stored as a JSON column.
type Spec struct {
	Source       string   `json:"source"`
	RawRequest   string   `json:"raw_request"`
	Agent        string   `json:"agent"`
	Modalities   []string `json:"modalities"`
	DaysPerWeek  int      `json:"days_per_week"`
	TrainingDays []string `json:"training_days,omitempty"`
	Constraints  []string `json:"constraints"`
	Goals        []string `json:"goals"`
	SpecVersion  int      `json:"spec_version"`
}

func (s Spec) Value() (driver.Value, error) { return json.Marshal(s) }
func (s *Spec) Scan(v any) error { return scanJSON(v, s) }

// Period is a contiguous date range within a program holding a concrete
// array of calendar days. [StartDate,EndDate] always spans exactly
// len(Payload.Days) days. Period indices are monotonically assigned per
// program and never recycled, preserving revision order.
type Period struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ProgramID   string    `gorm:"type:varchar(26);not null;index:idx_periods_program_idx,priority:1" json:"program_id"`
	PeriodIndex int       `gorm:"not null;index:idx_periods_program_idx,priority:2" json:"period_index"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Payload     Payload   `gorm:"type:json" json:"period_json"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Period) TableName() string { return "program_periods" }

type Payload struct {
	Metadata Metadata `json:"metadata"`
	Days     []Day    `json:"days"`
}

func (p Payload) Value() (driver.Value, error) { return json.Marshal(p) }
func (p *Payload) Scan(v any) error { return scanJSON(v, p) }

type Metadata struct {
	PlanType           string `json:"plan_type"`
	CadenceDaysPerWeek int    `json:"cadence_days_per_week"`
	Rationale          string `json:"rationale,omitempty"`
	StartDate          string `json:"start_date"`
}

// Day is one calendar day of a period. Blocks are self-contained markdown
// fragments; the shape carries no nested structured data so it stays
// agent-agnostic.
type Day struct {
	Title         string          `json:"title,omitempty"`
	Active        bool            `json:"active"`
	Notes         string          `json:"notes"`
	Blocks        []string        `json:"blocks"`
	Intensity     string          `json:"intensity,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	DaysFromToday int             `json:"days_from_today"`
	Date          string          `json:"date,omitempty"`
	Schedule      json.RawMessage `json:"schedule,omitempty"`
}

func scanJSON(v any, dst any) error {
	switch b := v.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(b, dst)
	case string:
		return json.Unmarshal([]byte(b), dst)
	default:
		return fmt.Errorf("unsupported json column type %T", v)
	}
}
