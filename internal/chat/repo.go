package chat

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

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// PatchClassification updates importance/agent on an existing row. Used
// by fire-and-forget stages; callers log failures and move on.
func (r *Repo) PatchClassification(ctx context.Context, id uint64, important bool, agentType string) error {
	return r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_important": important,
			"agent_type":   agentType,
		}).Error
}

// conversation scopes a query to the human<->coach message pair, both
// directions.
func conversation(q *gorm.DB, humanID, coachID uint64) *gorm.DB {
	return q.Where(
		"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		humanID, coachID, coachID, humanID,
	)
}

// ListRecentDesc returns the most recent turns, newest first. Ordering is
// created_at with id as the monotonic tiebreak.
func (r *Repo) ListRecentDesc(ctx context.Context, humanID, coachID uint64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var msgs []Message
	err := conversation(r.db.WithContext(ctx), humanID, coachID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListImportantBetween returns importance-flagged turns inside
// (from, before), newest first.
func (r *Repo) ListImportantBetween(ctx context.Context, humanID, coachID uint64, from, before time.Time, limit int) ([]Message, error) {
	var msgs []Message
	err := conversation(r.db.WithContext(ctx), humanID, coachID).
		Where("is_important = ? AND created_at > ? AND created_at < ?", true, from, before).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListTopicBefore returns turns labeled with an agent category strictly
// before a timestamp, newest first.
func (r *Repo) ListTopicBefore(ctx context.Context, humanID, coachID uint64, agentType string, before time.Time, limit int) ([]Message, error) {
	var msgs []Message
	err := conversation(r.db.WithContext(ctx), humanID, coachID).
		Where("agent_type = ? AND created_at < ?", agentType, before).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}
