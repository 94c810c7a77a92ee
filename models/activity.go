package models

import (
	"time"
)

// ActivityType enumerates the event kinds the engine understands.
// New feature code may record additional ad-hoc types; only the ones
// listed here participate in condition evaluation.
type ActivityType string

const (
	ActivityLogin              ActivityType = "login"
	ActivityDataEntry          ActivityType = "data_entry"
	ActivityGoalCompletion     ActivityType = "goal_completion"
	ActivityCheckin            ActivityType = "checkin"
	ActivityDailyCheckin       ActivityType = "daily_checkin"
	ActivityEventParticipation ActivityType = "event_participation"
	ActivityBadgeMinted        ActivityType = "badge_minted"
	ActivityConditionCompleted ActivityType = "condition_completed"
)

// UserActivity is an append-only event record. Rows are never updated;
// the only delete path is retention trimming in the activity service.
type UserActivity struct {
	ID           string       `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string       `gorm:"index:idx_activity_user_type_time,priority:1;not null" json:"user_id"`
	ActivityType ActivityType `gorm:"type:varchar(64);index:idx_activity_user_type_time,priority:2;not null" json:"activity_type"`
	Payload      JSONMap      `gorm:"type:jsonb;serializer:json" json:"payload,omitempty"`
	CreatedAt    time.Time    `gorm:"index:idx_activity_user_type_time,priority:3;autoCreateTime" json:"created_at"`
}

// JSONMap is the shape of free-form jsonb payloads (activity payloads,
// condition metadata, badge mint metadata).
type JSONMap map[string]interface{}

// Float reads a numeric payload field; jsonb numbers decode as float64.
func (m JSONMap) Float(key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// String reads a string payload field.
func (m JSONMap) String(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok
}
