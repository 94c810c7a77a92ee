package models

import (
	"fmt"
)

// ConditionMetadata is the typed view of a BadgeCondition's jsonb
// metadata. Raw metadata is parsed and validated once, when an admin
// creates the condition — evaluators never see a malformed blob.
type ConditionMetadata struct {
	// DAILY_CHECKIN / HEALTH_SCORE: lookback window in days.
	Days int
	// CONSECUTIVE_DAYS / TOTAL_ACTIVITIES / MILESTONE: activity type
	// filter (MILESTONE: the data source to sum over).
	ActivityType ActivityType
	// TOTAL_ACTIVITIES: "all" | "month" | "week".
	TimeRange string
	// HEALTH_SCORE / MILESTONE: numeric payload field.
	Field string
	// SPECIAL_EVENT only.
	EventType string
	EventID   string
}

const (
	defaultCheckinDays     = 30
	defaultHealthScoreDays = 30
)

// ParseConditionMetadata validates raw against the condition type and
// fills defaults. Called at condition-creation time; evaluation reuses
// it on the already-validated blob.
func ParseConditionMetadata(ct ConditionType, raw JSONMap) (ConditionMetadata, error) {
	meta := ConditionMetadata{}

	switch ct {
	case ConditionDailyCheckin:
		meta.Days = intField(raw, "days", defaultCheckinDays)
		if meta.Days <= 0 {
			return meta, fmt.Errorf("daily checkin condition: days must be positive, got %d", meta.Days)
		}

	case ConditionConsecutiveDays:
		meta.ActivityType = ActivityType(stringField(raw, "activityType", string(ActivityDailyCheckin)))

	case ConditionTotalActivities:
		meta.ActivityType = ActivityType(stringField(raw, "activityType", ""))
		meta.TimeRange = stringField(raw, "timeRange", "all")
		switch meta.TimeRange {
		case "all", "month", "week":
		default:
			return meta, fmt.Errorf("total activities condition: invalid timeRange %q", meta.TimeRange)
		}

	case ConditionHealthScore:
		meta.Days = intField(raw, "timeRange", defaultHealthScoreDays)
		if meta.Days <= 0 {
			return meta, fmt.Errorf("health score condition: timeRange must be positive, got %d", meta.Days)
		}
		meta.Field = stringField(raw, "field", "score")

	case ConditionMilestone:
		meta.Field = stringField(raw, "field", "")
		if meta.Field == "" {
			return meta, fmt.Errorf("milestone condition: metadata.field is required")
		}
		meta.ActivityType = ActivityType(stringField(raw, "activityType", string(ActivityDataEntry)))

	case ConditionSpecialEvent:
		meta.EventType = stringField(raw, "eventType", "")
		if meta.EventType == "" {
			return meta, fmt.Errorf("special event condition: metadata.eventType is required")
		}
		meta.EventID = stringField(raw, "eventId", "")

	default:
		return meta, fmt.Errorf("unknown condition type %q", ct)
	}

	return meta, nil
}

// LookbackDays is how far back this condition reads the activity store.
// 0 means unbounded. Target matters for streaks: a streak of length N
// needs at least N days of history to count.
func (m ConditionMetadata) LookbackDays(ct ConditionType, targetValue int64) int {
	switch ct {
	case ConditionDailyCheckin, ConditionHealthScore:
		return m.Days
	case ConditionConsecutiveDays:
		return int(targetValue)
	case ConditionTotalActivities:
		switch m.TimeRange {
		case "week":
			return 7
		case "month":
			return 31
		}
		return 0
	}
	return 0
}

func intField(raw JSONMap, key string, def int) int {
	if v, ok := raw.Float(key); ok {
		return int(v)
	}
	return def
}

func stringField(raw JSONMap, key, def string) string {
	if v, ok := raw.String(key); ok && v != "" {
		return v
	}
	return def
}
