package services

import (
	"fmt"
	"math"
	"time"

	"health-rewards-system/models"
)

// Condition evaluators are pure: (validated metadata, activity
// snapshot, now) → current value. The snapshot comes from the activity
// service and is ordered newest first; evaluators never touch the DB.

// EvaluateCondition dispatches on the condition type. An unknown type
// is a configuration error, not a crash.
func EvaluateCondition(cond *models.BadgeCondition, meta models.ConditionMetadata, acts []models.UserActivity, now time.Time) (int64, error) {
	switch cond.ConditionType {
	case models.ConditionDailyCheckin:
		return evaluateDailyCheckin(meta, acts, now), nil
	case models.ConditionConsecutiveDays:
		return evaluateConsecutiveDays(meta, acts), nil
	case models.ConditionTotalActivities:
		return evaluateTotalActivities(meta, acts, now), nil
	case models.ConditionHealthScore:
		return evaluateHealthScore(meta, acts, now), nil
	case models.ConditionMilestone:
		return evaluateMilestone(meta, acts), nil
	case models.ConditionSpecialEvent:
		return evaluateSpecialEvent(meta, acts), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownConditionType, cond.ConditionType)
}

func isCheckin(t models.ActivityType) bool {
	return t == models.ActivityCheckin || t == models.ActivityDailyCheckin
}

// calendarDay truncates to midnight UTC; streaks and checkin windows
// count calendar days, not 24h intervals.
func calendarDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// evaluateDailyCheckin counts distinct calendar days with at least one
// checkin event inside the last meta.Days days.
func evaluateDailyCheckin(meta models.ConditionMetadata, acts []models.UserActivity, now time.Time) int64 {
	cutoff := calendarDay(now).AddDate(0, 0, -(meta.Days - 1))
	days := map[time.Time]struct{}{}
	for _, a := range acts {
		if !isCheckin(a.ActivityType) {
			continue
		}
		day := calendarDay(a.CreatedAt)
		if day.Before(cutoff) {
			continue
		}
		days[day] = struct{}{}
	}
	return int64(len(days))
}

// evaluateConsecutiveDays walks the deduplicated activity days from the
// most recent one backward and counts until the first gap. A user with
// no activity today still gets their streak counted from the most
// recent activity day — today's activity is not required.
func evaluateConsecutiveDays(meta models.ConditionMetadata, acts []models.UserActivity) int64 {
	seen := map[time.Time]struct{}{}
	var days []time.Time // descending: snapshot is newest first
	for _, a := range acts {
		if a.ActivityType != meta.ActivityType {
			continue
		}
		day := calendarDay(a.CreatedAt)
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	if len(days) == 0 {
		return 0
	}

	streak := int64(1)
	for i := 1; i < len(days); i++ {
		if !days[i-1].AddDate(0, 0, -1).Equal(days[i]) {
			break
		}
		streak++
	}
	return streak
}

// evaluateTotalActivities counts events matching the optional type
// filter inside the configured time range.
func evaluateTotalActivities(meta models.ConditionMetadata, acts []models.UserActivity, now time.Time) int64 {
	var cutoff time.Time
	switch meta.TimeRange {
	case "week":
		cutoff = now.UTC().AddDate(0, 0, -7)
	case "month":
		cutoff = now.UTC().AddDate(0, -1, 0)
	}

	var count int64
	for _, a := range acts {
		if meta.ActivityType != "" && a.ActivityType != meta.ActivityType {
			continue
		}
		if !cutoff.IsZero() && a.CreatedAt.Before(cutoff) {
			continue
		}
		count++
	}
	return count
}

// evaluateHealthScore averages the score field over the lookback
// window, rounded to the nearest integer. 0 when there is no data.
func evaluateHealthScore(meta models.ConditionMetadata, acts []models.UserActivity, now time.Time) int64 {
	cutoff := now.UTC().AddDate(0, 0, -meta.Days)

	var sum float64
	var n int
	for _, a := range acts {
		if a.CreatedAt.Before(cutoff) {
			continue
		}
		if v, ok := a.Payload.Float(meta.Field); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return int64(math.Round(sum / float64(n)))
}

// evaluateMilestone sums the configured numeric field across the data
// source with no time bound.
func evaluateMilestone(meta models.ConditionMetadata, acts []models.UserActivity) int64 {
	var total float64
	for _, a := range acts {
		if a.ActivityType != meta.ActivityType {
			continue
		}
		if v, ok := a.Payload.Float(meta.Field); ok {
			total += v
		}
	}
	return int64(total)
}

// evaluateSpecialEvent counts participation records for the configured
// event type, optionally narrowed to a single event id.
func evaluateSpecialEvent(meta models.ConditionMetadata, acts []models.UserActivity) int64 {
	var count int64
	for _, a := range acts {
		if a.ActivityType != models.ActivityEventParticipation {
			continue
		}
		if et, _ := a.Payload.String("eventType"); et != meta.EventType {
			continue
		}
		if meta.EventID != "" {
			if id, _ := a.Payload.String("eventId"); id != meta.EventID {
				continue
			}
		}
		count++
	}
	return count
}
