package services

import (
	"log"
	"time"

	"health-rewards-system/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// DefaultActiveUserWindow bounds the scheduler's per-tick workload:
// only users with activity inside this window get evaluated.
const DefaultActiveUserWindow = 24 * time.Hour

type ActivityService struct {
	DB    *gorm.DB
	Clock clockwork.Clock

	// RetentionDays trims the activity log to a rolling window.
	// 0 keeps everything.
	RetentionDays int
}

func NewActivityService(db *gorm.DB, retentionDays int) *ActivityService {
	return &ActivityService{
		DB:            db,
		Clock:         clockwork.NewRealClock(),
		RetentionDays: retentionDays,
	}
}

// Record appends an activity event. Events are immutable once written.
func (s *ActivityService) Record(userID string, activityType models.ActivityType, payload models.JSONMap) (*models.UserActivity, error) {
	act := models.UserActivity{
		UserID:       userID,
		ActivityType: activityType,
		Payload:      payload,
		CreatedAt:    s.Clock.Now().UTC(),
	}
	if err := s.DB.Create(&act).Error; err != nil {
		return nil, err
	}
	return &act, nil
}

// Query returns a finite snapshot of events matching the filters,
// newest first. Empty activityType matches all types; nil since/until
// leave the window open on that side.
func (s *ActivityService) Query(userID string, activityType models.ActivityType, since, until *time.Time) ([]models.UserActivity, error) {
	q := s.DB.Where("user_id = ?", userID)
	if activityType != "" {
		q = q.Where("activity_type = ?", activityType)
	}
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	if until != nil {
		q = q.Where("created_at <= ?", *until)
	}

	var acts []models.UserActivity
	err := q.Order("created_at DESC").Find(&acts).Error
	return acts, err
}

// ActiveUsers returns the distinct user ids with at least one event
// inside window. window <= 0 falls back to the 24h default.
func (s *ActivityService) ActiveUsers(window time.Duration) ([]string, error) {
	if window <= 0 {
		window = DefaultActiveUserWindow
	}
	cutoff := s.Clock.Now().UTC().Add(-window)

	var userIDs []string
	err := s.DB.Model(&models.UserActivity{}).
		Distinct("user_id").
		Where("created_at >= ?", cutoff).
		Pluck("user_id", &userIDs).Error
	return userIDs, err
}

// ActivityStats feeds the ops dashboard endpoint.
type ActivityStats struct {
	TotalActivities  int64                 `json:"total_activities"`
	ActiveUsers      int64                 `json:"active_users"`
	RecentActivities []models.UserActivity `json:"recent_activities"`
}

func (s *ActivityService) Stats() (*ActivityStats, error) {
	var stats ActivityStats

	if err := s.DB.Model(&models.UserActivity{}).Count(&stats.TotalActivities).Error; err != nil {
		return nil, err
	}

	cutoff := s.Clock.Now().UTC().Add(-DefaultActiveUserWindow)
	if err := s.DB.Model(&models.UserActivity{}).
		Where("created_at >= ?", cutoff).
		Distinct("user_id").
		Count(&stats.ActiveUsers).Error; err != nil {
		return nil, err
	}

	if err := s.DB.Order("created_at DESC").Limit(10).Find(&stats.RecentActivities).Error; err != nil {
		return nil, err
	}

	return &stats, nil
}

// TrimRetention deletes events older than the retention window and
// returns the number of rows removed. No-op when retention is
// unbounded.
func (s *ActivityService) TrimRetention() (int64, error) {
	if s.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.Clock.Now().UTC().AddDate(0, 0, -s.RetentionDays)
	res := s.DB.Where("created_at < ?", cutoff).Delete(&models.UserActivity{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("[Activity] 🧹 Trimmed %d activity rows older than %d days", res.RowsAffected, s.RetentionDays)
	}
	return res.RowsAffected, nil
}
