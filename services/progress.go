package services

import (
	"errors"
	"fmt"

	"health-rewards-system/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// ConditionCheckResult is what one evaluation of one condition yields.
// ShouldMint is true only when the condition is completed and the user
// does not already own the badge.
type ConditionCheckResult struct {
	BadgeConditionID string `json:"badge_condition_id"`
	BadgeTypeID      string `json:"badge_type_id"`
	UserID           string `json:"user_id"`
	IsCompleted      bool   `json:"is_completed"`
	CurrentValue     int64  `json:"current_value"`
	TargetValue      int64  `json:"target_value"`
	ShouldMint       bool   `json:"should_mint"`
}

// ProgressTracker owns the BadgeProgress table. All completion state
// flows through Update; nothing else writes these rows.
type ProgressTracker struct {
	DB    *gorm.DB
	Clock clockwork.Clock
}

func NewProgressTracker(db *gorm.DB) *ProgressTracker {
	return &ProgressTracker{DB: db, Clock: clockwork.NewRealClock()}
}

// Update records the freshly computed value for (user, condition),
// creating the progress row on first sight. Completion is monotonic:
// once a row is completed it stays completed even if a later
// recomputation lands below target. The false→true transition stamps
// CompletedAt and appends a condition_completed audit event in the
// same transaction.
func (t *ProgressTracker) Update(userID string, cond *models.BadgeCondition, currentValue int64) (*ConditionCheckResult, error) {
	var prog models.BadgeProgress

	err := t.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND badge_condition_id = ?", userID, cond.ID).First(&prog).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			prog = models.BadgeProgress{
				UserID:           userID,
				BadgeConditionID: cond.ID,
				TargetValue:      cond.TargetValue,
			}
			if err := tx.Create(&prog).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		wasCompleted := prog.IsCompleted
		prog.CurrentValue = currentValue
		prog.TargetValue = cond.TargetValue
		prog.IsCompleted = wasCompleted || currentValue >= cond.TargetValue

		if prog.IsCompleted && !wasCompleted {
			now := t.Clock.Now().UTC()
			prog.CompletedAt = &now

			audit := models.UserActivity{
				UserID:       userID,
				ActivityType: models.ActivityConditionCompleted,
				CreatedAt:    now,
				Payload: models.JSONMap{
					"badgeConditionId": cond.ID,
					"currentValue":     currentValue,
					"targetValue":      cond.TargetValue,
				},
			}
			if err := tx.Create(&audit).Error; err != nil {
				return err
			}
		}

		return tx.Save(&prog).Error
	})
	if err != nil {
		return nil, fmt.Errorf("update progress for user %s condition %s: %w", userID, cond.ID, err)
	}

	return &ConditionCheckResult{
		BadgeConditionID: cond.ID,
		BadgeTypeID:      cond.BadgeTypeID,
		UserID:           userID,
		IsCompleted:      prog.IsCompleted,
		CurrentValue:     prog.CurrentValue,
		TargetValue:      prog.TargetValue,
		ShouldMint:       prog.IsCompleted,
	}, nil
}
