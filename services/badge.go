package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"health-rewards-system/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// BadgeService drives the evaluation pipeline: activity snapshot →
// evaluators → progress tracker → mint coordinator. Both the scheduler
// and the on-demand HTTP endpoint go through CheckUserConditions.
type BadgeService struct {
	DB         *gorm.DB
	Activities *ActivityService
	Progress   *ProgressTracker
	Mint       *MintCoordinator
	Clock      clockwork.Clock
}

func NewBadgeService(db *gorm.DB, activities *ActivityService, progress *ProgressTracker, mint *MintCoordinator) *BadgeService {
	return &BadgeService{
		DB:         db,
		Activities: activities,
		Progress:   progress,
		Mint:       mint,
		Clock:      clockwork.NewRealClock(),
	}
}

// RecordUserActivity appends the event and runs an opportunistic
// condition check for that user, in addition to the scheduled sweeps.
// The check is best-effort; a failed check never fails the write.
func (s *BadgeService) RecordUserActivity(ctx context.Context, userID string, activityType models.ActivityType, payload models.JSONMap) (*models.UserActivity, error) {
	act, err := s.Activities.Record(userID, activityType, payload)
	if err != nil {
		return nil, err
	}

	if _, err := s.CheckUserConditions(ctx, userID); err != nil {
		log.Printf("[Badge] ⚠️  Opportunistic check failed for user %s: %v", userID, err)
	}

	return act, nil
}

// CheckUserConditions evaluates every active condition for the user.
func (s *BadgeService) CheckUserConditions(ctx context.Context, userID string) ([]ConditionCheckResult, error) {
	return s.CheckUserConditionsOfTypes(ctx, userID, nil)
}

// CheckUserConditionsOfTypes restricts the sweep to a subset of
// condition types; nil means all. Per-condition failures are logged
// and skipped so one bad condition never hides the rest.
func (s *BadgeService) CheckUserConditionsOfTypes(ctx context.Context, userID string, types []models.ConditionType) ([]ConditionCheckResult, error) {
	conditions, err := s.activeConditions(types)
	if err != nil {
		return nil, fmt.Errorf("load active conditions: %w", err)
	}
	if len(conditions) == 0 {
		return nil, nil
	}

	// One snapshot per user per sweep; evaluators filter in memory.
	acts, err := s.Activities.Query(userID, "", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("load activity snapshot for user %s: %w", userID, err)
	}

	ownedTypes, err := s.ownedBadgeTypes(userID)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now().UTC()
	results := make([]ConditionCheckResult, 0, len(conditions))

	for i := range conditions {
		cond := &conditions[i]

		// Ownership short-circuits the whole pipeline: an owned
		// badge's condition is reported completed with the value
		// pinned to target and nothing recomputed.
		if ownedTypes[cond.BadgeTypeID] {
			results = append(results, ConditionCheckResult{
				BadgeConditionID: cond.ID,
				BadgeTypeID:      cond.BadgeTypeID,
				UserID:           userID,
				IsCompleted:      true,
				CurrentValue:     cond.TargetValue,
				TargetValue:      cond.TargetValue,
				ShouldMint:       false,
			})
			continue
		}

		meta, err := models.ParseConditionMetadata(cond.ConditionType, cond.Metadata)
		if err != nil {
			log.Printf("[Badge] ⚠️  Skipping condition %s: %v", cond.ID, err)
			continue
		}

		value, err := EvaluateCondition(cond, meta, acts, now)
		if err != nil {
			log.Printf("[Badge] ⚠️  Skipping condition %s for user %s: %v", cond.ID, userID, err)
			continue
		}

		result, err := s.Progress.Update(userID, cond, value)
		if err != nil {
			log.Printf("[Badge] ❌ Progress update failed for user %s condition %s: %v", userID, cond.ID, err)
			continue
		}

		if result.ShouldMint {
			// Only an actual mint (or a lost race, where the badge
			// exists either way) makes the type owned for the rest of
			// this sweep; a skipped or failed mint must not pin
			// sibling conditions to a badge nobody holds.
			if s.mintForResult(ctx, result) {
				ownedTypes[cond.BadgeTypeID] = true
			}
		}

		results = append(results, *result)
	}

	return results, nil
}

// mintForResult resolves the user's wallet and hands off to the mint
// coordinator. A lost race (AlreadyOwned) is normal, not an error.
// Returns true only when the user ends up owning the badge.
func (s *BadgeService) mintForResult(ctx context.Context, result *ConditionCheckResult) bool {
	wallet, err := s.GetWalletAddress(result.UserID)
	if err != nil {
		log.Printf("[Badge] ❌ Wallet lookup failed for user %s: %v", result.UserID, err)
		return false
	}
	if wallet == "" {
		log.Printf("[Badge] ⚠️  User %s has no active wallet, skipping mint of badge type %s", result.UserID, result.BadgeTypeID)
		return false
	}

	_, err = s.Mint.Mint(ctx, result.UserID, result.BadgeTypeID, wallet, models.JSONMap{
		"badgeConditionId": result.BadgeConditionID,
		"currentValue":     result.CurrentValue,
		"targetValue":      result.TargetValue,
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrAlreadyOwned):
		// Another evaluator got there first; the badge exists.
		return true
	default:
		log.Printf("[Badge] ❌ Mint failed for user %s badge type %s: %v", result.UserID, result.BadgeTypeID, err)
		return false
	}
}

// GetWalletAddress returns the user's active wallet address from the
// local mirror, or "" when none is synced yet.
func (s *BadgeService) GetWalletAddress(userID string) (string, error) {
	var wallet models.WalletMirror
	err := s.DB.Where("user_id = ? AND is_active = ?", userID, true).
		Order("updated_at DESC").
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return wallet.Address, nil
}

// UserBadges lists the user's minted badges, newest first.
func (s *BadgeService) UserBadges(userID string) ([]models.UserBadge, error) {
	var badges []models.UserBadge
	err := s.DB.Where("user_id = ?", userID).Order("minted_at DESC").Find(&badges).Error
	return badges, err
}

// UserProgress lists the user's progress rows with their conditions.
func (s *BadgeService) UserProgress(userID string) ([]models.BadgeProgress, error) {
	var rows []models.BadgeProgress
	err := s.DB.Where("user_id = ?", userID).Order("last_updated_at DESC").Find(&rows).Error
	return rows, err
}

func (s *BadgeService) activeConditions(types []models.ConditionType) ([]models.BadgeCondition, error) {
	q := s.DB.
		Joins("JOIN badge_types ON badge_types.id = badge_conditions.badge_type_id").
		Where("badge_conditions.is_active = ? AND badge_types.status = ?", true, models.BadgeStatusActive)
	if len(types) > 0 {
		q = q.Where("badge_conditions.condition_type IN ?", types)
	}

	var conditions []models.BadgeCondition
	err := q.Find(&conditions).Error
	return conditions, err
}

func (s *BadgeService) ownedBadgeTypes(userID string) (map[string]bool, error) {
	var typeIDs []string
	if err := s.DB.Model(&models.UserBadge{}).
		Where("user_id = ?", userID).
		Pluck("badge_type_id", &typeIDs).Error; err != nil {
		return nil, err
	}
	owned := make(map[string]bool, len(typeIDs))
	for _, id := range typeIDs {
		owned[id] = true
	}
	return owned, nil
}
