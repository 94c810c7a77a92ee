package models

import (
	"time"
)

// BadgeTypeStatus lifecycle: active types mint, inactive types are
// paused, deprecated types are retired for good.
type BadgeTypeStatus string

const (
	BadgeStatusActive     BadgeTypeStatus = "active"
	BadgeStatusInactive   BadgeTypeStatus = "inactive"
	BadgeStatusDeprecated BadgeTypeStatus = "deprecated"
)

// BadgeType: a definable achievement category with conditions and a
// supply cap. CurrentSupply is only ever incremented inside a mint
// transaction.
type BadgeType struct {
	ID            string          `gorm:"primaryKey;type:uuid" json:"id"`
	Code          string          `gorm:"uniqueIndex;not null" json:"code"` // slug, e.g. "seven-day-starter"
	Name          string          `gorm:"not null" json:"name"`
	Description   string          `json:"description"`
	IconURL       string          `gorm:"type:text" json:"icon_url"`
	Rarity        string          `gorm:"type:varchar(16);default:'common'" json:"rarity"` // common, rare, epic, legendary
	MaxSupply     int64           `gorm:"default:0" json:"max_supply"` // 0 = unlimited
	CurrentSupply int64           `gorm:"default:0" json:"current_supply"`
	Status        BadgeTypeStatus `gorm:"type:varchar(16);default:'active'" json:"status"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// ConditionType is the closed set of rules the evaluators understand.
type ConditionType string

const (
	ConditionDailyCheckin    ConditionType = "DAILY_CHECKIN"
	ConditionConsecutiveDays ConditionType = "CONSECUTIVE_DAYS"
	ConditionTotalActivities ConditionType = "TOTAL_ACTIVITIES"
	ConditionHealthScore     ConditionType = "HEALTH_SCORE"
	ConditionMilestone       ConditionType = "MILESTONE"
	ConditionSpecialEvent    ConditionType = "SPECIAL_EVENT"
)

// BadgeCondition: declarative rule attached to a badge type. Immutable
// during evaluation; soft-disabled via IsActive. Metadata is validated
// against ConditionType when the condition is created, never at
// evaluation time.
type BadgeCondition struct {
	ID            string        `gorm:"primaryKey;type:uuid" json:"id"`
	BadgeTypeID   string        `gorm:"index;not null" json:"badge_type_id"`
	ConditionType ConditionType `gorm:"type:varchar(32);not null" json:"condition_type"`
	TargetValue   int64         `gorm:"not null" json:"target_value"`
	Metadata      JSONMap       `gorm:"type:jsonb;serializer:json" json:"metadata,omitempty"`
	IsActive      bool          `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`

	BadgeType *BadgeType `gorm:"foreignKey:BadgeTypeID" json:"badge_type,omitempty"`
}

// BadgeProgress: one row per (user, condition), created lazily on the
// first evaluation. CurrentValue is recomputed from the activity store
// on every tick; IsCompleted is monotonic and never reverts to false.
type BadgeProgress struct {
	ID               string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID           string     `gorm:"index:idx_progress_user_condition,unique;not null" json:"user_id"`
	BadgeConditionID string     `gorm:"index:idx_progress_user_condition,unique;not null" json:"badge_condition_id"`
	CurrentValue     int64      `gorm:"default:0" json:"current_value"`
	TargetValue      int64      `gorm:"not null" json:"target_value"`
	IsCompleted      bool       `gorm:"default:false" json:"is_completed"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	LastUpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"last_updated_at"`
}

// ChainStatus of a minted badge: pending until the on-chain mint is
// confirmed, confirmed once token id and tx hash are recorded.
type ChainStatus string

const (
	ChainPending   ChainStatus = "pending"
	ChainConfirmed ChainStatus = "confirmed"
)

// UserBadge: awarded instance. Immutable record of an achievement;
// the only post-insert mutation allowed is the chain reconciler filling
// in TokenID/TransactionHash and flipping ChainStatus to confirmed.
// The composite unique index is the final backstop for mint races.
type UserBadge struct {
	ID              string      `gorm:"primaryKey;type:uuid" json:"id"`
	UserID          string      `gorm:"index:idx_user_badge_type,unique;not null" json:"user_id"`
	BadgeTypeID     string      `gorm:"index:idx_user_badge_type,unique;not null" json:"badge_type_id"`
	TokenID         *int64      `json:"token_id,omitempty"`
	TransactionHash *string     `gorm:"type:varchar(128)" json:"transaction_hash,omitempty"`
	MetadataURL     string      `gorm:"type:text" json:"metadata_url,omitempty"`
	ChainStatus     ChainStatus `gorm:"type:varchar(16);default:'pending';index" json:"chain_status"`
	MintedAt        time.Time   `gorm:"autoCreateTime" json:"minted_at"`
	Metadata        JSONMap     `gorm:"type:jsonb;serializer:json" json:"metadata,omitempty"`
}
