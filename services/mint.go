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

// ChainMintResult is what a successful on-chain mint returns.
type ChainMintResult struct {
	TokenID         int64  `json:"token_id"`
	TransactionHash string `json:"transaction_hash"`
}

// ChainMinter is the external blockchain mint call. No retry contract
// is assumed here; failures degrade the badge to chain_status=pending
// and the reconciler worker picks it up later.
type ChainMinter interface {
	MintBadge(ctx context.Context, walletAddress, badgeTypeID, metadataURL string) (*ChainMintResult, error)
}

// MetadataUploadFunc pins the badge's NFT metadata JSON to object
// storage before the chain call and returns the public URL.
type MetadataUploadFunc func(badgeType *models.BadgeType, userID string) (string, error)

// MintCoordinator is the single authoritative gate for badge issuance:
// it enforces ownership uniqueness and the supply cap, and keeps the
// local UserBadge record as the source of truth with the chain record
// best-effort behind it.
type MintCoordinator struct {
	DB    *gorm.DB
	Chain ChainMinter
	Clock clockwork.Clock

	// UploadMetadata is optional; when nil the badge is minted without
	// a metadata URL.
	UploadMetadata MetadataUploadFunc
}

func NewMintCoordinator(db *gorm.DB, chain ChainMinter) *MintCoordinator {
	return &MintCoordinator{DB: db, Chain: chain, Clock: clockwork.NewRealClock()}
}

// Mint issues the badge to the user, at most once per (user, badge
// type). Rejections come back as ErrBadgeTypeInactive, ErrAlreadyOwned
// or ErrSupplyExhausted. A chain failure does not abort the mint: the
// local record is created with chain_status=pending and no token data.
func (c *MintCoordinator) Mint(ctx context.Context, userID, badgeTypeID, walletAddress string, metadata models.JSONMap) (*models.UserBadge, error) {
	var badgeType models.BadgeType
	if err := c.DB.Where("id = ?", badgeTypeID).First(&badgeType).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBadgeTypeInactive, badgeTypeID)
		}
		return nil, err
	}
	if badgeType.Status != models.BadgeStatusActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrBadgeTypeInactive, badgeTypeID, badgeType.Status)
	}

	var owned int64
	if err := c.DB.Model(&models.UserBadge{}).
		Where("user_id = ? AND badge_type_id = ?", userID, badgeTypeID).
		Count(&owned).Error; err != nil {
		return nil, err
	}
	if owned > 0 {
		return nil, fmt.Errorf("%w: user %s, badge type %s", ErrAlreadyOwned, userID, badgeTypeID)
	}

	if badgeType.MaxSupply > 0 && badgeType.CurrentSupply >= badgeType.MaxSupply {
		return nil, fmt.Errorf("%w: %s (%d/%d)", ErrSupplyExhausted, badgeTypeID, badgeType.CurrentSupply, badgeType.MaxSupply)
	}

	metadataURL := ""
	if c.UploadMetadata != nil {
		url, err := c.UploadMetadata(&badgeType, userID)
		if err != nil {
			log.Printf("[Mint] ⚠️  Metadata upload failed for badge %s, minting without URL: %v", badgeType.Code, err)
		} else {
			metadataURL = url
		}
	}

	// Chain call is best-effort: the local record below is the source
	// of truth either way.
	var chainResult *ChainMintResult
	if c.Chain != nil {
		var err error
		chainResult, err = c.Chain.MintBadge(ctx, walletAddress, badgeTypeID, metadataURL)
		if err != nil {
			log.Printf("[Mint] ⚠️  Chain mint failed for user %s badge %s, recording as pending: %v", userID, badgeType.Code, err)
			chainResult = nil
		}
	}

	badge := models.UserBadge{
		UserID:      userID,
		BadgeTypeID: badgeTypeID,
		MetadataURL: metadataURL,
		ChainStatus: models.ChainPending,
		MintedAt:    c.Clock.Now().UTC(),
		Metadata:    metadata,
	}
	if chainResult != nil {
		badge.TokenID = &chainResult.TokenID
		badge.TransactionHash = &chainResult.TransactionHash
		badge.ChainStatus = models.ChainConfirmed
	}

	err := c.DB.Transaction(func(tx *gorm.DB) error {
		// Conditional increment holds the supply cap under concurrent
		// mints without a row lock; zero rows affected means another
		// mint took the last slot.
		res := tx.Model(&models.BadgeType{}).
			Where("id = ? AND status = ? AND (max_supply = 0 OR current_supply < max_supply)",
				badgeTypeID, models.BadgeStatusActive).
			UpdateColumn("current_supply", gorm.Expr("current_supply + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// The predicate covers both the supply cap and the status;
			// re-read to report the right rejection when the type was
			// deactivated after the pre-check.
			var current models.BadgeType
			if err := tx.Where("id = ?", badgeTypeID).First(&current).Error; err != nil {
				return err
			}
			if current.Status != models.BadgeStatusActive {
				return fmt.Errorf("%w: %s is %s", ErrBadgeTypeInactive, badgeTypeID, current.Status)
			}
			return fmt.Errorf("%w: %s (%d/%d)", ErrSupplyExhausted, badgeTypeID, current.CurrentSupply, current.MaxSupply)
		}

		if err := tx.Create(&badge).Error; err != nil {
			return err
		}

		minted := models.UserActivity{
			UserID:       userID,
			ActivityType: models.ActivityBadgeMinted,
			CreatedAt:    badge.MintedAt,
			Payload: models.JSONMap{
				"badgeTypeId": badgeTypeID,
				"badgeCode":   badgeType.Code,
				"chainStatus": string(badge.ChainStatus),
			},
		}
		return tx.Create(&minted).Error
	})
	if err != nil {
		// The unique index on (user_id, badge_type_id) is the final
		// backstop when two evaluators race past the count above.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: user %s, badge type %s", ErrAlreadyOwned, userID, badgeTypeID)
		}
		return nil, err
	}

	log.Printf("🎖️ Badge minted: %s → user %s (chain: %s)", badgeType.Code, userID, badge.ChainStatus)
	return &badge, nil
}

// BatchMintRequest is one entry of a batch mint call.
type BatchMintRequest struct {
	UserID        string         `json:"user_id"`
	BadgeTypeID   string         `json:"badge_type_id"`
	WalletAddress string         `json:"wallet_address"`
	Metadata      models.JSONMap `json:"metadata,omitempty"`
}

// BatchMintOutcome reports one request's result; rejections surface
// here instead of aborting the batch.
type BatchMintOutcome struct {
	Request BatchMintRequest  `json:"request"`
	Badge   *models.UserBadge `json:"badge,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type BatchMintResult struct {
	SuccessCount int                `json:"success_count"`
	FailureCount int                `json:"failure_count"`
	Results      []BatchMintOutcome `json:"results"`
}

// BatchMint applies Mint sequentially and aggregates every individual
// outcome. One request's failure never aborts the rest.
func (c *MintCoordinator) BatchMint(ctx context.Context, requests []BatchMintRequest) *BatchMintResult {
	out := &BatchMintResult{Results: make([]BatchMintOutcome, 0, len(requests))}
	for _, req := range requests {
		badge, err := c.Mint(ctx, req.UserID, req.BadgeTypeID, req.WalletAddress, req.Metadata)
		outcome := BatchMintOutcome{Request: req, Badge: badge}
		if err != nil {
			outcome.Error = err.Error()
			out.FailureCount++
		} else {
			out.SuccessCount++
		}
		out.Results = append(out.Results, outcome)
	}
	return out
}
