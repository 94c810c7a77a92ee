package workers

import (
	"context"
	"log"
	"time"

	"health-rewards-system/models"
	"health-rewards-system/services"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/gorm"
)

// ChainReconciler retries the on-chain mint for badges whose chain
// submission failed at mint time. The local UserBadge row is already
// the source of truth; this worker only closes the gap between the
// local record and the chain, flipping chain_status to confirmed once
// a token id and tx hash come back.
type ChainReconciler struct {
	DB        *gorm.DB
	Chain     services.ChainMinter
	BatchSize int

	// NewBackoff builds the per-badge retry policy.
	NewBackoff func() backoff.BackOff
}

func NewChainReconciler(db *gorm.DB, chain services.ChainMinter) *ChainReconciler {
	return &ChainReconciler{
		DB:        db,
		Chain:     chain,
		BatchSize: 50,
		NewBackoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		},
	}
}

// ReconcileOnce processes one batch of pending badges and returns how
// many it confirmed.
func (r *ChainReconciler) ReconcileOnce(ctx context.Context) (int, error) {
	var pending []models.UserBadge
	if err := r.DB.Where("chain_status = ?", models.ChainPending).
		Order("minted_at ASC").
		Limit(r.BatchSize).
		Find(&pending).Error; err != nil {
		return 0, err
	}

	confirmed := 0
	for i := range pending {
		badge := &pending[i]

		wallet, err := r.walletFor(badge.UserID)
		if err != nil {
			log.Printf("[Reconciler] ❌ Wallet lookup failed for user %s: %v", badge.UserID, err)
			continue
		}
		if wallet == "" {
			// Wallet not synced yet; the badge stays pending until it is.
			continue
		}

		var result *services.ChainMintResult
		op := func() error {
			var err error
			result, err = r.Chain.MintBadge(ctx, wallet, badge.BadgeTypeID, badge.MetadataURL)
			return err
		}
		policy := backoff.WithContext(r.NewBackoff(), ctx)
		if err := backoff.Retry(op, policy); err != nil {
			log.Printf("[Reconciler] ⚠️  Chain mint still failing for badge %s (user %s): %v", badge.ID, badge.UserID, err)
			continue
		}

		if err := r.DB.Model(badge).
			Where("chain_status = ?", models.ChainPending).
			Updates(map[string]interface{}{
				"token_id":         result.TokenID,
				"transaction_hash": result.TransactionHash,
				"chain_status":     models.ChainConfirmed,
			}).Error; err != nil {
			log.Printf("[Reconciler] ❌ Failed to record confirmation for badge %s: %v", badge.ID, err)
			continue
		}

		confirmed++
		log.Printf("[Reconciler] ✅ Confirmed badge %s on chain (token %d)", badge.ID, result.TokenID)
	}

	return confirmed, nil
}

func (r *ChainReconciler) walletFor(userID string) (string, error) {
	var wallet models.WalletMirror
	err := r.DB.Where("user_id = ? AND is_active = ?", userID, true).
		Order("updated_at DESC").
		First(&wallet).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return wallet.Address, nil
}

// PollPendingBadges runs reconciliation on a fixed interval until the
// context is cancelled.
func PollPendingBadges(ctx context.Context, rec *ChainReconciler, pollInterval time.Duration) {
	log.Println("Starting chain reconciliation polling...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Chain reconciliation stopped.")
			return
		case <-ticker.C:
			if _, err := rec.ReconcileOnce(ctx); err != nil {
				log.Printf("[Reconciler] ❌ Reconciliation pass failed: %v", err)
			}
		}
	}
}
