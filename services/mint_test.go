package services

import (
	"context"
	"sync"
	"testing"

	"health-rewards-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintIsIdempotentPerUserAndBadgeType(t *testing.T) {
	db := newTestDB(t)
	chain := &fakeChainMinter{}
	coordinator := NewMintCoordinator(db, chain)

	bt := createBadgeType(t, db, "starter", 0)

	badge, err := coordinator.Mint(context.Background(), "u1", bt.ID, "0xwallet", nil)
	require.NoError(t, err)
	require.NotNil(t, badge)
	assert.Equal(t, models.ChainConfirmed, badge.ChainStatus)
	require.NotNil(t, badge.TokenID)

	_, err = coordinator.Mint(context.Background(), "u1", bt.ID, "0xwallet", nil)
	require.ErrorIs(t, err, ErrAlreadyOwned)

	var count int64
	require.NoError(t, db.Model(&models.UserBadge{}).Where("user_id = ? AND badge_type_id = ?", "u1", bt.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var refreshed models.BadgeType
	require.NoError(t, db.First(&refreshed, "id = ?", bt.ID).Error)
	assert.Equal(t, int64(1), refreshed.CurrentSupply)
}

func TestMintRejectsInactiveOrMissingBadgeType(t *testing.T) {
	db := newTestDB(t)
	coordinator := NewMintCoordinator(db, &fakeChainMinter{})

	_, err := coordinator.Mint(context.Background(), "u1", "no-such-type", "0xwallet", nil)
	require.ErrorIs(t, err, ErrBadgeTypeInactive)

	bt := createBadgeType(t, db, "retired", 0)
	require.NoError(t, db.Model(bt).Update("status", models.BadgeStatusDeprecated).Error)

	_, err = coordinator.Mint(context.Background(), "u1", bt.ID, "0xwallet", nil)
	require.ErrorIs(t, err, ErrBadgeTypeInactive)
}

func TestMintEnforcesSupplyCap(t *testing.T) {
	db := newTestDB(t)
	coordinator := NewMintCoordinator(db, &fakeChainMinter{})

	bt := createBadgeType(t, db, "limited", 2)

	_, err := coordinator.Mint(context.Background(), "u1", bt.ID, "0xa", nil)
	require.NoError(t, err)
	_, err = coordinator.Mint(context.Background(), "u2", bt.ID, "0xb", nil)
	require.NoError(t, err)
	_, err = coordinator.Mint(context.Background(), "u3", bt.ID, "0xc", nil)
	require.ErrorIs(t, err, ErrSupplyExhausted)

	var refreshed models.BadgeType
	require.NoError(t, db.First(&refreshed, "id = ?", bt.ID).Error)
	assert.Equal(t, int64(2), refreshed.CurrentSupply)
	assert.LessOrEqual(t, refreshed.CurrentSupply, refreshed.MaxSupply)
}

// mintHookChain runs a callback before answering, to interleave writes
// between the coordinator's pre-checks and its transaction.
type mintHookChain struct {
	onMint func()
}

func (m *mintHookChain) MintBadge(ctx context.Context, walletAddress, badgeTypeID, metadataURL string) (*ChainMintResult, error) {
	if m.onMint != nil {
		m.onMint()
	}
	return &ChainMintResult{TokenID: 1, TransactionHash: "0xabc"}, nil
}

func TestMintReportsDeactivationDuringMintAsInactive(t *testing.T) {
	db := newTestDB(t)

	bt := createBadgeType(t, db, "short-lived", 0)

	// The type is retired after the pre-check has already passed; the
	// transaction's conditional claim misses and the rejection must
	// name the real reason, not the supply cap.
	chain := &mintHookChain{onMint: func() {
		require.NoError(t, db.Model(&models.BadgeType{}).
			Where("id = ?", bt.ID).
			Update("status", models.BadgeStatusDeprecated).Error)
	}}
	coordinator := NewMintCoordinator(db, chain)

	_, err := coordinator.Mint(context.Background(), "u1", bt.ID, "0xwallet", nil)
	require.ErrorIs(t, err, ErrBadgeTypeInactive)
	require.NotErrorIs(t, err, ErrSupplyExhausted)

	var count int64
	require.NoError(t, db.Model(&models.UserBadge{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	var refreshed models.BadgeType
	require.NoError(t, db.First(&refreshed, "id = ?", bt.ID).Error)
	assert.Equal(t, int64(0), refreshed.CurrentSupply)
}

func TestMintChainFailureDegradesToPendingLocalRecord(t *testing.T) {
	db := newTestDB(t)
	chain := &fakeChainMinter{fail: true}
	coordinator := NewMintCoordinator(db, chain)

	bt := createBadgeType(t, db, "starter", 0)

	badge, err := coordinator.Mint(context.Background(), "u1", bt.ID, "0xwallet", nil)
	require.NoError(t, err)
	require.NotNil(t, badge)
	assert.Equal(t, models.ChainPending, badge.ChainStatus)
	assert.Nil(t, badge.TokenID)
	assert.Nil(t, badge.TransactionHash)

	// Local record is the source of truth: supply moved anyway.
	var refreshed models.BadgeType
	require.NoError(t, db.First(&refreshed, "id = ?", bt.ID).Error)
	assert.Equal(t, int64(1), refreshed.CurrentSupply)
}

func TestMintConcurrentRequestsYieldOneBadge(t *testing.T) {
	db := newTestDB(t)
	coordinator := NewMintCoordinator(db, &fakeChainMinter{})

	bt := createBadgeType(t, db, "starter", 0)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coordinator.Mint(context.Background(), "u1", bt.ID, "0xwallet", nil)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, ErrAlreadyOwned)
		}
	}
	assert.Equal(t, 1, successes)

	var count int64
	require.NoError(t, db.Model(&models.UserBadge{}).Where("user_id = ?", "u1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var refreshed models.BadgeType
	require.NoError(t, db.First(&refreshed, "id = ?", bt.ID).Error)
	assert.Equal(t, int64(1), refreshed.CurrentSupply)
}

func TestBatchMintAggregatesOutcomes(t *testing.T) {
	db := newTestDB(t)
	coordinator := NewMintCoordinator(db, &fakeChainMinter{})

	bt := createBadgeType(t, db, "starter", 0)

	result := coordinator.BatchMint(context.Background(), []BatchMintRequest{
		{UserID: "u1", BadgeTypeID: bt.ID, WalletAddress: "0xa"},
		{UserID: "u1", BadgeTypeID: bt.ID, WalletAddress: "0xa"}, // duplicate → AlreadyOwned
		{UserID: "u2", BadgeTypeID: "no-such-type", WalletAddress: "0xb"},
		{UserID: "u3", BadgeTypeID: bt.ID, WalletAddress: "0xc"},
	})

	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 2, result.FailureCount)
	require.Len(t, result.Results, 4)
	assert.Empty(t, result.Results[0].Error)
	assert.NotEmpty(t, result.Results[1].Error)
	assert.NotEmpty(t, result.Results[2].Error)
	assert.Empty(t, result.Results[3].Error)
}
