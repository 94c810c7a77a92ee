package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"health-rewards-system/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.UserActivity{},
		&models.BadgeType{},
		&models.BadgeCondition{},
		&models.BadgeProgress{},
		&models.UserBadge{},
		&models.WalletMirror{},
	))
	return db
}

func createBadgeType(t *testing.T, db *gorm.DB, code string, maxSupply int64) *models.BadgeType {
	t.Helper()
	bt := &models.BadgeType{
		Code:      code,
		Name:      code,
		Rarity:    "common",
		MaxSupply: maxSupply,
		Status:    models.BadgeStatusActive,
	}
	require.NoError(t, db.Create(bt).Error)
	return bt
}

func createCondition(t *testing.T, db *gorm.DB, badgeTypeID string, ct models.ConditionType, target int64, meta models.JSONMap) *models.BadgeCondition {
	t.Helper()
	cond := &models.BadgeCondition{
		BadgeTypeID:   badgeTypeID,
		ConditionType: ct,
		TargetValue:   target,
		Metadata:      meta,
		IsActive:      true,
	}
	require.NoError(t, db.Create(cond).Error)
	return cond
}

func createWallet(t *testing.T, db *gorm.DB, userID, address string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, db.Create(&models.WalletMirror{
		ID:           address,
		UserID:       userID,
		Chain:        "bsc",
		Address:      address,
		IsActive:     true,
		LastSyncedAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}).Error)
}

func createActivity(t *testing.T, db *gorm.DB, userID string, at models.ActivityType, when time.Time, payload models.JSONMap) {
	t.Helper()
	require.NoError(t, db.Create(&models.UserActivity{
		UserID:       userID,
		ActivityType: at,
		Payload:      payload,
		CreatedAt:    when.UTC(),
	}).Error)
}

var errChainDown = errors.New("chain rpc unavailable")

// fakeChainMinter stands in for the NFT service. It tracks call counts
// and the maximum number of concurrent calls it observed.
type fakeChainMinter struct {
	mu            sync.Mutex
	fail          bool
	delay         time.Duration
	calls         int32
	concurrent    int32
	maxConcurrent int32
	nextToken     int64
}

func (f *fakeChainMinter) MintBadge(ctx context.Context, walletAddress, badgeTypeID, metadataURL string) (*ChainMintResult, error) {
	atomic.AddInt32(&f.calls, 1)
	cur := atomic.AddInt32(&f.concurrent, 1)
	defer atomic.AddInt32(&f.concurrent, -1)
	for {
		max := atomic.LoadInt32(&f.maxConcurrent)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxConcurrent, max, cur) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errChainDown
	}
	f.nextToken++
	return &ChainMintResult{TokenID: f.nextToken, TransactionHash: "0xabc"}, nil
}
