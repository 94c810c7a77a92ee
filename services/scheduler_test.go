package services

import (
	"sync"
	"testing"
	"time"

	"health-rewards-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerSkipsTickWhileTaskIsRunning(t *testing.T) {
	db := newTestDB(t)
	// A slow chain call keeps the first tick's body busy while the
	// other ticks arrive.
	chain := &fakeChainMinter{delay: 150 * time.Millisecond}
	svc := newBadgeService(t, db, chain)
	scheduler := NewBadgeScheduler(svc, svc.Activities)

	bt := createBadgeType(t, db, "starter", 0)
	createCondition(t, db, bt.ID, models.ConditionDailyCheckin, 1, nil)
	createWallet(t, db, "u1", "0xwallet")
	createActivity(t, db, "u1", models.ActivityCheckin, checkNow, nil)

	task := scheduler.tasks["daily_check"]
	require.NotNil(t, task)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.runTask(task)
		}()
	}
	wg.Wait()

	// Overlapping ticks were skipped, not queued: the body ran once.
	assert.Equal(t, int32(1), chain.calls)
	assert.Equal(t, int32(1), chain.maxConcurrent)
	assert.False(t, task.isRunning.Load())

	var count int64
	require.NoError(t, db.Model(&models.UserBadge{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSchedulerClearsGuardWhenBodyFails(t *testing.T) {
	db := newTestDB(t)
	svc := newBadgeService(t, db, &fakeChainMinter{})
	scheduler := NewBadgeScheduler(svc, svc.Activities)
	scheduler.Clock = svc.Clock

	task := scheduler.tasks["continuity_check"]
	require.NotNil(t, task)

	// Poison the DB so the body fails hard, then confirm the guard is
	// still released.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	require.NotPanics(t, func() { scheduler.runTask(task) })
	assert.False(t, task.isRunning.Load())

	// The tick ran even though it bailed out early; the dashboard
	// reports it.
	status := scheduler.GetTaskStatus()
	require.NotNil(t, status["continuity_check"].LastRun)
	assert.Equal(t, checkNow, status["continuity_check"].LastRun.UTC())
}

func TestSchedulerTaskIsolationAcrossUsers(t *testing.T) {
	db := newTestDB(t)
	svc := newBadgeService(t, db, &fakeChainMinter{})
	scheduler := NewBadgeScheduler(svc, svc.Activities)

	bt := createBadgeType(t, db, "starter", 0)
	createCondition(t, db, bt.ID, models.ConditionDailyCheckin, 1, nil)
	createWallet(t, db, "u1", "0xa")
	createWallet(t, db, "u2", "0xb")

	createActivity(t, db, "u1", models.ActivityCheckin, checkNow, nil)
	createActivity(t, db, "u2", models.ActivityCheckin, checkNow, nil)

	scheduler.runTask(scheduler.tasks["daily_check"])

	// Both active users were evaluated in the same tick.
	var count int64
	require.NoError(t, db.Model(&models.UserBadge{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestSchedulerGetTaskStatus(t *testing.T) {
	db := newTestDB(t)
	svc := newBadgeService(t, db, &fakeChainMinter{})
	scheduler := NewBadgeScheduler(svc, svc.Activities)
	scheduler.Clock = svc.Clock

	status := scheduler.GetTaskStatus()
	require.Len(t, status, 3)

	daily, ok := status["daily_check"]
	require.True(t, ok)
	assert.Equal(t, "Daily Check", daily.Name)
	assert.Equal(t, int64(5*60*1000), daily.IntervalMs)
	assert.Nil(t, daily.LastRun)
	assert.False(t, daily.IsRunning)
	assert.False(t, daily.IsActive)

	scheduler.runTask(scheduler.tasks["daily_check"])

	status = scheduler.GetTaskStatus()
	require.NotNil(t, status["daily_check"].LastRun)
	assert.Equal(t, checkNow, status["daily_check"].LastRun.UTC())
}

func TestSchedulerStartStop(t *testing.T) {
	db := newTestDB(t)
	svc := newBadgeService(t, db, &fakeChainMinter{})
	scheduler := NewBadgeScheduler(svc, svc.Activities)

	require.NoError(t, scheduler.Start())
	require.NoError(t, scheduler.Start()) // idempotent

	status := scheduler.GetTaskStatus()
	for _, s := range status {
		assert.True(t, s.IsActive)
	}

	require.NoError(t, scheduler.Stop())
	require.NoError(t, scheduler.Stop()) // idempotent

	status = scheduler.GetTaskStatus()
	for _, s := range status {
		assert.False(t, s.IsActive)
	}
}
