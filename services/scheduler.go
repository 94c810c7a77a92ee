// services/scheduler.go
package services

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"health-rewards-system/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// ScheduledTask is process-wide scheduler state. isRunning is a
// reentrancy guard, not a queue: a tick that lands while the previous
// body is still going is skipped outright.
type ScheduledTask struct {
	ID             string
	Name           string
	Interval       time.Duration
	ConditionTypes []models.ConditionType

	isRunning atomic.Bool

	mu      sync.Mutex
	lastRun time.Time
}

// TaskStatus is the dashboard view of one scheduled task.
type TaskStatus struct {
	Name       string     `json:"name"`
	IntervalMs int64      `json:"interval_ms"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	IsRunning  bool       `json:"is_running"`
	IsActive   bool       `json:"is_active"`
}

// BadgeScheduler owns the periodic evaluation sweeps. The three
// default tasks are independently timed and may overlap each other;
// only same-task re-entry is guarded.
type BadgeScheduler struct {
	Badges     *BadgeService
	Activities *ActivityService
	Clock      clockwork.Clock

	mu      sync.RWMutex
	tasks   map[string]*ScheduledTask
	sched   gocron.Scheduler
	started bool
}

func NewBadgeScheduler(badges *BadgeService, activities *ActivityService) *BadgeScheduler {
	s := &BadgeScheduler{
		Badges:     badges,
		Activities: activities,
		Clock:      clockwork.NewRealClock(),
		tasks:      make(map[string]*ScheduledTask),
	}

	s.register(&ScheduledTask{
		ID:             "continuity_check",
		Name:           "Continuity Check",
		Interval:       1 * time.Minute,
		ConditionTypes: []models.ConditionType{models.ConditionConsecutiveDays},
	})
	s.register(&ScheduledTask{
		ID:       "daily_check",
		Name:     "Daily Check",
		Interval: 5 * time.Minute,
		ConditionTypes: []models.ConditionType{
			models.ConditionDailyCheckin,
			models.ConditionTotalActivities,
			models.ConditionHealthScore,
		},
	})
	s.register(&ScheduledTask{
		ID:       "achievement_check",
		Name:     "Achievement Check",
		Interval: 1 * time.Hour,
		ConditionTypes: []models.ConditionType{
			models.ConditionMilestone,
			models.ConditionSpecialEvent,
		},
	})

	return s
}

func (s *BadgeScheduler) register(t *ScheduledTask) {
	s.tasks[t.ID] = t
}

// Start creates the timers. Idempotent; a second Start is a no-op.
func (s *BadgeScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	sched, err := gocron.NewScheduler(gocron.WithClock(s.Clock))
	if err != nil {
		return err
	}

	for _, task := range s.tasks {
		t := task
		if _, err := sched.NewJob(
			gocron.DurationJob(t.Interval),
			gocron.NewTask(func() { s.runTask(t) }),
			gocron.WithName(t.ID),
		); err != nil {
			return err
		}
	}

	// Daily retention trim rides the same scheduler when a retention
	// window is configured.
	if s.Activities.RetentionDays > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(24*time.Hour),
			gocron.NewTask(func() {
				if _, err := s.Activities.TrimRetention(); err != nil {
					log.Printf("[Scheduler] ❌ Retention trim failed: %v", err)
				}
			}),
			gocron.WithName("retention_trim"),
		); err != nil {
			return err
		}
	}

	sched.Start()
	s.sched = sched
	s.started = true
	log.Printf("[Scheduler] ✅ Started %d badge evaluation tasks", len(s.tasks))
	return nil
}

// Stop clears all timers. A task body already in flight runs to
// completion; the engine never interrupts an evaluation.
func (s *BadgeScheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	log.Println("[Scheduler] Stopping badge evaluation tasks...")
	return s.sched.Shutdown()
}

// runTask is one tick. The tick's top-level handler is the last line
// of defense: nothing propagates out, and the guard is cleared on
// every exit path.
func (s *BadgeScheduler) runTask(t *ScheduledTask) {
	if !t.isRunning.CompareAndSwap(false, true) {
		log.Printf("[Scheduler] ⏭  %s still running, skipping tick", t.Name)
		return
	}
	defer t.isRunning.Store(false)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Scheduler] ❌ %s panicked: %v", t.Name, r)
		}
	}()

	// Every tick that gets past the guard counts as a run, even one
	// that bails out early on an error.
	t.mu.Lock()
	t.lastRun = s.Clock.Now()
	t.mu.Unlock()

	users, err := s.Activities.ActiveUsers(DefaultActiveUserWindow)
	if err != nil {
		log.Printf("[Scheduler] ❌ %s: failed to enumerate active users: %v", t.Name, err)
		return
	}

	ctx := context.Background()
	for _, userID := range users {
		// A per-user failure never stops the rest of the tick.
		if _, err := s.Badges.CheckUserConditionsOfTypes(ctx, userID, t.ConditionTypes); err != nil {
			log.Printf("[Scheduler] ❌ %s: evaluation failed for user %s: %v", t.Name, userID, err)
		}
	}
}

// GetTaskStatus reports every task for the ops dashboard.
func (s *BadgeScheduler) GetTaskStatus() map[string]TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]TaskStatus, len(s.tasks))
	for id, t := range s.tasks {
		t.mu.Lock()
		lastRun := t.lastRun
		t.mu.Unlock()

		status := TaskStatus{
			Name:       t.Name,
			IntervalMs: t.Interval.Milliseconds(),
			IsRunning:  t.isRunning.Load(),
			IsActive:   s.started,
		}
		if !lastRun.IsZero() {
			lr := lastRun
			status.LastRun = &lr
		}
		out[id] = status
	}
	return out
}
