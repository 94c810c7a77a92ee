package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"health-rewards-system/models"
	"health-rewards-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB, *services.ActivityService) {
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

	activityService := services.NewActivityService(db, 14)
	progressTracker := services.NewProgressTracker(db)
	mintCoordinator := services.NewMintCoordinator(db, nil)
	badgeService := services.NewBadgeService(db, activityService, progressTracker, mintCoordinator)
	scheduler := services.NewBadgeScheduler(badgeService, activityService)

	app := fiber.New()
	SetupBadgeRoutes(app, badgeService, activityService, mintCoordinator, scheduler)
	return app, db, activityService
}

func jsonRequest(method, target string, body interface{}, headers map[string]string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

var userHeaders = map[string]string{"X-User-ID": "u1"}
var adminHeaders = map[string]string{"X-User-ID": "admin1", "X-User-Roles": "admin"}

func TestRecordActivityEndpoint(t *testing.T) {
	app, db, _ := newTestApp(t)

	resp, err := app.Test(jsonRequest("POST", "/activity", fiber.Map{
		"activity_type": "checkin",
		"payload":       fiber.Map{"source": "mobile"},
	}, userHeaders))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var count int64
	require.NoError(t, db.Model(&models.UserActivity{}).Where("user_id = ?", "u1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordActivityRejectsMissingType(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(jsonRequest("POST", "/activity", fiber.Map{}, userHeaders))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRecordActivityRequiresUserContext(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(jsonRequest("POST", "/activity", fiber.Map{"activity_type": "checkin"}, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestOnDemandCheckReturnsResults(t *testing.T) {
	app, db, _ := newTestApp(t)

	bt := &models.BadgeType{Code: "starter", Name: "Starter", Status: models.BadgeStatusActive}
	require.NoError(t, db.Create(bt).Error)
	require.NoError(t, db.Create(&models.BadgeCondition{
		BadgeTypeID:   bt.ID,
		ConditionType: models.ConditionDailyCheckin,
		TargetValue:   7,
		IsActive:      true,
	}).Error)

	resp, err := app.Test(jsonRequest("POST", "/user/badges/check", nil, userHeaders))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Results []services.ConditionCheckResult `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Results, 1)
	assert.False(t, body.Results[0].IsCompleted)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(jsonRequest("GET", "/admin/tasks", nil, userHeaders))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, err = app.Test(jsonRequest("GET", "/admin/tasks", nil, adminHeaders))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var status map[string]services.TaskStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Len(t, status, 3)
}

func TestCreateBadgeConditionValidatesMetadata(t *testing.T) {
	app, db, _ := newTestApp(t)

	bt := &models.BadgeType{Code: "starter", Name: "Starter", Status: models.BadgeStatusActive}
	require.NoError(t, db.Create(bt).Error)

	// Milestone without a field is malformed.
	resp, err := app.Test(jsonRequest("POST", "/admin/badge-conditions", fiber.Map{
		"badge_type_id":  bt.ID,
		"condition_type": "MILESTONE",
		"target_value":   500,
	}, adminHeaders))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var count int64
	require.NoError(t, db.Model(&models.BadgeCondition{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateBadgeConditionFlagsLookbackBeyondRetention(t *testing.T) {
	app, db, _ := newTestApp(t) // retention is 14 days

	bt := &models.BadgeType{Code: "starter", Name: "Starter", Status: models.BadgeStatusActive}
	require.NoError(t, db.Create(bt).Error)

	resp, err := app.Test(jsonRequest("POST", "/admin/badge-conditions", fiber.Map{
		"badge_type_id":  bt.ID,
		"condition_type": "DAILY_CHECKIN",
		"target_value":   7,
		"metadata":       fiber.Map{"days": 30},
	}, adminHeaders))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body struct {
		Warnings []string `json:"warnings"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	// 30-day lookback against 14-day retention gets flagged now, not
	// at evaluation time.
	require.Len(t, body.Warnings, 1)
}

func TestActivityStatsEndpoint(t *testing.T) {
	app, db, _ := newTestApp(t)

	require.NoError(t, db.Create(&models.UserActivity{
		UserID:       "u1",
		ActivityType: models.ActivityLogin,
	}).Error)

	resp, err := app.Test(jsonRequest("GET", "/admin/activity/stats", nil, adminHeaders))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var stats services.ActivityStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TotalActivities)
}
