// handlers/badge_routes.go
package handlers

import (
	"fmt"
	"log"

	"health-rewards-system/middleware"
	"health-rewards-system/models"
	"health-rewards-system/services"
	"health-rewards-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"github.com/google/uuid"
)

func SetupBadgeRoutes(
	app *fiber.App,
	badgeService *services.BadgeService,
	activityService *services.ActivityService,
	mintCoordinator *services.MintCoordinator,
	scheduler *services.BadgeScheduler,
) {
	// 🔐 Secured routes — require user context (userID, roles) from Gateway
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	// Record an activity event. Any feature (login, goal completion,
	// data entry) funnels through here; recording also runs an
	// opportunistic condition check for the user.
	securedGroup.Post("/activity", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var body struct {
			ActivityType string         `json:"activity_type"`
			Payload      models.JSONMap `json:"payload"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
		if body.ActivityType == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "activity_type is required",
			})
		}

		act, err := badgeService.RecordUserActivity(c.UserContext(), userID, models.ActivityType(body.ActivityType), body.Payload)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to record activity",
				"cause": err.Error(),
			})
		}

		return c.Status(fiber.StatusCreated).JSON(act)
	})

	// On-demand evaluation for the calling user. Internal evaluation
	// failures are absorbed into an empty result, never a 500.
	securedGroup.Post("/user/badges/check", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		results, err := badgeService.CheckUserConditions(c.UserContext(), userID)
		if err != nil {
			log.Printf("[Badge] ⚠️  On-demand check failed for user %s: %v", userID, err)
			results = nil
		}
		if results == nil {
			results = []services.ConditionCheckResult{}
		}

		return c.JSON(fiber.Map{"results": results})
	})

	securedGroup.Get("/user/badges", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		badges, err := badgeService.UserBadges(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to fetch badges",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"badges": badges})
	})

	securedGroup.Get("/user/badges/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		progress, err := badgeService.UserProgress(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to fetch badge progress",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"progress": progress})
	})

	// 🔐 Admin routes
	adminGroup := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	adminGroup.Post("/badge-types", func(c *fiber.Ctx) error {
		var body struct {
			Code        string `json:"code"`
			Name        string `json:"name"`
			Description string `json:"description"`
			Rarity      string `json:"rarity"`
			MaxSupply   int64  `json:"max_supply"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
		if body.Name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "name is required",
			})
		}
		if body.Code == "" {
			body.Code = slug.Make(body.Name)
		}
		if body.Rarity == "" {
			body.Rarity = "common"
		}

		badgeType := models.BadgeType{
			Code:        body.Code,
			Name:        body.Name,
			Description: body.Description,
			Rarity:      body.Rarity,
			MaxSupply:   body.MaxSupply,
			Status:      models.BadgeStatusActive,
		}

		// Optional icon upload (multipart)
		if fileHeader, err := c.FormFile("icon"); err == nil && fileHeader != nil {
			key := fmt.Sprintf("badges/icons/%s-%s", uuid.NewString(), fileHeader.Filename)
			url, err := utils.UploadFileToR2(fileHeader, key)
			if err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "failed to upload badge icon",
					"cause": err.Error(),
				})
			}
			badgeType.IconURL = url
		}

		if err := badgeService.DB.Create(&badgeType).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to create badge type",
				"cause": err.Error(),
			})
		}

		return c.Status(fiber.StatusCreated).JSON(badgeType)
	})

	adminGroup.Post("/badge-conditions", func(c *fiber.Ctx) error {
		var body struct {
			BadgeTypeID   string         `json:"badge_type_id"`
			ConditionType string         `json:"condition_type"`
			TargetValue   int64          `json:"target_value"`
			Metadata      models.JSONMap `json:"metadata"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
		if body.BadgeTypeID == "" || body.TargetValue <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "badge_type_id and a positive target_value are required",
			})
		}

		condType := models.ConditionType(body.ConditionType)
		meta, err := models.ParseConditionMetadata(condType, body.Metadata)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid condition metadata",
				"cause": err.Error(),
			})
		}

		var badgeType models.BadgeType
		if err := badgeService.DB.Where("id = ?", body.BadgeTypeID).First(&badgeType).Error; err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "unknown badge_type_id",
			})
		}

		// A lookback longer than retention silently under-counts —
		// flag it now, at configuration time, not at evaluation time.
		var warnings []string
		if retention := activityService.RetentionDays; retention > 0 {
			lookback := meta.LookbackDays(condType, body.TargetValue)
			if lookback == 0 || lookback > retention {
				w := fmt.Sprintf("condition lookback (%d days, 0 = unbounded) exceeds activity retention (%d days); evaluation will under-count", lookback, retention)
				log.Printf("⚠️  [Badge] %s (badge type %s)", w, badgeType.Code)
				warnings = append(warnings, w)
			}
		}

		condition := models.BadgeCondition{
			BadgeTypeID:   body.BadgeTypeID,
			ConditionType: condType,
			TargetValue:   body.TargetValue,
			Metadata:      body.Metadata,
			IsActive:      true,
		}
		if err := badgeService.DB.Create(&condition).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to create badge condition",
				"cause": err.Error(),
			})
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"condition": condition,
			"warnings":  warnings,
		})
	})

	adminGroup.Get("/tasks", func(c *fiber.Ctx) error {
		return c.JSON(scheduler.GetTaskStatus())
	})

	adminGroup.Get("/activity/stats", func(c *fiber.Ctx) error {
		stats, err := activityService.Stats()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to compute activity stats",
				"cause": err.Error(),
			})
		}
		return c.JSON(stats)
	})

	adminGroup.Post("/badges/batch-mint", func(c *fiber.Ctx) error {
		var body struct {
			Requests []services.BatchMintRequest `json:"requests"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
		if len(body.Requests) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "requests must not be empty",
			})
		}

		// Resolve missing wallet addresses from the local mirror.
		for i := range body.Requests {
			if body.Requests[i].WalletAddress == "" {
				wallet, err := badgeService.GetWalletAddress(body.Requests[i].UserID)
				if err == nil {
					body.Requests[i].WalletAddress = wallet
				}
			}
		}

		return c.JSON(mintCoordinator.BatchMint(c.UserContext(), body.Requests))
	})
}
