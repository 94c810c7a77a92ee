package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"health-rewards-system/handlers"
	"health-rewards-system/middleware"
	"health-rewards-system/models"
	"health-rewards-system/services"
	"health-rewards-system/utils"
	"health-rewards-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // 10MB — badge icons at most
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.UserActivity{},
		&models.BadgeType{},
		&models.BadgeCondition{},
		&models.BadgeProgress{},
		&models.UserBadge{},
		&models.WalletMirror{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	seedDefaultBadges(db)

	retentionDays := 0
	if v := os.Getenv("ACTIVITY_RETENTION_DAYS"); v != "" {
		retentionDays, err = strconv.Atoi(v)
		if err != nil || retentionDays < 0 {
			log.Fatal("ACTIVITY_RETENTION_DAYS must be a non-negative integer")
		}
	}

	nftServiceURL := os.Getenv("NFT_SERVICE_URL")
	if nftServiceURL == "" {
		log.Fatal("NFT_SERVICE_URL environment variable not set")
	}
	nftServiceToken := os.Getenv("NFT_SERVICE_TOKEN")
	if nftServiceToken == "" {
		log.Fatal("NFT_SERVICE_TOKEN environment variable not set")
	}
	chainClient := services.NewNFTServiceClient(nftServiceURL, nftServiceToken)

	activityService := services.NewActivityService(db, retentionDays)
	progressTracker := services.NewProgressTracker(db)
	mintCoordinator := services.NewMintCoordinator(db, chainClient)
	mintCoordinator.UploadMetadata = utils.UploadBadgeMetadata
	badgeService := services.NewBadgeService(db, activityService, progressTracker, mintCoordinator)
	scheduler := services.NewBadgeScheduler(badgeService, activityService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Wallet mirror polling keeps getWalletAddress lookups local.
	walletSyncClient := workers.NewWalletSyncClient(db)
	go workers.PollWallets(ctx, walletSyncClient, 10*time.Second)

	// Chain reconciliation retries badges minted without chain proof.
	reconciler := workers.NewChainReconciler(db, chainClient)
	go workers.PollPendingBadges(ctx, reconciler, 5*time.Minute)

	if err := scheduler.Start(); err != nil {
		log.Fatal("failed to start badge scheduler:", err)
	}

	handlers.SetupBadgeRoutes(app, badgeService, activityService, mintCoordinator, scheduler)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Badge evaluation scheduler running")
	log.Println("✅ Wallet polling running (every 10s)")
	log.Println("✅ Chain reconciliation running (every 5m)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := scheduler.Stop(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
}

// seedDefaultBadges inserts the starter badge catalogue, keyed by
// badge code so existing rows are left untouched.
func seedDefaultBadges(db *gorm.DB) {
	for _, seed := range models.DefaultBadgeSet {
		var existing models.BadgeType
		err := db.Where("code = ?", seed.Type.Code).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			log.Printf("⚠️  Failed to check badge type %s: %v", seed.Type.Code, err)
			continue
		}

		badgeType := seed.Type
		badgeType.Status = models.BadgeStatusActive
		if err := db.Create(&badgeType).Error; err != nil {
			log.Printf("⚠️  Failed to seed badge type %s: %v", badgeType.Code, err)
			continue
		}
		for _, cond := range seed.Conditions {
			cond.BadgeTypeID = badgeType.ID
			cond.IsActive = true
			if err := db.Create(&cond).Error; err != nil {
				log.Printf("⚠️  Failed to seed condition for badge type %s: %v", badgeType.Code, err)
			}
		}
		log.Printf("🌱 Seeded badge type: %s", badgeType.Code)
	}
}
