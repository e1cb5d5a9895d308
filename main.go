package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"pft-node-service/handlers"
	"pft-node-service/middleware"
	"pft-node-service/models"
	"pft-node-service/services"
	"pft-node-service/utils"
	"pft-node-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// Health check stays open; everything else requires the service token.
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Use(middleware.ServiceAuthMiddleware())

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Transaction{},
		&models.MemoRecord{},
		&models.Balance{},
		&models.ProcessingResult{},
		&models.AuthorizedAddress{},
		&models.ModerationAction{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ingestService := services.NewIngestService(db)
	if batchSize := envInt("INGEST_BATCH_SIZE", services.DefaultIngestBatchSize); batchSize > 0 {
		ingestService.BatchSize = batchSize
	}
	correlatorService := services.NewCorrelatorService(db)
	balanceService := services.NewBalanceService(db)
	authService := services.NewAuthorizationService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ledger polling — pulls transaction batches from the external ledger client.
	pollInterval := time.Duration(envInt("LEDGER_POLL_INTERVAL_SECONDS", 10)) * time.Second
	if os.Getenv("LEDGER_CLIENT_URL") != "" {
		ledgerSyncClient := workers.NewLedgerSyncClient(db, ingestService)
		go workers.PollLedger(ctx, ledgerSyncClient, pollInterval)
	} else {
		log.Println("⚠️  LEDGER_CLIENT_URL not set — ledger polling disabled, ingest via POST /transactions only")
	}

	// Raw-ledger archive to R2 — optional cold-history export.
	if os.Getenv("ARCHIVE_ENABLED") == "true" {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		archiveWorker := workers.NewArchiveWorker(db)
		go workers.RunArchiver(ctx, archiveWorker, 5*time.Minute)
	}

	sweepInterval := time.Duration(envInt("FLAG_SWEEP_INTERVAL_SECONDS", 300)) * time.Second
	authService.StartFlagSweepScheduler(sweepInterval)

	handlers.SetupTransactionRoutes(app, ingestService, correlatorService, balanceService)
	handlers.SetupModerationRoutes(app, authService)

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":5300"
	}

	go func() {
		if err := app.Listen(listenAddr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on %s", listenAddr)
	log.Printf("✅ Flag sweep running (every %s)", sweepInterval)
	log.Println("✅ ServiceAuthMiddleware enforced — all requests must carry the service token")

	<-ctx.Done()
	log.Println("Shutting down server...")
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %d", name, raw, fallback)
		return fallback
	}
	return value
}
