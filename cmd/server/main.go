package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/gatherly/event-payments/internal/config"
	"github.com/gatherly/event-payments/internal/database"
	"github.com/gatherly/event-payments/internal/feepolicy"
	"github.com/gatherly/event-payments/internal/handler"
	"github.com/gatherly/event-payments/internal/middleware"
	"github.com/gatherly/event-payments/internal/provider"
	"github.com/gatherly/event-payments/internal/queue"
	"github.com/gatherly/event-payments/internal/repository"
	"github.com/gatherly/event-payments/internal/router"
	"github.com/gatherly/event-payments/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(migrateCtx, db); err != nil {
		cancel()
		log.Fatalf("schema migration failed: %v", err)
	}
	cancel()

	// Redis is optional; without it the fee cache and rate limiting are
	// disabled and everything reads from MySQL.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; fee cache and rate limiting disabled")
	}

	// Repositories.
	eventRepo := repository.NewEventRepo(db)
	reservationRepo := repository.NewReservationRepo(db)
	orderRepo := repository.NewOrderRepo(db)
	transactionRepo := repository.NewPaymentTransactionRepo(db)
	attendanceRepo := repository.NewAttendanceRepo(db)
	webhookRepo := repository.NewWebhookEventRepo(db)
	feeConfigRepo := repository.NewFeeConfigRepo(db)

	// Services.
	feePolicy := feepolicy.New(feeConfigRepo, rdb, cfg.DefaultFeeBps)
	charger := provider.NewHTTPClient(cfg.ProviderName, cfg.ProviderBaseURL, cfg.ProviderAPIKey, &http.Client{Timeout: 15 * time.Second})
	publisher := queue.NewPublisher(cfg.RabbitURL)
	fulfillment := service.NewFulfillmentCoordinator(cfg.BcryptCost)

	reservationManager := service.NewReservationManager(eventRepo, reservationRepo, cfg.ReservationTTL)
	orderManager := service.NewOrderManager(
		orderRepo, eventRepo, reservationRepo,
		feePolicy, charger, cfg.ProviderName,
		fulfillment, publisher, cfg.OrderTTL,
	)
	webhookProcessor := service.NewWebhookProcessor(webhookRepo, orderManager, cfg.ProviderName, cfg.WebhookSecret)

	// The audit consumer runs for the life of the process and reconnects
	// on broker outages.
	go func() {
		if err := queue.StartAuditConsumer(cfg.RabbitURL); err != nil {
			log.Printf("audit consumer stopped: %v", err)
		}
	}()

	// HTTP surface.
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	reservationHandler := handler.NewReservationHandler(reservationManager)
	orderHandler := handler.NewOrderHandler(orderManager, transactionRepo)
	attendanceHandler := handler.NewAttendanceHandler(attendanceRepo, fulfillment)
	webhookHandler := handler.NewWebhookHandler(webhookProcessor)
	feeConfigHandler := handler.NewFeeConfigHandler(feeConfigRepo, feePolicy)

	router.RegisterRoutes(e, webhookHandler)
	router.RegisterCustomer(e, reservationHandler, orderHandler, attendanceHandler, cfg.JWTSecret)
	router.RegisterAdmin(e, feeConfigHandler, orderHandler, attendanceHandler, cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, provider=%s)", addr, cfg.Env, cfg.ProviderName)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
