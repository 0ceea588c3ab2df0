package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lessonhub/tutor_platform/internal/app"
	"github.com/lessonhub/tutor_platform/internal/config"
	"github.com/lessonhub/tutor_platform/internal/controller/handlers"
	"github.com/lessonhub/tutor_platform/internal/repository"
	"github.com/lessonhub/tutor_platform/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, cfg.MigrationsPath, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	migrator.Close()

	// Репозитории
	slotRepo := repository.NewSlotRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	requestRepo := repository.NewRequestRepository(pool, sessionRepo)
	paymentRepo := repository.NewPaymentRepository(pool)
	otpRepo := repository.NewOTPRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool, slotRepo, sessionRepo, paymentRepo)

	// Сервисы
	notifier := service.NewLogNotifier(logger)

	var tokens service.TokenIssuer
	if cfg.MidtransServerKey != "" {
		tokens = service.NewSnapGateway(cfg.MidtransServerKey)
	} else {
		logger.Warn("MIDTRANS_SERVER_KEY is not set, bookings are created without gateway tokens")
	}

	availabilityService := service.NewAvailabilityService(slotRepo, bookingRepo, tokens, logger)
	sessionService := service.NewSessionService(sessionRepo, requestRepo, notifier, logger)
	paymentService := service.NewPaymentService(paymentRepo, logger)
	otpService := service.NewOTPService(otpRepo, notifier, logger)

	// HTTP
	fiberApp := fiber.New(fiber.Config{AppName: "tutor_platform"})
	handler := handlers.NewHandler(availabilityService, sessionService, paymentService, otpService, logger)
	handlers.RegisterRoutes(fiberApp, handler)

	// Фоновые свипы
	scheduler := app.NewScheduler(availabilityService, sessionService, logger)
	scheduler.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", cfg.HTTPAddr))
		return fiberApp.Listen(cfg.HTTPAddr)
	})

	g.Go(func() error {
		<-gctx.Done()
		scheduler.Stop()
		return fiberApp.Shutdown()
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
