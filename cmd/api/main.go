package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/booking-api/internal/config"
	bookingHandler "github.com/jwalitptl/booking-api/internal/handler/booking"
	healthHandler "github.com/jwalitptl/booking-api/internal/handler/health"
	prescriptionHandler "github.com/jwalitptl/booking-api/internal/handler/prescription"
	providerHandler "github.com/jwalitptl/booking-api/internal/handler/provider"
	"github.com/jwalitptl/booking-api/internal/middleware"
	"github.com/jwalitptl/booking-api/internal/repository/postgres"
	"github.com/jwalitptl/booking-api/internal/router"
	availabilityService "github.com/jwalitptl/booking-api/internal/service/availability"
	bookingService "github.com/jwalitptl/booking-api/internal/service/booking"
	notificationService "github.com/jwalitptl/booking-api/internal/service/notification"
	prescriptionService "github.com/jwalitptl/booking-api/internal/service/prescription"
	providerService "github.com/jwalitptl/booking-api/internal/service/provider"
	referenceService "github.com/jwalitptl/booking-api/internal/service/reference"
	"github.com/jwalitptl/booking-api/pkg/auth"
	"github.com/jwalitptl/booking-api/pkg/clock"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	bookingRepo := postgres.NewBookingRepository(db)
	providerRepo := postgres.NewProviderRepository(db)
	prescriptionRepo := postgres.NewPrescriptionRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	clk := clock.System()
	m := metrics.NewMetrics("booking_api", "api")

	availabilitySvc := availabilityService.NewService(providerRepo, clk, cfg.Scheduling.AvailabilityCacheTTL)
	generator := referenceService.NewGenerator(clk, cfg.Scheduling.ReferenceMaxAttempts).
		WithRetryHook(func(int) { m.ReferenceRetries.Inc() })
	notifier := notificationService.NewService(outboxRepo, appLogger)

	bookingSvc := bookingService.NewService(
		bookingRepo,
		providerRepo,
		availabilitySvc,
		generator,
		notifier,
		clk,
		appLogger,
		bookingService.RankerConfig{
			SearchHorizonDays:      cfg.Scheduling.SearchHorizonDays,
			MaxAlternatives:        cfg.Scheduling.MaxAlternatives,
			DayOffsetWeightMinutes: cfg.Scheduling.DayOffsetWeightMinutes,
		},
	)
	providerSvc := providerService.NewService(providerRepo, availabilitySvc, appLogger)
	prescriptionSvc := prescriptionService.NewService(prescriptionRepo, bookingRepo, generator, notifier, clk, appLogger)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	authMiddleware := middleware.NewAuthMiddleware(jwtService)

	r := router.NewRouter(
		authMiddleware,
		healthHandler.NewHandler(db),
		bookingHandler.NewHandler(bookingSvc, m),
		providerHandler.NewHandler(providerSvc, bookingSvc),
		prescriptionHandler.NewHandler(prescriptionSvc),
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			RequestTimeout:   time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
			CORSConfig:       middleware.DefaultCORSConfig(),
			MetricsPrefix:    "booking_api",
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		appLogger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
}
