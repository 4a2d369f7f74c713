package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/booking-api/internal/config"
	"github.com/jwalitptl/booking-api/internal/email"
	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository/postgres"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/messaging"
	redisbroker "github.com/jwalitptl/booking-api/pkg/messaging/redis"
	"github.com/jwalitptl/booking-api/pkg/metrics"
	"github.com/jwalitptl/booking-api/pkg/worker"
)

// workerConfig is read from the environment; the worker runs in
// containers where a config file is not mounted.
type workerConfig struct {
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"bookings"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	RedisURL string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	BatchSize     int           `envconfig:"OUTBOX_BATCH_SIZE" default:"50"`
	PollInterval  time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"5s"`
	RetryAttempts int           `envconfig:"OUTBOX_RETRY_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `envconfig:"OUTBOX_RETRY_DELAY" default:"500ms"`
	RetentionDays int           `envconfig:"OUTBOX_RETENTION_DAYS" default:"7"`

	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	EmailFrom    string `envconfig:"EMAIL_FROM" default:"bookings@clinic.local"`
	NotifyTo     string `envconfig:"NOTIFY_TO" default:"frontdesk@clinic.local"`

	HealthPort string `envconfig:"HEALTH_PORT" default:"8081"`
}

func main() {
	_ = godotenv.Load()

	var cfg workerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load worker configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(config.DatabaseConfig{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Name:     cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redisbroker.NewRedisBroker(redisbroker.Config{
		URL:          cfg.RedisURL,
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
		PoolSize:     10,
		MinIdleConns: 2,
	}, appLogger.Zerolog())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer broker.Close()

	outboxRepo := postgres.NewOutboxRepository(db)
	m := metrics.NewMetrics("booking_api", "worker")

	processor := worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.BatchSize,
		PollInterval:  cfg.PollInterval,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}, appLogger, m)

	cleanup := worker.NewOutboxCleanupWorker(outboxRepo, cfg.RetentionDays, time.Hour, appLogger)

	sender := email.NewSender(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Start(ctx)
	go cleanup.Start(ctx)
	go consumeBookingEvents(ctx, broker, sender, cfg.NotifyTo, appLogger)
	startHealthServer(cfg.HealthPort, appLogger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down worker")
	cancel()
	time.Sleep(time.Second)
}

// consumeBookingEvents turns committed and cancelled booking events into
// emails to the clinic desk. Email failure is logged, never retried
// here; the outbox row was already marked processed when the event was
// published.
func consumeBookingEvents(ctx context.Context, broker messaging.Broker, sender *email.Sender, notifyTo string, appLogger *logger.Logger) {
	channels := []string{model.EventBookingCommitted, model.EventBookingCancelled}
	for _, channel := range channels {
		msgs, err := broker.Subscribe(ctx, channel)
		if err != nil {
			appLogger.Error(err, "failed to subscribe", "channel", channel)
			continue
		}
		go func(channel string, msgs <-chan []byte) {
			for raw := range msgs {
				var msg struct {
					Type    string          `json:"type"`
					Payload json.RawMessage `json:"payload"`
				}
				if err := json.Unmarshal(raw, &msg); err != nil {
					appLogger.Error(err, "failed to decode event", "channel", channel)
					continue
				}
				var booking model.ConfirmedBooking
				if err := json.Unmarshal(msg.Payload, &booking); err != nil {
					appLogger.Error(err, "failed to decode booking payload", "channel", channel)
					continue
				}

				var sendErr error
				switch channel {
				case model.EventBookingCommitted:
					sendErr = sender.BookingConfirmation(notifyTo, &booking)
				case model.EventBookingCancelled:
					sendErr = sender.BookingCancellation(notifyTo, &booking)
				}
				if sendErr != nil {
					appLogger.Error(sendErr, "failed to send email",
						"channel", channel, "reference", booking.Reference)
				}
			}
		}(channel, msgs)
	}
}

func startHealthServer(port string, appLogger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			appLogger.Error(err, "health check server failed")
			os.Exit(1)
		}
	}()
}
