package main

import (
	"context"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/booking-api/internal/config"
	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository/postgres"
)

var specialties = []string{"Panchakarma", "Kayachikitsa", "Rasayana", "Marma therapy"}

// Seeds a handful of providers with weekday templates and a few
// scheduled bookings, for local development against a fresh database.
func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	providerRepo := postgres.NewProviderRepository(db)
	bookingRepo := postgres.NewBookingRepository(db)

	ctx := context.Background()
	weekdays := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

	for i := 0; i < 5; i++ {
		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]
		provider := &model.Provider{
			ID:        uuid.New(),
			Name:      "Dr. " + gofakeit.Name(),
			Email:     gofakeit.Email(),
			Type:      model.ProviderTypeDoctor,
			Specialty: &specialty,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := providerRepo.Create(ctx, provider); err != nil {
			log.Fatal().Err(err).Msg("failed to create provider")
		}

		hours, err := model.NewWorkingHours(provider.ID, weekdays, 9*60, 17*60, 30,
			[]model.BreakWindow{{StartMinute: 13 * 60, EndMinute: 14 * 60}}, nil)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid working hours template")
		}
		if err := providerRepo.UpsertWorkingHours(ctx, hours); err != nil {
			log.Fatal().Err(err).Msg("failed to set working hours")
		}

		seedBookings(ctx, bookingRepo, provider.ID)
		log.Info().Str("provider", provider.Name).Msg("seeded provider")
	}
}

func seedBookings(ctx context.Context, repo postgresBookingRepo, providerID uuid.UUID) {
	// Next Monday, a couple of morning slots taken.
	day := nextMonday(time.Now().UTC())
	for _, startMin := range []int{9 * 60, 10 * 60, 15 * 60} {
		start := day.Add(time.Duration(startMin) * time.Minute)
		id := uuid.New()
		booking := &model.ConfirmedBooking{
			ID:          id,
			Reference:   "SEED-" + id.String()[:8],
			ProviderID:  providerID,
			PatientID:   uuid.New(),
			StartTime:   start,
			EndTime:     start.Add(30 * time.Minute),
			SessionType: model.SessionTypeConsultation,
			Fee:         float64(gofakeit.Number(300, 1500)),
			Status:      model.BookingStatusScheduled,
			Notes:       gofakeit.Sentence(6),
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		if err := repo.InsertIfNoConflict(ctx, booking); err != nil {
			log.Warn().Err(err).Msg("skipped seeded booking")
		}
	}
}

type postgresBookingRepo interface {
	InsertIfNoConflict(ctx context.Context, booking *model.ConfirmedBooking) error
}

func nextMonday(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(time.Monday) - int(day.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return day.AddDate(0, 0, offset)
}
