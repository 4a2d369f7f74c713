package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
)

type providerRepository struct {
	db *sqlx.DB
}

func NewProviderRepository(db *sqlx.DB) repository.ProviderRepository {
	return &providerRepository{db: db}
}

func (r *providerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	query := `
		SELECT id, name, email, provider_type, specialty, created_at, updated_at
		FROM providers
		WHERE id = $1
	`
	var provider model.Provider
	if err := r.db.GetContext(ctx, &provider, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return &provider, nil
}

func (r *providerRepository) Create(ctx context.Context, provider *model.Provider) error {
	query := `
		INSERT INTO providers (id, name, email, provider_type, specialty, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	now := time.Now()
	provider.CreatedAt = now
	provider.UpdatedAt = now

	if _, err := r.db.ExecContext(ctx, query,
		provider.ID,
		provider.Name,
		provider.Email,
		provider.Type,
		provider.Specialty,
		provider.CreatedAt,
		provider.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	return nil
}

// Working-hours templates are stored as one row per provider with the
// weekday set, break windows and holidays serialized as JSON. The
// template is read far more often than written; serialization keeps the
// schema flat without a join per availability query.
type workingHoursRow struct {
	ProviderID          uuid.UUID       `db:"provider_id"`
	WorkingDays         json.RawMessage `db:"working_days"`
	DayStartMinute      int             `db:"day_start_minute"`
	DayEndMinute        int             `db:"day_end_minute"`
	SlotDurationMinutes int             `db:"slot_duration_minutes"`
	Breaks              json.RawMessage `db:"breaks"`
	Holidays            json.RawMessage `db:"holidays"`
}

func (r *providerRepository) GetWorkingHours(ctx context.Context, providerID uuid.UUID) (*model.WorkingHours, error) {
	query := `
		SELECT provider_id, working_days, day_start_minute, day_end_minute,
		       slot_duration_minutes, breaks, holidays
		FROM provider_working_hours
		WHERE provider_id = $1
	`
	var row workingHoursRow
	if err := r.db.GetContext(ctx, &row, query, providerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrWorkingHoursNotFound
		}
		return nil, fmt.Errorf("failed to get working hours: %w", err)
	}

	var days []time.Weekday
	if err := json.Unmarshal(row.WorkingDays, &days); err != nil {
		return nil, fmt.Errorf("failed to decode working days: %w", err)
	}
	var breaks []model.BreakWindow
	if len(row.Breaks) > 0 {
		if err := json.Unmarshal(row.Breaks, &breaks); err != nil {
			return nil, fmt.Errorf("failed to decode breaks: %w", err)
		}
	}
	var holidays []string
	if len(row.Holidays) > 0 {
		if err := json.Unmarshal(row.Holidays, &holidays); err != nil {
			return nil, fmt.Errorf("failed to decode holidays: %w", err)
		}
	}

	return model.NewWorkingHours(
		row.ProviderID,
		days,
		row.DayStartMinute,
		row.DayEndMinute,
		row.SlotDurationMinutes,
		breaks,
		holidays,
	)
}

func (r *providerRepository) UpsertWorkingHours(ctx context.Context, hours *model.WorkingHours) error {
	days, err := json.Marshal(hours.WorkingDays)
	if err != nil {
		return fmt.Errorf("failed to encode working days: %w", err)
	}
	breaks, err := json.Marshal(hours.Breaks)
	if err != nil {
		return fmt.Errorf("failed to encode breaks: %w", err)
	}
	holidays, err := json.Marshal(hours.Holidays)
	if err != nil {
		return fmt.Errorf("failed to encode holidays: %w", err)
	}

	query := `
		INSERT INTO provider_working_hours (
			provider_id, working_days, day_start_minute, day_end_minute,
			slot_duration_minutes, breaks, holidays, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider_id) DO UPDATE SET
			working_days = EXCLUDED.working_days,
			day_start_minute = EXCLUDED.day_start_minute,
			day_end_minute = EXCLUDED.day_end_minute,
			slot_duration_minutes = EXCLUDED.slot_duration_minutes,
			breaks = EXCLUDED.breaks,
			holidays = EXCLUDED.holidays,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query,
		hours.ProviderID,
		days,
		hours.DayStartMinute,
		hours.DayEndMinute,
		hours.SlotDurationMinutes,
		breaks,
		holidays,
		time.Now(),
	); err != nil {
		return fmt.Errorf("failed to upsert working hours: %w", err)
	}
	return nil
}
