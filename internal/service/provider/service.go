package provider

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/internal/service/availability"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/logger"
)

// Service manages providers and their working-hours templates. A
// template update invalidates every cached slot grid, since grids are
// derived from the template.
type Service struct {
	providers    repository.ProviderRepository
	availability *availability.Service
	logger       *logger.Logger
}

func NewService(providers repository.ProviderRepository, avail *availability.Service, log *logger.Logger) *Service {
	return &Service{providers: providers, availability: avail, logger: log}
}

func (s *Service) Create(ctx context.Context, provider *model.Provider) (*model.Provider, error) {
	if provider.Name == "" {
		return nil, apperrors.NewValidation("name", "provider name is required")
	}
	if provider.ID == uuid.Nil {
		provider.ID = uuid.New()
	}
	now := time.Now()
	provider.CreatedAt = now
	provider.UpdatedAt = now

	if err := s.providers.Create(ctx, provider); err != nil {
		return nil, err
	}
	return provider, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	provider, err := s.providers.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProviderNotFound) {
			return nil, apperrors.NewNotFound("provider", err)
		}
		return nil, err
	}
	return provider, nil
}

func (s *Service) GetWorkingHours(ctx context.Context, providerID uuid.UUID) (*model.WorkingHours, error) {
	hours, err := s.providers.GetWorkingHours(ctx, providerID)
	if err != nil {
		if errors.Is(err, repository.ErrWorkingHoursNotFound) {
			return nil, apperrors.NewNotFound("working hours", err)
		}
		return nil, err
	}
	return hours, nil
}

// UpdateWorkingHours replaces the provider's template and drops every
// cached grid derived from the old one.
func (s *Service) UpdateWorkingHours(ctx context.Context, hours *model.WorkingHours) error {
	if _, err := s.providers.Get(ctx, hours.ProviderID); err != nil {
		if errors.Is(err, repository.ErrProviderNotFound) {
			return apperrors.NewNotFound("provider", err)
		}
		return err
	}

	if err := s.providers.UpsertWorkingHours(ctx, hours); err != nil {
		return err
	}

	s.availability.Invalidate()
	s.logger.Info("working hours updated", "provider_id", hours.ProviderID.String())
	return nil
}
