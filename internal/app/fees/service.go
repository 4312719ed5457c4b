package fees

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/infrastructure/cache"
	"vehicle-orders/internal/repository/activity_repo"
	"vehicle-orders/internal/repository/fees_repo"
	"vehicle-orders/internal/util"
)

const (
	cacheNamespace = "fees"
	cacheKey       = "current"
)

type FeeService interface {
	// Current returns the schedule in force, creating the defaults on first use.
	Current(ctx context.Context) (*domain.FeeSettings, error)
	// Update merges patch onto the stored schedule; omitted fields keep their value.
	Update(ctx context.Context, patch domain.FeeSettingsPatch, adminID string) (*domain.FeeSettings, error)
}

type feeService struct {
	tx           domain.Transactor
	feeRepo      fees_repo.FeeRepository
	activityRepo activity_repo.ActivityRepository
	cache        cache.Store
	cacheTTL     time.Duration
	logger       *zap.Logger
}

func NewFeeService(
	tx domain.Transactor,
	feeRepo fees_repo.FeeRepository,
	activityRepo activity_repo.ActivityRepository,
	store cache.Store,
	cacheTTL time.Duration,
	logger *zap.Logger,
) FeeService {
	if store == nil {
		store = cache.Noop{}
	}
	return &feeService{
		tx:           tx,
		feeRepo:      feeRepo,
		activityRepo: activityRepo,
		cache:        store,
		cacheTTL:     cacheTTL,
		logger:       logger,
	}
}

func (s *feeService) Current(ctx context.Context) (*domain.FeeSettings, error) {
	var cached domain.FeeSettings
	err := s.cache.GetJSON(ctx, cacheNamespace, cacheKey, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("Fee schedule cache read failed, falling back to store", zap.Error(err))
	}

	settings, err := s.feeRepo.GetTx(ctx, s.tx.Querier())
	if errors.Is(err, domain.ErrNotFound) {
		settings, err = s.createDefaults(ctx)
	}
	if err != nil {
		s.logger.Error("Failed to load fee schedule", zap.Error(err))
		return nil, fmt.Errorf("failed to load fee schedule: %w", err)
	}

	if err := s.cache.SetJSON(ctx, cacheNamespace, cacheKey, settings, s.cacheTTL); err != nil {
		s.logger.Warn("Failed to cache fee schedule", zap.Error(err))
	}
	return settings, nil
}

// createDefaults inserts the default schedule unless a concurrent caller won
// the race, then re-reads whatever is stored.
func (s *feeService) createDefaults(ctx context.Context) (*domain.FeeSettings, error) {
	defaults := domain.DefaultFeeSettings()
	defaults.UpdatedAt = time.Now().UTC()

	var settings *domain.FeeSettings
	err := s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		if err := s.feeRepo.InsertIfAbsentTx(ctx, q, &defaults); err != nil {
			return err
		}
		var err error
		settings, err = s.feeRepo.GetTx(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Default fee schedule created")
	return settings, nil
}

func (s *feeService) Update(ctx context.Context, patch domain.FeeSettingsPatch, adminID string) (*domain.FeeSettings, error) {
	if patch.IsEmpty() {
		return nil, domain.NewValidationError("fee update must set at least one field", domain.FieldError{Field: "body", Message: "empty"})
	}
	if _, err := s.Current(ctx); err != nil {
		return nil, err
	}

	var settings domain.FeeSettings
	err := s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		stored, err := s.feeRepo.GetTx(ctx, q)
		if err != nil {
			return err
		}
		settings = patch.ApplyTo(*stored)
		if err := settings.Validate(); err != nil {
			return err
		}
		settings.UpdatedBy = adminID
		settings.UpdatedAt = time.Now().UTC()
		return s.feeRepo.UpdateTx(ctx, q, &settings)
	})
	if errors.Is(err, domain.ErrValidation) {
		return nil, err
	}
	if err != nil {
		s.logger.Error("Failed to update fee schedule", zap.String("admin_id", adminID), zap.Error(err))
		return nil, fmt.Errorf("failed to update fee schedule: %w", err)
	}

	if err := s.cache.Delete(ctx, cacheNamespace, cacheKey); err != nil {
		s.logger.Warn("Failed to invalidate fee schedule cache", zap.Error(err))
	}
	s.recordActivity(ctx, adminID, settings)
	s.logger.Info("Fee schedule updated", zap.String("admin_id", adminID))
	return &settings, nil
}

func (s *feeService) recordActivity(ctx context.Context, adminID string, settings domain.FeeSettings) {
	details, err := json.Marshal(settings)
	if err != nil {
		s.logger.Warn("Failed to encode fee update activity", zap.Error(err))
		return
	}
	activity := &domain.AdminActivity{
		ID:        util.GenerateUUID(),
		ActorID:   adminID,
		Action:    "fees.update",
		SubjectID: "fee_settings",
		Details:   details,
		CreatedAt: settings.UpdatedAt,
	}
	if err := s.activityRepo.CreateTx(ctx, s.tx.Querier(), activity); err != nil {
		s.logger.Warn("Failed to record fee update activity", zap.Error(err))
	}
}
