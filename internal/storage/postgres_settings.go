package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "gitlab.com/leadcore/api/lead-routing-engine/internal/apperrors"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/observer"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/scope"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/logger"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/utils"
)

// --- Scope Settings Repository Methods ---

// GetScopeSettings fetches the settings row for the scope. A scope with no
// row has forwarding enabled; the toggle only exists once an admin flips it.
func (r *PostgresRepo) GetScopeSettings(ctx context.Context) (*model.ScopeSettings, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var settings model.ScopeSettings
	operation := func() error {
		result := r.db.WithContext(ctx).Where("scope_id = ?", scopeID).First(&settings)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: scope settings %s: %w", apperrors.ErrNotFound, scopeID, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "GetScopeSettings", operation)
	observer.ObserveDbOperationDuration("find", "scope_settings", scopeID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return &model.ScopeSettings{ScopeID: scopeID, ForwardingEnabled: true}, nil
		}
		logger.FromContext(ctx).Error("Failed to get scope settings after retries",
			zap.String("scope_id", scopeID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &settings, nil
}

// SetForwardingEnabled upserts the master forwarding toggle for the scope.
func (r *PostgresRepo) SetForwardingEnabled(ctx context.Context, enabled bool) error {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	settings := model.ScopeSettings{
		ScopeID:           scopeID,
		ForwardingEnabled: enabled,
		UpdatedAt:         utils.Now(),
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scope_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"forwarding_enabled", "updated_at"}),
		}).Create(&settings)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SetForwardingEnabled", operation)
	observer.ObserveDbOperationDuration("upsert", "scope_settings", scopeID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to set forwarding toggle after retries",
			zap.String("scope_id", scopeID),
			zap.Bool("enabled", enabled),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}
