package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "gitlab.com/leadcore/api/lead-routing-engine/internal/apperrors"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/observer"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/scope"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/logger"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/utils"
)

// --- Lead Repository Methods ---

// CreateLead persists a lead event. Every submission creates a lead row,
// regardless of whether the contact was new or existing.
func (r *PostgresRepo) CreateLead(ctx context.Context, lead *model.Lead) error {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if scopeID != lead.ScopeID {
		return fmt.Errorf("%w: lead ScopeID %s does not match scope ID %s", apperrors.ErrBadRequest, lead.ScopeID, scopeID)
	}
	if lead.Status == "" {
		lead.Status = model.LeadStatusNew
	}
	lead.CreatedAt = utils.Now()

	operation := func() error {
		if err := r.db.WithContext(ctx).Create(lead).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "CreateLead", operation)
	observer.ObserveDbOperationDuration("create", "lead", scopeID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to create lead after retries",
			zap.Int64("contact_id", lead.ContactID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindLeadByID finds a lead by its numeric ID within the scope.
func (r *PostgresRepo) FindLeadByID(ctx context.Context, id int64) (*model.Lead, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var lead model.Lead
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND scope_id = ?", id, scopeID).First(&lead)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: lead_id %d: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindLeadByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "lead", scopeID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find lead by ID after retries",
			zap.Int64("lead_id", id),
			zap.String("scope_id", scopeID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &lead, nil
}

// UpdateLeadStatus transitions a lead to a new status.
func (r *PostgresRepo) UpdateLeadStatus(ctx context.Context, id int64, status string) error {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Lead{}).
			Where("id = ? AND scope_id = ?", id, scopeID).
			Update("status", status)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: lead_id %d", apperrors.ErrNotFound, id))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateLeadStatus", operation)
	observer.ObserveDbOperationDuration("update_status", "lead", scopeID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update lead status after retries",
			zap.Int64("lead_id", id),
			zap.String("status", status),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}
