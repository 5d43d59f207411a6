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

// --- Routing Rule Repository Methods ---

// CreateRoutingRule persists a new routing rule.
func (r *PostgresRepo) CreateRoutingRule(ctx context.Context, rule *model.RoutingRule) error {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if scopeID != rule.ScopeID {
		return fmt.Errorf("%w: rule ScopeID %s does not match scope ID %s", apperrors.ErrBadRequest, rule.ScopeID, scopeID)
	}
	rule.CreatedAt = utils.Now()
	rule.UpdatedAt = rule.CreatedAt

	operation := func() error {
		if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "CreateRoutingRule", operation)
	observer.ObserveDbOperationDuration("create", "routing_rule", scopeID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to create routing rule after retries", zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// UpdateRoutingRule replaces the mutable fields of an existing routing rule.
func (r *PostgresRepo) UpdateRoutingRule(ctx context.Context, rule *model.RoutingRule) error {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	rule.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.RoutingRule{}).
			Where("id = ? AND scope_id = ?", rule.ID, scopeID).
			Select("name", "priority", "is_active", "workspace_id", "product_types", "zip_codes", "states", "updated_at").
			Updates(rule)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: routing rule %d", apperrors.ErrNotFound, rule.ID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateRoutingRule", operation)
	observer.ObserveDbOperationDuration("update", "routing_rule", scopeID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update routing rule after retries",
			zap.Int64("rule_id", rule.ID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// DeleteRoutingRule removes a routing rule from the scope.
func (r *PostgresRepo) DeleteRoutingRule(ctx context.Context, id int64) error {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("id = ? AND scope_id = ?", id, scopeID).
			Delete(&model.RoutingRule{})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: routing rule %d", apperrors.ErrNotFound, id))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "DeleteRoutingRule", operation)
	observer.ObserveDbOperationDuration("delete", "routing_rule", scopeID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to delete routing rule after retries",
			zap.Int64("rule_id", id),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// GetRoutingRule fetches a single routing rule by ID within the scope.
func (r *PostgresRepo) GetRoutingRule(ctx context.Context, id int64) (*model.RoutingRule, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var rule model.RoutingRule
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND scope_id = ?", id, scopeID).First(&rule)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: routing rule %d: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "GetRoutingRule", operation)
	observer.ObserveDbOperationDuration("find_by_id", "routing_rule", scopeID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to get routing rule after retries",
			zap.Int64("rule_id", id),
			zap.Error(findErr))
		return nil, findErr
	}
	return &rule, nil
}

// ListRoutingRules loads all routing rules for the scope in evaluation order:
// priority ascending, ID ascending on ties.
func (r *PostgresRepo) ListRoutingRules(ctx context.Context) ([]model.RoutingRule, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var ruleSet []model.RoutingRule
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("scope_id = ?", scopeID).
			Order("priority ASC, id ASC").
			Find(&ruleSet)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ListRoutingRules", operation)
	observer.ObserveDbOperationDuration("list", "routing_rule", scopeID, time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to list routing rules after retries",
			zap.String("scope_id", scopeID),
			zap.Error(findErr))
		return nil, findErr
	}
	if ruleSet == nil {
		return []model.RoutingRule{}, nil
	}
	return ruleSet, nil
}

// --- Forwarding Rule Repository Methods ---

// CreateForwardingRule persists a new forwarding rule.
func (r *PostgresRepo) CreateForwardingRule(ctx context.Context, rule *model.ForwardingRule) error {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if scopeID != rule.ScopeID {
		return fmt.Errorf("%w: rule ScopeID %s does not match scope ID %s", apperrors.ErrBadRequest, rule.ScopeID, scopeID)
	}
	rule.CreatedAt = utils.Now()
	rule.UpdatedAt = rule.CreatedAt

	operation := func() error {
		if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "CreateForwardingRule", operation)
	observer.ObserveDbOperationDuration("create", "forwarding_rule", scopeID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to create forwarding rule after retries", zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// UpdateForwardingRule replaces the mutable fields of an existing forwarding rule.
func (r *PostgresRepo) UpdateForwardingRule(ctx context.Context, rule *model.ForwardingRule) error {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	rule.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.ForwardingRule{}).
			Where("id = ? AND scope_id = ?", rule.ID, scopeID).
			Select("name", "priority", "is_active", "forward_enabled", "target_id", "target_url",
				"product_types", "zip_codes", "states", "updated_at").
			Updates(rule)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: forwarding rule %d", apperrors.ErrNotFound, rule.ID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateForwardingRule", operation)
	observer.ObserveDbOperationDuration("update", "forwarding_rule", scopeID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update forwarding rule after retries",
			zap.Int64("rule_id", rule.ID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// DeleteForwardingRule removes a forwarding rule from the scope.
func (r *PostgresRepo) DeleteForwardingRule(ctx context.Context, id int64) error {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("id = ? AND scope_id = ?", id, scopeID).
			Delete(&model.ForwardingRule{})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: forwarding rule %d", apperrors.ErrNotFound, id))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "DeleteForwardingRule", operation)
	observer.ObserveDbOperationDuration("delete", "forwarding_rule", scopeID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to delete forwarding rule after retries",
			zap.Int64("rule_id", id),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// GetForwardingRule fetches a single forwarding rule by ID within the scope.
func (r *PostgresRepo) GetForwardingRule(ctx context.Context, id int64) (*model.ForwardingRule, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var rule model.ForwardingRule
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND scope_id = ?", id, scopeID).First(&rule)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: forwarding rule %d: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "GetForwardingRule", operation)
	observer.ObserveDbOperationDuration("find_by_id", "forwarding_rule", scopeID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to get forwarding rule after retries",
			zap.Int64("rule_id", id),
			zap.Error(findErr))
		return nil, findErr
	}
	return &rule, nil
}

// ListForwardingRules loads all forwarding rules for the scope in evaluation
// order: priority ascending, ID ascending on ties.
func (r *PostgresRepo) ListForwardingRules(ctx context.Context) ([]model.ForwardingRule, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var ruleSet []model.ForwardingRule
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("scope_id = ?", scopeID).
			Order("priority ASC, id ASC").
			Find(&ruleSet)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ListForwardingRules", operation)
	observer.ObserveDbOperationDuration("list", "forwarding_rule", scopeID, time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to list forwarding rules after retries",
			zap.String("scope_id", scopeID),
			zap.Error(findErr))
		return nil, findErr
	}
	if ruleSet == nil {
		return []model.ForwardingRule{}, nil
	}
	return ruleSet, nil
}

// IncrementForwardCount bumps the delivered counter on a forwarding rule
// after a successful delivery.
func (r *PostgresRepo) IncrementForwardCount(ctx context.Context, id int64) error {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.ForwardingRule{}).
			Where("id = ? AND scope_id = ?", id, scopeID).
			Update("forward_count", gorm.Expr("forward_count + 1"))
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			// Rule deleted after delivery was queued; the log entry is still the
			// source of truth, so treat as a no-op.
			logger.FromContext(ctx).Warn("Forward count increment matched no rule", zap.Int64("rule_id", id))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "IncrementForwardCount", operation)
	observer.ObserveDbOperationDuration("increment_forward_count", "forwarding_rule", scopeID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to increment forward count after retries",
			zap.Int64("rule_id", id),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}
