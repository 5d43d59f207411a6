package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "gitlab.com/leadcore/api/lead-routing-engine/internal/apperrors"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/observer"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/scope"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/logger"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/utils"
)

// --- Forwarding Log Repository Methods ---

// AppendForwardingLog records one delivery attempt outcome. The log is
// append-only; rows are never updated or deleted.
func (r *PostgresRepo) AppendForwardingLog(ctx context.Context, entry *model.ForwardingLog) error {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if scopeID != entry.ScopeID {
		return fmt.Errorf("%w: log ScopeID %s does not match scope ID %s", apperrors.ErrBadRequest, entry.ScopeID, scopeID)
	}
	if entry.AttemptedAt.IsZero() {
		entry.AttemptedAt = utils.Now()
	}
	entry.CreatedAt = utils.Now()

	operation := func() error {
		if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "AppendForwardingLog", operation)
	observer.ObserveDbOperationDuration("append", "forwarding_log", scopeID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to append forwarding log after retries",
			zap.String("delivery_id", entry.DeliveryID),
			zap.String("outcome", entry.Outcome),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// ListForwardingLogs returns a page of log entries for the scope, newest
// first, optionally filtered by outcome. Returns the page plus the total
// count matching the filter.
func (r *PostgresRepo) ListForwardingLogs(ctx context.Context, outcome string, limit, offset int) ([]model.ForwardingLog, int64, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var (
		entries []model.ForwardingLog
		total   int64
	)
	operation := func() error {
		query := r.db.WithContext(ctx).Model(&model.ForwardingLog{}).Where("scope_id = ?", scopeID)
		if outcome != "" {
			query = query.Where("outcome = ?", outcome)
		}
		if err := query.Count(&total).Error; err != nil {
			return fmt.Errorf("%w: count failed: %w", apperrors.ErrDatabase, err)
		}
		result := query.
			Order("attempted_at DESC, id DESC").
			Limit(limit).
			Offset(offset).
			Find(&entries)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ListForwardingLogs", operation)
	observer.ObserveDbOperationDuration("list", "forwarding_log", scopeID, time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to list forwarding logs after retries",
			zap.String("scope_id", scopeID),
			zap.String("outcome", outcome),
			zap.Error(findErr))
		return nil, 0, findErr
	}
	if entries == nil {
		entries = []model.ForwardingLog{}
	}
	return entries, total, nil
}

// GetForwardingStats aggregates delivery outcomes for the scope: totals per
// outcome plus successful deliveries per rule.
func (r *PostgresRepo) GetForwardingStats(ctx context.Context) (*model.ForwardingStats, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	type outcomeCount struct {
		Outcome string
		Count   int64
	}
	type ruleCount struct {
		RuleID int64
		Count  int64
	}

	var (
		outcomes   []outcomeCount
		ruleCounts []ruleCount
	)
	operation := func() error {
		err := r.db.WithContext(ctx).Model(&model.ForwardingLog{}).
			Select("outcome, COUNT(*) AS count").
			Where("scope_id = ?", scopeID).
			Group("outcome").
			Scan(&outcomes).Error
		if err != nil {
			return fmt.Errorf("%w: outcome aggregate failed: %w", apperrors.ErrDatabase, err)
		}

		err = r.db.WithContext(ctx).Model(&model.ForwardingLog{}).
			Select("rule_id, COUNT(*) AS count").
			Where("scope_id = ? AND outcome = ?", scopeID, model.ForwardOutcomeSuccess).
			Group("rule_id").
			Scan(&ruleCounts).Error
		if err != nil {
			return fmt.Errorf("%w: rule aggregate failed: %w", apperrors.ErrDatabase, err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	statsErr := retryableOperation(ctx, readPolicy, "GetForwardingStats", operation)
	observer.ObserveDbOperationDuration("stats", "forwarding_log", scopeID, time.Since(startTime), statsErr)

	if statsErr != nil {
		logger.FromContext(ctx).Error("Failed to aggregate forwarding stats after retries",
			zap.String("scope_id", scopeID),
			zap.Error(statsErr))
		return nil, statsErr
	}

	stats := &model.ForwardingStats{RuleSuccess: make(map[int64]int64, len(ruleCounts))}
	for _, oc := range outcomes {
		switch oc.Outcome {
		case model.ForwardOutcomeSuccess:
			stats.Success = oc.Count
		case model.ForwardOutcomeFailed:
			stats.Failed = oc.Count
		case model.ForwardOutcomeRetry:
			stats.Retry = oc.Count
		case model.ForwardOutcomeSkipped:
			stats.Skipped = oc.Count
		}
	}
	for _, rc := range ruleCounts {
		stats.RuleSuccess[rc.RuleID] = rc.Count
	}
	return stats, nil
}
