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

// --- Contact Repository Methods ---

// InsertOrFetchContact resolves a contact by identity key, creating it when
// absent. The insert uses ON CONFLICT DO NOTHING against the
// (scope_id, identity_key) unique index, so two concurrent submissions for
// the same identity race safely: exactly one row is created and both callers
// end up holding it. Returns the resolved contact and whether this call
// created it.
func (r *PostgresRepo) InsertOrFetchContact(ctx context.Context, contact model.Contact) (*model.Contact, bool, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if scopeID != contact.ScopeID {
		return nil, false, fmt.Errorf("%w: contact ScopeID %s does not match scope ID %s", apperrors.ErrBadRequest, contact.ScopeID, scopeID)
	}
	if contact.IdentityKey == "" {
		return nil, false, fmt.Errorf("%w: contact identity key is empty", apperrors.ErrBadRequest)
	}

	contact.CreatedAt = utils.Now()
	contact.UpdatedAt = contact.CreatedAt

	created := false
	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scope_id"}, {Name: "identity_key"}},
			DoNothing: true,
		}).Create(&contact)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected > 0 {
			created = true
			return nil
		}

		// Lost the race or the contact already existed. Fetch the winner.
		created = false
		var existing model.Contact
		fetchResult := r.db.WithContext(ctx).
			Where("scope_id = ? AND identity_key = ?", scopeID, contact.IdentityKey).
			First(&existing)
		if fetchResult.Error != nil {
			if errors.Is(fetchResult.Error, gorm.ErrRecordNotFound) {
				// Row vanished between insert and fetch; let the policy retry.
				return fmt.Errorf("%w: contact row missing after conflict: %w", apperrors.ErrDatabase, fetchResult.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, fetchResult.Error)
		}
		contact = existing
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "InsertOrFetchContact", operation)
	observer.ObserveDbOperationDuration("insert_or_fetch", "contact", scopeID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to insert-or-fetch contact after retries",
			zap.String("identity_key", contact.IdentityKey),
			zap.Error(commitErr))
		return nil, false, commitErr
	}
	return &contact, created, nil
}

// FindContactByID finds a contact by its numeric ID within the scope.
func (r *PostgresRepo) FindContactByID(ctx context.Context, id int64) (*model.Contact, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var contact model.Contact
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND scope_id = ?", id, scopeID).First(&contact)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: contact_id %d: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindContactByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "contact", scopeID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find contact by ID after retries",
			zap.Int64("contact_id", id),
			zap.String("scope_id", scopeID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &contact, nil
}

// FindContactByIdentityKey finds a contact by its identity key within the scope.
func (r *PostgresRepo) FindContactByIdentityKey(ctx context.Context, identityKey string) (*model.Contact, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get scope ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var contact model.Contact
	operation := func() error {
		result := r.db.WithContext(ctx).Where("scope_id = ? AND identity_key = ?", scopeID, identityKey).First(&contact)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: identity_key %s: %w", apperrors.ErrNotFound, identityKey, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindContactByIdentityKey", operation)
	observer.ObserveDbOperationDuration("find_by_identity_key", "contact", scopeID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find contact by identity key after retries",
			zap.String("identity_key", identityKey),
			zap.String("scope_id", scopeID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &contact, nil
}
