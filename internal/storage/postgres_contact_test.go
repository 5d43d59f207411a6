package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	apperrors "gitlab.com/leadcore/api/lead-routing-engine/internal/apperrors"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/scope"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/logger"
)

func newTestRepo(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock, func()) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	repo := &PostgresRepo{db: gormDB}
	teardown := func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	}
	return repo, mock, teardown
}

func contextWithScope() context.Context {
	return scope.WithScopeID(context.Background(), testScopeID)
}

func TestPostgresRepo_InsertOrFetchContact_Created(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithScope()

	contact := model.Contact{
		ScopeID:     testScopeID,
		IdentityKey: testIdentityKey,
		PhoneNumber: testIdentityKey,
		FirstName:   "Jane",
		LastName:    "Doe",
		Email:       "jane@example.com",
	}

	mock.ExpectQuery(`INSERT INTO "contacts" .* ON CONFLICT .* DO NOTHING RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	resolved, created, err := repo.InsertOrFetchContact(ctx, contact)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(42), resolved.ID)
	assert.Equal(t, testIdentityKey, resolved.IdentityKey)
}

func TestPostgresRepo_InsertOrFetchContact_Existing(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithScope()

	contact := model.Contact{
		ScopeID:     testScopeID,
		IdentityKey: testIdentityKey,
		PhoneNumber: testIdentityKey,
		FirstName:   "Jane",
	}

	// Conflict: the insert affects no rows, then the existing row is fetched.
	mock.ExpectQuery(`INSERT INTO "contacts" .* ON CONFLICT .* DO NOTHING RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	existingRows := sqlmock.NewRows([]string{"id", "scope_id", "identity_key", "phone_number", "first_name"}).
		AddRow(7, testScopeID, testIdentityKey, testIdentityKey, "Janet")
	mock.ExpectQuery(`SELECT \* FROM "contacts" WHERE scope_id = \$1 AND identity_key = \$2`).
		WithArgs(testScopeID, testIdentityKey, 1).
		WillReturnRows(existingRows)

	resolved, created, err := repo.InsertOrFetchContact(ctx, contact)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(7), resolved.ID)
	assert.Equal(t, "Janet", resolved.FirstName)
}

func TestPostgresRepo_InsertOrFetchContact_MissingScope(t *testing.T) {
	repo, _, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	_, _, err := repo.InsertOrFetchContact(context.Background(), model.Contact{IdentityKey: testIdentityKey})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestPostgresRepo_InsertOrFetchContact_EmptyIdentityKey(t *testing.T) {
	repo, _, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	_, _, err := repo.InsertOrFetchContact(contextWithScope(), model.Contact{ScopeID: testScopeID})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestPostgresRepo_FindContactByID(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)

		rows := sqlmock.NewRows([]string{"id", "scope_id", "identity_key", "first_name"}).
			AddRow(42, testScopeID, testIdentityKey, "Jane")
		mock.ExpectQuery(`SELECT \* FROM "contacts" WHERE id = \$1 AND scope_id = \$2`).
			WithArgs(int64(42), testScopeID, 1).
			WillReturnRows(rows)

		contact, err := repo.FindContactByID(contextWithScope(), 42)
		require.NoError(t, err)
		assert.Equal(t, "Jane", contact.FirstName)
	})

	t.Run("Not Found", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)

		mock.ExpectQuery(`SELECT \* FROM "contacts" WHERE id = \$1 AND scope_id = \$2`).
			WithArgs(int64(99), testScopeID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		_, err := repo.FindContactByID(contextWithScope(), 99)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestPostgresRepo_FindContactByIdentityKey(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)

		rows := sqlmock.NewRows([]string{"id", "scope_id", "identity_key"}).
			AddRow(42, testScopeID, "email:jane@example.com")
		mock.ExpectQuery(`SELECT \* FROM "contacts" WHERE scope_id = \$1 AND identity_key = \$2`).
			WithArgs(testScopeID, "email:jane@example.com", 1).
			WillReturnRows(rows)

		contact, err := repo.FindContactByIdentityKey(contextWithScope(), "email:jane@example.com")
		require.NoError(t, err)
		assert.Equal(t, int64(42), contact.ID)
	})

	t.Run("DB Error", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)

		mock.ExpectQuery(`SELECT \* FROM "contacts" WHERE scope_id = \$1 AND identity_key = \$2`).
			WithArgs(testScopeID, testIdentityKey, 1).
			WillReturnError(errors.New("permission denied for table contacts"))

		_, err := repo.FindContactByIdentityKey(contextWithScope(), testIdentityKey)
		assert.ErrorIs(t, err, apperrors.ErrDatabase)
	})
}
