package storage

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPostgresRepo_GetScopeSettings(t *testing.T) {
	t.Run("Existing Row", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)

		rows := sqlmock.NewRows([]string{"id", "scope_id", "forwarding_enabled"}).
			AddRow(1, testScopeID, false)
		mock.ExpectQuery(`SELECT \* FROM "scope_settings" WHERE scope_id = \$1`).
			WithArgs(testScopeID, 1).
			WillReturnRows(rows)

		settings, err := repo.GetScopeSettings(contextWithScope())
		require.NoError(t, err)
		assert.False(t, settings.ForwardingEnabled)
	})

	t.Run("Missing Row Defaults To Enabled", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)

		mock.ExpectQuery(`SELECT \* FROM "scope_settings" WHERE scope_id = \$1`).
			WithArgs(testScopeID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		settings, err := repo.GetScopeSettings(contextWithScope())
		require.NoError(t, err)
		assert.True(t, settings.ForwardingEnabled)
		assert.Equal(t, testScopeID, settings.ScopeID)
	})
}

func TestPostgresRepo_SetForwardingEnabled(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	mock.ExpectQuery(`INSERT INTO "scope_settings" .* ON CONFLICT \("scope_id"\) DO UPDATE SET .* RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	assert.NoError(t, repo.SetForwardingEnabled(contextWithScope(), false))
}
