package storage

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	apperrors "gitlab.com/leadcore/api/lead-routing-engine/internal/apperrors"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
)

func TestPostgresRepo_CreateRoutingRule(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithScope()

	rule := &model.RoutingRule{
		ScopeID:      testScopeID,
		Name:         "solar west",
		Priority:     1,
		IsActive:     true,
		WorkspaceID:  20,
		ProductTypes: model.EncodeStringList([]string{"Solar"}),
		ZipCodes:     model.EncodeStringList([]string{"*"}),
		States:       model.EncodeStringList([]string{"CA"}),
	}

	mock.ExpectQuery(`INSERT INTO "routing_rules" .* RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	err := repo.CreateRoutingRule(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rule.ID)
}

func TestPostgresRepo_CreateRoutingRule_ScopeMismatch(t *testing.T) {
	repo, _, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	err := repo.CreateRoutingRule(contextWithScope(), &model.RoutingRule{ScopeID: "other-scope"})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestPostgresRepo_UpdateRoutingRule_NotFound(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	mock.ExpectExec(`UPDATE "routing_rules" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateRoutingRule(contextWithScope(), &model.RoutingRule{ID: 99, Priority: 2})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgresRepo_DeleteRoutingRule(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)

		mock.ExpectExec(`DELETE FROM "routing_rules" WHERE id = \$1 AND scope_id = \$2`).
			WithArgs(int64(5), testScopeID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.DeleteRoutingRule(contextWithScope(), 5))
	})

	t.Run("Not Found", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)

		mock.ExpectExec(`DELETE FROM "routing_rules" WHERE id = \$1 AND scope_id = \$2`).
			WithArgs(int64(99), testScopeID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.DeleteRoutingRule(contextWithScope(), 99), apperrors.ErrNotFound)
	})
}

func TestPostgresRepo_ListRoutingRules_Ordered(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	rows := sqlmock.NewRows([]string{"id", "scope_id", "priority", "is_active", "workspace_id"}).
		AddRow(2, testScopeID, 1, true, 10).
		AddRow(4, testScopeID, 2, true, 20)
	mock.ExpectQuery(`SELECT \* FROM "routing_rules" WHERE scope_id = \$1 ORDER BY priority ASC, id ASC`).
		WithArgs(testScopeID).
		WillReturnRows(rows)

	ruleSet, err := repo.ListRoutingRules(contextWithScope())
	require.NoError(t, err)
	require.Len(t, ruleSet, 2)
	assert.Equal(t, int64(2), ruleSet[0].ID)
	assert.Equal(t, int64(20), ruleSet[1].WorkspaceID)
}

func TestPostgresRepo_ListRoutingRules_Empty(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	mock.ExpectQuery(`SELECT \* FROM "routing_rules" WHERE scope_id = \$1 ORDER BY priority ASC, id ASC`).
		WithArgs(testScopeID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ruleSet, err := repo.ListRoutingRules(contextWithScope())
	require.NoError(t, err)
	assert.Empty(t, ruleSet)
	assert.NotNil(t, ruleSet)
}

func TestPostgresRepo_CreateForwardingRule(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	rule := &model.ForwardingRule{
		ScopeID:        testScopeID,
		Priority:       1,
		IsActive:       true,
		ForwardEnabled: true,
		TargetID:       "tgt_crm",
		TargetURL:      "https://crm.example.com/hooks/leads",
		ProductTypes:   model.EncodeStringList([]string{"*"}),
		ZipCodes:       model.EncodeStringList([]string{"90210"}),
		States:         model.EncodeStringList([]string{"CA"}),
	}

	mock.ExpectQuery(`INSERT INTO "forwarding_rules" .* RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	err := repo.CreateForwardingRule(contextWithScope(), rule)
	require.NoError(t, err)
	assert.Equal(t, int64(11), rule.ID)
}

func TestPostgresRepo_GetForwardingRule_NotFound(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	mock.ExpectQuery(`SELECT \* FROM "forwarding_rules" WHERE id = \$1 AND scope_id = \$2`).
		WithArgs(int64(404), testScopeID, 1).
		WillReturnError(gorm.ErrRecordNotFound)

	_, err := repo.GetForwardingRule(contextWithScope(), 404)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgresRepo_IncrementForwardCount(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)

		mock.ExpectExec(`UPDATE "forwarding_rules" SET "forward_count"=forward_count \+ 1 WHERE id = \$1 AND scope_id = \$2`).
			WithArgs(int64(11), testScopeID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.IncrementForwardCount(contextWithScope(), 11))
	})

	t.Run("Rule Gone Is NoOp", func(t *testing.T) {
		repo, mock, teardown := newTestRepo(t)
		t.Cleanup(teardown)

		mock.ExpectExec(`UPDATE "forwarding_rules" SET "forward_count"=forward_count \+ 1 WHERE id = \$1 AND scope_id = \$2`).
			WithArgs(int64(12), testScopeID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, repo.IncrementForwardCount(contextWithScope(), 12))
	})
}
