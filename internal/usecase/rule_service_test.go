package usecase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/apperrors"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/cache"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/rules"
	storagemock "gitlab.com/leadcore/api/lead-routing-engine/internal/storage/mock"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/logger"
)

type ruleFixture struct {
	ruleRepo     *storagemock.RuleRepoMock
	settingsRepo *storagemock.SettingsRepoMock
	ruleCache    *cache.RuleCache
	svc          *RuleService
}

func newRuleFixture(t *testing.T) *ruleFixture {
	logger.Log = zaptest.NewLogger(t)
	f := &ruleFixture{
		ruleRepo:     new(storagemock.RuleRepoMock),
		settingsRepo: new(storagemock.SettingsRepoMock),
		ruleCache:    cache.NewRuleCache(),
	}
	f.svc = NewRuleService(f.ruleRepo, f.settingsRepo, f.ruleCache)
	return f
}

func boolPtr(b bool) *bool { return &b }

func TestCreateRoutingRule(t *testing.T) {
	f := newRuleFixture(t)
	f.ruleCache.Put(testScope, nil, nil)

	f.ruleRepo.On("CreateRoutingRule", mock.Anything, mock.MatchedBy(func(r *model.RoutingRule) bool {
		return r.ScopeID == testScope &&
			r.Priority == 1 &&
			r.IsActive &&
			r.WorkspaceID == 100
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*model.RoutingRule).ID = 5
	}).Return(nil).Once()

	rule, err := f.svc.CreateRoutingRule(testCtx(), model.RoutingRulePayload{
		Name:         "west coast solar",
		Priority:     1,
		WorkspaceID:  100,
		ProductTypes: []string{"Solar"},
		ZipCodes:     []string{"*"},
		States:       []string{"ca", "OR"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), rule.ID)
	// States are stored uppercased.
	assert.Equal(t, []string{"CA", "OR"}, model.DecodeStringList(rule.States))
	// Mutation drops the cached snapshot.
	assert.Nil(t, f.ruleCache.Get(testScope))
}

func TestCreateRoutingRule_AllCriteriaEmpty(t *testing.T) {
	f := newRuleFixture(t)

	_, err := f.svc.CreateRoutingRule(testCtx(), model.RoutingRulePayload{
		Priority:    1,
		WorkspaceID: 100,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	f.ruleRepo.AssertNotCalled(t, "CreateRoutingRule", mock.Anything, mock.Anything)
}

func TestCreateRoutingRule_InvalidZip(t *testing.T) {
	f := newRuleFixture(t)

	for _, zip := range []string{"9021", "902100", "90210-12", "abcde"} {
		_, err := f.svc.CreateRoutingRule(testCtx(), model.RoutingRulePayload{
			Priority:    1,
			WorkspaceID: 100,
			ZipCodes:    []string{zip},
		})
		assert.True(t, errors.Is(err, apperrors.ErrValidation), zip)
	}

	// 5-digit and zip+4 forms pass.
	f.ruleRepo.On("CreateRoutingRule", mock.Anything, mock.Anything).Return(nil).Once()
	_, err := f.svc.CreateRoutingRule(testCtx(), model.RoutingRulePayload{
		Priority:    1,
		WorkspaceID: 100,
		ZipCodes:    []string{"90210", "90210-1234"},
	})
	assert.NoError(t, err)
}

func TestCreateRoutingRule_InvalidState(t *testing.T) {
	f := newRuleFixture(t)

	_, err := f.svc.CreateRoutingRule(testCtx(), model.RoutingRulePayload{
		Priority:    1,
		WorkspaceID: 100,
		States:      []string{"CAL"},
	})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestCreateRoutingRule_PriorityRequired(t *testing.T) {
	f := newRuleFixture(t)

	_, err := f.svc.CreateRoutingRule(testCtx(), model.RoutingRulePayload{
		WorkspaceID: 100,
		ZipCodes:    []string{"*"},
	})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestUpdateRoutingRule_KeepsStoredActiveFlag(t *testing.T) {
	f := newRuleFixture(t)
	f.ruleCache.Put(testScope, nil, nil)

	f.ruleRepo.On("GetRoutingRule", mock.Anything, int64(5)).Return(&model.RoutingRule{
		ID: 5, ScopeID: testScope, Priority: 1, IsActive: false, WorkspaceID: 100,
	}, nil).Once()
	f.ruleRepo.On("UpdateRoutingRule", mock.Anything, mock.MatchedBy(func(r *model.RoutingRule) bool {
		return r.ID == 5 && !r.IsActive && r.Priority == 2
	})).Return(nil).Once()

	rule, err := f.svc.UpdateRoutingRule(testCtx(), 5, model.RoutingRulePayload{
		Priority:    2,
		WorkspaceID: 100,
		ZipCodes:    []string{"*"},
	})
	require.NoError(t, err)
	assert.False(t, rule.IsActive)
	assert.Nil(t, f.ruleCache.Get(testScope))
}

func TestUpdateRoutingRule_NotFound(t *testing.T) {
	f := newRuleFixture(t)

	f.ruleRepo.On("GetRoutingRule", mock.Anything, int64(99)).
		Return(nil, apperrors.ErrNotFound).Once()

	_, err := f.svc.UpdateRoutingRule(testCtx(), 99, model.RoutingRulePayload{
		Priority:    1,
		WorkspaceID: 100,
		ZipCodes:    []string{"*"},
	})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestDeleteRoutingRule_InvalidatesCache(t *testing.T) {
	f := newRuleFixture(t)
	f.ruleCache.Put(testScope, []rules.Rule{{ID: 5, Priority: 1}}, nil)

	f.ruleRepo.On("DeleteRoutingRule", mock.Anything, int64(5)).Return(nil).Once()

	require.NoError(t, f.svc.DeleteRoutingRule(testCtx(), 5))
	assert.Nil(t, f.ruleCache.Get(testScope))
}

func TestCreateForwardingRule(t *testing.T) {
	f := newRuleFixture(t)

	f.ruleRepo.On("CreateForwardingRule", mock.Anything, mock.MatchedBy(func(r *model.ForwardingRule) bool {
		return r.ScopeID == testScope &&
			r.IsActive && r.ForwardEnabled &&
			r.TargetID == "tgt-a" &&
			r.TargetURL == "https://partner.example.com/hook"
	})).Return(nil).Once()

	_, err := f.svc.CreateForwardingRule(testCtx(), model.ForwardingRulePayload{
		Priority:     1,
		TargetID:     "tgt-a",
		TargetURL:    "https://partner.example.com/hook",
		ProductTypes: []string{"Solar"},
	})
	require.NoError(t, err)
	f.ruleRepo.AssertExpectations(t)
}

func TestCreateForwardingRule_BadTargetURL(t *testing.T) {
	f := newRuleFixture(t)

	for _, target := range []string{"ftp://partner.example.com/hook", "https://", "not a url"} {
		_, err := f.svc.CreateForwardingRule(testCtx(), model.ForwardingRulePayload{
			Priority:     1,
			TargetID:     "tgt-a",
			TargetURL:    target,
			ProductTypes: []string{"*"},
		})
		assert.Error(t, err, target)
	}
	f.ruleRepo.AssertNotCalled(t, "CreateForwardingRule", mock.Anything, mock.Anything)
}

func TestCreateForwardingRule_StagedDisabled(t *testing.T) {
	f := newRuleFixture(t)

	f.ruleRepo.On("CreateForwardingRule", mock.Anything, mock.MatchedBy(func(r *model.ForwardingRule) bool {
		return r.IsActive && !r.ForwardEnabled
	})).Return(nil).Once()

	_, err := f.svc.CreateForwardingRule(testCtx(), model.ForwardingRulePayload{
		Priority:       1,
		ForwardEnabled: boolPtr(false),
		TargetID:       "tgt-a",
		TargetURL:      "https://partner.example.com/hook",
		ProductTypes:   []string{"*"},
	})
	require.NoError(t, err)
}

func TestCreateForwardingRuleBulk(t *testing.T) {
	f := newRuleFixture(t)

	f.ruleRepo.On("CreateForwardingRule", mock.Anything, mock.MatchedBy(func(r *model.ForwardingRule) bool {
		return assert.ObjectsAreEqual([]string{"90210", "90211", "90212"}, model.DecodeStringList(r.ZipCodes))
	})).Return(nil).Once()

	_, err := f.svc.CreateForwardingRuleBulk(testCtx(), model.BulkForwardingRulePayload{
		Priority:    1,
		TargetID:    "tgt-a",
		TargetURL:   "https://partner.example.com/hook",
		ZipCodesCSV: " 90210, 90211 ,90212, ",
	})
	require.NoError(t, err)
	f.ruleRepo.AssertExpectations(t)
}

func TestCreateForwardingRuleBulk_EmptyCSV(t *testing.T) {
	f := newRuleFixture(t)

	_, err := f.svc.CreateForwardingRuleBulk(testCtx(), model.BulkForwardingRulePayload{
		Priority:    1,
		TargetID:    "tgt-a",
		TargetURL:   "https://partner.example.com/hook",
		ZipCodesCSV: " , ",
	})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestSetForwardingEnabled(t *testing.T) {
	f := newRuleFixture(t)

	f.settingsRepo.On("SetForwardingEnabled", mock.Anything, false).Return(nil).Once()
	f.settingsRepo.On("Get", mock.Anything).
		Return(&model.ScopeSettings{ScopeID: testScope, ForwardingEnabled: false}, nil).Once()

	settings, err := f.svc.SetForwardingEnabled(testCtx(), false)
	require.NoError(t, err)
	assert.False(t, settings.ForwardingEnabled)
	f.settingsRepo.AssertExpectations(t)
}
