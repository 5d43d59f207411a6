package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
)

// --- ContactRepo Mock ---

// ContactRepoMock mocks the ContactRepo interface
type ContactRepoMock struct {
	mock.Mock
}

// InsertOrFetch mocks the InsertOrFetch method
func (m *ContactRepoMock) InsertOrFetch(ctx context.Context, contact model.Contact) (*model.Contact, bool, error) {
	args := m.Called(ctx, contact)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Contact), args.Bool(1), args.Error(2)
}

// FindByID mocks the FindByID method
func (m *ContactRepoMock) FindByID(ctx context.Context, id int64) (*model.Contact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

// FindByIdentityKey mocks the FindByIdentityKey method
func (m *ContactRepoMock) FindByIdentityKey(ctx context.Context, identityKey string) (*model.Contact, error) {
	args := m.Called(ctx, identityKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

// Close mocks the Close method
func (m *ContactRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- LeadRepo Mock ---

// LeadRepoMock mocks the LeadRepo interface
type LeadRepoMock struct {
	mock.Mock
}

// Create mocks the Create method
func (m *LeadRepoMock) Create(ctx context.Context, lead *model.Lead) error {
	args := m.Called(ctx, lead)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *LeadRepoMock) FindByID(ctx context.Context, id int64) (*model.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

// UpdateStatus mocks the UpdateStatus method
func (m *LeadRepoMock) UpdateStatus(ctx context.Context, id int64, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

// Close mocks the Close method
func (m *LeadRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- RuleRepo Mock ---

// RuleRepoMock mocks the RuleRepo interface
type RuleRepoMock struct {
	mock.Mock
}

// CreateRoutingRule mocks the CreateRoutingRule method
func (m *RuleRepoMock) CreateRoutingRule(ctx context.Context, rule *model.RoutingRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

// UpdateRoutingRule mocks the UpdateRoutingRule method
func (m *RuleRepoMock) UpdateRoutingRule(ctx context.Context, rule *model.RoutingRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

// DeleteRoutingRule mocks the DeleteRoutingRule method
func (m *RuleRepoMock) DeleteRoutingRule(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// GetRoutingRule mocks the GetRoutingRule method
func (m *RuleRepoMock) GetRoutingRule(ctx context.Context, id int64) (*model.RoutingRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RoutingRule), args.Error(1)
}

// ListRoutingRules mocks the ListRoutingRules method
func (m *RuleRepoMock) ListRoutingRules(ctx context.Context) ([]model.RoutingRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RoutingRule), args.Error(1)
}

// CreateForwardingRule mocks the CreateForwardingRule method
func (m *RuleRepoMock) CreateForwardingRule(ctx context.Context, rule *model.ForwardingRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

// UpdateForwardingRule mocks the UpdateForwardingRule method
func (m *RuleRepoMock) UpdateForwardingRule(ctx context.Context, rule *model.ForwardingRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

// DeleteForwardingRule mocks the DeleteForwardingRule method
func (m *RuleRepoMock) DeleteForwardingRule(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// GetForwardingRule mocks the GetForwardingRule method
func (m *RuleRepoMock) GetForwardingRule(ctx context.Context, id int64) (*model.ForwardingRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ForwardingRule), args.Error(1)
}

// ListForwardingRules mocks the ListForwardingRules method
func (m *RuleRepoMock) ListForwardingRules(ctx context.Context) ([]model.ForwardingRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ForwardingRule), args.Error(1)
}

// IncrementForwardCount mocks the IncrementForwardCount method
func (m *RuleRepoMock) IncrementForwardCount(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Close mocks the Close method
func (m *RuleRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ForwardingLogRepo Mock ---

// ForwardingLogRepoMock mocks the ForwardingLogRepo interface
type ForwardingLogRepoMock struct {
	mock.Mock
}

// Append mocks the Append method
func (m *ForwardingLogRepoMock) Append(ctx context.Context, entry *model.ForwardingLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// List mocks the List method
func (m *ForwardingLogRepoMock) List(ctx context.Context, outcome string, limit, offset int) ([]model.ForwardingLog, int64, error) {
	args := m.Called(ctx, outcome, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]model.ForwardingLog), args.Get(1).(int64), args.Error(2)
}

// Stats mocks the Stats method
func (m *ForwardingLogRepoMock) Stats(ctx context.Context) (*model.ForwardingStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ForwardingStats), args.Error(1)
}

// Close mocks the Close method
func (m *ForwardingLogRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- SettingsRepo Mock ---

// SettingsRepoMock mocks the SettingsRepo interface
type SettingsRepoMock struct {
	mock.Mock
}

// Get mocks the Get method
func (m *SettingsRepoMock) Get(ctx context.Context) (*model.ScopeSettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScopeSettings), args.Error(1)
}

// SetForwardingEnabled mocks the SetForwardingEnabled method
func (m *SettingsRepoMock) SetForwardingEnabled(ctx context.Context, enabled bool) error {
	args := m.Called(ctx, enabled)
	return args.Error(0)
}

// Close mocks the Close method
func (m *SettingsRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
