package storage

import (
	"context"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
)

// ContactRepoAdapter adapts the PostgresRepo to the ContactRepo interface
type ContactRepoAdapter struct {
	postgres *PostgresRepo
}

// NewContactRepoAdapter creates a new contact repository adapter
func NewContactRepoAdapter(postgres *PostgresRepo) ContactRepo {
	return &ContactRepoAdapter{postgres: postgres}
}

// InsertOrFetch resolves a contact, creating it when absent
func (a *ContactRepoAdapter) InsertOrFetch(ctx context.Context, contact model.Contact) (*model.Contact, bool, error) {
	return a.postgres.InsertOrFetchContact(ctx, contact)
}

// FindByID finds a contact by ID
func (a *ContactRepoAdapter) FindByID(ctx context.Context, id int64) (*model.Contact, error) {
	return a.postgres.FindContactByID(ctx, id)
}

// FindByIdentityKey finds a contact by identity key
func (a *ContactRepoAdapter) FindByIdentityKey(ctx context.Context, identityKey string) (*model.Contact, error) {
	return a.postgres.FindContactByIdentityKey(ctx, identityKey)
}

func (a *ContactRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// LeadRepoAdapter adapts the PostgresRepo to the LeadRepo interface
type LeadRepoAdapter struct {
	postgres *PostgresRepo
}

// NewLeadRepoAdapter creates a new lead repository adapter
func NewLeadRepoAdapter(postgres *PostgresRepo) LeadRepo {
	return &LeadRepoAdapter{postgres: postgres}
}

// Create persists a lead
func (a *LeadRepoAdapter) Create(ctx context.Context, lead *model.Lead) error {
	return a.postgres.CreateLead(ctx, lead)
}

// FindByID finds a lead by ID
func (a *LeadRepoAdapter) FindByID(ctx context.Context, id int64) (*model.Lead, error) {
	return a.postgres.FindLeadByID(ctx, id)
}

// UpdateStatus transitions a lead status
func (a *LeadRepoAdapter) UpdateStatus(ctx context.Context, id int64, status string) error {
	return a.postgres.UpdateLeadStatus(ctx, id, status)
}

func (a *LeadRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// RuleRepoAdapter adapts the PostgresRepo to the RuleRepo interface
type RuleRepoAdapter struct {
	postgres *PostgresRepo
}

// NewRuleRepoAdapter creates a new rule repository adapter
func NewRuleRepoAdapter(postgres *PostgresRepo) RuleRepo {
	return &RuleRepoAdapter{postgres: postgres}
}

func (a *RuleRepoAdapter) CreateRoutingRule(ctx context.Context, rule *model.RoutingRule) error {
	return a.postgres.CreateRoutingRule(ctx, rule)
}

func (a *RuleRepoAdapter) UpdateRoutingRule(ctx context.Context, rule *model.RoutingRule) error {
	return a.postgres.UpdateRoutingRule(ctx, rule)
}

func (a *RuleRepoAdapter) DeleteRoutingRule(ctx context.Context, id int64) error {
	return a.postgres.DeleteRoutingRule(ctx, id)
}

func (a *RuleRepoAdapter) GetRoutingRule(ctx context.Context, id int64) (*model.RoutingRule, error) {
	return a.postgres.GetRoutingRule(ctx, id)
}

func (a *RuleRepoAdapter) ListRoutingRules(ctx context.Context) ([]model.RoutingRule, error) {
	return a.postgres.ListRoutingRules(ctx)
}

func (a *RuleRepoAdapter) CreateForwardingRule(ctx context.Context, rule *model.ForwardingRule) error {
	return a.postgres.CreateForwardingRule(ctx, rule)
}

func (a *RuleRepoAdapter) UpdateForwardingRule(ctx context.Context, rule *model.ForwardingRule) error {
	return a.postgres.UpdateForwardingRule(ctx, rule)
}

func (a *RuleRepoAdapter) DeleteForwardingRule(ctx context.Context, id int64) error {
	return a.postgres.DeleteForwardingRule(ctx, id)
}

func (a *RuleRepoAdapter) GetForwardingRule(ctx context.Context, id int64) (*model.ForwardingRule, error) {
	return a.postgres.GetForwardingRule(ctx, id)
}

func (a *RuleRepoAdapter) ListForwardingRules(ctx context.Context) ([]model.ForwardingRule, error) {
	return a.postgres.ListForwardingRules(ctx)
}

func (a *RuleRepoAdapter) IncrementForwardCount(ctx context.Context, id int64) error {
	return a.postgres.IncrementForwardCount(ctx, id)
}

func (a *RuleRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// ForwardingLogRepoAdapter adapts the PostgresRepo to the ForwardingLogRepo interface
type ForwardingLogRepoAdapter struct {
	postgres *PostgresRepo
}

// NewForwardingLogRepoAdapter creates a new forwarding log repository adapter
func NewForwardingLogRepoAdapter(postgres *PostgresRepo) ForwardingLogRepo {
	return &ForwardingLogRepoAdapter{postgres: postgres}
}

// Append records a delivery attempt outcome
func (a *ForwardingLogRepoAdapter) Append(ctx context.Context, entry *model.ForwardingLog) error {
	return a.postgres.AppendForwardingLog(ctx, entry)
}

// List returns a page of log entries, newest first
func (a *ForwardingLogRepoAdapter) List(ctx context.Context, outcome string, limit, offset int) ([]model.ForwardingLog, int64, error) {
	return a.postgres.ListForwardingLogs(ctx, outcome, limit, offset)
}

// Stats aggregates delivery outcomes for the scope
func (a *ForwardingLogRepoAdapter) Stats(ctx context.Context) (*model.ForwardingStats, error) {
	return a.postgres.GetForwardingStats(ctx)
}

func (a *ForwardingLogRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// SettingsRepoAdapter adapts the PostgresRepo to the SettingsRepo interface
type SettingsRepoAdapter struct {
	postgres *PostgresRepo
}

// NewSettingsRepoAdapter creates a new settings repository adapter
func NewSettingsRepoAdapter(postgres *PostgresRepo) SettingsRepo {
	return &SettingsRepoAdapter{postgres: postgres}
}

// Get fetches the settings row for the scope
func (a *SettingsRepoAdapter) Get(ctx context.Context) (*model.ScopeSettings, error) {
	return a.postgres.GetScopeSettings(ctx)
}

// SetForwardingEnabled upserts the master forwarding toggle
func (a *SettingsRepoAdapter) SetForwardingEnabled(ctx context.Context, enabled bool) error {
	return a.postgres.SetForwardingEnabled(ctx, enabled)
}

func (a *SettingsRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// Ensure adapters implement the interfaces
var _ ContactRepo = (*ContactRepoAdapter)(nil)
var _ LeadRepo = (*LeadRepoAdapter)(nil)
var _ RuleRepo = (*RuleRepoAdapter)(nil)
var _ ForwardingLogRepo = (*ForwardingLogRepoAdapter)(nil)
var _ SettingsRepo = (*SettingsRepoAdapter)(nil)
