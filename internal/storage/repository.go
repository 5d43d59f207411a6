package storage

import (
	"context"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
)

// ContactRepo defines contact storage operations
type ContactRepo interface {
	InsertOrFetch(ctx context.Context, contact model.Contact) (*model.Contact, bool, error)
	FindByID(ctx context.Context, id int64) (*model.Contact, error)
	FindByIdentityKey(ctx context.Context, identityKey string) (*model.Contact, error)
	Close(ctx context.Context) error
}

// LeadRepo defines lead storage operations
type LeadRepo interface {
	Create(ctx context.Context, lead *model.Lead) error
	FindByID(ctx context.Context, id int64) (*model.Lead, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	Close(ctx context.Context) error
}

// RuleRepo defines routing and forwarding rule storage operations
type RuleRepo interface {
	CreateRoutingRule(ctx context.Context, rule *model.RoutingRule) error
	UpdateRoutingRule(ctx context.Context, rule *model.RoutingRule) error
	DeleteRoutingRule(ctx context.Context, id int64) error
	GetRoutingRule(ctx context.Context, id int64) (*model.RoutingRule, error)
	ListRoutingRules(ctx context.Context) ([]model.RoutingRule, error)

	CreateForwardingRule(ctx context.Context, rule *model.ForwardingRule) error
	UpdateForwardingRule(ctx context.Context, rule *model.ForwardingRule) error
	DeleteForwardingRule(ctx context.Context, id int64) error
	GetForwardingRule(ctx context.Context, id int64) (*model.ForwardingRule, error)
	ListForwardingRules(ctx context.Context) ([]model.ForwardingRule, error)
	IncrementForwardCount(ctx context.Context, id int64) error

	Close(ctx context.Context) error
}

// ForwardingLogRepo defines forwarding audit log storage operations
type ForwardingLogRepo interface {
	Append(ctx context.Context, entry *model.ForwardingLog) error
	List(ctx context.Context, outcome string, limit, offset int) ([]model.ForwardingLog, int64, error)
	Stats(ctx context.Context) (*model.ForwardingStats, error)
	Close(ctx context.Context) error
}

// SettingsRepo defines scope settings storage operations
type SettingsRepo interface {
	Get(ctx context.Context) (*model.ScopeSettings, error)
	SetForwardingEnabled(ctx context.Context, enabled bool) error
	Close(ctx context.Context) error
}
