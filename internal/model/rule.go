package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/rules"
)

// RoutingRule assigns a lead to one internal workspace, first-match-wins.
type RoutingRule struct {
	ID       int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	ScopeID  string `json:"scope_id" gorm:"column:scope_id;index" validate:"required"`
	Name     string `json:"name,omitempty" gorm:"column:name"`
	Priority int    `json:"priority" gorm:"column:priority" validate:"required,gte=1"`
	IsActive bool   `json:"is_active" gorm:"column:is_active"`
	// WorkspaceID is the internal destination a matched lead is assigned to.
	WorkspaceID int64 `json:"workspace_id" gorm:"column:workspace_id" validate:"required"`
	// Criteria dimensions stored as JSON string arrays; the wildcard token
	// "*" anywhere in an array makes that dimension match anything.
	ProductTypes datatypes.JSON `json:"product_types" gorm:"type:jsonb;column:product_types"`
	ZipCodes     datatypes.JSON `json:"zip_codes" gorm:"type:jsonb;column:zip_codes"`
	States       datatypes.JSON `json:"states" gorm:"type:jsonb;column:states"`
	CreatedAt    time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (RoutingRule) TableName() string {
	return "routing_rules"
}

// ForwardingRule sends a matched lead to an external webhook target,
// all-matches-fire.
type ForwardingRule struct {
	ID       int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	ScopeID  string `json:"scope_id" gorm:"column:scope_id;index" validate:"required"`
	Name     string `json:"name,omitempty" gorm:"column:name"`
	Priority int    `json:"priority" gorm:"column:priority" validate:"required,gte=1"`
	IsActive bool   `json:"is_active" gorm:"column:is_active"`
	// ForwardEnabled gates dispatch independently of IsActive so a rule can
	// be staged active-but-disabled.
	ForwardEnabled bool `json:"forward_enabled" gorm:"column:forward_enabled"`
	// TargetID is the opaque downstream identifier; TargetURL the POST
	// destination.
	TargetID     string         `json:"target_id" gorm:"column:target_id" validate:"required"`
	TargetURL    string         `json:"target_url" gorm:"column:target_url" validate:"required,url"`
	ProductTypes datatypes.JSON `json:"product_types" gorm:"type:jsonb;column:product_types"`
	ZipCodes     datatypes.JSON `json:"zip_codes" gorm:"type:jsonb;column:zip_codes"`
	States       datatypes.JSON `json:"states" gorm:"type:jsonb;column:states"`
	// ForwardCount is the cumulative number of successful deliveries.
	ForwardCount int64     `json:"forward_count" gorm:"column:forward_count"`
	CreatedAt    time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (ForwardingRule) TableName() string {
	return "forwarding_rules"
}

// EncodeStringList marshals criteria values into their JSONB column form.
func EncodeStringList(values []string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		// A []string cannot fail to marshal.
		panic("failed to marshal criteria list: " + err.Error())
	}
	return datatypes.JSON(data)
}

// DecodeStringList unmarshals a criteria JSONB column back to values.
// Malformed or empty columns decode to an empty (match-nothing) list.
func DecodeStringList(data datatypes.JSON) []string {
	if len(data) == 0 {
		return nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil
	}
	return values
}

// ToMatcherRule converts the stored routing rule to its evaluation view.
func (r RoutingRule) ToMatcherRule() rules.Rule {
	return rules.Rule{
		ID:          r.ID,
		Priority:    r.Priority,
		Active:      r.IsActive,
		WorkspaceID: r.WorkspaceID,
		Products:    rules.ParseCriterion(DecodeStringList(r.ProductTypes)),
		Zips:        rules.ParseZipCriterion(DecodeStringList(r.ZipCodes)),
		States:      rules.ParseCriterion(DecodeStringList(r.States)),
	}
}

// ToMatcherRule converts the stored forwarding rule to its evaluation view.
func (r ForwardingRule) ToMatcherRule() rules.Rule {
	return rules.Rule{
		ID:             r.ID,
		Priority:       r.Priority,
		Active:         r.IsActive,
		ForwardEnabled: r.ForwardEnabled,
		TargetID:       r.TargetID,
		TargetURL:      r.TargetURL,
		Products:       rules.ParseCriterion(DecodeStringList(r.ProductTypes)),
		Zips:           rules.ParseZipCriterion(DecodeStringList(r.ZipCodes)),
		States:         rules.ParseCriterion(DecodeStringList(r.States)),
	}
}
