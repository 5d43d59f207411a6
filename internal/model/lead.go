package model

import (
	"time"

	"gorm.io/datatypes"
)

// Lead status values consumed by the admin UI.
const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusClosed    = "closed"
)

// Lead represents the leads table: one inquiry/event tied to a Contact.
// Immutable after creation except for the status annotation.
type Lead struct {
	// ID is the database primary key, exposed as lead_id in API responses.
	ID int64 `json:"id" gorm:"primaryKey;autoIncrement"`
	// ContactID references the owning deduplicated contact.
	ContactID int64 `json:"contact_id" gorm:"column:contact_id;index" validate:"required"`
	// ScopeID is the originating webhook/provider namespace.
	ScopeID string `json:"scope_id" gorm:"column:scope_id;index" validate:"required"`
	// ProductType is the product/service dimension matched by rules.
	ProductType string `json:"product_type,omitempty" gorm:"column:product_type"`
	// ZipCode is stored as submitted; rule comparison uses the 5-digit form.
	ZipCode string `json:"zip_code,omitempty" gorm:"column:zip_code"`
	// State is stored uppercased.
	State string `json:"state,omitempty" gorm:"column:state"`
	// WorkspaceID is the routing assignment (first-match-wins); zero when no
	// routing rule matched.
	WorkspaceID int64 `json:"workspace_id,omitempty" gorm:"column:workspace_id;index"`
	// Status is the mutable annotation consumed by the admin UI.
	Status string `json:"status,omitempty" gorm:"column:status;default:new"`
	// Payload is the raw inbound submission, kept verbatim for audit.
	Payload   datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb;column:payload"`
	CreatedAt time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (Lead) TableName() string {
	return "leads"
}
