package model

import (
	"strings"
	"time"
)

// Contact represents the contacts table: the deduplicated identity of one
// person within a source scope.
type Contact struct {
	// ID is the database primary key, exposed as contact_id in API responses.
	ID int64 `json:"id" gorm:"primaryKey;autoIncrement"`
	// ScopeID identifies the originating webhook/provider namespace.
	ScopeID string `json:"scope_id" gorm:"column:scope_id;uniqueIndex:idx_contacts_scope_identity,priority:1" validate:"required"`
	// IdentityKey is the dedup key within the scope: the normalized phone
	// when one exists, otherwise a derived fallback key. The composite
	// unique index with scope_id is the conflict target for the
	// insert-or-fetch resolution.
	IdentityKey string `json:"-" gorm:"column:identity_key;uniqueIndex:idx_contacts_scope_identity,priority:2" validate:"required"`
	// PhoneNumber is the canonical +1XXXXXXXXXX phone, empty when the lead
	// carried none.
	PhoneNumber string    `json:"phone_number,omitempty" gorm:"column:phone_number;index"`
	FirstName   string    `json:"first_name,omitempty" gorm:"column:first_name"`
	LastName    string    `json:"last_name,omitempty" gorm:"column:last_name"`
	Email       string    `json:"email,omitempty" gorm:"column:email;index"`
	Address     string    `json:"address,omitempty" gorm:"column:address"`
	City        string    `json:"city,omitempty" gorm:"column:city"`
	State       string    `json:"state,omitempty" gorm:"column:state"`
	ZipCode     string    `json:"zip_code,omitempty" gorm:"column:zip_code"`
	CreatedAt   time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Contact) TableName() string {
	return "contacts"
}

// IdentityKeyForEmail derives the fallback identity key for phone-less
// contacts deduplicated by email.
func IdentityKeyForEmail(email string) string {
	return "email:" + strings.ToLower(strings.TrimSpace(email))
}

// IdentityKeyForLead derives a per-lead key for contacts that can never
// dedupe (no phone, email dedup disabled). The ingestion UUID keeps the
// unique index satisfied without ever colliding.
func IdentityKeyForLead(ingestID string) string {
	return "lead:" + ingestID
}
