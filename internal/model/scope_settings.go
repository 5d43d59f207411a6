package model

import "time"

// ScopeSettings holds the per-scope master forwarding toggle. One row per
// scope; last-writer-wins on update. The dispatcher reads it fresh on every
// delivery decision so flipping it off takes effect for in-flight matches.
type ScopeSettings struct {
	ID      int64  `json:"-" gorm:"primaryKey;autoIncrement"`
	ScopeID string `json:"scope_id" gorm:"column:scope_id;uniqueIndex" validate:"required"`
	// ForwardingEnabled is the master toggle; rules are untouched when it
	// is flipped.
	ForwardingEnabled bool      `json:"forwarding_enabled" gorm:"column:forwarding_enabled"`
	UpdatedAt         time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (ScopeSettings) TableName() string {
	return "scope_settings"
}
