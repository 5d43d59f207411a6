package model

import (
	"time"

	"gorm.io/datatypes"
)

// Forwarding log outcomes. One row is written per delivery attempt;
// success and failed are terminal, retry marks an attempt that will be
// re-driven, skipped records a gated (toggle/rule) non-attempt.
const (
	ForwardOutcomeSuccess = "success"
	ForwardOutcomeFailed  = "failed"
	ForwardOutcomeRetry   = "retry"
	ForwardOutcomeSkipped = "skipped"
)

// ForwardingLog is one append-only record per delivery attempt to an
// external webhook target. Rows are never mutated after creation.
type ForwardingLog struct {
	ID int64 `json:"id" gorm:"primaryKey;autoIncrement"`
	// DeliveryID correlates every attempt of one logical delivery
	// (lead x rule), assigned at enqueue time.
	DeliveryID string `json:"delivery_id" gorm:"column:delivery_id;index" validate:"required"`
	ScopeID    string `json:"scope_id" gorm:"column:scope_id;index" validate:"required"`
	LeadID     int64  `json:"lead_id" gorm:"column:lead_id;index" validate:"required"`
	ContactID  int64  `json:"contact_id" gorm:"column:contact_id"`
	RuleID     int64  `json:"rule_id" gorm:"column:rule_id;index"`
	TargetID   string `json:"target_id" gorm:"column:target_id"`
	TargetURL  string `json:"target_url" gorm:"column:target_url"`
	// Outcome is one of success, failed, retry, skipped.
	Outcome string `json:"forward_status" gorm:"column:outcome;index" validate:"required,oneof=success failed retry skipped"`
	// HTTPStatus is the downstream response code, zero when the request
	// never completed (timeout, connection error, skip).
	HTTPStatus   int    `json:"http_status,omitempty" gorm:"column:http_status"`
	ErrorMessage string `json:"error_message,omitempty" gorm:"column:error_message"`
	// RetryCount is how many prior attempts preceded this one for the same
	// logical delivery.
	RetryCount int `json:"retry_count" gorm:"column:retry_count"`
	// MatchedCriteria echoes the lead values that satisfied the rule.
	MatchedCriteria datatypes.JSON `json:"matched_criteria,omitempty" gorm:"type:jsonb;column:matched_criteria"`
	// Payload is the outbound request body snapshot.
	Payload     datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb;column:payload"`
	AttemptedAt time.Time      `json:"attempted_at" gorm:"column:attempted_at;index"`
	CreatedAt   time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (ForwardingLog) TableName() string {
	return "forwarding_logs"
}

// ForwardingStats aggregates log outcomes for the stats endpoint.
type ForwardingStats struct {
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
	Retry   int64 `json:"retry"`
	Skipped int64 `json:"skipped"`
	// RuleSuccess maps rule ID to its successful delivery count.
	RuleSuccess map[int64]int64 `json:"rule_success,omitempty"`
}
