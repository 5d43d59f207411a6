package model

import (
	"encoding/json"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/rules"
)

// --- Inbound lead submission --- //

// LeadSubmission is the body of POST /webhook/{webhookId}. Phone is
// optional; when present it drives contact deduplication.
type LeadSubmission struct {
	FirstName   string `json:"firstName" validate:"required"`
	LastName    string `json:"lastName" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Source      string `json:"source" validate:"required"`
	Phone       string `json:"phone,omitempty" validate:"omitempty"`
	ProductType string `json:"productType,omitempty" validate:"omitempty"`
	ZipCode     string `json:"zipCode,omitempty" validate:"omitempty"`
	State       string `json:"state,omitempty" validate:"omitempty,state_code"`
	Address     string `json:"address,omitempty" validate:"omitempty"`
	City        string `json:"city,omitempty" validate:"omitempty"`
}

// Contact status values returned by the ingestion response.
const (
	ContactStatusNew      = "new"
	ContactStatusExisting = "existing"
)

// IngestResponse is the success body of POST /webhook/{webhookId}.
type IngestResponse struct {
	Status        string `json:"status"`
	ContactID     int64  `json:"contact_id"`
	LeadID        int64  `json:"lead_id"`
	ContactStatus string `json:"contact_status"`
}

// --- Rule administration payloads --- //

// RoutingRulePayload is the create/update body for routing rules.
type RoutingRulePayload struct {
	Name         string   `json:"name,omitempty"`
	Priority     int      `json:"priority" validate:"required,gte=1"`
	IsActive     *bool    `json:"is_active,omitempty"`
	WorkspaceID  int64    `json:"workspace_id" validate:"required"`
	ProductTypes []string `json:"product_types" validate:"omitempty,dive,required"`
	ZipCodes     []string `json:"zip_codes" validate:"omitempty,dive,required"`
	States       []string `json:"states" validate:"omitempty,dive,required"`
}

// ForwardingRulePayload is the create/update body for forwarding rules.
type ForwardingRulePayload struct {
	Name           string   `json:"name,omitempty"`
	Priority       int      `json:"priority" validate:"required,gte=1"`
	IsActive       *bool    `json:"is_active,omitempty"`
	ForwardEnabled *bool    `json:"forward_enabled,omitempty"`
	TargetID       string   `json:"target_id" validate:"required"`
	TargetURL      string   `json:"target_url" validate:"required,url"`
	ProductTypes   []string `json:"product_types" validate:"omitempty,dive,required"`
	ZipCodes       []string `json:"zip_codes" validate:"omitempty,dive,required"`
	States         []string `json:"states" validate:"omitempty,dive,required"`
}

// BulkForwardingRulePayload is the bulk-create body: identical to the
// single-create form except zips arrive as one comma-separated string, the
// way the admin UI submits pasted lists.
type BulkForwardingRulePayload struct {
	Name           string   `json:"name,omitempty"`
	Priority       int      `json:"priority" validate:"required,gte=1"`
	IsActive       *bool    `json:"is_active,omitempty"`
	ForwardEnabled *bool    `json:"forward_enabled,omitempty"`
	TargetID       string   `json:"target_id" validate:"required"`
	TargetURL      string   `json:"target_url" validate:"required,url"`
	ProductTypes   []string `json:"product_types" validate:"omitempty,dive,required"`
	ZipCodesCSV    string   `json:"zip_codes_csv" validate:"required"`
	States         []string `json:"states" validate:"omitempty,dive,required"`
}

// TogglePayload is the body of PATCH .../forwarding-toggle.
type TogglePayload struct {
	ForwardingEnabled *bool `json:"forwarding_enabled" validate:"required"`
}

// --- Dispatch queue payloads --- //

// DispatchJob is the message published to the forwards stream for each
// matched forwarding rule. Attempt state (retry count) lives in JetStream
// delivery metadata, not here, so the job survives process restarts.
type DispatchJob struct {
	DeliveryID string                `json:"delivery_id" validate:"required"`
	ScopeID    string                `json:"scope_id" validate:"required"`
	LeadID     int64                 `json:"lead_id" validate:"required"`
	ContactID  int64                 `json:"contact_id" validate:"required"`
	RuleID     int64                 `json:"rule_id" validate:"required"`
	TargetID   string                `json:"target_id"`
	TargetURL  string                `json:"target_url" validate:"required,url"`
	Matched    rules.MatchedCriteria `json:"matched"`
	// Payload is the normalized outbound body, frozen at match time.
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// ForwardPayload is the normalized JSON body POSTed to webhook targets,
// independent of the inbound submission shape.
type ForwardPayload struct {
	LeadID      int64                 `json:"lead_id"`
	ContactID   int64                 `json:"contact_id"`
	Scope       string                `json:"scope"`
	FirstName   string                `json:"first_name"`
	LastName    string                `json:"last_name"`
	Email       string                `json:"email"`
	Phone       string                `json:"phone,omitempty"`
	ProductType string                `json:"product_type,omitempty"`
	ZipCode     string                `json:"zip_code,omitempty"`
	State       string                `json:"state,omitempty"`
	Matched     rules.MatchedCriteria `json:"matched_criteria"`
	SubmittedAt string                `json:"submitted_at"`
}
