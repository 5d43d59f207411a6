package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/datatypes"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/rules"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/utils"
)

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// RandomJSONBMap marshals a map into a JSONB column value for testing.
func RandomJSONBMap(data map[string]interface{}) datatypes.JSON {
	bytes, _ := json.Marshal(data)
	return datatypes.JSON(bytes)
}

// RandomScopeID generates a scope identifier in the shape real webhook IDs use.
func RandomScopeID() string {
	return "scope_" + gofakeit.LetterN(10)
}

// RandomPhone generates a normalized E.164-style US phone number.
func RandomPhone() string {
	return fmt.Sprintf("+1%d%d", gofakeit.Number(200, 999), gofakeit.Number(1000000, 9999999))
}

// NewContact creates a Contact with default fake data.
func NewContact(overrideDefaults ...*Contact) *Contact {
	phone := RandomPhone()
	base := &Contact{
		ScopeID:     RandomScopeID(),
		IdentityKey: phone,
		PhoneNumber: phone,
		FirstName:   gofakeit.FirstName(),
		LastName:    gofakeit.LastName(),
		Email:       gofakeit.Email(),
		Address:     gofakeit.Street(),
		City:        gofakeit.City(),
		State:       gofakeit.StateAbr(),
		ZipCode:     gofakeit.Zip(),
		CreatedAt:   utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt:   utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != 0 {
			base.ID = ovr.ID
		}
		if ovr.ScopeID != "" {
			base.ScopeID = ovr.ScopeID
		}
		if ovr.IdentityKey != "" {
			base.IdentityKey = ovr.IdentityKey
		}
		if ovr.PhoneNumber != "" {
			base.PhoneNumber = ovr.PhoneNumber
		}
		if ovr.FirstName != "" {
			base.FirstName = ovr.FirstName
		}
		if ovr.LastName != "" {
			base.LastName = ovr.LastName
		}
		if ovr.Email != "" {
			base.Email = ovr.Email
		}
		if ovr.State != "" {
			base.State = ovr.State
		}
		if ovr.ZipCode != "" {
			base.ZipCode = ovr.ZipCode
		}
		if !ovr.CreatedAt.IsZero() {
			base.CreatedAt = ovr.CreatedAt
		}
		if !ovr.UpdatedAt.IsZero() {
			base.UpdatedAt = ovr.UpdatedAt
		}
	}
	return base
}

// NewLead creates a Lead with default fake data.
func NewLead(overrideDefaults ...*Lead) *Lead {
	base := &Lead{
		ContactID:   int64(gofakeit.Number(1, 100000)),
		ScopeID:     RandomScopeID(),
		ProductType: gofakeit.RandomString([]string{"Solar", "Roofing", "HVAC", "Windows"}),
		ZipCode:     gofakeit.Zip(),
		State:       gofakeit.StateAbr(),
		Status:      LeadStatusNew,
		Payload:     RandomJSONBMap(map[string]interface{}{"source": gofakeit.Word()}),
		CreatedAt:   utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != 0 {
			base.ID = ovr.ID
		}
		if ovr.ContactID != 0 {
			base.ContactID = ovr.ContactID
		}
		if ovr.ScopeID != "" {
			base.ScopeID = ovr.ScopeID
		}
		if ovr.ProductType != "" {
			base.ProductType = ovr.ProductType
		}
		if ovr.ZipCode != "" {
			base.ZipCode = ovr.ZipCode
		}
		if ovr.State != "" {
			base.State = ovr.State
		}
		if ovr.WorkspaceID != 0 {
			base.WorkspaceID = ovr.WorkspaceID
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.Payload != nil {
			base.Payload = ovr.Payload
		}
		if !ovr.CreatedAt.IsZero() {
			base.CreatedAt = ovr.CreatedAt
		}
	}
	return base
}

// NewForwardingRule creates a ForwardingRule with default fake data.
func NewForwardingRule(overrideDefaults ...*ForwardingRule) *ForwardingRule {
	products := EncodeStringList([]string{"Solar"})
	zips := EncodeStringList([]string{gofakeit.Zip()})
	states := EncodeStringList([]string{rules.WildcardToken})

	base := &ForwardingRule{
		ScopeID:        RandomScopeID(),
		Name:           gofakeit.BuzzWord() + " rule",
		Priority:       gofakeit.Number(1, 10),
		IsActive:       true,
		ForwardEnabled: true,
		TargetID:       "tgt_" + gofakeit.LetterN(8),
		TargetURL:      "https://" + gofakeit.DomainName() + "/hooks/leads",
		ProductTypes:   products,
		ZipCodes:       zips,
		States:         states,
		CreatedAt:      utils.Now(),
		UpdatedAt:      utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != 0 {
			base.ID = ovr.ID
		}
		if ovr.ScopeID != "" {
			base.ScopeID = ovr.ScopeID
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.Priority != 0 {
			base.Priority = ovr.Priority
		}
		if ovr.TargetID != "" {
			base.TargetID = ovr.TargetID
		}
		if ovr.TargetURL != "" {
			base.TargetURL = ovr.TargetURL
		}
		if ovr.ProductTypes != nil {
			base.ProductTypes = ovr.ProductTypes
		}
		if ovr.ZipCodes != nil {
			base.ZipCodes = ovr.ZipCodes
		}
		if ovr.States != nil {
			base.States = ovr.States
		}
		base.IsActive = ovr.IsActive
		base.ForwardEnabled = ovr.ForwardEnabled
	}
	return base
}

// NewForwardingLog creates a ForwardingLog entry with default fake data.
func NewForwardingLog(overrideDefaults ...*ForwardingLog) *ForwardingLog {
	base := &ForwardingLog{
		DeliveryID:  gofakeit.UUID(),
		ScopeID:     RandomScopeID(),
		LeadID:      int64(gofakeit.Number(1, 100000)),
		ContactID:   int64(gofakeit.Number(1, 100000)),
		RuleID:      int64(gofakeit.Number(1, 1000)),
		TargetID:    "tgt_" + gofakeit.LetterN(8),
		TargetURL:   "https://" + gofakeit.DomainName() + "/hooks/leads",
		Outcome:     ForwardOutcomeSuccess,
		HTTPStatus:  200,
		RetryCount:  0,
		Payload:     RandomJSONBMap(map[string]interface{}{"first_name": gofakeit.FirstName()}),
		AttemptedAt: utils.Now(),
		CreatedAt:   utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.DeliveryID != "" {
			base.DeliveryID = ovr.DeliveryID
		}
		if ovr.ScopeID != "" {
			base.ScopeID = ovr.ScopeID
		}
		if ovr.LeadID != 0 {
			base.LeadID = ovr.LeadID
		}
		if ovr.RuleID != 0 {
			base.RuleID = ovr.RuleID
		}
		if ovr.Outcome != "" {
			base.Outcome = ovr.Outcome
		}
		if ovr.HTTPStatus != 0 {
			base.HTTPStatus = ovr.HTTPStatus
		}
		if ovr.ErrorMessage != "" {
			base.ErrorMessage = ovr.ErrorMessage
		}
		if ovr.RetryCount != 0 {
			base.RetryCount = ovr.RetryCount
		}
	}
	return base
}
