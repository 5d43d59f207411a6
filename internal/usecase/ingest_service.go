package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/apperrors"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/cache"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/observer"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/phone"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/rules"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/scope"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/validator"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/logger"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/utils"
)

// Ingest processes one inbound lead submission end to end: it resolves the
// contact identity, persists the lead with its routing assignment, and
// enqueues one dispatch job per matched forwarding target. Forward delivery
// happens asynchronously; a returned response only guarantees the contact
// and lead are durable.
//
// raw is the verbatim request body, kept as the lead's payload snapshot;
// when empty the typed submission is re-marshaled in its place.
func (s *IngestService) Ingest(ctx context.Context, sub model.LeadSubmission, raw json.RawMessage) (*model.IngestResponse, error) {
	log := logger.FromContext(ctx)
	start := utils.Now()

	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, apperrors.NewFatal(err, "missing scope for lead submission")
	}

	if err := validator.Validate(sub); err != nil {
		log.Warn("Lead submission failed validation",
			zap.String("scope_id", scopeID),
			zap.Error(err),
		)
		observer.IncLeadsRejected(scopeID, "validation")
		return nil, apperrors.NewFatal(apperrors.ErrValidation, "lead submission invalid: %v", err)
	}

	normalizedPhone, err := s.resolvePhone(ctx, sub.Phone)
	if err != nil {
		observer.IncLeadsRejected(scopeID, "invalid_phone")
		return nil, err
	}

	identityKey := s.identityKey(normalizedPhone, sub.Email)

	contact, created, err := s.resolveContact(ctx, scopeID, identityKey, normalizedPhone, sub)
	if err != nil {
		observer.IncLeadsRejected(scopeID, observer.SanitizeErrorType(err.Error()))
		return nil, err
	}

	snap, err := s.ruleSnapshot(ctx)
	if err != nil {
		observer.IncLeadsRejected(scopeID, observer.SanitizeErrorType(err.Error()))
		return nil, err
	}

	leadAttrs := rules.LeadAttributes{
		ProductType: sub.ProductType,
		ZipCode:     sub.ZipCode,
		State:       sub.State,
	}

	matchStart := utils.Now()
	routed, routeFound := rules.MatchRouting(snap.Routing, leadAttrs)
	observeMatch(scopeID, "routing", matchStart, routeFound)

	if len(raw) == 0 {
		raw = utils.MustMarshalJSON(sub)
	}

	lead := &model.Lead{
		ContactID:   contact.ID,
		ScopeID:     scopeID,
		ProductType: sub.ProductType,
		ZipCode:     sub.ZipCode,
		State:       rules.NormalizeState(sub.State),
		Status:      model.LeadStatusNew,
		Payload:     datatypes.JSON(raw),
	}
	if routeFound {
		lead.WorkspaceID = routed.WorkspaceID
	}
	if err := s.leadRepo.Create(ctx, lead); err != nil {
		observer.IncLeadsRejected(scopeID, observer.SanitizeErrorType(err.Error()))
		return nil, err
	}

	matchStart = utils.Now()
	forwards := rules.MatchForwarding(snap.Forwarding, leadAttrs)
	observeMatch(scopeID, "forwarding", matchStart, len(forwards) > 0)

	s.enqueueForwards(ctx, scopeID, contact, lead, sub, normalizedPhone, forwards)

	contactStatus := model.ContactStatusExisting
	if created {
		contactStatus = model.ContactStatusNew
	}
	observer.IncLeadsReceived(scopeID, contactStatus)
	observer.ObserveIngestDuration(scopeID, time.Since(start))

	log.Info("Lead ingested",
		zap.String("scope_id", scopeID),
		zap.Int64("contact_id", contact.ID),
		zap.Int64("lead_id", lead.ID),
		zap.String("contact_status", contactStatus),
		zap.Int64("workspace_id", lead.WorkspaceID),
		zap.Int("forward_matches", len(forwards)),
	)

	return &model.IngestResponse{
		Status:        "success",
		ContactID:     contact.ID,
		LeadID:        lead.ID,
		ContactStatus: contactStatus,
	}, nil
}

// resolvePhone normalizes the submitted phone. An absent phone yields the
// empty string; a malformed one does too unless RequireValidPhone turns it
// into a rejection.
func (s *IngestService) resolvePhone(ctx context.Context, rawPhone string) (string, error) {
	if rawPhone == "" {
		return "", nil
	}
	normalized, err := phone.Normalize(rawPhone)
	if err != nil {
		if s.opts.RequireValidPhone {
			return "", apperrors.NewFatal(err, "phone rejected")
		}
		logger.FromContext(ctx).Debug("Ingesting lead without phone dedup",
			zap.String("raw_phone", rawPhone),
			zap.Error(err),
		)
		return "", nil
	}
	return normalized, nil
}

// identityKey derives the contact dedup key: normalized phone when
// available, email fallback when enabled, otherwise a per-lead key that
// never collides.
func (s *IngestService) identityKey(normalizedPhone, email string) string {
	if normalizedPhone != "" {
		return normalizedPhone
	}
	if s.opts.DedupeByEmail && email != "" {
		return model.IdentityKeyForEmail(email)
	}
	return model.IdentityKeyForLead(uuid.NewString())
}

// resolveContact finds or creates the contact for an identity key. The
// bloom cache short-circuits the insert attempt for identities it has very
// likely seen; correctness always rests on the storage-level unique index.
func (s *IngestService) resolveContact(ctx context.Context, scopeID, identityKey, normalizedPhone string, sub model.LeadSubmission) (*model.Contact, bool, error) {
	cc := s.contactCacheFor(scopeID)

	if cc.CheckIdentity(identityKey) == cache.StatusMaybeKnown {
		existing, err := s.contactRepo.FindByIdentityKey(ctx, identityKey)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, false, err
		}
		cc.RecordFalsePositive()
	}

	contact, created, err := s.contactRepo.InsertOrFetch(ctx, model.Contact{
		ScopeID:     scopeID,
		IdentityKey: identityKey,
		PhoneNumber: normalizedPhone,
		FirstName:   sub.FirstName,
		LastName:    sub.LastName,
		Email:       sub.Email,
		Address:     sub.Address,
		City:        sub.City,
		State:       rules.NormalizeState(sub.State),
		ZipCode:     sub.ZipCode,
	})
	if err != nil {
		return nil, false, err
	}
	cc.MarkKnown(identityKey)
	return contact, created, nil
}

// enqueueForwards publishes one dispatch job per matched forwarding rule.
// Publish failures are logged and counted but never fail the ingestion;
// the lead is already durable and forwarding is a side effect.
func (s *IngestService) enqueueForwards(ctx context.Context, scopeID string, contact *model.Contact, lead *model.Lead, sub model.LeadSubmission, normalizedPhone string, forwards []rules.Rule) {
	if len(forwards) == 0 {
		return
	}
	log := logger.FromContext(ctx)

	submittedAt := lead.CreatedAt
	if submittedAt.IsZero() {
		submittedAt = utils.Now()
	}
	subject := ForwardSubjectPrefix + scopeID

	for _, rule := range forwards {
		deliveryID := uuid.NewString()

		payload := model.ForwardPayload{
			LeadID:      lead.ID,
			ContactID:   contact.ID,
			Scope:       scopeID,
			FirstName:   sub.FirstName,
			LastName:    sub.LastName,
			Email:       sub.Email,
			Phone:       normalizedPhone,
			ProductType: sub.ProductType,
			ZipCode:     sub.ZipCode,
			State:       rules.NormalizeState(sub.State),
			Matched:     rule.Echo(rules.LeadAttributes{ProductType: sub.ProductType, ZipCode: sub.ZipCode, State: sub.State}),
			SubmittedAt: utils.FormatISO8601(submittedAt),
		}

		job := model.DispatchJob{
			DeliveryID: deliveryID,
			ScopeID:    scopeID,
			LeadID:     lead.ID,
			ContactID:  contact.ID,
			RuleID:     rule.ID,
			TargetID:   rule.TargetID,
			TargetURL:  rule.TargetURL,
			Matched:    payload.Matched,
			Payload:    utils.MustMarshalJSON(payload),
		}

		headers := map[string]string{
			"Nats-Msg-Id": deliveryID,
		}
		if err := s.publisher.Publish(subject, utils.MustMarshalJSON(job), headers); err != nil {
			log.Error("Failed to enqueue forward",
				zap.String("scope_id", scopeID),
				zap.Int64("lead_id", lead.ID),
				zap.Int64("rule_id", rule.ID),
				zap.String("delivery_id", deliveryID),
				zap.Error(err),
			)
			observer.IncDispatchTasksDropped(scopeID)
			continue
		}
		observer.IncDispatchTasksSubmitted(scopeID)
		log.Debug("Forward enqueued",
			zap.String("delivery_id", deliveryID),
			zap.Int64("rule_id", rule.ID),
			zap.String("target_id", rule.TargetID),
		)
	}
}
