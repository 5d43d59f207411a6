package usecase

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/apperrors"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/rules"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/scope"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/validator"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/logger"
)

var (
	zipPattern   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	statePattern = regexp.MustCompile(`^[A-Za-z]{2}$`)
)

// validateCriteria checks the three criteria dimensions of a rule. A rule
// whose dimensions are all empty can never match and is rejected; an
// individually empty dimension is allowed and matches nothing. States are
// returned uppercased for storage.
func validateCriteria(productTypes, zipCodes, states []string) ([]string, error) {
	if len(productTypes) == 0 && len(zipCodes) == 0 && len(states) == 0 {
		return nil, apperrors.NewFatal(apperrors.ErrValidation, "rule has no criteria and can never match")
	}

	for _, zip := range zipCodes {
		if zip == rules.WildcardToken {
			continue
		}
		if !zipPattern.MatchString(zip) {
			return nil, apperrors.NewFatal(apperrors.ErrValidation, "invalid zip code %q", zip)
		}
	}

	normalizedStates := make([]string, 0, len(states))
	for _, st := range states {
		if st == rules.WildcardToken {
			normalizedStates = append(normalizedStates, st)
			continue
		}
		if !statePattern.MatchString(st) {
			return nil, apperrors.NewFatal(apperrors.ErrValidation, "invalid state code %q", st)
		}
		normalizedStates = append(normalizedStates, strings.ToUpper(st))
	}
	return normalizedStates, nil
}

// validateTargetURL restricts forwarding targets to absolute http(s) URLs.
func validateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return apperrors.NewFatal(apperrors.ErrValidation, "invalid target URL: %v", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.NewFatal(apperrors.ErrValidation, "target URL must be absolute http(s): %s", raw)
	}
	return nil
}

// splitZipCSV parses the bulk-create comma-separated zip list, trimming
// whitespace and dropping empty segments.
func splitZipCSV(csv string) []string {
	parts := strings.Split(csv, ",")
	zips := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			zips = append(zips, trimmed)
		}
	}
	return zips
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// --- Routing rules --- //

// CreateRoutingRule validates and persists a new routing rule for the
// scope in context.
func (s *RuleService) CreateRoutingRule(ctx context.Context, payload model.RoutingRulePayload) (*model.RoutingRule, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, apperrors.NewFatal(err, "missing scope for routing rule")
	}
	if err := validator.Validate(payload); err != nil {
		return nil, apperrors.NewFatal(apperrors.ErrValidation, "routing rule invalid: %v", err)
	}
	states, err := validateCriteria(payload.ProductTypes, payload.ZipCodes, payload.States)
	if err != nil {
		return nil, err
	}

	rule := &model.RoutingRule{
		ScopeID:      scopeID,
		Name:         payload.Name,
		Priority:     payload.Priority,
		IsActive:     boolOrDefault(payload.IsActive, true),
		WorkspaceID:  payload.WorkspaceID,
		ProductTypes: model.EncodeStringList(payload.ProductTypes),
		ZipCodes:     model.EncodeStringList(payload.ZipCodes),
		States:       model.EncodeStringList(states),
	}
	if err := s.ruleRepo.CreateRoutingRule(ctx, rule); err != nil {
		return nil, err
	}

	s.ruleCache.Invalidate(scopeID)
	logger.FromContext(ctx).Info("Routing rule created",
		zap.String("scope_id", scopeID),
		zap.Int64("rule_id", rule.ID),
		zap.Int("priority", rule.Priority),
		zap.Int64("workspace_id", rule.WorkspaceID),
	)
	return rule, nil
}

// UpdateRoutingRule validates and applies a full-payload update to an
// existing routing rule. Omitted booleans keep their stored value.
func (s *RuleService) UpdateRoutingRule(ctx context.Context, id int64, payload model.RoutingRulePayload) (*model.RoutingRule, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, apperrors.NewFatal(err, "missing scope for routing rule")
	}
	if err := validator.Validate(payload); err != nil {
		return nil, apperrors.NewFatal(apperrors.ErrValidation, "routing rule invalid: %v", err)
	}
	states, err := validateCriteria(payload.ProductTypes, payload.ZipCodes, payload.States)
	if err != nil {
		return nil, err
	}

	existing, err := s.ruleRepo.GetRoutingRule(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = payload.Name
	existing.Priority = payload.Priority
	existing.IsActive = boolOrDefault(payload.IsActive, existing.IsActive)
	existing.WorkspaceID = payload.WorkspaceID
	existing.ProductTypes = model.EncodeStringList(payload.ProductTypes)
	existing.ZipCodes = model.EncodeStringList(payload.ZipCodes)
	existing.States = model.EncodeStringList(states)

	if err := s.ruleRepo.UpdateRoutingRule(ctx, existing); err != nil {
		return nil, err
	}

	s.ruleCache.Invalidate(scopeID)
	logger.FromContext(ctx).Info("Routing rule updated",
		zap.String("scope_id", scopeID),
		zap.Int64("rule_id", id),
	)
	return existing, nil
}

// DeleteRoutingRule removes a routing rule and invalidates the scope's
// snapshot.
func (s *RuleService) DeleteRoutingRule(ctx context.Context, id int64) error {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return apperrors.NewFatal(err, "missing scope for routing rule")
	}
	if err := s.ruleRepo.DeleteRoutingRule(ctx, id); err != nil {
		return err
	}
	s.ruleCache.Invalidate(scopeID)
	logger.FromContext(ctx).Info("Routing rule deleted",
		zap.String("scope_id", scopeID),
		zap.Int64("rule_id", id),
	)
	return nil
}

// GetRoutingRule fetches one routing rule.
func (s *RuleService) GetRoutingRule(ctx context.Context, id int64) (*model.RoutingRule, error) {
	return s.ruleRepo.GetRoutingRule(ctx, id)
}

// ListRoutingRules returns the scope's routing rules in evaluation order.
func (s *RuleService) ListRoutingRules(ctx context.Context) ([]model.RoutingRule, error) {
	return s.ruleRepo.ListRoutingRules(ctx)
}

// --- Forwarding rules --- //

// CreateForwardingRule validates and persists a new forwarding rule for
// the scope in context.
func (s *RuleService) CreateForwardingRule(ctx context.Context, payload model.ForwardingRulePayload) (*model.ForwardingRule, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, apperrors.NewFatal(err, "missing scope for forwarding rule")
	}
	if err := validator.Validate(payload); err != nil {
		return nil, apperrors.NewFatal(apperrors.ErrValidation, "forwarding rule invalid: %v", err)
	}
	if err := validateTargetURL(payload.TargetURL); err != nil {
		return nil, err
	}
	states, err := validateCriteria(payload.ProductTypes, payload.ZipCodes, payload.States)
	if err != nil {
		return nil, err
	}

	rule := &model.ForwardingRule{
		ScopeID:        scopeID,
		Name:           payload.Name,
		Priority:       payload.Priority,
		IsActive:       boolOrDefault(payload.IsActive, true),
		ForwardEnabled: boolOrDefault(payload.ForwardEnabled, true),
		TargetID:       payload.TargetID,
		TargetURL:      payload.TargetURL,
		ProductTypes:   model.EncodeStringList(payload.ProductTypes),
		ZipCodes:       model.EncodeStringList(payload.ZipCodes),
		States:         model.EncodeStringList(states),
	}
	if err := s.ruleRepo.CreateForwardingRule(ctx, rule); err != nil {
		return nil, err
	}

	s.ruleCache.Invalidate(scopeID)
	logger.FromContext(ctx).Info("Forwarding rule created",
		zap.String("scope_id", scopeID),
		zap.Int64("rule_id", rule.ID),
		zap.String("target_id", rule.TargetID),
	)
	return rule, nil
}

// CreateForwardingRuleBulk creates one forwarding rule from the bulk form,
// where zip codes arrive as a single comma-separated string.
func (s *RuleService) CreateForwardingRuleBulk(ctx context.Context, payload model.BulkForwardingRulePayload) (*model.ForwardingRule, error) {
	if err := validator.Validate(payload); err != nil {
		return nil, apperrors.NewFatal(apperrors.ErrValidation, "bulk forwarding rule invalid: %v", err)
	}
	zips := splitZipCSV(payload.ZipCodesCSV)
	if len(zips) == 0 {
		return nil, apperrors.NewFatal(apperrors.ErrValidation, "bulk zip list is empty")
	}
	return s.CreateForwardingRule(ctx, model.ForwardingRulePayload{
		Name:           payload.Name,
		Priority:       payload.Priority,
		IsActive:       payload.IsActive,
		ForwardEnabled: payload.ForwardEnabled,
		TargetID:       payload.TargetID,
		TargetURL:      payload.TargetURL,
		ProductTypes:   payload.ProductTypes,
		ZipCodes:       zips,
		States:         payload.States,
	})
}

// UpdateForwardingRule validates and applies a full-payload update to an
// existing forwarding rule. Omitted booleans keep their stored value.
func (s *RuleService) UpdateForwardingRule(ctx context.Context, id int64, payload model.ForwardingRulePayload) (*model.ForwardingRule, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, apperrors.NewFatal(err, "missing scope for forwarding rule")
	}
	if err := validator.Validate(payload); err != nil {
		return nil, apperrors.NewFatal(apperrors.ErrValidation, "forwarding rule invalid: %v", err)
	}
	if err := validateTargetURL(payload.TargetURL); err != nil {
		return nil, err
	}
	states, err := validateCriteria(payload.ProductTypes, payload.ZipCodes, payload.States)
	if err != nil {
		return nil, err
	}

	existing, err := s.ruleRepo.GetForwardingRule(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = payload.Name
	existing.Priority = payload.Priority
	existing.IsActive = boolOrDefault(payload.IsActive, existing.IsActive)
	existing.ForwardEnabled = boolOrDefault(payload.ForwardEnabled, existing.ForwardEnabled)
	existing.TargetID = payload.TargetID
	existing.TargetURL = payload.TargetURL
	existing.ProductTypes = model.EncodeStringList(payload.ProductTypes)
	existing.ZipCodes = model.EncodeStringList(payload.ZipCodes)
	existing.States = model.EncodeStringList(states)

	if err := s.ruleRepo.UpdateForwardingRule(ctx, existing); err != nil {
		return nil, err
	}

	s.ruleCache.Invalidate(scopeID)
	logger.FromContext(ctx).Info("Forwarding rule updated",
		zap.String("scope_id", scopeID),
		zap.Int64("rule_id", id),
	)
	return existing, nil
}

// DeleteForwardingRule removes a forwarding rule and invalidates the
// scope's snapshot. Already-enqueued deliveries for the rule re-check it at
// dispatch time and skip.
func (s *RuleService) DeleteForwardingRule(ctx context.Context, id int64) error {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return apperrors.NewFatal(err, "missing scope for forwarding rule")
	}
	if err := s.ruleRepo.DeleteForwardingRule(ctx, id); err != nil {
		return err
	}
	s.ruleCache.Invalidate(scopeID)
	logger.FromContext(ctx).Info("Forwarding rule deleted",
		zap.String("scope_id", scopeID),
		zap.Int64("rule_id", id),
	)
	return nil
}

// GetForwardingRule fetches one forwarding rule.
func (s *RuleService) GetForwardingRule(ctx context.Context, id int64) (*model.ForwardingRule, error) {
	return s.ruleRepo.GetForwardingRule(ctx, id)
}

// ListForwardingRules returns the scope's forwarding rules in evaluation
// order.
func (s *RuleService) ListForwardingRules(ctx context.Context) ([]model.ForwardingRule, error) {
	return s.ruleRepo.ListForwardingRules(ctx)
}

// --- Master toggle --- //

// GetSettings returns the scope's settings, defaulting to
// forwarding-enabled when no row exists yet.
func (s *RuleService) GetSettings(ctx context.Context) (*model.ScopeSettings, error) {
	return s.settingsRepo.Get(ctx)
}

// SetForwardingEnabled flips the scope's master forwarding toggle,
// last-writer-wins. The dispatcher reads the toggle fresh per attempt, so
// the change applies to deliveries already in flight.
func (s *RuleService) SetForwardingEnabled(ctx context.Context, enabled bool) (*model.ScopeSettings, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, apperrors.NewFatal(err, "missing scope for forwarding toggle")
	}
	if err := s.settingsRepo.SetForwardingEnabled(ctx, enabled); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Master forwarding toggle updated",
		zap.String("scope_id", scopeID),
		zap.Bool("forwarding_enabled", enabled),
	)
	return s.settingsRepo.Get(ctx)
}
