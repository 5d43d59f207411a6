package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/cache"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/observer"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/rules"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/scope"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/storage"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/logger"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/utils"
)

// ForwardSubjectPrefix is the JetStream subject namespace dispatch jobs are
// published under; the scope ID forms the final token.
const ForwardSubjectPrefix = "v1.forward."

// Publisher is the queue surface the ingestion path needs to hand matched
// forwards to the dispatcher.
type Publisher interface {
	Publish(subject string, data []byte, headers map[string]string) error
}

// IngestOptions are the policy knobs for leads arriving without a usable
// phone number.
type IngestOptions struct {
	// DedupeByEmail keys phone-less contacts by lowercased email instead of
	// giving every lead its own contact.
	DedupeByEmail bool
	// RequireValidPhone rejects submissions whose phone is present but
	// cannot be normalized, instead of ingesting them without phone dedup.
	RequireValidPhone bool
}

// IngestService drives the inbound lead pipeline: validate, resolve the
// contact identity, persist the lead, evaluate rules, and enqueue matched
// forwards for async delivery.
type IngestService struct {
	contactRepo storage.ContactRepo
	leadRepo    storage.LeadRepo
	ruleRepo    storage.RuleRepo
	ruleCache   *cache.RuleCache
	publisher   Publisher
	opts        IngestOptions

	mu            sync.Mutex
	contactCaches map[string]*cache.ContactCache
}

// NewIngestService creates the ingestion service.
func NewIngestService(
	contactRepo storage.ContactRepo,
	leadRepo storage.LeadRepo,
	ruleRepo storage.RuleRepo,
	ruleCache *cache.RuleCache,
	publisher Publisher,
	opts IngestOptions,
) *IngestService {
	return &IngestService{
		contactRepo:   contactRepo,
		leadRepo:      leadRepo,
		ruleRepo:      ruleRepo,
		ruleCache:     ruleCache,
		publisher:     publisher,
		opts:          opts,
		contactCaches: make(map[string]*cache.ContactCache),
	}
}

// contactCacheFor returns the bloom cache for a scope, creating it lazily.
func (s *IngestService) contactCacheFor(scopeID string) *cache.ContactCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contactCaches[scopeID]
	if !ok {
		c = cache.NewContactCache(scopeID, 100_000, 0.01)
		s.contactCaches[scopeID] = c
	}
	return c
}

// ruleSnapshot returns the scope's rule snapshot, loading both rule sets
// from storage and filling the cache on a miss. Mutations through
// RuleService invalidate the snapshot, so a hit is always current.
func (s *IngestService) ruleSnapshot(ctx context.Context) (*cache.RuleSnapshot, error) {
	scopeID, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	if snap := s.ruleCache.Get(scopeID); snap != nil {
		return snap, nil
	}

	start := utils.Now()
	routingRules, err := s.ruleRepo.ListRoutingRules(ctx)
	if err != nil {
		return nil, err
	}
	forwardingRules, err := s.ruleRepo.ListForwardingRules(ctx)
	if err != nil {
		return nil, err
	}

	routing := make([]rules.Rule, 0, len(routingRules))
	for _, r := range routingRules {
		routing = append(routing, r.ToMatcherRule())
	}
	forwarding := make([]rules.Rule, 0, len(forwardingRules))
	for _, r := range forwardingRules {
		forwarding = append(forwarding, r.ToMatcherRule())
	}

	snap := s.ruleCache.Put(scopeID, routing, forwarding)
	logger.FromContext(ctx).Debug("Loaded rule snapshot",
		zap.String("scope_id", scopeID),
		zap.Int("routing_rules", len(routing)),
		zap.Int("forwarding_rules", len(forwarding)),
		zap.Duration("duration", time.Since(start)),
	)
	return snap, nil
}

// RuleService handles administrative rule CRUD, the bulk zip variant, and
// the per-scope master forwarding toggle. Every mutation invalidates the
// scope's cached rule snapshot.
type RuleService struct {
	ruleRepo     storage.RuleRepo
	settingsRepo storage.SettingsRepo
	ruleCache    *cache.RuleCache
}

// NewRuleService creates the rule administration service.
func NewRuleService(ruleRepo storage.RuleRepo, settingsRepo storage.SettingsRepo, ruleCache *cache.RuleCache) *RuleService {
	return &RuleService{
		ruleRepo:     ruleRepo,
		settingsRepo: settingsRepo,
		ruleCache:    ruleCache,
	}
}

// LogService serves the forwarding audit log and its aggregates.
type LogService struct {
	logRepo storage.ForwardingLogRepo
}

// NewLogService creates the log query service.
func NewLogService(logRepo storage.ForwardingLogRepo) *LogService {
	return &LogService{logRepo: logRepo}
}

func observeMatch(scopeID, kind string, start time.Time, matched bool) {
	observer.ObserveRuleMatchDuration(scopeID, kind, time.Since(start))
	observer.IncRuleMatches(scopeID, kind, matched)
}
