package rules

import "sort"

// Rule is the evaluation view of a routing or forwarding rule. Criteria are
// already parsed and normalized; the matcher never touches storage.
type Rule struct {
	ID             int64
	Priority       int
	Active         bool
	ForwardEnabled bool

	// Forwarding-rule target; empty for routing rules.
	TargetID  string
	TargetURL string
	// Routing-rule destination; zero for forwarding rules.
	WorkspaceID int64

	Products Criterion
	Zips     Criterion
	States   Criterion
}

// LeadAttributes are the three dimensions a lead is matched on.
type LeadAttributes struct {
	ProductType string
	ZipCode     string
	State       string
}

// MatchedCriteria echoes the lead values that satisfied a rule, recorded on
// every forwarding log entry for audit.
type MatchedCriteria struct {
	ProductType string `json:"product_type"`
	ZipCode     string `json:"zip_code"`
	State       string `json:"state"`
}

// Matches reports whether the rule accepts the lead. Product comparison is
// exact and case-sensitive; zips compare in 5-digit form; states compare
// uppercased.
func (r Rule) Matches(lead LeadAttributes) bool {
	return r.Products.Matches(lead.ProductType) &&
		r.Zips.Matches(NormalizeZip(lead.ZipCode)) &&
		r.States.Matches(NormalizeState(lead.State))
}

// Echo returns the normalized lead values that satisfied the rule.
func (r Rule) Echo(lead LeadAttributes) MatchedCriteria {
	return MatchedCriteria{
		ProductType: lead.ProductType,
		ZipCode:     NormalizeZip(lead.ZipCode),
		State:       NormalizeState(lead.State),
	}
}

// Sort orders a rule set into its deterministic evaluation order:
// priority ascending, rule ID ascending on collision.
func Sort(ruleSet []Rule) {
	sort.SliceStable(ruleSet, func(i, j int) bool {
		if ruleSet[i].Priority != ruleSet[j].Priority {
			return ruleSet[i].Priority < ruleSet[j].Priority
		}
		return ruleSet[i].ID < ruleSet[j].ID
	})
}

// MatchRouting evaluates routing rules with first-match-wins semantics over
// active rules in deterministic order. It returns the winning rule and true,
// or false when nothing matches.
func MatchRouting(ruleSet []Rule, lead LeadAttributes) (Rule, bool) {
	ordered := make([]Rule, len(ruleSet))
	copy(ordered, ruleSet)
	Sort(ordered)

	for _, r := range ordered {
		if !r.Active {
			continue
		}
		if r.Matches(lead) {
			return r, true
		}
	}
	return Rule{}, false
}

// MatchForwarding evaluates forwarding rules with all-matches-fire
// semantics: every active, forward-enabled rule that matches is returned in
// deterministic order. Matches pointing at the same target are deduplicated,
// keeping the first (lowest priority value, then lowest ID) so one lead is
// delivered at most once per target.
func MatchForwarding(ruleSet []Rule, lead LeadAttributes) []Rule {
	ordered := make([]Rule, len(ruleSet))
	copy(ordered, ruleSet)
	Sort(ordered)

	var matches []Rule
	seenTargets := make(map[string]struct{})
	for _, r := range ordered {
		if !r.Active || !r.ForwardEnabled {
			continue
		}
		if !r.Matches(lead) {
			continue
		}
		key := r.TargetID
		if key == "" {
			key = r.TargetURL
		}
		if _, dup := seenTargets[key]; dup {
			continue
		}
		seenTargets[key] = struct{}{}
		matches = append(matches, r)
	}
	return matches
}
