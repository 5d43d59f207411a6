// Package rules implements deterministic rule evaluation for lead routing
// and forwarding. Evaluation is pure and operates on immutable snapshots,
// so it needs no locking.
package rules

import "strings"

// WildcardToken is the sentinel an administrator stores to opt a criteria
// dimension into match-anything behavior.
const WildcardToken = "*"

// Criterion is one criteria dimension of a rule: either a wildcard that
// matches any value, or an exact set of values. A non-wildcard criterion
// with no values matches nothing.
type Criterion struct {
	Wildcard bool
	Values   []string
}

// ParseCriterion builds a Criterion from stored values. The wildcard token
// anywhere in the list makes the whole dimension a wildcard; otherwise the
// values are kept as an exact set (empty slice matches nothing).
func ParseCriterion(values []string) Criterion {
	for _, v := range values {
		if v == WildcardToken {
			return Criterion{Wildcard: true}
		}
	}
	out := make([]string, len(values))
	copy(out, values)
	return Criterion{Values: out}
}

// ParseZipCriterion builds the zip dimension from stored values, reducing
// each value to its 5-digit comparison form so a rule configured with zip+4
// values still matches leads compared in 5-digit form.
func ParseZipCriterion(values []string) Criterion {
	c := ParseCriterion(values)
	for i, v := range c.Values {
		c.Values[i] = NormalizeZip(v)
	}
	return c
}

// Matches reports whether the criterion accepts the given value.
func (c Criterion) Matches(v string) bool {
	if c.Wildcard {
		return true
	}
	for _, candidate := range c.Values {
		if candidate == v {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the criterion is a non-wildcard with no values,
// i.e. a dimension that can never match.
func (c Criterion) IsEmpty() bool {
	return !c.Wildcard && len(c.Values) == 0
}

// NormalizeZip reduces a zip (5-digit or zip+4) to its 5-digit comparison
// form. Values shorter than five digits are returned as-is and simply fail
// to match anything stored in canonical form.
func NormalizeZip(zip string) string {
	zip = strings.TrimSpace(zip)
	if len(zip) > 5 {
		return zip[:5]
	}
	return zip
}

// NormalizeState uppercases a 2-letter state code for comparison.
func NormalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}
