// Package phone normalizes raw phone input to canonical E.164-style
// +1XXXXXXXXXX form used as the contact dedup key.
package phone

import (
	"fmt"
	"strings"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/apperrors"
)

// Normalize strips all non-digit characters from raw and returns the
// canonical +1XXXXXXXXXX form. Ten digits get a +1 prefix; eleven digits
// starting with 1 get a + prefix; anything else is rejected with
// apperrors.ErrInvalidPhone. The function is pure and idempotent over its
// own output, so callers can use the result directly as a lookup key.
func Normalize(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 10:
		return "+1" + digits, nil
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, nil
	default:
		return "", fmt.Errorf("%w: %d digits after cleaning", apperrors.ErrInvalidPhone, len(digits))
	}
}

// IsNormalized reports whether s is already in canonical +1XXXXXXXXXX form.
func IsNormalized(s string) bool {
	if len(s) != 12 || !strings.HasPrefix(s, "+1") {
		return false
	}
	for _, r := range s[2:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
