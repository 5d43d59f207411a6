package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/apperrors"
)

func TestNormalize_TenDigits(t *testing.T) {
	got, err := Normalize("3105551234")
	assert.NoError(t, err)
	assert.Equal(t, "+13105551234", got)
}

func TestNormalize_ElevenDigitsLeadingOne(t *testing.T) {
	got, err := Normalize("13105551234")
	assert.NoError(t, err)
	assert.Equal(t, "+13105551234", got)
}

func TestNormalize_Formatted(t *testing.T) {
	cases := map[string]string{
		"(310) 555-1234":   "+13105551234",
		"310.555.1234":     "+13105551234",
		"+1 310-555-1234":  "+13105551234",
		"1 (310) 555 1234": "+13105551234",
	}
	for raw, want := range cases {
		got, err := Normalize(raw)
		assert.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestNormalize_Rejections(t *testing.T) {
	for _, raw := range []string{
		"",
		"555-1234",      // 7 digits
		"23105551234",   // 11 digits, no leading 1
		"131055512345",  // 12 digits
		"abc",           // no digits at all
		"++--()",        // only punctuation
		"910555123",     // 9 digits
	} {
		_, err := Normalize(raw)
		assert.Error(t, err, raw)
		assert.ErrorIs(t, err, apperrors.ErrInvalidPhone, raw)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, raw := range []string{"3105551234", "13105551234", "(310) 555-1234"} {
		once, err := Normalize(raw)
		assert.NoError(t, err)
		twice, err := Normalize(once)
		assert.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestIsNormalized(t *testing.T) {
	assert.True(t, IsNormalized("+13105551234"))
	assert.False(t, IsNormalized("13105551234"))
	assert.False(t, IsNormalized("+1310555123"))
	assert.False(t, IsNormalized("+1310555123a"))
	assert.False(t, IsNormalized(""))
}
