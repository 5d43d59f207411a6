package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sampleSubmission struct {
	Email string `json:"email" validate:"required,email"`
	State string `json:"state" validate:"omitempty,state_code"`
}

func TestValidate_UsesJSONFieldNames(t *testing.T) {
	err := Validate(sampleSubmission{Email: "not-an-email"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "field 'email'")
	assert.Contains(t, err.Error(), "valid email address")
}

func TestValidate_StateCode(t *testing.T) {
	valid := []string{"CA", "ca", "Tx", ""}
	for _, s := range valid {
		assert.NoError(t, Validate(sampleSubmission{Email: "a@b.com", State: s}), "state %q", s)
	}

	invalid := []string{"C", "CAL", "C1", "12"}
	for _, s := range invalid {
		err := Validate(sampleSubmission{Email: "a@b.com", State: s})
		assert.Error(t, err, "state %q", s)
		assert.Contains(t, err.Error(), "two-letter state abbreviation")
	}
}
