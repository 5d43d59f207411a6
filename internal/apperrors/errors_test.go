package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNATSError_MatchesWrappedPublishFailure(t *testing.T) {
	err := fmt.Errorf("%w: failed to publish message: %v", ErrNATS, errors.New("nats: timeout"))

	assert.True(t, IsNATSError(err))
	assert.False(t, IsDatabaseError(err))
	assert.False(t, IsNATSError(errors.New("nats: timeout")))
}

func TestRetryableError_UnwrapsSentinel(t *testing.T) {
	err := NewRetryable(ErrDatabase, "upsert contact %d", 7)

	assert.True(t, IsRetryable(err))
	assert.True(t, IsDatabaseError(err))
	assert.False(t, IsFatal(err))
}
