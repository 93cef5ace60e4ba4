package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCodeMatchesThroughWrapping(t *testing.T) {
	err := NotFound("invitation", "abc1234")

	assert.True(t, IsCode(err, CodeNotFound))
	assert.False(t, IsCode(err, CodeInsufficientCredits))

	wrapped := fmt.Errorf("redeeming: %w", err)
	assert.True(t, IsCode(wrapped, CodeNotFound))
}

func TestErrorsIsComparesByCode(t *testing.T) {
	a := NotFound("user", "1")
	b := NotFound("user", "2")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, InsufficientCredits(0, 3)))
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := BackendFailure("chat completion", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "BACKEND_FAILURE")
	assert.Contains(t, err.Error(), "connection reset")
}
