package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatching(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("create booking: %w", ErrStoreFailure.Wrap(cause))

	assert.True(t, errors.Is(err, ErrStoreFailure))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrSlotUnavailable))
	assert.Equal(t, KindDependency, KindOf(err))

	detailed := ErrInvalidRequest.WithMessage("field %s is required", "client_email")
	assert.True(t, errors.Is(detailed, ErrInvalidRequest))
	assert.Equal(t, "invalid_request: field client_email is required", detailed.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(ErrSlotUnavailable))
	assert.Equal(t, KindAuthorization, KindOf(ErrNotBookingOwner))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("wrapped: %w", ErrBookingNotFound)))
	assert.Equal(t, KindDependency, KindOf(errors.New("plain")))
}

func TestAsError(t *testing.T) {
	plain := errors.New("connection reset")
	e := AsError(plain)
	assert.Equal(t, "store_failure", e.Code)
	assert.ErrorIs(t, e, plain)

	assert.Same(t, ErrProviderNotFound, AsError(ErrProviderNotFound))
}
