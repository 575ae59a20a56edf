package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindValidation, "VALIDATION"},
		{KindPrecondition, "PRECONDITION"},
		{KindExternalWrite, "EXTERNAL_WRITE"},
		{Kind(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}

func TestSentinels_MatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("checkout: %w", ErrEmptyCart)

	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.NotErrorIs(t, err, ErrNotAuthenticated)
	assert.True(t, IsPrecondition(err))
	assert.False(t, IsValidation(err))
}

func TestExternalWrite_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewExternalWrite("write order", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, KindExternalWrite, KindOf(err))
	assert.Equal(t, "write order: connection reset", err.Error())
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestNewValidationf_FormatsMessage(t *testing.T) {
	err := NewValidationf("quantity %d out of range", -3)
	assert.Equal(t, "quantity -3 out of range", err.Error())
	assert.True(t, IsValidation(err))
}
