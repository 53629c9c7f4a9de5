package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfSurvivesWrapping(t *testing.T) {
	base := InvalidState("task %s is %s", "t1", "COMPLETED")
	wrapped := fmt.Errorf("approve: %w", fmt.Errorf("store: %w", base))

	assert.Equal(t, KindInvalidState, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindInvalidState))
	assert.False(t, Is(wrapped, KindForbidden))

	var appErr *Error
	require.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, "task t1 is COMPLETED", appErr.Message)
}

func TestKindOfPlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.False(t, Is(nil, KindInternal))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("rpc timeout")
	err := Settlement(cause, "transfer for task %s not confirmed", "t1")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "SettlementFailure")
	assert.Contains(t, err.Error(), "rpc timeout")
}

func TestFieldError(t *testing.T) {
	err := FieldError("title", "must be at least 3 characters")
	assert.Equal(t, KindValidation, err.Kind)
	assert.Equal(t, map[string]string{"title": "must be at least 3 characters"}, err.Fields)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindInvalidState, http.StatusConflict},
		{KindConflict, http.StatusConflict},
		{KindValidation, http.StatusBadRequest},
		{KindCodec, http.StatusBadRequest},
		{KindSettlementFailure, http.StatusBadGateway},
		{KindStoreUnavailable, http.StatusServiceUnavailable},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}
