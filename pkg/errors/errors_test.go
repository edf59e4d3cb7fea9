package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesWrappedCode(t *testing.T) {
	err := fmt.Errorf("append: %w", Forbidden("sender is not a participant", nil))

	assert.True(t, Is(err, CodeForbidden))
	assert.False(t, Is(err, CodeNotFound))
	assert.False(t, Is(stderrors.New("plain"), CodeForbidden))
}

func TestConstructorsCarryStatus(t *testing.T) {
	cause := stderrors.New("connection reset")

	cases := []struct {
		err    *AppError
		status int
		code   string
	}{
		{InvalidArgument("content must not be empty", nil), http.StatusBadRequest, CodeInvalidArgument},
		{NotFound("Conversation", nil), http.StatusNotFound, CodeNotFound},
		{Forbidden("nope", nil), http.StatusForbidden, CodeForbidden},
		{StorageFailure("write failed", cause), http.StatusServiceUnavailable, CodeStorageFailure},
		{TooManyRequests("slow down"), http.StatusTooManyRequests, CodeTooManyRequests},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, tc.err.Status)
		assert.Equal(t, tc.code, tc.err.Code)
	}

	assert.ErrorIs(t, StorageFailure("write failed", cause), cause)
	assert.Equal(t, "Conversation not found", NotFound("Conversation", nil).Message)
}
