package voiceyou

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVoiceErrorMatchesSentinelByCode(t *testing.T) {
	err := NewServerRejectedError("disk full", 500)
	wrapped := fmt.Errorf("upload: %w", err)

	assert.True(t, errors.Is(wrapped, ErrServerRejected))
	assert.False(t, errors.Is(wrapped, ErrUnreachable))
	assert.True(t, IsErrorCode(wrapped, ErrCodeServerRejected))
	assert.Equal(t, "SERVER_REJECTED: disk full", err.Error())
}

func TestVoiceErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewUnreachableError(cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Failed to access microphone", NewDeviceError("NotAllowedError", nil).UserMessage())
	assert.Equal(t, "No response from server. Make sure the backend server is running.", NewUnreachableError(nil).UserMessage())
	assert.Equal(t, "disk full", NewServerRejectedError("disk full", 500).UserMessage())
}

func TestWrapErrorKeepsVoiceError(t *testing.T) {
	original := NewClientError("bad request")
	assert.Same(t, original, WrapError(fmt.Errorf("ctx: %w", original), ErrCodeIO))

	plain := WrapError(errors.New("boom"), ErrCodeIO)
	assert.Equal(t, ErrCodeIO, plain.Code)
	assert.Nil(t, WrapError(nil, ErrCodeIO))
}

func TestInvalidStateDetails(t *testing.T) {
	err := NewInvalidStateError("stop", StateIdle)
	op, ok := err.GetDetail("operation")
	assert.True(t, ok)
	assert.Equal(t, "stop", op)
	assert.Equal(t, "stop is not valid while idle", err.Message)
}
