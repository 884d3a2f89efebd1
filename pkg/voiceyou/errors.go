package voiceyou

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error codes as constants
const (
	ErrCodeDevice         = "DEVICE_ERROR"
	ErrCodeServerRejected = "SERVER_REJECTED"
	ErrCodeUnreachable    = "UNREACHABLE"
	ErrCodeClient         = "CLIENT_ERROR"
	ErrCodeInvalidState   = "INVALID_STATE"
	ErrCodePlayback       = "PLAYBACK_ERROR"
	ErrCodeConfigInvalid  = "CONFIG_INVALID"
	ErrCodeIO             = "IO_ERROR"
)

// Sentinels for errors.Is; a VoiceError matches the sentinel carrying the same code.
var (
	ErrDevice         = &VoiceError{Code: ErrCodeDevice, Message: "microphone unavailable"}
	ErrServerRejected = &VoiceError{Code: ErrCodeServerRejected, Message: "server rejected request"}
	ErrUnreachable    = &VoiceError{Code: ErrCodeUnreachable, Message: "server unreachable"}
	ErrClientError    = &VoiceError{Code: ErrCodeClient, Message: "malformed request"}
	ErrInvalidState   = &VoiceError{Code: ErrCodeInvalidState, Message: "operation not valid in current state"}
	ErrPlayback       = &VoiceError{Code: ErrCodePlayback, Message: "playback failed"}
)

// VoiceError struct
type VoiceError struct {
	Message   string
	Code      string
	Timestamp float64
	Details   map[string]interface{}
	err       error
}

func NewVoiceError(message, code string) *VoiceError {
	return &VoiceError{
		Message:   message,
		Code:      code,
		Timestamp: float64(time.Now().UnixMilli()),
	}
}

func (e *VoiceError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Code)
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.err != nil && e.err.Error() != e.Message {
		sb.WriteString(": ")
		sb.WriteString(e.err.Error())
	}
	return sb.String()
}

func (e *VoiceError) Unwrap() error {
	return e.err
}

func (e *VoiceError) Is(target error) bool {
	var t *VoiceError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Helper to add details to existing VoiceError
func (e *VoiceError) AddDetail(key string, value interface{}) *VoiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Helper to get error details
func (e *VoiceError) GetDetail(key string) (interface{}, bool) {
	if e.Details == nil {
		return nil, false
	}
	value, exists := e.Details[key]
	return value, exists
}

// UserMessage is the text shown in the inline notice.
func (e *VoiceError) UserMessage() string {
	switch e.Code {
	case ErrCodeDevice:
		return "Failed to access microphone"
	case ErrCodeUnreachable:
		return "No response from server. Make sure the backend server is running."
	default:
		return e.Message
	}
}

// Specific error creators with common codes
func NewDeviceError(message string, cause error) *VoiceError {
	err := NewVoiceError(message, ErrCodeDevice)
	err.err = cause
	return err
}

func NewServerRejectedError(detail string, statusCode int) *VoiceError {
	return NewVoiceError(detail, ErrCodeServerRejected).AddDetail("status_code", statusCode)
}

func NewUnreachableError(cause error) *VoiceError {
	err := NewVoiceError("No response from server. Make sure the backend server is running.", ErrCodeUnreachable)
	err.err = cause
	return err
}

func NewClientError(message string) *VoiceError {
	return NewVoiceError(message, ErrCodeClient)
}

func NewInvalidStateError(op string, state SessionState) *VoiceError {
	return NewVoiceError(fmt.Sprintf("%s is not valid while %s", op, state), ErrCodeInvalidState).
		AddDetail("operation", op).
		AddDetail("state", string(state))
}

func NewPlaybackError(message string, cause error) *VoiceError {
	err := NewVoiceError(message, ErrCodePlayback)
	err.err = cause
	return err
}

func NewConfigError(message string) *VoiceError {
	return NewVoiceError(message, ErrCodeConfigInvalid)
}

func NewIOError(message string, cause error) *VoiceError {
	err := NewVoiceError(message, ErrCodeIO)
	err.err = cause
	return err
}

// Helper to wrap any error as VoiceError
func WrapError(err error, code string) *VoiceError {
	if err == nil {
		return nil
	}
	var vErr *VoiceError
	if errors.As(err, &vErr) {
		return vErr
	}
	vErr = NewVoiceError(err.Error(), code)
	vErr.err = err
	return vErr
}

// Helper to check if error has specific code
func IsErrorCode(err error, code string) bool {
	var vErr *VoiceError
	if !errors.As(err, &vErr) {
		return false
	}
	return vErr.Code == code
}
