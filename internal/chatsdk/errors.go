package chatsdk

import (
	"errors"
	"fmt"

	"chatsdk/go-backend/internal/engine"
)

var (
	ErrNotInitialized     = errors.New("chat client is not initialized")
	ErrAlreadyInitialized = errors.New("chat client is already initialized")
	ErrDestroyed          = errors.New("chat client is destroyed")
	ErrInvalidConfig      = errors.New("invalid chat config")
	ErrEngineUnavailable  = errors.New("chat engine is unavailable")
	ErrNotStarted         = errors.New("chat client is not started")
	ErrEngineRejected     = errors.New("chat engine rejected the call")
	ErrUnknownToken       = errors.New("unknown completion token")
)

// RejectedError carries the immediate status returned by the engine when it
// refuses a call.
type RejectedError struct {
	Kind   engine.Kind
	Status engine.Status
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s rejected with status %s", ErrEngineRejected.Error(), e.Kind, e.Status)
}

func (e *RejectedError) Unwrap() error {
	return ErrEngineRejected
}

// Reason maps a rejection to the short code exposed to hosts.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, ErrDestroyed):
		return "destroyed"
	case errors.Is(err, ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, ErrEngineUnavailable):
		return "engine_unavailable"
	case errors.Is(err, ErrNotStarted):
		return "not_started"
	case errors.Is(err, ErrEngineRejected):
		return "engine_rejected"
	default:
		return "internal"
	}
}
