// Package engine describes the boundary to the external chat engine.
//
// The engine owns cryptography, persistence and networking. It is reached only
// through an opaque Handle and a fixed set of entry points, each of which
// returns an immediate accept/reject Status and reports the real outcome later
// by invoking a Completion from an engine-owned goroutine.
package engine

import (
	"errors"
	"strconv"
)

// Status is the immediate or asynchronous result code reported by the engine.
type Status int

const (
	StatusOK              Status = 0
	StatusErr             Status = 1
	StatusMissingCallback Status = 2
)

func (s Status) OK() bool {
	return s == StatusOK
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusErr:
		return "err"
	case StatusMissingCallback:
		return "missing_callback"
	default:
		return "status_" + strconv.Itoa(int(s))
	}
}

// Completion reports the outcome of an accepted call. A request/response call
// invokes it at most once; the event subscription may invoke it any number of
// times. payload may be nil or empty.
type Completion func(status Status, payload []byte)

// Handle is an opaque engine session. It must not be used after a Destroy call
// was accepted.
type Handle interface {
	ID() string
}

var (
	// ErrCreateFailed is returned by Create when no session could be allocated.
	ErrCreateFailed = errors.New("engine session could not be created")
	// ErrInvalidConfig is wrapped by Create errors that reject the config
	// itself rather than the engine's ability to allocate a session.
	ErrInvalidConfig = errors.New("invalid engine config")
)

// Engine is the fixed call surface of the chat engine.
type Engine interface {
	// Create allocates a session synchronously. The initialization outcome is
	// reported later through done.
	Create(config []byte, done Completion) (Handle, error)

	Start(h Handle, done Completion) Status
	Stop(h Handle, done Completion) Status
	Destroy(h Handle, done Completion) Status

	GetID(h Handle, done Completion) Status
	GetDefaultInboxID(h Handle, done Completion) Status
	ListConversations(h Handle, done Completion) Status
	GetConversation(h Handle, done Completion, convoID string) Status
	NewPrivateConversation(h Handle, done Completion, introBundle, contentHex string) Status
	SendMessage(h Handle, done Completion, convoID, contentHex string) Status
	GetIdentity(h Handle, done Completion) Status
	CreateIntroBundle(h Handle, done Completion) Status

	// SubscribeEvents registers the persistent push handler. There is no
	// unsubscribe; the registration ends with the session.
	SubscribeEvents(h Handle, done Completion)
}
