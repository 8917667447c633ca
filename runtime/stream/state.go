package stream

import (
	"time"

	"github.com/AltairaLabs/convostream/runtime/conversation"
)

// State is the connection state of a Client.
type State int

const (
	// StateIdle is a client that has not been opened.
	StateIdle State = iota
	// StateConnecting is a handshake in progress.
	StateConnecting
	// StateOpen is an open channel. Snapshot.Streaming tells whether a
	// response is outstanding.
	StateOpen
	// StateClosed is a channel that was open and has ended.
	StateClosed
	// StateFailed is a channel that never opened.
	StateFailed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// ErrorKind is the error surfaced to the rendering consumer.
type ErrorKind string

const (
	// ErrorNone means no error.
	ErrorNone ErrorKind = ""
	// ErrorUnauthorized means the credential was missing, stale, or rejected.
	// The consumer should offer reauthorization.
	ErrorUnauthorized ErrorKind = "unauthorized"
	// ErrorChannelUnavailable means the channel could not be opened or failed.
	// The consumer may offer a new connection.
	ErrorChannelUnavailable ErrorKind = "channel_unavailable"
)

// Snapshot is a consistent copy of a client's read model.
type Snapshot struct {
	ConversationID string
	Turns          []conversation.Turn
	// Streaming is set while a response is outstanding.
	Streaming bool
	State     State
	Err       ErrorKind
	// Cause is the underlying error behind Err, if any.
	Cause error
	// ClosedAt is set once the client reached a terminal state.
	ClosedAt time.Time
}
