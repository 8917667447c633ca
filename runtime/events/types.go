package events

import "time"

// EventType identifies the type of event emitted by the engine.
type EventType string

const (
	// EventStreamConnecting marks the start of a channel handshake.
	EventStreamConnecting EventType = "stream.connecting"
	// EventStreamOpened marks a completed handshake.
	EventStreamOpened EventType = "stream.opened"
	// EventStreamFailed marks a channel that could not be opened.
	EventStreamFailed EventType = "stream.failed"
	// EventStreamClosed marks the end of an open channel.
	EventStreamClosed EventType = "stream.closed"

	// EventRequestSent marks a prompt written to the channel.
	EventRequestSent EventType = "request.sent"
	// EventRequestCompleted marks the end-of-stream sentinel for a prompt.
	EventRequestCompleted EventType = "request.completed"

	// EventTurnAppended marks a new turn in the message log.
	EventTurnAppended EventType = "turn.appended"
	// EventTextAppended marks text added to the open model turn.
	EventTextAppended EventType = "text.appended"
	// EventMetadataMerged marks references merged into a model turn.
	EventMetadataMerged EventType = "metadata.merged"
	// EventProtocolViolation marks a discarded frame.
	EventProtocolViolation EventType = "protocol.violation"

	// EventAuthSignedIn marks a new credential from a sign-in callback.
	EventAuthSignedIn EventType = "auth.signed_in"
	// EventAuthRefreshed marks a successful refresh exchange.
	EventAuthRefreshed EventType = "auth.refreshed"
	// EventAuthRefreshFailed marks a failed refresh exchange.
	EventAuthRefreshFailed EventType = "auth.refresh_failed"
	// EventAuthSignedOut marks credential destruction.
	EventAuthSignedOut EventType = "auth.signed_out"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event represents an engine event delivered to listeners.
type Event struct {
	Type           EventType
	Timestamp      time.Time
	ConversationID string
	ConnectionID   string
	RequestID      string
	Data           EventData
}

// baseEventData provides a shared marker implementation for all event payloads.
type baseEventData struct{}

func (baseEventData) eventData() {}

// StreamConnectingData contains data for stream.connecting events.
type StreamConnectingData struct {
	baseEventData
	// URL is the channel URL with credentials redacted.
	URL string
}

// StreamOpenedData contains data for stream.opened events.
type StreamOpenedData struct {
	baseEventData
	HandshakeDuration time.Duration
	// PendingPrompt is set when an initial prompt was sent on connect.
	PendingPrompt bool
}

// StreamFailedData contains data for stream.failed events.
type StreamFailedData struct {
	baseEventData
	Error error
	// Reason is "unauthorized", "channel_unavailable", or FailureCanceled
	// when the client was closed during the handshake.
	Reason string
}

// FailureCanceled is the stream.failed reason for a handshake abandoned by
// the client.
const FailureCanceled = "canceled"

// StreamClosedData contains data for stream.closed events.
type StreamClosedData struct {
	baseEventData
	// Code is the close code the server sent, or 0.
	Code int
	// Text is the reason text of the server's close frame, if any.
	Text string
	// Reason is "client", "server", "unauthorized" or "channel_unavailable".
	Reason string
	Error  error
	// Interrupted is set when a response was outstanding at close.
	Interrupted bool
	Duration    time.Duration
}

// RequestSentData contains data for request.sent events.
type RequestSentData struct {
	baseEventData
	Bytes int
}

// RequestCompletedData contains data for request.completed events.
type RequestCompletedData struct {
	baseEventData
	Duration time.Duration
	Chunks   int
	Bytes    int
}

// TurnAppendedData contains data for turn.appended events.
type TurnAppendedData struct {
	baseEventData
	Index int
	Role  string
}

// TextAppendedData contains data for text.appended events.
type TextAppendedData struct {
	baseEventData
	Index int
	Bytes int
}

// MetadataMergedData contains data for metadata.merged events.
type MetadataMergedData struct {
	baseEventData
	Index int
	// Late is set when the metadata arrived after the end-of-stream sentinel.
	Late bool
}

// ProtocolViolationData contains data for protocol.violation events.
type ProtocolViolationData struct {
	baseEventData
	FrameKind string
	Reason    string
}

// AuthSignedInData contains data for auth.signed_in events.
type AuthSignedInData struct {
	baseEventData
	Subject   string
	ExpiresAt time.Time
}

// AuthRefreshedData contains data for auth.refreshed events.
type AuthRefreshedData struct {
	baseEventData
	Subject   string
	ExpiresAt time.Time
	Duration  time.Duration
}

// AuthRefreshFailedData contains data for auth.refresh_failed events.
type AuthRefreshFailedData struct {
	baseEventData
	Subject  string
	Duration time.Duration
}

// AuthSignedOutData contains data for auth.signed_out events.
type AuthSignedOutData struct {
	baseEventData
	Subject string
}
