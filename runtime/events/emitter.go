package events

import "time"

// Emitter provides helpers for publishing engine events with shared metadata.
// A nil Emitter, or one without a bus, drops every event.
type Emitter struct {
	bus            *EventBus
	conversationID string
	connectionID   string
}

// NewEmitter creates a new event emitter.
func NewEmitter(bus *EventBus, conversationID, connectionID string) *Emitter {
	return &Emitter{
		bus:            bus,
		conversationID: conversationID,
		connectionID:   connectionID,
	}
}

// emit publishes an event with shared context fields.
func (e *Emitter) emit(eventType EventType, requestID string, data EventData) {
	if e == nil || e.bus == nil {
		return
	}

	e.bus.Publish(&Event{
		Type:           eventType,
		Timestamp:      time.Now(),
		ConversationID: e.conversationID,
		ConnectionID:   e.connectionID,
		RequestID:      requestID,
		Data:           data,
	})
}

// StreamConnecting emits the stream.connecting event.
func (e *Emitter) StreamConnecting(url string) {
	e.emit(EventStreamConnecting, "", StreamConnectingData{URL: url})
}

// StreamOpened emits the stream.opened event.
func (e *Emitter) StreamOpened(handshake time.Duration, pendingPrompt bool) {
	e.emit(EventStreamOpened, "", StreamOpenedData{
		HandshakeDuration: handshake,
		PendingPrompt:     pendingPrompt,
	})
}

// StreamFailed emits the stream.failed event.
func (e *Emitter) StreamFailed(err error, reason string) {
	e.emit(EventStreamFailed, "", StreamFailedData{Error: err, Reason: reason})
}

// StreamClosed emits the stream.closed event.
func (e *Emitter) StreamClosed(data StreamClosedData) {
	e.emit(EventStreamClosed, "", data)
}

// RequestSent emits the request.sent event.
func (e *Emitter) RequestSent(requestID string, bytes int) {
	e.emit(EventRequestSent, requestID, RequestSentData{Bytes: bytes})
}

// RequestCompleted emits the request.completed event.
func (e *Emitter) RequestCompleted(requestID string, duration time.Duration, chunks, bytes int) {
	e.emit(EventRequestCompleted, requestID, RequestCompletedData{
		Duration: duration,
		Chunks:   chunks,
		Bytes:    bytes,
	})
}

// TurnAppended emits the turn.appended event.
func (e *Emitter) TurnAppended(requestID string, index int, role string) {
	e.emit(EventTurnAppended, requestID, TurnAppendedData{Index: index, Role: role})
}

// TextAppended emits the text.appended event.
func (e *Emitter) TextAppended(requestID string, index, bytes int) {
	e.emit(EventTextAppended, requestID, TextAppendedData{Index: index, Bytes: bytes})
}

// MetadataMerged emits the metadata.merged event.
func (e *Emitter) MetadataMerged(requestID string, index int, late bool) {
	e.emit(EventMetadataMerged, requestID, MetadataMergedData{Index: index, Late: late})
}

// ProtocolViolation emits the protocol.violation event.
func (e *Emitter) ProtocolViolation(requestID, frameKind, reason string) {
	e.emit(EventProtocolViolation, requestID, ProtocolViolationData{
		FrameKind: frameKind,
		Reason:    reason,
	})
}

// AuthSignedIn emits the auth.signed_in event.
func (e *Emitter) AuthSignedIn(subject string, expiresAt time.Time) {
	e.emit(EventAuthSignedIn, "", AuthSignedInData{Subject: subject, ExpiresAt: expiresAt})
}

// AuthRefreshed emits the auth.refreshed event.
func (e *Emitter) AuthRefreshed(subject string, expiresAt time.Time, duration time.Duration) {
	e.emit(EventAuthRefreshed, "", AuthRefreshedData{
		Subject:   subject,
		ExpiresAt: expiresAt,
		Duration:  duration,
	})
}

// AuthRefreshFailed emits the auth.refresh_failed event.
func (e *Emitter) AuthRefreshFailed(subject string, duration time.Duration) {
	e.emit(EventAuthRefreshFailed, "", AuthRefreshFailedData{Subject: subject, Duration: duration})
}

// AuthSignedOut emits the auth.signed_out event.
func (e *Emitter) AuthSignedOut(subject string) {
	e.emit(EventAuthSignedOut, "", AuthSignedOutData{Subject: subject})
}
