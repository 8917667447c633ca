package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/convostream/runtime/events"
	"github.com/AltairaLabs/convostream/runtime/logger"
)

// Span names.
const (
	spanStream  = "convostream.stream"
	spanRequest = "convostream.request"
	spanRefresh = "convostream.auth.refresh"
)

// Close reasons that end a stream span with an error status.
const (
	reasonUnauthorized = "unauthorized"
	reasonChannel      = "channel_unavailable"
)

// spanEntry tracks an in-flight span and its context.
type spanEntry struct {
	span         trace.Span
	ctx          context.Context //nolint:containedctx // needed to parent child spans
	connectionID string
}

// OTelEventListener converts engine events into OTel spans.
//
// Each channel becomes a client span from stream.connecting to
// stream.failed or stream.closed. Each prompt becomes a child span from
// request.sent to request.completed; a request still outstanding when the
// channel closes ends with an "interrupted" error. Refresh exchanges become
// standalone spans backdated by the reported duration.
//
// It is safe for concurrent use and can be passed to EventBus.SubscribeAll.
type OTelEventListener struct {
	tracer trace.Tracer

	mu       sync.Mutex
	streams  map[string]*spanEntry // connectionID -> stream span
	requests map[string]*spanEntry // requestID -> request span
}

// NewOTelEventListener creates a listener that creates OTel spans from engine events.
func NewOTelEventListener(tracer trace.Tracer) *OTelEventListener {
	return &OTelEventListener{
		tracer:   tracer,
		streams:  make(map[string]*spanEntry),
		requests: make(map[string]*spanEntry),
	}
}

// OnEvent handles a single engine event.
func (l *OTelEventListener) OnEvent(evt *events.Event) {
	//nolint:exhaustive // Only handling span-producing events
	switch evt.Type {
	case events.EventStreamConnecting:
		l.startStream(evt)
	case events.EventStreamOpened:
		l.streamOpened(evt)
	case events.EventStreamFailed:
		l.failStream(evt)
	case events.EventStreamClosed:
		l.closeStream(evt)
	case events.EventRequestSent:
		l.startRequest(evt)
	case events.EventRequestCompleted:
		l.completeRequest(evt)
	case events.EventMetadataMerged:
		l.metadataMerged(evt)
	case events.EventProtocolViolation:
		l.protocolViolation(evt)
	case events.EventAuthRefreshed, events.EventAuthRefreshFailed:
		l.refresh(evt)
	}
}

// Active reports the number of stream and request spans still open.
func (l *OTelEventListener) Active() (streams, requests int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.streams), len(l.requests)
}

// --- Stream ---

func (l *OTelEventListener) startStream(evt *events.Event) {
	attrs := []attribute.KeyValue{
		attribute.String("conversation.id", evt.ConversationID),
		attribute.String("connection.id", evt.ConnectionID),
	}
	if data, ok := evt.Data.(events.StreamConnectingData); ok {
		attrs = append(attrs, attribute.String("url.full", logger.RedactSensitiveData(data.URL)))
	}
	ctx, span := l.tracer.Start(context.Background(), spanStream,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(evt.Timestamp),
		trace.WithAttributes(attrs...),
	)
	l.mu.Lock()
	l.streams[evt.ConnectionID] = &spanEntry{span: span, ctx: ctx, connectionID: evt.ConnectionID}
	l.mu.Unlock()
}

func (l *OTelEventListener) streamOpened(evt *events.Event) {
	data, ok := evt.Data.(events.StreamOpenedData)
	if !ok {
		return
	}
	l.mu.Lock()
	entry, ok := l.streams[evt.ConnectionID]
	l.mu.Unlock()
	if !ok {
		return
	}
	entry.span.AddEvent("opened",
		trace.WithTimestamp(evt.Timestamp),
		trace.WithAttributes(
			attribute.Int64("stream.handshake_ms", data.HandshakeDuration.Milliseconds()),
			attribute.Bool("stream.pending_prompt", data.PendingPrompt),
		),
	)
}

func (l *OTelEventListener) failStream(evt *events.Event) {
	data, ok := evt.Data.(events.StreamFailedData)
	if !ok {
		return
	}
	entry := l.takeStream(evt.ConnectionID)
	if entry == nil {
		return
	}
	msg := data.Reason
	if data.Error != nil {
		msg = logger.RedactSensitiveData(data.Error.Error())
	}
	entry.span.SetAttributes(attribute.String("stream.failure", data.Reason))
	if data.Reason != events.FailureCanceled {
		entry.span.SetStatus(codes.Error, msg)
	}
	entry.span.End(trace.WithTimestamp(evt.Timestamp))
}

func (l *OTelEventListener) closeStream(evt *events.Event) {
	data, _ := evt.Data.(events.StreamClosedData)

	l.mu.Lock()
	var orphans []*spanEntry
	for id, req := range l.requests {
		if req.connectionID == evt.ConnectionID {
			orphans = append(orphans, req)
			delete(l.requests, id)
		}
	}
	l.mu.Unlock()
	for _, req := range orphans {
		req.span.SetStatus(codes.Error, "interrupted")
		req.span.End(trace.WithTimestamp(evt.Timestamp))
	}

	entry := l.takeStream(evt.ConnectionID)
	if entry == nil {
		return
	}
	entry.span.SetAttributes(
		attribute.Int("stream.close_code", data.Code),
		attribute.String("stream.close_reason", data.Reason),
		attribute.String("stream.close_text", data.Text),
		attribute.Bool("stream.interrupted", data.Interrupted),
	)
	switch data.Reason {
	case reasonUnauthorized, reasonChannel:
		msg := data.Reason
		if data.Error != nil {
			msg = logger.RedactSensitiveData(data.Error.Error())
		}
		entry.span.SetStatus(codes.Error, msg)
	default:
		entry.span.SetStatus(codes.Ok, "")
	}
	entry.span.End(trace.WithTimestamp(evt.Timestamp))
}

func (l *OTelEventListener) takeStream(connectionID string) *spanEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.streams[connectionID]
	if !ok {
		return nil
	}
	delete(l.streams, connectionID)
	return entry
}

// --- Request ---

func (l *OTelEventListener) startRequest(evt *events.Event) {
	l.mu.Lock()
	parent := context.Background()
	if entry, ok := l.streams[evt.ConnectionID]; ok {
		parent = entry.ctx
	}
	l.mu.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("conversation.id", evt.ConversationID),
		attribute.String("request.id", evt.RequestID),
	}
	if data, ok := evt.Data.(events.RequestSentData); ok {
		attrs = append(attrs, attribute.Int("request.bytes", data.Bytes))
	}
	ctx, span := l.tracer.Start(parent, spanRequest,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(evt.Timestamp),
		trace.WithAttributes(attrs...),
	)
	l.mu.Lock()
	l.requests[evt.RequestID] = &spanEntry{span: span, ctx: ctx, connectionID: evt.ConnectionID}
	l.mu.Unlock()
}

func (l *OTelEventListener) completeRequest(evt *events.Event) {
	l.mu.Lock()
	entry, ok := l.requests[evt.RequestID]
	if ok {
		delete(l.requests, evt.RequestID)
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	if data, ok := evt.Data.(events.RequestCompletedData); ok {
		entry.span.SetAttributes(
			attribute.Int64("request.duration_ms", data.Duration.Milliseconds()),
			attribute.Int("response.chunks", data.Chunks),
			attribute.Int("response.bytes", data.Bytes),
		)
	}
	entry.span.SetStatus(codes.Ok, "")
	entry.span.End(trace.WithTimestamp(evt.Timestamp))
}

// spanFor returns the request span for evt when still open, otherwise the
// stream span.
func (l *OTelEventListener) spanFor(evt *events.Event) trace.Span {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.requests[evt.RequestID]; ok && evt.RequestID != "" {
		return entry.span
	}
	if entry, ok := l.streams[evt.ConnectionID]; ok {
		return entry.span
	}
	return nil
}

func (l *OTelEventListener) metadataMerged(evt *events.Event) {
	data, ok := evt.Data.(events.MetadataMergedData)
	if !ok {
		return
	}
	if span := l.spanFor(evt); span != nil {
		span.AddEvent("metadata.merged",
			trace.WithTimestamp(evt.Timestamp),
			trace.WithAttributes(
				attribute.Int("turn.index", data.Index),
				attribute.Bool("metadata.late", data.Late),
			),
		)
	}
}

func (l *OTelEventListener) protocolViolation(evt *events.Event) {
	data, ok := evt.Data.(events.ProtocolViolationData)
	if !ok {
		return
	}
	if span := l.spanFor(evt); span != nil {
		span.AddEvent("protocol.violation",
			trace.WithTimestamp(evt.Timestamp),
			trace.WithAttributes(
				attribute.String("frame.kind", data.FrameKind),
				attribute.String("violation.reason", data.Reason),
			),
		)
	}
}

// --- Auth ---

func (l *OTelEventListener) refresh(evt *events.Event) {
	var (
		subject  string
		duration time.Duration
		failed   bool
	)
	switch data := evt.Data.(type) {
	case events.AuthRefreshedData:
		subject, duration = data.Subject, data.Duration
	case events.AuthRefreshFailedData:
		subject, duration, failed = data.Subject, data.Duration, true
	default:
		return
	}

	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("enduser.id", subject)),
	}
	if !evt.Timestamp.IsZero() {
		opts = append(opts, trace.WithTimestamp(evt.Timestamp.Add(-duration)))
	}
	_, span := l.tracer.Start(context.Background(), spanRefresh, opts...)
	if failed {
		span.SetStatus(codes.Error, "refresh_failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(evt.Timestamp))
}
