package prometheus

import (
	"github.com/AltairaLabs/convostream/runtime/events"
)

// Status constants for metric labels.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// Frame kind labels.
const (
	kindText        = "text"
	kindMetadata    = "metadata"
	kindEndOfStream = "end_of_stream"
)

// MetricsListener records engine events as Prometheus metrics.
// It implements the events.Listener signature and should be registered
// with an EventBus using SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
// This method is designed to be used with EventBus.SubscribeAll.
func (l *MetricsListener) Handle(event *events.Event) {
	//exhaustive:ignore
	switch event.Type {
	case events.EventStreamOpened:
		if data, ok := event.Data.(events.StreamOpenedData); ok {
			RecordStreamOpened(data.HandshakeDuration.Seconds())
		}
	case events.EventStreamFailed:
		if data, ok := event.Data.(events.StreamFailedData); ok {
			RecordStreamFailed(data.Reason)
		}
	case events.EventStreamClosed:
		if data, ok := event.Data.(events.StreamClosedData); ok {
			RecordStreamClosed(data.Reason, data.Interrupted)
		}
	case events.EventRequestSent:
		RecordRequestSent()
	case events.EventTextAppended:
		RecordFrame(kindText)
	case events.EventMetadataMerged:
		RecordFrame(kindMetadata)
	case events.EventRequestCompleted:
		RecordFrame(kindEndOfStream)
		if data, ok := event.Data.(events.RequestCompletedData); ok {
			RecordRequestCompleted(data.Duration.Seconds(), data.Chunks)
		}
	case events.EventProtocolViolation:
		if data, ok := event.Data.(events.ProtocolViolationData); ok {
			RecordProtocolViolation(data.FrameKind)
		}
	case events.EventAuthRefreshed:
		if data, ok := event.Data.(events.AuthRefreshedData); ok {
			RecordRefresh(statusSuccess, data.Duration.Seconds())
		}
	case events.EventAuthRefreshFailed:
		if data, ok := event.Data.(events.AuthRefreshFailedData); ok {
			RecordRefresh(statusError, data.Duration.Seconds())
		}
	default:
		// Ignore events that don't have metrics
	}
}

// Listener returns an events.Listener function that can be registered with an EventBus.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
