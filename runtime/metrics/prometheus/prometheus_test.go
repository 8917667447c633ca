package prometheus

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AltairaLabs/convostream/runtime/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func histogramSamples(t *testing.T, h prometheus.Histogram) (uint64, float64) {
	t.Helper()
	m := &dto.Metric{}
	if err := h.Write(m); err != nil {
		t.Fatalf("Failed to write histogram: %v", err)
	}
	return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
}

func resetAll() {
	streamsActive.Set(0)
	streamConnectionsTotal.Reset()
	streamClosesTotal.Reset()
	framesTotal.Reset()
	protocolViolationsTotal.Reset()
	authRefreshTotal.Reset()
	authRefreshDuration.Reset()
}

func TestRecordStreamLifecycle(t *testing.T) {
	resetAll()

	RecordStreamOpened(0.05)
	RecordStreamOpened(0.07)
	if active := testutil.ToFloat64(streamsActive); active != 2 {
		t.Errorf("Expected 2 active streams, got %f", active)
	}

	RecordStreamClosed("client", false)
	RecordStreamClosed("channel_unavailable", true)
	if active := testutil.ToFloat64(streamsActive); active != 0 {
		t.Errorf("Expected 0 active streams, got %f", active)
	}

	if got := testutil.ToFloat64(streamConnectionsTotal.WithLabelValues(statusSuccess)); got != 2 {
		t.Errorf("Expected 2 successful connections, got %f", got)
	}
	if got := testutil.ToFloat64(streamClosesTotal.WithLabelValues("channel_unavailable", "true")); got != 1 {
		t.Errorf("Expected 1 interrupted close, got %f", got)
	}
}

func TestRecordStreamFailed(t *testing.T) {
	resetAll()

	RecordStreamFailed("unauthorized")
	RecordStreamFailed("unauthorized")
	RecordStreamFailed("channel_unavailable")

	if got := testutil.ToFloat64(streamConnectionsTotal.WithLabelValues("unauthorized")); got != 2 {
		t.Errorf("Expected 2 unauthorized, got %f", got)
	}
	if active := testutil.ToFloat64(streamsActive); active != 0 {
		t.Errorf("Failed opens must not change active streams, got %f", active)
	}
}

func TestRecordRequestCompleted(t *testing.T) {
	countBefore, sumBefore := histogramSamples(t, requestDuration)
	chunksBefore, chunkSumBefore := histogramSamples(t, responseChunks)

	RecordRequestCompleted(1.5, 12)

	count, sum := histogramSamples(t, requestDuration)
	if count-countBefore != 1 {
		t.Errorf("Expected 1 duration observation, got %d", count-countBefore)
	}
	if math.Abs(sum-sumBefore-1.5) > 1e-9 {
		t.Errorf("Expected duration sum to grow by 1.5, got %f", sum-sumBefore)
	}
	chunks, chunkSum := histogramSamples(t, responseChunks)
	if chunks-chunksBefore != 1 || math.Abs(chunkSum-chunkSumBefore-12) > 1e-9 {
		t.Errorf("Expected one chunk observation of 12, got %d/%f", chunks-chunksBefore, chunkSum-chunkSumBefore)
	}
}

func TestRecordRefresh(t *testing.T) {
	resetAll()

	RecordRefresh(statusSuccess, 0.1)
	RecordRefresh(statusError, 0.2)
	RecordRefresh(statusError, 0.3)

	if got := testutil.ToFloat64(authRefreshTotal.WithLabelValues(statusError)); got != 2 {
		t.Errorf("Expected 2 failed refreshes, got %f", got)
	}
	if got := testutil.CollectAndCount(authRefreshDuration); got != 2 {
		t.Errorf("Expected 2 duration series, got %d", got)
	}
}

func TestNewExporter(t *testing.T) {
	exporter := NewExporter(":0")
	if exporter.Registry() == nil {
		t.Fatal("Expected registry to be set")
	}

	families, err := exporter.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("Expected runtime collectors to be registered")
	}
}

func TestExporterHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "Test counter",
	})
	reg.MustRegister(counter)
	counter.Inc()

	exporter := NewExporterWithRegistry(":0", reg)
	handler := exporter.Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	resp := rec.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "test_counter") {
		t.Error("Expected response to contain test_counter metric")
	}
}

func TestExporterStartShutdown(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())

	errCh := make(chan error, 1)
	go func() {
		errCh <- exporter.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := exporter.Shutdown(ctx); err != nil {
		t.Errorf("Expected no error on shutdown, got %v", err)
	}

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			t.Errorf("Expected ErrServerClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for server to stop")
	}
}

func TestExporterDoubleStart(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())

	go func() {
		_ = exporter.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	if err := exporter.Start(); err != nil {
		t.Errorf("Expected nil on double start, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = exporter.Shutdown(ctx)
}

func TestExporterServeStopsWithContext(t *testing.T) {
	exporter := NewExporterWithRegistry("127.0.0.1:0", prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	exporter.Serve(ctx, func(err error) { errs <- err })

	time.Sleep(100 * time.Millisecond)
	cancel()
	time.Sleep(100 * time.Millisecond)

	select {
	case err := <-errs:
		t.Errorf("Unexpected serve error: %v", err)
	default:
	}
}

func TestMetricsListener(t *testing.T) {
	resetAll()
	listener := NewMetricsListener()

	listener.Handle(&events.Event{
		Type: events.EventStreamOpened,
		Data: events.StreamOpenedData{HandshakeDuration: 20 * time.Millisecond},
	})
	if active := testutil.ToFloat64(streamsActive); active != 1 {
		t.Errorf("Expected 1 active stream, got %f", active)
	}

	listener.Handle(&events.Event{Type: events.EventRequestSent, Data: events.RequestSentData{Bytes: 5}})
	listener.Handle(&events.Event{Type: events.EventTextAppended, Data: events.TextAppendedData{Index: 1, Bytes: 3}})
	listener.Handle(&events.Event{Type: events.EventTextAppended, Data: events.TextAppendedData{Index: 1, Bytes: 4}})
	listener.Handle(&events.Event{Type: events.EventMetadataMerged, Data: events.MetadataMergedData{Index: 1}})
	listener.Handle(&events.Event{
		Type: events.EventRequestCompleted,
		Data: events.RequestCompletedData{Duration: time.Second, Chunks: 2, Bytes: 7},
	})
	listener.Handle(&events.Event{
		Type: events.EventProtocolViolation,
		Data: events.ProtocolViolationData{FrameKind: "text", Reason: "no response outstanding"},
	})

	if got := testutil.ToFloat64(framesTotal.WithLabelValues(kindText)); got != 2 {
		t.Errorf("Expected 2 text frames, got %f", got)
	}
	if got := testutil.ToFloat64(framesTotal.WithLabelValues(kindMetadata)); got != 1 {
		t.Errorf("Expected 1 metadata frame, got %f", got)
	}
	if got := testutil.ToFloat64(framesTotal.WithLabelValues(kindEndOfStream)); got != 1 {
		t.Errorf("Expected 1 end-of-stream frame, got %f", got)
	}
	if got := testutil.ToFloat64(protocolViolationsTotal.WithLabelValues("text")); got != 1 {
		t.Errorf("Expected 1 violation, got %f", got)
	}

	listener.Handle(&events.Event{
		Type: events.EventStreamClosed,
		Data: events.StreamClosedData{Code: 1000, Reason: "server"},
	})
	if active := testutil.ToFloat64(streamsActive); active != 0 {
		t.Errorf("Expected 0 active streams, got %f", active)
	}
	if got := testutil.ToFloat64(streamClosesTotal.WithLabelValues("server", "false")); got != 1 {
		t.Errorf("Expected 1 server close, got %f", got)
	}

	listener.Handle(&events.Event{
		Type: events.EventAuthRefreshFailed,
		Data: events.AuthRefreshFailedData{Subject: "u", Duration: 10 * time.Millisecond},
	})
	if got := testutil.ToFloat64(authRefreshTotal.WithLabelValues(statusError)); got != 1 {
		t.Errorf("Expected 1 failed refresh, got %f", got)
	}
}

func TestMetricsListenerFunction(t *testing.T) {
	resetAll()

	bus := events.NewEventBus()
	bus.SubscribeAll(NewMetricsListener().Listener())
	bus.Publish(&events.Event{
		Type: events.EventStreamFailed,
		Data: events.StreamFailedData{Reason: "channel_unavailable"},
	})
	bus.Close()

	if got := testutil.ToFloat64(streamConnectionsTotal.WithLabelValues("channel_unavailable")); got != 1 {
		t.Errorf("Expected 1 failed connection, got %f", got)
	}
}

func TestMetricsListenerIgnoresUnknownEvents(t *testing.T) {
	resetAll()
	listener := NewMetricsListener()

	listener.Handle(&events.Event{Type: events.EventTurnAppended, Data: events.TurnAppendedData{Index: 0}})
	listener.Handle(&events.Event{Type: events.EventAuthSignedOut})

	if active := testutil.ToFloat64(streamsActive); active != 0 {
		t.Errorf("Expected no change, got %f", active)
	}
}

func TestMetricsListenerNilData(t *testing.T) {
	resetAll()
	listener := NewMetricsListener()

	listener.Handle(&events.Event{Type: events.EventStreamOpened})
	listener.Handle(&events.Event{Type: events.EventStreamClosed})
	listener.Handle(&events.Event{Type: events.EventRequestCompleted})

	if active := testutil.ToFloat64(streamsActive); active != 0 {
		t.Errorf("Expected nil data to be ignored, got %f", active)
	}
	if got := testutil.ToFloat64(framesTotal.WithLabelValues(kindEndOfStream)); got != 1 {
		t.Errorf("Expected end-of-stream counted without data, got %f", got)
	}
}
