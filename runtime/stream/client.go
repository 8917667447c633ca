// Package stream implements the conversation stream protocol client.
//
// A Client owns one channel for one conversation. Prompts go out as raw text
// messages; inbound messages are classified into text, metadata and the
// end-of-stream sentinel and folded into the conversation log. One receive
// goroutine applies frames in arrival order under the client mutex, and
// Snapshot reads under the same mutex, so a consumer never observes a torn
// state.
package stream

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/convostream/pkg/config"
	pkgerrors "github.com/AltairaLabs/convostream/pkg/errors"
	"github.com/AltairaLabs/convostream/runtime/auth"
	"github.com/AltairaLabs/convostream/runtime/conversation"
	"github.com/AltairaLabs/convostream/runtime/events"
	"github.com/AltairaLabs/convostream/runtime/frame"
	"github.com/AltairaLabs/convostream/runtime/logger"
	"github.com/AltairaLabs/convostream/runtime/streaming"
	"github.com/AltairaLabs/convostream/runtime/telemetry"
)

const component = "stream"

// Close codes the stream service uses.
const (
	closeNormal          = 1000
	closeGoingAway       = 1001
	closePolicyViolation = 1008
)

var (
	// ErrClosed is returned by Open on a client that was closed.
	ErrClosed = pkgerrors.New(component, "Open", errors.New("client is closed"))

	// ErrAlreadyOpened is returned by a second Open.
	ErrAlreadyOpened = pkgerrors.New(component, "Open", errors.New("client was already opened"))
)

// Config configures a Client.
type Config struct {
	// StreamURL is the stream service base URL.
	StreamURL string
	// TokenPlacement is config.TokenPlacementQuery (default) or config.TokenPlacementHeader.
	TokenPlacement    string
	DialTimeout       time.Duration
	WriteWait         time.Duration
	HeartbeatInterval time.Duration
}

// ConfigFrom extracts the stream settings from a loaded configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		StreamURL:         cfg.StreamURL,
		TokenPlacement:    cfg.TokenPlacement,
		DialTimeout:       cfg.DialTimeout,
		WriteWait:         cfg.WriteWait,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithEventBus publishes client events to bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(c *Client) { c.bus = bus }
}

// WithHistory seeds the log with turns fetched from the conversation API.
func WithHistory(turns []conversation.Turn) Option {
	return func(c *Client) { c.log = conversation.NewLog(turns...) }
}

// WithPendingPrompts sends the conversation's pending prompt, if any, as
// soon as the channel opens.
func WithPendingPrompts(p *PendingPrompts) Option {
	return func(c *Client) { c.pending = p }
}

// WithClock replaces the wall clock used for credential expiry, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client is the stream client for one conversation.
type Client struct {
	conversationID string
	connectionID   string
	cfg            Config
	bus            *events.EventBus
	emitter        *events.Emitter
	pending        *PendingPrompts
	now            func() time.Time

	// ctx carries logging fields and is canceled when the client ends.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	log         *conversation.Log
	outstanding bool
	errKind     ErrorKind
	cause       error
	closedAt    time.Time
	conn        *streaming.Conn
	openedAt    time.Time

	// current request
	requestID    string
	requestStart time.Time
	chunks       int
	bytes        int

	done     chan struct{}
	doneOnce sync.Once
}

// New creates an idle client for conversationID. Call Open to connect.
func New(conversationID string, cfg Config, opts ...Option) *Client {
	c := &Client{
		conversationID: conversationID,
		connectionID:   uuid.NewString(),
		cfg:            cfg,
		now:            time.Now,
		log:            conversation.NewLog(),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.emitter = events.NewEmitter(c.bus, conversationID, c.connectionID)
	c.ctx, c.cancel = context.WithCancel(logger.WithLoggingContext(context.Background(), &logger.LoggingFields{
		Component:      component,
		ConversationID: conversationID,
		ConnectionID:   c.connectionID,
	}))
	return c
}

// ConversationID returns the conversation this client serves.
func (c *Client) ConversationID() string { return c.conversationID }

// ConnectionID returns the unique ID of this client's channel.
func (c *Client) ConnectionID() string { return c.connectionID }

// Done is closed when the client reaches a terminal state.
func (c *Client) Done() <-chan struct{} { return c.done }

// Open connects the channel using cred. It requires a usable credential and
// dials nothing otherwise. On success a pending prompt for the conversation
// is sent immediately.
func (c *Client) Open(ctx context.Context, cred auth.Credential) error {
	c.mu.Lock()
	switch {
	case c.state.Terminal():
		c.mu.Unlock()
		return ErrClosed
	case c.state != StateIdle:
		c.mu.Unlock()
		return ErrAlreadyOpened
	}

	if !cred.Usable(c.now()) {
		err := pkgerrors.New(component, "Open", auth.ErrUnauthorized).WithKind(pkgerrors.KindUnauthorized)
		c.failLocked(ErrorUnauthorized, err)
		c.mu.Unlock()
		logger.WarnContext(c.ctx, "stream not opened: credential is not usable",
			"expired", cred.IsExpired(c.now()), "last_error", string(cred.LastError))
		return err
	}

	url, headers, err := BuildURL(c.cfg.StreamURL, c.conversationID, cred.AccessToken, c.cfg.TokenPlacement)
	if err != nil {
		wrapped := pkgerrors.New(component, "Open", err).WithKind(pkgerrors.KindChannelError)
		c.failLocked(ErrorChannelUnavailable, wrapped)
		c.mu.Unlock()
		return wrapped
	}
	telemetry.InjectHeaders(ctx, headers)
	c.state = StateConnecting
	safeURL := logger.RedactSensitiveData(url)
	c.emitter.StreamConnecting(safeURL)
	c.mu.Unlock()

	logger.InfoContext(c.ctx, "opening stream", "url", safeURL)

	conn := streaming.NewConn(&streaming.ConnConfig{
		URL:         url,
		Headers:     headers,
		DialTimeout: c.cfg.DialTimeout,
		WriteWait:   c.cfg.WriteWait,
	})
	// Close cancels a handshake in progress.
	dialCtx, stopDial := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, stopDial)
	start := time.Now()
	dialErr := conn.Connect(dialCtx)
	stop()
	stopDial()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnecting {
		// Closed while dialing.
		_ = conn.Close()
		return ErrClosed
	}

	if dialErr != nil {
		kind, errKind := ErrorChannelUnavailable, pkgerrors.KindChannelError
		status := 0
		var hs *streaming.HandshakeError
		if errors.As(dialErr, &hs) {
			status = hs.StatusCode
			if hs.StatusCode == http.StatusUnauthorized || hs.StatusCode == http.StatusForbidden {
				kind, errKind = ErrorUnauthorized, pkgerrors.KindUnauthorized
			}
		}
		err := pkgerrors.New(component, "Open", dialErr).WithKind(errKind).WithStatusCode(status)
		c.failLocked(kind, err)
		logger.WarnContext(c.ctx, "stream open failed", "error", err)
		return err
	}

	c.conn = conn
	c.state = StateOpen
	c.openedAt = time.Now()

	prompt, hasPrompt := "", false
	if c.pending != nil {
		prompt, hasPrompt = c.pending.Take(c.conversationID)
		hasPrompt = hasPrompt && strings.TrimSpace(prompt) != ""
	}
	c.emitter.StreamOpened(time.Since(start), hasPrompt)
	logger.InfoContext(c.ctx, "stream opened")

	conn.StartHeartbeat(c.ctx, c.cfg.HeartbeatInterval)
	go c.receive(conn)

	if hasPrompt {
		c.sendLocked(prompt)
	}
	return nil
}

// Send transmits a prompt. It returns false, and changes nothing, when text
// is blank, the channel is not open, or a response is outstanding. Otherwise
// the user turn is appended before the prompt is written.
func (c *Client) Send(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(text)
}

func (c *Client) sendLocked(text string) bool {
	if strings.TrimSpace(text) == "" || c.state != StateOpen || c.outstanding {
		return false
	}

	c.log.AppendUser(text)
	c.outstanding = true
	c.requestID = uuid.NewString()
	c.requestStart = time.Now()
	c.chunks, c.bytes = 0, 0
	c.emitter.TurnAppended(c.requestID, c.log.Len()-1, string(conversation.RoleUser))

	if err := c.conn.SendText(text); err != nil {
		logger.WarnContext(logger.WithRequestID(c.ctx, c.requestID), "prompt write failed", "error", err)
		c.endLocked(closeReasonChannel, 0,
			pkgerrors.New(component, "Send", err).WithKind(pkgerrors.KindChannelError))
		return true
	}
	c.emitter.RequestSent(c.requestID, len(text))
	logger.DebugContext(logger.WithRequestID(c.ctx, c.requestID), "prompt sent", "bytes", len(text))
	return true
}

// receive runs the channel's read loop until it ends.
func (c *Client) receive(conn *streaming.Conn) {
	err := conn.ReceiveLoop(c.ctx, c.apply)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return
	}

	code := streaming.CloseCode(err)
	switch {
	case err == nil || code == closeNormal || code == closeGoingAway:
		c.endLocked(closeReasonServer, code, nil)
	case code == closePolicyViolation:
		c.endLocked(closeReasonUnauthorized, code,
			pkgerrors.New(component, "Receive", err).WithKind(pkgerrors.KindUnauthorized).WithStatusCode(code))
	default:
		c.endLocked(closeReasonChannel, code,
			pkgerrors.New(component, "Receive", err).WithKind(pkgerrors.KindChannelError).WithStatusCode(code))
	}
}

// apply folds one inbound message into the log.
func (c *Client) apply(raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return
	}

	f := frame.Classify(raw)
	ctx := c.ctx
	if c.requestID != "" {
		ctx = logger.WithRequestID(ctx, c.requestID)
	}
	logger.FrameReceived(ctx, f.Kind.String(), len(raw))

	switch f.Kind {
	case frame.KindText:
		if !c.outstanding {
			c.violationLocked(ctx, f.Kind, "text without an outstanding request")
			return
		}
		if c.log.AppendText(f.Text) {
			c.emitter.TurnAppended(c.requestID, c.log.Len()-1, string(conversation.RoleModel))
		}
		c.chunks++
		c.bytes += len(f.Text)
		c.emitter.TextAppended(c.requestID, c.log.Len()-1, len(f.Text))

	case frame.KindMetadata:
		if !c.log.MergeMetadata(f.Metadata) {
			c.violationLocked(ctx, f.Kind, "metadata without a model turn")
			return
		}
		c.emitter.MetadataMerged(c.requestID, c.log.Len()-1, !c.outstanding)

	case frame.KindEndOfStream:
		if !c.outstanding {
			c.violationLocked(ctx, f.Kind, "end of stream without an outstanding request")
			return
		}
		c.outstanding = false
		c.log.FinishText()
		c.emitter.RequestCompleted(c.requestID, time.Since(c.requestStart), c.chunks, c.bytes)
		logger.DebugContext(ctx, "response complete", "chunks", c.chunks, "bytes", c.bytes)
	}
}

func (c *Client) violationLocked(ctx context.Context, kind frame.Kind, reason string) {
	logger.ProtocolViolation(ctx, reason, "frame", kind.String())
	c.emitter.ProtocolViolation(c.requestID, kind.String(), reason)
}

// Close tears the channel down. It is safe to call more than once and from
// any state; a partial model turn is preserved.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return nil
	}
	if c.state == StateIdle || c.state == StateConnecting {
		connecting := c.state == StateConnecting
		c.state = StateClosed
		c.closedAt = c.now()
		c.log.Seal()
		if connecting {
			// Ends the attempt announced by stream.connecting.
			c.emitter.StreamFailed(nil, events.FailureCanceled)
			logger.InfoContext(c.ctx, "stream closed during handshake")
		}
		c.finishLocked()
		return nil
	}
	c.endLocked(closeReasonClient, 0, nil)
	return nil
}

// Snapshot returns a consistent copy of the read model.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		ConversationID: c.conversationID,
		Turns:          c.log.Turns(),
		Streaming:      c.outstanding,
		State:          c.state,
		Err:            c.errKind,
		Cause:          c.cause,
		ClosedAt:       c.closedAt,
	}
}

const (
	closeReasonClient       = "client"
	closeReasonServer       = "server"
	closeReasonUnauthorized = "unauthorized"
	closeReasonChannel      = "channel_unavailable"
)

// endLocked moves an open client to Closed.
func (c *Client) endLocked(reason string, code int, err error) {
	interrupted := c.outstanding
	c.state = StateClosed
	c.outstanding = false
	c.closedAt = c.now()
	c.log.Seal()
	switch reason {
	case closeReasonUnauthorized:
		c.errKind = ErrorUnauthorized
	case closeReasonChannel:
		c.errKind = ErrorChannelUnavailable
	}
	c.cause = err

	if c.conn != nil {
		_ = c.conn.Close()
	}

	text := streaming.CloseText(err)
	c.emitter.StreamClosed(events.StreamClosedData{
		Code:        code,
		Text:        text,
		Reason:      reason,
		Error:       err,
		Interrupted: interrupted,
		Duration:    time.Since(c.openedAt),
	})
	if err != nil {
		logger.WarnContext(c.ctx, "stream closed", "reason", reason, "code", code, "close_text", text, "error", err)
	} else {
		logger.InfoContext(c.ctx, "stream closed", "reason", reason, "code", code)
	}
	c.finishLocked()
}

// failLocked moves a client that never opened to Failed.
func (c *Client) failLocked(kind ErrorKind, err error) {
	c.state = StateFailed
	c.errKind = kind
	c.cause = err
	c.closedAt = c.now()
	c.emitter.StreamFailed(err, string(kind))
	c.finishLocked()
}

func (c *Client) finishLocked() {
	c.doneOnce.Do(func() {
		c.cancel()
		close(c.done)
	})
}
