// Package streaming provides the WebSocket transport for conversation streams.
//
// The package handles transport-level concerns (connect, send, receive,
// heartbeat, graceful shutdown) and leaves frame classification to the
// caller. Server close codes are surfaced through CloseCode so callers can
// tell an authorization rejection from a transport failure.
package streaming

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/convostream/runtime/logger"
)

// Default connection constants.
const (
	DefaultDialTimeout      = 10 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultMaxMessageSize   = 4 * 1024 * 1024 // 4MB
	DefaultCloseGracePeriod = 5 * time.Second
)

// ErrNotConnected is returned by operations on a connection that is not open.
var ErrNotConnected = errors.New("websocket is not connected")

// ConnConfig configures the WebSocket connection behavior.
type ConnConfig struct {
	// URL is the WebSocket endpoint URL.
	URL string

	// Headers are sent during the WebSocket handshake.
	Headers http.Header

	// DialTimeout is the handshake timeout. Defaults to DefaultDialTimeout.
	DialTimeout time.Duration

	// WriteWait is the write deadline for each message. Defaults to DefaultWriteWait.
	WriteWait time.Duration

	// MaxMessageSize is the read limit. Defaults to DefaultMaxMessageSize.
	MaxMessageSize int64

	// CloseGracePeriod is the deadline for writing the close frame.
	// Defaults to DefaultCloseGracePeriod.
	CloseGracePeriod time.Duration
}

func (c *ConnConfig) defaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteWait == 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.CloseGracePeriod == 0 {
		c.CloseGracePeriod = DefaultCloseGracePeriod
	}
}

// HandshakeError is returned by Connect when the server answered the upgrade
// request with an HTTP error.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake failed with status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// Conn manages a WebSocket connection with heartbeat and graceful shutdown.
// It handles the transport layer while leaving message decoding to the caller.
type Conn struct {
	cfg ConnConfig

	conn    *websocket.Conn
	mu      sync.Mutex
	writeMu sync.Mutex // serializes writes (gorilla/websocket requirement)
	closed  bool
	closeCh chan struct{}
}

// NewConn creates a new Conn. Call Connect to establish the connection.
func NewConn(cfg *ConnConfig) *Conn {
	cfg.defaults()
	return &Conn{
		cfg:     *cfg,
		closeCh: make(chan struct{}),
	}
}

// Connect establishes a WebSocket connection.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection is closed")
	}

	// The dialer only honors ctx's deadline during the upgrade; the watch
	// also aborts it when ctx is canceled.
	var stopWatch func() bool
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.DialTimeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
		NetDialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
			nc, err := (&net.Dialer{}).DialContext(dialCtx, network, addr)
			if err != nil {
				return nil, err
			}
			stopWatch = context.AfterFunc(ctx, func() { _ = nc.Close() })
			return nc, nil
		},
	}

	safeURL := logger.RedactSensitiveData(c.cfg.URL)
	logger.DebugContext(ctx, "connecting to WebSocket", "url", safeURL)

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, c.cfg.Headers)
	if stopWatch != nil && !stopWatch() && err == nil {
		// Canceled after the upgrade completed.
		_ = conn.Close()
		return fmt.Errorf("failed to connect: %w", context.Cause(ctx))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && resp == nil {
			return fmt.Errorf("failed to connect: %w", ctxErr)
		}
		if resp != nil {
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
			logger.WarnContext(ctx, "WebSocket dial failed", "url", safeURL, "status", resp.StatusCode)
			return &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return fmt.Errorf("failed to connect: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	conn.SetReadLimit(c.cfg.MaxMessageSize)

	c.conn = conn
	logger.DebugContext(ctx, "WebSocket connected", "url", safeURL)

	return nil
}

// SendText writes one text message.
func (c *Conn) SendText(text string) error {
	return c.write(websocket.TextMessage, []byte(text))
}

func (c *Conn) write(messageType int, data []byte) error {
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err := conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// Receive reads a single message from the WebSocket. The call blocks until a
// message arrives, the connection fails, or the context is canceled. Binary
// messages are returned as text.
func (c *Conn) Receive(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return "", ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	type readResult struct {
		msgType int
		data    []byte
		err     error
	}
	ch := make(chan readResult, 1)

	go func() {
		msgType, data, err := conn.ReadMessage()
		ch <- readResult{msgType: msgType, data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", r.err
		}
		if r.msgType != websocket.TextMessage && r.msgType != websocket.BinaryMessage {
			return "", fmt.Errorf("unexpected message type: %d", r.msgType)
		}
		return string(r.data), nil
	}
}

// ReceiveLoop reads messages and hands each to handle, in arrival order, on
// the calling goroutine. It returns nil once Close was called. Otherwise it
// returns the error that ended the stream; a server close arrives as a
// *websocket.CloseError (see CloseCode).
func (c *Conn) ReceiveLoop(ctx context.Context, handle func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closeCh:
			return nil
		default:
		}

		msg, err := c.Receive(ctx)
		if err != nil {
			if c.IsClosed() {
				return nil
			}
			return err
		}

		handle(msg)
	}
}

// StartHeartbeat starts a goroutine that sends WebSocket ping frames at the
// given interval. A failed ping drops the underlying connection, so the
// pending read fails and the receive loop reports the error.
func (c *Conn) StartHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go c.heartbeatLoop(ctx, interval)
}

func (c *Conn) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				if c.IsClosed() {
					return
				}
				logger.WarnContext(ctx, "ping failed, dropping connection", "error", err)
				c.drop()
				return
			}
		}
	}
}

// drop closes the socket without a close handshake and without marking the
// Conn closed, so the reader observes a transport error.
func (c *Conn) drop() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Close gracefully closes the WebSocket connection. It is safe to call more
// than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closeCh)

	if c.conn == nil {
		return nil
	}

	c.writeMu.Lock()
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.CloseGracePeriod))
	_ = c.conn.WriteMessage(websocket.CloseMessage, closeMsg)
	c.writeMu.Unlock()

	return c.conn.Close()
}

// IsClosed returns whether Close has been called.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// isConnected returns true if the connection has been established and has not been closed.
func (c *Conn) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed
}

// CloseCode returns the close code carried by a server close frame in err's
// chain, or 0 when err is not a close error.
func CloseCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}

// CloseText returns the reason text of a server close frame in err's chain.
func CloseText(err error) string {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Text
	}
	return ""
}
