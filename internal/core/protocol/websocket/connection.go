// Package websocket is the dial-side transport to the remote authority.
// Protocol frames travel as JSON text messages.
package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Config holds per-connection transport settings.
type Config struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// Connection is one established websocket connection to an authority
// endpoint.
type Connection struct {
	id   string
	conn *websocket.Conn

	config Config
	closed int32
	done   chan struct{}

	// Write mutex to ensure thread-safe writes
	writeMu sync.Mutex

	framesSent     uint64
	framesReceived uint64
}

// Dial connects to one candidate endpoint. The context bounds the handshake.
func Dial(ctx context.Context, endpoint string, config Config) (*Connection, error) {
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", endpoint)
	}

	if config.MaxMessageSize > 0 {
		conn.SetReadLimit(config.MaxMessageSize)
	}

	return &Connection{
		id:     uuid.New().String(),
		conn:   conn,
		config: config,
		done:   make(chan struct{}),
	}, nil
}

// ID returns the connection ID.
func (c *Connection) ID() string {
	return c.id
}

// Send writes one frame as a text message.
func (c *Connection) Send(data []byte) error {
	if c.IsClosed() {
		return errors.New("connection is closed")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "failed to write frame")
	}

	atomic.AddUint64(&c.framesSent, 1)
	return nil
}

// Receive blocks for the next frame. A read error marks the connection
// closed and fires Done.
func (c *Connection) Receive() ([]byte, error) {
	if c.IsClosed() {
		return nil, errors.New("connection is closed")
	}

	if c.config.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}

	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		c.markClosed()
		return nil, errors.Wrap(err, "failed to read frame")
	}

	if messageType != websocket.TextMessage {
		return nil, errors.New("expected text message for protocol frame")
	}

	atomic.AddUint64(&c.framesReceived, 1)
	return data, nil
}

// Done is closed once the connection is no longer usable.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// IsClosed checks if the connection is closed.
func (c *Connection) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// Close closes the connection.
func (c *Connection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil // Already closed
	}

	c.writeMu.Lock()
	closeMessage := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing")
	_ = c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	close(c.done)
	return err
}

func (c *Connection) markClosed() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		_ = c.conn.Close()
		close(c.done)
	}
}

// FramesSent returns the number of frames written on this connection.
func (c *Connection) FramesSent() uint64 {
	return atomic.LoadUint64(&c.framesSent)
}

// FramesReceived returns the number of frames read on this connection.
func (c *Connection) FramesReceived() uint64 {
	return atomic.LoadUint64(&c.framesReceived)
}
