// Package connection owns the transport lifecycle against the remote
// authority: candidate endpoint negotiation, the fallback decision at
// initial connect, capped constant-interval reconnection, and FIFO queuing
// of outbound frames while disconnected.
package connection

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/pollsync/pollsync/internal/core/observability/log"
	"github.com/pollsync/pollsync/internal/core/protocol/websocket"
)

// Conn is one established transport connection.
type Conn interface {
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
	Done() <-chan struct{}
}

// Dialer opens a transport connection to one endpoint. The context bounds
// the attempt.
type Dialer func(ctx context.Context, endpoint string) (Conn, error)

// Outcome of a Connect call.
type Outcome uint8

const (
	OutcomeFailed Outcome = iota
	OutcomeRemote
	OutcomeFallback
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRemote:
		return "connected-remote"
	case OutcomeFallback:
		return "connected-fallback"
	default:
		return "failed"
	}
}

// Status of the manager, observable by callers that need explicit signaling
// beyond table staleness.
type Status uint8

const (
	StatusDisconnected Status = iota
	StatusConnected
	StatusReconnecting
	StatusFallback
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusFallback:
		return "fallback"
	default:
		return "disconnected"
	}
}

// Config holds connection settings.
type Config struct {
	// Ordered candidate endpoints, tried sequentially on Connect.
	Endpoints []string `yaml:"endpoints"`

	// Per-endpoint connect timeout.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// Constant delay between reconnect attempts. No exponential growth.
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`

	// Reconnect attempt cap after an established connection drops.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`

	// Whether all candidates failing at initial connect switches the
	// manager to fallback mode instead of failing.
	AllowFallback bool `yaml:"allow_fallback"`

	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxMessageSize int64         `yaml:"max_message_size"`
}

// DefaultConfig returns the default connection configuration.
func DefaultConfig() Config {
	return Config{
		Endpoints: []string{
			"ws://localhost:3000/ws",
			"ws://127.0.0.1:3000/ws",
		},
		ConnectTimeout:       5 * time.Second,
		ReconnectInterval:    2 * time.Second,
		MaxReconnectAttempts: 5,
		AllowFallback:        true,
		MaxMessageSize:       1024 * 1024, // 1MB
	}
}

// FrameHandler receives every inbound frame, in arrival order.
type FrameHandler func(data []byte)

// Manager owns one logical connection to the authority.
type Manager struct {
	config Config
	dialer Dialer
	logger log.Log

	mu       sync.Mutex
	conn     Conn
	endpoint string
	status   Status
	closed   bool

	queue   *Queue
	onFrame FrameHandler

	workerGroup sync.WaitGroup
}

// NewManager creates a manager. A nil dialer uses the websocket transport.
func NewManager(config Config, dialer Dialer, logger log.Log) *Manager {
	if dialer == nil {
		wsConfig := websocket.Config{
			ReadTimeout:    config.ReadTimeout,
			WriteTimeout:   config.WriteTimeout,
			MaxMessageSize: config.MaxMessageSize,
		}
		dialer = func(ctx context.Context, endpoint string) (Conn, error) {
			return websocket.Dial(ctx, endpoint, wsConfig)
		}
	}

	return &Manager{
		config: config,
		dialer: dialer,
		logger: logger.With(log.String("component", "connection_manager")),
		status: StatusDisconnected,
		queue:  NewQueue(),
	}
}

// OnFrame registers the inbound frame handler. Must be set before Connect.
func (m *Manager) OnFrame(handler FrameHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFrame = handler
}

// Connect tries each candidate endpoint in order, stopping at the first
// success. When every candidate fails and fallback is permitted the manager
// switches to fallback mode instead of failing. Explicit endpoints override
// the configured candidate list.
func (m *Manager) Connect(ctx context.Context, endpoints ...string) (Outcome, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return OutcomeFailed, ErrManagerClosed
	}
	if m.conn != nil {
		m.mu.Unlock()
		return OutcomeFailed, ErrAlreadyConnected
	}
	m.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	candidates := endpoints
	if len(candidates) == 0 {
		candidates = m.config.Endpoints
	}

	for _, endpoint := range candidates {
		conn, err := m.dialEndpoint(ctx, endpoint)
		if err != nil {
			m.logger.Warn("endpoint unreachable",
				log.String("endpoint", endpoint),
				log.Error(err))
			continue
		}

		m.adopt(conn, endpoint)
		m.logger.Info("connected to authority", log.String("endpoint", endpoint))
		m.flush()
		return OutcomeRemote, nil
	}

	if m.config.AllowFallback {
		m.mu.Lock()
		m.status = StatusFallback
		m.mu.Unlock()
		m.logger.Warn("no authority reachable, entering fallback mode",
			log.Int("candidates", len(candidates)))
		return OutcomeFallback, nil
	}

	return OutcomeFailed, ErrNoAuthorityReachable
}

func (m *Manager) dialEndpoint(ctx context.Context, endpoint string) (Conn, error) {
	dialCtx := ctx
	if m.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.config.ConnectTimeout)
		defer cancel()
	}
	conn, err := m.dialer(dialCtx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(ErrEndpointUnreachable, "dial %s: %v", endpoint, err)
	}
	return conn, nil
}

func (m *Manager) adopt(conn Conn, endpoint string) {
	m.mu.Lock()
	m.conn = conn
	m.endpoint = endpoint
	m.status = StatusConnected
	m.mu.Unlock()

	m.workerGroup.Add(1)
	go func() {
		defer m.workerGroup.Done()
		m.readLoop(conn)
	}()
}

// Send ships one frame now, or queues it while no connection is up. A send
// failure requeues the frame rather than dropping it; the caller never sees
// transport errors.
func (m *Manager) Send(frame []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.status == StatusFallback {
		m.mu.Unlock()
		return ErrFallbackMode
	}
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		m.queue.Enqueue(frame)
		m.logger.Debug("frame queued while disconnected", log.Int("queued", m.queue.Len()))
		return nil
	}

	if err := conn.Send(frame); err != nil {
		m.queue.Enqueue(frame)
		m.logger.Warn("send failed, frame requeued", log.Error(err))
	}
	return nil
}

// flush drains the queue in FIFO order. A failed send puts the frame back
// at the front and stops; the remainder is retried on the next connect.
func (m *Manager) flush() {
	for {
		frame, ok := m.queue.Dequeue()
		if !ok {
			return
		}

		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()
		if conn == nil {
			m.queue.Requeue(frame)
			return
		}

		if err := conn.Send(frame); err != nil {
			m.queue.Requeue(frame)
			m.logger.Warn("flush interrupted, frame requeued",
				log.Int("remaining", m.queue.Len()),
				log.Error(err))
			return
		}
	}
}

func (m *Manager) readLoop(conn Conn) {
	for {
		data, err := conn.Receive()
		if err != nil {
			break
		}

		m.mu.Lock()
		handler := m.onFrame
		m.mu.Unlock()
		if handler != nil {
			handler(data)
		}
	}

	m.handleDisconnect(conn)
}

// handleDisconnect runs the capped constant-interval reconnect loop against
// the endpoint that dropped. Exhausting the cap leaves the manager
// disconnected; it never falls back after an established connection drops.
func (m *Manager) handleDisconnect(dropped Conn) {
	m.mu.Lock()
	if m.closed || m.conn != dropped {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.status = StatusReconnecting
	endpoint := m.endpoint
	m.mu.Unlock()

	// The transport does not tear itself down on every receive error;
	// release it before dialing a replacement. Close is idempotent.
	_ = dropped.Close()

	m.logger.Warn("connection lost, attempting to reconnect",
		log.String("endpoint", endpoint))

	for attempt := 1; attempt <= m.config.MaxReconnectAttempts; attempt++ {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		m.logger.Info("reconnection attempt",
			log.Int("attempt", attempt),
			log.Int("max", m.config.MaxReconnectAttempts))

		conn, err := m.dialEndpoint(context.Background(), endpoint)
		if err == nil {
			m.adopt(conn, endpoint)
			m.logger.Info("reconnected", log.String("endpoint", endpoint))
			m.flush()
			return
		}

		m.logger.Warn("reconnection failed",
			log.Int("attempt", attempt),
			log.Error(err))

		if attempt < m.config.MaxReconnectAttempts {
			time.Sleep(m.config.ReconnectInterval)
		}
	}

	m.mu.Lock()
	m.status = StatusDisconnected
	m.mu.Unlock()
	m.logger.Error("reconnect attempts exhausted, staying disconnected",
		log.String("endpoint", endpoint),
		log.Error(ErrReconnectExhausted))
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// QueuedFrames reports how many outbound frames are waiting for a
// connection.
func (m *Manager) QueuedFrames() int {
	return m.queue.Len()
}

// Close tears the connection down and stops reconnecting.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn := m.conn
	m.conn = nil
	m.status = StatusDisconnected
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.workerGroup.Wait()
	return nil
}
