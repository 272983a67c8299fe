package channel

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketlink/internal/domain/entity"
	"marketlink/pkg/logger"
)

// Status is the externally visible connection state of one manager.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// ErrNotConnected is returned by Send when no live connection exists.
var ErrNotConnected = errors.New("channel: not connected")

const (
	defaultMinBackoff    = 1 * time.Second
	defaultMaxBackoff    = 30 * time.Second
	defaultBackoffFactor = 2.0
)

// Config parameterizes a Manager with its scope URL, auth capability, event
// and status callbacks, and reconnect policy.
type Config struct {
	// URL is the fully scoped websocket endpoint (list-scope or thread-scope).
	URL string

	// Token is the auth capability appended as a query parameter at connect
	// time. The manager never mutates it; an empty token refuses to connect.
	Token string

	// OnEvent receives each decoded inbound frame. Invoked sequentially from
	// the manager's goroutine; never invoked after Disconnect returns the
	// manager to its stopped state.
	OnEvent func(entity.Event)

	// OnStatus observes every status transition. Same delivery rules as OnEvent.
	OnStatus func(Status)

	MinBackoff    time.Duration
	MaxBackoff    time.Duration
	BackoffFactor float64

	// Dialer overrides the websocket dialer; tests use this.
	Dialer *websocket.Dialer
}

// Manager owns one logical push channel: it dials, reads frames, and keeps
// reconnecting with exponential backoff until told to stop. At most one
// physical connection exists at any time; the dial/read/reconnect cycle runs
// on a single goroutine, so a reconnect never overlaps a closing connection.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	conn    *websocket.Conn
	status  Status
	running bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg Config) *Manager {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = defaultBackoffFactor
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	return &Manager{
		cfg:    cfg,
		status: StatusDisconnected,
	}
}

// Connect starts the connection loop. A no-op if the manager is already
// running. Never returns an error: all failures surface through the status
// callback. A missing token refuses to connect and reports StatusError.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.running || m.stopped {
		m.mu.Unlock()
		return
	}
	if m.cfg.Token == "" {
		m.mu.Unlock()
		logger.Warn("channel: refusing to connect without auth token (%s)", m.cfg.URL)
		m.setStatus(StatusError)
		return
	}
	m.running = true
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.run(ctx)
}

// Disconnect stops the manager: no further reconnect attempts, the live
// connection (if any) is closed, and no callbacks fire afterwards. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	if m.cancel != nil {
		m.cancel()
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.status = StatusDisconnected
	done := m.done
	m.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connected reports whether a live connection is established.
func (m *Manager) Connected() bool {
	return m.Status() == StatusConnected
}

// Send writes one frame over the live connection. Returns an error when no
// connection is established; callers check Connected first and fall back to
// REST, so a Send failure here only happens on a close race.
func (m *Manager) Send(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil || m.status != StatusConnected {
		return ErrNotConnected
	}
	return m.conn.WriteMessage(websocket.TextMessage, frame)
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	delay := m.cfg.MinBackoff

	for {
		m.setStatus(StatusConnecting)

		conn, _, err := m.cfg.Dialer.DialContext(ctx, m.scopedURL(), nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("channel: dial %s failed: %v", m.cfg.URL, err)
			m.setStatus(StatusError)
			if !m.sleep(ctx, delay) {
				return
			}
			delay = m.nextDelay(delay)
			continue
		}

		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.conn = conn
		m.mu.Unlock()

		m.setStatus(StatusConnected)
		delay = m.cfg.MinBackoff

		m.readLoop(conn)

		m.mu.Lock()
		m.conn = nil
		stopped := m.stopped
		m.mu.Unlock()
		conn.Close()

		if stopped {
			return
		}
		m.setStatus(StatusDisconnected)
		if !m.sleep(ctx, delay) {
			return
		}
		delay = m.nextDelay(delay)
	}
}

// readLoop consumes frames until the connection drops. Malformed frames are
// logged and dropped without tearing down the channel.
func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("channel: read %s: %v", m.cfg.URL, err)
			}
			return
		}

		ev, err := entity.DecodeEvent(frame)
		if err != nil {
			logger.Warn("channel: dropping frame from %s: %v", m.cfg.URL, err)
			continue
		}
		m.emit(ev)
	}
}

func (m *Manager) emit(ev entity.Event) {
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped || m.cfg.OnEvent == nil {
		return
	}
	m.cfg.OnEvent(ev)
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.status = s
	m.mu.Unlock()

	if m.cfg.OnStatus != nil {
		m.cfg.OnStatus(s)
	}
}

// sleep waits out the current backoff delay; false when the manager was
// stopped while waiting.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) nextDelay(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * m.cfg.BackoffFactor)
	if next > m.cfg.MaxBackoff {
		next = m.cfg.MaxBackoff
	}
	return next
}

func (m *Manager) scopedURL() string {
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return m.cfg.URL
	}
	q := u.Query()
	q.Set("token", m.cfg.Token)
	u.RawQuery = q.Encode()
	return u.String()
}
