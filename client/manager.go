// Package client maintains a persistent connection to the minder daemon:
// one canonical socket, per-request correlation ids, request timeouts, and
// automatic reconnection after abnormal closes.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	minder "github.com/hollowlog/minder"
)

const (
	// DefaultRequestTimeout is the per-request reply deadline.
	DefaultRequestTimeout = 60 * time.Second
	// DefaultReconnectDelay is the fixed delay before a reconnect attempt.
	DefaultReconnectDelay = 3 * time.Second

	dialTimeout     = 5 * time.Second
	sweepInterval   = 100 * time.Millisecond
	maxMessageBytes = 10 << 20
)

// State is the connection state of a Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosingForReconnect
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosingForReconnect:
		return "closing_for_reconnect"
	default:
		return "disconnected"
	}
}

// RequestError is a request-scoped failure surfaced to the Send caller.
type RequestError struct {
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type sendResult struct {
	resp *minder.Response
	err  error
}

// pendingRequest awaits a correlated reply. Exactly one resolution path wins:
// whoever removes the entry from the table delivers the result.
type pendingRequest struct {
	deadline time.Time
	done     chan sendResult // buffered, capacity 1
}

// Manager owns the client side of the minder protocol. At most one socket is
// canonical at any time; a Connect while one is already connecting or open is
// a no-op. All timers (request deadlines, the reconnect delay) are monotonic
// deadlines checked by a single sweeper goroutine.
type Manager struct {
	network string
	addr    string

	requestTimeout time.Duration
	reconnectDelay time.Duration

	mu          sync.Mutex
	state       State
	conn        net.Conn
	credentials string
	pending     map[string]*pendingRequest
	reconnectAt time.Time // zero = no reconnect scheduled
	closed      bool

	writeMu sync.Mutex

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a manager for the given address ("unix://<path>",
// "tcp://<host>:<port>", or a bare socket path). The manager stays
// disconnected until credentials are set.
func New(addr string) *Manager {
	network := "unix"
	switch {
	case strings.HasPrefix(addr, "unix://"):
		addr = strings.TrimPrefix(addr, "unix://")
	case strings.HasPrefix(addr, "tcp://"):
		network = "tcp"
		addr = strings.TrimPrefix(addr, "tcp://")
	}

	m := &Manager{
		network:        network,
		addr:           addr,
		requestTimeout: DefaultRequestTimeout,
		reconnectDelay: DefaultReconnectDelay,
		pending:        make(map[string]*pendingRequest),
		stopCh:         make(chan struct{}),
	}
	go m.run()
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetCredentials stores the API token used for subsequent commands and
// connects (or cycles the socket when one is already open, so a token change
// takes effect immediately).
func (m *Manager) SetCredentials(token string) {
	m.mu.Lock()
	if m.closed || token == m.credentials {
		m.mu.Unlock()
		return
	}
	m.credentials = token

	var stale net.Conn
	if m.state == StateOpen {
		m.state = StateClosingForReconnect
		stale = m.conn
		m.conn = nil
	}
	m.mu.Unlock()

	if stale != nil {
		stale.Close()
	}
	go m.Connect()
}

// ClearCredentials removes the token, closes the socket normally, and fails
// every pending request. No reconnect is attempted.
func (m *Manager) ClearCredentials() {
	m.mu.Lock()
	m.credentials = ""
	m.reconnectAt = time.Time{}
	m.state = StateDisconnected
	conn := m.conn
	m.conn = nil
	pending := m.takePendingLocked()
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	failAll(pending, minder.ErrCredentialsRemoved, "credentials removed")
}

// Close tears the manager down: terminal disconnect, no reconnection, all
// pending requests failed.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.reconnectAt = time.Time{}
	m.state = StateDisconnected
	conn := m.conn
	m.conn = nil
	pending := m.takePendingLocked()
	m.mu.Unlock()

	m.stopOnce.Do(func() { close(m.stopCh) })
	if conn != nil {
		conn.Close()
	}
	failAll(pending, minder.ErrConnectionLost, "client closed")
}

// Connect dials the daemon. It is a no-op when a socket is already
// connecting or open, and an error when the manager is closed or has no
// credentials.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("manager is closed")
	}
	if m.state == StateConnecting || m.state == StateOpen {
		m.mu.Unlock()
		return nil
	}
	if m.credentials == "" {
		m.state = StateDisconnected
		m.mu.Unlock()
		return &RequestError{Code: minder.ErrCredentialsRemoved, Message: "no credentials configured"}
	}
	m.state = StateConnecting
	m.mu.Unlock()

	conn, err := net.DialTimeout(m.network, m.addr, dialTimeout)

	m.mu.Lock()
	if err != nil {
		m.state = StateDisconnected
		// Treat a failed dial like an abnormal close: retry while
		// credentials remain.
		if !m.closed && m.credentials != "" {
			m.reconnectAt = time.Now().Add(m.reconnectDelay)
		}
		m.mu.Unlock()
		return fmt.Errorf("dial %s: %w", m.addr, err)
	}
	if m.closed || m.credentials == "" {
		m.state = StateDisconnected
		m.mu.Unlock()
		conn.Close()
		return fmt.Errorf("manager torn down during connect")
	}
	m.conn = conn
	m.state = StateOpen
	m.mu.Unlock()

	slog.Debug("connected", "addr", m.addr)
	go m.readLoop(conn)
	return nil
}

// Send transmits a command and blocks until the correlated reply, the request
// deadline, or ctx expires. A unique correlation id is assigned and the
// pending entry registered before anything is written.
func (m *Manager) Send(ctx context.Context, cmd *minder.Command) (*minder.Response, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("manager is closed")
	}
	if m.credentials == "" {
		m.mu.Unlock()
		return nil, &RequestError{Code: minder.ErrCredentialsRemoved, Message: "no credentials configured"}
	}
	if cmd.Credentials == "" {
		cmd.Credentials = m.credentials
	}
	m.mu.Unlock()

	if m.State() != StateOpen {
		if err := m.Connect(); err != nil {
			return nil, &RequestError{Code: minder.ErrConnectionLost, Message: err.Error()}
		}
	}

	id := uuid.NewString()
	cmd.CorrelationID = id

	pr := &pendingRequest{
		deadline: time.Now().Add(m.requestTimeout),
		done:     make(chan sendResult, 1),
	}

	m.mu.Lock()
	conn := m.conn
	if conn == nil {
		m.mu.Unlock()
		return nil, &RequestError{Code: minder.ErrConnectionLost, Message: "socket is not open"}
	}
	m.pending[id] = pr
	m.mu.Unlock()

	if err := m.writeLine(conn, cmd); err != nil {
		m.removePending(id)
		return nil, &RequestError{Code: minder.ErrConnectionLost, Message: err.Error()}
	}

	select {
	case r := <-pr.done:
		return r.resp, r.err
	case <-ctx.Done():
		m.removePending(id)
		return nil, ctx.Err()
	}
}

func (m *Manager) writeLine(conn net.Conn, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_, err = conn.Write(append(data, '\n'))
	return err
}

// readLoop consumes replies until the socket closes, then decides whether the
// close was normal (teardown or credential removal detached the socket first)
// or abnormal (schedule a reconnect).
func (m *Manager) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)

	for scanner.Scan() {
		var resp minder.Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			slog.Warn("failed to parse reply", "error", err)
			continue
		}
		m.resolve(&resp)
	}

	m.onSocketClosed(conn, scanner.Err())
}

// resolve matches a reply to its pending request. Replies with an absent or
// unknown correlation id cannot be attributed and are dropped.
func (m *Manager) resolve(resp *minder.Response) {
	if resp.CorrelationID == "" {
		slog.Warn("dropping reply without correlation id")
		return
	}

	m.mu.Lock()
	pr, ok := m.pending[resp.CorrelationID]
	if ok {
		delete(m.pending, resp.CorrelationID)
	}
	m.mu.Unlock()

	if !ok {
		slog.Warn("dropping reply with unknown correlation id", "correlation_id", resp.CorrelationID)
		return
	}
	pr.done <- sendResult{resp: resp}
}

func (m *Manager) onSocketClosed(conn net.Conn, err error) {
	m.mu.Lock()
	if conn != m.conn {
		// Detached by Close/ClearCredentials/SetCredentials: normal closure.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = StateDisconnected
	schedule := !m.closed && m.credentials != ""
	if schedule {
		m.reconnectAt = time.Now().Add(m.reconnectDelay)
	}
	m.mu.Unlock()

	if schedule {
		slog.Warn("connection lost, reconnect scheduled", "delay", m.reconnectDelay, "error", err)
	}
}

// run is the single timer loop: it expires pending requests past their
// deadline and fires scheduled reconnects.
func (m *Manager) run() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

func (m *Manager) sweep(now time.Time) {
	var expired []*pendingRequest
	var doConnect bool

	m.mu.Lock()
	for id, pr := range m.pending {
		if now.After(pr.deadline) {
			delete(m.pending, id)
			expired = append(expired, pr)
		}
	}
	if !m.reconnectAt.IsZero() && now.After(m.reconnectAt) {
		m.reconnectAt = time.Time{}
		doConnect = !m.closed && m.credentials != "" && m.state == StateDisconnected
	}
	m.mu.Unlock()

	for _, pr := range expired {
		pr.done <- sendResult{err: &RequestError{
			Code:    minder.ErrTimeout,
			Message: fmt.Sprintf("no reply within %s", m.requestTimeout),
		}}
	}
	if doConnect {
		go m.Connect()
	}
}

func (m *Manager) removePending(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

func (m *Manager) takePendingLocked() []*pendingRequest {
	pending := make([]*pendingRequest, 0, len(m.pending))
	for _, pr := range m.pending {
		pending = append(pending, pr)
	}
	m.pending = make(map[string]*pendingRequest)
	return pending
}

func failAll(pending []*pendingRequest, code, msg string) {
	for _, pr := range pending {
		pr.done <- sendResult{err: &RequestError{Code: code, Message: msg}}
	}
}
