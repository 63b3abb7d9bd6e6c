package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aerodesk/agent/internal/events"
	"github.com/aerodesk/agent/internal/logging"
)

var log = logging.L("gateway")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFactor   = 0.3
)

// ErrConnectionLost is returned to pending calls when the backend
// connection drops mid-request.
var ErrConnectionLost = errors.New("gateway: connection lost")

// ErrNotConnected is returned when a call is issued with no active
// backend connection.
var ErrNotConnected = errors.New("gateway: not connected")

// Config holds gateway client configuration.
type Config struct {
	// URL of the backend helper's loopback websocket endpoint.
	URL string
	// AuthToken authenticates the agent to the backend helper.
	AuthToken string
}

type callResult struct {
	payload json.RawMessage
	err     error
}

// pendingCall tracks one in-flight request. stream, when set, receives
// mid-call chunks correlated by the request id.
type pendingCall struct {
	result chan callResult
	stream func(json.RawMessage)
}

// Client is the websocket implementation of Gateway. It multiplexes
// request/response calls, mid-call streamed chunks and unsolicited pushes
// over a single connection to the backend helper.
type Client struct {
	config *Config

	conn   *websocket.Conn
	connMu sync.RWMutex

	emitter   *events.Emitter
	pending   map[string]*pendingCall
	pendingMu sync.Mutex
	nextID    atomic.Uint64

	done      chan struct{}
	sendChan  chan []byte
	stopOnce  sync.Once
	isRunning bool
	runningMu sync.RWMutex
}

var _ Gateway = (*Client)(nil)

// NewClient creates a gateway client. Call Start (usually on its own
// goroutine) to connect.
func NewClient(cfg *Config) *Client {
	return &Client{
		config:   cfg,
		emitter:  events.NewEmitter(),
		pending:  make(map[string]*pendingCall),
		done:     make(chan struct{}),
		sendChan: make(chan []byte, 64),
	}
}

// Start connects to the backend helper and keeps the connection alive,
// reconnecting with jittered exponential backoff. Blocks until Stop.
func (c *Client) Start() {
	c.runningMu.Lock()
	if c.isRunning {
		c.runningMu.Unlock()
		return
	}
	c.isRunning = true
	c.runningMu.Unlock()

	c.reconnectLoop()
}

// Stop closes the connection and fails all pending calls.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		c.runningMu.Lock()
		c.isRunning = false
		c.runningMu.Unlock()

		close(c.done)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		c.failPending(ErrConnectionLost)
		log.Info("client stopped")
	})
}

// Connected reports whether a backend connection is currently open.
func (c *Client) Connected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil
}

func (c *Client) connect() error {
	wsURL, err := c.buildWSURL()
	if err != nil {
		return fmt.Errorf("build gateway URL: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect to backend: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	conn.SetReadLimit(MaxMessageSize)
	log.Info("connected", "endpoint", c.config.URL)
	return nil
}

func (c *Client) buildWSURL() (string, error) {
	endpoint, err := url.Parse(c.config.URL)
	if err != nil {
		return "", err
	}

	if c.config.AuthToken != "" {
		q := endpoint.Query()
		q.Set("token", c.config.AuthToken)
		endpoint.RawQuery = q.Encode()
	}

	return endpoint.String(), nil
}

func (c *Client) reconnectLoop() {
	backoff := initialBackoff

	for {
		select {
		case <-c.done:
			return
		default:
		}

		if err := c.connect(); err != nil {
			log.Warn("connection failed", "error", err)

			jitter := time.Duration(float64(backoff) * jitterFactor * (rand.Float64()*2 - 1))
			sleep := backoff + jitter
			if sleep < 0 {
				sleep = backoff
			}

			select {
			case <-c.done:
				return
			case <-time.After(sleep):
			}

			backoff = time.Duration(float64(backoff) * backoffFactor)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = initialBackoff

		done := make(chan struct{})
		go c.writePump(done)
		c.readPump()
		close(done)

		c.teardownConn()

		c.runningMu.RLock()
		running := c.isRunning
		c.runningMu.RUnlock()
		if !running {
			return
		}
	}
}

func (c *Client) readPump() {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read error", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Warn("failed to parse frame", "error", err)
			continue
		}

		c.route(&env)
	}
}

// route dispatches one inbound frame. Stream chunks and events are
// delivered synchronously on the read goroutine so arrival order is
// preserved end to end.
func (c *Client) route(env *Envelope) {
	switch env.Type {
	case TypeEvent:
		c.emitter.Publish(env.Event, env.Payload)

	case TypeStream:
		c.pendingMu.Lock()
		pc := c.pending[env.ID]
		c.pendingMu.Unlock()
		if pc == nil || pc.stream == nil {
			log.Warn("stream chunk for unknown call", "id", env.ID)
			return
		}
		pc.stream(env.Payload)

	case TypeResult:
		c.pendingMu.Lock()
		pc := c.pending[env.ID]
		delete(c.pending, env.ID)
		c.pendingMu.Unlock()
		if pc == nil {
			log.Warn("result for unknown call", "id", env.ID)
			return
		}
		res := callResult{payload: env.Payload}
		if env.Error != "" {
			res.err = errors.New(env.Error)
		}
		pc.result <- res

	default:
		log.Warn("unknown frame type", "type", env.Type)
	}
}

func (c *Client) writePump(done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.done:
			return

		case message := <-c.sendChan:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()

			if conn == nil {
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("write error", "error", err)
				return
			}

		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()

			if conn == nil {
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teardownConn clears the dropped connection, fails in-flight requests and
// discards queued frames. In-flight requests cannot complete on a new
// connection, and a queued frame must never reach the backend after its
// caller has already been failed.
func (c *Client) teardownConn() {
	c.connMu.Lock()
	c.conn = nil
	c.connMu.Unlock()

	c.failPending(ErrConnectionLost)

	for {
		select {
		case <-c.sendChan:
		default:
			return
		}
	}
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, pc := range c.pending {
		delete(c.pending, id)
		pc.result <- callResult{err: err}
	}
}

// call issues one request and decodes the terminal result payload into out
// (skipped when out is nil). No timeout is imposed beyond the caller's ctx.
func (c *Client) call(ctx context.Context, op string, in, out any) error {
	return c.dispatch(ctx, op, in, out, nil)
}

// stream issues one request whose mid-call chunks are delivered to onChunk
// in arrival order before the terminal result resolves the call.
func (c *Client) stream(ctx context.Context, op string, in any, onChunk func(json.RawMessage)) error {
	return c.dispatch(ctx, op, in, nil, onChunk)
}

func (c *Client) dispatch(ctx context.Context, op string, in, out any, onChunk func(json.RawMessage)) error {
	if !c.Connected() {
		return fmt.Errorf("%s: %w", op, ErrNotConnected)
	}

	var raw json.RawMessage
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		raw = data
	}

	id := strconv.FormatUint(c.nextID.Add(1), 10)
	pc := &pendingCall{
		result: make(chan callResult, 1),
		stream: onChunk,
	}

	c.pendingMu.Lock()
	c.pending[id] = pc
	c.pendingMu.Unlock()

	frame, err := json.Marshal(&Envelope{ID: id, Type: op, Payload: raw})
	if err != nil {
		c.unregister(id)
		return fmt.Errorf("%s: marshal frame: %w", op, err)
	}

	select {
	case c.sendChan <- frame:
	case <-ctx.Done():
		c.unregister(id)
		return fmt.Errorf("%s: %w", op, ctx.Err())
	case <-c.done:
		c.unregister(id)
		return fmt.Errorf("%s: %w", op, ErrConnectionLost)
	}

	select {
	case res := <-pc.result:
		if res.err != nil {
			return fmt.Errorf("%s: %w", op, res.err)
		}
		if out != nil && len(res.payload) > 0 {
			if err := json.Unmarshal(res.payload, out); err != nil {
				return fmt.Errorf("%s: decode result: %w", op, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.unregister(id)
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func (c *Client) unregister(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}
