/* SPDX-License-Identifier: MPL-2.0
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package notifications maintains the WebSocket connection that carries
// pushed call events from the backend. The push channel is an
// acceleration, not a dependency: every state change it delivers also
// arrives through the dialer's polling loop, so a broken socket degrades
// latency and nothing else.
package notifications

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/dialforge/softphone-go-sdk/dialersdk"
)

// State describes the supervisor's view of the connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	// StateLost is terminal: the reconnect budget is exhausted and no
	// further attempts are made until Connect is called again.
	StateLost State = "lost"
)

// MessageHandler receives the raw payload of each pushed message.
type MessageHandler func(data []byte)

// StateHandler is notified on every connection state change.
type StateHandler func(state State)

// Config holds the configuration for the Notifications plugin.
type Config struct {
	// URL overrides the WebSocket endpoint. When empty it is derived
	// from the backend base URL as ws(s)://<host>/ws/calls.
	URL string

	// PingInterval is how often an application-level ping is sent.
	PingInterval time.Duration

	// HandshakeTimeout bounds a single dial attempt.
	HandshakeTimeout time.Duration

	// BackoffBase is the delay before the first reconnect attempt.
	BackoffBase time.Duration

	// BackoffMax caps the delay between reconnect attempts.
	BackoffMax time.Duration

	// MaxAttempts is the number of consecutive failed reconnect attempts
	// before the supervisor gives up and goes to StateLost. The counter
	// resets every time a connection opens.
	MaxAttempts int
}

// DefaultConfig returns the default configuration for the Notifications plugin.
func DefaultConfig() *Config {
	return &Config{
		PingInterval:     30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		BackoffBase:      1 * time.Second,
		BackoffMax:       30 * time.Second,
		MaxAttempts:      10,
	}
}

// Client supervises the call events WebSocket.
type Client struct {
	core   *dialersdk.Client
	config *Config

	mu              sync.Mutex
	conn            *websocket.Conn
	state           State
	closeCh         chan struct{}
	attempts        int
	messageHandlers []MessageHandler
	stateHandlers   []StateHandler
}

// New creates a new Notifications client.
func New(core *dialersdk.Client, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	def := DefaultConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = def.HandshakeTimeout
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = def.BackoffBase
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = def.BackoffMax
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}

	return &Client{
		core:   core,
		config: config,
		state:  StateDisconnected,
	}
}

// OnMessage registers a handler for pushed messages. Handlers run on the
// read loop goroutine and should hand off heavy work.
func (c *Client) OnMessage(handler MessageHandler) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	c.messageHandlers = append(c.messageHandlers, handler)
	c.mu.Unlock()
}

// OnStateChange registers a handler for connection state transitions.
func (c *Client) OnStateChange(handler StateHandler) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	c.stateHandlers = append(c.stateHandlers, handler)
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the WebSocket connection and starts the supervisor.
// It returns after the first attempt resolves; a failed first attempt
// still returns its error, with reconnection continuing in the background.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.closeCh = make(chan struct{})
	c.attempts = 0
	closeCh := c.closeCh
	c.mu.Unlock()

	c.setState(StateConnecting)
	if err := c.attemptConnection(); err != nil {
		go c.reconnectLoop(closeCh)
		return err
	}
	return nil
}

// Disconnect closes the connection deliberately and suppresses any
// scheduled reconnect attempts.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closeCh != nil {
		close(c.closeCh)
		c.closeCh = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnected by client"))
		_ = conn.Close()
	}
	c.setState(StateDisconnected)
	return nil
}

// endpoint resolves the WebSocket URL for the call events feed.
func (c *Client) endpoint() (string, error) {
	if c.config.URL != "" {
		return c.config.URL, nil
	}
	base := c.core.BaseURL
	if base == nil {
		return "", fmt.Errorf("no base URL configured")
	}
	u := *base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/calls"
	return u.String(), nil
}

// attemptConnection makes one dial attempt and, on success, starts the
// read and keepalive loops.
func (c *Client) attemptConnection() error {
	wsURL, err := c.endpoint()
	if err != nil {
		return err
	}
	if _, err := url.Parse(wsURL); err != nil {
		return fmt.Errorf("invalid WebSocket URL: %v", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.core.GetAccessToken())

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}
	conn, _, err := dialer.Dial(wsURL, headers)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket: %v", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.attempts = 0
	closeCh := c.closeCh
	c.mu.Unlock()

	c.setState(StateConnected)

	go c.listen(conn, closeCh)
	go c.keepalive(conn, closeCh)
	return nil
}

// listen reads pushed messages until the connection drops, then hands
// control to the reconnect loop unless the drop was deliberate.
func (c *Client) listen(conn *websocket.Conn, closeCh chan struct{}) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-closeCh:
				return
			default:
			}
			c.core.GetLogger().Printf("notifications: connection dropped: %v", err)
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			c.setState(StateDisconnected)
			go c.reconnectLoop(closeCh)
			return
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &envelope); err != nil {
			continue
		}
		if envelope.Type == "pong" {
			continue
		}

		c.mu.Lock()
		handlers := make([]MessageHandler, len(c.messageHandlers))
		copy(handlers, c.messageHandlers)
		c.mu.Unlock()
		for _, h := range handlers {
			h(message)
		}
	}
}

// keepalive sends an application-level ping on each interval. The backend
// answers with {"type":"pong"}, which the read loop swallows.
func (c *Client) keepalive(conn *websocket.Conn, closeCh chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closeCh:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
				return
			}
		}
	}
}

// reconnectLoop retries the connection on an exponential schedule:
// base, 2x, 4x ... capped at BackoffMax, for at most MaxAttempts
// consecutive failures. Exhausting the budget is terminal.
func (c *Client) reconnectLoop(closeCh chan struct{}) {
	schedule := newSchedule(c.config.BackoffBase, c.config.BackoffMax)

	for {
		c.mu.Lock()
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		if attempt > c.config.MaxAttempts {
			c.core.GetLogger().Printf("notifications: giving up after %d reconnect attempts", c.config.MaxAttempts)
			c.setState(StateLost)
			return
		}

		select {
		case <-closeCh:
			return
		case <-time.After(schedule.NextBackOff()):
		}

		select {
		case <-closeCh:
			return
		default:
		}

		c.setState(StateConnecting)
		if err := c.attemptConnection(); err != nil {
			c.core.GetLogger().Printf("notifications: reconnect attempt %d failed: %v", attempt, err)
			c.setState(StateDisconnected)
			continue
		}
		return
	}
}

// newSchedule builds the deterministic reconnect schedule: the delay
// doubles from base until it hits max, with jitter disabled so the
// sequence is base, 2*base, 4*base and so on.
func newSchedule(base, max time.Duration) *backoff.ExponentialBackOff {
	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = base
	schedule.RandomizationFactor = 0
	schedule.Multiplier = 2
	schedule.MaxInterval = max
	schedule.Reset()
	return schedule
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	handlers := make([]StateHandler, len(c.stateHandlers))
	copy(handlers, c.stateHandlers)
	c.mu.Unlock()

	for _, h := range handlers {
		h(state)
	}
}
