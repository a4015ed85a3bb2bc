// Package subscriber manages one WebSocket connection to the chain node:
// eth_subscribe per topic group, an application-level heartbeat, and
// exponential-backoff reconnect with resubscription.
package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"

	"swapwatch/internal/util"
)

const (
	pingInterval   = 30 * time.Second
	pongWait       = 10 * time.Second
	initialBackoff = time.Second
	maxBackoff     = 60 * time.Second
)

// TopicGroup is one eth_subscribe("logs", {...}) request: a set of
// contract addresses and the topic filter to apply to their logs.
type TopicGroup struct {
	Name      string
	Addresses []string
	Topics    [][]string
}

// Handler receives one raw eth_subscription push frame's "result" payload,
// along with the topic group name it was routed to.
type Handler func(group string, raw json.RawMessage)

// Client owns the single WS connection and the subscription-id -> topic
// group routing table built from subscribe acks.
type Client struct {
	url    string
	groups []TopicGroup
	handle Handler

	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  int64
	routes  map[string]string // subscription id (hex) -> group name
	pending map[int64]string  // request id -> group name, until the ack arrives

	connGauge func(delta int)
}

// New builds a subscriber for the given endpoint and topic groups.
// connGauge, if non-nil, is called with +1/-1 as connections open/close,
// feeding the ws_connections gauge.
func New(url string, groups []TopicGroup, handle Handler, connGauge func(delta int)) *Client {
	if connGauge == nil {
		connGauge = func(int) {}
	}
	return &Client{
		url:       url,
		groups:    groups,
		handle:    handle,
		routes:    make(map[string]string),
		pending:   make(map[int64]string),
		connGauge: connGauge,
	}
}

// Run connects and blocks, reconnecting with backoff until ctx is
// cancelled.
func (c *Client) Run(ctx context.Context) {
	attempt := 0
	for {
		if err := c.dial(ctx); err != nil {
			log.Warn("subscriber: dial failed", "attempt", attempt, "err", err)
			if !c.sleepBackoff(ctx, attempt) {
				return
			}
			attempt++
			continue
		}
		attempt = 0

		c.subscribeAll()
		c.connGauge(1)
		c.readLoop(ctx)
		c.connGauge(-1)

		select {
		case <-ctx.Done():
			return
		default:
		}
		if !c.sleepBackoff(ctx, attempt) {
			return
		}
		attempt++
	}
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) bool {
	d := util.Backoff(initialBackoff, maxBackoff, attempt)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("subscriber: dial %s: %w", c.url, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.routes = make(map[string]string)
	c.mu.Unlock()
	return nil
}

type subscribeRequest struct {
	ID     int64         `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type logFilter struct {
	Address []string   `json:"address"`
	Topics  [][]string `json:"topics"`
}

func (c *Client) subscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, g := range c.groups {
		c.nextID++
		id := c.nextID
		c.pending[id] = g.Name

		req := subscribeRequest{
			ID:     id,
			Method: "eth_subscribe",
			Params: []interface{}{"logs", logFilter{Address: g.Addresses, Topics: g.Topics}},
		}
		if err := c.conn.WriteJSON(req); err != nil {
			log.Warn("subscriber: subscribe write failed", "group", g.Name, "err", err)
		}
	}
}

type ackFrame struct {
	ID     *int64 `json:"id"`
	Result string `json:"result"`
}

type pushFrame struct {
	Method string `json:"method"`
	Params struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

func (c *Client) readLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		return nil
	})

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-pingTicker.C:
				c.mu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pongWait))
				c.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()
	defer func() { <-done }()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Warn("subscriber: read error", "err", err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg []byte) {
	var ack ackFrame
	if err := json.Unmarshal(msg, &ack); err == nil && ack.ID != nil {
		c.mu.Lock()
		group, ok := c.pending[*ack.ID]
		if ok {
			delete(c.pending, *ack.ID)
			c.routes[ack.Result] = group
		}
		c.mu.Unlock()
		return
	}

	var push pushFrame
	if err := json.Unmarshal(msg, &push); err != nil || push.Method != "eth_subscription" {
		return
	}

	c.mu.Lock()
	group, ok := c.routes[push.Params.Subscription]
	c.mu.Unlock()
	if !ok {
		log.Warn("subscriber: push for unknown subscription", "sub", push.Params.Subscription)
		return
	}

	c.handle(group, push.Params.Result)
}

// Close shuts down the live connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
