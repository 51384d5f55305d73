package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SubscribePath is where the dashboard serves HandleSubscribe.
const SubscribePath = "/ws"

// Envelope is a received Message with its payload left raw.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Sent    time.Time       `json:"sent"`
}

// Client follows a dashboard's stream, reconnecting until its context ends.
type Client struct {
	endpoint string
	header   http.Header
	retry    time.Duration

	mu       sync.Mutex
	handlers map[string]func(Envelope)
}

// NewClient builds a client for the dashboard at base (http or https).
func NewClient(base, token string) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse dashboard url: %w", err)
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	u.Scheme = scheme
	u.Path = SubscribePath
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &Client{
		endpoint: u.String(),
		header:   header,
		retry:    5 * time.Second,
		handlers: map[string]func(Envelope){},
	}, nil
}

// On registers fn for msgType; "*" receives every message.
func (c *Client) On(msgType string, fn func(Envelope)) {
	c.mu.Lock()
	c.handlers[msgType] = fn
	c.mu.Unlock()
}

// Run dials, reads until the connection drops, and dials again after the
// retry delay. It returns when ctx is done.
func (c *Client) Run(ctx context.Context) {
	for {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint, c.header)
		if err != nil {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			log.Printf("ws dial failed: %v (url=%s status=%d)", err, c.endpoint, status)
		} else {
			log.Printf("ws connected url=%s", c.endpoint)
			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			c.readLoop(conn)
			stop()
			_ = conn.Close()
			log.Printf("ws disconnected, retrying in %s", c.retry)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retry):
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		c.mu.Lock()
		h, ok := c.handlers[env.Type]
		all := c.handlers["*"]
		c.mu.Unlock()
		if ok {
			h(env)
		}
		if all != nil {
			all(env)
		}
	}
}
