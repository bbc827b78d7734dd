package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/waigayahq/waigaya/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// Client is one connected UI socket. All writes go through the send channel
// so the write pump is the only goroutine touching the connection for output.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server

	limiter *rate.Limiter
	send    chan interface{}

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, server *Server) *Client {
	var limiter *rate.Limiter
	if rps := server.cfg.Gateway.RateLimitRPS; rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		server:  server,
		limiter: limiter,
		send:    make(chan interface{}, sendBufferSize),
		closed:  make(chan struct{}),
	}
}

// ID returns the client's connection id.
func (c *Client) ID() string { return c.id }

// Run processes inbound frames until the connection or ctx ends.
func (c *Client) Run(ctx context.Context) {
	go c.writePump(ctx)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("client read error", "id", c.id, "error", err)
			}
			return
		}

		var req protocol.RequestFrame
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Warn("malformed request frame", "id", c.id, "error", err)
			continue
		}
		if req.Type != protocol.FrameRequest || req.Method == "" {
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.SendResponse(protocol.NewErrorResponse(req.ID, "rate limit exceeded"))
			continue
		}

		go c.server.router.Dispatch(ctx, c, &req)
	}
}

// SendResponse queues a response frame. Drops the frame if the client's
// send buffer is full.
func (c *Client) SendResponse(res *protocol.ResponseFrame) {
	c.enqueue(res)
}

// SendEvent queues an event frame. Drops the frame if the client's send
// buffer is full.
func (c *Client) SendEvent(event protocol.EventFrame) {
	c.enqueue(event)
}

func (c *Client) enqueue(v interface{}) {
	select {
	case <-c.closed:
	case c.send <- v:
	default:
		slog.Warn("client send buffer full, dropping frame", "id", c.id)
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case v := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(v); err != nil {
				slog.Warn("client write error", "id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}
