package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 64 << 10
	DefaultSendBuffer = 32
)

// Conn is a gorilla websocket with a buffered outbound queue drained by WritePump.
type Conn struct {
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
	log       *zap.Logger
}

// NewConn wraps an upgraded websocket.
func NewConn(conn *websocket.Conn, log *zap.Logger, buffer int) *Conn {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Conn{
		ws:   conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
		log:  log,
	}
}

// Send queues frame; it drops the frame when the buffer is full.
func (c *Conn) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Dropped reports frames lost because the socket could not keep up.
func (c *Conn) Dropped() int64 {
	return c.dropped.Load()
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close closes the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// WritePump drains the send queue to the socket and keeps the connection alive
// with pings. It is the only writer of data frames.
func (c *Conn) WritePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return ctx.Err()
		case <-c.done:
			return nil
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Warn("WebSocket write failed, closing client", zap.Error(err))
				return err
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// ReadPump reads inbound frames until the socket closes, passing each to handle.
// A normal close returns nil.
func (c *Conn) ReadPump(handle func(msg []byte)) error {
	defer func() { _ = c.Close() }()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) || errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			select {
			case <-c.done:
				return nil
			default:
				return err
			}
		}
		handle(msg)
	}
}

// NewUpgrader builds an upgrader that accepts non-browser clients and browser
// origins whose host matches allowedOrigins (comma separated, "*" and "*.domain" supported).
func NewUpgrader(allowedOrigins string, log *zap.Logger) *websocket.Upgrader {
	if allowedOrigins == "" {
		allowedOrigins = "localhost,127.0.0.1"
	}
	allowed := strings.Split(allowedOrigins, ",")
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if originAllowed(origin, allowed) {
				return true
			}
			if log != nil {
				log.Warn("Rejected WebSocket connection",
					zap.String("origin", origin),
					zap.String("allowed_origins", allowedOrigins))
			}
			return false
		},
	}
}

func originAllowed(origin string, allowed []string) bool {
	host := origin
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, ":/"); i >= 0 {
		host = host[:i]
	}
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "*" || a == host {
			return true
		}
		if strings.HasPrefix(a, "*.") && strings.HasSuffix(host, a[1:]) {
			return true
		}
	}
	return false
}
