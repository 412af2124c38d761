package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/m-tsuru/tenchi-geolocation/pkg/streaming"
)

const (
	sendChSize   = 1_024
	ackChSize    = 16
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

// connection manages a WebSocket connection with a single write goroutine.
type connection struct {
	mu     sync.Mutex
	conn   *ws.Conn
	sendCh chan []byte
	ackCh  chan streaming.AckMessage
	done   chan struct{} // closed on shutdown
	closed bool

	stop   chan struct{} // closed when conn is replaced

	wsURL  string
	secret string

	// replay returns the messages that rebuild the relay's view after a
	// reconnect: hello first, then the current markers.
	replay func() [][]byte

	backoff time.Duration
	logger  *slog.Logger
}

func newConnection(logger *slog.Logger, replay func() [][]byte) *connection {
	return &connection{
		sendCh:  make(chan []byte, sendChSize),
		ackCh:   make(chan streaming.AckMessage, ackChSize),
		done:    make(chan struct{}),
		replay:  replay,
		backoff: time.Second,
		logger:  logger,
	}
}

// dial connects to the relay and starts read/write loops.
func (c *connection) dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}
	c.start(conn)
	return nil
}

// start makes conn current and runs its loops. Loops of a previous
// connection exit through its stop channel.
func (c *connection) start(conn *ws.Conn) {
	stop := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.stop = stop
	c.mu.Unlock()

	go c.writeLoop(conn, stop)
	go c.readLoop(conn)
}

// dialOnce performs a single WebSocket dial with the secret query param.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if c.secret != "" {
		q := u.Query()
		q.Set("secret", c.secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// writeLoop drains sendCh onto conn. It returns on error, shutdown, or when
// conn is replaced.
func (c *connection) writeLoop(conn *ws.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case data := <-c.sendCh:
			if err := write(conn, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				go c.reconnect(conn)
				return
			}
		}
	}
}

func write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// readLoop reads ack messages from the relay and routes them to ackCh.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			go c.reconnect(conn)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil {
			c.logger.Debug("Non-ack message received", "raw", string(message))
			continue
		}

		if ack.Type == "ack" {
			select {
			case c.ackCh <- ack:
			default:
				c.logger.Debug("Ack channel full, dropping", "for", ack.For)
			}
		}
	}
}

// reconnect replaces failed with a new connection using exponential backoff,
// replays the current layer on it and restarts the loops. A failure reported
// for a connection that is no longer current is ignored.
func (c *connection) reconnect(failed *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != failed {
		c.mu.Unlock()
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.mu.Unlock()

	backoff := c.backoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Reconnecting to map relay", "attempt", attempt)
		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		// The replay carries the whole layer, so anything queued during the
		// outage would arrive twice.
		if n := c.discardPending(); n > 0 {
			c.logger.Debug("Discarded messages queued during outage", "count", n)
		}
		if err := c.replayOn(conn); err != nil {
			c.logger.Warn("Failed to replay layer after reconnect", "error", err)
			_ = conn.Close()
			continue
		}

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			_ = conn.Close()
			return
		}

		c.start(conn)
		c.logger.Info("Map relay reconnected", "attempt", attempt)
		return
	}

	c.logger.Error("Map relay reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

func (c *connection) replayOn(conn *ws.Conn) error {
	if c.replay == nil {
		return nil
	}
	for _, data := range c.replay() {
		if err := write(conn, data); err != nil {
			return err
		}
	}
	return nil
}

// discardPending empties sendCh and returns how many messages were dropped.
func (c *connection) discardPending() int {
	n := 0
	for {
		select {
		case <-c.sendCh:
			n++
		default:
			return n
		}
	}
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (c *connection) send(data []byte) {
	select {
	case c.sendCh <- data:
	default:
		c.logger.Warn("WebSocket send channel full, dropping message")
	}
}

// sendAndWait sends data and blocks until the relay acknowledges with a
// matching ack message or the timeout expires.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// close sends a WebSocket close frame and shuts down all goroutines.
// The write loop may still be mid-message, so the frame goes out as a
// control message.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return conn.Close()
	}
	return nil
}
