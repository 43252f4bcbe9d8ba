package queue

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// WSChannel adapts a websocket connection to Channel. Send only queues the snapshot;
// WritePump owns all writes to the connection.
type WSChannel struct {
	conn         *websocket.Conn
	send         chan Snapshot
	writeTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// NewWSChannel wraps conn with a send buffer of the given size.
func NewWSChannel(conn *websocket.Conn, buffer int, writeTimeout time.Duration) *WSChannel {
	if buffer < 1 {
		buffer = 1
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WSChannel{
		conn:         conn,
		send:         make(chan Snapshot, buffer),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// Send implements Channel. A full buffer means the peer is too slow and the channel
// should be dropped.
func (c *WSChannel) Send(snapshot Snapshot) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.send <- snapshot:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close implements Channel. The write pump notices and closes the connection.
func (c *WSChannel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Done is closed once the channel is closed.
func (c *WSChannel) Done() <-chan struct{} {
	return c.done
}

// WritePump writes queued snapshots and keepalive pings until the channel is closed or a
// write fails. The connection is closed on return.
func (c *WSChannel) WritePump() error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeTimeout),
			)
			return nil
		case snapshot := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return err
			}
			if err := c.conn.WriteJSON(snapshot); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				return err
			}
		}
	}
}

// ReadPump discards inbound frames and returns once the peer disconnects.
func (c *WSChannel) ReadPump() error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			return nil
		}
	}
}
