package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/pairpad/pairpad/internal/collab"
	"github.com/pairpad/pairpad/internal/logging"
)

const (
	// writeWait is the deadline for a single websocket write.
	writeWait = 10 * time.Second
	// pongWait is how long we wait for any traffic before declaring the
	// connection dead.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait so a ping lands before the
	// read deadline expires.
	pingPeriod = 54 * time.Second
)

var (
	errSendBufferFull   = errors.New("send buffer full")
	errConnectionClosed = errors.New("connection closed")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The HTTP layer in front of this server owns origin policy.
		return true
	},
}

// wsClient is one websocket transport session. It implements
// collab.Sender: Send enqueues into a buffered channel that writePump
// drains, so no caller ever blocks on a slow socket.
type wsClient struct {
	id   string
	conn *websocket.Conn

	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSClient(conn *websocket.Conn, sendBuffer int) *wsClient {
	return &wsClient{
		id:   ulid.Make().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send enqueues one outbound frame. It never blocks: a full buffer or a
// closed connection fails immediately and the frame is dropped, which is
// the protocol's best-effort delivery contract.
func (c *wsClient) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errConnectionClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errConnectionClosed
	default:
		return errSendBufferFull
	}
}

// close makes the client unusable for further sends and wakes writePump.
func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

// handleWebSocket upgrades the connection and hands it to the
// collaboration router for its whole lifetime.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newWSClient(conn, s.appConfig.Collab.SendBuffer)

	s.collab.HandleConnect(client.id, client)

	go client.writePump()
	go client.readPump(s.collab, s.appConfig.Collab.MaxMessageBytes)
}

// readPump reads inbound frames and feeds them to the router. It owns
// disconnect detection: when the read loop ends for any reason the
// connection is terminated and the router cleans up every room the
// client was in.
func (c *wsClient) readPump(router *collab.Router, maxMessageBytes int64) {
	defer func() {
		c.close()
		c.conn.Close()
		router.HandleDisconnect(c.id)
	}()

	c.conn.SetReadLimit(maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("clientID", c.id).Msg("websocket read error")
			}
			return
		}
		if messageType == websocket.TextMessage {
			router.HandleMessage(c.id, message)
		}
	}
}

// writePump drains the send buffer onto the socket and keeps the
// connection alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			deadline := time.Now().Add(time.Second)
			if err := c.conn.SetWriteDeadline(deadline); err == nil {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			}
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}
			// Drain whatever queued up while we were writing.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					c.close()
					return
				}
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
