package gateway

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 4 << 10
	sendBuffer   = 32
)

// Client is one live connection. The hub goroutine owns status; the pumps own
// the socket.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Envelope
	log  *slog.Logger

	agentID string
	name    string
	connID  string
	status  string
}

func newClient(hub *Hub, conn *websocket.Conn, agentID, name string, log *slog.Logger) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan Envelope, sendBuffer),
		log:     log,
		agentID: agentID,
		name:    name,
		connID:  uuid.NewString(),
		status:  StatusAvailable,
	}
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type setStatusData struct {
	Status string `json:"status"`
}

// readPump consumes client frames until the connection drops, then
// unregisters.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("connection read failed", "agent_id", c.agentID, "err", err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Warn("malformed client frame", "agent_id", c.agentID, "err", err)
			continue
		}

		switch frame.Event {
		case "agent:setStatus":
			var d setStatusData
			if err := json.Unmarshal(frame.Data, &d); err != nil {
				c.log.Warn("malformed status frame", "agent_id", c.agentID, "err", err)
				continue
			}
			c.hub.SetStatus(c, d.Status)
		default:
			c.log.Warn("unknown client event", "agent_id", c.agentID, "event", frame.Event)
		}
	}
}

// writePump drains the send channel onto the socket and keeps the connection
// alive with pings. A closed send channel (displacement or hub shutdown) ends
// the connection with a close frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				c.log.Warn("connection write failed", "agent_id", c.agentID, "err", err)
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
