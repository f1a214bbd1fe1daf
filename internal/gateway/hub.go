package gateway

import (
	"log/slog"
	"sort"
	"sync"

	"dialdesk/pkg/metrics"
)

// Envelope is the wire frame for both directions of the channel.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// PresenceEntry describes one connected agent. Presence is reconstructed
// entirely from live connections and is never read from persistent storage.
type PresenceEntry struct {
	AgentID string `json:"agentId"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	ConnID  string `json:"connId"`
}

const StatusAvailable = "available"

type targetedPush struct {
	agentID string
	env     Envelope
}

type statusChange struct {
	client *Client
	status string
}

// Hub owns the live connection set. All mutation of the set and all fan-out
// happens on the Run goroutine; the exported methods only post commands, so
// no state here needs a lock.
type Hub struct {
	log *slog.Logger

	register   chan *Client
	unregister chan *Client
	pushes     chan targetedPush
	statuses   chan statusChange

	done chan struct{}
	once sync.Once

	// keyed by agent id; one connection per agent, last connection wins
	clients map[string]*Client
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		pushes:     make(chan targetedPush, 64),
		statuses:   make(chan statusChange),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
	}
}

// Run processes hub commands until Stop. Call it on its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case p := <-h.pushes:
			h.deliver(p)
		case s := <-h.statuses:
			h.applyStatus(s)
		case <-h.done:
			for _, c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[string]*Client)
			metrics.ConnectedAgents.Set(0)
			return
		}
	}
}

// Stop shuts the hub down and releases every connection.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Register joins a connection to its agent-scoped channel.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a connection. Safe to call for a connection that was
// already displaced by a newer one.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// PushToAgent routes a server-originated event to the agent's live
// connection, if any. Events for disconnected agents are dropped silently:
// the client resynchronizes from the REST API on reconnect.
func (h *Hub) PushToAgent(agentID, event string, payload any) {
	p := targetedPush{agentID: agentID, env: Envelope{Event: event, Data: payload}}
	select {
	case h.pushes <- p:
	case <-h.done:
	}
}

// SetStatus applies an agent-originated availability change.
func (h *Hub) SetStatus(c *Client, status string) {
	if status == "" {
		return
	}
	select {
	case h.statuses <- statusChange{client: c, status: status}:
	case <-h.done:
	}
}

func (h *Hub) addClient(c *Client) {
	if prev, ok := h.clients[c.agentID]; ok {
		// Last connection wins: the displaced connection's write pump drains
		// and closes the socket once its send channel closes.
		h.log.Info("displacing previous connection", "agent_id", c.agentID, "conn_id", prev.connID)
		close(prev.send)
	}
	h.clients[c.agentID] = c
	metrics.ConnectedAgents.Set(float64(len(h.clients)))
	h.log.Info("agent connected", "agent_id", c.agentID, "conn_id", c.connID)
	h.broadcastPresence()
}

func (h *Hub) removeClient(c *Client) {
	cur, ok := h.clients[c.agentID]
	if !ok || cur != c {
		// Already displaced; its send channel is closed.
		return
	}
	delete(h.clients, c.agentID)
	close(c.send)
	metrics.ConnectedAgents.Set(float64(len(h.clients)))
	h.log.Info("agent disconnected", "agent_id", c.agentID, "conn_id", c.connID)
	h.broadcastPresence()
}

func (h *Hub) deliver(p targetedPush) {
	c, ok := h.clients[p.agentID]
	if !ok {
		metrics.DroppedPushesTotal.Inc()
		return
	}
	h.send(c, p.env)
}

func (h *Hub) applyStatus(s statusChange) {
	cur, ok := h.clients[s.client.agentID]
	if !ok || cur != s.client {
		return
	}
	cur.status = s.status
	h.broadcastPresence()
}

// broadcastPresence sends the full presence set to every connected party.
func (h *Hub) broadcastPresence() {
	entries := make([]PresenceEntry, 0, len(h.clients))
	for _, c := range h.clients {
		entries = append(entries, PresenceEntry{
			AgentID: c.agentID,
			Name:    c.name,
			Status:  c.status,
			ConnID:  c.connID,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].AgentID < entries[j].AgentID })

	env := Envelope{Event: "agents:list", Data: map[string]any{"entries": entries}}
	for _, c := range h.clients {
		h.send(c, env)
	}
}

// send enqueues without blocking the hub goroutine. A full buffer means the
// connection's write pump has stalled; the frame is dropped rather than
// stalling every other agent's delivery.
func (h *Hub) send(c *Client, env Envelope) {
	select {
	case c.send <- env:
		metrics.PushedEventsTotal.WithLabelValues(env.Event).Inc()
	default:
		metrics.DroppedPushesTotal.Inc()
		h.log.Warn("send buffer full, frame dropped", "agent_id", c.agentID, "event", env.Event)
	}
}
