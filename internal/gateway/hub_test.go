package gateway

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func newTestClient(h *Hub, agentID, name string) *Client {
	return newClient(h, nil, agentID, name, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func recv(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case env, ok := <-c.send:
		if !ok {
			t.Fatalf("send channel for %s closed unexpectedly", c.agentID)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for frame for %s", c.agentID)
		return Envelope{}
	}
}

func recvNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case env := <-c.send:
		t.Fatalf("unexpected frame for %s: %+v", c.agentID, env)
	case <-time.After(50 * time.Millisecond):
	}
}

func entries(t *testing.T, env Envelope) []PresenceEntry {
	t.Helper()
	if env.Event != "agents:list" {
		t.Fatalf("event = %q, want agents:list", env.Event)
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("payload type %T", env.Data)
	}
	list, ok := data["entries"].([]PresenceEntry)
	if !ok {
		t.Fatalf("entries type %T", data["entries"])
	}
	return list
}

func TestPresenceConnectDisconnectBroadcasts(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient(h, "a", "Avery")
	b := newTestClient(h, "b", "Blair")

	h.Register(a)
	if got := entries(t, recv(t, a)); len(got) != 1 || got[0].AgentID != "a" {
		t.Fatalf("after A connects: %+v", got)
	}

	h.Register(b)
	for _, c := range []*Client{a, b} {
		got := entries(t, recv(t, c))
		if len(got) != 2 || got[0].AgentID != "a" || got[1].AgentID != "b" {
			t.Fatalf("after B connects, %s sees: %+v", c.agentID, got)
		}
	}

	h.Unregister(a)
	if got := entries(t, recv(t, b)); len(got) != 1 || got[0].AgentID != "b" {
		t.Fatalf("after A disconnects: %+v", got)
	}
}

func TestPresenceStatusDefaultsToAvailable(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient(h, "a", "Avery")

	h.Register(a)
	got := entries(t, recv(t, a))
	if got[0].Status != StatusAvailable {
		t.Fatalf("status = %q, want %q", got[0].Status, StatusAvailable)
	}
	if got[0].Name != "Avery" || got[0].ConnID == "" {
		t.Fatalf("entry = %+v", got[0])
	}
}

func TestSetStatusRebroadcasts(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient(h, "a", "Avery")
	b := newTestClient(h, "b", "Blair")
	h.Register(a)
	recv(t, a)
	h.Register(b)
	recv(t, a)
	recv(t, b)

	h.SetStatus(a, "busy")
	for _, c := range []*Client{a, b} {
		got := entries(t, recv(t, c))
		if got[0].AgentID != "a" || got[0].Status != "busy" {
			t.Fatalf("%s sees: %+v", c.agentID, got)
		}
		if got[1].Status != StatusAvailable {
			t.Fatalf("B's status should be untouched: %+v", got)
		}
	}
}

func TestSetStatusEmptyIgnored(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient(h, "a", "Avery")
	h.Register(a)
	recv(t, a)

	h.SetStatus(a, "")
	recvNothing(t, a)
}

func TestPushToAgentTargetsOnlyThatAgent(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient(h, "a", "Avery")
	b := newTestClient(h, "b", "Blair")
	h.Register(a)
	recv(t, a)
	h.Register(b)
	recv(t, a)
	recv(t, b)

	h.PushToAgent("a", "call:answered", map[string]string{"callSid": "CA1"})

	env := recv(t, a)
	if env.Event != "call:answered" {
		t.Fatalf("event = %q", env.Event)
	}
	recvNothing(t, b)
}

func TestPushToDisconnectedAgentDropped(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient(h, "a", "Avery")
	h.Register(a)
	recv(t, a)

	h.PushToAgent("ghost", "call:status", nil)
	recvNothing(t, a)
}

func TestLastConnectionWins(t *testing.T) {
	h := newTestHub(t)
	first := newTestClient(h, "a", "Avery")
	second := newTestClient(h, "a", "Avery")

	h.Register(first)
	recv(t, first)
	h.Register(second)

	// The displaced connection's channel is closed; the rebroadcast and all
	// subsequent pushes go to the new connection only.
	if got := entries(t, recv(t, second)); len(got) != 1 {
		t.Fatalf("presence after displacement: %+v", got)
	}
	select {
	case _, ok := <-first.send:
		if ok {
			t.Fatal("displaced connection should receive no further frames")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("displaced connection's channel was not closed")
	}

	h.PushToAgent("a", "call:status", nil)
	if env := recv(t, second); env.Event != "call:status" {
		t.Fatalf("event = %q", env.Event)
	}

	// The displaced connection's pump will still call Unregister; the live
	// connection must survive it.
	h.Unregister(first)
	h.PushToAgent("a", "call:logged", nil)
	if env := recv(t, second); env.Event != "call:logged" {
		t.Fatalf("event = %q", env.Event)
	}
}

func TestStopClosesConnections(t *testing.T) {
	h := newTestHub(t)
	a := newTestClient(h, "a", "Avery")
	h.Register(a)
	recv(t, a)

	h.Stop()
	select {
	case _, ok := <-a.send:
		if ok {
			t.Fatal("expected closed channel after stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed after stop")
	}
}
