package agents

import "testing"

func TestClientIdentity(t *testing.T) {
	a := Agent{ID: "42"}
	if got := a.ClientIdentity(); got != "agent_42" {
		t.Fatalf("unexpected identity: %q", got)
	}
}

func TestAgentIDFromIdentity(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"client:agent_7", "7"},
		{"agent_7", "7"},
		{"+15551234567", ""},
		{"client:+15551234567", ""},
		{"", ""},
		{"agent_", ""},
	}
	for _, tc := range cases {
		if got := AgentIDFromIdentity(tc.in); got != tc.want {
			t.Fatalf("AgentIDFromIdentity(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
