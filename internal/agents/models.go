package agents

import "time"

// Agent is a provisioned call-center agent.
//
// DirectNumber is the platform number assigned to this agent, if any. Inbound
// calls to that number ring this agent exclusively; outbound calls placed by
// this agent present it as caller ID.
type Agent struct {
	ID           string `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	Email        string `json:"email" db:"email"`
	PasswordHash string `json:"-" db:"password_hash"`

	DirectNumber string `json:"direct_number,omitempty" db:"direct_number"`
	Active       bool   `json:"active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ClientIdentity is the identity string the browser voice session registers
// under, and the origin identifier the platform reports for browser-originated
// call legs.
func (a Agent) ClientIdentity() string {
	return ClientIdentity(a.ID)
}

// ClientIdentity builds the browser session identity for an agent id.
func ClientIdentity(agentID string) string {
	return "agent_" + agentID
}

// AgentIDFromIdentity extracts the agent id from a browser session identity
// such as "client:agent_42" or "agent_42". Returns "" when the identity does
// not denote a browser leg.
func AgentIDFromIdentity(identity string) string {
	s := identity
	if len(s) >= 7 && s[:7] == "client:" {
		s = s[7:]
	}
	if len(s) > 6 && s[:6] == "agent_" {
		return s[6:]
	}
	return ""
}
