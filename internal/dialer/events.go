package dialer

// Event is one tagged entry on the controller's ingress queue. Session layer
// callbacks and gateway pushes both feed the same queue, so every state
// transition happens in one place, in arrival order.
type Event interface{ isEvent() }

// Session-originated events.

// SessionReady reports the session layer registered and can place calls.
type SessionReady struct{}

// SessionError reports a fatal session layer failure.
type SessionError struct{ Err error }

// CallRinging reports the outbound call is ringing at the far end. CallID
// carries the platform call id, now assigned.
type CallRinging struct{ CallID string }

// IncomingCall reports a new inbound call offered to this agent.
type IncomingCall struct {
	Call   ActiveCall
	CallID string
	From   string
}

// CallAccepted reports the local session accepted the call. Acceptance alone
// never opens the call: the far end may still be under machine analysis.
type CallAccepted struct{ CallID string }

// CallDisconnected reports the session call object ended, locally or
// remotely.
type CallDisconnected struct{ CallID string }

// Gateway-push events.

// AnsweredPush is the server's confirmation that the far end truly answered.
// This event, and only this event, opens the call.
type AnsweredPush struct{ CallID string }

// VoicemailPush reports the far end was classified as a machine.
type VoicemailPush struct{ CallID string }

// StatusPush carries the stored record state after a provider status update.
type StatusPush struct {
	CallID   string
	Status   string
	Duration int
}

func (SessionReady) isEvent()     {}
func (SessionError) isEvent()     {}
func (CallRinging) isEvent()      {}
func (IncomingCall) isEvent()     {}
func (CallAccepted) isEvent()     {}
func (CallDisconnected) isEvent() {}
func (AnsweredPush) isEvent()     {}
func (VoicemailPush) isEvent()    {}
func (StatusPush) isEvent()       {}

// Commands ride the same queue so operations and events cannot interleave
// mid-transition.

type placeCallCmd struct{ Number string }
type hangUpCmd struct{}
type toggleMuteCmd struct{}
type sendToneCmd struct{ Digit string }
type acceptIncomingCmd struct{}
type rejectIncomingCmd struct{}
type resetCmd struct{ generation uint64 }

func (placeCallCmd) isEvent()      {}
func (hangUpCmd) isEvent()         {}
func (toggleMuteCmd) isEvent()     {}
func (sendToneCmd) isEvent()       {}
func (acceptIncomingCmd) isEvent() {}
func (rejectIncomingCmd) isEvent() {}
func (resetCmd) isEvent()          {}
