package dialer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dialdesk/internal/calls"
)

// State is the controller's observable phase.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateRinging    State = "ringing"
	StateOpen       State = "open"
	StateClosed     State = "closed"
	StateVoicemail  State = "voicemail"
)

// Snapshot is the observable call state. OpenedAt is zero until the call
// opens; it marks the exact moment the answered push arrived.
type Snapshot struct {
	State      State
	CallID     string
	Number     string
	Direction  calls.Direction
	Muted      bool
	OpenedAt   time.Time
	DialBuffer string
}

// Config assembles a Controller.
type Config struct {
	Session  Session
	Recorder Recorder
	Clock    Clock
	Logger   *slog.Logger

	// GraceDelay is how long closed/voicemail is displayed before the
	// controller resets to idle. Defaults to 3 seconds.
	GraceDelay time.Duration

	// QueueSize bounds the ingress queue. Defaults to 64.
	QueueSize int
}

// Controller merges session layer callbacks and gateway pushes into a single
// call state machine. Everything flows through one ingress queue consumed by
// the Run goroutine, so transitions cannot interleave. Two rules anchor the
// design:
//
//   - A local "accepted" event never opens the call. The session accepts
//     while the far end may still be under machine analysis; only the
//     server's answered push opens the call, and the duration display starts
//     at exactly that transition.
//   - No locally measured duration is ever reported. The terminal status
//     update carries no duration; the server's figure is authoritative.
type Controller struct {
	session  Session
	recorder Recorder
	clock    Clock
	log      *slog.Logger
	grace    time.Duration

	events chan Event
	done   chan struct{}
	once   sync.Once

	mu   sync.RWMutex
	snap Snapshot

	// Run-goroutine state.
	ctx        context.Context
	call       ActiveCall
	ready      bool
	logged     bool
	generation uint64
	resetTimer Timer
}

func NewController(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = NewClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = 3 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Controller{
		session:  cfg.Session,
		recorder: cfg.Recorder,
		clock:    cfg.Clock,
		log:      cfg.Logger,
		grace:    cfg.GraceDelay,
		events:   make(chan Event, cfg.QueueSize),
		done:     make(chan struct{}),
		snap:     Snapshot{State: StateIdle},
	}
}

// Run consumes the ingress queue until the context ends. Call it on its own
// goroutine.
func (c *Controller) Run(ctx context.Context) {
	c.ctx = ctx
	defer c.once.Do(func() { close(c.done) })

	for {
		select {
		case ev := <-c.events:
			c.apply(ev)
		case <-ctx.Done():
			return
		}
	}
}

// Deliver posts an event onto the ingress queue. Session adapters and the
// gateway subscription both call it.
func (c *Controller) Deliver(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Elapsed reports the open-call duration for display. Zero unless the call
// is open.
func (c *Controller) Elapsed() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap.State != StateOpen || c.snap.OpenedAt.IsZero() {
		return 0
	}
	return c.clock.Now().Sub(c.snap.OpenedAt)
}

// PlaceCall dials a number. Ignored unless the session is ready and no call
// is in flight.
func (c *Controller) PlaceCall(number string) { c.Deliver(placeCallCmd{Number: number}) }

// HangUp ends the current call. Idempotent; a no-op when idle.
func (c *Controller) HangUp() { c.Deliver(hangUpCmd{}) }

// ToggleMute flips the local mute flag.
func (c *Controller) ToggleMute() { c.Deliver(toggleMuteCmd{}) }

// SendTone routes a digit to the open call as DTMF, or appends it to the
// dial buffer when no call is open.
func (c *Controller) SendTone(digit string) { c.Deliver(sendToneCmd{Digit: digit}) }

// AcceptIncoming accepts a ringing inbound call. The call does not open
// until the server confirms the bridge.
func (c *Controller) AcceptIncoming() { c.Deliver(acceptIncomingCmd{}) }

// RejectIncoming declines a ringing inbound call.
func (c *Controller) RejectIncoming() { c.Deliver(rejectIncomingCmd{}) }

// ClearDialBuffer empties the buffered digits.
func (c *Controller) ClearDialBuffer() {
	c.mu.Lock()
	c.snap.DialBuffer = ""
	c.mu.Unlock()
}

func (c *Controller) apply(ev Event) {
	switch ev := ev.(type) {
	case SessionReady:
		c.ready = true

	case SessionError:
		c.log.Error("session failed", "err", ev.Err)
		c.ready = false
		if st := c.state(); st == StateConnecting || st == StateRinging || st == StateOpen {
			c.toClosed(st == StateOpen)
		}

	case placeCallCmd:
		c.placeCall(ev.Number)

	case CallRinging:
		if c.state() != StateConnecting {
			return
		}
		c.update(func(s *Snapshot) {
			s.State = StateRinging
			s.CallID = ev.CallID
		})
		c.logCallOnce()

	case IncomingCall:
		c.incomingCall(ev)

	case acceptIncomingCmd:
		s := c.Snapshot()
		if s.State == StateRinging && s.Direction == calls.DirectionInbound && c.call != nil {
			c.call.Accept()
		}

	case rejectIncomingCmd:
		s := c.Snapshot()
		if s.State == StateRinging && s.Direction == calls.DirectionInbound && c.call != nil {
			c.call.Reject()
			c.reportStatus(calls.StatusCanceled)
			c.toClosedSilently()
		}

	case CallAccepted:
		// Necessary but not sufficient: record the call id if this is the
		// first event carrying it, and stay in ringing.
		if c.state() != StateRinging {
			return
		}
		if ev.CallID != "" && c.Snapshot().CallID == "" {
			c.update(func(s *Snapshot) { s.CallID = ev.CallID })
			c.logCallOnce()
		}

	case AnsweredPush:
		s := c.Snapshot()
		if s.State != StateRinging || ev.CallID != s.CallID {
			c.log.Warn("answered push ignored", "state", s.State, "call_id", ev.CallID)
			return
		}
		now := c.clock.Now()
		c.update(func(s *Snapshot) {
			s.State = StateOpen
			s.OpenedAt = now
		})
		c.log.Info("call opened", "call_id", s.CallID)

	case VoicemailPush:
		s := c.Snapshot()
		if ev.CallID != s.CallID || (s.State != StateRinging && s.State != StateConnecting) {
			return
		}
		if c.call != nil {
			c.call.Disconnect()
		}
		c.update(func(s *Snapshot) { s.State = StateVoicemail })
		c.scheduleReset()

	case hangUpCmd:
		if c.call != nil {
			c.call.Disconnect()
		}

	case CallDisconnected:
		c.callDisconnected()

	case StatusPush:
		c.statusPush(ev)

	case toggleMuteCmd:
		c.update(func(s *Snapshot) { s.Muted = !s.Muted })
		if c.call != nil {
			c.call.Mute(c.Snapshot().Muted)
		}

	case sendToneCmd:
		if c.state() == StateOpen && c.call != nil {
			c.call.SendDigits(ev.Digit)
			return
		}
		c.update(func(s *Snapshot) { s.DialBuffer += ev.Digit })

	case resetCmd:
		if ev.generation != c.generation {
			return
		}
		if st := c.state(); st != StateClosed && st != StateVoicemail {
			return
		}
		c.toIdle()
	}
}

func (c *Controller) placeCall(number string) {
	if !c.ready || c.state() != StateIdle || number == "" {
		c.log.Warn("place call ignored", "state", c.state(), "ready", c.ready)
		return
	}

	call, err := c.session.Connect(c.ctx, number)
	if err != nil {
		c.log.Error("outbound connect failed", "err", err)
		return
	}
	c.call = call
	c.update(func(s *Snapshot) {
		s.State = StateConnecting
		s.Number = number
		s.Direction = calls.DirectionOutbound
	})
}

func (c *Controller) incomingCall(ev IncomingCall) {
	if c.state() != StateIdle {
		// Single-call capacity is the session layer's job; if an offer leaks
		// through anyway, decline it rather than disturb the active call.
		ev.Call.Reject()
		return
	}
	c.call = ev.Call
	c.update(func(s *Snapshot) {
		s.State = StateRinging
		s.CallID = ev.CallID
		s.Number = ev.From
		s.Direction = calls.DirectionInbound
	})
	c.logCallOnce()
}

func (c *Controller) callDisconnected() {
	switch c.state() {
	case StateOpen:
		c.toClosed(true)
	case StateConnecting, StateRinging:
		c.toClosed(false)
	default:
		// Voicemail forced the disconnect, or the call is already closed.
	}
}

func (c *Controller) statusPush(ev StatusPush) {
	s := c.Snapshot()
	if ev.CallID != s.CallID || s.CallID == "" {
		return
	}
	if !calls.CallStatus(ev.Status).IsTerminal() {
		return
	}
	switch s.State {
	case StateConnecting, StateRinging, StateOpen:
		// The server already holds the terminal status; end the local leg
		// without issuing another update.
		if c.call != nil {
			c.call.Disconnect()
		}
		c.toClosedSilently()
	}
}

// toClosed ends the call locally and issues the best-effort terminal update.
// No duration accompanies it.
func (c *Controller) toClosed(wasOpen bool) {
	if wasOpen {
		c.reportStatus(calls.StatusCompleted)
	} else {
		c.reportStatus(calls.StatusCanceled)
	}
	c.toClosedSilently()
}

func (c *Controller) toClosedSilently() {
	c.update(func(s *Snapshot) { s.State = StateClosed })
	c.scheduleReset()
}

func (c *Controller) toIdle() {
	c.call = nil
	c.logged = false
	c.update(func(s *Snapshot) {
		buf := s.DialBuffer
		*s = Snapshot{State: StateIdle, DialBuffer: buf}
	})
}

func (c *Controller) scheduleReset() {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
	}
	c.generation++
	gen := c.generation
	c.resetTimer = c.clock.AfterFunc(c.grace, func() {
		c.Deliver(resetCmd{generation: gen})
	})
}

// logCallOnce persists the record the first time a platform call id is
// known. Repeated ringing or accept events are absorbed here.
func (c *Controller) logCallOnce() {
	s := c.Snapshot()
	if c.logged || s.CallID == "" || c.recorder == nil {
		return
	}
	rec := calls.CallRecord{
		CallID:       s.CallID,
		Counterparty: s.Number,
		Direction:    s.Direction,
		Status:       calls.StatusRinging,
	}
	if err := c.recorder.LogCall(c.ctx, rec); err != nil {
		c.log.Error("call log failed", "call_id", s.CallID, "err", err)
		return
	}
	c.logged = true
}

func (c *Controller) reportStatus(status calls.CallStatus) {
	s := c.Snapshot()
	if s.CallID == "" || c.recorder == nil {
		return
	}
	if err := c.recorder.UpdateStatus(c.ctx, s.CallID, status); err != nil {
		c.log.Warn("status update failed", "call_id", s.CallID, "status", status, "err", err)
	}
}

func (c *Controller) state() State { return c.Snapshot().State }

func (c *Controller) update(f func(*Snapshot)) {
	c.mu.Lock()
	f(&c.snap)
	c.mu.Unlock()
}
