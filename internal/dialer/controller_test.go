package dialer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"dialdesk/internal/calls"
)

type fakeCall struct {
	mu           sync.Mutex
	sid          string
	accepted     bool
	rejected     bool
	disconnected bool
	muted        bool
	digits       string
}

func (f *fakeCall) SID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sid
}

func (f *fakeCall) Accept() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = true
}

func (f *fakeCall) Reject() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = true
}

func (f *fakeCall) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

func (f *fakeCall) Mute(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted = on
}

func (f *fakeCall) SendDigits(d string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.digits += d
}

func (f *fakeCall) get(read func(*fakeCall) bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return read(f)
}

type fakeSession struct {
	mu   sync.Mutex
	call *fakeCall
	err  error
}

func (f *fakeSession) Connect(ctx context.Context, number string) (ActiveCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.call, nil
}

type statusUpdate struct {
	CallID string
	Status calls.CallStatus
}

type fakeRecorder struct {
	mu      sync.Mutex
	logged  []calls.CallRecord
	updates []statusUpdate
}

func (f *fakeRecorder) LogCall(ctx context.Context, rec calls.CallRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logged = append(f.logged, rec)
	return nil
}

func (f *fakeRecorder) UpdateStatus(ctx context.Context, callID string, status calls.CallStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, statusUpdate{CallID: callID, Status: status})
	return nil
}

func (f *fakeRecorder) loggedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logged)
}

func (f *fakeRecorder) lastUpdate() (statusUpdate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return statusUpdate{}, false
	}
	return f.updates[len(f.updates)-1], true
}

const testGrace = 3 * time.Second

type fixture struct {
	ctrl     *Controller
	session  *fakeSession
	recorder *fakeRecorder
	clock    *ManualClock
	call     *fakeCall
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		session:  &fakeSession{},
		recorder: &fakeRecorder{},
		clock:    NewManualClock(time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)),
		call:     &fakeCall{sid: "CA1"},
	}
	f.session.call = f.call

	f.ctrl = NewController(Config{
		Session:    f.session,
		Recorder:   f.recorder,
		Clock:      f.clock,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		GraceDelay: testGrace,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go f.ctrl.Run(ctx)

	f.ctrl.Deliver(SessionReady{})
	return f
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func (f *fixture) waitState(t *testing.T, want State) {
	t.Helper()
	waitFor(t, "state "+string(want), func() bool { return f.ctrl.Snapshot().State == want })
}

// stillIn asserts the state does not move away within a short window.
func (f *fixture) stillIn(t *testing.T, want State) {
	t.Helper()
	deadline := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(deadline) {
		if got := f.ctrl.Snapshot().State; got != want {
			t.Fatalf("state moved to %q, want it to stay %q", got, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *fixture) ringOutbound(t *testing.T, number, callID string) {
	t.Helper()
	f.ctrl.PlaceCall(number)
	f.waitState(t, StateConnecting)
	f.ctrl.Deliver(CallRinging{CallID: callID})
	f.waitState(t, StateRinging)
}

func TestOutboundCallLifecycle(t *testing.T) {
	f := newFixture(t)
	f.ringOutbound(t, "+15551234567", "CA1")

	waitFor(t, "call logged", func() bool { return f.recorder.loggedCount() == 1 })
	rec := f.recorder.logged[0]
	if rec.CallID != "CA1" || rec.Counterparty != "+15551234567" || rec.Direction != calls.DirectionOutbound {
		t.Fatalf("logged record = %+v", rec)
	}

	opened := f.clock.Now()
	f.ctrl.Deliver(AnsweredPush{CallID: "CA1"})
	f.waitState(t, StateOpen)
	if got := f.ctrl.Snapshot().OpenedAt; !got.Equal(opened) {
		t.Fatalf("OpenedAt = %v, want %v", got, opened)
	}

	f.clock.Advance(90 * time.Second)
	if got := f.ctrl.Elapsed(); got != 90*time.Second {
		t.Fatalf("Elapsed = %v, want 90s", got)
	}

	f.ctrl.Deliver(CallDisconnected{CallID: "CA1"})
	f.waitState(t, StateClosed)
	up, ok := f.recorder.lastUpdate()
	if !ok || up.CallID != "CA1" || up.Status != calls.StatusCompleted {
		t.Fatalf("terminal update = %+v, %v", up, ok)
	}

	f.clock.Advance(testGrace)
	f.waitState(t, StateIdle)
	s := f.ctrl.Snapshot()
	if s.CallID != "" || s.Muted || !s.OpenedAt.IsZero() {
		t.Fatalf("residual state after reset: %+v", s)
	}
	if f.ctrl.Elapsed() != 0 {
		t.Fatalf("Elapsed after reset = %v", f.ctrl.Elapsed())
	}
}

func TestAcceptAloneDoesNotOpen(t *testing.T) {
	f := newFixture(t)
	inbound := &fakeCall{sid: "CA2"}
	f.ctrl.Deliver(IncomingCall{Call: inbound, CallID: "CA2", From: "+15559990000"})
	f.waitState(t, StateRinging)

	f.ctrl.AcceptIncoming()
	waitFor(t, "session accept", func() bool {
		return inbound.get(func(c *fakeCall) bool { return c.accepted })
	})

	// The session-level accept fired, possibly while the far end is still
	// under machine analysis. The call must not open.
	f.ctrl.Deliver(CallAccepted{CallID: "CA2"})
	f.stillIn(t, StateRinging)
	if f.ctrl.Elapsed() != 0 {
		t.Fatalf("timing started before the answered push: %v", f.ctrl.Elapsed())
	}

	f.clock.Advance(5 * time.Second)
	opened := f.clock.Now()
	f.ctrl.Deliver(AnsweredPush{CallID: "CA2"})
	f.waitState(t, StateOpen)
	if got := f.ctrl.Snapshot().OpenedAt; !got.Equal(opened) {
		t.Fatalf("OpenedAt = %v, want the push moment %v", got, opened)
	}
}

func TestAnsweredPushForOtherCallIgnored(t *testing.T) {
	f := newFixture(t)
	f.ringOutbound(t, "+15551234567", "CA1")

	f.ctrl.Deliver(AnsweredPush{CallID: "CA-other"})
	f.stillIn(t, StateRinging)
}

func TestVoicemailBranch(t *testing.T) {
	f := newFixture(t)
	f.ringOutbound(t, "+15551234567", "CA1")

	f.ctrl.Deliver(VoicemailPush{CallID: "CA1"})
	f.waitState(t, StateVoicemail)
	if !f.call.get(func(c *fakeCall) bool { return c.disconnected }) {
		t.Fatal("session leg should be force-terminated on voicemail")
	}
	if _, ok := f.recorder.lastUpdate(); ok {
		t.Fatalf("voicemail must not issue a status update: %+v", f.recorder.updates)
	}

	// The session reports its disconnect afterwards; that must not disturb
	// the voicemail display.
	f.ctrl.Deliver(CallDisconnected{CallID: "CA1"})
	f.stillIn(t, StateVoicemail)

	f.clock.Advance(testGrace)
	f.waitState(t, StateIdle)
}

func TestPlaceCallRequiresReadySession(t *testing.T) {
	f := &fixture{
		session:  &fakeSession{call: &fakeCall{}},
		recorder: &fakeRecorder{},
		clock:    NewManualClock(time.Now()),
	}
	f.ctrl = NewController(Config{
		Session:  f.session,
		Recorder: f.recorder,
		Clock:    f.clock,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go f.ctrl.Run(ctx)

	f.ctrl.PlaceCall("+15551234567")
	f.stillIn(t, StateIdle)
}

func TestPlaceCallIgnoredWhileBusy(t *testing.T) {
	f := newFixture(t)
	f.ringOutbound(t, "+15551234567", "CA1")

	f.ctrl.PlaceCall("+15557654321")
	f.stillIn(t, StateRinging)
	if got := f.ctrl.Snapshot().Number; got != "+15551234567" {
		t.Fatalf("number = %q, original call must be untouched", got)
	}
}

func TestRemoteCancelDuringRinging(t *testing.T) {
	f := newFixture(t)
	f.ringOutbound(t, "+15551234567", "CA1")

	f.ctrl.Deliver(CallDisconnected{CallID: "CA1"})
	f.waitState(t, StateClosed)
	up, ok := f.recorder.lastUpdate()
	if !ok || up.Status != calls.StatusCanceled {
		t.Fatalf("update = %+v, %v; want canceled", up, ok)
	}
}

func TestTerminalStatusPushClosesWithoutUpdate(t *testing.T) {
	f := newFixture(t)
	f.ringOutbound(t, "+15551234567", "CA1")

	f.ctrl.Deliver(StatusPush{CallID: "CA1", Status: "no-answer"})
	f.waitState(t, StateClosed)
	if !f.call.get(func(c *fakeCall) bool { return c.disconnected }) {
		t.Fatal("local leg should be terminated")
	}
	if _, ok := f.recorder.lastUpdate(); ok {
		t.Fatalf("server-initiated terminal must not echo an update: %+v", f.recorder.updates)
	}
}

func TestCallLoggedExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.ringOutbound(t, "+15551234567", "CA1")

	f.ctrl.Deliver(CallRinging{CallID: "CA1"})
	f.ctrl.Deliver(CallAccepted{CallID: "CA1"})
	f.stillIn(t, StateRinging)

	if got := f.recorder.loggedCount(); got != 1 {
		t.Fatalf("logged %d times, want 1", got)
	}
}

func TestHangUpIdempotent(t *testing.T) {
	f := newFixture(t)

	f.ctrl.HangUp()
	f.stillIn(t, StateIdle)

	f.ringOutbound(t, "+15551234567", "CA1")
	f.ctrl.Deliver(AnsweredPush{CallID: "CA1"})
	f.waitState(t, StateOpen)

	f.ctrl.HangUp()
	waitFor(t, "disconnect", func() bool {
		return f.call.get(func(c *fakeCall) bool { return c.disconnected })
	})
	f.ctrl.HangUp()

	f.ctrl.Deliver(CallDisconnected{CallID: "CA1"})
	f.waitState(t, StateClosed)
}

func TestToggleMute(t *testing.T) {
	f := newFixture(t)
	f.ringOutbound(t, "+15551234567", "CA1")
	f.ctrl.Deliver(AnsweredPush{CallID: "CA1"})
	f.waitState(t, StateOpen)

	f.ctrl.ToggleMute()
	waitFor(t, "mute on", func() bool {
		return f.call.get(func(c *fakeCall) bool { return c.muted })
	})
	if !f.ctrl.Snapshot().Muted {
		t.Fatal("snapshot should reflect mute")
	}

	f.ctrl.ToggleMute()
	waitFor(t, "mute off", func() bool {
		return f.call.get(func(c *fakeCall) bool { return !c.muted })
	})

	// Mute is local state and must clear on reset.
	f.ctrl.ToggleMute()
	f.ctrl.Deliver(CallDisconnected{CallID: "CA1"})
	f.waitState(t, StateClosed)
	f.clock.Advance(testGrace)
	f.waitState(t, StateIdle)
	if f.ctrl.Snapshot().Muted {
		t.Fatal("mute should clear on reset")
	}
}

func TestSendToneRouting(t *testing.T) {
	f := newFixture(t)

	f.ctrl.SendTone("5")
	f.ctrl.SendTone("5")
	waitFor(t, "buffered digits", func() bool { return f.ctrl.Snapshot().DialBuffer == "55" })

	f.ringOutbound(t, "+15551234567", "CA1")
	f.ctrl.Deliver(AnsweredPush{CallID: "CA1"})
	f.waitState(t, StateOpen)

	f.ctrl.SendTone("1")
	f.ctrl.SendTone("#")
	waitFor(t, "dtmf", func() bool {
		return f.call.get(func(c *fakeCall) bool { return c.digits == "1#" })
	})
	if got := f.ctrl.Snapshot().DialBuffer; got != "55" {
		t.Fatalf("buffer = %q, in-call digits must not land in the buffer", got)
	}
}

func TestRejectIncoming(t *testing.T) {
	f := newFixture(t)
	inbound := &fakeCall{sid: "CA3"}
	f.ctrl.Deliver(IncomingCall{Call: inbound, CallID: "CA3", From: "+15559990000"})
	f.waitState(t, StateRinging)

	f.ctrl.RejectIncoming()
	f.waitState(t, StateClosed)
	if !inbound.get(func(c *fakeCall) bool { return c.rejected }) {
		t.Fatal("session reject not issued")
	}
	up, ok := f.recorder.lastUpdate()
	if !ok || up.Status != calls.StatusCanceled {
		t.Fatalf("update = %+v, %v", up, ok)
	}
}

func TestIncomingWhileBusyRejected(t *testing.T) {
	f := newFixture(t)
	f.ringOutbound(t, "+15551234567", "CA1")

	second := &fakeCall{sid: "CA9"}
	f.ctrl.Deliver(IncomingCall{Call: second, CallID: "CA9", From: "+15550001111"})
	waitFor(t, "second offer rejected", func() bool {
		return second.get(func(c *fakeCall) bool { return c.rejected })
	})
	if got := f.ctrl.Snapshot().CallID; got != "CA1" {
		t.Fatalf("active call = %q, want CA1", got)
	}
}

func TestGraceDelayIsNotEarly(t *testing.T) {
	f := newFixture(t)
	f.ringOutbound(t, "+15551234567", "CA1")
	f.ctrl.Deliver(CallDisconnected{CallID: "CA1"})
	f.waitState(t, StateClosed)

	f.clock.Advance(testGrace - time.Second)
	f.stillIn(t, StateClosed)
	f.clock.Advance(time.Second)
	f.waitState(t, StateIdle)
}

func TestSessionErrorClosesActiveCall(t *testing.T) {
	f := newFixture(t)
	f.ringOutbound(t, "+15551234567", "CA1")

	f.ctrl.Deliver(SessionError{Err: errors.New("transport lost")})
	f.waitState(t, StateClosed)

	// A new call cannot be placed until the session is ready again.
	f.clock.Advance(testGrace)
	f.waitState(t, StateIdle)
	f.ctrl.PlaceCall("+15557654321")
	f.stillIn(t, StateIdle)
}
