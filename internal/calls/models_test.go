package calls

import "testing"

func TestIsTerminal(t *testing.T) {
	terminal := []CallStatus{StatusCompleted, StatusNoAnswer, StatusBusy, StatusCanceled, StatusFailed}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Fatalf("expected %s terminal", s)
		}
	}
	nonTerminal := []CallStatus{StatusInitiated, StatusRinging, StatusInProgress, StatusVoicemail}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Fatalf("expected %s not terminal", s)
		}
	}
}

func TestDirectionValid(t *testing.T) {
	if !DirectionOutbound.Valid() || !DirectionInbound.Valid() {
		t.Fatalf("expected directions valid")
	}
	if Direction("sideways").Valid() {
		t.Fatalf("expected invalid direction rejected")
	}
}
