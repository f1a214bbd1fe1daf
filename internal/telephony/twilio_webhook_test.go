package telephony

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func formRequest(t *testing.T, form url.Values) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestParseVoiceForm(t *testing.T) {
	f, err := ParseVoiceForm(formRequest(t, url.Values{
		"CallSid": {"CA123"},
		"From":    {" client:agent_a1 "},
		"To":      {"+15551234567"},
	}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.From != "client:agent_a1" {
		t.Fatalf("From = %q, want trimmed identity", f.From)
	}
	if f.CallSid != "CA123" || f.To != "+15551234567" {
		t.Fatalf("unexpected form: %+v", f)
	}
}

func TestParseLegStatusForm(t *testing.T) {
	f, err := ParseLegStatusForm(formRequest(t, url.Values{
		"CallSid":       {"CA-child"},
		"ParentCallSid": {"CA-parent"},
		"CallStatus":    {"completed"},
		"CallDuration":  {"42"},
	}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.CallSid != "CA-child" || f.ParentCallSid != "CA-parent" || f.CallDuration != 42 {
		t.Fatalf("unexpected form: %+v", f)
	}
}

func TestParseLegStatusFormBadDuration(t *testing.T) {
	cases := []string{"", "abc", "-5"}
	for _, v := range cases {
		f, err := ParseLegStatusForm(formRequest(t, url.Values{
			"CallSid":      {"CA-child"},
			"CallDuration": {v},
		}))
		if err != nil {
			t.Fatalf("parse %q: %v", v, err)
		}
		if f.CallDuration != 0 {
			t.Errorf("CallDuration(%q) = %d, want 0", v, f.CallDuration)
		}
	}
}

func TestAMDFormIsMachine(t *testing.T) {
	cases := []struct {
		answeredBy string
		want       bool
	}{
		{"machine_start", true},
		{"machine_end_beep", true},
		{"machine_end_silence", true},
		{"machine_end_other", true},
		{"fax", true},
		{"human", false},
		{"unknown", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := (AMDForm{AnsweredBy: tc.answeredBy}).IsMachine(); got != tc.want {
			t.Errorf("IsMachine(%q) = %v, want %v", tc.answeredBy, got, tc.want)
		}
	}
}
