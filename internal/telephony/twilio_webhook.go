package telephony

import (
	"net/http"
	"strconv"
	"strings"
)

// Callback form shapes for the subset of voice webhook fields we care about.
// The platform sends application/x-www-form-urlencoded by default.
//
// Keep these provider-adapter-only. Business decisions are made in the
// handlers using parsed values, never by sniffing raw form fields.

// VoiceForm is the routing request fired when a call leg needs dial
// instructions.
type VoiceForm struct {
	CallSid string

	// From identifies the originating leg: "client:agent_<id>" for
	// browser-originated calls, an E.164 number for inbound PSTN calls.
	From string

	// To is the requested destination: the dialed external number for
	// outbound calls, the called platform number for inbound calls.
	To string
}

// LegStatusForm is the child-leg status callback.
type LegStatusForm struct {
	CallSid       string // child (PSTN) leg
	ParentCallSid string
	CallStatus    string
	CallDuration  int
}

// AMDForm is the answering-machine-detection result callback.
type AMDForm struct {
	CallSid    string // child leg under analysis
	AnsweredBy string
}

// StatusForm is the top-level (parent leg) status callback.
type StatusForm struct {
	CallSid      string
	CallStatus   string
	CallDuration int
}

func ParseVoiceForm(r *http.Request) (VoiceForm, error) {
	if err := r.ParseForm(); err != nil {
		return VoiceForm{}, err
	}
	return VoiceForm{
		CallSid: r.PostFormValue("CallSid"),
		From:    strings.TrimSpace(r.PostFormValue("From")),
		To:      strings.TrimSpace(r.PostFormValue("To")),
	}, nil
}

func ParseLegStatusForm(r *http.Request) (LegStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return LegStatusForm{}, err
	}
	return LegStatusForm{
		CallSid:       r.PostFormValue("CallSid"),
		ParentCallSid: r.PostFormValue("ParentCallSid"),
		CallStatus:    r.PostFormValue("CallStatus"),
		CallDuration:  formSeconds(r.PostFormValue("CallDuration")),
	}, nil
}

func ParseAMDForm(r *http.Request) (AMDForm, error) {
	if err := r.ParseForm(); err != nil {
		return AMDForm{}, err
	}
	return AMDForm{
		CallSid:    r.PostFormValue("CallSid"),
		AnsweredBy: r.PostFormValue("AnsweredBy"),
	}, nil
}

func ParseStatusForm(r *http.Request) (StatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return StatusForm{}, err
	}
	return StatusForm{
		CallSid:      r.PostFormValue("CallSid"),
		CallStatus:   r.PostFormValue("CallStatus"),
		CallDuration: formSeconds(r.PostFormValue("CallDuration")),
	}, nil
}

// IsMachine reports whether the AMD classification denotes a machine or fax
// answer. "human" and "unknown" are never treated as machines.
func (f AMDForm) IsMachine() bool {
	switch f.AnsweredBy {
	case "machine_start", "machine_end_beep", "machine_end_silence", "machine_end_other", "fax":
		return true
	default:
		return false
	}
}

func formSeconds(v string) int {
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
