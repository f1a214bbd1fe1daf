package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency; only the verbs this
// service emits at the webhook boundary are modeled.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlDial struct {
	XMLName        xml.Name `xml:"Dial"`
	CallerID       string   `xml:"callerId,attr,omitempty"`
	AnswerOnBridge bool     `xml:"answerOnBridge,attr,omitempty"`

	Numbers []twimlNumber `xml:"Number,omitempty"`
	Clients []twimlClient `xml:"Client,omitempty"`
}

type twimlNumber struct {
	XMLName             xml.Name `xml:"Number"`
	StatusCallback      string   `xml:"statusCallback,attr,omitempty"`
	StatusCallbackEvent string   `xml:"statusCallbackEvent,attr,omitempty"`
	MachineDetection    string   `xml:"machineDetection,attr,omitempty"`
	AMDStatusCallback   string   `xml:"amdStatusCallback,attr,omitempty"`
	Number              string   `xml:",chardata"`
}

type twimlClient struct {
	XMLName  xml.Name `xml:"Client"`
	Identity string   `xml:",chardata"`
}

// VoiceResponse accumulates verbs and renders the response document.
type VoiceResponse struct {
	verbs []any
}

func NewVoiceResponse() *VoiceResponse { return &VoiceResponse{} }

// Say queues a spoken message.
func (r *VoiceResponse) Say(text string) *VoiceResponse {
	r.verbs = append(r.verbs, twimlSay{Text: text})
	return r
}

// Hangup queues call termination.
func (r *VoiceResponse) Hangup() *VoiceResponse {
	r.verbs = append(r.verbs, twimlHangup{})
	return r
}

// DialOptions configures the outermost Dial verb.
type DialOptions struct {
	// CallerID presented to the dialed party.
	CallerID string

	// AnswerOnBridge keeps the caller hearing ringback until the dialed leg
	// answers, instead of treating the webhook response itself as an answer.
	AnswerOnBridge bool
}

// NumberTarget is a PSTN destination with per-leg callback wiring.
type NumberTarget struct {
	Number string

	// StatusCallback receives child-leg status events for this dialed leg.
	StatusCallback string
	// StatusCallbackEvents lists the leg lifecycle events to report.
	StatusCallbackEvents []string

	// MachineDetection enables AMD on the dialed leg; results arrive at
	// AMDCallback.
	MachineDetection bool
	AMDCallback      string
}

// DialNumber queues a bridged dial-out to a single PSTN number.
func (r *VoiceResponse) DialNumber(opts DialOptions, target NumberTarget) *VoiceResponse {
	n := twimlNumber{
		Number:              target.Number,
		StatusCallback:      target.StatusCallback,
		StatusCallbackEvent: strings.Join(target.StatusCallbackEvents, " "),
		AMDStatusCallback:   target.AMDCallback,
	}
	if target.MachineDetection {
		n.MachineDetection = "Enable"
	}
	r.verbs = append(r.verbs, twimlDial{
		CallerID:       opts.CallerID,
		AnswerOnBridge: opts.AnswerOnBridge,
		Numbers:        []twimlNumber{n},
	})
	return r
}

// DialClients queues a parallel ring to one or more browser sessions.
// The platform bridges the first client to accept.
func (r *VoiceResponse) DialClients(identities ...string) *VoiceResponse {
	d := twimlDial{}
	for _, id := range identities {
		d.Clients = append(d.Clients, twimlClient{Identity: id})
	}
	r.verbs = append(r.verbs, d)
	return r
}

// Render serializes the response document.
func (r *VoiceResponse) Render() (string, error) {
	if len(r.verbs) == 0 {
		return "", errors.New("telephony: empty twiml response")
	}

	doc := twimlResponse{Verbs: r.verbs}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
