// Package wsmedia drives a browser <audio> element over a websocket so the
// playback controller can bind to it like any other media element.
//
// The wire protocol mirrors a small request/event RPC: the server greets
// with Hello, the page answers Identify, the server confirms with
// Identified. Afterwards the server sends Requests (SetSource, Play, Pause,
// Seek), the page answers each with a RequestResponse and pushes Events
// carrying a snapshot of the element properties.
package wsmedia

import (
	"encoding/json"
	"math"

	"github.com/tiroq/meetaudio/internal/playback"
)

// ProtocolVersion is bumped on incompatible wire changes.
const ProtocolVersion = 1

// OpCodes for the websocket protocol.
const (
	OpHello           = 0
	OpIdentify        = 1
	OpIdentified      = 2
	OpEvent           = 5
	OpRequest         = 6
	OpRequestResponse = 7
)

// CloseProtocolMismatch is the close code sent to a page speaking another
// protocol version.
const CloseProtocolMismatch = 4010

// Request types.
const (
	RequestSetSource = "SetSource"
	RequestPlay      = "Play"
	RequestPause     = "Pause"
	RequestSeek      = "Seek"
)

// Message is the envelope of every frame.
type Message struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type HelloData struct {
	ProtocolVersion int    `json:"protocolVersion"`
	Session         string `json:"session"`
}

type IdentifyData struct {
	ProtocolVersion int    `json:"protocolVersion"`
	UserAgent       string `json:"userAgent,omitempty"`
}

type IdentifiedData struct {
	Session string `json:"session"`
}

// EventData is an element event. Duration is null while the element reports
// NaN or Infinity, which JSON cannot carry.
type EventData struct {
	Type        string   `json:"type"`
	CurrentTime float64  `json:"currentTime"`
	Duration    *float64 `json:"duration"`
	Paused      bool     `json:"paused"`
}

type Request struct {
	RequestType string      `json:"requestType"`
	RequestID   string      `json:"requestId"`
	RequestData interface{} `json:"requestData,omitempty"`
}

type Response struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment,omitempty"`
	} `json:"requestStatus"`
}

type SetSourceData struct {
	URL string `json:"url"`
}

type SeekData struct {
	Seconds float64 `json:"seconds"`
}

// Encode wraps d in an envelope with op.
func Encode(op int, d interface{}) (Message, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return Message{}, err
	}
	return Message{Op: op, D: raw}, nil
}

func (e EventData) toEvent() playback.Event {
	d := math.NaN()
	if e.Duration != nil {
		d = *e.Duration
	}
	return playback.Event{
		Type:        playback.EventType(e.Type),
		CurrentTime: e.CurrentTime,
		Duration:    d,
		Paused:      e.Paused,
	}
}

// DurationValue converts an element duration to its wire form.
func DurationValue(d float64) *float64 {
	if !playback.Finite(d) {
		return nil
	}
	return &d
}

func decode(m Message, v interface{}) error {
	return json.Unmarshal(m.D, v)
}
