// Package playback binds a fetched recording to a media element and exposes
// transport controls. Transport state is never asserted by the controller:
// it is derived from the element's own event stream.
package playback

import (
	"errors"
	"math"
)

// EventType names a media element event.
type EventType string

const (
	EventPlay           EventType = "play"
	EventPause          EventType = "pause"
	EventTimeUpdate     EventType = "timeupdate"
	EventLoadedMetadata EventType = "loadedmetadata"
	EventDurationChange EventType = "durationchange"
	EventEnded          EventType = "ended"
)

// Event is one element event together with the element properties observed
// when it fired. Duration is NaN or +Inf while unknown.
type Event struct {
	Type        EventType
	CurrentTime float64
	Duration    float64
	Paused      bool
}

// MediaElement is a renderable audio element. Implementations must not call
// listeners synchronously from inside their own methods.
type MediaElement interface {
	SetSource(url string) error
	Play() error
	Pause() error
	Seek(seconds float64) error
	CurrentTime() float64
	Duration() float64
	Paused() bool
	// AddEventListener registers fn for every event and returns a function
	// that removes it.
	AddEventListener(fn func(Event)) (remove func())
}

// State is the transport state shown to the user.
type State struct {
	SourceURL     string  `json:"source_url,omitempty"`
	CurrentTime   float64 `json:"current_time"`
	Duration      float64 `json:"duration"`
	DurationKnown bool    `json:"duration_known"`
	IsPlaying     bool    `json:"is_playing"`
}

var (
	// ErrNoElement is returned by transport commands before Bind.
	ErrNoElement = errors.New("no media element bound")
	// ErrNotLoaded is returned by transport commands before Load.
	ErrNotLoaded = errors.New("no recording loaded")
	// ErrClosed is returned by a Load that was overtaken by Close.
	ErrClosed = errors.New("playback closed")
)

// Finite reports whether a media duration is usable.
func Finite(d float64) bool {
	return !math.IsNaN(d) && !math.IsInf(d, 0) && d >= 0
}
