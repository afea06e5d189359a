package testutil

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/tiroq/meetaudio/internal/playback"
	"github.com/tiroq/meetaudio/internal/remote"
)

// FakeMediaElement is an in-memory playback.MediaElement. Commands only
// record themselves and update properties; events fire when the test calls
// Fire, the way a real element dispatches them later.
type FakeMediaElement struct {
	mu          sync.Mutex
	src         string
	sources     []string
	currentTime float64
	duration    float64
	paused      bool
	commands    []string
	listeners   map[int]func(playback.Event)
	nextID      int
	PlayErr     error
}

// NewFakeMediaElement returns a paused element with unknown duration.
func NewFakeMediaElement() *FakeMediaElement {
	return &FakeMediaElement{
		duration:  math.NaN(),
		paused:    true,
		listeners: make(map[int]func(playback.Event)),
	}
}

func (e *FakeMediaElement) SetSource(url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.src = url
	e.sources = append(e.sources, url)
	e.commands = append(e.commands, "src")
	return nil
}

func (e *FakeMediaElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = append(e.commands, "play")
	if e.PlayErr != nil {
		return e.PlayErr
	}
	e.paused = false
	return nil
}

func (e *FakeMediaElement) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = append(e.commands, "pause")
	e.paused = true
	return nil
}

func (e *FakeMediaElement) Seek(seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = append(e.commands, "seek")
	e.currentTime = seconds
	return nil
}

func (e *FakeMediaElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTime
}

func (e *FakeMediaElement) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *FakeMediaElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *FakeMediaElement) AddEventListener(fn func(playback.Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

// SetDuration changes the duration property without firing an event, as
// when metadata loaded before anyone listened.
func (e *FakeMediaElement) SetDuration(d float64) {
	e.mu.Lock()
	e.duration = d
	e.mu.Unlock()
}

// SetCurrentTime moves the playhead without firing an event.
func (e *FakeMediaElement) SetCurrentTime(t float64) {
	e.mu.Lock()
	e.currentTime = t
	e.mu.Unlock()
}

// Fire dispatches typ with the current properties to every listener.
func (e *FakeMediaElement) Fire(typ playback.EventType) {
	e.mu.Lock()
	ev := playback.Event{Type: typ, CurrentTime: e.currentTime, Duration: e.duration, Paused: e.paused}
	fns := make([]func(playback.Event), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Listeners returns the number of registered listeners.
func (e *FakeMediaElement) Listeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

// Source returns the last source set.
func (e *FakeMediaElement) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

// Sources returns every source set, in order.
func (e *FakeMediaElement) Sources() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.sources...)
}

// Commands returns the transport commands received, in order.
func (e *FakeMediaElement) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.commands...)
}

// FakeFetcher is a remote.Fetcher backed by a map.
type FakeFetcher struct {
	mu       sync.Mutex
	Payloads map[string]FakePayload
	Err      error
	Gate     chan struct{}
	calls    int
}

// FakePayload is one stored recording.
type FakePayload struct {
	Data        []byte
	ContentType string
}

// Calls returns how many fetches were issued.
func (f *FakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FetchRecording returns the stored payload, remote.ErrNotFound for unknown
// ids, or Err when set.
func (f *FakeFetcher) FetchRecording(ctx context.Context, id string) (*remote.Payload, error) {
	f.mu.Lock()
	f.calls++
	gate := f.Gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", remote.ErrFetchFailed, ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	p, ok := f.Payloads[id]
	if !ok {
		return nil, fmt.Errorf("recording %s: %w", id, remote.ErrNotFound)
	}
	return &remote.Payload{Data: append([]byte(nil), p.Data...), ContentType: p.ContentType}, nil
}
