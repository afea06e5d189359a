package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tiroq/meetaudio/internal/capture"
)

// FakeDevices is a capture.MediaDevices that hands out FakeStreams.
type FakeDevices struct {
	mu       sync.Mutex
	Err      error         // returned by every acquisition when set
	Gate     chan struct{} // when set, acquisition blocks until it is closed
	acquired []*FakeStream
	last     capture.Constraints
	waiting  int
}

// GetUserMedia records the request and returns a new stream or Err.
func (d *FakeDevices) GetUserMedia(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	if d.Gate != nil {
		d.mu.Lock()
		d.waiting++
		d.mu.Unlock()
		select {
		case <-d.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = c
	if d.Err != nil {
		return nil, d.Err
	}
	s := &FakeStream{id: fmt.Sprintf("mic-%d", len(d.acquired)+1)}
	d.acquired = append(d.acquired, s)
	return s, nil
}

// Acquired returns the streams handed out so far.
func (d *FakeDevices) Acquired() []*FakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeStream(nil), d.acquired...)
}

// Waiting returns how many acquisitions have blocked on Gate.
func (d *FakeDevices) Waiting() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waiting
}

// LastConstraints returns the constraints of the latest request.
func (d *FakeDevices) LastConstraints() capture.Constraints {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// FakeStream counts Close calls.
type FakeStream struct {
	id     string
	mu     sync.Mutex
	closes int
}

func (s *FakeStream) ID() string { return s.id }

func (s *FakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// Closes returns how many times Close was called.
func (s *FakeStream) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// FakeEncoder is a capture.Encoder with a fixed capability set.
type FakeEncoder struct {
	mu        sync.Mutex
	Supported map[string]bool
	NewErr    error
	StartErr  error
	PauseErr  error
	// HoldStop keeps recorders from ever delivering OnStop.
	HoldStop bool
	// Final is delivered as the last chunk after Stop.
	Final     []byte
	recorders []*FakeRecorder
}

// NewFakeEncoder supports the given types.
func NewFakeEncoder(types ...string) *FakeEncoder {
	e := &FakeEncoder{Supported: map[string]bool{}}
	for _, t := range types {
		e.Supported[t] = true
	}
	return e
}

func (e *FakeEncoder) IsTypeSupported(mimeType string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Supported[mimeType]
}

func (e *FakeEncoder) NewRecorder(s capture.Stream, opts capture.RecorderOptions) (capture.Recorder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.NewErr != nil {
		return nil, e.NewErr
	}
	mime := opts.MimeType
	if mime == "" {
		mime = "audio/webm"
	}
	r := &FakeRecorder{
		Stream:   s,
		Options:  opts,
		mime:     mime,
		startErr: e.StartErr,
		pauseErr: e.PauseErr,
		holdStop: e.HoldStop,
		final:    e.Final,
	}
	e.recorders = append(e.recorders, r)
	return r, nil
}

// Recorders returns the recorders created so far.
func (e *FakeEncoder) Recorders() []*FakeRecorder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*FakeRecorder(nil), e.recorders...)
}

// Last returns the most recent recorder, or nil.
func (e *FakeEncoder) Last() *FakeRecorder {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.recorders) == 0 {
		return nil
	}
	return e.recorders[len(e.recorders)-1]
}

// FakeRecorder is driven by the test through Emit.
type FakeRecorder struct {
	Stream  capture.Stream
	Options capture.RecorderOptions

	mu        sync.Mutex
	mime      string
	ev        capture.RecorderEvents
	timeslice time.Duration
	started   bool
	paused    bool
	stops     int
	startErr  error
	pauseErr  error
	holdStop  bool
	final     []byte
}

func (r *FakeRecorder) MimeType() string { return r.mime }

func (r *FakeRecorder) Start(timeslice time.Duration, ev capture.RecorderEvents) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.ev = ev
	r.timeslice = timeslice
	r.started = true
	return nil
}

func (r *FakeRecorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pauseErr != nil {
		return r.pauseErr
	}
	r.paused = true
	return nil
}

func (r *FakeRecorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = false
	return nil
}

// Stop delivers the final chunk and OnStop from another goroutine.
func (r *FakeRecorder) Stop() error {
	r.mu.Lock()
	r.stops++
	ev, final, hold := r.ev, r.final, r.holdStop
	r.mu.Unlock()

	go func() {
		if len(final) > 0 && ev.OnData != nil {
			ev.OnData(final)
		}
		if !hold && ev.OnStop != nil {
			ev.OnStop()
		}
	}()
	return nil
}

// Emit delivers a data-available event.
func (r *FakeRecorder) Emit(chunk []byte) {
	r.mu.Lock()
	ev := r.ev
	r.mu.Unlock()
	if ev.OnData != nil {
		ev.OnData(chunk)
	}
}

// Fail delivers an error event.
func (r *FakeRecorder) Fail(err error) {
	r.mu.Lock()
	ev := r.ev
	r.mu.Unlock()
	if ev.OnError != nil {
		ev.OnError(err)
	}
}

// Exit delivers OnStop without a Stop call, like an encoder process that
// quit on its own.
func (r *FakeRecorder) Exit() {
	r.mu.Lock()
	ev := r.ev
	r.mu.Unlock()
	if ev.OnStop != nil {
		ev.OnStop()
	}
}

// Paused reports whether Pause was the last transport call.
func (r *FakeRecorder) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// Stops returns how many times Stop was called.
func (r *FakeRecorder) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

// Timeslice returns the timeslice passed to Start.
func (r *FakeRecorder) Timeslice() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeslice
}
