package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tiroq/meetaudio/internal/artifact"
	"github.com/tiroq/meetaudio/internal/codec"
	"github.com/tiroq/meetaudio/internal/diaglog"
	"github.com/tiroq/meetaudio/internal/duration"
	"github.com/tiroq/meetaudio/internal/objecturl"
)

// Options configures a Controller. Devices, Encoder and Objects are required.
type Options struct {
	Devices        MediaDevices
	Encoder        Encoder
	Objects        *objecturl.Registry
	Clock          duration.Clock
	Constraints    Constraints
	MimeTypes      []string      // preference order; defaults to codec.PreferredMimeTypes
	BitsPerSecond  int           // defaults to DefaultBitsPerSecond
	Timeslice      time.Duration // defaults to DefaultTimeslice
	SampleInterval time.Duration // defaults to duration.DefaultInterval
}

// Controller is the capture state machine. It exclusively owns the
// microphone stream of the active session and the preview object URL of the
// finished one. Safe for concurrent use; encoder and sampler callbacks
// serialise through the same lock as the public methods.
type Controller struct {
	opts    Options
	clock   duration.Clock
	sampler *duration.Sampler
	preview *objecturl.Holder

	mu        sync.Mutex
	state     State
	acquiring bool
	stopping  bool
	gen       uint64 // bumped per session; stale encoder callbacks compare against it
	sessionID string
	stream    Stream
	rec       Recorder
	mimeType  string
	chunks    [][]byte
	bytes     int
	acct      duration.Accountant
	seconds   int
	stopped   chan struct{}
	stopOnce  *sync.Once
	result    *artifact.Artifact
	lastErr   string

	subscriber atomic.Pointer[func(Status)]

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewController creates an idle controller.
func NewController(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = duration.SystemClock{}
	}
	if opts.Constraints == (Constraints{}) {
		opts.Constraints = DefaultConstraints()
	}
	if len(opts.MimeTypes) == 0 {
		opts.MimeTypes = codec.PreferredMimeTypes
	}
	if opts.BitsPerSecond <= 0 {
		opts.BitsPerSecond = DefaultBitsPerSecond
	}
	if opts.Timeslice <= 0 {
		opts.Timeslice = DefaultTimeslice
	}
	if opts.Objects == nil {
		opts.Objects = objecturl.NewRegistry()
	}

	c := &Controller{
		opts:    opts,
		clock:   opts.Clock,
		sampler: duration.NewSampler(opts.Clock, opts.SampleInterval),
		preview: objecturl.NewHolder(opts.Objects),
		state:   StateIdle,
	}
	c.sampler.Subscribe(c.onTick)
	return c
}

// SetLogger injects a diaglog.Logger for debug logging.
func (c *Controller) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

func (c *Controller) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if entry.Component == "" {
		entry.Component = diaglog.ComponentCapture
	}
	l.Log(entry)
}

// Subscribe sets the status observer. The latest observer is read on every
// change, so re-subscribing never restarts the duration sampler.
func (c *Controller) Subscribe(fn func(Status)) {
	if fn == nil {
		c.subscriber.Store(nil)
		return
	}
	c.subscriber.Store(&fn)
}

func (c *Controller) notify(st Status) {
	if fn := c.subscriber.Load(); fn != nil {
		(*fn)(st)
	}
}

// Start acquires the microphone, negotiates the encoding and begins chunk
// collection and duration sampling. Only valid from idle; otherwise it
// returns ErrSessionActive without touching the device. On failure the
// controller stays idle and Status().LastError carries a user message.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle || c.acquiring {
		state := c.state
		c.mu.Unlock()
		c.log(diaglog.LogEntry{Event: diaglog.EventCaptureRejected, Reason: "start", Payload: map[string]interface{}{"state": string(state)}})
		return ErrSessionActive
	}
	c.acquiring = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log(diaglog.LogEntry{Event: diaglog.EventCaptureStart})

	stream, err := c.opts.Devices.GetUserMedia(ctx, c.opts.Constraints)
	if err != nil {
		return c.failStart(nil, err)
	}

	mime := codec.ChooseMimeType(c.opts.Encoder, c.opts.MimeTypes)
	rec, err := c.opts.Encoder.NewRecorder(stream, RecorderOptions{
		MimeType:      mime,
		BitsPerSecond: c.opts.BitsPerSecond,
	})
	if err != nil {
		return c.failStart(stream, err)
	}
	if m := rec.MimeType(); m != "" {
		mime = m
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.sessionID = uuid.NewString()
	c.stream = stream
	c.rec = rec
	c.mimeType = mime
	c.chunks = nil
	c.bytes = 0
	c.result = nil
	c.seconds = 0
	c.acct.Start(c.clock.Now())
	c.stopped = make(chan struct{})
	c.stopOnce = &sync.Once{}
	c.state = StateRecording
	c.acquiring = false
	sessionID := c.sessionID
	c.mu.Unlock()

	err = rec.Start(c.opts.Timeslice, RecorderEvents{
		OnData:  func(b []byte) { c.onData(gen, b) },
		OnStop:  func() { c.onStop(gen) },
		OnError: func(err error) { c.onError(gen, err) },
	})
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.resetLocked()
		}
		c.mu.Unlock()
		return c.failStart(stream, err)
	}

	c.sampler.Start()
	c.log(diaglog.LogEntry{
		Event:     diaglog.EventCaptureStarted,
		SessionID: sessionID,
		Payload: map[string]interface{}{
			"mime_type": mime,
			"stream":    stream.ID(),
			"bitrate":   c.opts.BitsPerSecond,
		},
	})
	c.notify(c.Status())
	return nil
}

// failStart releases a partly acquired stream and records the error.
func (c *Controller) failStart(stream Stream, cause error) error {
	if stream != nil {
		_ = stream.Close()
	}
	err := classify(cause)

	c.mu.Lock()
	c.acquiring = false
	c.lastErr = UserMessage(err)
	st := c.statusLocked()
	c.mu.Unlock()

	c.log(diaglog.LogEntry{Event: diaglog.EventCaptureFailed, Reason: err.Error()})
	c.notify(st)
	return err
}

// Pause suspends chunk collection and freezes duration accounting. No-op
// unless recording.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.state != StateRecording || c.stopping {
		c.mu.Unlock()
		return nil
	}
	if err := c.rec.Pause(); err != nil {
		c.lastErr = "Could not pause the recording."
		c.mu.Unlock()
		c.log(diaglog.LogEntry{Event: diaglog.EventCapturePause, Reason: err.Error()})
		return fmt.Errorf("pause encoder: %w", err)
	}
	now := c.clock.Now()
	c.acct.Pause(now)
	c.seconds = c.acct.ElapsedSeconds(now)
	c.state = StatePaused
	c.sampler.Stop()
	st := c.statusLocked()
	c.mu.Unlock()

	c.log(diaglog.LogEntry{Event: diaglog.EventCapturePause, SessionID: st.SessionID, Payload: map[string]interface{}{"elapsed_s": st.DurationSeconds}})
	c.notify(st)
	return nil
}

// Resume restarts chunk collection; the paused span is excluded from the
// reported duration. No-op unless paused.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.state != StatePaused || c.stopping {
		c.mu.Unlock()
		return nil
	}
	if err := c.rec.Resume(); err != nil {
		c.lastErr = "Could not resume the recording."
		c.mu.Unlock()
		c.log(diaglog.LogEntry{Event: diaglog.EventCaptureResume, Reason: err.Error()})
		return fmt.Errorf("resume encoder: %w", err)
	}
	c.acct.Resume(c.clock.Now())
	c.state = StateRecording
	c.sampler.Start()
	st := c.statusLocked()
	paused := c.acct.PausedTotal()
	c.mu.Unlock()

	c.log(diaglog.LogEntry{Event: diaglog.EventCaptureResume, SessionID: st.SessionID, Payload: map[string]interface{}{"paused_total_ms": paused.Milliseconds()}})
	c.notify(st)
	return nil
}

// Stop finalizes the session: it asks the encoder to flush, waits for the
// final chunk, releases the microphone and assembles the artifact. The
// microphone is released even when no data was collected or ctx expires
// before the flush completes; in the latter case the artifact holds what
// arrived and the error wraps ctx.Err(). No-op (nil, nil) unless recording
// or paused.
func (c *Controller) Stop(ctx context.Context) (*artifact.Artifact, error) {
	c.mu.Lock()
	if (c.state != StateRecording && c.state != StatePaused) || c.stopping {
		c.mu.Unlock()
		return nil, nil
	}
	c.stopping = true
	gen := c.gen
	stoppedAt := c.clock.Now()
	c.seconds = int(c.acct.Stop(stoppedAt) / time.Second)
	c.sampler.Stop()
	rec, done := c.rec, c.stopped
	c.mu.Unlock()

	var flushErr error
	if err := rec.Stop(); err != nil {
		flushErr = fmt.Errorf("stop encoder: %w", err)
	} else {
		select {
		case <-done:
		case <-ctx.Done():
			flushErr = fmt.Errorf("final chunk not flushed: %w", ctx.Err())
		}
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil, ErrCleared
	}
	c.releaseMicLocked()
	a := artifact.Assemble(c.chunks, c.mimeType, c.seconds)
	a.CreatedAt = stoppedAt
	c.result = &a
	c.preview.Set(a.Data, a.ContentType())
	c.state = StateStopped
	c.stopping = false
	c.rec = nil
	st := c.statusLocked()
	c.mu.Unlock()

	entry := diaglog.LogEntry{
		Event:     diaglog.EventCaptureStop,
		SessionID: st.SessionID,
		Payload: map[string]interface{}{
			"duration_s": a.DurationSeconds,
			"bytes":      a.Size(),
			"chunks":     st.Chunks,
			"extension":  a.Extension,
		},
	}
	if flushErr != nil {
		entry.Reason = flushErr.Error()
	}
	c.log(entry)
	c.notify(st)

	out := a
	return &out, flushErr
}

// Clear releases the microphone and preview URL, discards chunks and any
// artifact, and returns to idle. Safe to call repeatedly and from any state;
// a pending acquisition is not cancelled and completes on its own.
func (c *Controller) Clear() {
	c.mu.Lock()
	rec := c.rec
	if c.stopping {
		// Stop already asked the encoder to flush; unblock its wait.
		rec = nil
		if c.stopOnce != nil {
			done := c.stopped
			c.stopOnce.Do(func() { close(done) })
		}
	}
	c.releaseMicLocked()
	hadURL := c.preview.Release()
	c.gen++
	c.resetLocked()
	st := c.statusLocked()
	c.mu.Unlock()

	if rec != nil {
		_ = rec.Stop()
	}

	c.log(diaglog.LogEntry{Event: diaglog.EventCaptureClear, Payload: map[string]interface{}{"revoked_preview": hadURL}})
	c.notify(st)
}

// resetLocked returns session fields to idle. Caller holds c.mu.
func (c *Controller) resetLocked() {
	c.sampler.Stop()
	c.state = StateIdle
	c.stopping = false
	c.sessionID = ""
	c.rec = nil
	c.stream = nil
	c.mimeType = ""
	c.chunks = nil
	c.bytes = 0
	c.seconds = 0
	c.result = nil
	c.lastErr = ""
	c.acct.Reset()
}

// releaseMicLocked closes the stream once. Caller holds c.mu.
func (c *Controller) releaseMicLocked() {
	if c.stream == nil {
		return
	}
	id := c.stream.ID()
	if err := c.stream.Close(); err != nil {
		c.log(diaglog.LogEntry{Event: diaglog.EventMicReleased, Reason: err.Error(), Payload: map[string]interface{}{"stream": id}})
	} else {
		c.log(diaglog.LogEntry{Event: diaglog.EventMicReleased, Payload: map[string]interface{}{"stream": id}})
	}
	c.stream = nil
}

func (c *Controller) onData(gen uint64, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	switch c.state {
	case StateRecording, StatePaused:
		// Encoded bytes that land after Pause belong to audio captured
		// before it; dropping them would corrupt the container.
	default:
		return
	}
	c.chunks = append(c.chunks, chunk)
	c.bytes += len(chunk)
}

func (c *Controller) onStop(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.stopOnce == nil {
		c.mu.Unlock()
		return
	}
	done := c.stopped
	c.stopOnce.Do(func() { close(done) })
	if !c.activeLocked() {
		c.mu.Unlock()
		return
	}
	if c.lastErr == "" {
		c.lastErr = "The recorder stopped unexpectedly."
	}
	st, _ := c.interruptLocked()
	c.mu.Unlock()

	c.log(diaglog.LogEntry{Component: diaglog.ComponentEncoder, Event: diaglog.EventCaptureInterrupted, SessionID: st.SessionID, Payload: map[string]interface{}{"state": string(st.State), "duration_s": st.DurationSeconds}})
	c.notify(st)
}

func (c *Controller) onError(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.lastErr = "The recorder reported an error: " + err.Error()
	sessionID := c.sessionID
	if !c.activeLocked() {
		// A requested Stop finishes through onStop.
		c.mu.Unlock()
		c.log(diaglog.LogEntry{Component: diaglog.ComponentEncoder, Event: diaglog.EventCaptureFailed, SessionID: sessionID, Reason: err.Error()})
		return
	}
	st, rec := c.interruptLocked()
	c.mu.Unlock()

	if rec != nil {
		_ = rec.Stop()
	}
	c.log(diaglog.LogEntry{Component: diaglog.ComponentEncoder, Event: diaglog.EventCaptureInterrupted, SessionID: sessionID, Reason: err.Error(), Payload: map[string]interface{}{"state": string(st.State), "duration_s": st.DurationSeconds}})
	c.notify(st)
}

// activeLocked reports a recording or paused session with no Stop in
// progress. Caller holds c.mu.
func (c *Controller) activeLocked() bool {
	return (c.state == StateRecording || c.state == StatePaused) && !c.stopping
}

// interruptLocked ends a session the encoder gave up on without a Stop
// request. Duration freezes now and the microphone is released. Collected
// data becomes a stopped artifact; without data the controller returns to
// idle. LastError survives both. Caller holds c.mu.
func (c *Controller) interruptLocked() (Status, Recorder) {
	now := c.clock.Now()
	c.seconds = int(c.acct.Stop(now) / time.Second)
	c.sampler.Stop()
	rec := c.rec
	c.rec = nil
	c.releaseMicLocked()

	if c.bytes == 0 {
		msg := c.lastErr
		c.resetLocked()
		c.lastErr = msg
		return c.statusLocked(), rec
	}
	a := artifact.Assemble(c.chunks, c.mimeType, c.seconds)
	a.CreatedAt = now
	c.result = &a
	c.preview.Set(a.Data, a.ContentType())
	c.state = StateStopped
	return c.statusLocked(), rec
}

func (c *Controller) onTick(now time.Time) {
	c.mu.Lock()
	if c.state != StateRecording || c.stopping {
		c.mu.Unlock()
		return
	}
	secs := c.acct.ElapsedSeconds(now)
	if secs == c.seconds {
		c.mu.Unlock()
		return
	}
	c.seconds = secs
	st := c.statusLocked()
	c.mu.Unlock()
	c.notify(st)
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	return Status{
		SessionID:       c.sessionID,
		State:           c.state,
		DurationSeconds: c.seconds,
		MimeType:        c.mimeType,
		PreviewURL:      c.preview.URL(),
		Chunks:          len(c.chunks),
		Bytes:           c.bytes,
		HasArtifact:     c.result != nil,
		LastError:       c.lastErr,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Artifact returns a copy of the finished artifact, or nil.
func (c *Controller) Artifact() *artifact.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return nil
	}
	a := *c.result
	return &a
}

// Elapsed returns the live active duration, excluding paused time.
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acct.Elapsed(c.clock.Now())
}
