package playback

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/tiroq/meetaudio/internal/diaglog"
	"github.com/tiroq/meetaudio/internal/objecturl"
	"github.com/tiroq/meetaudio/internal/remote"
)

// Options configures a Controller. Fetcher is required.
type Options struct {
	Fetcher remote.Fetcher
	Objects *objecturl.Registry
	// Resolve maps an object URL to the address the element loads, e.g. an
	// HTTP path on the local blob server. Defaults to the identity.
	Resolve func(objectURL string) string
}

// Controller is one playback session. Safe for concurrent use.
type Controller struct {
	fetcher remote.Fetcher
	holder  *objecturl.Holder
	resolve func(string) string
	loads   singleflight.Group

	mu         sync.Mutex
	el         MediaElement
	removeFn   func()
	bindGen    uint64 // bumped per Bind/Close; events from older elements are dropped
	loadGen    uint64 // bumped per Close; loads that straddle it are discarded
	artifactID string
	state      State

	subscriber atomic.Pointer[func(State)]

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewController creates an unbound, unloaded controller.
func NewController(opts Options) *Controller {
	if opts.Objects == nil {
		opts.Objects = objecturl.NewRegistry()
	}
	if opts.Resolve == nil {
		opts.Resolve = func(u string) string { return u }
	}
	return &Controller{
		fetcher: opts.Fetcher,
		holder:  objecturl.NewHolder(opts.Objects),
		resolve: opts.Resolve,
	}
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
		entry.Component = diaglog.ComponentPlayback
	}
	l.Log(entry)
}

// Subscribe sets the state observer; the latest observer receives every
// change.
func (c *Controller) Subscribe(fn func(State)) {
	if fn == nil {
		c.subscriber.Store(nil)
		return
	}
	c.subscriber.Store(&fn)
}

func (c *Controller) notify(st State) {
	if fn := c.subscriber.Load(); fn != nil {
		(*fn)(st)
	}
}

// Load fetches artifactID, wraps it in an object URL and binds it to the
// current element. Loading is idempotent: once a source is bound, further
// calls return it without fetching, and concurrent first calls share one
// fetch. Errors are remote.ErrNotFound or wrap remote.ErrFetchFailed; state
// is unchanged on failure.
func (c *Controller) Load(ctx context.Context, artifactID string) (string, error) {
	c.mu.Lock()
	if c.state.SourceURL != "" {
		url := c.state.SourceURL
		c.mu.Unlock()
		return url, nil
	}
	gen := c.loadGen
	c.mu.Unlock()

	v, err, _ := c.loads.Do(artifactID, func() (interface{}, error) {
		return c.load(ctx, artifactID, gen)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Controller) load(ctx context.Context, artifactID string, gen uint64) (string, error) {
	c.log(diaglog.LogEntry{Event: diaglog.EventPlaybackLoad, SessionID: artifactID})

	p, err := c.fetcher.FetchRecording(ctx, artifactID)
	if err != nil {
		c.log(diaglog.LogEntry{Event: diaglog.EventPlaybackLoad, SessionID: artifactID, Reason: err.Error()})
		return "", err
	}

	c.mu.Lock()
	if c.loadGen != gen {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if c.state.SourceURL != "" {
		url := c.state.SourceURL
		c.mu.Unlock()
		return url, nil
	}
	contentType := p.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url := c.holder.Set(p.Data, contentType)
	c.artifactID = artifactID
	c.state.SourceURL = url
	el := c.el
	st := c.state
	c.mu.Unlock()

	if el != nil {
		if err := el.SetSource(c.resolve(url)); err != nil {
			c.log(diaglog.LogEntry{Event: diaglog.EventPlaybackBind, SessionID: artifactID, Reason: err.Error()})
		}
	}
	c.log(diaglog.LogEntry{
		Event:     diaglog.EventPlaybackLoad,
		SessionID: artifactID,
		Payload:   map[string]interface{}{"bytes": len(p.Data), "content_type": contentType, "url": url},
	})
	c.notify(st)
	return url, nil
}

// Bind attaches the controller to el. Every listener on the previously bound
// element is removed first. If el already reports a finite duration it is
// adopted at once, since its metadata events may have fired before the
// listener existed. Bind(nil) only detaches.
func (c *Controller) Bind(el MediaElement) {
	c.mu.Lock()
	c.bindGen++
	gen := c.bindGen
	prevRemove := c.removeFn
	c.removeFn = nil
	c.el = el
	url := c.state.SourceURL
	c.mu.Unlock()

	if prevRemove != nil {
		prevRemove()
	}
	if el == nil {
		c.log(diaglog.LogEntry{Event: diaglog.EventPlaybackBind, Payload: map[string]interface{}{"detached": true}})
		return
	}

	remove := el.AddEventListener(func(ev Event) { c.reconcile(gen, ev) })
	dur, cur, paused := el.Duration(), el.CurrentTime(), el.Paused()

	c.mu.Lock()
	if c.bindGen != gen {
		// A newer Bind or Close won the race.
		c.mu.Unlock()
		remove()
		return
	}
	c.removeFn = remove
	c.state.CurrentTime = cur
	c.state.IsPlaying = !paused
	if Finite(dur) {
		c.state.Duration = dur
		c.state.DurationKnown = true
	} else {
		c.state.Duration = 0
		c.state.DurationKnown = false
	}
	st := c.state
	c.mu.Unlock()

	if url != "" {
		if err := el.SetSource(c.resolve(url)); err != nil {
			c.log(diaglog.LogEntry{Event: diaglog.EventPlaybackBind, Reason: err.Error()})
		}
	}
	c.log(diaglog.LogEntry{Event: diaglog.EventPlaybackBind, Payload: map[string]interface{}{"duration_known": st.DurationKnown, "source": url}})
	c.notify(st)
}

// reconcile folds one element event into the transport state.
func (c *Controller) reconcile(gen uint64, ev Event) {
	c.mu.Lock()
	if gen != c.bindGen {
		c.mu.Unlock()
		return
	}
	probeFailed := false
	switch ev.Type {
	case EventPlay:
		c.state.IsPlaying = true
	case EventPause:
		c.state.IsPlaying = false
	case EventEnded:
		c.state.IsPlaying = false
		c.state.CurrentTime = ev.CurrentTime
	case EventTimeUpdate:
		c.state.CurrentTime = ev.CurrentTime
	case EventLoadedMetadata, EventDurationChange:
		// Streamed containers report their duration late, often only on a
		// durationchange after loadedmetadata.
		if Finite(ev.Duration) {
			c.state.Duration = ev.Duration
			c.state.DurationKnown = true
		} else {
			probeFailed = true
		}
	default:
		c.mu.Unlock()
		return
	}
	st := c.state
	c.mu.Unlock()

	if probeFailed {
		c.log(diaglog.LogEntry{Event: diaglog.EventDurationProbe, Payload: map[string]interface{}{"event": string(ev.Type)}})
	}
	c.notify(st)
}

// TogglePlayPause asks the element to play when it is paused and to pause
// otherwise. State changes arrive later through element events.
func (c *Controller) TogglePlayPause() error {
	el, err := c.transport()
	if err != nil {
		return err
	}
	if el.Paused() {
		return el.Play()
	}
	return el.Pause()
}

// Seek moves the playhead. Targets are clamped to [0, duration] when the
// duration is known.
func (c *Controller) Seek(seconds float64) error {
	el, err := c.transport()
	if err != nil {
		return err
	}
	c.mu.Lock()
	known, dur := c.state.DurationKnown, c.state.Duration
	c.mu.Unlock()
	if seconds < 0 || !Finite(seconds) {
		seconds = 0
	}
	if known && seconds > dur {
		seconds = dur
	}
	return el.Seek(seconds)
}

func (c *Controller) transport() (MediaElement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.el == nil {
		return nil, ErrNoElement
	}
	if c.state.SourceURL == "" {
		return nil, ErrNotLoaded
	}
	return c.el, nil
}

// Close detaches from the element and releases the object URL. The
// controller can be loaded again afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	c.bindGen++
	c.loadGen++
	remove := c.removeFn
	c.removeFn = nil
	c.el = nil
	id := c.artifactID
	c.artifactID = ""
	c.state = State{}
	c.mu.Unlock()

	if remove != nil {
		remove()
	}
	released := c.holder.Release()
	c.log(diaglog.LogEntry{Event: diaglog.EventPlaybackClose, SessionID: id, Payload: map[string]interface{}{"revoked": released}})
	c.notify(State{})
}

// State returns a snapshot of the transport state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ArtifactID returns the id of the loaded recording, or "".
func (c *Controller) ArtifactID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifactID
}
