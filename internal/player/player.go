// Package player serves a browser page whose <audio> element is driven by a
// playback.Controller over the wsmedia bridge.
package player

import (
	"context"
	_ "embed"
	"net/http"
	"sync"

	"github.com/tiroq/meetaudio/internal/diaglog"
	"github.com/tiroq/meetaudio/internal/objecturl"
	"github.com/tiroq/meetaudio/internal/playback"
	"github.com/tiroq/meetaudio/internal/playback/wsmedia"
	"github.com/tiroq/meetaudio/internal/remote"
)

// HTTP layout served by Handler.
const (
	PathPage = "/"
	PathWS   = "/ws"
	PathBlob = "/blob/"
)

//go:embed web/index.html
var indexHTML []byte

// Player owns one playback session and the page currently attached to it.
// Only the most recently connected page is bound.
type Player struct {
	ctrl    *playback.Controller
	objects *objecturl.Registry
	ws      *wsmedia.Server

	mu        sync.Mutex
	el        *wsmedia.Element
	connected chan struct{} // closed while a page is bound
}

// New creates a Player that fetches recordings through fetcher and keeps
// their bytes in objects.
func New(fetcher remote.Fetcher, objects *objecturl.Registry) *Player {
	if objects == nil {
		objects = objecturl.NewRegistry()
	}
	p := &Player{
		objects:   objects,
		connected: make(chan struct{}),
	}
	p.ctrl = playback.NewController(playback.Options{
		Fetcher: fetcher,
		Objects: objects,
		Resolve: func(u string) string { return objecturl.HTTPPath(PathBlob, u) },
	})
	p.ws = wsmedia.NewServer(p.attach)
	p.ws.OnDisconnect = p.detach
	return p
}

// SetLogger injects a diaglog.Logger for debug logging.
func (p *Player) SetLogger(l *diaglog.Logger) {
	p.ctrl.SetLogger(l)
	p.ws.SetLogger(l)
}

// Controller exposes the transport.
func (p *Player) Controller() *playback.Controller { return p.ctrl }

// Handler serves the page, the websocket and the blob bytes.
func (p *Player) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(PathWS, p.ws)
	mux.Handle(PathBlob, p.objects)
	mux.HandleFunc(PathPage, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathPage {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(indexHTML)
	})
	return mux
}

func (p *Player) attach(el *wsmedia.Element) {
	p.mu.Lock()
	prev := p.el
	p.el = el
	p.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	p.ctrl.Bind(el)

	p.mu.Lock()
	if p.el == el {
		select {
		case <-p.connected:
		default:
			close(p.connected)
		}
	}
	p.mu.Unlock()
}

func (p *Player) detach(el *wsmedia.Element) {
	p.mu.Lock()
	if p.el != el {
		p.mu.Unlock()
		return
	}
	p.el = nil
	p.connected = make(chan struct{})
	p.mu.Unlock()

	p.ctrl.Bind(nil)
}

// Open replaces whatever is loaded with the recording id and points the
// bound page at it.
func (p *Player) Open(ctx context.Context, id string) (string, error) {
	p.Reset()
	return p.ctrl.Load(ctx, id)
}

// Reset unloads the recording, revoking its object URL, and keeps the page
// bound.
func (p *Player) Reset() {
	p.ctrl.Close()
	p.mu.Lock()
	el := p.el
	p.mu.Unlock()
	if el != nil {
		p.ctrl.Bind(el)
	}
}

// WaitForPage blocks until a page is connected.
func (p *Player) WaitForPage(ctx context.Context) error {
	p.mu.Lock()
	ch := p.connected
	p.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether a page is bound.
func (p *Player) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.el != nil
}

// Close unloads the recording and disconnects the page.
func (p *Player) Close() error {
	p.ctrl.Close()
	p.mu.Lock()
	el := p.el
	p.el = nil
	p.mu.Unlock()
	if el == nil {
		return nil
	}
	return el.Close()
}
