package testutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tiroq/meetaudio/internal/playback/wsmedia"
)

// MediaPeer simulates a player page: it dials a wsmedia server, completes
// the handshake and answers requests like an <audio> element would.
type MediaPeer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu          sync.Mutex
	session     string
	src         string
	requests    []string
	currentTime float64
	paused      bool
	duration    *float64 // nil while unknown
	late        *float64
	reject      map[string]string

	done chan struct{}
}

// PeerOption configures a MediaPeer before it dials.
type PeerOption func(*peerConfig)

type peerConfig struct {
	version int
}

// WithProtocolVersion makes the peer identify with v.
func WithProtocolVersion(v int) PeerOption {
	return func(c *peerConfig) { c.version = v }
}

// DialMediaPeer connects to url (ws://...) and completes the handshake.
func DialMediaPeer(url string, opts ...PeerOption) (*MediaPeer, error) {
	cfg := peerConfig{version: wsmedia.ProtocolVersion}
	for _, o := range opts {
		o(&cfg)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	var hello wsmedia.Message
	if err := conn.ReadJSON(&hello); err != nil || hello.Op != wsmedia.OpHello {
		conn.Close()
		return nil, fmt.Errorf("expected hello: %v", err)
	}
	var hd wsmedia.HelloData
	_ = json.Unmarshal(hello.D, &hd)

	identify, _ := wsmedia.Encode(wsmedia.OpIdentify, wsmedia.IdentifyData{ProtocolVersion: cfg.version, UserAgent: "meetaudio-test-peer"})
	if err := conn.WriteJSON(identify); err != nil {
		conn.Close()
		return nil, err
	}

	var identified wsmedia.Message
	if err := conn.ReadJSON(&identified); err != nil {
		conn.Close()
		return nil, err
	}
	if identified.Op != wsmedia.OpIdentified {
		conn.Close()
		return nil, errors.New("expected identified")
	}

	p := &MediaPeer{conn: conn, session: hd.Session, paused: true, done: make(chan struct{})}
	go p.loop()
	return p, nil
}

// Close disconnects the peer.
func (p *MediaPeer) Close() error {
	return p.conn.Close()
}

// Done is closed when the connection ends.
func (p *MediaPeer) Done() <-chan struct{} { return p.done }

func (p *MediaPeer) loop() {
	defer close(p.done)
	for {
		var msg wsmedia.Message
		if err := p.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Op != wsmedia.OpRequest {
			continue
		}
		var req struct {
			RequestType string          `json:"requestType"`
			RequestID   string          `json:"requestId"`
			RequestData json.RawMessage `json:"requestData"`
		}
		if err := json.Unmarshal(msg.D, &req); err != nil {
			continue
		}
		p.handle(req.RequestType, req.RequestID, req.RequestData)
	}
}

func (p *MediaPeer) handle(typ, id string, data json.RawMessage) {
	p.mu.Lock()
	p.requests = append(p.requests, typ)
	comment, reject := p.reject[typ]
	p.mu.Unlock()

	if reject {
		p.respond(typ, id, false, comment)
		return
	}

	switch typ {
	case wsmedia.RequestSetSource:
		var d wsmedia.SetSourceData
		_ = json.Unmarshal(data, &d)
		p.mu.Lock()
		p.src = d.URL
		p.currentTime = 0
		late := p.late
		p.mu.Unlock()
		p.respond(typ, id, true, "")
		p.Emit("loadedmetadata")
		if late != nil {
			p.mu.Lock()
			p.duration = late
			p.mu.Unlock()
			p.Emit("durationchange")
		}
	case wsmedia.RequestPlay:
		p.mu.Lock()
		p.paused = false
		p.mu.Unlock()
		p.respond(typ, id, true, "")
		p.Emit("play")
	case wsmedia.RequestPause:
		p.mu.Lock()
		p.paused = true
		p.mu.Unlock()
		p.respond(typ, id, true, "")
		p.Emit("pause")
	case wsmedia.RequestSeek:
		var d wsmedia.SeekData
		_ = json.Unmarshal(data, &d)
		p.mu.Lock()
		p.currentTime = d.Seconds
		p.mu.Unlock()
		p.respond(typ, id, true, "")
		p.Emit("timeupdate")
	default:
		p.respond(typ, id, false, "unknown request")
	}
}

func (p *MediaPeer) respond(typ, id string, ok bool, comment string) {
	var resp wsmedia.Response
	resp.RequestType = typ
	resp.RequestID = id
	resp.RequestStatus.Result = ok
	resp.RequestStatus.Comment = comment
	if ok {
		resp.RequestStatus.Code = 100
	} else {
		resp.RequestStatus.Code = 400
	}
	msg, _ := wsmedia.Encode(wsmedia.OpRequestResponse, resp)
	p.write(msg)
}

// Emit pushes an event with the peer's current properties.
func (p *MediaPeer) Emit(typ string) {
	p.mu.Lock()
	ev := wsmedia.EventData{
		Type:        typ,
		CurrentTime: p.currentTime,
		Duration:    p.duration,
		Paused:      p.paused,
	}
	p.mu.Unlock()
	msg, _ := wsmedia.Encode(wsmedia.OpEvent, ev)
	p.write(msg)
}

// SetDuration sets the duration reported with loadedmetadata.
func (p *MediaPeer) SetDuration(d float64) {
	p.mu.Lock()
	p.duration = &d
	p.mu.Unlock()
}

// SetLateDuration makes every loadedmetadata report an unknown duration,
// followed by a durationchange carrying d, like a streamed container.
func (p *MediaPeer) SetLateDuration(d float64) {
	p.mu.Lock()
	p.duration = nil
	p.late = &d
	p.mu.Unlock()
}

// RejectRequest makes requests of type typ fail with comment.
func (p *MediaPeer) RejectRequest(typ, comment string) {
	p.mu.Lock()
	if p.reject == nil {
		p.reject = make(map[string]string)
	}
	p.reject[typ] = comment
	p.mu.Unlock()
}

// SetCurrentTime moves the simulated playhead without emitting.
func (p *MediaPeer) SetCurrentTime(t float64) {
	p.mu.Lock()
	p.currentTime = t
	p.mu.Unlock()
}

func (p *MediaPeer) write(msg wsmedia.Message) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.WriteJSON(msg)
}

// Source returns the last source the server set.
func (p *MediaPeer) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src
}

// Session returns the session id from Hello.
func (p *MediaPeer) Session() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Requests returns the request types received, in order.
func (p *MediaPeer) Requests() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.requests...)
}

// WSURL turns an httptest URL into a websocket URL.
func WSURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}
