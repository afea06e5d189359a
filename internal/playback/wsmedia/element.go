package wsmedia

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiroq/meetaudio/internal/diaglog"
	"github.com/tiroq/meetaudio/internal/playback"
)

// DefaultRequestTimeout bounds how long a command waits for the page.
const DefaultRequestTimeout = 10 * time.Second

// ErrClosed is returned by commands after the page disconnected.
var ErrClosed = errors.New("wsmedia: element disconnected")

// Element is a playback.MediaElement living in a connected page. Properties
// are the last values the page reported.
type Element struct {
	conn    *websocket.Conn
	session string
	timeout time.Duration
	logger  *diaglog.Logger

	writeMu   sync.Mutex
	requestID atomic.Int64
	respMu    sync.Mutex
	responses map[string]chan *Response

	mu          sync.Mutex
	currentTime float64
	duration    float64
	paused      bool
	listeners   map[int]func(playback.Event)
	nextID      int

	done      chan struct{}
	closeOnce sync.Once
}

func newElement(conn *websocket.Conn, session string, timeout time.Duration, logger *diaglog.Logger) *Element {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Element{
		conn:      conn,
		session:   session,
		timeout:   timeout,
		logger:    logger,
		responses: make(map[string]chan *Response),
		duration:  math.NaN(),
		paused:    true,
		listeners: make(map[int]func(playback.Event)),
		done:      make(chan struct{}),
	}
}

// Session identifies the connection.
func (e *Element) Session() string { return e.session }

// Done is closed when the page disconnects.
func (e *Element) Done() <-chan struct{} { return e.done }

// Close drops the connection.
func (e *Element) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.done)
		err = e.conn.Close()
	})
	return err
}

func (e *Element) SetSource(url string) error {
	return e.request(RequestSetSource, SetSourceData{URL: url})
}

func (e *Element) Play() error  { return e.request(RequestPlay, nil) }
func (e *Element) Pause() error { return e.request(RequestPause, nil) }

func (e *Element) Seek(seconds float64) error {
	return e.request(RequestSeek, SeekData{Seconds: seconds})
}

func (e *Element) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTime
}

func (e *Element) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *Element) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *Element) AddEventListener(fn func(playback.Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// request sends a command and waits for the page's answer.
func (e *Element) request(requestType string, data interface{}) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}

	id := strconv.FormatInt(e.requestID.Add(1), 10)
	msg, err := Encode(OpRequest, Request{RequestType: requestType, RequestID: id, RequestData: data})
	if err != nil {
		return fmt.Errorf("wsmedia: encode %s: %w", requestType, err)
	}

	respChan := make(chan *Response, 1)
	e.respMu.Lock()
	e.responses[id] = respChan
	e.respMu.Unlock()
	defer func() {
		e.respMu.Lock()
		delete(e.responses, id)
		e.respMu.Unlock()
	}()

	e.writeMu.Lock()
	err = e.conn.WriteJSON(msg)
	e.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("wsmedia: send %s: %w", requestType, err)
	}

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case resp := <-respChan:
		if !resp.RequestStatus.Result {
			return fmt.Errorf("wsmedia: %s rejected (code %d): %s", requestType, resp.RequestStatus.Code, resp.RequestStatus.Comment)
		}
		return nil
	case <-e.done:
		return ErrClosed
	case <-timer.C:
		return fmt.Errorf("wsmedia: %s timed out after %s", requestType, e.timeout)
	}
}

// readLoop dispatches page frames until the connection drops.
func (e *Element) readLoop() {
	defer e.Close()
	for {
		var msg Message
		if err := e.conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Op {
		case OpEvent:
			var ev EventData
			if err := json.Unmarshal(msg.D, &ev); err == nil {
				e.handleEvent(ev)
			}
		case OpRequestResponse:
			var resp Response
			if err := json.Unmarshal(msg.D, &resp); err == nil {
				e.handleResponse(&resp)
			}
		}
	}
}

func (e *Element) handleEvent(data EventData) {
	ev := data.toEvent()

	e.mu.Lock()
	e.currentTime = ev.CurrentTime
	e.duration = ev.Duration
	e.paused = ev.Paused
	fns := make([]func(playback.Event), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	e.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentMedia,
		Event:     diaglog.EventPlaybackEvent,
		SessionID: e.session,
		Payload:   map[string]interface{}{"type": data.Type, "current_time": data.CurrentTime, "paused": data.Paused},
	})
	for _, fn := range fns {
		fn(ev)
	}
}

func (e *Element) handleResponse(resp *Response) {
	e.respMu.Lock()
	ch, ok := e.responses[resp.RequestID]
	e.respMu.Unlock()
	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}
