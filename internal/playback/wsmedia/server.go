package wsmedia

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tiroq/meetaudio/internal/diaglog"
)

// DefaultHandshakeTimeout bounds the Hello/Identify exchange.
const DefaultHandshakeTimeout = 10 * time.Second

// Server accepts player pages and hands each identified connection to
// OnConnect as an Element. ServeHTTP blocks for the life of the connection.
type Server struct {
	OnConnect        func(*Element)
	OnDisconnect     func(*Element)
	HandshakeTimeout time.Duration
	RequestTimeout   time.Duration

	upgrader websocket.Upgrader
	logger   *diaglog.Logger
}

// NewServer creates a server that calls onConnect for every page.
func NewServer(onConnect func(*Element)) *Server {
	return &Server{OnConnect: onConnect}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (s *Server) SetLogger(l *diaglog.Logger) { s.logger = l }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	el, err := s.handshake(conn)
	if err != nil {
		s.logger.Log(diaglog.LogEntry{Component: diaglog.ComponentMedia, Event: diaglog.EventWSDisconnect, Reason: err.Error()})
		_ = conn.Close()
		return
	}

	s.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentMedia,
		Event:     diaglog.EventWSConnect,
		SessionID: el.session,
		Payload:   map[string]interface{}{"remote": r.RemoteAddr},
	})
	// Responses to requests issued from OnConnect arrive through the read
	// loop, so it must already be running.
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		el.readLoop()
	}()
	if s.OnConnect != nil {
		s.OnConnect(el)
	}
	<-loopDone

	s.logger.Log(diaglog.LogEntry{Component: diaglog.ComponentMedia, Event: diaglog.EventWSDisconnect, SessionID: el.session})
	if s.OnDisconnect != nil {
		s.OnDisconnect(el)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (*Element, error) {
	timeout := s.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	session := uuid.NewString()

	hello, err := Encode(OpHello, HelloData{ProtocolVersion: ProtocolVersion, Session: session})
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(hello); err != nil {
		return nil, fmt.Errorf("send hello: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		return nil, fmt.Errorf("wait identify: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if msg.Op != OpIdentify {
		return nil, fmt.Errorf("expected identify, got op %d", msg.Op)
	}

	var id IdentifyData
	if err := decode(msg, &id); err != nil {
		return nil, fmt.Errorf("decode identify: %w", err)
	}
	if id.ProtocolVersion != ProtocolVersion {
		s.logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentMedia,
			Event:     diaglog.EventProtocolMismatch,
			Payload:   map[string]interface{}{"want": ProtocolVersion, "got": id.ProtocolVersion, "user_agent": id.UserAgent},
		})
		reason := fmt.Sprintf("protocol version %d required", ProtocolVersion)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseProtocolMismatch, reason),
			time.Now().Add(time.Second))
		return nil, fmt.Errorf("protocol mismatch: page speaks %d", id.ProtocolVersion)
	}

	identified, err := Encode(OpIdentified, IdentifiedData{Session: session})
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(identified); err != nil {
		return nil, fmt.Errorf("send identified: %w", err)
	}
	return newElement(conn, session, s.RequestTimeout, s.logger), nil
}
