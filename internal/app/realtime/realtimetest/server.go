// Package realtimetest provides an in-process websocket provider for tests.
package realtimetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"streamify/internal/app/realtime"
)

// Handler answers one frame received from a client.
type Handler func(p *Peer, f realtime.Frame)

// AckAll replies to every request with an empty ack.
func AckAll(p *Peer, f realtime.Frame) {
	_ = p.Ack(f.ID, nil)
}

// Server is a fake provider. Every accepted connection becomes a Peer.
type Server struct {
	*httptest.Server

	t       testing.TB
	handler Handler

	mu     sync.Mutex
	peers  []*Peer
	frames []realtime.Frame
	joined chan *Peer
}

// Peer is the provider side of one client connection.
type Peer struct {
	Header http.Header
	Query  url.Values

	ws *websocket.Conn
	mu sync.Mutex
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewServer starts a provider that passes every frame to h. A nil h acks everything.
func NewServer(t testing.TB, h Handler) *Server {
	t.Helper()
	if h == nil {
		h = AckAll
	}

	s := &Server{t: t, handler: h, joined: make(chan *Peer, 16)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)

	return s
}

// URL returns the websocket URL of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "Bearer reject-me" {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Logf("upgrade: %v", err)
		return
	}

	p := &Peer{Header: r.Header.Clone(), Query: r.URL.Query(), ws: ws}
	s.mu.Lock()
	s.peers = append(s.peers, p)
	s.mu.Unlock()
	s.joined <- p

	defer ws.Close()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var f realtime.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.t.Logf("bad frame: %v", err)
			continue
		}

		s.mu.Lock()
		s.frames = append(s.frames, f)
		s.mu.Unlock()

		s.handler(p, f)
	}
}

// NextPeer waits for the next client connection.
func (s *Server) NextPeer(t testing.TB) *Peer {
	t.Helper()
	select {
	case p := <-s.joined:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no client connected")
		return nil
	}
}

// Peers returns the connections accepted so far.
func (s *Server) Peers() []*Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Peer(nil), s.peers...)
}

// Frames returns every frame received so far, in arrival order.
func (s *Server) Frames() []realtime.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]realtime.Frame(nil), s.frames...)
}

// FramesOf returns the received frames of frameType.
func (s *Server) FramesOf(frameType realtime.FrameType) []realtime.Frame {
	var out []realtime.Frame
	for _, f := range s.Frames() {
		if f.Type == frameType {
			out = append(out, f)
		}
	}
	return out
}

func (p *Peer) write(f realtime.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ws.WriteJSON(f)
}

// Ack replies successfully to the request id.
func (p *Peer) Ack(id string, payload any) error {
	f, err := realtime.NewFrame(realtime.TypeAck, id, payload)
	if err != nil {
		return err
	}
	return p.write(f)
}

// Fail rejects the request id.
func (p *Peer) Fail(id string, code int, message string) error {
	return p.write(realtime.Frame{
		Type:  realtime.TypeError,
		ID:    id,
		Error: &realtime.ErrorPayload{Code: code, Message: message},
	})
}

// Emit pushes an event to the client.
func (p *Peer) Emit(frameType realtime.FrameType, payload any) error {
	f, err := realtime.NewFrame(frameType, "", payload)
	if err != nil {
		return err
	}
	return p.write(f)
}

// Drop closes the connection without a close handshake.
func (p *Peer) Drop() error {
	return p.ws.Close()
}
