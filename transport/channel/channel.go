// Package channel provides an in-memory transport for actorkit. The hub
// plays the control plane's role: it records every frame and acknowledges it,
// which makes it useful for tests and local debug runs without a sidecar.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/cafescraper/actorkit/internal/runtime/jsoncodec"
	"github.com/cafescraper/actorkit/internal/runtime/protocol"
	"github.com/cafescraper/actorkit/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// DefaultHub backs sessions dialed through the registry. Tests that need an
// isolated control plane should construct their own Hub and use Hub.Dialer.
var DefaultHub = NewHub()

func init() {
	transport.RegisterWithCapabilities(TransportName, DefaultHub.Dialer(), transport.ChannelCapabilities)
}

// Hub is an in-memory control plane. It accepts sessions, records received
// frames in arrival order, and can be told to reject credentials or fail a
// number of sends to exercise retry paths.
type Hub struct {
	mu        sync.Mutex
	frames    []protocol.Frame
	wantToken string
	failures  int
	failErr   error
}

// NewHub creates an empty hub that acknowledges everything.
func NewHub() *Hub {
	return &Hub{}
}

// RequireToken makes subsequent auth frames fail unless they carry token.
func (h *Hub) RequireToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.wantToken = token
}

// FailNext makes the next n Send calls return err before any frame is
// recorded, simulating a broken connection.
func (h *Hub) FailNext(n int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = n
	h.failErr = err
}

// Frames returns a copy of every frame received so far.
func (h *Hub) Frames() []protocol.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]protocol.Frame, len(h.frames))
	copy(out, h.frames)
	return out
}

// FramesOfKind returns received frames of one kind, in arrival order.
func (h *Hub) FramesOfKind(kind protocol.FrameKind) []protocol.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []protocol.Frame
	for _, f := range h.frames {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// Reset clears recorded frames and failure injection.
func (h *Hub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = nil
	h.failures = 0
	h.failErr = nil
	h.wantToken = ""
}

// Dialer returns a transport.Dialer bound to this hub.
func (h *Hub) Dialer() transport.Dialer {
	return func(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Session, error) {
		return &session{hub: h}, nil
	}
}

type session struct {
	hub    *Hub
	mu     sync.Mutex
	closed bool
}

func (s *session) Send(ctx context.Context, frame protocol.Frame) (protocol.Ack, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return protocol.Ack{}, context.Canceled
	}
	if err := ctx.Err(); err != nil {
		return protocol.Ack{}, err
	}

	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.failures > 0 {
		h.failures--
		return protocol.Ack{}, h.failErr
	}

	if frame.Kind == protocol.KindAuth && h.wantToken != "" {
		var auth protocol.AuthPayload
		if err := jsoncodec.Unmarshal(frame.Payload, &auth); err != nil {
			return protocol.Ack{}, err
		}
		if auth.Token != h.wantToken {
			return protocol.Ack{ID: frame.ID, Code: protocol.CodeAuthRejected, Message: "bad token"}, nil
		}
	}

	h.frames = append(h.frames, frame)
	return protocol.Ack{ID: frame.ID, Code: protocol.CodeOK}, nil
}

func (s *session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

