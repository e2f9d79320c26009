// Package websocket provides the default actorkit wire: JSON frames over a
// single websocket connection, one acknowledgment per frame correlated by
// frame ID.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gorilla/websocket"

	"github.com/cafescraper/actorkit/internal/runtime/protocol"
	"github.com/cafescraper/actorkit/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "websocket"

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings with this period (must be less than pongWait).
	pingPeriod = (pongWait * 9) / 10
	// Maximum inbound message size.
	maxMessageSize = 512 * 1024
	// Time to wait for a frame's acknowledgment before treating the
	// connection as broken.
	ackWait = 15 * time.Second
)

// ErrSessionClosed is returned by Send once the connection is gone. The
// client reacts by dialing a fresh session.
var ErrSessionClosed = errors.New("websocket: session closed")

func init() {
	transport.RegisterWithCapabilities(TransportName, Dial, transport.WebsocketCapabilities)
}

// Dial connects to the control plane and starts the read/write pumps.
func Dial(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Session, error) {
	endpoint, err := wsURL(cfg.GetEndpoint(), cfg.GetRunID())
	if err != nil {
		return nil, err
	}

	dialer := &websocket.Dialer{HandshakeTimeout: cfg.GetConnectTimeout()}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket: dial %s: %w", endpoint, err)
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s := &session{
		conn:    conn,
		logger:  logger,
		sendCh:  make(chan []byte, 64),
		pending: make(map[string]chan protocol.Ack),
		done:    make(chan struct{}),
	}

	go s.readPump()
	go s.writePump()

	logger.Debug("websocket session established", watermill.LogFields{"endpoint": endpoint})
	return s, nil
}

// wsURL normalises the configured endpoint ("host:port" or an http(s)/ws(s)
// URL) into the actor stream path.
func wsURL(endpoint, runID string) (string, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "ws://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("websocket: invalid endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/actor/" + url.PathEscape(runID)
	return u.String(), nil
}

type session struct {
	conn   *websocket.Conn
	logger watermill.LoggerAdapter

	sendCh chan []byte

	pendingMu sync.Mutex
	pending   map[string]chan protocol.Ack

	done      chan struct{}
	closeOnce sync.Once
}

// Send transmits one frame and waits for its acknowledgment.
func (s *session) Send(ctx context.Context, frame protocol.Frame) (protocol.Ack, error) {
	data, err := protocol.Encode(frame)
	if err != nil {
		return protocol.Ack{}, err
	}

	ackCh := make(chan protocol.Ack, 1)
	s.pendingMu.Lock()
	s.pending[frame.ID] = ackCh
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, frame.ID)
		s.pendingMu.Unlock()
	}()

	select {
	case s.sendCh <- data:
	case <-s.done:
		return protocol.Ack{}, ErrSessionClosed
	case <-ctx.Done():
		return protocol.Ack{}, ctx.Err()
	}

	timer := time.NewTimer(ackWait)
	defer timer.Stop()

	select {
	case ack := <-ackCh:
		return ack, nil
	case <-timer.C:
		return protocol.Ack{}, fmt.Errorf("websocket: ack timeout for frame %s", frame.ID)
	case <-s.done:
		return protocol.Ack{}, ErrSessionClosed
	case <-ctx.Done():
		return protocol.Ack{}, ctx.Err()
	}
}

// Close performs a graceful websocket shutdown.
func (s *session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(writeWait)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = s.conn.Close()
	})

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// readPump routes acknowledgment frames back to their waiting senders. It
// owns the read side of the connection and tears the session down on error.
func (s *session) readPump() {
	defer func() {
		_ = s.conn.Close()
		close(s.done)
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", watermill.LogFields{"err": err.Error()})
			}
			return
		}

		ack, err := protocol.DecodeAck(data)
		if err != nil {
			s.logger.Error("discarding unparseable ack", err, nil)
			continue
		}

		s.pendingMu.Lock()
		ch, ok := s.pending[ack.ID]
		s.pendingMu.Unlock()
		if !ok {
			// Ack for a frame we gave up on; the retry path resends with the
			// same ID, so the control plane deduplicates.
			continue
		}
		select {
		case ch <- ack:
		default:
		}
	}
}

// writePump is the single writer on the connection. All outbound frames and
// pings funnel through here.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case data := <-s.sendCh:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("websocket write failed", watermill.LogFields{"err": err.Error()})
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
