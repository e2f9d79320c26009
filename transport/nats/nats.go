// Package nats provides a NATS Core transport for actorkit. Each frame is a
// request on a per-kind subject; the control plane's reply is the
// acknowledgment, which gives the same fire-and-confirm semantics as the
// websocket wire without a hand-rolled correlation map.
package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	natsgo "github.com/nats-io/nats.go"

	"github.com/cafescraper/actorkit/internal/runtime/protocol"
	"github.com/cafescraper/actorkit/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// SubjectPrefix is the control-plane subject namespace. The full subject is
// <prefix>.<run_id>.<frame_kind>.
const SubjectPrefix = "cafe.actor"

// requestTimeout bounds a single request when the caller's context carries
// no deadline of its own.
const requestTimeout = 15 * time.Second

// ConnectFactory allows overriding connection creation for testing.
var ConnectFactory = func(url string, opts ...natsgo.Option) (*natsgo.Conn, error) {
	return natsgo.Connect(url, opts...)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Dial, transport.NATSCapabilities)
}

// Dial connects to the NATS endpoint from the launch context. Reconnection
// is owned by the runtime client, so the connection is configured not to
// reconnect on its own.
func Dial(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Session, error) {
	url := cfg.GetEndpoint()
	if !strings.Contains(url, "://") {
		url = "nats://" + url
	}

	conn, err := ConnectFactory(url,
		natsgo.Timeout(cfg.GetConnectTimeout()),
		natsgo.MaxReconnects(0),
		natsgo.RetryOnFailedConnect(false),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", url, err)
	}

	logger.Debug("nats session established", watermill.LogFields{"url": url})
	return &session{conn: conn, runID: cfg.GetRunID()}, nil
}

type session struct {
	conn  *natsgo.Conn
	runID string
}

func (s *session) Send(ctx context.Context, frame protocol.Frame) (protocol.Ack, error) {
	data, err := protocol.Encode(frame)
	if err != nil {
		return protocol.Ack{}, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	subject := fmt.Sprintf("%s.%s.%s", SubjectPrefix, s.runID, frame.Kind)
	reply, err := s.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return protocol.Ack{}, fmt.Errorf("nats: request %s: %w", subject, err)
	}

	return protocol.DecodeAck(reply.Data)
}

func (s *session) Close(ctx context.Context) error {
	// Drain flushes buffered outbound data before closing.
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return err
	}
	return nil
}
