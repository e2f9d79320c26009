// Package transport defines the session contract between the actorkit
// runtime and the control plane, plus the registry transports plug into.
// Each wire implementation (websocket, natsrpc, channel) lives in its own
// sub-package and registers itself by name.
package transport

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/cafescraper/actorkit/internal/runtime/protocol"
)

// Session is one live connection to the control plane. A session owns exactly
// one underlying network connection; reconnecting means dialing a new
// session. Send delivers a frame and waits for its acknowledgment
// (fire-and-confirm). Implementations must allow concurrent Send calls.
type Session interface {
	Send(ctx context.Context, frame protocol.Frame) (protocol.Ack, error)
	Close(ctx context.Context) error
}

// Dialer is the function signature for establishing a session from config.
// Each transport package provides a Dialer that can be registered.
type Dialer func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Session, error)

// Config provides the configuration values transports need without
// depending on the full runtime config package.
type Config interface {
	GetEndpoint() string
	GetTransport() string
	GetRunID() string
	GetToken() string
	GetConnectTimeout() time.Duration
}

// Capabilities describes the properties of a transport backend.
type Capabilities struct {
	// Name is the registry name of the transport.
	Name string

	// Persistent indicates the transport holds one long-lived connection, as
	// opposed to per-frame request dispatch.
	Persistent bool

	// OrderPreserving indicates frames are delivered in Send order over one
	// session. Frame ordering across sessions is the client's job either way.
	OrderPreserving bool

	// MaxFrameSize is the maximum frame size in bytes (0 = unlimited/unknown).
	MaxFrameSize int64
}

// Predefined capability sets for the built-in transports.
var (
	WebsocketCapabilities = Capabilities{
		Name:            "websocket",
		Persistent:      true,
		OrderPreserving: true,
		MaxFrameSize:    512 * 1024,
	}

	NATSCapabilities = Capabilities{
		Name:            "nats",
		Persistent:      true,
		OrderPreserving: true,
		MaxFrameSize:    1024 * 1024,
	}

	ChannelCapabilities = Capabilities{
		Name:            "channel",
		Persistent:      true,
		OrderPreserving: true,
	}
)
