package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafescraper/actorkit/internal/runtime/protocol"
)

// Mock config for testing
type mockConfig struct {
	endpoint  string
	transport string
	runID     string
	token     string
}

func (m *mockConfig) GetEndpoint() string              { return m.endpoint }
func (m *mockConfig) GetTransport() string             { return m.transport }
func (m *mockConfig) GetRunID() string                 { return m.runID }
func (m *mockConfig) GetToken() string                 { return m.token }
func (m *mockConfig) GetConnectTimeout() time.Duration { return time.Second }

// Mock session that acknowledges everything
type mockSession struct {
	closed bool
}

func (m *mockSession) Send(ctx context.Context, frame protocol.Frame) (protocol.Ack, error) {
	return protocol.Ack{ID: frame.ID, Code: protocol.CodeOK}, nil
}

func (m *mockSession) Close(ctx context.Context) error {
	m.closed = true
	return nil
}

func stubDialer(s Session, err error) Dialer {
	return func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Session, error) {
		return s, err
	}
}

func TestRegistryRegisterAndHas(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.Has("mock"))

	r.Register("mock", stubDialer(&mockSession{}, nil))

	assert.True(t, r.Has("mock"))
	assert.False(t, r.Has("other"))
}

func TestRegistryDial(t *testing.T) {
	r := NewRegistry()
	want := &mockSession{}
	r.Register("mock", stubDialer(want, nil))

	cfg := &mockConfig{transport: "mock", runID: "run-1"}
	session, err := r.Dial(context.Background(), cfg, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, want, session)
}

func TestRegistryDialUnknownTransport(t *testing.T) {
	r := NewRegistry()
	r.Register("mock", stubDialer(&mockSession{}, nil))

	cfg := &mockConfig{transport: "carrier-pigeon"}
	_, err := r.Dial(context.Background(), cfg, watermill.NopLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
	assert.Contains(t, err.Error(), "carrier-pigeon")
	// The error should list what is available.
	assert.Contains(t, err.Error(), "mock")
}

func TestRegistryDialNilConfig(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dial(context.Background(), nil, watermill.NopLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")
}

func TestRegistryDialPropagatesDialerError(t *testing.T) {
	r := NewRegistry()
	dialErr := errors.New("connection refused")
	r.Register("mock", stubDialer(nil, dialErr))

	cfg := &mockConfig{transport: "mock"}
	_, err := r.Dial(context.Background(), cfg, watermill.NopLogger{})
	assert.ErrorIs(t, err, dialErr)
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	r.Register("zebra", stubDialer(&mockSession{}, nil))
	r.Register("alpha", stubDialer(&mockSession{}, nil))
	r.Register("mango", stubDialer(&mockSession{}, nil))

	assert.Equal(t, []string{"alpha", "mango", "zebra"}, r.Names())
}

func TestRegistryCapabilities(t *testing.T) {
	r := NewRegistry()
	caps := Capabilities{
		Name:            "mock",
		Persistent:      true,
		OrderPreserving: true,
		MaxFrameSize:    1024,
	}
	r.RegisterWithCapabilities("mock", stubDialer(&mockSession{}, nil), caps)

	assert.Equal(t, caps, r.GetCapabilities("mock"))
}

func TestRegistryCapabilitiesUnknownTransport(t *testing.T) {
	r := NewRegistry()

	caps := r.GetCapabilities("nonexistent")
	assert.Equal(t, "nonexistent", caps.Name)
	assert.False(t, caps.Persistent)
	assert.False(t, caps.OrderPreserving)
	assert.Zero(t, caps.MaxFrameSize)
}

func TestRegistryRegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	first := &mockSession{}
	second := &mockSession{}
	r.Register("mock", stubDialer(first, nil))
	r.Register("mock", stubDialer(second, nil))

	cfg := &mockConfig{transport: "mock"}
	session, err := r.Dial(context.Background(), cfg, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, second, session)
	assert.Len(t, r.Names(), 1)
}
