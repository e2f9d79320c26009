package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/cafescraper/actorkit/internal/runtime/config"
	errspkg "github.com/cafescraper/actorkit/internal/runtime/errors"
	loggingpkg "github.com/cafescraper/actorkit/internal/runtime/logging"
	"github.com/cafescraper/actorkit/internal/runtime/protocol"
	transportpkg "github.com/cafescraper/actorkit/transport"
)

// ConnState is the transport client's connection state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateReady
	StateDraining
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// transportClient owns the logical connection to the control plane. The
// session is dialed lazily on first send; a failed session is torn down and
// replaced with capped, jittered exponential backoff up to the configured
// reconnect budget. Credential rejection and budget exhaustion are terminal:
// they flip the client into a fatal state and notify the harness.
type transportClient struct {
	cfg      *configpkg.Config
	logger   loggingpkg.ServiceLogger
	wmLogger watermill.LoggerAdapter
	registry *transportpkg.Registry
	metrics  *Metrics
	tracer   trace.Tracer
	onFatal  func(error)

	done      chan struct{}
	closeOnce sync.Once

	mu            sync.Mutex
	session       transportpkg.Session
	state         ConnState
	fatal         error
	everConnected bool
}

func newTransportClient(cfg *configpkg.Config, logger loggingpkg.ServiceLogger, registry *transportpkg.Registry, metrics *Metrics, onFatal func(error)) *transportClient {
	if registry == nil {
		registry = transportpkg.DefaultRegistry
	}
	return &transportClient{
		cfg:      cfg,
		logger:   logger,
		wmLogger: loggingpkg.NewWatermillAdapter(logger),
		registry: registry,
		metrics:  metrics,
		tracer:   otel.Tracer("actorkit-transport"),
		onFatal:  onFatal,
		done:     make(chan struct{}),
		state:    StateDisconnected,
	}
}

// State returns the current connection state.
func (c *transportClient) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Fatal returns the terminal error, if the client has hit one.
func (c *transportClient) Fatal() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

func (c *transportClient) newBackoff(initial, max time.Duration) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.MaxInterval = max
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// ensureSessionLocked dials and authenticates a session if none is live.
// Caller holds c.mu.
func (c *transportClient) ensureSessionLocked(ctx context.Context) (transportpkg.Session, error) {
	if c.fatal != nil {
		return nil, c.fatal
	}
	if c.session != nil {
		return c.session, nil
	}
	// No reconnects once draining: frames that cannot use the live session
	// are dropped by the caller's accounting.
	if c.state == StateClosed || c.state == StateDraining {
		return nil, errspkg.ErrClientClosed
	}

	c.state = StateConnecting
	bo := c.newBackoff(c.cfg.ReconnectInterval, c.cfg.ReconnectMaxBackoff)
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := c.interrupted(ctx); err != nil {
			c.state = StateDisconnected
			return nil, err
		}

		sess, err := c.registry.Dial(ctx, c.cfg, c.wmLogger)
		if err == nil {
			err = c.handshake(ctx, sess)
			if err == nil {
				if c.everConnected {
					c.metrics.Reconnect()
				}
				c.everConnected = true
				c.session = sess
				c.state = StateReady
				return sess, nil
			}
			_ = sess.Close(ctx)
			if errors.Is(err, errspkg.ErrAuthRejected) {
				return nil, c.setFatalLocked(err)
			}
		}
		lastErr = err

		c.logger.Warn("connect attempt failed", loggingpkg.LogFields{
			"attempt":  attempt,
			"endpoint": c.cfg.Endpoint,
			"err":      err.Error(),
		})

		if attempt >= c.cfg.MaxReconnects {
			return nil, c.setFatalLocked(fmt.Errorf("%w after %d attempts: %v",
				errspkg.ErrRetryBudgetExhausted, attempt, lastErr))
		}
		if err := c.sleep(ctx, bo.NextBackOff()); err != nil {
			c.state = StateDisconnected
			return nil, err
		}
	}
}

// handshake authenticates the freshly dialed session with the launch-context
// credentials. Rejection is terminal; anything else is transient.
func (c *transportClient) handshake(ctx context.Context, sess transportpkg.Session) error {
	frame, err := protocol.NewAuthFrame(c.cfg.RunID, c.cfg.Token)
	if err != nil {
		return err
	}
	ack, err := sess.Send(ctx, frame)
	if err != nil {
		return err
	}
	if ack.Code == protocol.CodeAuthRejected {
		return fmt.Errorf("%w: %s", errspkg.ErrAuthRejected, ack.Message)
	}
	if !ack.OK() {
		return fmt.Errorf("handshake refused: code=%d msg=%s", ack.Code, ack.Message)
	}
	return nil
}

func (c *transportClient) setFatalLocked(err error) error {
	if c.fatal == nil {
		c.fatal = err
		c.state = StateDisconnected
		c.logger.Error("transport entered fatal state", err, nil)
		if c.onFatal != nil {
			go c.onFatal(err)
		}
	}
	return c.fatal
}

func (c *transportClient) interrupted(ctx context.Context) error {
	select {
	case <-c.done:
		return errspkg.ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (c *transportClient) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-c.done:
		return errspkg.ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send performs a single fire-and-confirm attempt. A transport error tears
// the session down so the next attempt reconnects.
func (c *transportClient) send(ctx context.Context, frame protocol.Frame) error {
	c.mu.Lock()
	sess, err := c.ensureSessionLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	ctx, span := c.tracer.Start(ctx, "SendFrame")
	defer span.End()
	span.SetAttributes(
		attribute.String("frame.id", frame.ID),
		attribute.String("frame.kind", string(frame.Kind)),
	)

	ack, err := sess.Send(ctx, frame)
	if err != nil {
		span.RecordError(err)
		c.dropSession(ctx, sess)
		return err
	}
	if ack.Code == protocol.CodeAuthRejected {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.setFatalLocked(fmt.Errorf("%w: %s", errspkg.ErrAuthRejected, ack.Message))
	}
	if !ack.OK() {
		return fmt.Errorf("control plane refused %s frame: code=%d msg=%s", frame.Kind, ack.Code, ack.Message)
	}
	return nil
}

func (c *transportClient) dropSession(ctx context.Context, sess transportpkg.Session) {
	_ = sess.Close(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == sess {
		c.session = nil
		if c.state == StateReady {
			c.state = StateDisconnected
		}
	}
}

// SendWithRetry delivers a frame with the per-frame retry budget. Redelivery
// reuses the frame ID, so the control plane can deduplicate. Fatal client
// errors are returned immediately.
func (c *transportClient) SendWithRetry(ctx context.Context, frame protocol.Frame) error {
	bo := c.newBackoff(c.cfg.SendRetryInterval, c.cfg.SendRetryMaxBackoff)
	var lastErr error

	for attempt := 1; attempt <= c.cfg.SendMaxRetries; attempt++ {
		if attempt > 1 {
			c.metrics.SendRetry()
			if err := c.sleep(ctx, bo.NextBackOff()); err != nil {
				return err
			}
		}

		err := c.send(ctx, frame)
		if err == nil {
			return nil
		}
		if c.isTerminal(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("frame %s not delivered after %d attempts: %w", frame.ID, c.cfg.SendMaxRetries, lastErr)
}

// SendOnce delivers a frame with no retry. Used by telemetry, where loss is
// acceptable by contract.
func (c *transportClient) SendOnce(ctx context.Context, frame protocol.Frame) error {
	return c.send(ctx, frame)
}

func (c *transportClient) isTerminal(err error) bool {
	return errors.Is(err, errspkg.ErrAuthRejected) ||
		errors.Is(err, errspkg.ErrRetryBudgetExhausted) ||
		errors.Is(err, errspkg.ErrClientClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// BeginDrain stops new connections while queued frames finish. Sends on the
// live session keep working.
func (c *transportClient) BeginDrain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		c.state = StateDraining
	}
}

// Close tears the session down. Safe to call multiple times.
func (c *transportClient) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		sess := c.session
		c.session = nil
		c.state = StateClosed
		c.mu.Unlock()
		if sess != nil {
			err = sess.Close(ctx)
		}
	})
	return err
}
