package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	loggingpkg "github.com/cafescraper/actorkit/internal/runtime/logging"
	"github.com/cafescraper/actorkit/internal/runtime/protocol"
)

// Telemetry levels carried on the wire.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// TelemetryChannel ships leveled log events to the control plane without
// ever blocking the caller. Events queue in a bounded ring; when the ring is
// full the oldest event is discarded and a single synthetic overflow warning
// is recorded per overflow episode. Every event is also mirrored to the
// local logger so output survives a dead transport.
type TelemetryChannel struct {
	client  *transportClient
	logger  loggingpkg.ServiceLogger
	metrics *Metrics

	capacity int

	mu          sync.Mutex
	drainMu     sync.Mutex
	buf         []protocol.Frame
	overflowing bool
	closed      bool

	notify chan struct{}
	done   chan struct{}

	closeOnce sync.Once
}

func newTelemetryChannel(client *transportClient, logger loggingpkg.ServiceLogger, metrics *Metrics, capacity int) *TelemetryChannel {
	t := &TelemetryChannel{
		client:   client,
		logger:   logger,
		metrics:  metrics,
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go t.sender()
	return t
}

// Debug records a debug-level event.
func (t *TelemetryChannel) Debug(msg string) { t.emit(LevelDebug, msg) }

// Info records an info-level event.
func (t *TelemetryChannel) Info(msg string) { t.emit(LevelInfo, msg) }

// Warn records a warn-level event.
func (t *TelemetryChannel) Warn(msg string) { t.emit(LevelWarn, msg) }

// Error records an error-level event.
func (t *TelemetryChannel) Error(msg string) { t.emit(LevelError, msg) }

func (t *TelemetryChannel) emit(level, msg string) {
	t.mirror(level, msg)

	frame, err := protocol.NewLogFrame(level, msg, time.Now().UTC())
	if err != nil {
		t.logger.Error("log event not serialisable", err, nil)
		return
	}
	t.enqueue(frame)
}

func (t *TelemetryChannel) mirror(level, msg string) {
	switch level {
	case LevelDebug:
		t.logger.Debug(msg, nil)
	case LevelWarn:
		t.logger.Warn(msg, nil)
	case LevelError:
		t.logger.Error(msg, nil, nil)
	default:
		t.logger.Info(msg, nil)
	}
}

func (t *TelemetryChannel) enqueue(frame protocol.Frame) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if len(t.buf) >= t.capacity {
		if !t.overflowing {
			t.overflowing = true
			if warn, err := protocol.NewLogFrame(LevelWarn, "telemetry buffer overflow, oldest events discarded", time.Now().UTC()); err == nil {
				t.buf = append(t.buf, warn)
			}
		}
		// Make room for the incoming event without exceeding capacity.
		if drop := len(t.buf) + 1 - t.capacity; drop > 0 {
			if drop > len(t.buf) {
				drop = len(t.buf)
			}
			t.buf = t.buf[drop:]
			t.metrics.LogsDropped(drop)
		}
	}
	t.buf = append(t.buf, frame)
	t.mu.Unlock()

	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// sender is the single goroutine draining the ring in order.
func (t *TelemetryChannel) sender() {
	for {
		select {
		case <-t.done:
			return
		case <-t.notify:
			t.drainAll(context.Background())
		}
	}
}

func (t *TelemetryChannel) drainAll(ctx context.Context) {
	// One drainer at a time keeps wire order equal to emit order.
	t.drainMu.Lock()
	defer t.drainMu.Unlock()

	for {
		t.mu.Lock()
		if len(t.buf) == 0 {
			// Empty ring ends the overflow episode: the next overflow
			// produces a fresh synthetic warning.
			t.overflowing = false
			t.mu.Unlock()
			return
		}
		frame := t.buf[0]
		t.buf = t.buf[1:]
		t.mu.Unlock()

		if err := t.client.SendOnce(ctx, frame); err != nil {
			t.metrics.LogsDropped(1)
			t.logger.Debug("log event not delivered", loggingpkg.LogFields{"error": err.Error()})
		} else {
			t.metrics.FrameSent(string(protocol.KindLog))
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Close drains what it can within ctx, then stops the sender. Events still
// queued when the grace period lapses are dropped and reported once.
func (t *TelemetryChannel) Close(ctx context.Context) error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		t.drainAll(ctx)

		t.mu.Lock()
		t.closed = true
		remaining := len(t.buf)
		t.buf = nil
		t.mu.Unlock()

		if remaining > 0 {
			t.metrics.LogsDropped(remaining)
			t.logger.Warn("telemetry events dropped at shutdown", loggingpkg.LogFields{"count": remaining})
			if frame, ferr := protocol.NewLogFrame(LevelWarn, fmt.Sprintf("%d queued log event(s) dropped at shutdown", remaining), time.Now().UTC()); ferr == nil {
				_ = t.client.SendOnce(ctx, frame)
			}
			err = ctx.Err()
		}
	})
	return err
}
