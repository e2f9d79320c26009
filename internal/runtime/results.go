package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	errspkg "github.com/cafescraper/actorkit/internal/runtime/errors"
	loggingpkg "github.com/cafescraper/actorkit/internal/runtime/logging"
	"github.com/cafescraper/actorkit/internal/runtime/protocol"
)

// resultSpool owns the outgoing result stream: it validates rows against the
// active table header, preserves push order, and hands frames to a single
// drain goroutine so producers never wait on network I/O. Rows pushed before
// any header exists are buffered and validated the moment a header arrives.
type resultSpool struct {
	client    *transportClient
	telemetry *TelemetryChannel
	logger    loggingpkg.ServiceLogger
	metrics   *Metrics

	frames chan protocol.Frame
	queued atomic.Int64

	mu      sync.Mutex
	schema  *tableSchema
	pending []map[string]any
	closed  bool

	dropMu  sync.Mutex
	dropped int
	lastErr error

	drainDone chan struct{}
}

func newResultSpool(client *transportClient, telemetry *TelemetryChannel, logger loggingpkg.ServiceLogger, metrics *Metrics, buffer int) *resultSpool {
	s := &resultSpool{
		client:    client,
		telemetry: telemetry,
		logger:    logger,
		metrics:   metrics,
		frames:    make(chan protocol.Frame, buffer),
		drainDone: make(chan struct{}),
	}
	go s.drain()
	return s
}

// SetHeader registers or fully replaces the active table header. Rows
// buffered before the first header are validated now: compatible rows are
// transmitted in their original push order, incompatible ones are dropped
// with a telemetry trace.
func (s *resultSpool) SetHeader(columns []ColumnSpec) error {
	schema, err := newTableSchema(columns)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errspkg.ErrClientClosed
	}

	if s.schema != nil {
		s.telemetry.Warn("table header replaced; prior column schema discarded")
	}
	s.schema = schema

	frame, err := protocol.NewHeaderFrame(schema.wireColumns())
	if err != nil {
		return err
	}
	s.enqueueLocked(frame)

	pending := s.pending
	s.pending = nil
	for _, row := range pending {
		validated, verr := schema.validateRecord(row)
		if verr != nil {
			s.reportMismatch(verr)
			continue
		}
		s.enqueueRowLocked(validated)
	}
	return nil
}

// PushRecord validates one row and enqueues it for ordered transmission.
// With no header registered yet the row is buffered provisionally. A
// validation failure drops the row, leaves a telemetry trace, and returns a
// SchemaMismatchError; execution may continue.
func (s *resultSpool) PushRecord(row map[string]any) error {
	copied := make(map[string]any, len(row))
	for k, v := range row {
		copied[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errspkg.ErrClientClosed
	}

	if s.schema == nil {
		s.pending = append(s.pending, copied)
		return nil
	}

	validated, verr := s.schema.validateRecord(copied)
	if verr != nil {
		s.reportMismatch(verr)
		return verr
	}
	s.enqueueRowLocked(validated)
	return nil
}

// pushUntyped enqueues a row without schema validation. Used for the
// terminal failure record and for best-effort transmission of rows whose
// schema never arrived.
func (s *resultSpool) pushUntyped(row map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errspkg.ErrClientClosed
	}
	s.enqueueRowLocked(row)
	return nil
}

func (s *resultSpool) enqueueRowLocked(row map[string]any) {
	frame, err := protocol.NewRecordFrame(row)
	if err != nil {
		s.telemetry.Error(fmt.Sprintf("record not serialisable, dropped: %v", err))
		s.metrics.FrameDropped(string(protocol.KindPushRecord))
		return
	}
	s.enqueueLocked(frame)
}

// enqueueLocked hands a frame to the drain goroutine. Blocks only when the
// spool buffer is full (backpressure), never on network I/O.
func (s *resultSpool) enqueueLocked(frame protocol.Frame) {
	s.queued.Add(1)
	s.frames <- frame
}

func (s *resultSpool) reportMismatch(verr *errspkg.SchemaMismatchError) {
	s.telemetry.Error(verr.Error())
	s.metrics.FrameDropped(string(protocol.KindPushRecord))
}

// drain is the single writer feeding the transport. One goroutine, one
// channel: frame order is push order by construction.
func (s *resultSpool) drain() {
	defer close(s.drainDone)
	for frame := range s.frames {
		err := s.client.SendWithRetry(context.Background(), frame)
		if err != nil {
			s.dropMu.Lock()
			s.dropped++
			s.lastErr = err
			s.dropMu.Unlock()
			s.metrics.FrameDropped(string(frame.Kind))
			s.telemetry.Error(fmt.Sprintf("dropped %s frame %s after retries: %v", frame.Kind, frame.ID, err))
		} else {
			s.metrics.FrameSent(string(frame.Kind))
		}
		s.queued.Add(-1)
	}
}

// Flush waits until every enqueued frame has been attempted, then reports
// rows dropped since the previous Flush as a DeliveryExhaustedError.
func (s *resultSpool) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for s.queued.Load() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.dropMu.Lock()
	dropped, lastErr := s.dropped, s.lastErr
	s.dropped, s.lastErr = 0, nil
	s.dropMu.Unlock()

	if dropped > 0 {
		return &errspkg.DeliveryExhaustedError{Dropped: dropped, Last: lastErr}
	}
	return nil
}

// Close flushes and shuts the spool down. If no header was ever registered,
// buffered rows are still transmitted untyped with a missing-schema warning
// so nothing is silently lost.
func (s *resultSpool) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.drainDone
		return nil
	}
	if s.schema == nil && len(s.pending) > 0 {
		s.telemetry.Warn(fmt.Sprintf("no table header was registered; transmitting %d buffered row(s) untyped", len(s.pending)))
		for _, row := range s.pending {
			s.enqueueRowLocked(row)
		}
		s.pending = nil
	}
	s.closed = true
	s.mu.Unlock()

	flushErr := s.Flush(ctx)

	s.mu.Lock()
	close(s.frames)
	s.mu.Unlock()

	select {
	case <-s.drainDone:
	case <-ctx.Done():
	}

	if remaining := s.queued.Load(); remaining > 0 {
		s.logger.Warn("rows still queued at shutdown, dropping", loggingpkg.LogFields{"count": remaining})
		for i := int64(0); i < remaining; i++ {
			s.metrics.FrameDropped(string(protocol.KindPushRecord))
		}
	}
	return flushErr
}
