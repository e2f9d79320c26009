package runtime

import (
	"context"
	sterrors "errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/cafescraper/actorkit/internal/runtime/config"
	errspkg "github.com/cafescraper/actorkit/internal/runtime/errors"
	inputpkg "github.com/cafescraper/actorkit/internal/runtime/input"
	loggingpkg "github.com/cafescraper/actorkit/internal/runtime/logging"
	transportpkg "github.com/cafescraper/actorkit/transport"
)

// BusinessLogic is the user's extraction routine. It receives a RunContext
// for input access and result/telemetry delivery and returns an error when
// the run failed for business reasons.
type BusinessLogic func(ctx context.Context, run *RunContext) error

// ActorDependencies allows overriding collaborators when constructing an
// Actor. Zero value is fine for production use.
type ActorDependencies struct {
	// Logger is the local structured logger. Defaults to slog JSON on stderr.
	Logger loggingpkg.ServiceLogger
	// Registry resolves transport names to dialers. Defaults to the global
	// registry with websocket, nats, and channel registered.
	Registry *transportpkg.Registry
	// Hooks observe the run lifecycle.
	Hooks RunHooks
	// Registerer receives the delivery metrics. Defaults to the global
	// Prometheus registerer.
	Registerer prometheus.Registerer
}

// Actor is the run harness: it resolves the job input, owns the transport
// client, the result spool, and the telemetry channel, and guarantees the
// shutdown sequence regardless of how the business logic ends.
type Actor struct {
	cfg     *configpkg.Config
	logger  loggingpkg.ServiceLogger
	hooks   RunHooks
	metrics *Metrics

	client    *transportClient
	telemetry *TelemetryChannel
	results   *resultSpool

	input     *inputpkg.Configuration
	rawInput  []byte
	partition *Partition

	ran bool
}

// NewActor builds the harness from a launch config. Input resolution happens
// here: a malformed payload or a missing/non-array split key fails
// construction before any business logic can run.
func NewActor(cfg *configpkg.Config, deps ActorDependencies) (*Actor, error) {
	if cfg == nil {
		return nil, errspkg.ErrConfigRequired
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = loggingpkg.NewSlogServiceLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}

	payload, err := readPayload(cfg)
	if err != nil {
		return nil, err
	}

	pc, partition := partitionFromConfig(cfg)
	resolved, err := inputpkg.Resolve(payload, cfg.SplitKey, pc)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics(deps.Registerer)
	if err := metrics.Register(); err != nil {
		logger.Warn("metrics registration failed", loggingpkg.LogFields{"error": err.Error()})
	}

	a := &Actor{
		cfg:       cfg,
		logger:    logger,
		hooks:     deps.Hooks,
		metrics:   metrics,
		input:     resolved,
		rawInput:  payload,
		partition: partition,
	}
	a.client = newTransportClient(cfg, logger, deps.Registry, metrics, nil)
	a.telemetry = newTelemetryChannel(a.client, logger, metrics, cfg.LogBuffer)
	a.results = newResultSpool(a.client, a.telemetry, logger, metrics, cfg.ResultBuffer)

	if cfg.MetricsPort > 0 {
		metrics.Serve(cfg.MetricsPort, logger)
	}
	return a, nil
}

func readPayload(cfg *configpkg.Config) ([]byte, error) {
	if cfg.InputJSON != "" {
		return []byte(cfg.InputJSON), nil
	}
	if cfg.InputFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(cfg.InputFile)
	if err != nil {
		return nil, &errspkg.ConfigDecodeError{Cause: fmt.Errorf("input file: %w", err)}
	}
	return data, nil
}

func partitionFromConfig(cfg *configpkg.Config) (*inputpkg.PartitionContext, *Partition) {
	if cfg.PartitionRange != "" {
		lo, hi, err := configpkg.ParseRange(cfg.PartitionRange)
		if err != nil {
			// Validate caught this already.
			return nil, nil
		}
		pc := &inputpkg.PartitionContext{
			Index:    cfg.PartitionIndex,
			Count:    cfg.PartitionCount,
			Lo:       lo,
			Hi:       hi,
			Explicit: true,
		}
		return pc, &Partition{Index: cfg.PartitionIndex, Count: cfg.PartitionCount}
	}
	if !cfg.HasPartition() {
		return nil, nil
	}
	pc := &inputpkg.PartitionContext{Index: cfg.PartitionIndex, Count: cfg.PartitionCount}
	return pc, &Partition{Index: cfg.PartitionIndex, Count: cfg.PartitionCount}
}

// ReportedFailureError wraps a business error whose terminal failure record
// was delivered to the control plane. ExitCode treats it as a clean exit:
// the failure reached the control plane, the process did its job.
type ReportedFailureError struct {
	Err error
}

func (e *ReportedFailureError) Error() string {
	return fmt.Sprintf("run failed (reported): %v", e.Err)
}

func (e *ReportedFailureError) Unwrap() error { return e.Err }

// Run executes the business logic exactly once and drives the shutdown
// sequence: result flush, telemetry drain, connection drain, close. A
// panicking or failing fn produces a terminal failure record before
// shutdown. Run never re-runs; a second call returns an error.
func (a *Actor) Run(ctx context.Context, fn BusinessLogic) error {
	if fn == nil {
		return errspkg.ErrBusinessLogicRequired
	}
	if a.ran {
		return fmt.Errorf("actorkit: Run called twice")
	}
	a.ran = true

	info := RunInfo{
		RunID:     a.cfg.RunID,
		Transport: a.cfg.Transport,
		Context:   ctx,
		StartedAt: time.Now(),
		Partition: a.partition,
	}
	if a.hooks.OnRunStart != nil {
		a.hooks.OnRunStart(info)
	}

	runErr := a.invoke(ctx, fn)
	info.Duration = time.Since(info.StartedAt)

	if runErr != nil {
		if a.hooks.OnRunError != nil {
			a.hooks.OnRunError(info, runErr)
		}
		a.reportFailure(runErr)
	} else if a.hooks.OnRunDone != nil {
		a.hooks.OnRunDone(info)
	}

	flushErr := a.shutdown()

	switch {
	case runErr != nil:
		// The run failed and the terminal record may sit among the dropped
		// frames. Returning the raw error keeps the exit status non-zero, so
		// the control plane does not mistake the run for a reported failure.
		if a.client.Fatal() != nil || flushErr != nil {
			return runErr
		}
		return &ReportedFailureError{Err: runErr}
	case flushErr != nil:
		return flushErr
	default:
		return a.client.Fatal()
	}
}

// invoke runs fn with panic containment. A panic becomes an ordinary run
// error so the terminal record and the shutdown sequence still happen.
func (a *Actor) invoke(ctx context.Context, fn BusinessLogic) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("business logic panicked", fmt.Errorf("%v", r), loggingpkg.LogFields{
				"stack": string(debug.Stack()),
			})
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, &RunContext{actor: a, ctx: ctx})
}

// reportFailure pushes the terminal failure record. It bypasses schema
// validation: the registered header rarely declares these keys.
func (a *Actor) reportFailure(runErr error) {
	code := "500"
	if coded, ok := runErr.(interface{ ErrorCode() string }); ok {
		code = coded.ErrorCode()
	}
	record := map[string]any{
		"error":      runErr.Error(),
		"error_code": code,
		"status":     "failed",
	}
	if err := a.results.pushUntyped(record); err != nil {
		a.logger.Error("terminal failure record not enqueued", err, nil)
	}
	a.telemetry.Error(fmt.Sprintf("run failed: %v", runErr))
}

// shutdown flushes results and telemetry within the grace period, then
// drains and closes the connection. Always runs to the end; errors are
// collected, not short-circuited.
func (a *Actor) shutdown() error {
	grace, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGrace)
	defer cancel()

	flushErr := a.results.Close(grace)
	if err := a.telemetry.Close(grace); err != nil {
		a.logger.Warn("telemetry drain incomplete", loggingpkg.LogFields{"error": err.Error()})
	}

	a.client.BeginDrain()
	if err := a.client.Close(grace); err != nil {
		a.logger.Warn("transport close failed", loggingpkg.LogFields{"error": err.Error()})
	}
	return flushErr
}

// ExitCode maps a Run result to a process exit code. A reported business
// failure exits clean because the control plane already holds the terminal
// record; only harness-side failures produce a non-zero code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var reported *ReportedFailureError
	if sterrors.As(err, &reported) {
		return 0
	}
	return 1
}

// RunContext is what business logic sees: resolved input, result delivery,
// and telemetry, all backed by the harness.
type RunContext struct {
	actor *Actor
	ctx   context.Context
}

// Input returns the resolved job configuration, split-key slice applied.
func (r *RunContext) Input() *inputpkg.Configuration { return r.actor.input }

// InputJSON returns the raw job payload exactly as the control plane sent
// it, before partition slicing.
func (r *RunContext) InputJSON() string { return string(r.actor.rawInput) }

// ProxyAuth returns the opaque proxy credential from the launch context.
func (r *RunContext) ProxyAuth() string { return r.actor.cfg.ProxyAuth }

// proxyDomain is the egress gateway actors tunnel through.
const proxyDomain = "proxy-inner.cafescraper.com:6000"

// ProxyURL returns the ready-to-use SOCKS5 proxy address, or "" when the
// launch context carried no proxy credential.
func (r *RunContext) ProxyURL() string {
	auth := r.actor.cfg.ProxyAuth
	if auth == "" {
		return ""
	}
	return fmt.Sprintf("socks5://%s@%s", auth, proxyDomain)
}

// RunID returns the control-plane identifier for this process instance.
func (r *RunContext) RunID() string { return r.actor.cfg.RunID }

// Partition returns the slice assignment, or nil for a whole-array run.
func (r *RunContext) Partition() *Partition { return r.actor.partition }

// SetHeader registers the result table's column schema.
func (r *RunContext) SetHeader(columns []ColumnSpec) error {
	return r.actor.results.SetHeader(columns)
}

// PushRecord validates one row against the registered header and enqueues
// it for ordered delivery.
func (r *RunContext) PushRecord(row map[string]any) error {
	return r.actor.results.PushRecord(row)
}

// Log returns the telemetry channel.
func (r *RunContext) Log() *TelemetryChannel { return r.actor.telemetry }

// Logger returns the local structured logger.
func (r *RunContext) Logger() loggingpkg.ServiceLogger { return r.actor.logger }
