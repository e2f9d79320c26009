package runtime

import (
	"context"
	"time"

	loggingpkg "github.com/cafescraper/actorkit/internal/runtime/logging"
)

// RunInfo provides information about a run to lifecycle hooks.
type RunInfo struct {
	// RunID identifies the run on the control plane.
	RunID string
	// Transport is the name of the transport in use.
	Transport string
	// Context is the context the run executes under.
	Context context.Context
	// StartedAt is when the business logic started.
	StartedAt time.Time
	// Duration is how long the run took (only set in OnRunDone and OnRunError).
	Duration time.Duration
	// Partition is set when the run owns a slice of the split key.
	Partition *Partition
}

// Partition describes the slice of the split-key array assigned to this run.
type Partition struct {
	Index int
	Count int
}

// RunHooks defines callbacks for run lifecycle events.
// All hooks are optional - nil hooks are simply not called.
type RunHooks struct {
	// OnRunStart is called right before the business logic is invoked.
	OnRunStart func(info RunInfo)

	// OnRunDone is called when the business logic returns without error.
	// Duration will be set to how long it took.
	OnRunDone func(info RunInfo)

	// OnRunError is called when the business logic returns an error or
	// panics. Duration will be set to how long it took before failing.
	OnRunError func(info RunInfo, err error)
}

// Merge combines two RunHooks, creating a new RunHooks that calls both.
// The hooks from 'other' are called after the hooks from 'h'.
func (h RunHooks) Merge(other RunHooks) RunHooks {
	return RunHooks{
		OnRunStart: chainStartHooks(h.OnRunStart, other.OnRunStart),
		OnRunDone:  chainDoneHooks(h.OnRunDone, other.OnRunDone),
		OnRunError: chainErrorHooks(h.OnRunError, other.OnRunError),
	}
}

func chainStartHooks(a, b func(RunInfo)) func(RunInfo) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info RunInfo) {
		a(info)
		b(info)
	}
}

func chainDoneHooks(a, b func(RunInfo)) func(RunInfo) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info RunInfo) {
		a(info)
		b(info)
	}
}

func chainErrorHooks(a, b func(RunInfo, error)) func(RunInfo, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info RunInfo, err error) {
		a(info, err)
		b(info, err)
	}
}

// LoggingHooks returns pre-built hooks that log run lifecycle events.
func LoggingHooks(logger loggingpkg.ServiceLogger) RunHooks {
	return RunHooks{
		OnRunStart: func(info RunInfo) {
			logger.Info("Run started", loggingpkg.LogFields{
				"run_id":    info.RunID,
				"transport": info.Transport,
			})
		},
		OnRunDone: func(info RunInfo) {
			logger.Info("Run completed", loggingpkg.LogFields{
				"run_id":      info.RunID,
				"transport":   info.Transport,
				"duration_ms": info.Duration.Milliseconds(),
			})
		},
		OnRunError: func(info RunInfo, err error) {
			logger.Error("Run failed", err, loggingpkg.LogFields{
				"run_id":      info.RunID,
				"transport":   info.Transport,
				"duration_ms": info.Duration.Milliseconds(),
			})
		},
	}
}

// AlertingHooks returns pre-built hooks that trigger alerts on run errors.
func AlertingHooks(alertFunc func(info RunInfo, err error)) RunHooks {
	return RunHooks{
		OnRunError: alertFunc,
	}
}
