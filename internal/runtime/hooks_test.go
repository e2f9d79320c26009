package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	loggingpkg "github.com/cafescraper/actorkit/internal/runtime/logging"
)

func TestRunHooksMergeCallsBothInOrder(t *testing.T) {
	var calls []string
	first := RunHooks{
		OnRunStart: func(RunInfo) { calls = append(calls, "first-start") },
		OnRunDone:  func(RunInfo) { calls = append(calls, "first-done") },
	}
	second := RunHooks{
		OnRunStart: func(RunInfo) { calls = append(calls, "second-start") },
		OnRunDone:  func(RunInfo) { calls = append(calls, "second-done") },
	}

	merged := first.Merge(second)
	info := RunInfo{RunID: "run-1"}
	merged.OnRunStart(info)
	merged.OnRunDone(info)

	want := []string{"first-start", "second-start", "first-done", "second-done"}
	if len(calls) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d: expected %q, got %q", i, want[i], calls[i])
		}
	}
}

func TestRunHooksMergeWithNilSides(t *testing.T) {
	var fired bool
	withError := RunHooks{
		OnRunError: func(RunInfo, error) { fired = true },
	}

	merged := RunHooks{}.Merge(withError)
	if merged.OnRunStart != nil || merged.OnRunDone != nil {
		t.Fatal("merging nil hooks should stay nil")
	}
	merged.OnRunError(RunInfo{}, errors.New("boom"))
	if !fired {
		t.Fatal("expected the non-nil side to be called")
	}
}

func TestLoggingHooks(t *testing.T) {
	rec := &recordingHookLogger{}
	hooks := LoggingHooks(rec)

	info := RunInfo{
		RunID:     "run-7",
		Transport: "channel",
		Context:   context.Background(),
		StartedAt: time.Now(),
		Duration:  42 * time.Millisecond,
	}

	hooks.OnRunStart(info)
	hooks.OnRunDone(info)
	hooks.OnRunError(info, errors.New("scrape failed"))

	if len(rec.infos) != 2 {
		t.Fatalf("expected 2 info logs, got %d", len(rec.infos))
	}
	if len(rec.errors) != 1 {
		t.Fatalf("expected 1 error log, got %d", len(rec.errors))
	}
	if got := rec.infos[0].fields["run_id"]; got != "run-7" {
		t.Fatalf("expected run_id field, got %v", got)
	}
	if _, ok := rec.infos[1].fields["duration_ms"]; !ok {
		t.Fatal("completion log should carry duration_ms")
	}
}

func TestAlertingHooks(t *testing.T) {
	var gotErr error
	hooks := AlertingHooks(func(info RunInfo, err error) { gotErr = err })

	if hooks.OnRunStart != nil || hooks.OnRunDone != nil {
		t.Fatal("alerting hooks should only react to errors")
	}

	boom := errors.New("boom")
	hooks.OnRunError(RunInfo{}, boom)
	if gotErr != boom {
		t.Fatalf("expected alert with %v, got %v", boom, gotErr)
	}
}

type hookLogEntry struct {
	msg    string
	fields loggingpkg.LogFields
}

type recordingHookLogger struct {
	infos  []hookLogEntry
	errors []hookLogEntry
}

func (r *recordingHookLogger) Debug(msg string, fields loggingpkg.LogFields) {}
func (r *recordingHookLogger) Info(msg string, fields loggingpkg.LogFields) {
	r.infos = append(r.infos, hookLogEntry{msg, fields})
}
func (r *recordingHookLogger) Warn(msg string, fields loggingpkg.LogFields) {}
func (r *recordingHookLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	r.errors = append(r.errors, hookLogEntry{msg, fields})
}
func (r *recordingHookLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	return r
}
