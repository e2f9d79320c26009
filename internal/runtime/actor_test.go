package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/cafescraper/actorkit/internal/runtime/config"
	errspkg "github.com/cafescraper/actorkit/internal/runtime/errors"
	loggingpkg "github.com/cafescraper/actorkit/internal/runtime/logging"
	"github.com/cafescraper/actorkit/internal/runtime/protocol"
	transportpkg "github.com/cafescraper/actorkit/transport"
	"github.com/cafescraper/actorkit/transport/channel"
)

func testActorConfig(inputJSON string) *configpkg.Config {
	return &configpkg.Config{
		InputJSON:           inputJSON,
		Endpoint:            "mem",
		Transport:           "channel",
		RunID:               "run-test",
		Token:               "tok",
		MaxReconnects:       3,
		ReconnectInterval:   time.Millisecond,
		ReconnectMaxBackoff: 5 * time.Millisecond,
		SendMaxRetries:      3,
		SendRetryInterval:   time.Millisecond,
		SendRetryMaxBackoff: 5 * time.Millisecond,
		ShutdownGrace:       5 * time.Second,
	}
}

func newTestActor(t *testing.T, hub *channel.Hub, cfg *configpkg.Config, hooks RunHooks) *Actor {
	t.Helper()
	reg := transportpkg.NewRegistry()
	reg.RegisterWithCapabilities("channel", hub.Dialer(), transportpkg.ChannelCapabilities)

	actor, err := NewActor(cfg, ActorDependencies{
		Logger:     loggingpkg.Discard(),
		Registry:   reg,
		Hooks:      hooks,
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("NewActor failed: %v", err)
	}
	return actor
}

func TestActorRunSuccess(t *testing.T) {
	hub := channel.NewHub()
	actor := newTestActor(t, hub, testActorConfig(`{"query":"kittens","limit":2}`), RunHooks{})

	err := actor.Run(context.Background(), func(ctx context.Context, run *RunContext) error {
		if run.RunID() != "run-test" {
			t.Fatalf("unexpected run id: %s", run.RunID())
		}
		if err := run.SetHeader([]ColumnSpec{
			{Label: "Title", Key: "title", Format: FormatText},
		}); err != nil {
			return err
		}
		run.Log().Info("starting")
		if err := run.PushRecord(map[string]any{"title": "first"}); err != nil {
			return err
		}
		return run.PushRecord(map[string]any{"title": "second"})
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ExitCode(err) != 0 {
		t.Fatalf("expected exit code 0, got %d", ExitCode(err))
	}

	if auths := hub.FramesOfKind(protocol.KindAuth); len(auths) == 0 {
		t.Fatal("expected an auth frame")
	}
	if headers := hub.FramesOfKind(protocol.KindSetHeader); len(headers) != 1 {
		t.Fatalf("expected 1 header frame, got %d", len(headers))
	}
	records := hub.FramesOfKind(protocol.KindPushRecord)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if decodeRow(t, records[0])["title"] != "first" || decodeRow(t, records[1])["title"] != "second" {
		t.Fatal("records out of order")
	}
	if logs := hub.FramesOfKind(protocol.KindLog); len(logs) == 0 {
		t.Fatal("expected telemetry delivered before exit")
	}
}

func TestActorRunBusinessFailurePushesTerminalRecord(t *testing.T) {
	hub := channel.NewHub()
	actor := newTestActor(t, hub, testActorConfig(`{}`), RunHooks{})

	boom := errors.New("site layout changed")
	err := actor.Run(context.Background(), func(ctx context.Context, run *RunContext) error {
		return boom
	})

	var reported *ReportedFailureError
	if !errors.As(err, &reported) {
		t.Fatalf("expected ReportedFailureError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped business error, got %v", err)
	}
	if ExitCode(err) != 0 {
		t.Fatal("reported failures exit clean")
	}

	records := hub.FramesOfKind(protocol.KindPushRecord)
	if len(records) != 1 {
		t.Fatalf("expected exactly the terminal record, got %d", len(records))
	}
	row := decodeRow(t, records[0])
	if row["status"] != "failed" || row["error_code"] != "500" {
		t.Fatalf("unexpected terminal record: %v", row)
	}
	if row["error"] != boom.Error() {
		t.Fatalf("unexpected error text: %v", row["error"])
	}
}

func TestActorRunFailureWithUnreachableControlPlaneExitsNonZero(t *testing.T) {
	hub := channel.NewHub()
	hub.RequireToken("other-token")
	actor := newTestActor(t, hub, testActorConfig(`{}`), RunHooks{})

	boom := errors.New("business blew up")
	err := actor.Run(context.Background(), func(ctx context.Context, run *RunContext) error {
		return boom
	})

	if len(hub.FramesOfKind(protocol.KindPushRecord)) != 0 {
		t.Fatal("no record should reach a control plane that rejects every handshake")
	}
	var reported *ReportedFailureError
	if errors.As(err, &reported) {
		t.Fatalf("undelivered terminal record must not count as reported: %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected the business error back, got %v", err)
	}
	if ExitCode(err) != 1 {
		t.Fatal("run must exit non-zero when the terminal record was never delivered")
	}
}

func TestActorRunSuccessSurfacesTransportFatal(t *testing.T) {
	hub := channel.NewHub()
	hub.FailNext(1000, errors.New("network down"))
	actor := newTestActor(t, hub, testActorConfig(`{}`), RunHooks{})

	err := actor.Run(context.Background(), func(ctx context.Context, run *RunContext) error {
		run.Log().Info("about to finish clean")
		return nil
	})

	if !errors.Is(err, errspkg.ErrRetryBudgetExhausted) {
		t.Fatalf("expected retry budget exhaustion, got %v", err)
	}
	if ExitCode(err) != 1 {
		t.Fatal("transport fatal on an otherwise clean run must exit non-zero")
	}
}

type rateLimitedError struct{}

func (rateLimitedError) Error() string     { return "rate limited" }
func (rateLimitedError) ErrorCode() string { return "429" }

func TestActorTerminalRecordUsesErrorCode(t *testing.T) {
	hub := channel.NewHub()
	actor := newTestActor(t, hub, testActorConfig(`{}`), RunHooks{})

	_ = actor.Run(context.Background(), func(ctx context.Context, run *RunContext) error {
		return rateLimitedError{}
	})

	records := hub.FramesOfKind(protocol.KindPushRecord)
	if len(records) != 1 {
		t.Fatalf("expected terminal record, got %d frames", len(records))
	}
	if code := decodeRow(t, records[0])["error_code"]; code != "429" {
		t.Fatalf("expected error_code 429, got %v", code)
	}
}

func TestActorContainsPanic(t *testing.T) {
	hub := channel.NewHub()
	actor := newTestActor(t, hub, testActorConfig(`{}`), RunHooks{})

	err := actor.Run(context.Background(), func(ctx context.Context, run *RunContext) error {
		panic("selector exploded")
	})

	var reported *ReportedFailureError
	if !errors.As(err, &reported) {
		t.Fatalf("expected contained panic as ReportedFailureError, got %v", err)
	}
	records := hub.FramesOfKind(protocol.KindPushRecord)
	if len(records) != 1 {
		t.Fatalf("expected terminal record after panic, got %d", len(records))
	}
	if decodeRow(t, records[0])["status"] != "failed" {
		t.Fatal("expected failed status after panic")
	}
}

func TestActorRunExactlyOnce(t *testing.T) {
	hub := channel.NewHub()
	actor := newTestActor(t, hub, testActorConfig(`{}`), RunHooks{})

	noop := func(ctx context.Context, run *RunContext) error { return nil }
	if err := actor.Run(context.Background(), noop); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if err := actor.Run(context.Background(), noop); err == nil {
		t.Fatal("expected second Run to fail")
	}
}

func TestActorRequiresBusinessLogic(t *testing.T) {
	hub := channel.NewHub()
	actor := newTestActor(t, hub, testActorConfig(`{}`), RunHooks{})
	if err := actor.Run(context.Background(), nil); !errors.Is(err, errspkg.ErrBusinessLogicRequired) {
		t.Fatalf("expected ErrBusinessLogicRequired, got %v", err)
	}
}

func TestNewActorRequiresConfig(t *testing.T) {
	_, err := NewActor(nil, ActorDependencies{})
	if !errors.Is(err, errspkg.ErrConfigRequired) {
		t.Fatalf("expected ErrConfigRequired, got %v", err)
	}
}

func TestNewActorRejectsMalformedInput(t *testing.T) {
	cfg := testActorConfig(`{"broken`)
	_, err := NewActor(cfg, ActorDependencies{Logger: loggingpkg.Discard(), Registerer: prometheus.NewRegistry()})
	var decodeErr *errspkg.ConfigDecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected ConfigDecodeError, got %v", err)
	}
}

func TestActorAppliesPartitionSlice(t *testing.T) {
	hub := channel.NewHub()
	cfg := testActorConfig(`{"urls":["a","b","c","d"],"depth":2}`)
	cfg.SplitKey = "urls"
	cfg.PartitionIndex = 1
	cfg.PartitionCount = 2
	actor := newTestActor(t, hub, cfg, RunHooks{})

	err := actor.Run(context.Background(), func(ctx context.Context, run *RunContext) error {
		p := run.Partition()
		if p == nil || p.Index != 1 || p.Count != 2 {
			t.Fatalf("unexpected partition: %+v", p)
		}
		urls, err := run.Input().Strings("urls")
		if err != nil {
			return err
		}
		if len(urls) != 2 || urls[0] != "c" || urls[1] != "d" {
			t.Fatalf("unexpected slice: %v", urls)
		}
		depth, err := run.Input().Int64("depth")
		if err != nil || depth != 2 {
			t.Fatalf("other keys must stay intact: %d %v", depth, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestActorRunHooks(t *testing.T) {
	hub := channel.NewHub()
	var started, failed bool
	hooks := RunHooks{
		OnRunStart: func(info RunInfo) { started = true },
		OnRunError: func(info RunInfo, err error) { failed = true },
	}
	actor := newTestActor(t, hub, testActorConfig(`{}`), hooks)

	_ = actor.Run(context.Background(), func(ctx context.Context, run *RunContext) error {
		return errors.New("nope")
	})
	if !started || !failed {
		t.Fatalf("expected hooks to fire: started=%v failed=%v", started, failed)
	}
}

func TestRunContextExposesLaunchContext(t *testing.T) {
	hub := channel.NewHub()
	cfg := testActorConfig(`{"query":"x"}`)
	cfg.ProxyAuth = "user:pass"
	actor := newTestActor(t, hub, cfg, RunHooks{})

	err := actor.Run(context.Background(), func(ctx context.Context, run *RunContext) error {
		if run.ProxyAuth() != cfg.ProxyAuth {
			t.Fatalf("proxy auth not passed through: %q", run.ProxyAuth())
		}
		if want := "socks5://user:pass@" + proxyDomain; run.ProxyURL() != want {
			t.Fatalf("expected proxy url %q, got %q", want, run.ProxyURL())
		}
		if run.InputJSON() != `{"query":"x"}` {
			t.Fatalf("unexpected raw input: %q", run.InputJSON())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Fatal("nil error must exit 0")
	}
	if ExitCode(&ReportedFailureError{Err: errors.New("x")}) != 0 {
		t.Fatal("reported failure must exit 0")
	}
	if ExitCode(errors.New("harness broke")) != 1 {
		t.Fatal("unreported error must exit 1")
	}
}
