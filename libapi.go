package actorkit

import (
	"context"

	runtimepkg "github.com/cafescraper/actorkit/internal/runtime"
	configpkg "github.com/cafescraper/actorkit/internal/runtime/config"
	errspkg "github.com/cafescraper/actorkit/internal/runtime/errors"
	idspkg "github.com/cafescraper/actorkit/internal/runtime/ids"
	inputpkg "github.com/cafescraper/actorkit/internal/runtime/input"
	jsoncodec "github.com/cafescraper/actorkit/internal/runtime/jsoncodec"
	loggingpkg "github.com/cafescraper/actorkit/internal/runtime/logging"
	transportpkg "github.com/cafescraper/actorkit/transport"

	// The built-in wires register themselves; CAFE_TRANSPORT picks one.
	_ "github.com/cafescraper/actorkit/transport/channel"
	_ "github.com/cafescraper/actorkit/transport/nats"
	_ "github.com/cafescraper/actorkit/transport/websocket"
)

type (
	Config = configpkg.Config

	Actor             = runtimepkg.Actor
	ActorDependencies = runtimepkg.ActorDependencies
	BusinessLogic     = runtimepkg.BusinessLogic
	RunContext        = runtimepkg.RunContext

	// Run lifecycle hooks
	RunInfo   = runtimepkg.RunInfo
	RunHooks  = runtimepkg.RunHooks
	Partition = runtimepkg.Partition

	// Result table schema
	ColumnSpec   = runtimepkg.ColumnSpec
	ColumnFormat = runtimepkg.ColumnFormat

	// Telemetry
	TelemetryChannel = runtimepkg.TelemetryChannel

	// Resolved job input
	InputConfiguration = inputpkg.Configuration
	InputValue         = inputpkg.Value
	InputKind          = inputpkg.Kind
	PartitionContext   = inputpkg.PartitionContext

	// Input schema documents (the editor-facing property catalogue)
	InputSchema         = inputpkg.Document
	InputSchemaProperty = inputpkg.Property
	InputSchemaOption   = inputpkg.Option

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Error types
	ConfigDecodeError      = errspkg.ConfigDecodeError
	SchemaMismatchError    = errspkg.SchemaMismatchError
	DeliveryExhaustedError = errspkg.DeliveryExhaustedError
	ReportedFailureError   = runtimepkg.ReportedFailureError

	// Transport extension points
	TransportSession      = transportpkg.Session
	TransportDialer       = transportpkg.Dialer
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

var (
	NewActor      = runtimepkg.NewActor
	ExitCode      = runtimepkg.ExitCode
	ConfigFromEnv = configpkg.FromEnv

	// Run lifecycle hooks
	LoggingHooks  = runtimepkg.LoggingHooks
	AlertingHooks = runtimepkg.AlertingHooks

	// Input helpers
	ResolveInput     = inputpkg.Resolve
	ParseInputSchema = inputpkg.ParseDocument

	// Transport registry
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	TransportNames           = transportpkg.Names

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrAuthRejected          = errspkg.ErrAuthRejected
	ErrClientClosed          = errspkg.ErrClientClosed
	ErrRetryBudgetExhausted  = errspkg.ErrRetryBudgetExhausted
	ErrBusinessLogicRequired = errspkg.ErrBusinessLogicRequired
	ErrConfigRequired        = errspkg.ErrConfigRequired
	ErrParamMissing          = inputpkg.ErrParamMissing
	ErrTypeMismatch          = inputpkg.ErrTypeMismatch

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewWatermillAdapter  = loggingpkg.NewWatermillAdapter

	NewFrameID = idspkg.NewFrameID
)

// Column format constants for SetHeader.
const (
	FormatText    = runtimepkg.FormatText
	FormatInteger = runtimepkg.FormatInteger
	FormatBoolean = runtimepkg.FormatBoolean
	FormatArray   = runtimepkg.FormatArray
	FormatObject  = runtimepkg.FormatObject
)

// Telemetry level constants as carried on the wire.
const (
	LevelDebug = runtimepkg.LevelDebug
	LevelInfo  = runtimepkg.LevelInfo
	LevelWarn  = runtimepkg.LevelWarn
	LevelError = runtimepkg.LevelError
)

// Run is the whole-process entrypoint: build the config from the
// environment, construct the harness, and execute fn. Pair it with ExitCode:
//
//	func main() {
//		err := actorkit.Run(context.Background(), scrape)
//		os.Exit(actorkit.ExitCode(err))
//	}
func Run(ctx context.Context, fn BusinessLogic) error {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return err
	}
	actor, err := NewActor(cfg, ActorDependencies{})
	if err != nil {
		return err
	}
	return actor.Run(ctx, fn)
}
