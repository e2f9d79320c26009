// Package actorkit is the in-process runtime for data-extraction actors: it
// resolves the job input the control plane hands to the process, validates
// and delivers result rows over a single persistent connection, and ships
// leveled telemetry without ever blocking the extraction code. Business
// logic is a plain function; the harness owns connection lifecycle, retries,
// and the shutdown sequence.
//
// A run starts with ConfigFromEnv, which reads the launch contract
// (CAFE_INPUT_JSON, CAFE_ENDPOINT, CAFE_RUN_ID, and friends), then NewActor
// resolves the payload, applies the split-key partition slice, and dials the
// control plane lazily on first send. Actor.Run executes the business logic
// exactly once: on success it flushes everything within the grace period, on
// error or panic it pushes a terminal failure record first. The package-level
// Run helper collapses all of that into one call; see README.md for a
// copy/paste quick start snippet.
//
// # Transports
//
// Three transports ship out of the box, selected by CAFE_TRANSPORT:
//   - websocket: The default wire, one persistent connection per run
//   - nats: Request/reply delivery for control planes behind a broker
//   - channel: In-memory hub for testing
//
// Additional wires plug in through the transport registry; RegisterTransport
// accepts any Dialer producing a Session.
//
// # Results
//
// RunContext.SetHeader registers the result table's column schema and
// PushRecord enqueues rows for ordered delivery. Rows pushed before a header
// are buffered and validated the moment the header arrives; rows that fail
// validation are dropped with a telemetry trace and a SchemaMismatchError
// naming every violating column. Delivery order always equals push order.
//
// # Telemetry
//
// RunContext.Log carries debug/info/warn/error events to the control plane
// through a bounded drop-oldest buffer, so logging stays non-blocking even
// with a dead connection. Every event is mirrored to the local structured
// logger.
//
// # Run Hooks
//
// RunHooks provides OnRunStart, OnRunDone, and OnRunError callbacks for
// custom logging, metrics collection, and alerting around the business
// logic. ActorDependencies also takes a custom transport registry, logger,
// and Prometheus registerer when the defaults don't fit.
package actorkit
