/*
Package runtime implements the actorkit execution harness.

# Architecture Overview

An Actor wires four cooperating pieces around one business-logic function:

  - the input resolver, which decodes the launch payload and applies the
    partition slice before the logic ever sees it
  - the result spool, which validates rows against the registered column
    schema and delivers them to the control plane in push order
  - the telemetry channel, a bounded drop-oldest log buffer that never
    blocks the producing goroutine
  - the transport client, which owns the single control-plane connection,
    the auth handshake, and every reconnect and retry decision

# Lifecycle

Run executes the business logic exactly once. On success the spool and
telemetry channel are flushed and the connection is drained before Close.
On failure a terminal record describing the error is delivered through the
same ordered path, then the shutdown sequence runs identically; the
returned error wraps the business failure in ReportedFailureError so
ExitCode can distinguish "failed and reported" from "failed to report".

# Frames

All traffic to the control plane is protocol.Frame values sent through a
transport.Session. Each frame is acknowledged individually; a frame resent
after a reconnect keeps its original ID so the receiver can deduplicate.

Everything in this package is internal. The importable surface is the
actorkit root package.
*/
package runtime
