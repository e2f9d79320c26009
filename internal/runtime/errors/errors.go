// Package errors holds the error taxonomy shared by the actorkit runtime.
package errors

import (
	sterrors "errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrAuthRejected is returned when the control plane refuses the
	// credentials presented during the connection handshake. Fatal, never
	// retried.
	ErrAuthRejected = sterrors.New("actorkit: control plane rejected credentials")

	// ErrClientClosed is returned by send operations issued after Close.
	ErrClientClosed = sterrors.New("actorkit: transport client is closed")

	// ErrRetryBudgetExhausted signals that the transport gave up reconnecting
	// after the configured retry budget.
	ErrRetryBudgetExhausted = sterrors.New("actorkit: transport retry budget exhausted")

	ErrBusinessLogicRequired = sterrors.New("actorkit: business logic function is required")
	ErrConfigRequired        = sterrors.New("actorkit: config is required")
	ErrLoggerRequired        = sterrors.New("actorkit: logger is required")
)

// ConfigDecodeError reports a malformed job payload. The actor aborts before
// business logic runs.
type ConfigDecodeError struct {
	Cause error
}

func (e *ConfigDecodeError) Error() string {
	return fmt.Sprintf("actorkit: job payload is not well-formed: %v", e.Cause)
}

func (e *ConfigDecodeError) Unwrap() error { return e.Cause }

// SchemaMismatchError reports a record that violates the registered table
// header. The offending record is dropped; the actor keeps running.
type SchemaMismatchError struct {
	// Violations maps each offending record key to a human-readable reason.
	Violations map[string]string
}

func (e *SchemaMismatchError) Error() string {
	keys := make([]string, 0, len(e.Violations))
	for k := range e.Violations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Violations[k]))
	}
	return "actorkit: record violates table header (" + strings.Join(parts, "; ") + ")"
}

// DeliveryExhaustedError reports rows abandoned after the per-row retry
// budget. It is surfaced on the next Flush or Close call, never from
// PushRecord itself.
type DeliveryExhaustedError struct {
	// Dropped is the number of rows abandoned since the previous Flush.
	Dropped int
	// Last is the transport error observed on the final attempt.
	Last error
}

func (e *DeliveryExhaustedError) Error() string {
	return fmt.Sprintf("actorkit: delivery retries exhausted, %d row(s) dropped: %v", e.Dropped, e.Last)
}

func (e *DeliveryExhaustedError) Unwrap() error { return e.Last }
