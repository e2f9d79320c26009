// Package protocol defines the frames exchanged with the control plane. One
// persistent connection carries every frame kind; each frame is acknowledged
// individually, and redelivery of a frame with the same ID is tolerated by
// the receiving side.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cafescraper/actorkit/internal/runtime/ids"
	"github.com/cafescraper/actorkit/internal/runtime/jsoncodec"
)

// FrameKind discriminates the payload carried by a Frame.
type FrameKind string

const (
	KindAuth       FrameKind = "auth"
	KindSetHeader  FrameKind = "set_header"
	KindPushRecord FrameKind = "push_record"
	KindLog        FrameKind = "log"
)

// Frame is the unit of transmission. The ID is a process-monotonic ULID used
// for acknowledgment correlation and receiver-side deduplication.
type Frame struct {
	ID      string          `json:"id"`
	Kind    FrameKind       `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Ack codes mirror the sidecar's {code, message} responses. Zero is success;
// CodeAuthRejected is terminal, anything else is treated as transient.
const (
	CodeOK           = 0
	CodeAuthRejected = 401
)

// Ack is the control plane's per-frame acknowledgment.
type Ack struct {
	ID      string `json:"id"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func (a Ack) OK() bool { return a.Code == CodeOK }

// AuthPayload opens a session. It is the first frame on every (re)connect.
type AuthPayload struct {
	RunID string `json:"run_id"`
	Token string `json:"token"`
}

// Column is the wire form of one declared output column.
type Column struct {
	Label  string `json:"label"`
	Key    string `json:"key"`
	Format string `json:"format"`
}

// HeaderPayload replaces the active table header.
type HeaderPayload struct {
	Columns []Column `json:"columns"`
}

// LogPayload is one leveled log event.
type LogPayload struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewAuthFrame builds the handshake frame.
func NewAuthFrame(runID, token string) (Frame, error) {
	return newFrame(KindAuth, AuthPayload{RunID: runID, Token: token})
}

// NewHeaderFrame builds a set_header frame.
func NewHeaderFrame(columns []Column) (Frame, error) {
	return newFrame(KindSetHeader, HeaderPayload{Columns: columns})
}

// NewRecordFrame builds a push_record frame. The payload is the row object
// itself, keyed by column key.
func NewRecordFrame(row map[string]any) (Frame, error) {
	return newFrame(KindPushRecord, row)
}

// NewLogFrame builds a log frame.
func NewLogFrame(level, message string, ts time.Time) (Frame, error) {
	return newFrame(KindLog, LogPayload{Level: level, Message: message, Timestamp: ts})
}

func newFrame(kind FrameKind, payload any) (Frame, error) {
	raw, err := jsoncodec.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Frame{ID: ids.NewFrameID(), Kind: kind, Payload: raw}, nil
}

// Encode serialises a frame for the wire.
func Encode(f Frame) ([]byte, error) {
	return jsoncodec.Marshal(f)
}

// DecodeAck parses an acknowledgment frame.
func DecodeAck(data []byte) (Ack, error) {
	var a Ack
	if err := jsoncodec.Unmarshal(data, &a); err != nil {
		return Ack{}, fmt.Errorf("decode ack: %w", err)
	}
	return a, nil
}
