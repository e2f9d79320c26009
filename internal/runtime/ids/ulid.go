// Package ids generates the frame identifiers used for acknowledgment
// correlation and idempotent redelivery.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewFrameID returns a time-sortable ULID encoded as a 26-character string.
// IDs from one process are strictly monotonic, so the control plane can use
// them to deduplicate redelivered frames.
func NewFrameID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}
