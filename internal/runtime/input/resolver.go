package input

import (
	"fmt"

	errspkg "github.com/cafescraper/actorkit/internal/runtime/errors"
	"github.com/cafescraper/actorkit/internal/runtime/jsoncodec"
)

// PartitionContext is the out-of-band partition assignment from the launch
// context. Explicit ranges override the computed slice.
type PartitionContext struct {
	Index int
	Count int

	// Explicit lo:hi bounds. Used when Explicit is true.
	Lo, Hi   int
	Explicit bool
}

// SliceBounds returns the half-open [lo, hi) slice of an array of length n
// owned by this partition. The union of all partitions' slices, in partition
// order, reconstructs the array exactly.
func (pc PartitionContext) SliceBounds(n int) (lo, hi int) {
	if pc.Explicit {
		lo, hi = pc.Lo, pc.Hi
		if lo > n {
			lo = n
		}
		if hi > n {
			hi = n
		}
		return lo, hi
	}
	if pc.Count <= 0 {
		return 0, n
	}
	return pc.Index * n / pc.Count, (pc.Index + 1) * n / pc.Count
}

// Resolve decodes the job payload into a Configuration. When splitKey is
// non-empty the named entry must exist and be an array; with a partition
// context the array is replaced by this instance's slice, all other keys
// untouched. A nil partition context keeps the full array, so the same
// process template serves single-partition debug runs and production
// fan-out unchanged.
func Resolve(payload []byte, splitKey string, pc *PartitionContext) (*Configuration, error) {
	values := map[string]Value{}
	if len(payload) > 0 {
		var raw map[string]any
		if err := jsoncodec.Unmarshal(payload, &raw); err != nil {
			return nil, &errspkg.ConfigDecodeError{Cause: err}
		}
		for name, item := range raw {
			values[name] = fromAny(item)
		}
	}

	if splitKey != "" {
		v, ok := values[splitKey]
		if !ok {
			return nil, &errspkg.ConfigDecodeError{
				Cause: fmt.Errorf("split key %q not present in job payload", splitKey),
			}
		}
		arr, err := v.Array()
		if err != nil {
			return nil, &errspkg.ConfigDecodeError{
				Cause: fmt.Errorf("split key %q: %w", splitKey, err),
			}
		}
		if pc != nil {
			lo, hi := pc.SliceBounds(len(arr))
			values[splitKey] = Value{kind: KindArray, arr: arr[lo:hi]}
		}
	}

	return &Configuration{values: values}, nil
}
