package roster

import "time"

// Snapshot is the partition of a week's participant list at capacity K.
// Order is submission order; confirmed ++ waitlist reconstructs the input.
type Snapshot struct {
	Confirmed []string
	Waitlist  []string
}

// Cancellation is the per-week cancellation record. The zero value means
// "not cancelled", which is what a freshly addressed week starts as.
type Cancellation struct {
	Cancelled bool      `json:"is_cancelled"`
	Reason    string    `json:"reason"`
	Actor     string    `json:"cancelled_by"`
	At        time.Time `json:"timestamp"`
}

// Outcome classifies one reconciliation cycle for the cadence policy.
type Outcome int

const (
	OutcomeEdited Outcome = iota
	OutcomeUnchanged
	OutcomeRateLimited
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEdited:
		return "edited"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// DefaultCapacity is the gym capacity used when config leaves it unset.
const DefaultCapacity = 21

// BuildSnapshot partitions participants at capacity. The slices alias the
// input; callers must not mutate participants afterwards.
func BuildSnapshot(participants []string, capacity int) Snapshot {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if len(participants) <= capacity {
		return Snapshot{Confirmed: participants}
	}
	return Snapshot{
		Confirmed: participants[:capacity],
		Waitlist:  participants[capacity:],
	}
}
