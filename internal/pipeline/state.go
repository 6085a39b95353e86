package pipeline

import (
	"time"

	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
)

// State is the per-date position in the pipeline state machine. Each date
// moves Pending → Extracting → Classifying → Aggregating → Writing → Done;
// Failed is terminal and reachable from any non-terminal state.
type State int

const (
	StatePending State = iota
	StateExtracting
	StateClassifying
	StateAggregating
	StateWriting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateExtracting:
		return "extracting"
	case StateClassifying:
		return "classifying"
	case StateAggregating:
		return "aggregating"
	case StateWriting:
		return "writing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DateResult reports the outcome of processing one date. For failed dates,
// FailedStage names the stage that exhausted its retries and Err the cause.
// A cancelled run leaves unstarted dates at StatePending with Err set.
type DateResult struct {
	Date        time.Time
	State       State
	FailedStage State
	Err         error
	Attempts    int // total stage attempts, including retries
	Anomalies   int
}

// RunSummary is the per-date status report for one date-range run. Partial
// success across a multi-day range is a normal outcome, not a failure.
type RunSummary struct {
	Range   domain.DateRange
	Results []DateResult // ascending by date
}

// Done counts dates whose aggregate row and anomalies were durably written.
func (s RunSummary) Done() int {
	return s.count(StateDone)
}

// Failed counts dates that hit a non-retryable error or exhausted retries.
func (s RunSummary) Failed() int {
	return s.count(StateFailed)
}

func (s RunSummary) count(state State) int {
	n := 0
	for _, r := range s.Results {
		if r.State == state {
			n++
		}
	}
	return n
}
