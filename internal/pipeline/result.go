// Package pipeline drives bounded-concurrency ingestion of record batches
// into the remote bibliography store.
package pipeline

import (
	"time"

	"github.com/GhUserLiu/paperflow/internal/domain"
)

// Outcome is the terminal state of one record's workflow. Expected outcomes
// are values, not errors: a detected duplicate is a correct result.
type Outcome int

const (
	// OutcomeCreated means a new item was written to the remote store.
	OutcomeCreated Outcome = iota

	// OutcomeDuplicate means the record already existed; nothing was written.
	OutcomeDuplicate

	// OutcomeFailed means the record could not be fully processed. The
	// remote item, if one was created, is left in place.
	OutcomeFailed
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Success reports whether the outcome counts toward the batch success total.
func (o Outcome) Success() bool {
	return o == OutcomeCreated || o == OutcomeDuplicate
}

// Result is the terminal record of one per-record workflow.
type Result struct {
	Record  *domain.Record
	Outcome Outcome

	// ItemKey is the remote item key: the created item for OutcomeCreated,
	// the existing item for OutcomeDuplicate (may be empty when the
	// duplicate was claimed by a sibling whose create was still in flight),
	// and the orphaned item for enrichment failures.
	ItemKey string

	// Err is set for OutcomeFailed only.
	Err error
}

// Summary aggregates one batch run. Succeeded+Failed always equals the
// number of records submitted; every record is counted exactly once.
type Summary struct {
	BatchID    string
	Succeeded  int
	Failed     int
	Duplicates int
	Results    []Result
	Elapsed    time.Duration
}
