package workflow

import "github.com/katistix/cloudmigrate/internal/backend"

// PollHandle is one poll loop: the repeating status timer paired with the
// ceiling timeout. It is owned by the Controller; at most one is active.
type PollHandle struct {
	MigrationID string
	Kind        JobKind
	Cadence     Cadence

	ticker    Timer
	ceiling   Timer
	cancelled bool
}

// Cancel stops both timers. It is idempotent and safe on a nil or
// never-started handle. Responses already in flight are discarded by the
// Controller, not aborted.
func (h *PollHandle) Cancel() {
	if h == nil {
		return
	}
	if h.ticker != nil {
		h.ticker.Stop()
		h.ticker = nil
	}
	if h.ceiling != nil {
		h.ceiling.Stop()
		h.ceiling = nil
	}
	h.cancelled = true
}

// Active reports whether the loop is still scheduled.
func (h *PollHandle) Active() bool {
	return h != nil && !h.cancelled && (h.ticker != nil || h.ceiling != nil)
}

// PollOutcome is the result of one status fetch: either a status to act on or
// a transient failure that must not stop the loop.
type PollOutcome struct {
	status  backend.JobStatus
	failure error
}

// Polled wraps a successfully fetched status.
func Polled(status backend.JobStatus) PollOutcome {
	return PollOutcome{status: status}
}

// TransientFailure wraps a failed status request.
func TransientFailure(err error) PollOutcome {
	return PollOutcome{failure: err}
}

// Status returns the fetched status; ok is false for a transient failure.
func (o PollOutcome) Status() (status backend.JobStatus, ok bool) {
	return o.status, o.failure == nil
}

// Failure returns the swallowed request error, if any.
func (o PollOutcome) Failure() error {
	return o.failure
}
