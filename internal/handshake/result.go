package handshake

import "time"

// Result is the outcome of one Run. Err is set only when the run failed; a chain
// that did not complete is still a successful, reportable result.
type Result struct {
	ID      string
	Chain   *EventChain
	Cause   Cause
	Err     error
	Elapsed time.Duration
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Outcome is "complete", "incomplete", or "failed".
func (r Result) Outcome() string {
	switch {
	case r.Err != nil:
		return "failed"
	case r.Chain != nil && r.Chain.Complete:
		return "complete"
	default:
		return "incomplete"
	}
}
