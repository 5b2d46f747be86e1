package models

// Outcome reports what a cart mutation did. Precondition failures and storage
// failures never surface as errors, but callers can still tell them apart.
type Outcome int

const (
	// OutcomeApplied: persisted and mirrored in memory.
	OutcomeApplied Outcome = iota
	// OutcomeRejected: a precondition failed; nothing was written.
	OutcomeRejected
	// OutcomePersistFailed: the store write failed; memory is unchanged.
	OutcomePersistFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeRejected:
		return "rejected"
	case OutcomePersistFailed:
		return "persist_failed"
	default:
		return "unknown"
	}
}
