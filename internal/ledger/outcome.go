package ledger

// Outcome reports what a settlement call did to the aggregate.
type Outcome string

const (
	// OutcomeApplied means the transition happened and the bucket changed.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate means the contribution was already in the target state.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored means the contribution is in a state the event cannot move.
	OutcomeIgnored Outcome = "ignored"
)

// Changed reports whether the aggregate needs to be persisted.
func (o Outcome) Changed() bool {
	return o == OutcomeApplied
}
