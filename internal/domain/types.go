package domain

// CheckinOutcome represents the result of a check-in attempt
type CheckinOutcome string

const (
	OutcomeSuccess     CheckinOutcome = "success"
	OutcomeAlreadyDone CheckinOutcome = "already_done"
	OutcomeUnavailable CheckinOutcome = "unavailable"
	OutcomeFailed      CheckinOutcome = "failed"
)

// Terminal reports whether the outcome ends the day for an account.
// A failed attempt may be retried the same day; the others may not.
func (o CheckinOutcome) Terminal() bool {
	switch o {
	case OutcomeSuccess, OutcomeAlreadyDone, OutcomeUnavailable:
		return true
	}
	return false
}

// RunState represents the lifecycle state of an account run
type RunState string

const (
	StateIdle                RunState = "idle"
	StateLoggingIn           RunState = "logging_in"
	StateCheckingIdempotency RunState = "checking_idempotency"
	StateCheckingIn          RunState = "checking_in"
	StateReplying            RunState = "replying"
	StateDone                RunState = "done"
	StateFailed              RunState = "failed"
)
