package engine

// Outcome classifies what a single tick evaluation did.
type Outcome string

const (
	OutcomeIgnored     Outcome = "ignored"
	OutcomeRejected    Outcome = "rejected"
	OutcomeWarmingUp   Outcome = "warming_up"
	OutcomeCooldown    Outcome = "cooldown"
	OutcomeHolding     Outcome = "holding"
	OutcomeNoSignal    Outcome = "no_signal"
	OutcomeEntered     Outcome = "entered"
	OutcomeExited      Outcome = "exited"
	OutcomeOrderFailed Outcome = "order_failed"
	OutcomeForceClosed Outcome = "force_closed"
)
