package domain

import "time"

// ActionTimes holds the confirmation timestamps of the gated ledger actions
// for one rental. Zero values mean the action has not completed. Cooldown
// remaining is derived from these on demand, never persisted as a countdown.
type ActionTimes struct {
	DepositAt time.Time
	VerifyAt  time.Time
	ResolveAt time.Time
}

// ForAction returns the timestamp recorded for the named action.
func (a ActionTimes) ForAction(action string) time.Time {
	switch action {
	case ActionDeposit:
		return a.DepositAt
	case ActionVerify:
		return a.VerifyAt
	case ActionResolve:
		return a.ResolveAt
	default:
		return time.Time{}
	}
}
