package models

// LockState models the lifecycle of a trending-purchase reservation held in
// the ephemeral store. The settlement worker flips Locked to Paid when the
// charge lands inside the window; a cancellation path flips Locked to
// Unlocked; TTL expiry removes the key entirely, which readers must treat as
// Expired, never as granted.
type LockState string

const (
	LockStateLocked   LockState = "locked"
	LockStatePaid     LockState = "paid"
	LockStateUnlocked LockState = "unlocked"
	LockStateExpired  LockState = "expired"
)

var lockTransitions = map[LockState][]LockState{
	LockStateLocked:   {LockStatePaid, LockStateUnlocked, LockStateExpired},
	LockStatePaid:     {LockStateExpired},
	LockStateUnlocked: {LockStateExpired},
	LockStateExpired:  {},
}

// CanTransition reports whether moving from s to next is a legal lock
// lifecycle step.
func (s LockState) CanTransition(next LockState) bool {
	for _, allowed := range lockTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TicketLock is the value stored under ticket_lock:{lockID}. It is advisory:
// it bounds the purchase window and carries the quantities to restore if the
// reservation is released without payment.
type TicketLock struct {
	Status          LockState `json:"status"`
	TierID          string    `json:"tier_id"`
	Discount        bool      `json:"discount"`
	NumberOfTickets int       `json:"number_of_tickets"`
}
