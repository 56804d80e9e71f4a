package ledger

import (
	"context"

	"ticket-settlement/models"
)

// The settlement services depend on these interfaces rather than the concrete
// stores so tests can substitute in-memory fakes.

type TransactionRepo interface {
	GetByReference(ctx context.Context, reference string) (*models.Transaction, error)
	// CompareAndSwapStatus advances reference from one status to another in a
	// single conditional update. It reports false when the row was not in the
	// expected status, which is how double-delivered webhooks are dropped.
	CompareAndSwapStatus(ctx context.Context, reference string, from, to models.TransactionStatus) (bool, error)
	CompareAndSwapRefund(ctx context.Context, reference, refundID string, from, to models.TransactionStatus) (bool, error)
	SetLockStatus(ctx context.Context, reference string, lockStatus models.LockStatus) error
}

type TierRepo interface {
	GetByID(ctx context.Context, id string) (*models.TicketTier, error)
	// DecrementStock validates sufficiency (and discount validity when
	// discount is true) and decrements the counters in one conditional
	// update. It returns the tier as it stands after the decrement.
	DecrementStock(ctx context.Context, tierID string, quantity int, discount bool) (*models.TicketTier, error)
	RestoreStock(ctx context.Context, tierID string, quantity int, discount bool) error
	ExpireDiscounts(ctx context.Context) (int64, error)
	AllSoldOut(ctx context.Context, eventID string) (bool, error)
}

type EventRepo interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
	// MarkSoldOut flips the event to SOLD_OUT and reports whether this call
	// did the flip, so the organizer is notified exactly once.
	MarkSoldOut(ctx context.Context, eventID string) (bool, error)
	GetOrganizer(ctx context.Context, eventID string) (*models.Organizer, error)
	StartDue(ctx context.Context) (int64, error)
	CompleteDue(ctx context.Context) (int64, error)
}

type TicketRepo interface {
	// IssueBatch creates the tickets, credits revenue and advances the
	// transaction from TX_PENDING to TX_SUCCESS in one database
	// transaction, so a queue retry after a partial failure cannot issue
	// the batch twice.
	IssueBatch(ctx context.Context, p IssueBatchParams) ([]models.Ticket, error)
}
