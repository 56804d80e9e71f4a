package models

import "time"

type TransactionStatus string

const (
	TxPending       TransactionStatus = "TX_PENDING"
	TxSuccess       TransactionStatus = "TX_SUCCESS"
	TxFailed        TransactionStatus = "TX_FAILED"
	RefundPending   TransactionStatus = "REFUND_PENDING"
	RefundSuccess   TransactionStatus = "REFUND_SUCCESS"
	RefundFailed    TransactionStatus = "REFUND_FAILED"
	TransferPending TransactionStatus = "TRANSFER_PENDING"
	TransferSuccess TransactionStatus = "TRANSFER_SUCCESS"
	TransferFailed  TransactionStatus = "TRANSFER_FAILED"
)

type LockStatus string

const (
	LockStatusExpired LockStatus = "EXPIRED"
	LockStatusPaid    LockStatus = "PAID"
)

// Transaction is keyed by the gateway-assigned reference, which doubles as
// the idempotency key: settlement only advances a transaction through a
// compare-and-swap on Status, so a redelivered webhook that lost the race
// finds an already-advanced status and becomes a no-op.
type Transaction struct {
	ID         string            `db:"id" json:"id"`
	Reference  string            `db:"reference" json:"reference"`
	Status     TransactionStatus `db:"status" json:"status"`
	LockStatus LockStatus        `db:"lock_status" json:"lock_status,omitempty"`
	RefundID   string            `db:"refund_id" json:"refund_id,omitempty"`
	CreatedAt  time.Time         `db:"created" json:"created_at"`
	UpdatedAt  time.Time         `db:"updated" json:"updated_at"`
}
