package models

import "github.com/shopspring/decimal"

// Settlement queue job types. The names and payload shapes below are the
// wire contract shared with the webhook ingress and any other producer.
const (
	JobTypeTransaction    = "transaction"
	JobTypeTransfer       = "transfer"
	JobTypeRefund         = "refund"
	JobTypeUnlock         = "unlock_ticket"
	JobTypeInitiateRefund = "initiate_refund"
)

// Gateway webhook event types carried inside jobs.
const (
	EventChargeSuccess    = "charge.success"
	EventChargeFailed     = "charge.failed"
	EventTransferSuccess  = "transfer.success"
	EventTransferFailed   = "transfer.failed"
	EventTransferReversed = "transfer.reversed"
	EventRefundProcessed  = "refund.processed"
	EventRefundFailed     = "refund.failed"
)

// Transfer reasons the gateway echoes back on transfer events.
const (
	ReasonTicketRefund = "Ticket Refund"
	ReasonRevenueSplit = "Revenue Split"
)

type TransactionJobMetadata struct {
	Email             string          `json:"email"`
	EventID           string          `json:"eventId"`
	TierID            string          `json:"tierId"`
	Amount            decimal.Decimal `json:"amount"`
	Quantity          int             `json:"quantity"`
	Discount          bool            `json:"discount"`
	Trending          bool            `json:"trending"`
	LockID            string          `json:"lockId,omitempty"`
	ExternalChannelID string          `json:"externalChannelId,omitempty"`
}

type TransactionJob struct {
	EventType            string                 `json:"eventType"`
	TransactionReference string                 `json:"transactionReference"`
	Metadata             TransactionJobMetadata `json:"metadata"`
}

type TransferJobMetadata struct {
	Email   string `json:"email"`
	EventID string `json:"eventId"`
}

type TransferJob struct {
	EventType            string              `json:"eventType"`
	Reason               string              `json:"reason"`
	RecipientCode        string              `json:"recipientCode"`
	Amount               decimal.Decimal     `json:"amount"`
	Metadata             TransferJobMetadata `json:"metadata"`
	TransactionReference string              `json:"transactionReference"`
}

type RefundJobMetadata struct {
	Email      string `json:"email"`
	EventTitle string `json:"eventTitle"`
	Date       string `json:"date"`
}

type RefundJob struct {
	EventType            string            `json:"eventType"`
	Metadata             RefundJobMetadata `json:"metadata"`
	Amount               decimal.Decimal   `json:"amount"`
	RefundID             string            `json:"refundId"`
	TransactionReference string            `json:"transactionReference"`
}

type UnlockJob struct {
	LockID string `json:"lockId"`
}

// InitiateRefundJob is produced internally when a charge lands against a
// purchase that can no longer be honored. It carries just enough context for
// the gateway call; the outcome comes back later as a refund.* webhook.
type InitiateRefundJob struct {
	TransactionReference string `json:"transactionReference"`
	Email                string `json:"email"`
	EventID              string `json:"eventId"`
}
