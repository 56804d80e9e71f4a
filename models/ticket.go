package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketActive    TicketStatus = "ACTIVE"
	TicketUsed      TicketStatus = "USED"
	TicketCancelled TicketStatus = "CANCELLED"
)

// Ticket rows are created only inside a successful charge settlement.
// Price fields are immutable after creation; AccessKey identifies the ticket
// for both QR validation and resale.
type Ticket struct {
	ID            string           `db:"id" json:"id"`
	EventID       string           `db:"event_id" json:"event_id"`
	AccessKey     string           `db:"access_key" json:"access_key"`
	Tier          string           `db:"tier" json:"tier"`
	Price         decimal.Decimal  `db:"price" json:"price"`
	DiscountPrice *decimal.Decimal `db:"discount_price" json:"discount_price,omitempty"`
	Attendee      string           `db:"attendee" json:"attendee"`
	Status        TicketStatus     `db:"status" json:"status"`
	CreatedAt     time.Time        `db:"created" json:"created_at"`
}
