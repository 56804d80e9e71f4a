package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventStatus string

const (
	EventUpcoming  EventStatus = "UPCOMING"
	EventOngoing   EventStatus = "ONGOING"
	EventCompleted EventStatus = "COMPLETED"
	EventCancelled EventStatus = "CANCELLED"
	EventSoldOut   EventStatus = "SOLD_OUT"
)

type Event struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	OrganizerID string          `db:"organizer_id" json:"organizer_id"`
	Status      EventStatus     `db:"status" json:"status"`
	Revenue     decimal.Decimal `db:"revenue" json:"revenue"`
	StartTime   time.Time       `db:"start_time" json:"start_time"`
	EndTime     time.Time       `db:"end_time" json:"end_time"`
	CreatedAt   time.Time       `db:"created" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated" json:"updated_at"`
}

type DiscountStatus string

const (
	DiscountActive DiscountStatus = "ACTIVE"
	DiscountEnded  DiscountStatus = "ENDED"
)

// TicketTier counters hold remaining stock, not sold counts. Both only ever
// decrease during settlement, and NumberOfDiscountTickets stays <=
// TotalNumberOfTickets.
type TicketTier struct {
	ID                      string          `db:"id" json:"id"`
	EventID                 string          `db:"event_id" json:"event_id"`
	Name                    string          `db:"name" json:"name"`
	Price                   decimal.Decimal `db:"price" json:"price"`
	TotalNumberOfTickets    int             `db:"total_number_of_tickets" json:"total_number_of_tickets"`
	Discount                bool            `db:"discount" json:"discount"`
	DiscountPrice           decimal.Decimal `db:"discount_price" json:"discount_price"`
	DiscountExpiration      *time.Time      `db:"discount_expiration" json:"discount_expiration,omitempty"`
	NumberOfDiscountTickets int             `db:"number_of_discount_tickets" json:"number_of_discount_tickets"`
	DiscountStatus          DiscountStatus  `db:"discount_status" json:"discount_status,omitempty"`
	SoldOut                 bool            `db:"sold_out" json:"sold_out"`
}

type Organizer struct {
	ID            string `db:"id" json:"id"`
	Name          string `db:"name" json:"name"`
	Email         string `db:"email" json:"email"`
	RecipientCode string `db:"recipient_code" json:"recipient_code"`
}
