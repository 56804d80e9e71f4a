package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"

	"ticket-settlement/internal/status"
	"ticket-settlement/models"
	"ticket-settlement/utils"
)

type TicketStore struct {
	db *dbx.DB
}

type IssueBatchParams struct {
	Reference string
	Event     *models.Event
	Tier      *models.TicketTier
	Attendee  string
	Quantity  int
	Discount  bool
	// Revenue is the organizer share credited alongside issuance.
	Revenue decimal.Decimal
}

// IssueBatch creates the ticket rows, credits the organizer split onto the
// event and flips the transaction to TX_SUCCESS inside one database
// transaction. The status flip doubles as the issuance marker: if a queue
// retry re-enters after a crash partway through, the conditional update
// matches zero rows, everything rolls back and ErrAlreadySettled comes back
// instead of a duplicate batch or a double-credited event.
func (s *TicketStore) IssueBatch(ctx context.Context, p IssueBatchParams) ([]models.Ticket, error) {
	tickets := make([]models.Ticket, 0, p.Quantity)

	err := s.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
		res, err := tx.
			Update("transactions",
				dbx.Params{"status": models.TxSuccess, "updated": time.Now().UTC()},
				dbx.HashExp{"reference": p.Reference, "status": models.TxPending}).
			WithContext(ctx).
			Execute()
		if err != nil {
			return fmt.Errorf("mark %s settled: %w", p.Reference, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return status.ErrAlreadySettled
		}

		_, err = tx.
			NewQuery("UPDATE events SET revenue = revenue + {:amount}, updated = {:now} WHERE id = {:id}").
			Bind(dbx.Params{"id": p.Event.ID, "amount": p.Revenue, "now": time.Now().UTC()}).
			WithContext(ctx).
			Execute()
		if err != nil {
			return fmt.Errorf("credit revenue for %s: %w", p.Event.ID, err)
		}

		for i := 0; i < p.Quantity; i++ {
			accessKey, err := utils.GenerateAccessKey(16)
			if err != nil {
				return fmt.Errorf("generate access key: %w", err)
			}

			ticket := models.Ticket{
				ID:        newRecordID(),
				EventID:   p.Event.ID,
				AccessKey: accessKey,
				Tier:      p.Tier.Name,
				Price:     p.Tier.Price,
				Attendee:  p.Attendee,
				Status:    models.TicketActive,
				CreatedAt: time.Now().UTC(),
			}
			if p.Discount {
				dp := p.Tier.DiscountPrice
				ticket.DiscountPrice = &dp
			}

			params := dbx.Params{
				"id":         ticket.ID,
				"event_id":   ticket.EventID,
				"access_key": ticket.AccessKey,
				"tier":       ticket.Tier,
				"price":      ticket.Price,
				"attendee":   ticket.Attendee,
				"status":     ticket.Status,
				"created":    ticket.CreatedAt,
			}
			if ticket.DiscountPrice != nil {
				params["discount_price"] = *ticket.DiscountPrice
			}

			if _, err := tx.Insert("tickets", params).WithContext(ctx).Execute(); err != nil {
				return fmt.Errorf("insert ticket for %s: %w", p.Reference, err)
			}
			tickets = append(tickets, ticket)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tickets, nil
}
