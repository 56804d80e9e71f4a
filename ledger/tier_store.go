package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"

	"ticket-settlement/internal/status"
	"ticket-settlement/models"
)

type TierStore struct {
	db *dbx.DB
}

const tierColumns = "id, event_id, name, price, total_number_of_tickets, discount, discount_price, discount_expiration, number_of_discount_tickets, discount_status, sold_out"

func (s *TierStore) GetByID(ctx context.Context, id string) (*models.TicketTier, error) {
	var tier models.TicketTier
	err := s.db.
		NewQuery("SELECT " + tierColumns + " FROM ticket_tiers WHERE id = {:id}").
		Bind(dbx.Params{"id": id}).
		WithContext(ctx).
		One(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrTierNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tier %s: %w", id, err)
	}
	return &tier, nil
}

// DecrementStock is the only write path that sells tickets. Validation and
// decrement happen in one conditional UPDATE so concurrent purchases against
// the same tier can never oversell; the losing update simply matches zero
// rows. Depletion side effects flip in the same statement: the discount
// counter is clamped to the remaining stock (it can never exceed
// total_number_of_tickets), discount_status goes ENDED when the counter
// reaches zero, sold_out when stock does.
func (s *TierStore) DecrementStock(ctx context.Context, tierID string, quantity int, discount bool) (*models.TicketTier, error) {
	discountQty := 0
	if discount {
		discountQty = quantity
	}

	res, err := s.db.
		NewQuery(`
			UPDATE ticket_tiers SET
				total_number_of_tickets = total_number_of_tickets - {:qty},
				number_of_discount_tickets = LEAST(number_of_discount_tickets - {:dqty}, total_number_of_tickets - {:qty}),
				discount_status = CASE
					WHEN discount_status = 'ACTIVE'
						AND LEAST(number_of_discount_tickets - {:dqty}, total_number_of_tickets - {:qty}) = 0 THEN 'ENDED'
					ELSE discount_status
				END,
				sold_out = (total_number_of_tickets - {:qty} = 0)
			WHERE id = {:id}
				AND total_number_of_tickets >= {:qty}
				AND ({:dqty} = 0 OR (
					number_of_discount_tickets >= {:dqty}
					AND discount_status = 'ACTIVE'
					AND (discount_expiration IS NULL OR discount_expiration > {:now})
				))`).
		Bind(dbx.Params{"id": tierID, "qty": quantity, "dqty": discountQty, "now": time.Now().UTC()}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("decrement tier %s: %w", tierID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, s.diagnoseRejection(ctx, tierID, quantity, discount)
	}
	return s.GetByID(ctx, tierID)
}

// diagnoseRejection re-reads the tier to decide which business rule the
// failed decrement tripped. The read is advisory only, the decrement already
// lost.
func (s *TierStore) diagnoseRejection(ctx context.Context, tierID string, quantity int, discount bool) error {
	tier, err := s.GetByID(ctx, tierID)
	if err != nil {
		return err
	}
	if tier.TotalNumberOfTickets < quantity {
		return status.ErrInsufficientTickets
	}
	if discount {
		if tier.DiscountExpiration != nil && !tier.DiscountExpiration.After(time.Now().UTC()) {
			return status.ErrDiscountExpired
		}
		if tier.DiscountStatus != models.DiscountActive || tier.NumberOfDiscountTickets < quantity {
			return status.ErrDiscountDepleted
		}
	}
	return status.ErrInsufficientTickets
}

// RestoreStock returns quantity to a tier after an unpaid reservation is
// released. discount_status stays as-is, depletion never reverses.
func (s *TierStore) RestoreStock(ctx context.Context, tierID string, quantity int, discount bool) error {
	discountQty := 0
	if discount {
		discountQty = quantity
	}

	res, err := s.db.
		NewQuery(`
			UPDATE ticket_tiers SET
				total_number_of_tickets = total_number_of_tickets + {:qty},
				number_of_discount_tickets = number_of_discount_tickets + {:dqty},
				sold_out = FALSE
			WHERE id = {:id}`).
		Bind(dbx.Params{"id": tierID, "qty": quantity, "dqty": discountQty}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return fmt.Errorf("restore tier %s: %w", tierID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return status.ErrTierNotFound
	}
	return nil
}

// ExpireDiscounts flips every ACTIVE discount whose window has passed to
// ENDED and returns how many it flipped.
func (s *TierStore) ExpireDiscounts(ctx context.Context) (int64, error) {
	res, err := s.db.
		NewQuery(`
			UPDATE ticket_tiers SET discount_status = 'ENDED'
			WHERE discount_status = 'ACTIVE'
				AND discount_expiration IS NOT NULL
				AND discount_expiration <= {:now}`).
		Bind(dbx.Params{"now": time.Now().UTC()}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("expire discounts: %w", err)
	}
	return res.RowsAffected()
}

func (s *TierStore) AllSoldOut(ctx context.Context, eventID string) (bool, error) {
	var remaining int
	err := s.db.
		NewQuery("SELECT COUNT(*) FROM ticket_tiers WHERE event_id = {:event} AND sold_out = FALSE").
		Bind(dbx.Params{"event": eventID}).
		WithContext(ctx).
		Row(&remaining)
	if err != nil {
		return false, fmt.Errorf("count open tiers for %s: %w", eventID, err)
	}
	return remaining == 0, nil
}
