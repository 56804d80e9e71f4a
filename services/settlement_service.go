package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ticket-settlement/internal/status"
	"ticket-settlement/ledger"
	"ticket-settlement/models"
	"ticket-settlement/queue"
)

// The service talks to its collaborators through narrow interfaces so tests
// can swap in fakes without a live gateway or broker.

type lockStore interface {
	Get(ctx context.Context, lockID string) (*models.TicketLock, error)
	MarkPaid(ctx context.Context, lockID string) (*models.TicketLock, error)
	Delete(ctx context.Context, lockID string) error
	RecordSales(ctx context.Context, eventID string, ticketIDs []string) error
}

type refundInitiator interface {
	InitiateRefund(ctx context.Context, reference string, metadata map[string]string) error
}

type notifier interface {
	Notify(ctx context.Context, paymentStatus, recipient, externalChannelID, message string)
	EscalateToAdmin(subject string, details map[string]interface{})
}

type ticketMailer interface {
	SendTicketBundle(to, eventName string, tickets []models.Ticket)
	SendSoldOutNotice(to, eventName string)
}

type publisher interface {
	Publish(ctx context.Context, job *queue.Job) error
}

type purchaseMetrics interface {
	TrackPurchase(eventID, status string, amount decimal.Decimal)
}

// SettlementService reconciles charge webhooks against the ledger. It is
// stateless between jobs; all serialization lives in the storage layer.
type SettlementService struct {
	transactions ledger.TransactionRepo
	tiers        ledger.TierRepo
	events       ledger.EventRepo
	tickets      ledger.TicketRepo
	locks        lockStore
	gateway      refundInitiator
	queue        publisher
	notify       notifier
	mailer       ticketMailer
	metrics      purchaseMetrics
	log          *logrus.Entry
}

func NewSettlementService(
	transactions ledger.TransactionRepo,
	tiers ledger.TierRepo,
	events ledger.EventRepo,
	tickets ledger.TicketRepo,
	locks lockStore,
	gw refundInitiator,
	q publisher,
	notify notifier,
	mailer ticketMailer,
	metrics purchaseMetrics,
) *SettlementService {
	return &SettlementService{
		transactions: transactions,
		tiers:        tiers,
		events:       events,
		tickets:      tickets,
		locks:        locks,
		gateway:      gw,
		queue:        q,
		notify:       notify,
		mailer:       mailer,
		metrics:      metrics,
		log:          logrus.WithField("component", "settlement"),
	}
}

// HandleTransactionJob consumes charge.success and charge.failed events.
func (s *SettlementService) HandleTransactionJob(ctx context.Context, payload json.RawMessage) error {
	var job models.TransactionJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("%w: %v", status.ErrMalformedPayload, err)
	}
	if job.TransactionReference == "" {
		return fmt.Errorf("%w: missing transaction reference", status.ErrMalformedPayload)
	}

	tx, err := s.transactions.GetByReference(ctx, job.TransactionReference)
	if err != nil {
		return err
	}
	if tx.Status != models.TxPending {
		s.log.WithFields(logrus.Fields{"reference": job.TransactionReference, "status": tx.Status}).
			Debug("transaction already settled, skipping")
		return nil
	}

	switch job.EventType {
	case models.EventChargeFailed:
		return s.settleChargeFailed(ctx, &job)
	case models.EventChargeSuccess:
		return s.settleChargeSuccess(ctx, &job)
	default:
		return fmt.Errorf("%w: unexpected event type %q", status.ErrMalformedPayload, job.EventType)
	}
}

func (s *SettlementService) settleChargeFailed(ctx context.Context, job *models.TransactionJob) error {
	swapped, err := s.transactions.CompareAndSwapStatus(ctx, job.TransactionReference, models.TxPending, models.TxFailed)
	if err != nil {
		return err
	}
	if !swapped {
		return nil
	}

	s.metrics.TrackPurchase(job.Metadata.EventID, "failed", job.Metadata.Amount)
	s.notify.Notify(ctx, "failed", job.Metadata.Email, job.Metadata.ExternalChannelID,
		"Your payment was not successful. You have not been charged.")
	return nil
}

func (s *SettlementService) settleChargeSuccess(ctx context.Context, job *models.TransactionJob) error {
	meta := job.Metadata

	tier, err := s.secureInventory(ctx, job)
	if err != nil {
		if status.IsBusinessRejection(err) {
			return s.routeToRefund(ctx, job, err)
		}
		return err
	}

	if tier.SoldOut {
		s.handleSoldOutTier(ctx, meta.EventID)
	}

	event, err := s.events.GetByID(ctx, meta.EventID)
	if err != nil {
		return err
	}

	tickets, err := s.tickets.IssueBatch(ctx, ledger.IssueBatchParams{
		Reference: job.TransactionReference,
		Event:     event,
		Tier:      tier,
		Attendee:  meta.Email,
		Quantity:  meta.Quantity,
		Discount:  meta.Discount,
		Revenue:   OrganizerShare(tier.Price, meta.Amount),
	})
	if errors.Is(err, status.ErrAlreadySettled) {
		// A redelivery or retry lost the race after the batch was issued.
		return nil
	}
	if err != nil {
		return err
	}

	ticketIDs := make([]string, len(tickets))
	for i, t := range tickets {
		ticketIDs[i] = t.ID
	}
	if err := s.locks.RecordSales(ctx, meta.EventID, ticketIDs); err != nil {
		// The activity window is advisory, issuance already committed.
		s.log.WithError(err).WithField("event_id", meta.EventID).Error("record sales window")
	}

	s.mailer.SendTicketBundle(meta.Email, event.Name, tickets)
	s.metrics.TrackPurchase(meta.EventID, "success", meta.Amount)
	s.notify.Notify(ctx, "success", meta.Email, meta.ExternalChannelID,
		fmt.Sprintf("Payment confirmed. Your %d ticket(s) for %s are on the way to your inbox.", len(tickets), event.Name))

	s.log.WithFields(logrus.Fields{
		"reference": job.TransactionReference,
		"event_id":  meta.EventID,
		"quantity":  meta.Quantity,
	}).Info("charge settled")
	return nil
}

// secureInventory holds the purchased stock, via the reservation lock for
// trending events or a direct conditional decrement otherwise. It returns
// the tier as it stands after the operation.
func (s *SettlementService) secureInventory(ctx context.Context, job *models.TransactionJob) (*models.TicketTier, error) {
	meta := job.Metadata

	if !meta.Trending {
		return s.tiers.DecrementStock(ctx, meta.TierID, meta.Quantity, meta.Discount)
	}

	// Trending purchases decremented stock when the reservation was taken;
	// here the charge only has to land inside the lock window.
	_, err := s.locks.MarkPaid(ctx, meta.LockID)
	if errors.Is(err, status.ErrLockExpired) {
		if serr := s.transactions.SetLockStatus(ctx, job.TransactionReference, models.LockStatusExpired); serr != nil {
			return nil, serr
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if err := s.transactions.SetLockStatus(ctx, job.TransactionReference, models.LockStatusPaid); err != nil {
		return nil, err
	}
	return s.tiers.GetByID(ctx, meta.TierID)
}

// handleSoldOutTier checks whether the whole event just sold out and, if
// this call did the flip, tells the organizer. Best effort: the purchase
// must not fail over a notification.
func (s *SettlementService) handleSoldOutTier(ctx context.Context, eventID string) {
	allOut, err := s.tiers.AllSoldOut(ctx, eventID)
	if err != nil {
		s.log.WithError(err).WithField("event_id", eventID).Error("check sold out tiers")
		return
	}
	if !allOut {
		return
	}

	flipped, err := s.events.MarkSoldOut(ctx, eventID)
	if err != nil {
		s.log.WithError(err).WithField("event_id", eventID).Error("mark event sold out")
		return
	}
	if !flipped {
		return
	}

	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		s.log.WithError(err).Error("load sold out event")
		return
	}
	organizer, err := s.events.GetOrganizer(ctx, eventID)
	if err != nil {
		s.log.WithError(err).Error("load organizer for sold out notice")
		return
	}
	s.mailer.SendSoldOutNotice(organizer.Email, event.Name)
}

// routeToRefund moves a charge that cannot be honored onto the refund path.
// The gateway call itself goes through the queue so a provider hiccup does
// not block this job.
func (s *SettlementService) routeToRefund(ctx context.Context, job *models.TransactionJob, cause error) error {
	swapped, err := s.transactions.CompareAndSwapStatus(ctx, job.TransactionReference, models.TxPending, models.RefundPending)
	if err != nil {
		return err
	}
	if !swapped {
		return nil
	}

	refundJob, err := queue.NewJob(models.JobTypeInitiateRefund, models.InitiateRefundJob{
		TransactionReference: job.TransactionReference,
		Email:                job.Metadata.Email,
		EventID:              job.Metadata.EventID,
	})
	if err != nil {
		return err
	}
	if err := s.queue.Publish(ctx, refundJob); err != nil {
		// Status is already REFUND_PENDING; without the job nobody calls the
		// gateway, so this needs a human.
		s.notify.EscalateToAdmin("refund job enqueue failed", map[string]interface{}{
			"reference": job.TransactionReference,
			"email":     job.Metadata.Email,
			"cause":     cause.Error(),
			"error":     err.Error(),
		})
		return nil
	}

	s.metrics.TrackPurchase(job.Metadata.EventID, "refund_routed", job.Metadata.Amount)
	s.notify.Notify(ctx, "failed", job.Metadata.Email, job.Metadata.ExternalChannelID, rejectionMessage(cause))

	s.log.WithFields(logrus.Fields{"reference": job.TransactionReference, "cause": cause.Error()}).
		Info("charge routed to refund")
	return nil
}

func rejectionMessage(cause error) string {
	switch {
	case errors.Is(cause, status.ErrInsufficientTickets):
		return "Not enough tickets were left for your order. Your payment will be refunded."
	case errors.Is(cause, status.ErrDiscountExpired):
		return "The discount window closed before your payment completed. Your payment will be refunded."
	case errors.Is(cause, status.ErrDiscountDepleted):
		return "The discounted tickets sold out before your payment completed. Your payment will be refunded."
	case errors.Is(cause, status.ErrLockExpired):
		return "Your purchase window expired before payment completed. Your payment will be refunded."
	default:
		return "Your order could not be completed. Your payment will be refunded."
	}
}

// HandleInitiateRefund performs the deferred gateway refund call. Errors
// bubble up so the queue retries it.
func (s *SettlementService) HandleInitiateRefund(ctx context.Context, payload json.RawMessage) error {
	var job models.InitiateRefundJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("%w: %v", status.ErrMalformedPayload, err)
	}

	return s.gateway.InitiateRefund(ctx, job.TransactionReference, map[string]string{
		"email":   job.Email,
		"eventId": job.EventID,
	})
}

// HandleUnlockJob finalizes a released reservation: stock goes back only if
// the lock is exactly unlocked, and the entry is deleted afterwards on every
// branch so it never outlives its cleanup.
func (s *SettlementService) HandleUnlockJob(ctx context.Context, payload json.RawMessage) error {
	var job models.UnlockJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("%w: %v", status.ErrMalformedPayload, err)
	}

	lock, err := s.locks.Get(ctx, job.LockID)
	if errors.Is(err, status.ErrLockExpired) {
		return nil
	}
	if err != nil {
		return err
	}

	if lock.Status == models.LockStateUnlocked {
		if err := s.tiers.RestoreStock(ctx, lock.TierID, lock.NumberOfTickets, lock.Discount); err != nil {
			return err
		}
	}

	return s.locks.Delete(ctx, job.LockID)
}
