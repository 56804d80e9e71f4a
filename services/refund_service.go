package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ticket-settlement/internal/status"
	"ticket-settlement/ledger"
	"ticket-settlement/models"
)

type refundMailer interface {
	SendRefundConfirmation(to, eventTitle string, amount decimal.Decimal)
	SendAdminAlert(subject, text string)
}

type refundMetrics interface {
	TrackRefund(eventType, outcome string, amount decimal.Decimal)
}

type escalator interface {
	EscalateToAdmin(subject string, details map[string]interface{})
}

// RefundService settles refund.* webhooks. A processed refund is terminal
// good news; a failed refund is the one terminal state handed to a human
// instead of retried.
type RefundService struct {
	transactions ledger.TransactionRepo
	mailer       refundMailer
	notify       escalator
	metrics      refundMetrics
	log          *logrus.Entry
}

func NewRefundService(transactions ledger.TransactionRepo, mailer refundMailer, notify escalator, metrics refundMetrics) *RefundService {
	return &RefundService{
		transactions: transactions,
		mailer:       mailer,
		notify:       notify,
		metrics:      metrics,
		log:          logrus.WithField("component", "refund"),
	}
}

func (s *RefundService) HandleRefundJob(ctx context.Context, payload json.RawMessage) error {
	var job models.RefundJob
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
	if tx.Status != models.RefundPending {
		s.log.WithFields(logrus.Fields{"reference": job.TransactionReference, "status": tx.Status}).
			Debug("refund already settled, skipping")
		return nil
	}

	switch job.EventType {
	case models.EventRefundProcessed:
		return s.settleRefundProcessed(ctx, &job)
	case models.EventRefundFailed:
		return s.settleRefundFailed(ctx, &job)
	default:
		return fmt.Errorf("%w: unexpected event type %q", status.ErrMalformedPayload, job.EventType)
	}
}

func (s *RefundService) settleRefundProcessed(ctx context.Context, job *models.RefundJob) error {
	swapped, err := s.transactions.CompareAndSwapRefund(ctx, job.TransactionReference, job.RefundID,
		models.RefundPending, models.RefundSuccess)
	if err != nil {
		return err
	}
	if !swapped {
		return nil
	}

	s.metrics.TrackRefund(job.EventType, "success", job.Amount)
	s.mailer.SendRefundConfirmation(job.Metadata.Email, job.Metadata.EventTitle, job.Amount)

	s.log.WithFields(logrus.Fields{"reference": job.TransactionReference, "refund_id": job.RefundID}).
		Info("refund settled")
	return nil
}

func (s *RefundService) settleRefundFailed(ctx context.Context, job *models.RefundJob) error {
	swapped, err := s.transactions.CompareAndSwapRefund(ctx, job.TransactionReference, job.RefundID,
		models.RefundPending, models.RefundFailed)
	if err != nil {
		return err
	}
	if !swapped {
		return nil
	}

	s.metrics.TrackRefund(job.EventType, "failed", job.Amount)

	details := map[string]interface{}{
		"reference":   job.TransactionReference,
		"refund_id":   job.RefundID,
		"amount":      job.Amount.String(),
		"email":       job.Metadata.Email,
		"event_title": job.Metadata.EventTitle,
		"date":        job.Metadata.Date,
	}
	s.notify.EscalateToAdmin("refund failed at gateway", details)
	s.mailer.SendAdminAlert("Refund failed at gateway",
		fmt.Sprintf("Refund %s for transaction %s (%s, %s) failed and needs manual handling.",
			job.RefundID, job.TransactionReference, job.Metadata.Email, job.Amount.String()))

	s.log.WithFields(logrus.Fields{"reference": job.TransactionReference, "refund_id": job.RefundID}).
		Error("refund failed, escalated")
	return nil
}
