package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ticket-settlement/internal/gateway"
	"ticket-settlement/internal/status"
	"ticket-settlement/ledger"
	"ticket-settlement/models"
)

const (
	retryKeyPrefix = "transfer_retry:"
	archivePrefix  = "transfer_failed:"
)

type transferGateway interface {
	DeleteTransferRecipient(ctx context.Context, recipientCode string) error
	RetryTransfer(ctx context.Context, req gateway.TransferRequest, recipientCode, retryKey string) (string, error)
}

type transferMailer interface {
	SendRefundConfirmation(to, eventTitle string, amount decimal.Decimal)
	SendPayoutNotice(to string, amount decimal.Decimal, eventID string)
}

type transferMetrics interface {
	TrackRefund(eventType, outcome string, amount decimal.Decimal)
	TrackPayout(reason string, amount decimal.Decimal)
	TrackTransferFailure()
}

// TransferService settles transfer.* webhooks. Failed transfers leave a
// retry key behind (24h TTL) for an on-demand replay, and an archive entry
// (30 days) for manual follow-up.
type TransferService struct {
	transactions ledger.TransactionRepo
	gateway      transferGateway
	redis        *redis.Client
	mailer       transferMailer
	metrics      transferMetrics
	retryTTL     time.Duration
	archiveTTL   time.Duration
	log          *logrus.Entry
}

func NewTransferService(
	transactions ledger.TransactionRepo,
	gw transferGateway,
	redisClient *redis.Client,
	mailer transferMailer,
	metrics transferMetrics,
	retryTTL, archiveTTL time.Duration,
) *TransferService {
	return &TransferService{
		transactions: transactions,
		gateway:      gw,
		redis:        redisClient,
		mailer:       mailer,
		metrics:      metrics,
		retryTTL:     retryTTL,
		archiveTTL:   archiveTTL,
		log:          logrus.WithField("component", "transfer"),
	}
}

// HandleTransferJob consumes transfer.success, transfer.failed and
// transfer.reversed events.
func (s *TransferService) HandleTransferJob(ctx context.Context, payload json.RawMessage) error {
	var job models.TransferJob
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
	if tx.Status != models.TransferPending {
		s.log.WithFields(logrus.Fields{"reference": job.TransactionReference, "status": tx.Status}).
			Debug("transfer already settled, skipping")
		return nil
	}

	switch job.EventType {
	case models.EventTransferSuccess:
		return s.settleTransferSuccess(ctx, &job)
	case models.EventTransferFailed, models.EventTransferReversed:
		return s.settleTransferFailed(ctx, &job)
	default:
		return fmt.Errorf("%w: unexpected event type %q", status.ErrMalformedPayload, job.EventType)
	}
}

func (s *TransferService) settleTransferSuccess(ctx context.Context, job *models.TransferJob) error {
	swapped, err := s.transactions.CompareAndSwapStatus(ctx, job.TransactionReference, models.TransferPending, models.TransferSuccess)
	if err != nil {
		return err
	}
	if !swapped {
		return nil
	}

	switch job.Reason {
	case models.ReasonTicketRefund:
		s.mailer.SendRefundConfirmation(job.Metadata.Email, job.Metadata.EventID, job.Amount)
		// Refund recipients are one-time use; drop them at the provider.
		if err := s.gateway.DeleteTransferRecipient(ctx, job.RecipientCode); err != nil {
			s.log.WithError(err).WithField("recipient", job.RecipientCode).Error("delete transfer recipient")
		}
		s.metrics.TrackRefund(job.EventType, "success", job.Amount)
	case models.ReasonRevenueSplit:
		s.mailer.SendPayoutNotice(job.Metadata.Email, job.Amount, job.Metadata.EventID)
		s.metrics.TrackPayout(job.Reason, job.Amount)
	default:
		s.log.WithField("reason", job.Reason).Warn("transfer settled with unknown reason")
	}

	s.log.WithFields(logrus.Fields{"reference": job.TransactionReference, "reason": job.Reason}).
		Info("transfer settled")
	return nil
}

func (s *TransferService) settleTransferFailed(ctx context.Context, job *models.TransferJob) error {
	swapped, err := s.transactions.CompareAndSwapStatus(ctx, job.TransactionReference, models.TransferPending, models.TransferFailed)
	if err != nil {
		return err
	}
	if !swapped {
		return nil
	}

	s.metrics.TrackTransferFailure()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal failed transfer %s: %w", job.TransactionReference, err)
	}

	pipe := s.redis.Pipeline()
	pipe.Set(ctx, retryKeyPrefix+job.TransactionReference, data, s.retryTTL)
	pipe.Set(ctx, archivePrefix+job.TransactionReference, data, s.archiveTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store failed transfer %s: %w", job.TransactionReference, err)
	}

	s.log.WithFields(logrus.Fields{"reference": job.TransactionReference, "event_type": job.EventType}).
		Warn("transfer failed, retry key stored")
	return nil
}

// Retry replays a failed transfer under its stored retry key. The key is
// the idempotency reference at the provider, so replaying twice cannot pay
// out twice. On-demand only, never triggered automatically.
func (s *TransferService) Retry(ctx context.Context, reference string) error {
	raw, err := s.redis.Get(ctx, retryKeyPrefix+reference).Result()
	if err == redis.Nil {
		return status.ErrRetryKeyExpired
	}
	if err != nil {
		return fmt.Errorf("load retry key %s: %w", reference, err)
	}

	var job models.TransferJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return fmt.Errorf("decode retry payload %s: %w", reference, err)
	}

	req := gateway.TransferRequest{
		Amount: job.Amount,
		Reason: job.Reason,
		Metadata: map[string]string{
			"email":   job.Metadata.Email,
			"eventId": job.Metadata.EventID,
		},
	}
	if _, err := s.gateway.RetryTransfer(ctx, req, job.RecipientCode, "retry-"+reference); err != nil {
		return fmt.Errorf("retry transfer %s: %w", reference, err)
	}

	swapped, err := s.transactions.CompareAndSwapStatus(ctx, reference, models.TransferFailed, models.TransferPending)
	if err != nil {
		return err
	}
	if !swapped {
		s.log.WithField("reference", reference).Warn("retried transfer was not in failed state")
	}

	s.log.WithField("reference", reference).Info("transfer retried")
	return nil
}

// ArchivedFailure returns the stored context for a failed transfer, if it
// is still inside the archive window.
func (s *TransferService) ArchivedFailure(ctx context.Context, reference string) (*models.TransferJob, error) {
	raw, err := s.redis.Get(ctx, archivePrefix+reference).Result()
	if err == redis.Nil {
		return nil, status.ErrRetryKeyExpired
	}
	if err != nil {
		return nil, fmt.Errorf("load archived transfer %s: %w", reference, err)
	}

	var job models.TransferJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decode archived transfer %s: %w", reference, err)
	}
	return &job, nil
}
