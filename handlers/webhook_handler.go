package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ticket-settlement/internal/gateway"
	"ticket-settlement/models"
	"ticket-settlement/queue"
)

const signatureHeader = "x-paystack-signature"

// WebhookHandler is the gateway ingress. It verifies the delivery signature
// against the raw body, maps the event to a settlement job and enqueues it.
// The HTTP response says nothing about settlement outcome; the provider only
// needs a 200 to stop redelivering.
type WebhookHandler struct {
	secret []byte
	queue  *queue.RedisQueue
	log    *logrus.Entry
}

func NewWebhookHandler(webhookSecret string, q *queue.RedisQueue) *WebhookHandler {
	return &WebhookHandler{
		secret: []byte(webhookSecret),
		queue:  q,
		log:    logrus.WithField("component", "webhook"),
	}
}

type webhookEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	if !gateway.VerifySignature(h.secret, body, c.Request().Header.Get(signatureHeader)) {
		h.log.WithField("ip", c.RealIP()).Warn("webhook signature mismatch")
		return c.NoContent(http.StatusUnauthorized)
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	job, err := h.buildJob(&env)
	if err != nil {
		h.log.WithError(err).WithField("event", env.Event).Warn("unprocessable webhook")
		return c.NoContent(http.StatusBadRequest)
	}
	if job == nil {
		// Event types we do not settle are acknowledged and dropped.
		return c.NoContent(http.StatusOK)
	}

	if err := h.queue.Publish(c.Request().Context(), job); err != nil {
		h.log.WithError(err).Error("enqueue webhook job")
		// Non-200 makes the provider redeliver later.
		return c.NoContent(http.StatusInternalServerError)
	}

	return c.NoContent(http.StatusOK)
}

func (h *WebhookHandler) buildJob(env *webhookEnvelope) (*queue.Job, error) {
	switch env.Event {
	case models.EventChargeSuccess, models.EventChargeFailed:
		var data struct {
			Reference string                        `json:"reference"`
			Amount    decimal.Decimal               `json:"amount"`
			Metadata  models.TransactionJobMetadata `json:"metadata"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, err
		}
		data.Metadata.Amount = data.Amount
		return queue.NewJob(models.JobTypeTransaction, models.TransactionJob{
			EventType:            env.Event,
			TransactionReference: data.Reference,
			Metadata:             data.Metadata,
		})

	case models.EventTransferSuccess, models.EventTransferFailed, models.EventTransferReversed:
		var data struct {
			Reference string          `json:"reference"`
			Reason    string          `json:"reason"`
			Amount    decimal.Decimal `json:"amount"`
			Recipient struct {
				RecipientCode string `json:"recipient_code"`
			} `json:"recipient"`
			Metadata models.TransferJobMetadata `json:"metadata"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, err
		}
		return queue.NewJob(models.JobTypeTransfer, models.TransferJob{
			EventType:            env.Event,
			Reason:               data.Reason,
			RecipientCode:        data.Recipient.RecipientCode,
			Amount:               data.Amount,
			Metadata:             data.Metadata,
			TransactionReference: data.Reference,
		})

	case models.EventRefundProcessed, models.EventRefundFailed:
		var data struct {
			TransactionReference string                   `json:"transaction_reference"`
			RefundID             string                   `json:"refund_id"`
			Amount               decimal.Decimal          `json:"amount"`
			Metadata             models.RefundJobMetadata `json:"metadata"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, err
		}
		return queue.NewJob(models.JobTypeRefund, models.RefundJob{
			EventType:            env.Event,
			Metadata:             data.Metadata,
			Amount:               data.Amount,
			RefundID:             data.RefundID,
			TransactionReference: data.TransactionReference,
		})

	default:
		return nil, nil
	}
}
