package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	pubnub "github.com/pubnub/go"
	"github.com/sirupsen/logrus"

	"ticket-settlement/config"
)

// NotifyService delivers fire-and-forget payment status updates. Attendees
// on the web get a websocket push; purchases that came in through a bot get
// a webhook to the external channel instead. Failures are logged and
// swallowed, notification delivery never fails a settlement.
type NotifyService struct {
	pubnub       *pubnub.PubNub
	hc           *http.Client
	webhookURL   string
	adminChannel string
	log          *logrus.Entry
}

func NewNotifyService(pn *pubnub.PubNub, cfg config.NotifyConfig) *NotifyService {
	return &NotifyService{
		pubnub:       pn,
		hc:           &http.Client{Timeout: 5 * time.Second},
		webhookURL:   cfg.ExternalWebhookURL,
		adminChannel: cfg.AdminChannel,
		log:          logrus.WithField("component", "notify"),
	}
}

// SendPaymentStatus pushes a status update to the attendee's channel.
func (s *NotifyService) SendPaymentStatus(recipient, paymentStatus, message string) {
	channel := "payments-" + recipient
	_, _, err := s.pubnub.Publish().
		Channel(channel).
		Message(map[string]interface{}{
			"type":    "payment_status",
			"status":  paymentStatus,
			"message": message,
		}).
		Execute()
	if err != nil {
		s.log.WithError(err).WithField("channel", channel).Error("publish payment status")
	}
}

// NotifyExternalChannel posts the status to the third-party bot webhook for
// purchases that did not originate on the web client.
func (s *NotifyService) NotifyExternalChannel(ctx context.Context, paymentStatus, recipient, channelID string) {
	if s.webhookURL == "" {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"status":    paymentStatus,
		"recipient": recipient,
		"channelId": channelID,
	})
	if err != nil {
		s.log.WithError(err).Error("marshal external notification")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		s.log.WithError(err).Error("build external notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		s.log.WithError(err).WithField("channel_id", channelID).Error("deliver external notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.log.WithFields(logrus.Fields{"channel_id": channelID, "status_code": resp.StatusCode}).
			Error("external notification rejected")
	}
}

// Notify routes a payment status to either the websocket or the external
// channel depending on how the purchase came in.
func (s *NotifyService) Notify(ctx context.Context, paymentStatus, recipient, externalChannelID, message string) {
	if externalChannelID != "" {
		s.NotifyExternalChannel(ctx, paymentStatus, recipient, externalChannelID)
		return
	}
	s.SendPaymentStatus(recipient, paymentStatus, message)
}

// EscalateToAdmin surfaces a terminal failure to the operator channel with
// its full context. This path is for failures no automated retry can fix.
func (s *NotifyService) EscalateToAdmin(subject string, details map[string]interface{}) {
	message := map[string]interface{}{
		"type":    "escalation",
		"subject": subject,
		"details": details,
	}
	_, _, err := s.pubnub.Publish().
		Channel(s.adminChannel).
		Message(message).
		Execute()
	if err != nil {
		s.log.WithError(err).Errorf("escalation publish failed: %s %v", subject, details)
	}
}
