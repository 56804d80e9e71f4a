package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/mailersend/mailersend-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ticket-settlement/config"
	"ticket-settlement/models"
)

// MailerService sends the transactional mails settlement produces. Like the
// other notification paths it is best effort, a failed mail is logged and
// does not fail the job that triggered it.
type MailerService struct {
	client     *mailersend.Mailersend
	fromName   string
	fromEmail  string
	adminEmail string
	renderer   ArtifactRenderer
	log        *logrus.Entry
}

// NewMailerService builds the mailer. renderer may be nil, in which case
// ticket emails carry access keys as plain text without attachments.
func NewMailerService(cfg config.MailerConfig, renderer ArtifactRenderer) *MailerService {
	return &MailerService{
		client:     mailersend.NewMailersend(cfg.APIKey),
		fromName:   cfg.FromName,
		fromEmail:  cfg.FromEmail,
		adminEmail: cfg.AdminEmail,
		renderer:   renderer,
		log:        logrus.WithField("component", "mailer"),
	}
}

func (m *MailerService) send(to, subject, text string, attachments []mailersend.Attachment) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	message := m.client.Email.NewMessage()
	message.SetFrom(mailersend.From{Name: m.fromName, Email: m.fromEmail})
	message.SetRecipients([]mailersend.Recipient{{Email: to}})
	message.SetSubject(subject)
	message.SetText(text)
	for _, a := range attachments {
		message.AddAttachment(a)
	}

	if _, err := m.client.Email.Send(ctx, message); err != nil {
		m.log.WithError(err).WithField("subject", subject).Error("send email")
	}
}

// SendTicketBundle mails the attendee their freshly issued tickets, with a
// rendered artifact per ticket when a renderer is configured.
func (m *MailerService) SendTicketBundle(to, eventName string, tickets []models.Ticket) {
	text := fmt.Sprintf("Your %d ticket(s) for %s are confirmed.\n\n", len(tickets), eventName)
	for _, t := range tickets {
		text += fmt.Sprintf("Tier: %s  Access key: %s\n", t.Tier, t.AccessKey)
	}

	var attachments []mailersend.Attachment
	if m.renderer != nil {
		for _, t := range tickets {
			filename, content, err := m.renderer.RenderTicket(eventName, t)
			if err != nil {
				m.log.WithError(err).WithField("ticket_id", t.ID).Error("render ticket artifact")
				continue
			}
			attachments = append(attachments, mailersend.Attachment{
				Filename: filename,
				Content:  base64.StdEncoding.EncodeToString(content),
			})
		}
	}

	m.send(to, fmt.Sprintf("Your tickets for %s", eventName), text, attachments)
}

// SendRefundConfirmation tells the attendee their money is on the way back.
func (m *MailerService) SendRefundConfirmation(to, eventTitle string, amount decimal.Decimal) {
	text := fmt.Sprintf("Your refund of %s for %s has been processed.", amount.String(), eventTitle)
	m.send(to, "Your refund has been processed", text, nil)
}

// SendPayoutNotice tells the organizer a revenue split landed.
func (m *MailerService) SendPayoutNotice(to string, amount decimal.Decimal, eventID string) {
	text := fmt.Sprintf("A payout of %s for event %s has been sent to your account.", amount.String(), eventID)
	m.send(to, "Payout on the way", text, nil)
}

// SendSoldOutNotice tells the organizer their event just sold out.
func (m *MailerService) SendSoldOutNotice(to, eventName string) {
	m.send(to, fmt.Sprintf("%s is sold out", eventName),
		fmt.Sprintf("All ticket tiers for %s have sold out.", eventName), nil)
}

// SendAdminAlert mails the operator inbox about a terminal failure.
func (m *MailerService) SendAdminAlert(subject, text string) {
	m.send(m.adminEmail, subject, text, nil)
}
