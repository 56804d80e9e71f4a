package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-settlement/internal/status"
	"ticket-settlement/models"
)

type fakeRefundMailer struct {
	confirmations int
	adminAlerts   int
}

func (f *fakeRefundMailer) SendRefundConfirmation(_, _ string, _ decimal.Decimal) {
	f.confirmations++
}

func (f *fakeRefundMailer) SendAdminAlert(_, _ string) { f.adminAlerts++ }

type fakeRefundMetrics struct {
	outcomes []string
}

func (f *fakeRefundMetrics) TrackRefund(_, outcome string, _ decimal.Decimal) {
	f.outcomes = append(f.outcomes, outcome)
}

type refundFixture struct {
	svc     *RefundService
	txs     *fakeTxRepo
	mailer  *fakeRefundMailer
	notify  *fakeNotifier
	metrics *fakeRefundMetrics
}

func newRefundFixture(refs ...string) *refundFixture {
	f := &refundFixture{
		txs:     newFakeTxRepo(refs...),
		mailer:  &fakeRefundMailer{},
		notify:  &fakeNotifier{},
		metrics: &fakeRefundMetrics{},
	}
	for _, ref := range refs {
		f.txs.txs[ref].Status = models.RefundPending
	}
	f.svc = NewRefundService(f.txs, f.mailer, f.notify, f.metrics)
	return f
}

func refundPayload(t *testing.T, job models.RefundJob) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return data
}

func processedRefundJob(ref string) models.RefundJob {
	return models.RefundJob{
		EventType: models.EventRefundProcessed,
		Metadata: models.RefundJobMetadata{
			Email: "buyer@example.com", EventTitle: "Launch Party", Date: "2026-09-01",
		},
		Amount:               decimal.NewFromInt(15000),
		RefundID:             "rfnd-1",
		TransactionReference: ref,
	}
}

func TestHandleRefundJob_Processed(t *testing.T) {
	f := newRefundFixture("ref-1")

	err := f.svc.HandleRefundJob(context.Background(), refundPayload(t, processedRefundJob("ref-1")))
	require.NoError(t, err)

	assert.Equal(t, models.RefundSuccess, f.txs.statusOf("ref-1"))
	assert.Equal(t, "rfnd-1", f.txs.txs["ref-1"].RefundID)
	assert.Equal(t, 1, f.mailer.confirmations)
	assert.Equal(t, []string{"success"}, f.metrics.outcomes)
	assert.Equal(t, 0, f.notify.escalations)
}

func TestHandleRefundJob_FailedEscalates(t *testing.T) {
	f := newRefundFixture("ref-1")

	job := processedRefundJob("ref-1")
	job.EventType = models.EventRefundFailed

	err := f.svc.HandleRefundJob(context.Background(), refundPayload(t, job))
	require.NoError(t, err)

	assert.Equal(t, models.RefundFailed, f.txs.statusOf("ref-1"))
	assert.Equal(t, 1, f.notify.escalations)
	assert.Equal(t, 1, f.mailer.adminAlerts)
	assert.Equal(t, []string{"failed"}, f.metrics.outcomes)
	assert.Equal(t, 0, f.mailer.confirmations)
}

func TestHandleRefundJob_AlreadySettledIsNoop(t *testing.T) {
	f := newRefundFixture("ref-1")
	f.txs.txs["ref-1"].Status = models.RefundSuccess

	err := f.svc.HandleRefundJob(context.Background(), refundPayload(t, processedRefundJob("ref-1")))
	require.NoError(t, err)

	assert.Empty(t, f.metrics.outcomes)
	assert.Equal(t, 0, f.mailer.confirmations)
}

func TestHandleRefundJob_MissingReference(t *testing.T) {
	f := newRefundFixture()

	err := f.svc.HandleRefundJob(context.Background(), json.RawMessage(`{"eventType":"refund.processed"}`))
	assert.ErrorIs(t, err, status.ErrMalformedPayload)
}
