package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var (
	purchaseCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_purchases_total",
			Help: "Settled ticket purchases per event",
		},
		[]string{"event_id", "status"},
	)

	purchaseVolume = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_purchase_volume",
			Help: "Gross settled purchase amount in minor units per event",
		},
		[]string{"event_id"},
	)

	refundCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_refunds_total",
			Help: "Refund outcomes per event type",
		},
		[]string{"event_type", "status"},
	)

	refundVolume = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_refund_volume",
			Help: "Amount returned to attendees in minor units",
		},
	)

	payoutVolume = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_payout_volume",
			Help: "Organizer payout amount in minor units",
		},
		[]string{"reason"},
	)

	transferFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_transfer_failures_total",
			Help: "Transfers that failed or were reversed by the gateway",
		},
	)

	settlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settlement_job_duration_seconds",
			Help:    "Time spent handling one settlement job",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"job_type"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "settlement_queue_depth",
			Help: "Pending jobs per queue key",
		},
		[]string{"queue"},
	)
)

type Monitor struct {
	redis     *redis.Client
	queueKeys []string
}

// NewMonitor samples the given queue keys every 30s in the background.
func NewMonitor(redisClient *redis.Client, queueKeys ...string) *Monitor {
	monitor := &Monitor{redis: redisClient, queueKeys: queueKeys}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()
		m.collectQueueMetrics(ctx)
	}
}

func (m *Monitor) collectQueueMetrics(ctx context.Context) {
	for _, key := range m.queueKeys {
		length, err := m.redis.LLen(ctx, key).Result()
		if err != nil {
			continue
		}
		queueDepth.WithLabelValues(key).Set(float64(length))
	}
}

func (m *Monitor) TrackPurchase(eventID, status string, amount decimal.Decimal) {
	purchaseCount.WithLabelValues(eventID, status).Inc()
	if status == "success" {
		purchaseVolume.WithLabelValues(eventID).Add(amount.InexactFloat64())
	}
}

func (m *Monitor) TrackRefund(eventType, status string, amount decimal.Decimal) {
	refundCount.WithLabelValues(eventType, status).Inc()
	if status == "success" {
		refundVolume.Add(amount.InexactFloat64())
	}
}

func (m *Monitor) TrackPayout(reason string, amount decimal.Decimal) {
	payoutVolume.WithLabelValues(reason).Add(amount.InexactFloat64())
}

func (m *Monitor) TrackTransferFailure() {
	transferFailures.Inc()
}

func (m *Monitor) TrackJobDuration(jobType string, duration time.Duration) {
	settlementDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}
