package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ticket-settlement/ledger"
)

// Scheduler drives the time-triggered status flips: discount windows
// closing and event lifecycle transitions. Every flip is a conditional
// update in the ledger, so these writers follow the same atomicity rules as
// the webhook-driven ones and cannot race them into an illegal state.
type Scheduler struct {
	tiers    ledger.TierRepo
	events   ledger.EventRepo
	interval time.Duration
	log      *logrus.Entry

	stopChan chan struct{}
	done     chan struct{}
}

func New(tiers ledger.TierRepo, events ledger.EventRepo, interval time.Duration) *Scheduler {
	return &Scheduler{
		tiers:    tiers,
		events:   events,
		interval: interval,
		log:      logrus.WithField("component", "scheduler"),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
	s.log.WithField("interval", s.interval).Info("scheduler started")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if n, err := s.tiers.ExpireDiscounts(ctx); err != nil {
		s.log.WithError(err).Error("expire discounts")
	} else if n > 0 {
		s.log.WithField("count", n).Info("discount windows closed")
	}

	if n, err := s.events.StartDue(ctx); err != nil {
		s.log.WithError(err).Error("start due events")
	} else if n > 0 {
		s.log.WithField("count", n).Info("events started")
	}

	if n, err := s.events.CompleteDue(ctx); err != nil {
		s.log.WithError(err).Error("complete due events")
	} else if n > 0 {
		s.log.WithField("count", n).Info("events completed")
	}
}

func (s *Scheduler) Stop() {
	close(s.stopChan)
	<-s.done
	s.log.Info("scheduler stopped")
}
