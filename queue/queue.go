package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ticket-settlement/config"
	"ticket-settlement/monitoring"
)

// Handler processes one job payload. Returning an error sends the job
// through the retry policy; a nil return acknowledges it.
type Handler func(ctx context.Context, payload json.RawMessage) error

// RedisQueue is the settlement queue. Delivery is at least once: a job is
// moved from the main list to the processing list in one BLMOVE, handled,
// then removed from the processing list. Jobs that exhaust retries land in
// the DLQ.
type RedisQueue struct {
	client  *redis.Client
	cfg     config.QueueConfig
	retry   *RetryManager
	dlq     *DLQ
	monitor *monitoring.Monitor
	log     *logrus.Entry

	mu       sync.RWMutex
	handlers map[string]Handler

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewRedisQueue(client *redis.Client, cfg config.QueueConfig, monitor *monitoring.Monitor) *RedisQueue {
	return &RedisQueue{
		client:   client,
		cfg:      cfg,
		retry:    NewRetryManager(cfg.MaxRetries, cfg.BaseDelay),
		dlq:      NewDLQ(client, cfg.DLQ, cfg.MainQueue),
		monitor:  monitor,
		log:      logrus.WithField("component", "queue"),
		handlers: make(map[string]Handler),
		stopChan: make(chan struct{}),
	}
}

// DLQ exposes the dead letter queue for the admin surface.
func (q *RedisQueue) DLQ() *DLQ {
	return q.dlq
}

// Register binds a handler to a job type. Must be called before Start.
func (q *RedisQueue) Register(jobType string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

// Publish pushes a job onto the main queue.
func (q *RedisQueue) Publish(ctx context.Context, job *Job) error {
	if job.MaxRetries == 0 {
		job.MaxRetries = q.cfg.MaxRetries
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	if err := q.client.LPush(ctx, q.cfg.MainQueue, data).Err(); err != nil {
		return fmt.Errorf("publish job %s: %w", job.ID, err)
	}

	q.log.WithFields(logrus.Fields{"job_id": job.ID, "job_type": job.Type}).Debug("job published")
	return nil
}

// Start launches the worker pool.
func (q *RedisQueue) Start(ctx context.Context) {
	workers := q.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker(ctx, i)
	}

	q.log.WithField("workers", workers).Info("settlement queue started")
}

func (q *RedisQueue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	log := q.log.WithField("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopChan:
			return
		default:
			if err := q.consumeOne(ctx); err != nil {
				log.WithError(err).Error("consume job")
				time.Sleep(time.Second)
			}
		}
	}
}

func (q *RedisQueue) consumeOne(ctx context.Context) error {
	entry, err := q.client.BLMove(ctx, q.cfg.MainQueue, q.cfg.ProcessingQueue, "RIGHT", "LEFT", q.cfg.PopTimeout).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("pop job: %w", err)
	}

	// Whatever happens below, the entry leaves the processing list.
	defer func() {
		if err := q.client.LRem(context.WithoutCancel(ctx), q.cfg.ProcessingQueue, 1, entry).Err(); err != nil {
			q.log.WithError(err).Error("remove job from processing queue")
		}
	}()

	var job Job
	if err := json.Unmarshal([]byte(entry), &job); err != nil {
		q.dlq.Add(ctx, &Job{ID: "corrupted", Type: "corrupted", Payload: json.RawMessage(entry), CreatedAt: time.Now().UTC()},
			fmt.Errorf("unmarshal job: %w", err))
		return nil
	}

	if err := q.execute(ctx, &job); err != nil {
		q.dlq.Add(ctx, &job, err)
	}
	return nil
}

func (q *RedisQueue) execute(ctx context.Context, job *Job) error {
	q.mu.RLock()
	handler, ok := q.handlers[job.Type]
	q.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler for job type %q", job.Type)
	}

	log := q.log.WithFields(logrus.Fields{"job_id": job.ID, "job_type": job.Type})
	for {
		job.Attempts++
		started := time.Now()

		err := handler(ctx, job.Payload)
		q.monitor.TrackJobDuration(job.Type, time.Since(started))
		if err == nil {
			log.WithField("attempts", job.Attempts).Debug("job handled")
			return nil
		}

		retry, delay := q.retry.ShouldRetry(job, err)
		if !retry {
			return err
		}

		log.WithFields(logrus.Fields{"attempt": job.Attempts, "delay": delay}).
			Warnf("job failed, retrying: %v", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.stopChan:
			return err
		case <-time.After(delay):
		}
	}
}

// Stats reports current list lengths for the admin surface.
func (q *RedisQueue) Stats(ctx context.Context) (map[string]int64, error) {
	pipe := q.client.Pipeline()
	main := pipe.LLen(ctx, q.cfg.MainQueue)
	processing := pipe.LLen(ctx, q.cfg.ProcessingQueue)
	dlq := pipe.ZCard(ctx, q.cfg.DLQ)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}

	return map[string]int64{
		"main":       main.Val(),
		"processing": processing.Val(),
		"dlq":        dlq.Val(),
	}, nil
}

// Shutdown stops the workers and waits for in-flight jobs.
func (q *RedisQueue) Shutdown() {
	close(q.stopChan)
	q.wg.Wait()
	q.log.Info("settlement queue stopped")
}
