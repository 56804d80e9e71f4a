package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DLQ stores jobs that exhausted their retries in a sorted set scored by
// failure time, so operators can inspect, requeue or drop them.
type DLQ struct {
	client    *redis.Client
	key       string
	mainQueue string
	now       func() time.Time
	log       *logrus.Entry
}

type FailedJob struct {
	Job      *Job      `json:"job"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

type DLQStats struct {
	Size          int64     `json:"size"`
	OldestFailure time.Time `json:"oldest_failure,omitempty"`
	NewestFailure time.Time `json:"newest_failure,omitempty"`
}

func NewDLQ(client *redis.Client, key, mainQueue string) *DLQ {
	return &DLQ{
		client:    client,
		key:       key,
		mainQueue: mainQueue,
		now:       time.Now,
		log:       logrus.WithField("component", "dlq"),
	}
}

func (d *DLQ) Add(ctx context.Context, job *Job, cause error) {
	failed := FailedJob{Job: job, Error: cause.Error(), FailedAt: d.now().UTC()}

	data, err := json.Marshal(failed)
	if err != nil {
		d.log.WithError(err).Error("marshal failed job")
		return
	}

	err = d.client.ZAdd(ctx, d.key, redis.Z{
		Score:  float64(failed.FailedAt.UnixNano()) / 1e9,
		Member: data,
	}).Err()
	if err != nil {
		d.log.WithError(err).WithField("job_id", job.ID).Error("push to dlq")
		return
	}

	d.log.WithFields(logrus.Fields{"job_id": job.ID, "job_type": job.Type}).
		Warnf("job dead lettered: %v", cause)
}

// List returns up to limit failed jobs, newest first.
func (d *DLQ) List(ctx context.Context, limit int) ([]*FailedJob, error) {
	if limit <= 0 {
		limit = 50
	}

	entries, err := d.client.ZRevRange(ctx, d.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list dlq: %w", err)
	}

	failed := make([]*FailedJob, 0, len(entries))
	for _, entry := range entries {
		var fj FailedJob
		if err := json.Unmarshal([]byte(entry), &fj); err != nil {
			d.log.WithError(err).Error("unmarshal dlq entry")
			continue
		}
		failed = append(failed, &fj)
	}
	return failed, nil
}

// Requeue moves the failed job with the given id back onto the main queue
// with a fresh attempt counter.
func (d *DLQ) Requeue(ctx context.Context, jobID string) error {
	entry, fj, err := d.find(ctx, jobID)
	if err != nil {
		return err
	}

	fj.Job.Attempts = 0
	data, err := json.Marshal(fj.Job)
	if err != nil {
		return fmt.Errorf("marshal job for requeue: %w", err)
	}

	pipe := d.client.Pipeline()
	pipe.LPush(ctx, d.mainQueue, data)
	pipe.ZRem(ctx, d.key, entry)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("requeue job %s: %w", jobID, err)
	}

	d.log.WithField("job_id", jobID).Info("job requeued from dlq")
	return nil
}

func (d *DLQ) Delete(ctx context.Context, jobID string) error {
	entry, _, err := d.find(ctx, jobID)
	if err != nil {
		return err
	}
	if err := d.client.ZRem(ctx, d.key, entry).Err(); err != nil {
		return fmt.Errorf("delete dlq job %s: %w", jobID, err)
	}
	return nil
}

func (d *DLQ) find(ctx context.Context, jobID string) (string, *FailedJob, error) {
	entries, err := d.client.ZRange(ctx, d.key, 0, -1).Result()
	if err != nil {
		return "", nil, fmt.Errorf("scan dlq: %w", err)
	}

	for _, entry := range entries {
		var fj FailedJob
		if err := json.Unmarshal([]byte(entry), &fj); err != nil {
			continue
		}
		if fj.Job != nil && fj.Job.ID == jobID {
			return entry, &fj, nil
		}
	}
	return "", nil, fmt.Errorf("job %s not found in dlq", jobID)
}

func (d *DLQ) Stats(ctx context.Context) (*DLQStats, error) {
	size, err := d.client.ZCard(ctx, d.key).Result()
	if err != nil {
		return nil, fmt.Errorf("dlq size: %w", err)
	}

	stats := &DLQStats{Size: size}
	if size == 0 {
		return stats, nil
	}

	oldest, err := d.client.ZRange(ctx, d.key, 0, 0).Result()
	if err != nil {
		return nil, err
	}
	newest, err := d.client.ZRevRange(ctx, d.key, 0, 0).Result()
	if err != nil {
		return nil, err
	}

	var fj FailedJob
	if len(oldest) > 0 && json.Unmarshal([]byte(oldest[0]), &fj) == nil {
		stats.OldestFailure = fj.FailedAt
	}
	if len(newest) > 0 && json.Unmarshal([]byte(newest[0]), &fj) == nil {
		stats.NewestFailure = fj.FailedAt
	}
	return stats, nil
}
