package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-settlement/config"
)

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		MainQueue:       "settlement:jobs",
		ProcessingQueue: "settlement:jobs:processing",
		DLQ:             "settlement:dlq",
		MaxRetries:      3,
		BaseDelay:       time.Millisecond,
		PopTimeout:      time.Second,
		Workers:         1,
	}
}

func setupTestQueue() (*RedisQueue, redismock.ClientMock) {
	client, mock := redismock.NewClientMock()
	return NewRedisQueue(client, testQueueConfig(), nil), mock
}

func fixedJob() *Job {
	return &Job{
		ID:        "JOB1",
		Type:      "transaction",
		Payload:   json.RawMessage(`{"k":"v"}`),
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRedisQueue_Publish(t *testing.T) {
	q, mock := setupTestQueue()
	defer mock.ClearExpect()

	job := fixedJob()

	// Publish stamps the default retry budget before serializing.
	expected := fixedJob()
	expected.MaxRetries = 3
	data, err := json.Marshal(expected)
	require.NoError(t, err)
	mock.ExpectLPush("settlement:jobs", data).SetVal(1)

	require.NoError(t, q.Publish(context.Background(), job))
	assert.Equal(t, 3, job.MaxRetries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisQueue_Publish_KeepsExplicitRetryBudget(t *testing.T) {
	q, mock := setupTestQueue()
	defer mock.ClearExpect()

	job := fixedJob()
	job.MaxRetries = 7
	data, err := json.Marshal(job)
	require.NoError(t, err)
	mock.ExpectLPush("settlement:jobs", data).SetVal(1)

	require.NoError(t, q.Publish(context.Background(), job))
	assert.Equal(t, 7, job.MaxRetries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisQueue_Stats(t *testing.T) {
	q, mock := setupTestQueue()
	defer mock.ClearExpect()

	mock.ExpectLLen("settlement:jobs").SetVal(12)
	mock.ExpectLLen("settlement:jobs:processing").SetVal(2)
	mock.ExpectZCard("settlement:dlq").SetVal(1)

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"main": 12, "processing": 2, "dlq": 1}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func failedEntry(t *testing.T, job *Job, cause string, failedAt time.Time) string {
	t.Helper()
	data, err := json.Marshal(FailedJob{Job: job, Error: cause, FailedAt: failedAt})
	require.NoError(t, err)
	return string(data)
}

func TestDLQ_Add(t *testing.T) {
	client, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	dlq := NewDLQ(client, "settlement:dlq", "settlement:jobs")

	frozen := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	dlq.now = func() time.Time { return frozen }

	entry, err := json.Marshal(FailedJob{Job: fixedJob(), Error: "handler blew up", FailedAt: frozen})
	require.NoError(t, err)
	mock.ExpectZAdd("settlement:dlq", redis.Z{
		Score:  float64(frozen.UnixNano()) / 1e9,
		Member: entry,
	}).SetVal(1)

	dlq.Add(context.Background(), fixedJob(), errors.New("handler blew up"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDLQ_List(t *testing.T) {
	client, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	dlq := NewDLQ(client, "settlement:dlq", "settlement:jobs")

	failedAt := time.Date(2026, 8, 2, 9, 30, 0, 0, time.UTC)
	entry := failedEntry(t, fixedJob(), "handler blew up", failedAt)
	mock.ExpectZRevRange("settlement:dlq", 0, 49).SetVal([]string{entry})

	failed, err := dlq.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "JOB1", failed[0].Job.ID)
	assert.Equal(t, "handler blew up", failed[0].Error)
	assert.Equal(t, failedAt, failed[0].FailedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDLQ_Requeue(t *testing.T) {
	client, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	dlq := NewDLQ(client, "settlement:dlq", "settlement:jobs")

	deadJob := fixedJob()
	deadJob.Attempts = 3
	entry := failedEntry(t, deadJob, "handler blew up", time.Date(2026, 8, 2, 9, 30, 0, 0, time.UTC))
	mock.ExpectZRange("settlement:dlq", 0, -1).SetVal([]string{entry})

	requeued := fixedJob()
	requeued.Attempts = 0
	data, err := json.Marshal(requeued)
	require.NoError(t, err)
	mock.ExpectLPush("settlement:jobs", data).SetVal(1)
	mock.ExpectZRem("settlement:dlq", entry).SetVal(1)

	require.NoError(t, dlq.Requeue(context.Background(), "JOB1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDLQ_Requeue_UnknownJob(t *testing.T) {
	client, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	dlq := NewDLQ(client, "settlement:dlq", "settlement:jobs")

	mock.ExpectZRange("settlement:dlq", 0, -1).SetVal([]string{})

	err := dlq.Requeue(context.Background(), "missing")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDLQ_Stats(t *testing.T) {
	client, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	dlq := NewDLQ(client, "settlement:dlq", "settlement:jobs")

	oldestAt := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	newestAt := time.Date(2026, 8, 2, 9, 30, 0, 0, time.UTC)
	oldest := failedEntry(t, fixedJob(), "first", oldestAt)
	newest := failedEntry(t, fixedJob(), "second", newestAt)

	mock.ExpectZCard("settlement:dlq").SetVal(2)
	mock.ExpectZRange("settlement:dlq", 0, 0).SetVal([]string{oldest})
	mock.ExpectZRevRange("settlement:dlq", 0, 0).SetVal([]string{newest})

	stats, err := dlq.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Size)
	assert.Equal(t, oldestAt, stats.OldestFailure)
	assert.Equal(t, newestAt, stats.NewestFailure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewJob(t *testing.T) {
	job, err := NewJob("transaction", map[string]string{"reference": "ref-1"})
	require.NoError(t, err)

	assert.Len(t, job.ID, 16)
	assert.Equal(t, "transaction", job.Type)
	assert.JSONEq(t, `{"reference":"ref-1"}`, string(job.Payload))
	assert.Zero(t, job.Attempts)
	assert.False(t, job.CreatedAt.IsZero())
}
