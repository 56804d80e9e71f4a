package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-settlement/internal/status"
	"ticket-settlement/models"
)

func setupTestLockService() (*LockService, redismock.ClientMock) {
	client, mock := redismock.NewClientMock()
	return NewLockService(client, time.Minute, 72*time.Hour), mock
}

func lockJSON(t *testing.T, lock models.TicketLock) string {
	t.Helper()
	data, err := json.Marshal(lock)
	require.NoError(t, err)
	return string(data)
}

func TestLockService_Get_Found(t *testing.T) {
	svc, mock := setupTestLockService()
	defer mock.ClearExpect()

	stored := models.TicketLock{Status: models.LockStateLocked, TierID: "tier-1", NumberOfTickets: 2}
	mock.ExpectGet("ticket_lock:lock-1").SetVal(lockJSON(t, stored))

	lock, err := svc.Get(context.Background(), "lock-1")
	require.NoError(t, err)
	assert.Equal(t, models.LockStateLocked, lock.Status)
	assert.Equal(t, "tier-1", lock.TierID)
	assert.Equal(t, 2, lock.NumberOfTickets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_Get_MissingMeansExpired(t *testing.T) {
	svc, mock := setupTestLockService()
	defer mock.ClearExpect()

	mock.ExpectGet("ticket_lock:gone").RedisNil()

	_, err := svc.Get(context.Background(), "gone")
	assert.ErrorIs(t, err, status.ErrLockExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_MarkPaid_Success(t *testing.T) {
	svc, mock := setupTestLockService()
	defer mock.ClearExpect()

	paid := models.TicketLock{Status: models.LockStatePaid, TierID: "tier-1", NumberOfTickets: 2}
	mock.ExpectEval(markPaidScript, []string{"ticket_lock:lock-1"}, int64(60000)).
		SetVal(lockJSON(t, paid))

	lock, err := svc.MarkPaid(context.Background(), "lock-1")
	require.NoError(t, err)
	assert.Equal(t, models.LockStatePaid, lock.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_MarkPaid_ExpiredOrWrongState(t *testing.T) {
	svc, mock := setupTestLockService()
	defer mock.ClearExpect()

	// The script answers '' both for a missing key and a non-locked state.
	mock.ExpectEval(markPaidScript, []string{"ticket_lock:lock-1"}, int64(60000)).SetVal("")

	_, err := svc.MarkPaid(context.Background(), "lock-1")
	assert.ErrorIs(t, err, status.ErrLockExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_Create(t *testing.T) {
	svc, mock := setupTestLockService()
	defer mock.ClearExpect()

	lock := models.TicketLock{TierID: "tier-1", NumberOfTickets: 3}
	expected := lockJSON(t, models.TicketLock{
		Status: models.LockStateLocked, TierID: "tier-1", NumberOfTickets: 3,
	})
	mock.ExpectSet("ticket_lock:lock-1", []byte(expected), 10*time.Minute).SetVal("OK")

	err := svc.Create(context.Background(), "lock-1", &lock, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, models.LockStateLocked, lock.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_Release_FromLocked(t *testing.T) {
	svc, mock := setupTestLockService()
	defer mock.ClearExpect()

	stored := models.TicketLock{Status: models.LockStateLocked, TierID: "tier-1", NumberOfTickets: 2}
	unlocked := models.TicketLock{Status: models.LockStateUnlocked, TierID: "tier-1", NumberOfTickets: 2}

	mock.ExpectGet("ticket_lock:lock-1").SetVal(lockJSON(t, stored))
	mock.ExpectSet("ticket_lock:lock-1", []byte(lockJSON(t, unlocked)), redis.KeepTTL).SetVal("OK")

	require.NoError(t, svc.Release(context.Background(), "lock-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_Release_PaidLockRefused(t *testing.T) {
	svc, mock := setupTestLockService()
	defer mock.ClearExpect()

	stored := models.TicketLock{Status: models.LockStatePaid, TierID: "tier-1", NumberOfTickets: 2}
	mock.ExpectGet("ticket_lock:lock-1").SetVal(lockJSON(t, stored))

	err := svc.Release(context.Background(), "lock-1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cannot release")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_Delete(t *testing.T) {
	svc, mock := setupTestLockService()
	defer mock.ClearExpect()

	mock.ExpectDel("ticket_lock:lock-1").SetVal(1)

	require.NoError(t, svc.Delete(context.Background(), "lock-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_RecordSales(t *testing.T) {
	svc, mock := setupTestLockService()
	defer mock.ClearExpect()

	frozen := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }

	score := float64(frozen.Unix())
	cutoff := fmt.Sprintf("%d", frozen.Add(-72*time.Hour).Unix())

	mock.ExpectZAdd("event_log:event-1",
		redis.Z{Score: score, Member: "ticket-1"},
		redis.Z{Score: score, Member: "ticket-2"},
	).SetVal(2)
	mock.ExpectZRemRangeByScore("event_log:event-1", "0", cutoff).SetVal(0)

	err := svc.RecordSales(context.Background(), "event-1", []string{"ticket-1", "ticket-2"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockService_RecordSales_NoTicketsIsNoop(t *testing.T) {
	svc, mock := setupTestLockService()
	defer mock.ClearExpect()

	require.NoError(t, svc.RecordSales(context.Background(), "event-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
