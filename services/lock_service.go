package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ticket-settlement/internal/status"
	"ticket-settlement/models"
)

const (
	lockKeyPrefix     = "ticket_lock:"
	eventLogKeyPrefix = "event_log:"
)

// markPaidScript flips a lock from locked to paid and extends its TTL in one
// round trip. Doing it as two commands would let a concurrent unlock job
// read the lock between them. Returns the updated JSON, or an empty string
// when the key is gone or not in the locked state.
const markPaidScript = `
local raw = redis.call('GET', KEYS[1])
if not raw then
	return ''
end
local lock = cjson.decode(raw)
if lock['status'] ~= 'locked' then
	return ''
end
lock['status'] = 'paid'
local updated = cjson.encode(lock)
redis.call('SET', KEYS[1], updated, 'PX', ARGV[1])
return updated
`

// LockService owns the ephemeral reservation keys and the per-event rolling
// activity window. Lock entries are advisory: absence always means the
// purchase window expired, never that it was granted.
type LockService struct {
	redis          *redis.Client
	paidTTL        time.Duration
	trendingWindow time.Duration
	now            func() time.Time
	log            *logrus.Entry
}

func NewLockService(redisClient *redis.Client, paidTTL, trendingWindow time.Duration) *LockService {
	return &LockService{
		redis:          redisClient,
		paidTTL:        paidTTL,
		trendingWindow: trendingWindow,
		now:            time.Now,
		log:            logrus.WithField("component", "lock"),
	}
}

func lockKey(lockID string) string {
	return lockKeyPrefix + lockID
}

func eventLogKey(eventID string) string {
	return eventLogKeyPrefix + eventID
}

// Get reads a lock. A missing key comes back as ErrLockExpired.
func (s *LockService) Get(ctx context.Context, lockID string) (*models.TicketLock, error) {
	raw, err := s.redis.Get(ctx, lockKey(lockID)).Result()
	if err == redis.Nil {
		return nil, status.ErrLockExpired
	}
	if err != nil {
		return nil, fmt.Errorf("get lock %s: %w", lockID, err)
	}

	var lock models.TicketLock
	if err := json.Unmarshal([]byte(raw), &lock); err != nil {
		return nil, fmt.Errorf("decode lock %s: %w", lockID, err)
	}
	return &lock, nil
}

// Create stores a fresh reservation under ttl. The purchase flow calls this
// before redirecting the attendee to checkout.
func (s *LockService) Create(ctx context.Context, lockID string, lock *models.TicketLock, ttl time.Duration) error {
	lock.Status = models.LockStateLocked
	data, err := json.Marshal(lock)
	if err != nil {
		return fmt.Errorf("encode lock %s: %w", lockID, err)
	}
	if err := s.redis.Set(ctx, lockKey(lockID), data, ttl).Err(); err != nil {
		return fmt.Errorf("create lock %s: %w", lockID, err)
	}
	return nil
}

// MarkPaid atomically flips the lock to paid and extends it so the unlock
// job sees the committed state before the key disappears.
func (s *LockService) MarkPaid(ctx context.Context, lockID string) (*models.TicketLock, error) {
	res, err := s.redis.Eval(ctx, markPaidScript, []string{lockKey(lockID)}, s.paidTTL.Milliseconds()).Result()
	if err != nil {
		return nil, fmt.Errorf("mark lock %s paid: %w", lockID, err)
	}

	raw, _ := res.(string)
	if raw == "" {
		return nil, status.ErrLockExpired
	}

	var lock models.TicketLock
	if err := json.Unmarshal([]byte(raw), &lock); err != nil {
		return nil, fmt.Errorf("decode lock %s: %w", lockID, err)
	}
	return &lock, nil
}

// Release marks a lock unlocked so the unlock job restores its stock.
func (s *LockService) Release(ctx context.Context, lockID string) error {
	lock, err := s.Get(ctx, lockID)
	if err != nil {
		return err
	}
	if !lock.Status.CanTransition(models.LockStateUnlocked) {
		return fmt.Errorf("lock %s is %s, cannot release", lockID, lock.Status)
	}

	lock.Status = models.LockStateUnlocked
	data, err := json.Marshal(lock)
	if err != nil {
		return fmt.Errorf("encode lock %s: %w", lockID, err)
	}
	if err := s.redis.Set(ctx, lockKey(lockID), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", lockID, err)
	}
	return nil
}

// Delete removes the lock unconditionally. The unlock job calls this last on
// every branch so a reservation never outlives its cleanup.
func (s *LockService) Delete(ctx context.Context, lockID string) error {
	if err := s.redis.Del(ctx, lockKey(lockID)).Err(); err != nil {
		return fmt.Errorf("delete lock %s: %w", lockID, err)
	}
	return nil
}

// RecordSales appends ticket ids to the event's rolling activity window and
// prunes entries older than the window in the same pipeline. Trending rank
// is computed off this set elsewhere.
func (s *LockService) RecordSales(ctx context.Context, eventID string, ticketIDs []string) error {
	if len(ticketIDs) == 0 {
		return nil
	}

	now := s.now().UTC()
	members := make([]redis.Z, len(ticketIDs))
	for i, id := range ticketIDs {
		members[i] = redis.Z{Score: float64(now.Unix()), Member: id}
	}

	cutoff := now.Add(-s.trendingWindow).Unix()

	pipe := s.redis.Pipeline()
	pipe.ZAdd(ctx, eventLogKey(eventID), members...)
	pipe.ZRemRangeByScore(ctx, eventLogKey(eventID), "0", fmt.Sprintf("%d", cutoff))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record sales for event %s: %w", eventID, err)
	}
	return nil
}
