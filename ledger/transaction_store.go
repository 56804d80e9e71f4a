package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"

	"ticket-settlement/internal/status"
	"ticket-settlement/models"
)

type TransactionStore struct {
	db *dbx.DB
}

func (s *TransactionStore) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.
		Select("id", "reference", "status", "lock_status", "refund_id", "created", "updated").
		From("transactions").
		Where(dbx.HashExp{"reference": reference}).
		WithContext(ctx).
		One(&tx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", reference, err)
	}
	return &tx, nil
}

func (s *TransactionStore) CompareAndSwapStatus(ctx context.Context, reference string, from, to models.TransactionStatus) (bool, error) {
	res, err := s.db.
		Update("transactions",
			dbx.Params{"status": to, "updated": time.Now().UTC()},
			dbx.HashExp{"reference": reference, "status": from}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, fmt.Errorf("cas transaction %s %s->%s: %w", reference, from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *TransactionStore) CompareAndSwapRefund(ctx context.Context, reference, refundID string, from, to models.TransactionStatus) (bool, error) {
	res, err := s.db.
		Update("transactions",
			dbx.Params{"status": to, "refund_id": refundID, "updated": time.Now().UTC()},
			dbx.HashExp{"reference": reference, "status": from}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, fmt.Errorf("cas refund %s %s->%s: %w", reference, from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *TransactionStore) SetLockStatus(ctx context.Context, reference string, lockStatus models.LockStatus) error {
	_, err := s.db.
		Update("transactions",
			dbx.Params{"lock_status": lockStatus, "updated": time.Now().UTC()},
			dbx.HashExp{"reference": reference}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return fmt.Errorf("set lock status %s: %w", reference, err)
	}
	return nil
}
