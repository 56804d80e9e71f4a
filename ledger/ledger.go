package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pocketbase/dbx"

	"ticket-settlement/config"
)

// Ledger is the durable source of truth for events, tiers, tickets and
// transactions. All row-level serialization lives here; callers never do
// read-then-write across two calls.
type Ledger struct {
	db *dbx.DB

	Transactions *TransactionStore
	Tiers        *TierStore
	Events       *EventStore
	Tickets      *TicketStore
}

func Open(cfg config.DatabaseConfig) (*Ledger, error) {
	db, err := dbx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.DB().SetMaxOpenConns(cfg.MaxOpenConns)
	db.DB().SetMaxIdleConns(cfg.MaxIdleConns)
	db.DB().SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.DB().PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	l := &Ledger{db: db}
	l.Transactions = &TransactionStore{db: db}
	l.Tiers = &TierStore{db: db}
	l.Events = &EventStore{db: db}
	l.Tickets = &TicketStore{db: db}
	return l, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// newRecordID returns a 15-char lowercase hex id for new rows.
func newRecordID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)[:15]
}
