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

type EventStore struct {
	db *dbx.DB
}

func (s *EventStore) GetByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := s.db.
		Select("id", "name", "organizer_id", "status", "revenue", "start_time", "end_time", "created", "updated").
		From("events").
		Where(dbx.HashExp{"id": id}).
		WithContext(ctx).
		One(&event)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return &event, nil
}

func (s *EventStore) MarkSoldOut(ctx context.Context, eventID string) (bool, error) {
	res, err := s.db.
		NewQuery(`
			UPDATE events SET status = {:soldOut}, updated = {:now}
			WHERE id = {:id} AND status IN ({:upcoming}, {:ongoing})`).
		Bind(dbx.Params{
			"id":       eventID,
			"soldOut":  models.EventSoldOut,
			"upcoming": models.EventUpcoming,
			"ongoing":  models.EventOngoing,
			"now":      time.Now().UTC(),
		}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, fmt.Errorf("mark event %s sold out: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *EventStore) GetOrganizer(ctx context.Context, eventID string) (*models.Organizer, error) {
	var organizer models.Organizer
	err := s.db.
		Select("o.id", "o.name", "o.email", "o.recipient_code").
		From("organizers o").
		InnerJoin("events e", dbx.NewExp("e.organizer_id = o.id")).
		Where(dbx.HashExp{"e.id": eventID}).
		WithContext(ctx).
		One(&organizer)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organizer for event %s: %w", eventID, err)
	}
	return &organizer, nil
}

// StartDue flips UPCOMING events whose start time has passed to ONGOING.
func (s *EventStore) StartDue(ctx context.Context) (int64, error) {
	res, err := s.db.
		NewQuery(`
			UPDATE events SET status = {:ongoing}, updated = {:now}
			WHERE status = {:upcoming} AND start_time <= {:now}`).
		Bind(dbx.Params{
			"ongoing":  models.EventOngoing,
			"upcoming": models.EventUpcoming,
			"now":      time.Now().UTC(),
		}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("start due events: %w", err)
	}
	return res.RowsAffected()
}

// CompleteDue flips running or sold-out events past their end time to
// COMPLETED.
func (s *EventStore) CompleteDue(ctx context.Context) (int64, error) {
	res, err := s.db.
		NewQuery(`
			UPDATE events SET status = {:completed}, updated = {:now}
			WHERE status IN ({:ongoing}, {:soldOut}) AND end_time <= {:now}`).
		Bind(dbx.Params{
			"completed": models.EventCompleted,
			"ongoing":   models.EventOngoing,
			"soldOut":   models.EventSoldOut,
			"now":       time.Now().UTC(),
		}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("complete due events: %w", err)
	}
	return res.RowsAffected()
}
