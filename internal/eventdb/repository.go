package eventdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chainhook/forwarder/internal/constants"
)

// Store inserts event, retrying transient failures per the configured
// policy. A (provider, hash) collision is translated into ErrDuplicate and
// is never retried, since retrying a unique-constraint violation can only
// fail the same way again.
func (e *EventDB) Store(ctx context.Context, event *StoredEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	err := e.policy.Execute(ctx, func(ctx context.Context) error {
		result := e.db.WithContext(ctx).Create(event)
		if result.Error == nil {
			return nil
		}
		if isUniqueViolation(result.Error) {
			return ErrDuplicate
		}
		return result.Error
	})

	if errors.Is(err, ErrDuplicate) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("storing event: %w", err)
	}
	return nil
}

// HashExists reports whether a row for (provider, hash) is already stored.
// This is the authoritative check behind the deduplicator's cache.
func (e *EventDB) HashExists(ctx context.Context, provider, hash string) (bool, error) {
	var count int64
	result := e.db.WithContext(ctx).
		Model(&StoredEvent{}).
		Where("provider = ? AND event_hash = ?", provider, hash).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("checking hash existence: %w", result.Error)
	}
	return count > 0, nil
}

// RecentEvents returns the most recently received events for provider, most
// recent first, capped at constants.RecentEventsLimit regardless of what's
// requested. This backs the debug-only GET /webhook/{provider}/events route.
func (e *EventDB) RecentEvents(ctx context.Context, provider string) ([]StoredEvent, error) {
	var events []StoredEvent
	result := e.db.WithContext(ctx).
		Where("provider = ?", provider).
		Order("received_at desc").
		Limit(constants.RecentEventsLimit).
		Find(&events)
	if result.Error != nil {
		return nil, fmt.Errorf("querying recent events: %w", result.Error)
	}
	return events, nil
}

// RecentCount reports how many rows were received at or after since, across
// all providers.
func (e *EventDB) RecentCount(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	result := e.db.WithContext(ctx).
		Model(&StoredEvent{}).
		Where("received_at >= ?", since).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("counting recent events: %w", result.Error)
	}
	return count, nil
}
