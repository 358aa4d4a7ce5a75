package eventdb

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *EventDB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	edb, err := NewFromSQLDatabase(DialectSQLite, db, log)
	require.NoError(t, err)
	require.NoError(t, edb.AutoMigrate(t.Context()))

	return edb
}

func TestStoreAndHashExists(t *testing.T) {
	edb := setupTestDB(t)
	ctx := t.Context()

	event := &StoredEvent{
		Provider:  "alchemy",
		EventType: "ADDRESS_ACTIVITY",
		EventData: JSON(`{"type":"ADDRESS_ACTIVITY"}`),
		EventHash: "a1b2c3",
		SourceIP:  "203.0.113.5",
	}

	require.NoError(t, edb.Store(ctx, event))
	require.NotEmpty(t, event.ID)

	exists, err := edb.HashExists(ctx, "alchemy", "a1b2c3")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = edb.HashExists(ctx, "alchemy", "does-not-exist")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestStoreDuplicateIsRejected(t *testing.T) {
	edb := setupTestDB(t)
	ctx := t.Context()

	event := &StoredEvent{
		Provider:  "alchemy",
		EventType: "ADDRESS_ACTIVITY",
		EventData: JSON(`{}`),
		EventHash: "dupehash",
	}
	require.NoError(t, edb.Store(ctx, event))

	second := &StoredEvent{
		Provider:  "alchemy",
		EventType: "ADDRESS_ACTIVITY",
		EventData: JSON(`{}`),
		EventHash: "dupehash",
	}
	err := edb.Store(ctx, second)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDuplicate))
}

func TestSameHashDifferentProviderIsNotADuplicate(t *testing.T) {
	edb := setupTestDB(t)
	ctx := t.Context()

	require.NoError(t, edb.Store(ctx, &StoredEvent{
		Provider:  "alchemy",
		EventType: "X",
		EventData: JSON(`{}`),
		EventHash: "samehash",
	}))
	require.NoError(t, edb.Store(ctx, &StoredEvent{
		Provider:  "other-provider",
		EventType: "X",
		EventData: JSON(`{}`),
		EventHash: "samehash",
	}))
}

func TestRecentEventsOrderedDescending(t *testing.T) {
	edb := setupTestDB(t)
	ctx := t.Context()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, edb.Store(ctx, &StoredEvent{
			Provider:   "alchemy",
			EventType:  "X",
			EventData:  JSON(`{}`),
			EventHash:  string(rune('a' + i)),
			ReceivedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	events, err := edb.RecentEvents(ctx, "alchemy")
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.True(t, events[0].ReceivedAt.After(events[1].ReceivedAt))
	require.True(t, events[1].ReceivedAt.After(events[2].ReceivedAt))
}

func TestRecentEventsCappedAtLimit(t *testing.T) {
	edb := setupTestDB(t)
	ctx := t.Context()

	for i := 0; i < 60; i++ {
		require.NoError(t, edb.Store(ctx, &StoredEvent{
			Provider:  "alchemy",
			EventType: "X",
			EventData: JSON(`{}`),
			EventHash: fmt.Sprintf("hash-%02d", i),
		}))
	}

	events, err := edb.RecentEvents(ctx, "alchemy")
	require.NoError(t, err)
	require.Len(t, events, 50)
}

func TestCheckHealth(t *testing.T) {
	edb := setupTestDB(t)
	require.NoError(t, edb.CheckHealth(t.Context()))
}

func TestRecentCountOnlyCountsSinceCutoff(t *testing.T) {
	edb := setupTestDB(t)
	ctx := t.Context()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, edb.Store(ctx, &StoredEvent{
		Provider: "alchemy", EventType: "X", EventData: JSON(`{}`),
		EventHash: "old", ReceivedAt: base,
	}))
	require.NoError(t, edb.Store(ctx, &StoredEvent{
		Provider: "alchemy", EventType: "X", EventData: JSON(`{}`),
		EventHash: "new", ReceivedAt: base.Add(time.Hour),
	}))

	count, err := edb.RecentCount(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	count, err = edb.RecentCount(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

