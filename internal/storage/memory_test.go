package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetUser(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	saved := validProfile()
	require.NoError(t, s.SaveUser(ctx, saved))

	loaded, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, saved.FirstName, loaded.FirstName)

	// The store hands out copies, not aliases.
	loaded.FirstName = "changed"
	reloaded, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Alex", reloaded.FirstName)
}

func TestMemoryAddToQueuePreservesEnqueuedAt(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	original := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, s.AddToQueue(ctx, &QueueEntry{UserID: 1, EnqueuedAt: original}))

	later := &QueueEntry{UserID: 1, EnqueuedAt: time.Now().UTC()}
	require.NoError(t, s.AddToQueue(ctx, later))
	assert.Equal(t, original, later.EnqueuedAt, "the upsert reports the surviving timestamp")

	entries, err := s.GetQueueEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, original, entries[0].EnqueuedAt)
}

func TestMemoryRemoveFromQueueClearsClaim(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.AddToQueue(ctx, &QueueEntry{UserID: 1, EnqueuedAt: time.Now().UTC()}))

	claimed, err := s.ClaimQueueEntry(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, s.RemoveFromQueue(ctx, 1))

	// Re-enqueue after removal starts clean: no stale claim shadows it.
	require.NoError(t, s.AddToQueue(ctx, &QueueEntry{UserID: 1, EnqueuedAt: time.Now().UTC()}))
	claimed, err = s.ClaimQueueEntry(ctx, 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestMemoryEndMatchesByID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	match := &Match{ID: "1_2", Participants: [2]int64{1, 2}, IsActive: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.InsertMatch(ctx, match))

	endedAt := time.Now().UTC()
	ended, err := s.EndMatchesByID(ctx, "1_2", endedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ended)

	// Second call finds nothing active.
	ended, err = s.EndMatchesByID(ctx, "1_2", endedAt)
	require.NoError(t, err)
	assert.Zero(t, ended)

	ended, err = s.EndMatchesByID(ctx, "nope", endedAt)
	require.NoError(t, err)
	assert.Zero(t, ended)

	for _, userID := range []int64{1, 2} {
		_, err := s.GetActiveMatchByUser(ctx, userID)
		assert.ErrorIs(t, err, ErrNotFound)
	}

	records, err := s.GetMatchesByID(ctx, "1_2")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].IsActive)
	require.NotNil(t, records[0].EndedAt)
}

func TestMemoryGetActiveMatchByUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	match := &Match{ID: "1_2", Participants: [2]int64{1, 2}, IsActive: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.InsertMatch(ctx, match))

	active, err := s.GetActiveMatchByUser(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "1_2", active.ID)

	_, err = s.GetActiveMatchByUser(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}
