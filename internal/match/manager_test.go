package match

import (
	"context"
	"testing"

	"anonchat-backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchIDOrderIndependent(t *testing.T) {
	assert.Equal(t, "3_7", MatchID(7, 3))
	assert.Equal(t, "3_7", MatchID(3, 7))
}

func TestCreateMatchRejectsInvalidParticipants(t *testing.T) {
	m := NewManager(storage.NewMemoryStore())
	ctx := context.Background()

	_, err := m.CreateMatch(ctx, 5, 5)
	assert.ErrorIs(t, err, ErrInvalidParticipants)

	_, err = m.CreateMatch(ctx, 0, 5)
	assert.ErrorIs(t, err, ErrInvalidParticipants)

	_, err = m.CreateMatch(ctx, 5, -1)
	assert.ErrorIs(t, err, ErrInvalidParticipants)
}

func TestCreateMatchVisibleToBothSides(t *testing.T) {
	m := NewManager(storage.NewMemoryStore())
	ctx := context.Background()

	created, err := m.CreateMatch(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, created.IsActive)

	for _, userID := range []int64{1, 2} {
		active, err := m.GetActiveMatch(ctx, userID)
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, created.ID, active.ID)
	}
}

func TestCreateMatchForceEndsStaleActives(t *testing.T) {
	m := NewManager(storage.NewMemoryStore())
	ctx := context.Background()

	_, err := m.CreateMatch(ctx, 1, 2)
	require.NoError(t, err)

	// A crashed pass left user 1 nominally in a chat; re-matching rolls
	// the stale state forward.
	created, err := m.CreateMatch(ctx, 1, 3)
	require.NoError(t, err)

	active, err := m.GetActiveMatch(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, created.ID, active.ID)

	orphaned, err := m.GetActiveMatch(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, orphaned, "the abandoned partner is freed, not stuck")
}

func TestEndMatchIsIdempotent(t *testing.T) {
	m := NewManager(storage.NewMemoryStore())
	ctx := context.Background()

	created, err := m.CreateMatch(ctx, 1, 2)
	require.NoError(t, err)

	require.NoError(t, m.EndMatch(ctx, created.ID))
	require.NoError(t, m.EndMatch(ctx, created.ID), "ending twice is a no-op")
	require.NoError(t, m.EndMatch(ctx, "999_1000"), "ending an unknown match is a no-op")

	for _, userID := range []int64{1, 2} {
		active, err := m.GetActiveMatch(ctx, userID)
		require.NoError(t, err)
		assert.Nil(t, active)
	}
}

func TestRematchReusesPairID(t *testing.T) {
	store := storage.NewMemoryStore()
	m := NewManager(store)
	ctx := context.Background()

	first, err := m.CreateMatch(ctx, 1, 2)
	require.NoError(t, err)
	require.NoError(t, m.EndMatch(ctx, first.ID))

	second, err := m.CreateMatch(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "the same pair always maps to the same id")

	active, err := m.GetActiveMatch(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.True(t, active.IsActive)
}

func TestOther(t *testing.T) {
	match := &storage.Match{ID: "1_2", Participants: [2]int64{1, 2}}
	assert.Equal(t, int64(2), Other(match, 1))
	assert.Equal(t, int64(1), Other(match, 2))
}
