package match

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"anonchat-backend/internal/storage"
)

// ErrInvalidParticipants signals an invariant violation: a match needs
// exactly two distinct users.
var ErrInvalidParticipants = errors.New("match requires two distinct participants")

// Manager owns the match lifecycle: ACTIVE -> ENDED, terminal. A user has
// at most one active match at any time; CreateMatch enforces this by
// force-ending stale actives before inserting.
type Manager struct {
	store storage.Store
}

func NewManager(store storage.Store) *Manager {
	return &Manager{store: store}
}

// MatchID derives the deterministic, order-independent id for a pair. The
// same two users always map to the same id, even across re-matches.
func MatchID(userA, userB int64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d_%d", userA, userB)
}

// CreateMatch force-ends any existing active match for either participant,
// then persists a new active match and returns it. The cleanup step is the
// self-healing defense against stale state left by crashed passes.
func (m *Manager) CreateMatch(ctx context.Context, userA, userB int64) (*storage.Match, error) {
	if userA == userB || userA <= 0 || userB <= 0 {
		return nil, ErrInvalidParticipants
	}

	matchID := MatchID(userA, userB)
	now := time.Now().UTC()

	log.Printf("[MATCH_CREATE] Creating match %s for users %d and %d", matchID, userA, userB)

	for _, userID := range []int64{userA, userB} {
		prev, err := m.store.GetActiveMatchByUser(ctx, userID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check active match for user %d: %w", userID, err)
		}
		ended, err := m.store.EndMatchesByID(ctx, prev.ID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to end stale match %s: %w", prev.ID, err)
		}
		log.Printf("[MATCH_CREATE] Force-ended %d stale record(s) for match %s (user %d)",
			ended, prev.ID, userID)
	}

	match := &storage.Match{
		ID:           matchID,
		Participants: [2]int64{userA, userB},
		IsActive:     true,
		CreatedAt:    now,
	}

	if err := m.store.InsertMatch(ctx, match); err != nil {
		return nil, fmt.Errorf("failed to insert match %s: %w", matchID, err)
	}

	log.Printf("[MATCH_CREATE] Match %s created", matchID)
	return match, nil
}

// GetActiveMatch is the sole authority for "is this user in a chat". It
// returns nil without error when the user has no active match.
func (m *Manager) GetActiveMatch(ctx context.Context, userID int64) (*storage.Match, error) {
	match, err := m.store.GetActiveMatchByUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if match.Participants[0] == match.Participants[1] ||
		match.Participants[0] <= 0 || match.Participants[1] <= 0 {
		log.Printf("[MATCH_LOOKUP] Match %s has invalid participant pair %v",
			match.ID, match.Participants)
		return nil, ErrInvalidParticipants
	}
	return match, nil
}

// EndMatch ends every record carrying the id, guarding against duplicate
// rows under non-transactional stores. Ending an already-ended match is a
// no-op.
func (m *Manager) EndMatch(ctx context.Context, matchID string) error {
	ended, err := m.store.EndMatchesByID(ctx, matchID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to end match %s: %w", matchID, err)
	}
	if ended == 0 {
		log.Printf("[MATCH_END] Match %s already ended or unknown", matchID)
		return nil
	}
	log.Printf("[MATCH_END] Ended %d record(s) for match %s", ended, matchID)
	return nil
}

// Other returns the peer of userID in the match.
func Other(match *storage.Match, userID int64) int64 {
	if match.Participants[0] == userID {
		return match.Participants[1]
	}
	return match.Participants[0]
}
