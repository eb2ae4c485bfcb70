package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps everything in process-local maps guarded by a mutex.
// Intended for development and tests; nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[int64]*UserProfile
	queue     map[int64]*QueueEntry
	claims    map[int64]time.Time
	matches   map[string]*Match
	userMatch map[int64]string // userID -> active match id fast lookup
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]*UserProfile),
		queue:     make(map[int64]*QueueEntry),
		claims:    make(map[int64]time.Time),
		matches:   make(map[string]*Match),
		userMatch: make(map[int64]string),
	}
}

func (s *MemoryStore) GetUser(ctx context.Context, userID int64) (*UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *MemoryStore) SaveUser(ctx context.Context, profile *UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *profile
	s.users[profile.UserID] = &copied
	return nil
}

func (s *MemoryStore) AddToQueue(ctx context.Context, entry *QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.queue[entry.UserID]; ok {
		// Keep the original wait-time clock on re-enqueue.
		entry.EnqueuedAt = existing.EnqueuedAt
	}
	copied := *entry
	s.queue[entry.UserID] = &copied
	return nil
}

func (s *MemoryStore) RemoveFromQueue(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.queue, userID)
	delete(s.claims, userID)
	return nil
}

func (s *MemoryStore) GetQueueEntries(ctx context.Context) ([]QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]QueueEntry, 0, len(s.queue))
	for _, entry := range s.queue {
		entries = append(entries, *entry)
	}
	return entries, nil
}

func (s *MemoryStore) UpdateQueueMessage(ctx context.Context, userID int64, handle *NotificationHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.queue[userID]
	if !ok {
		return nil // no-op when the entry is gone
	}
	entry.Handle = handle
	return nil
}

func (s *MemoryStore) ClaimQueueEntry(ctx context.Context, userID int64, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queue[userID]; !ok {
		return false, nil
	}
	now := time.Now()
	if until, ok := s.claims[userID]; ok && now.Before(until) {
		return false, nil
	}
	s.claims[userID] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) ReleaseQueueClaim(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claims, userID)
	return nil
}

func (s *MemoryStore) InsertMatch(ctx context.Context, match *Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *match
	s.matches[match.ID] = &copied
	for _, userID := range match.Participants {
		s.userMatch[userID] = match.ID
	}
	return nil
}

func (s *MemoryStore) EndMatchesByID(ctx context.Context, matchID string, endedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	match, ok := s.matches[matchID]
	if !ok || !match.IsActive {
		return 0, nil
	}
	match.IsActive = false
	ended := endedAt
	match.EndedAt = &ended
	for _, userID := range match.Participants {
		if s.userMatch[userID] == matchID {
			delete(s.userMatch, userID)
		}
	}
	return 1, nil
}

func (s *MemoryStore) GetActiveMatchByUser(ctx context.Context, userID int64) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matchID, ok := s.userMatch[userID]
	if !ok {
		return nil, ErrNotFound
	}
	match, ok := s.matches[matchID]
	if !ok || !match.IsActive {
		return nil, ErrNotFound
	}
	copied := *match
	return &copied, nil
}

func (s *MemoryStore) GetMatchesByID(ctx context.Context, matchID string) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	match, ok := s.matches[matchID]
	if !ok {
		return nil, nil
	}
	return []Match{*match}, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
