package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by lookups when no record exists for the key.
var ErrNotFound = errors.New("record not found")

// Store is the persistence contract consumed by the matching core. Three
// backends implement it: Postgres, Redis and a process-local map. The core
// never knows which one is active.
type Store interface {
	// User operations
	GetUser(ctx context.Context, userID int64) (*UserProfile, error)
	SaveUser(ctx context.Context, profile *UserProfile) error

	// Queue operations. AddToQueue is an upsert keyed by user id: when the
	// user is already queued the original EnqueuedAt is preserved (and
	// written back into entry) so re-requests cannot jump the queue.
	AddToQueue(ctx context.Context, entry *QueueEntry) error
	RemoveFromQueue(ctx context.Context, userID int64) error
	GetQueueEntries(ctx context.Context) ([]QueueEntry, error)
	UpdateQueueMessage(ctx context.Context, userID int64, handle *NotificationHandle) error

	// ClaimQueueEntry conditionally marks a queue entry as taken by a
	// matching pass. It returns false when the entry is absent or another
	// pass already holds the claim. Claims expire after ttl so a crashed
	// pass cannot strand a user.
	ClaimQueueEntry(ctx context.Context, userID int64, ttl time.Duration) (bool, error)

	// ReleaseQueueClaim drops a claim without dequeuing, returning the
	// entry to circulation when a pass claimed it but found no partner.
	ReleaseQueueClaim(ctx context.Context, userID int64) error

	// Match operations
	InsertMatch(ctx context.Context, match *Match) error
	EndMatchesByID(ctx context.Context, matchID string, endedAt time.Time) (int64, error)
	GetActiveMatchByUser(ctx context.Context, userID int64) (*Match, error)
	GetMatchesByID(ctx context.Context, matchID string) ([]Match, error)

	Ping(ctx context.Context) error
	Close() error
}

// Backend names accepted by New.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

func New(ctx context.Context, backend, postgresURL, redisURL string) (Store, error) {
	switch backend {
	case BackendPostgres:
		return NewPostgresStore(ctx, postgresURL)
	case BackendRedis:
		return NewRedisStore(ctx, redisURL)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
