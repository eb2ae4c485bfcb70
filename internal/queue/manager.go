package queue

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"anonchat-backend/internal/storage"
)

// Manager owns the waiting queue. All mutations go through the store's
// single-entry upsert/delete so concurrent calls stay consistent.
type Manager struct {
	store  storage.Store
	onJoin func(ctx context.Context, userID int64)
}

func NewManager(store storage.Store) *Manager {
	return &Manager{store: store}
}

// SetJoinHook registers a callback fired after a user is enqueued. The
// scheduler uses it to alert queued users about a compatible newcomer.
// Explicit injection; the manager never looks the scheduler up at runtime.
func (m *Manager) SetJoinHook(hook func(ctx context.Context, userID int64)) {
	m.onJoin = hook
}

// Enqueue upserts the user's queue entry. If the user is already queued the
// stored enqueue timestamp wins, so repeated requests cannot reset the
// wait-time clock.
func (m *Manager) Enqueue(ctx context.Context, userID int64, handle *storage.NotificationHandle) (*storage.QueueEntry, error) {
	start := time.Now()
	operationID := fmt.Sprintf("enqueue_%d_%d", time.Now().UnixNano(), userID)

	log.Printf("[QUEUE_ENQUEUE] %s - Adding user %d to queue", operationID, userID)

	entry := &storage.QueueEntry{
		UserID:     userID,
		EnqueuedAt: time.Now().UTC(),
		Handle:     handle,
	}

	if err := m.store.AddToQueue(ctx, entry); err != nil {
		log.Printf("[QUEUE_ENQUEUE] %s - Failed to add user %d after %v: %v",
			operationID, userID, time.Since(start), err)
		return nil, fmt.Errorf("failed to enqueue user %d: %w", userID, err)
	}

	log.Printf("[QUEUE_ENQUEUE] %s - User %d queued (since %s) in %v",
		operationID, userID, entry.EnqueuedAt.Format(time.RFC3339), time.Since(start))
	log.Printf("[QUEUE_ENQUEUE_METRICS] OperationID=%s UserID=%d Duration=%v",
		operationID, userID, time.Since(start))

	if m.onJoin != nil {
		go m.onJoin(context.WithoutCancel(ctx), userID)
	}

	return entry, nil
}

// Dequeue removes the user's entry. Removing an absent entry is a no-op, so
// a cancel racing an in-flight sweep is harmless.
func (m *Manager) Dequeue(ctx context.Context, userID int64) error {
	start := time.Now()
	operationID := fmt.Sprintf("dequeue_%d_%d", time.Now().UnixNano(), userID)

	if err := m.store.RemoveFromQueue(ctx, userID); err != nil {
		log.Printf("[QUEUE_DEQUEUE] %s - Failed to remove user %d after %v: %v",
			operationID, userID, time.Since(start), err)
		return err
	}

	log.Printf("[QUEUE_DEQUEUE] %s - Removed user %d in %v", operationID, userID, time.Since(start))
	return nil
}

// ListEntries returns a point-in-time snapshot ordered by enqueue time,
// oldest first. Entries added after the snapshot is taken are picked up on
// the next call.
func (m *Manager) ListEntries(ctx context.Context) ([]storage.QueueEntry, error) {
	entries, err := m.store.GetQueueEntries(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].EnqueuedAt.Before(entries[j].EnqueuedAt)
	})
	return entries, nil
}

// UpdateNotificationHandle mutates the entry's handle in place. No-op when
// the entry is absent.
func (m *Manager) UpdateNotificationHandle(ctx context.Context, userID int64, handle *storage.NotificationHandle) error {
	return m.store.UpdateQueueMessage(ctx, userID, handle)
}

// Claim marks the entry as taken by a matching pass before it is dequeued,
// closing the race where two passes select the same candidate.
func (m *Manager) Claim(ctx context.Context, userID int64, ttl time.Duration) (bool, error) {
	return m.store.ClaimQueueEntry(ctx, userID, ttl)
}

// ReleaseClaim returns a claimed entry to circulation without dequeuing it.
func (m *Manager) ReleaseClaim(ctx context.Context, userID int64) error {
	return m.store.ReleaseQueueClaim(ctx, userID)
}
