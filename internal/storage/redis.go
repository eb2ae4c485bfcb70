package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on top of plain key-value records:
//
//	user:<id>       JSON-encoded UserProfile
//	queue:<id>      JSON-encoded QueueEntry
//	claim:<id>      claim marker with TTL
//	match:<id>      JSON-encoded Match
//	user_match:<id> active match id for a participant
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func userKey(userID int64) string      { return fmt.Sprintf("user:%d", userID) }
func queueKey(userID int64) string     { return fmt.Sprintf("queue:%d", userID) }
func claimKey(userID int64) string     { return fmt.Sprintf("claim:%d", userID) }
func matchKey(matchID string) string   { return fmt.Sprintf("match:%s", matchID) }
func userMatchKey(userID int64) string { return fmt.Sprintf("user_match:%d", userID) }

func (r *RedisStore) GetUser(ctx context.Context, userID int64) (*UserProfile, error) {
	data, err := r.client.Get(ctx, userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var user UserProfile
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user %d: %w", userID, err)
	}
	return &user, nil
}

func (r *RedisStore) SaveUser(ctx context.Context, profile *UserProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, userKey(profile.UserID), data, 0).Err()
}

func (r *RedisStore) AddToQueue(ctx context.Context, entry *QueueEntry) error {
	start := time.Now()
	operationID := fmt.Sprintf("redis_enqueue_%d_%d", time.Now().UnixNano(), entry.UserID)

	log.Printf("[REDIS_ENQUEUE] %s - Upserting queue entry for user %d", operationID, entry.UserID)

	existing, err := r.client.Get(ctx, queueKey(entry.UserID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if err == nil {
		var prev QueueEntry
		if jsonErr := json.Unmarshal([]byte(existing), &prev); jsonErr == nil {
			// Keep the original wait-time clock on re-enqueue.
			entry.EnqueuedAt = prev.EnqueuedAt
			log.Printf("[REDIS_ENQUEUE] %s - User %d already queued since %s, preserving timestamp",
				operationID, entry.UserID, prev.EnqueuedAt.Format(time.RFC3339))
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, queueKey(entry.UserID), data, 0).Err(); err != nil {
		log.Printf("[REDIS_ENQUEUE] %s - Failed to write queue entry after %v: %v",
			operationID, time.Since(start), err)
		return err
	}

	log.Printf("[REDIS_ENQUEUE_METRICS] OperationID=%s UserID=%d Duration=%v DataSize=%d",
		operationID, entry.UserID, time.Since(start), len(data))
	return nil
}

func (r *RedisStore) RemoveFromQueue(ctx context.Context, userID int64) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, queueKey(userID))
	pipe.Del(ctx, claimKey(userID))
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetQueueEntries(ctx context.Context) ([]QueueEntry, error) {
	keys, err := r.client.Keys(ctx, "queue:*").Result()
	if err != nil {
		return nil, err
	}

	entries := make([]QueueEntry, 0, len(keys))
	for _, key := range keys {
		data, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue // removed between KEYS and GET
		}
		if err != nil {
			return nil, err
		}
		var entry QueueEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			log.Printf("[REDIS_QUEUE] Skipping undecodable entry at %s: %v", key, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *RedisStore) UpdateQueueMessage(ctx context.Context, userID int64, handle *NotificationHandle) error {
	data, err := r.client.Get(ctx, queueKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil // entry gone, nothing to update
	}
	if err != nil {
		return err
	}

	var entry QueueEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return fmt.Errorf("failed to unmarshal queue entry for user %d: %w", userID, err)
	}
	entry.Handle = handle

	updated, err := json.Marshal(&entry)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, queueKey(userID), updated, 0).Err()
}

func (r *RedisStore) ClaimQueueEntry(ctx context.Context, userID int64, ttl time.Duration) (bool, error) {
	exists, err := r.client.Exists(ctx, queueKey(userID)).Result()
	if err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}
	return r.client.SetNX(ctx, claimKey(userID), 1, ttl).Result()
}

func (r *RedisStore) ReleaseQueueClaim(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, claimKey(userID)).Err()
}

func (r *RedisStore) InsertMatch(ctx context.Context, match *Match) error {
	data, err := json.Marshal(match)
	if err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, matchKey(match.ID), data, 0)
	for _, userID := range match.Participants {
		pipe.Set(ctx, userMatchKey(userID), match.ID, 0)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) EndMatchesByID(ctx context.Context, matchID string, endedAt time.Time) (int64, error) {
	data, err := r.client.Get(ctx, matchKey(matchID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var match Match
	if err := json.Unmarshal([]byte(data), &match); err != nil {
		return 0, fmt.Errorf("failed to unmarshal match %s: %w", matchID, err)
	}
	if !match.IsActive {
		return 0, nil
	}

	match.IsActive = false
	ended := endedAt
	match.EndedAt = &ended

	updated, err := json.Marshal(&match)
	if err != nil {
		return 0, err
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, matchKey(matchID), updated, 0)
	for _, userID := range match.Participants {
		pipe.Del(ctx, userMatchKey(userID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return 1, nil
}

func (r *RedisStore) GetActiveMatchByUser(ctx context.Context, userID int64) (*Match, error) {
	matchID, err := r.client.Get(ctx, userMatchKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	matches, err := r.GetMatchesByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	for i := range matches {
		if matches[i].IsActive {
			return &matches[i], nil
		}
	}
	return nil, ErrNotFound
}

func (r *RedisStore) GetMatchesByID(ctx context.Context, matchID string) ([]Match, error) {
	data, err := r.client.Get(ctx, matchKey(matchID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var match Match
	if err := json.Unmarshal([]byte(data), &match); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match %s: %w", matchID, err)
	}
	return []Match{match}, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
