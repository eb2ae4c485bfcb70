package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on relational tables. The matches table
// deliberately carries no uniqueness constraint on the pair id: re-matching
// the same two users inserts a fresh row with the same id, and
// EndMatchesByID closes every row carrying that id.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id          BIGINT PRIMARY KEY,
	username         TEXT NOT NULL DEFAULT '',
	first_name       TEXT NOT NULL,
	age              INT NOT NULL,
	gender           TEXT NOT NULL,
	education        TEXT NOT NULL,
	interests        TEXT[] NOT NULL,
	languages        TEXT[] NOT NULL,
	preferred_gender TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_active      TIMESTAMPTZ NOT NULL DEFAULT now(),
	is_banned        BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS queue (
	user_id       BIGINT PRIMARY KEY,
	enqueued_at   TIMESTAMPTZ NOT NULL,
	channel_id    TEXT,
	message_id    TEXT,
	claimed_until TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS matches (
	seq           BIGSERIAL PRIMARY KEY,
	id            TEXT NOT NULL,
	participant_a BIGINT NOT NULL,
	participant_b BIGINT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS matches_id_idx ON matches (id);
CREATE INDEX IF NOT EXISTS matches_participants_idx ON matches (participant_a, participant_b) WHERE is_active;
`

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	config.MaxConns = 20
	config.MaxConnIdleTime = 30 * time.Minute
	config.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID int64) (*UserProfile, error) {
	user := &UserProfile{}
	query := `
		SELECT user_id, username, first_name, age, gender, education,
		       interests, languages, preferred_gender, created_at, last_active, is_banned
		FROM users WHERE user_id = $1`

	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&user.UserID, &user.Username, &user.FirstName, &user.Age, &user.Gender,
		&user.Education, &user.Interests, &user.Languages, &user.PreferredGender,
		&user.CreatedAt, &user.LastActive, &user.IsBanned,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *PostgresStore) SaveUser(ctx context.Context, profile *UserProfile) error {
	query := `
		INSERT INTO users (user_id, username, first_name, age, gender, education,
		                   interests, languages, preferred_gender, created_at, last_active, is_banned)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now(), $10)
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			education = EXCLUDED.education,
			interests = EXCLUDED.interests,
			languages = EXCLUDED.languages,
			preferred_gender = EXCLUDED.preferred_gender,
			last_active = now(),
			is_banned = EXCLUDED.is_banned
		RETURNING created_at, last_active`

	return s.pool.QueryRow(ctx, query,
		profile.UserID, profile.Username, profile.FirstName, profile.Age, profile.Gender,
		profile.Education, profile.Interests, profile.Languages, profile.PreferredGender,
		profile.IsBanned).
		Scan(&profile.CreatedAt, &profile.LastActive)
}

func (s *PostgresStore) AddToQueue(ctx context.Context, entry *QueueEntry) error {
	var channelID, messageID *string
	if entry.Handle != nil {
		channelID = &entry.Handle.ChannelID
		messageID = &entry.Handle.MessageID
	}

	// On conflict only the notification handle is refreshed; enqueued_at
	// keeps its original value so the wait-time clock is preserved.
	query := `
		INSERT INTO queue (user_id, enqueued_at, channel_id, message_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			channel_id = EXCLUDED.channel_id,
			message_id = EXCLUDED.message_id
		RETURNING enqueued_at`

	return s.pool.QueryRow(ctx, query, entry.UserID, entry.EnqueuedAt, channelID, messageID).
		Scan(&entry.EnqueuedAt)
}

func (s *PostgresStore) RemoveFromQueue(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM queue WHERE user_id = $1`, userID)
	return err
}

func (s *PostgresStore) GetQueueEntries(ctx context.Context) ([]QueueEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, enqueued_at, channel_id, message_id FROM queue ORDER BY enqueued_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		var entry QueueEntry
		var channelID, messageID *string
		if err := rows.Scan(&entry.UserID, &entry.EnqueuedAt, &channelID, &messageID); err != nil {
			return nil, err
		}
		if messageID != nil {
			entry.Handle = &NotificationHandle{MessageID: *messageID}
			if channelID != nil {
				entry.Handle.ChannelID = *channelID
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) UpdateQueueMessage(ctx context.Context, userID int64, handle *NotificationHandle) error {
	var channelID, messageID *string
	if handle != nil {
		channelID = &handle.ChannelID
		messageID = &handle.MessageID
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE queue SET channel_id = $2, message_id = $3 WHERE user_id = $1`,
		userID, channelID, messageID)
	return err
}

func (s *PostgresStore) ClaimQueueEntry(ctx context.Context, userID int64, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue SET claimed_until = now() + $2
		WHERE user_id = $1 AND (claimed_until IS NULL OR claimed_until < now())`,
		userID, ttl)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ReleaseQueueClaim(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE queue SET claimed_until = NULL WHERE user_id = $1`, userID)
	return err
}

func (s *PostgresStore) InsertMatch(ctx context.Context, match *Match) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO matches (id, participant_a, participant_b, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		match.ID, match.Participants[0], match.Participants[1], match.IsActive, match.CreatedAt)
	return err
}

func (s *PostgresStore) EndMatchesByID(ctx context.Context, matchID string, endedAt time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE matches SET is_active = FALSE, ended_at = $2
		WHERE id = $1 AND is_active`,
		matchID, endedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) GetActiveMatchByUser(ctx context.Context, userID int64) (*Match, error) {
	match := &Match{}
	query := `
		SELECT id, participant_a, participant_b, is_active, created_at, ended_at
		FROM matches
		WHERE (participant_a = $1 OR participant_b = $1) AND is_active
		ORDER BY created_at DESC
		LIMIT 1`

	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&match.ID, &match.Participants[0], &match.Participants[1],
		&match.IsActive, &match.CreatedAt, &match.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return match, nil
}

func (s *PostgresStore) GetMatchesByID(ctx context.Context, matchID string) ([]Match, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, participant_a, participant_b, is_active, created_at, ended_at
		FROM matches WHERE id = $1 ORDER BY created_at`,
		matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var match Match
		if err := rows.Scan(&match.ID, &match.Participants[0], &match.Participants[1],
			&match.IsActive, &match.CreatedAt, &match.EndedAt); err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
