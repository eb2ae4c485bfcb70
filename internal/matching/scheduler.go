package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"anonchat-backend/internal/match"
	"anonchat-backend/internal/metrics"
	"anonchat-backend/internal/notify"
	"anonchat-backend/internal/queue"
	"anonchat-backend/internal/storage"
)

var (
	// ErrUserBanned rejects matching requests from banned users.
	ErrUserBanned = errors.New("user is banned from matching")
	// ErrAlreadyInChat rejects matching requests while an active match exists.
	ErrAlreadyInChat = errors.New("user already has an active chat")
)

// Config carries the scheduler tunables.
type Config struct {
	StatusInterval     time.Duration // "still searching" update cadence
	SearchTimeout      time.Duration // forced dequeue threshold
	ClaimTTL           time.Duration // queue entry claim lifetime
	JoinAlertThreshold int           // minimum score to alert queued users about a newcomer
}

// Scheduler pairs waiting users. Two triggers feed it: inline RequestMatch
// calls and the periodic Sweep. Both operate over the shared queue through
// the claim-before-dequeue protocol, and CreateMatch's force-end of stale
// actives remains the backstop if a claim ever leaks through.
type Scheduler struct {
	store    storage.Store
	queue    *queue.Manager
	matches  *match.Manager
	notifier notify.Notifier
	metrics  metrics.MatchmakingMetrics

	statusInterval     time.Duration
	searchTimeout      time.Duration
	claimTTL           time.Duration
	joinAlertThreshold int

	now func() time.Time
}

func NewScheduler(store storage.Store, queueManager *queue.Manager, matchManager *match.Manager,
	notifier notify.Notifier, mmMetrics metrics.MatchmakingMetrics, cfg Config) *Scheduler {

	s := &Scheduler{
		store:              store,
		queue:              queueManager,
		matches:            matchManager,
		notifier:           notifier,
		metrics:            mmMetrics,
		statusInterval:     cfg.StatusInterval,
		searchTimeout:      cfg.SearchTimeout,
		claimTTL:           cfg.ClaimTTL,
		joinAlertThreshold: cfg.JoinAlertThreshold,
		now:                time.Now,
	}
	if s.statusInterval <= 0 {
		s.statusInterval = 15 * time.Second
	}
	if s.searchTimeout <= 0 {
		s.searchTimeout = 10 * time.Minute
	}
	if s.claimTTL <= 0 {
		s.claimTTL = 30 * time.Second
	}
	if s.joinAlertThreshold <= 0 {
		s.joinAlertThreshold = 5
	}

	queueManager.SetJoinHook(s.alertQueueAboutNewUser)
	return s
}

type candidate struct {
	profile *storage.UserProfile
	entry   storage.QueueEntry
	score   int
}

// RequestMatch tries to pair the user immediately against the current
// queue. When a compatible candidate exists the match is created and both
// sides are notified; otherwise the requester is enqueued and nil is
// returned, meaning "now searching".
func (s *Scheduler) RequestMatch(ctx context.Context, userID int64) (*storage.Match, error) {
	start := time.Now()
	operationID := fmt.Sprintf("request_%d_%d", time.Now().UnixNano(), userID)

	log.Printf("[MATCH_REQUEST] %s - Starting matching process for user %d", operationID, userID)

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	if user.IsBanned {
		return nil, ErrUserBanned
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if existing, err := s.matches.GetActiveMatch(ctx, userID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrAlreadyInChat
	}

	candidates, err := s.rankCandidates(ctx, user)
	if err != nil {
		return nil, err
	}
	log.Printf("[MATCH_REQUEST] %s - Found %d compatible candidate(s) in %v",
		operationID, len(candidates), time.Since(start))

	for _, cand := range candidates {
		claimed, err := s.queue.Claim(ctx, cand.profile.UserID, s.claimTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to claim candidate %d: %w", cand.profile.UserID, err)
		}
		if !claimed {
			log.Printf("[MATCH_REQUEST] %s - Candidate %d already claimed, trying next",
				operationID, cand.profile.UserID)
			continue
		}

		if err := s.queue.Dequeue(ctx, cand.profile.UserID); err != nil {
			return nil, err
		}
		// The requester may still hold a queue entry from an earlier search.
		if err := s.queue.Dequeue(ctx, userID); err != nil {
			log.Printf("[MATCH_REQUEST] %s - Failed to dequeue requester %d: %v", operationID, userID, err)
		}

		created, err := s.matches.CreateMatch(ctx, userID, cand.profile.UserID)
		if err != nil {
			return nil, err
		}

		s.metrics.MatchCreated("request")
		s.notifyMatchFound(ctx, cand.profile.UserID, cand.entry.Handle)
		s.notifyMatchFound(ctx, userID, nil)

		log.Printf("[MATCH_REQUEST] %s - Matched user %d with %d (score %d) in %v",
			operationID, userID, cand.profile.UserID, cand.score, time.Since(start))
		log.Printf("[MATCH_REQUEST_METRICS] OperationID=%s UserID=%d PartnerID=%d Score=%d Duration=%v",
			operationID, userID, cand.profile.UserID, cand.score, time.Since(start))
		return created, nil
	}

	entry, err := s.queue.Enqueue(ctx, userID, nil)
	if err != nil {
		return nil, err
	}

	handle, err := s.notifier.Notify(ctx, userID, notify.TypeSearching,
		"Searching for a compatible partner. You will be notified when someone joins.", nil)
	if err != nil {
		log.Printf("[MATCH_REQUEST] %s - Failed to send searching status to user %d: %v",
			operationID, userID, err)
		s.metrics.NotificationFailure()
	} else if err := s.queue.UpdateNotificationHandle(ctx, userID, handle); err != nil {
		log.Printf("[MATCH_REQUEST] %s - Failed to store notification handle for user %d: %v",
			operationID, userID, err)
	}

	log.Printf("[MATCH_REQUEST] %s - No candidate for user %d, queued since %s",
		operationID, userID, entry.EnqueuedAt.Format(time.RFC3339))
	return nil, nil
}

// rankCandidates scans the queue snapshot for compatible partners, best
// score first. The sort is stable over the enqueue-time ordering, so ties
// go to the longest-waiting user.
func (s *Scheduler) rankCandidates(ctx context.Context, user *storage.UserProfile) ([]candidate, error) {
	entries, err := s.queue.ListEntries(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []candidate
	for _, entry := range entries {
		if entry.UserID == user.UserID {
			continue
		}
		profile := s.eligibleUser(ctx, entry.UserID)
		if profile == nil {
			continue
		}
		score := Score(user, profile)
		if score == Incompatible {
			continue
		}
		candidates = append(candidates, candidate{profile: profile, entry: entry, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	return candidates, nil
}

// Sweep runs one pass of the periodic matcher: greedy first-compatible
// pairing in enqueue order, then status updates and timeouts for whoever is
// left waiting. Store failures abort only the current pass; the next tick
// retries naturally.
func (s *Scheduler) Sweep(ctx context.Context) error {
	sweepStart := s.now()

	entries, err := s.queue.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot queue: %w", err)
	}
	s.metrics.SetQueueDepth(len(entries))

	if len(entries) < 2 {
		return nil
	}

	log.Printf("[SWEEP] Processing queue with %d user(s)", len(entries))

	processed := make(map[int64]bool)

	for i := 0; i < len(entries); i++ {
		if processed[entries[i].UserID] {
			continue
		}
		user1 := s.eligibleUser(ctx, entries[i].UserID)
		if user1 == nil {
			continue
		}

		user1Claimed := false
		for j := i + 1; j < len(entries); j++ {
			if processed[entries[j].UserID] {
				continue
			}
			user2 := s.eligibleUser(ctx, entries[j].UserID)
			if user2 == nil {
				continue
			}

			score := Score(user1, user2)
			if score == Incompatible {
				continue
			}

			if !user1Claimed {
				claimed, err := s.queue.Claim(ctx, user1.UserID, s.claimTTL)
				if err != nil || !claimed {
					break // user1 taken by a concurrent pass
				}
				user1Claimed = true
			}
			claimed, err := s.queue.Claim(ctx, user2.UserID, s.claimTTL)
			if err != nil || !claimed {
				continue
			}

			log.Printf("[SWEEP] Match found: %d + %d (score %d)", user1.UserID, user2.UserID, score)

			if err := s.queue.Dequeue(ctx, user1.UserID); err != nil {
				log.Printf("[SWEEP] Failed to dequeue user %d: %v", user1.UserID, err)
			}
			if err := s.queue.Dequeue(ctx, user2.UserID); err != nil {
				log.Printf("[SWEEP] Failed to dequeue user %d: %v", user2.UserID, err)
			}

			if _, err := s.matches.CreateMatch(ctx, user1.UserID, user2.UserID); err != nil {
				log.Printf("[SWEEP] Failed to create match for %d and %d: %v",
					user1.UserID, user2.UserID, err)
				processed[user1.UserID] = true
				processed[user2.UserID] = true
				break
			}

			s.metrics.MatchCreated("sweep")

			// State is committed; notification failures cannot corrupt it.
			s.notifyMatchFound(ctx, user1.UserID, entries[i].Handle)
			s.notifyMatchFound(ctx, user2.UserID, entries[j].Handle)

			processed[user1.UserID] = true
			processed[user2.UserID] = true
			user1Claimed = false
			break
		}

		if user1Claimed {
			// Claimed but found no partner this pass; put the entry back in
			// circulation instead of letting the claim age out.
			if err := s.queue.ReleaseClaim(ctx, user1.UserID); err != nil {
				log.Printf("[SWEEP] Failed to release claim for user %d: %v", user1.UserID, err)
			}
		}
	}

	s.updateWaitingStatus(ctx, entries, processed)

	elapsed := s.now().Sub(sweepStart)
	s.metrics.ObserveSweepDuration(elapsed)
	log.Printf("[SWEEP_METRICS] QueueDepth=%d Duration=%v", len(entries), elapsed)
	return nil
}

// updateWaitingStatus handles the users the sweep did not pair: periodic
// "still searching" edits and the forced timeout dequeue.
func (s *Scheduler) updateWaitingStatus(ctx context.Context, entries []storage.QueueEntry, processed map[int64]bool) {
	now := s.now()

	for _, entry := range entries {
		if processed[entry.UserID] {
			continue
		}

		elapsed := now.Sub(entry.EnqueuedAt)

		if elapsed > s.searchTimeout {
			if err := s.queue.Dequeue(ctx, entry.UserID); err != nil {
				log.Printf("[SWEEP] Failed to dequeue timed-out user %d: %v", entry.UserID, err)
				continue
			}
			s.metrics.SearchTimeout()
			log.Printf("[SWEEP] Removed user %d from queue after %v without a match",
				entry.UserID, elapsed.Truncate(time.Second))

			if _, err := s.notifier.Notify(ctx, entry.UserID, notify.TypeSearchTimeout,
				"No matches found. Your search has been stopped; start a new one anytime.",
				entry.Handle); err != nil {
				log.Printf("[SWEEP] Failed to send timeout notice to user %d: %v", entry.UserID, err)
				s.metrics.NotificationFailure()
			}
			continue
		}

		if entry.Handle == nil {
			continue
		}

		// Fires on the sweeps that land on a status-interval boundary,
		// matching the 5s sweep / 15s status cadence.
		seconds := int(elapsed.Seconds())
		interval := int(s.statusInterval.Seconds())
		if interval <= 0 || seconds <= 0 || seconds%interval != 0 {
			continue
		}

		text := fmt.Sprintf("Still searching... %dm %ds elapsed. We'll notify you as soon as someone compatible joins.",
			seconds/60, seconds%60)
		handle, err := s.notifier.Notify(ctx, entry.UserID, notify.TypeSearching, text, entry.Handle)
		if err != nil {
			// Best effort: a stale or unreachable status message never
			// escalates past this entry.
			log.Printf("[SWEEP] Failed to refresh status for user %d: %v", entry.UserID, err)
			s.metrics.NotificationFailure()
			continue
		}
		if entry.Handle == nil || handle.MessageID != entry.Handle.MessageID {
			if err := s.queue.UpdateNotificationHandle(ctx, entry.UserID, handle); err != nil {
				log.Printf("[SWEEP] Failed to store refreshed handle for user %d: %v", entry.UserID, err)
			}
		}
	}
}

// alertQueueAboutNewUser runs as the queue join hook: queued users scoring
// above the threshold against the newcomer get a proactive nudge.
func (s *Scheduler) alertQueueAboutNewUser(ctx context.Context, newUserID int64) {
	newUser := s.eligibleUser(ctx, newUserID)
	if newUser == nil {
		return
	}

	entries, err := s.queue.ListEntries(ctx)
	if err != nil {
		log.Printf("[JOIN_ALERT] Failed to list queue: %v", err)
		return
	}

	for _, entry := range entries {
		if entry.UserID == newUserID {
			continue
		}
		queued := s.eligibleUser(ctx, entry.UserID)
		if queued == nil {
			continue
		}
		if Score(queued, newUser) <= s.joinAlertThreshold {
			continue
		}
		if _, err := s.notifier.Notify(ctx, entry.UserID, notify.TypeCompatibleJoined,
			"Someone highly compatible just started searching. Request a match now to connect.",
			nil); err != nil {
			log.Printf("[JOIN_ALERT] Could not notify user %d: %v", entry.UserID, err)
			s.metrics.NotificationFailure()
		}
	}
}

// eligibleUser loads a profile and filters out everything that must never
// be matched: missing users, banned users and malformed profiles.
func (s *Scheduler) eligibleUser(ctx context.Context, userID int64) *storage.UserProfile {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		log.Printf("[MATCHING] Failed to load user %d: %v", userID, err)
		return nil
	}
	if user.IsBanned {
		return nil
	}
	if err := user.Validate(); err != nil {
		log.Printf("[MATCHING] Skipping user %d with malformed profile: %v", userID, err)
		return nil
	}
	return user
}

func (s *Scheduler) notifyMatchFound(ctx context.Context, userID int64, handle *storage.NotificationHandle) {
	if _, err := s.notifier.Notify(ctx, userID, notify.TypeMatchFound,
		"Match found! You are now connected anonymously. Say hi.", handle); err != nil {
		log.Printf("[MATCHING] Failed to notify user %d about match: %v", userID, err)
		s.metrics.NotificationFailure()
	}
}
