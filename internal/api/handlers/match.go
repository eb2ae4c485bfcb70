package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"anonchat-backend/internal/match"
	"anonchat-backend/internal/matching"
	"anonchat-backend/internal/notify"
	"anonchat-backend/internal/queue"
	"anonchat-backend/internal/storage"

	"github.com/go-chi/chi/v5"
)

type MatchHandler struct {
	scheduler    *matching.Scheduler
	queueManager *queue.Manager
	matchManager *match.Manager
	notifier     *notify.Manager
}

func NewMatchHandler(scheduler *matching.Scheduler, queueManager *queue.Manager, matchManager *match.Manager, notifier *notify.Manager) *MatchHandler {
	return &MatchHandler{
		scheduler:    scheduler,
		queueManager: queueManager,
		matchManager: matchManager,
		notifier:     notifier,
	}
}

type MatchResponse struct {
	Status    string         `json:"status"`
	Match     *storage.Match `json:"match,omitempty"`
	PartnerID int64          `json:"partner_id,omitempty"`
	Message   string         `json:"message"`
}

// RequestMatch runs the immediate matching attempt; when no candidate is
// available the user ends up searching in the queue.
func (h *MatchHandler) RequestMatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	log.Printf("[MATCH_REQUEST] %s - Match request from IP %s for user %d",
		requestID, getClientIP(r), userID)

	result, err := h.scheduler.RequestMatch(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "unknown_user", "create a profile before requesting a match")
		case errors.Is(err, matching.ErrUserBanned):
			writeError(w, http.StatusForbidden, "banned", "this account is not allowed to search")
		case errors.Is(err, matching.ErrAlreadyInChat):
			writeError(w, http.StatusConflict, "already_matched", "end the current chat before searching again")
		default:
			var validationErr *storage.ValidationError
			if errors.As(err, &validationErr) {
				writeError(w, http.StatusBadRequest, "invalid_profile", validationErr.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "match_request_failed", err.Error())
		}
		return
	}

	if result == nil {
		log.Printf("[MATCH_REQUEST] %s - User %d queued in %v", requestID, userID, time.Since(start))
		writeJSON(w, http.StatusOK, MatchResponse{
			Status:  "searching",
			Message: "Added to the matchmaking queue. You will be notified when a match is found.",
		})
		return
	}

	log.Printf("[MATCH_REQUEST] %s - User %d matched in %v", requestID, userID, time.Since(start))
	writeJSON(w, http.StatusOK, MatchResponse{
		Status:    "matched",
		Match:     result,
		PartnerID: match.Other(result, userID),
		Message:   "Match found. You are now connected.",
	})
}

// CancelMatch removes the user from the queue. Cancelling when not queued
// is not an error; the user may have been matched a moment earlier.
func (h *MatchHandler) CancelMatch(w http.ResponseWriter, r *http.Request) {
	requestID := generateRequestID()

	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	log.Printf("[MATCH_CANCEL] %s - Cancel request for user %d", requestID, userID)

	if err := h.queueManager.Dequeue(r.Context(), userID); err != nil {
		writeError(w, http.StatusInternalServerError, "cancel_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "cancelled",
		"message": "Search cancelled.",
	})
}

// ActiveMatch reports the user's current active match, the sole authority
// the relay layer consults before forwarding messages.
func (h *MatchHandler) ActiveMatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	current, err := h.matchManager.GetActiveMatch(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	if current == nil {
		writeJSON(w, http.StatusOK, MatchResponse{Status: "idle", Message: "No active chat."})
		return
	}

	writeJSON(w, http.StatusOK, MatchResponse{
		Status:    "matched",
		Match:     current,
		PartnerID: match.Other(current, userID),
		Message:   "Chat in progress.",
	})
}

// EndMatch ends the user's active chat and tells the partner.
func (h *MatchHandler) EndMatch(w http.ResponseWriter, r *http.Request) {
	requestID := generateRequestID()

	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	current, err := h.matchManager.GetActiveMatch(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	if current == nil {
		writeError(w, http.StatusConflict, "no_active_chat", "there is no chat to end")
		return
	}

	if err := h.matchManager.EndMatch(r.Context(), current.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "end_failed", err.Error())
		return
	}

	log.Printf("[MATCH_END] %s - User %d ended match %s", requestID, userID, current.ID)

	partnerID := match.Other(current, userID)
	if err := h.notifier.Send(r.Context(), partnerID, notify.TypeChatEnded,
		"Your partner left the chat.", map[string]interface{}{"match_id": current.ID}); err != nil {
		// Best effort; the chat is already ended.
		log.Printf("[MATCH_END] %s - Could not notify user %d: %v", requestID, partnerID, err)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ended",
		"message": "Chat ended.",
	})
}

type QueueStatusResponse struct {
	Queued      bool    `json:"queued"`
	WaitSeconds float64 `json:"wait_seconds"`
	QueueDepth  int     `json:"queue_depth"`
}

func (h *MatchHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	entries, err := h.queueManager.ListEntries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status_failed", err.Error())
		return
	}

	resp := QueueStatusResponse{QueueDepth: len(entries)}
	for _, entry := range entries {
		if entry.UserID == userID {
			resp.Queued = true
			resp.WaitSeconds = time.Since(entry.EnqueuedAt).Seconds()
			break
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "userID")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_user_id", "userID must be a positive integer")
		return 0, false
	}
	return userID, true
}
