package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"anonchat-backend/internal/match"
	"anonchat-backend/internal/notify"
	"anonchat-backend/internal/storage"
)

// ChatHandler relays messages between matched users. Relay is gated on the
// active match: no match, no delivery.
type ChatHandler struct {
	store        storage.Store
	matchManager *match.Manager
	notifier     *notify.Manager
}

func NewChatHandler(store storage.Store, matchManager *match.Manager, notifier *notify.Manager) *ChatHandler {
	return &ChatHandler{
		store:        store,
		matchManager: matchManager,
		notifier:     notifier,
	}
}

type SendMessageBody struct {
	UserID int64  `json:"user_id"`
	Text   string `json:"text"`
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := generateRequestID()

	var body SendMessageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if body.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a positive integer")
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, "empty_message", "text is required")
		return
	}

	sender, err := h.store.GetUser(r.Context(), body.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown_user", "no profile for this user")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	if sender.IsBanned {
		writeError(w, http.StatusForbidden, "banned", "this account cannot send messages")
		return
	}

	current, err := h.matchManager.GetActiveMatch(r.Context(), body.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	if current == nil {
		writeError(w, http.StatusConflict, "no_active_chat", "messages can only be sent inside an active chat")
		return
	}

	partnerID := match.Other(current, body.UserID)

	// The partner sees a gender indicator, never the sender's identity.
	indicator := "M"
	if sender.Gender == storage.GenderFemale {
		indicator = "F"
	}
	text := fmt.Sprintf("[%s] %s", indicator, body.Text)

	if err := h.notifier.Send(r.Context(), partnerID, notify.TypeChatMessage, text, map[string]interface{}{
		"match_id": current.ID,
	}); err != nil {
		log.Printf("[CHAT_SEND] %s - Delivery to user %d failed: %v", requestID, partnerID, err)
		writeError(w, http.StatusBadGateway, "delivery_failed", "partner is currently unreachable")
		return
	}

	log.Printf("[CHAT_SEND] %s - Relayed message from user %d to %d in %v",
		requestID, body.UserID, partnerID, time.Since(start))
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}
