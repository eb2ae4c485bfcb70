package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"anonchat-backend/internal/storage"
)

type ProfileHandler struct {
	store storage.Store
}

func NewProfileHandler(store storage.Store) *ProfileHandler {
	return &ProfileHandler{store: store}
}

// SaveProfile validates and upserts a profile. The ban flag cannot be set
// through this endpoint; moderation owns it.
func (h *ProfileHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	requestID := generateRequestID()

	var profile storage.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	if err := profile.Validate(); err != nil {
		log.Printf("[PROFILE_SAVE] %s - Validation failed for user %d: %v",
			requestID, profile.UserID, err)
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	if existing, err := h.store.GetUser(r.Context(), profile.UserID); err == nil {
		profile.IsBanned = existing.IsBanned
		profile.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "save_failed", err.Error())
		return
	} else {
		profile.CreatedAt = time.Now().UTC()
	}
	profile.LastActive = time.Now().UTC()

	if err := h.store.SaveUser(r.Context(), &profile); err != nil {
		writeError(w, http.StatusInternalServerError, "save_failed", err.Error())
		return
	}

	log.Printf("[PROFILE_SAVE] %s - Saved profile for user %d", requestID, profile.UserID)
	writeJSON(w, http.StatusOK, &profile)
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	profile, err := h.store.GetUser(r.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown_user", "no profile for this user")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, profile)
}
