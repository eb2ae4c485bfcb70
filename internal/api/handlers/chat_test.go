package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"anonchat-backend/internal/match"
	"anonchat-backend/internal/notify"
	"anonchat-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatRouter(store storage.Store, matchManager *match.Manager) *chi.Mux {
	h := NewChatHandler(store, matchManager, notify.NewManager(nil))
	r := chi.NewRouter()
	r.Post("/chat/send", h.SendMessage)
	return r
}

func sendChat(t *testing.T, router http.Handler, body SendMessageBody) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/chat/send", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSendMessageRequiresActiveChat(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveUser(context.Background(), testProfile()))

	router := chatRouter(store, match.NewManager(store))

	rec := sendChat(t, router, SendMessageBody{UserID: 1, Text: "hi"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "no_active_chat", resp.Error)
}

func TestSendMessageRejectsBannedSender(t *testing.T) {
	store := storage.NewMemoryStore()
	banned := testProfile()
	banned.IsBanned = true
	require.NoError(t, store.SaveUser(context.Background(), banned))

	router := chatRouter(store, match.NewManager(store))

	rec := sendChat(t, router, SendMessageBody{UserID: 1, Text: "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	router := chatRouter(storage.NewMemoryStore(), match.NewManager(storage.NewMemoryStore()))

	rec := sendChat(t, router, SendMessageBody{UserID: 1, Text: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageUnknownSender(t *testing.T) {
	store := storage.NewMemoryStore()
	router := chatRouter(store, match.NewManager(store))

	rec := sendChat(t, router, SendMessageBody{UserID: 9, Text: "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessageUnreachablePartner(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SaveUser(ctx, testProfile()))

	matchManager := match.NewManager(store)
	_, err := matchManager.CreateMatch(ctx, 1, 2)
	require.NoError(t, err)

	router := chatRouter(store, matchManager)

	// Partner has no websocket and there is no Redis fallback.
	rec := sendChat(t, router, SendMessageBody{UserID: 1, Text: "hi"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
