package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"anonchat-backend/internal/match"
	"anonchat-backend/internal/matching"
	"anonchat-backend/internal/metrics"
	"anonchat-backend/internal/notify"
	"anonchat-backend/internal/queue"
	"anonchat-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matchRouter(store storage.Store) *chi.Mux {
	notifier := notify.NewManager(nil)
	queueManager := queue.NewManager(store)
	matchManager := match.NewManager(store)
	scheduler := matching.NewScheduler(store, queueManager, matchManager, notifier,
		metrics.NewMetrics(prometheus.NewRegistry()), matching.Config{})

	h := NewMatchHandler(scheduler, queueManager, matchManager, notifier)
	r := chi.NewRouter()
	r.Post("/match/request/{userID}", h.RequestMatch)
	r.Delete("/match/cancel/{userID}", h.CancelMatch)
	r.Get("/match/active/{userID}", h.ActiveMatch)
	r.Post("/match/end/{userID}", h.EndMatch)
	r.Get("/queue/status/{userID}", h.QueueStatus)
	return r
}

func seedUser(t *testing.T, store storage.Store, userID int64) {
	t.Helper()

	profile := testProfile()
	profile.UserID = userID
	profile.FirstName = fmt.Sprintf("user%d", userID)
	require.NoError(t, store.SaveUser(context.Background(), profile))
}

func do(router http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequestMatchQueuesWhenAlone(t *testing.T) {
	store := storage.NewMemoryStore()
	router := matchRouter(store)
	seedUser(t, store, 1)

	rec := do(router, http.MethodPost, "/match/request/1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "searching", resp.Status)

	entries, err := store.GetQueueEntries(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRequestMatchPairsWithWaitingUser(t *testing.T) {
	store := storage.NewMemoryStore()
	router := matchRouter(store)
	seedUser(t, store, 1)
	seedUser(t, store, 2)

	require.NoError(t, store.AddToQueue(context.Background(), &storage.QueueEntry{
		UserID:     2,
		EnqueuedAt: time.Now().UTC().Add(-time.Minute),
	}))

	rec := do(router, http.MethodPost, "/match/request/1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "matched", resp.Status)
	assert.Equal(t, int64(2), resp.PartnerID)
	require.NotNil(t, resp.Match)
	assert.Equal(t, match.MatchID(1, 2), resp.Match.ID)
}

func TestRequestMatchUnknownUser(t *testing.T) {
	router := matchRouter(storage.NewMemoryStore())

	rec := do(router, http.MethodPost, "/match/request/5")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestMatchInvalidUserID(t *testing.T) {
	router := matchRouter(storage.NewMemoryStore())

	rec := do(router, http.MethodPost, "/match/request/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestMatchConflictsWithActiveChat(t *testing.T) {
	store := storage.NewMemoryStore()
	router := matchRouter(store)
	seedUser(t, store, 1)
	seedUser(t, store, 2)

	_, err := match.NewManager(store).CreateMatch(context.Background(), 1, 2)
	require.NoError(t, err)

	rec := do(router, http.MethodPost, "/match/request/1")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelMatchAlwaysSucceeds(t *testing.T) {
	store := storage.NewMemoryStore()
	router := matchRouter(store)
	seedUser(t, store, 1)

	do(router, http.MethodPost, "/match/request/1")

	rec := do(router, http.MethodDelete, "/match/cancel/1")
	assert.Equal(t, http.StatusOK, rec.Code)

	entries, err := store.GetQueueEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Cancelling again is not an error.
	rec = do(router, http.MethodDelete, "/match/cancel/1")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestActiveMatchLifecycle(t *testing.T) {
	store := storage.NewMemoryStore()
	router := matchRouter(store)
	seedUser(t, store, 1)
	seedUser(t, store, 2)

	rec := do(router, http.MethodGet, "/match/active/1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "idle", resp.Status)

	_, err := match.NewManager(store).CreateMatch(context.Background(), 1, 2)
	require.NoError(t, err)

	rec = do(router, http.MethodGet, "/match/active/1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "matched", resp.Status)
	assert.Equal(t, int64(2), resp.PartnerID)
}

func TestEndMatch(t *testing.T) {
	store := storage.NewMemoryStore()
	router := matchRouter(store)
	seedUser(t, store, 1)
	seedUser(t, store, 2)

	rec := do(router, http.MethodPost, "/match/end/1")
	assert.Equal(t, http.StatusConflict, rec.Code, "nothing to end yet")

	_, err := match.NewManager(store).CreateMatch(context.Background(), 1, 2)
	require.NoError(t, err)

	rec = do(router, http.MethodPost, "/match/end/1")
	require.Equal(t, http.StatusOK, rec.Code)

	_, err = store.GetActiveMatchByUser(context.Background(), 2)
	assert.ErrorIs(t, err, storage.ErrNotFound, "the partner's side ends too")
}

func TestQueueStatus(t *testing.T) {
	store := storage.NewMemoryStore()
	router := matchRouter(store)
	seedUser(t, store, 1)

	rec := do(router, http.MethodGet, "/queue/status/1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp QueueStatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Queued)
	assert.Zero(t, resp.QueueDepth)

	do(router, http.MethodPost, "/match/request/1")

	rec = do(router, http.MethodGet, "/queue/status/1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Queued)
	assert.Equal(t, 1, resp.QueueDepth)
}
