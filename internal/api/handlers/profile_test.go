package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"anonchat-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profileRouter(store storage.Store) *chi.Mux {
	h := NewProfileHandler(store)
	r := chi.NewRouter()
	r.Put("/users", h.SaveProfile)
	r.Get("/users/{userID}", h.GetProfile)
	return r
}

func testProfile() *storage.UserProfile {
	return &storage.UserProfile{
		UserID:          1,
		FirstName:       "Alex",
		Age:             25,
		Gender:          storage.GenderMale,
		Education:       "Bachelor",
		Interests:       []string{"Tech"},
		Languages:       []string{"English"},
		PreferredGender: storage.PreferenceAny,
	}
}

func putProfile(t *testing.T, router http.Handler, profile *storage.UserProfile) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(profile)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/users", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSaveProfileRoundTrip(t *testing.T) {
	store := storage.NewMemoryStore()
	router := profileRouter(store)

	rec := putProfile(t, router, testProfile())
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/users/1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var loaded storage.UserProfile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&loaded))
	assert.Equal(t, "Alex", loaded.FirstName)
	assert.False(t, loaded.CreatedAt.IsZero())
	assert.False(t, loaded.LastActive.IsZero())
}

func TestSaveProfileRejectsInvalid(t *testing.T) {
	router := profileRouter(storage.NewMemoryStore())

	invalid := testProfile()
	invalid.Age = 5

	rec := putProfile(t, router, invalid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "validation_failed", resp.Error)
}

func TestSaveProfileCannotClearBan(t *testing.T) {
	store := storage.NewMemoryStore()
	router := profileRouter(store)
	ctx := context.Background()

	banned := testProfile()
	banned.IsBanned = true
	require.NoError(t, store.SaveUser(ctx, banned))

	update := testProfile()
	update.IsBanned = false
	update.FirstName = "Sam"

	rec := putProfile(t, router, update)
	require.Equal(t, http.StatusOK, rec.Code)

	loaded, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Sam", loaded.FirstName)
	assert.True(t, loaded.IsBanned, "profile updates must not lift a ban")
}

func TestGetProfileUnknownUser(t *testing.T) {
	router := profileRouter(storage.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/users/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
