package api

import (
	"encoding/json"
	"net/http"
	"time"

	"anonchat-backend/internal/api/handlers"
	"anonchat-backend/internal/notify"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Dependencies struct {
	MatchHandler   *handlers.MatchHandler
	ProfileHandler *handlers.ProfileHandler
	ChatHandler    *handlers.ChatHandler
	Notifier       *notify.Manager
	Registry       *prometheus.Registry
}

func NewRouter(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	// CORS middleware for WebSocket connections
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"anonchat-backend"}`))
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))

	// Connection status
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		connected := deps.Notifier.ConnectedUsers()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"connected_users": len(connected),
		})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Profile endpoints
		r.Put("/users", deps.ProfileHandler.SaveProfile)
		r.Get("/users/{userID}", deps.ProfileHandler.GetProfile)

		// Match endpoints
		r.Post("/match/request/{userID}", deps.MatchHandler.RequestMatch)
		r.Delete("/match/cancel/{userID}", deps.MatchHandler.CancelMatch)
		r.Get("/match/active/{userID}", deps.MatchHandler.ActiveMatch)
		r.Post("/match/end/{userID}", deps.MatchHandler.EndMatch)
		r.Get("/queue/status/{userID}", deps.MatchHandler.QueueStatus)

		// Chat relay
		r.Post("/chat/send", deps.ChatHandler.SendMessage)
	})

	// WebSocket endpoints
	r.Get("/ws/{userID}", deps.Notifier.HandleWebSocket)

	return r
}
