package controller

import (
	"time"

	appsync "github.com/brunovarela/notesync/internal/application/sync"
	"github.com/brunovarela/notesync/internal/infrastructure/config"
	"github.com/brunovarela/notesync/internal/infrastructure/observability"
	customMW "github.com/brunovarela/notesync/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Service     *appsync.Service
	Pool        *pgxpool.Pool // nil with the memory store driver
	RedisClient *redis.Client // nil with the memory store driver
	Metrics     *observability.Metrics
	CORSConfig  config.CORSConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	syncH := NewSyncController(deps.Service)

	r.Get("/health", healthH.Health)
	r.Get("/healthz", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// Notes
		r.Post("/notes", syncH.CreateNote)
		r.Get("/notes", syncH.ListNotes)
		r.Patch("/notes/{id}", syncH.UpdateNote)
		r.Delete("/notes/{id}", syncH.DeleteNote)

		// Sync control
		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", syncH.Status)
			r.Post("/flush", syncH.Flush)
			r.Post("/online", syncH.SetOnline)
			r.Get("/dead-letters", syncH.ListDeadLetters)
			r.Post("/dead-letters/{id}/retry", syncH.RetryDeadLetter)
			r.Delete("/dead-letters/{id}", syncH.DiscardDeadLetter)
		})

		// Drafts
		r.Put("/draft", syncH.SaveDraft)
		r.Get("/draft", syncH.GetDraft)
		r.Delete("/draft", syncH.ClearDraft)
	})

	return r
}
