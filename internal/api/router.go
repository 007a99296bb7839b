// Package api exposes the HTTP surface: member and document management,
// SSE-streamed document processing and chat, settings, and health advice.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/famhealth/famhealth/internal/advice"
	"github.com/famhealth/famhealth/internal/chat"
	"github.com/famhealth/famhealth/internal/config"
	"github.com/famhealth/famhealth/internal/ingest"
	"github.com/famhealth/famhealth/internal/observability"
	"github.com/famhealth/famhealth/internal/settings"
	"github.com/famhealth/famhealth/internal/storage"
)

// Server bundles the services the handlers depend on.
type Server struct {
	cfg      *config.Config
	logger   *observability.Logger
	members  *storage.MemberRepository
	docs     *storage.DocumentRepository
	records  *storage.HealthRecordRepository
	chat     *chat.Service
	contexts *chat.ContextBuilder
	ingest   *ingest.Runner
	settings *settings.Service
	advice   *advice.Service
}

// NewServer creates the handler set.
func NewServer(
	cfg *config.Config,
	logger *observability.Logger,
	members *storage.MemberRepository,
	docs *storage.DocumentRepository,
	records *storage.HealthRecordRepository,
	chatSvc *chat.Service,
	contexts *chat.ContextBuilder,
	ingestRunner *ingest.Runner,
	settingsSvc *settings.Service,
	adviceSvc *advice.Service,
) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger.WithComponent("api"),
		members:  members,
		docs:     docs,
		records:  records,
		chat:     chatSvc,
		contexts: contexts,
		ingest:   ingestRunner,
		settings: settingsSvc,
		advice:   adviceSvc,
	}
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(JWTAuth(s.cfg.Auth.JWTSecret, s.cfg.Auth.Enabled))

		r.Route("/members", func(r chi.Router) {
			r.Post("/", s.handleCreateMember)
			r.Get("/", s.handleListMembers)
			r.Get("/{id}", s.handleGetMember)
			r.Delete("/{id}", s.handleDeleteMember)
			r.Get("/{id}/documents", s.handleListMemberDocuments)
			r.Post("/{id}/advice", s.handleGenerateAdvice)
			r.Post("/{id}/records", s.handleCreateRecord)
			r.Get("/{id}/records", s.handleListRecords)
			r.Delete("/{id}/records/{recordId}", s.handleDeleteRecord)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", s.handleUploadDocument)
			r.Get("/{id}", s.handleGetDocument)
			r.Post("/{id}/process", s.handleProcessDocument)
			r.Get("/{id}/progress", s.handleDocumentProgress)
		})

		r.Route("/chat/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)
			r.Get("/{id}/messages", s.handleSessionHistory)
			r.Post("/{id}/messages", s.handleSendMessage)
			r.Delete("/{id}", s.handleDeleteSession)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.Put("/key", s.handleSaveAPIKey)
			r.Delete("/key", s.handleClearAPIKey)
			r.Put("/models", s.handleSaveModels)
		})
	})

	return r
}
