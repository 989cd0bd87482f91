package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/invitely/invite-dispatch/internal/assets"
	"github.com/invitely/invite-dispatch/internal/auth"
	"github.com/invitely/invite-dispatch/internal/core"
	"github.com/invitely/invite-dispatch/internal/dispatch"
	"github.com/invitely/invite-dispatch/internal/guests"
)

// maxBatchBody bounds the send request body.
const maxBatchBody = 8 << 20

// BatchRunner runs an invitation batch.
type BatchRunner interface {
	Run(ctx context.Context, req dispatch.BatchRequest) (*dispatch.BatchResult, error)
}

// AssetHost serves images uploaded by the asset locator.
type AssetHost interface {
	Fetch(ctx context.Context, key string) (mediaType string, body []byte, err error)
	Ping(ctx context.Context) error
}

type Server struct {
	Store       core.Store
	Engine      BatchRunner
	Guests      *guests.Resolver
	Auth        *auth.Verifier
	Assets      AssetHost // nil when no asset host is configured
	Logger      zerolog.Logger
	CORSOrigins []string
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.requestLogger, middleware.Recoverer, instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderCorrelationID},
		ExposedHeaders:   []string{HeaderCorrelationID},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.mountHealth(r)
	s.mountMetrics(r)
	s.mountDocs(r)

	r.Get(assets.FallbackPath, s.serveInlineImage)
	r.Get("/assets/*", s.serveAsset)
	r.Post("/i/{token}/rsvp", s.rsvp)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/api/invitations/send", s.sendInvitations)
		r.Post("/api/events/{eventID}/join", s.joinEvent)
		r.Put("/api/events/{eventID}/guests/{guestID}/preferences", s.setPreferences)
		r.Get("/api/events/{eventID}/attempts", s.listAttempts)
	})
	return r
}

func (s *Server) corsOrigins() []string {
	if len(s.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.CORSOrigins
}

func (s *Server) sendInvitations(w http.ResponseWriter, r *http.Request) {
	var in dispatch.BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBody)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", CodeInvalidInput)
		return
	}
	if strings.TrimSpace(in.EventID) != "" {
		if s.authorizeOwner(w, r, in.EventID) == nil {
			return
		}
	}

	res, err := s.Engine.Run(r.Context(), in)
	var ve *dispatch.ValidationError
	switch {
	case errors.As(err, &ve):
		writeValidation(w, ve)
	case err != nil:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("batch failed")
		writeError(w, http.StatusInternalServerError, "failed to dispatch invitations", CodeInternalError)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// serveInlineImage re-serves an inline image payload carried in the query, so
// providers that need a fetchable URL can still load it.
func (s *Server) serveInlineImage(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("data")
	if !assets.IsDataURL(raw) {
		writeError(w, http.StatusBadRequest, "data must be a data: URL", CodeInvalidInput)
		return
	}
	d, err := assets.ParseDataURL(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), CodeInvalidInput)
		return
	}
	if !strings.HasPrefix(d.MediaType, "image/") {
		writeError(w, http.StatusBadRequest, "only image payloads are served", CodeInvalidInput)
		return
	}
	writeImage(w, d.MediaType, d.Data)
}

func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	if s.Assets == nil {
		writeError(w, http.StatusNotFound, "asset not found", CodeNotFound)
		return
	}
	mediaType, body, err := s.Assets.Fetch(r.Context(), chi.URLParam(r, "*"))
	if errors.Is(err, assets.ErrAssetNotFound) {
		writeError(w, http.StatusNotFound, "asset not found", CodeNotFound)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("asset fetch failed")
		writeError(w, http.StatusInternalServerError, "failed to load asset", CodeInternalError)
		return
	}
	writeImage(w, mediaType, body)
}

func writeImage(w http.ResponseWriter, mediaType string, body []byte) {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
