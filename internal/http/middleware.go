package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/invitely/invite-dispatch/internal/auth"
	"github.com/invitely/invite-dispatch/internal/core"
	"github.com/invitely/invite-dispatch/internal/logging"
	"github.com/invitely/invite-dispatch/internal/metrics"
)

// HeaderCorrelationID lets callers correlate a request with its attempts.
const HeaderCorrelationID = "X-Correlation-ID"

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start).Seconds()

		// The route pattern is only known once routing has run.
		handler := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if rp := rc.RoutePattern(); rp != "" {
				handler = rp
			}
		}
		metrics.HTTPRequests.WithLabelValues(handler, r.Method, http.StatusText(ww.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(handler, r.Method).Observe(elapsed)
	})
}

// requestLogger attaches a correlation-tagged logger to the request context
// and logs each completed request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := r.Header.Get(HeaderCorrelationID)
		if cid == "" {
			cid = middleware.GetReqID(r.Context())
		}
		ctx := s.Logger.WithContext(r.Context())
		ctx = logging.WithCorrelationID(ctx, cid)
		w.Header().Set(HeaderCorrelationID, logging.CorrelationID(ctx))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		zerolog.Ctx(ctx).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// requireAuth rejects requests without a valid bearer token with 401.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token", CodeUnauthorized)
			return
		}
		claims, err := s.Auth.Parse(tok)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token", CodeUnauthorized)
			return
		}
		ctx := auth.WithClaims(r.Context(), claims)
		l := zerolog.Ctx(ctx).With().Str("user_id", claims.UserID()).Logger()
		next.ServeHTTP(w, r.WithContext(l.WithContext(ctx)))
	})
}

// authorizeOwner loads eventID and checks the caller owns it. It writes the
// error response itself and returns nil when the request must stop.
func (s *Server) authorizeOwner(w http.ResponseWriter, r *http.Request, eventID string) *core.Event {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required", CodeUnauthorized)
		return nil
	}
	ev, err := s.Store.GetEvent(r.Context(), eventID)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found", CodeNotFound)
		return nil
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("event_id", eventID).Msg("load event failed")
		writeError(w, http.StatusInternalServerError, "failed to load event", CodeInternalError)
		return nil
	}
	if ev.OwnerID != claims.UserID() {
		writeError(w, http.StatusForbidden, "you do not own this event", CodeForbidden)
		return nil
	}
	return ev
}
