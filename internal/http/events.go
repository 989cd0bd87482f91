package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/invitely/invite-dispatch/internal/auth"
	"github.com/invitely/invite-dispatch/internal/core"
)

// joinEvent links the caller's account to the event's guest matching their
// email or phone, so later invitations follow their channel preferences.
func (s *Server) joinEvent(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	eventID := chi.URLParam(r, "eventID")

	if _, err := s.Store.GetEvent(r.Context(), eventID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found", CodeNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load event", CodeInternalError)
		return
	}

	g, err := s.Guests.LinkUser(r.Context(), eventID, claims.UserID(), claims.Email, claims.Phone)
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "no invitation matches your account", CodeNotFound)
	case errors.Is(err, core.ErrConflict):
		writeError(w, http.StatusConflict, "guest already linked", CodeConflict)
	case err != nil:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("link guest failed")
		writeError(w, http.StatusInternalServerError, "failed to link guest", CodeInternalError)
	default:
		writeJSON(w, http.StatusOK, g)
	}
}

func (s *Server) setPreferences(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if s.authorizeOwner(w, r, eventID) == nil {
		return
	}
	var in struct {
		Channels []string `json:"channels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", CodeInvalidInput)
		return
	}
	chans := make([]core.Channel, 0, len(in.Channels))
	for _, raw := range in.Channels {
		ch, ok := core.ParseChannel(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unsupported channel: "+raw, CodeInvalidInput)
			return
		}
		chans = append(chans, ch)
	}

	g, err := s.Guests.SetPreferences(r.Context(), eventID, chi.URLParam(r, "guestID"), chans)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "guest not found", CodeNotFound)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("set preferences failed")
		writeError(w, http.StatusInternalServerError, "failed to save preferences", CodeInternalError)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) listAttempts(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if s.authorizeOwner(w, r, eventID) == nil {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	items, err := s.Store.ListAttempts(r.Context(), eventID, limit, offset)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list attempts failed")
		writeError(w, http.StatusInternalServerError, "failed to list attempts", CodeInternalError)
		return
	}
	if items == nil {
		items = []core.DeliveryAttempt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "limit": limit, "offset": offset})
}

// rsvp records a guest's answer using the token from their invitation link.
// The delivery attempt itself is never modified.
func (s *Server) rsvp(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", CodeInvalidInput)
		return
	}
	status := core.RSVPStatus(strings.ToUpper(strings.TrimSpace(in.Status)))
	if status != core.RSVPAccepted && status != core.RSVPDeclined {
		writeError(w, http.StatusBadRequest, "status must be ACCEPTED or DECLINED", CodeInvalidInput)
		return
	}

	a, err := s.Store.AttemptByToken(r.Context(), chi.URLParam(r, "token"))
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "invitation not found", CodeNotFound)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load invitation", CodeInternalError)
		return
	}
	if err := s.Store.RecordRSVP(r.Context(), a.GuestID, status); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("guest_id", a.GuestID).Msg("record rsvp failed")
		writeError(w, http.StatusInternalServerError, "failed to record RSVP", CodeInternalError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"guestId": a.GuestID, "rsvp": string(status)})
}
