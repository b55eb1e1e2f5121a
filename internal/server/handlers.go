package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skedge/skedge/internal/availability"
	"github.com/skedge/skedge/internal/credential"
	"github.com/skedge/skedge/internal/logging"
)

type availabilityRequest struct {
	ParticipantIDs     []string `json:"participant_ids"`
	MinDurationMinutes int      `json:"min_duration_minutes"`
	HorizonDays        int      `json:"horizon_days"`
	StartHour          int      `json:"start_hour"`
	EndHour            int      `json:"end_hour"`
	Timezone           string   `json:"timezone"`
}

type periodResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type availabilityResponse struct {
	Free    []periodResponse  `json:"free"`
	Errors  map[string]string `json:"errors,omitempty"`
	Skipped map[string]int    `json:"skipped_events,omitempty"`
}

type registrationRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type registrationResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

type registrationEntry struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	ProfileID string    `json:"profile_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleAvailability computes shared free periods for the requested
// participants.
// POST /v1/availability
func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.ParticipantIDs) == 0 {
		writeError(w, http.StatusBadRequest, "participant_ids is required")
		return
	}

	result, err := s.availability.FindAvailability(r.Context(), availability.Request{
		ParticipantIDs: req.ParticipantIDs,
		MinDuration:    time.Duration(req.MinDurationMinutes) * time.Minute,
		HorizonDays:    req.HorizonDays,
		StartHour:      req.StartHour,
		EndHour:        req.EndHour,
		Timezone:       req.Timezone,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := availabilityResponse{
		Free:    make([]periodResponse, 0, len(result.Free)),
		Skipped: result.Skipped,
	}
	for _, p := range result.Free {
		resp.Free = append(resp.Free, periodResponse{Start: p.Start, End: p.End})
	}
	if len(result.Errors) > 0 {
		resp.Errors = make(map[string]string, len(result.Errors))
		for id, perr := range result.Errors {
			resp.Errors[id] = participantErrorMessage(perr)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStartRegistration opens a registration session and returns the
// provider authorization URL for the user to visit.
// POST /v1/registrations
func (s *Server) handleStartRegistration(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	authURL, err := s.registrations.StartRegistration(r.Context(), req.UserID, req.Email)
	if err != nil {
		if errors.Is(err, credential.ErrSessionExists) {
			writeError(w, http.StatusConflict, "a registration is already in progress for this user")
			return
		}
		logging.WithOperation(s.logger, "start_registration").
			Error("start registration failed", logging.UserHash(req.UserID), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, registrationResponse{AuthorizationURL: authURL})
}

// handleOAuthCallback receives the provider redirect, completes the code
// exchange, and shows the user a plain confirmation page.
// GET /oauth/callback?code=...&state=...
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeCallbackPage(w, http.StatusBadRequest, "Missing code or state parameter.")
		return
	}

	cred, err := s.registrations.CompleteRegistration(r.Context(), state, code)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrUnknownSession):
			writeCallbackPage(w, http.StatusNotFound, "This registration link is unknown or has already been used.")
		case errors.Is(err, credential.ErrExchangeFailed):
			writeCallbackPage(w, http.StatusBadGateway, "The calendar provider rejected the authorization. Please start registration again.")
		default:
			logging.WithOperation(s.logger, "oauth_callback").
				Error("complete registration failed", logging.Err(err))
			writeCallbackPage(w, http.StatusInternalServerError, "Something went wrong. Please start registration again.")
		}
		return
	}

	s.logger.Info("registration completed via callback", logging.UserHash(cred.UserID))
	writeCallbackPage(w, http.StatusOK, "Your calendar is connected. You can close this window.")
}

// handleUnregister removes a user's credential.
// DELETE /v1/registrations/{userID}
func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	if err := s.registrations.Unregister(r.Context(), userID); err != nil {
		s.logger.Error("unregister failed", logging.UserHash(userID), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListRegistrations lists registered users. Tokens never leave the
// service; only identifying metadata is returned.
// GET /v1/registrations
func (s *Server) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	creds, err := s.registrations.ListRegistered(r.Context())
	if err != nil {
		s.logger.Error("list registrations failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	entries := make([]registrationEntry, 0, len(creds))
	for _, c := range creds {
		entries = append(entries, registrationEntry{
			UserID:    c.UserID,
			Email:     c.Email,
			ProfileID: c.ProfileID,
			ExpiresAt: c.ExpiresAt,
			UpdatedAt: c.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

// participantErrorMessage maps a per-participant failure to a message safe to
// return to the caller.
func participantErrorMessage(err error) string {
	switch {
	case errors.Is(err, credential.ErrNotRegistered):
		return "not registered"
	case errors.Is(err, credential.ErrCredentialExpired):
		return "credential expired, registration required"
	default:
		return "calendar fetch failed"
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", logging.Err(err))
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

func writeCallbackPage(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Skedge</title></head>
<body>
<h1>Skedge</h1>
<p>` + message + `</p>
</body>
</html>
`))
}
