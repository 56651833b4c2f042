// Package api provides session and turn handlers for TapFlow endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tapflow/tapflow/internal/models"
)

// createSessionHandler handles POST /sessions
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.createSessionHandler: processing create request", "method", r.Method, "path", r.URL.Path)

	var req models.SessionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createSessionHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.createSessionHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	session, greeting, err := s.flow.StartSession(r.Context(), req.ParticipantID, req.Name)
	if err != nil {
		slog.Error("Server.createSessionHandler: start failed", "error", err, "participantID", req.ParticipantID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create session"))
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(map[string]interface{}{
		"session":  session,
		"messages": []models.Message{*greeting},
	}))
}

// listSessionsHandler handles GET /sessions?participant_id=
func (s *Server) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.listSessionsHandler: processing list request", "method", r.Method, "path", r.URL.Path)

	participantID := r.URL.Query().Get("participant_id")
	if participantID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("participant_id query parameter is required"))
		return
	}
	sessions, err := s.st.ListSessions(participantID)
	if err != nil {
		slog.Error("Server.listSessionsHandler: list failed", "error", err, "participantID", participantID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list sessions"))
		return
	}
	if sessions == nil {
		sessions = []models.ChatSession{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessions))
}

// getSessionHandler handles GET /sessions/{id}
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	slog.Debug("Server.getSessionHandler: processing get request", "sessionID", sessionID)

	session, err := s.st.GetSession(sessionID)
	if err != nil {
		slog.Error("Server.getSessionHandler: get failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if session == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}

	sc, err := s.flow.LoadContext(r.Context(), sessionID)
	if err != nil {
		slog.Error("Server.getSessionHandler: context load failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session context"))
		return
	}
	messages, err := s.st.GetMessages(sessionID)
	if err != nil {
		slog.Error("Server.getSessionHandler: transcript load failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load transcript"))
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"session":  session,
		"context":  sc,
		"messages": messages,
	}))
}

// deleteSessionHandler handles DELETE /sessions/{id}
func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	slog.Debug("Server.deleteSessionHandler: processing delete request", "sessionID", sessionID)

	session, err := s.st.GetSession(sessionID)
	if err != nil {
		slog.Error("Server.deleteSessionHandler: lookup failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if session == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	if err := s.flow.EndSession(r.Context(), sessionID); err != nil {
		slog.Error("Server.deleteSessionHandler: delete failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session deleted", nil))
}

// turnHandler handles POST /sessions/{id}/turns
func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	slog.Debug("Server.turnHandler: processing turn request", "sessionID", sessionID)

	// Rate limiting happens before anything touches the session, so an
	// over-limit client cannot mutate state.
	client := clientID(r)
	if !s.limiter.Allow(client) {
		slog.Warn("Server.turnHandler: rate limit exceeded", "clientID", client, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusTooManyRequests,
			models.RateLimited("I'm getting a lot of requests right now. Please wait a moment and try again."))
		return
	}

	var req models.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.turnHandler: invalid JSON", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.turnHandler: validation failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	result, err := s.flow.ProcessTurn(r.Context(), sessionID, req.Message, req.Context)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
			return
		}
		// The turn aborted before any state mutation; retry is safe.
		slog.Error("Server.turnHandler: turn failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError,
			models.Error("I'm having trouble responding right now. Please try again in a moment."))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// crisisResource describes one support option shown on the crisis screen.
type crisisResource struct {
	Name         string `json:"name"`
	Contact      string `json:"contact"`
	Description  string `json:"description"`
	Availability string `json:"availability"`
}

// crisisResources is static: the payload must work even when everything
// else (store, model, Twilio) is down.
var crisisResources = []crisisResource{
	{
		Name:         "988 Suicide & Crisis Lifeline",
		Contact:      "Call or text 988",
		Description:  "Free, confidential support for people in distress",
		Availability: "24/7",
	},
	{
		Name:         "Crisis Text Line",
		Contact:      "Text HOME to 741741",
		Description:  "Text-based crisis support with trained counselors",
		Availability: "24/7",
	},
	{
		Name:         "Emergency Services",
		Contact:      "Call 911",
		Description:  "For immediate danger to yourself or others",
		Availability: "24/7",
	},
	{
		Name:         "International Association for Suicide Prevention",
		Contact:      "https://www.iasp.info/resources/Crisis_Centres/",
		Description:  "Directory of crisis centres outside the United States",
		Availability: "Varies by centre",
	},
}

// crisisResourcesHandler handles GET /crisis/resources
func (s *Server) crisisResourcesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(crisisResources))
}

// healthHandler handles GET /health
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}
