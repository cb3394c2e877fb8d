package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/breatheroute/airvoice/internal/api/models"
	"github.com/breatheroute/airvoice/internal/api/response"
	"github.com/breatheroute/airvoice/internal/host"
	"github.com/breatheroute/airvoice/internal/session"
)

// SessionHandler handles per-session event and status endpoints.
type SessionHandler struct {
	sessions Sessions
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(sessions Sessions) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// PostTranscription handles POST /v1/sessions/{sessionId}/transcriptions.
func (h *SessionHandler) PostTranscription(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var req models.TranscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		response.BadRequest(w, r, "text is required", []models.FieldError{
			{Field: "text", Message: "required", Code: "REQUIRED"},
		})
		return
	}

	event := host.TranscriptionEvent{Text: req.Text, IsFinal: req.IsFinal}
	if err := h.sessions.Transcription(r.Context(), sessionID, event); err != nil {
		writeDispatchError(w, r, sessionID, err)
		return
	}
	response.Accepted(w, r, models.EventAccepted{SessionID: sessionID, Accepted: true})
}

// PostLocation handles POST /v1/sessions/{sessionId}/locations. The body
// may use latitude/longitude or lat/lon.
func (h *SessionHandler) PostLocation(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var event host.LocationEvent
	if err := decodeJSON(w, r, &event); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if err := h.sessions.Location(r.Context(), sessionID, event); err != nil {
		writeDispatchError(w, r, sessionID, err)
		return
	}
	response.Accepted(w, r, models.EventAccepted{SessionID: sessionID, Accepted: true})
}

// GetSession handles GET /v1/sessions/{sessionId}.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	snap, ok := h.sessions.Snapshot(sessionID)
	if !ok {
		response.NotFound(w, r, fmt.Sprintf("session %q is not active", sessionID))
		return
	}
	response.JSON(w, r, http.StatusOK, sessionStatus(snap))
}

func sessionStatus(snap session.Snapshot) models.SessionStatus {
	status := models.SessionStatus{
		SessionID:    snap.ID,
		UserID:       snap.UserID,
		StartedAt:    models.Timestamp(snap.StartedAt),
		TriggerState: snap.Trigger.String(),
	}
	if fix := snap.DeviceFix; fix != nil {
		status.DeviceFix = &models.DeviceFix{
			Latitude:   fix.Coordinate.Lat,
			Longitude:  fix.Coordinate.Lon,
			ReceivedAt: models.Timestamp(fix.ReceivedAt),
		}
	}
	if cached := snap.Cached; cached != nil && cached.Reading != nil {
		status.Cached = &models.CachedReading{
			AQI:            cached.Reading.Index,
			Level:          cached.Reading.Level().Label,
			StationName:    cached.Reading.StationName,
			PlaceName:      cached.Location.PlaceName,
			LocationSource: string(cached.Location.Source),
			FetchedAt:      models.Timestamp(cached.Reading.FetchedAt),
			AgeSeconds:     int64(snap.CacheAge.Seconds()),
			Tier:           snap.CacheTier.String(),
		}
	}
	return status
}
