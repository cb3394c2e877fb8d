package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/breatheroute/airvoice/internal/api/models"
	"github.com/breatheroute/airvoice/internal/api/response"
	"github.com/breatheroute/airvoice/internal/host"
)

// WebhookHandler handles host session lifecycle callbacks.
type WebhookHandler struct {
	sessions Sessions
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(sessions Sessions) *WebhookHandler {
	return &WebhookHandler{sessions: sessions}
}

// Handle handles POST /webhook.
//
// session_request starts a session; a missing sessionId gets a generated
// one, returned in the body. stop_request ends it and is idempotent so host
// retries succeed.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req models.WebhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	log := zerolog.Ctx(r.Context())

	switch req.Type {
	case models.WebhookSessionRequest:
		if req.SessionID == "" {
			req.SessionID = uuid.NewString()
		}
		start := host.SessionStart{
			SessionID: req.SessionID,
			UserID:    req.UserID,
			ClientIP:  strings.TrimSpace(req.ClientIP),
		}
		if err := h.sessions.StartSession(r.Context(), start); err != nil {
			writeDispatchError(w, r, req.SessionID, err)
			return
		}
		log.Info().Str("session_id", req.SessionID).Str("user_id", req.UserID).Msg("session started")
		response.Accepted(w, r, models.WebhookResponse{Status: "started", SessionID: req.SessionID})

	case models.WebhookStopRequest:
		if req.SessionID == "" {
			response.BadRequest(w, r, "sessionId is required", []models.FieldError{
				{Field: "sessionId", Message: "required", Code: "REQUIRED"},
			})
			return
		}
		err := h.sessions.EndSession(r.Context(), req.SessionID)
		switch {
		case err == nil:
			log.Info().Str("session_id", req.SessionID).Msg("session ended")
			response.JSON(w, r, http.StatusOK, models.WebhookResponse{Status: "ended", SessionID: req.SessionID})
		case errors.Is(err, host.ErrUnknownSession):
			response.JSON(w, r, http.StatusOK, models.WebhookResponse{Status: "not_active", SessionID: req.SessionID})
		default:
			writeDispatchError(w, r, req.SessionID, err)
		}

	default:
		response.BadRequest(w, r, "unsupported webhook type", []models.FieldError{
			{Field: "type", Message: "must be session_request or stop_request", Code: "UNSUPPORTED"},
		})
	}
}
