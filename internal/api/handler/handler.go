// Package handler provides HTTP handlers for the airvoice API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/breatheroute/airvoice/internal/api/models"
	"github.com/breatheroute/airvoice/internal/api/response"
	"github.com/breatheroute/airvoice/internal/geo"
	"github.com/breatheroute/airvoice/internal/host"
	"github.com/breatheroute/airvoice/internal/session"
)

// maxBodyBytes bounds request bodies; host events are small.
const maxBodyBytes = 64 << 10

// Sessions is the session registry the handlers drive.
type Sessions interface {
	host.Dispatcher
	Snapshot(sessionID string) (session.Snapshot, bool)
	Count() int
	ShuttingDown() bool
}

var _ Sessions = (*session.Manager)(nil)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeDispatchError maps session and host errors onto problems.
func writeDispatchError(w http.ResponseWriter, r *http.Request, sessionID string, err error) {
	var verr *geo.ValidationError
	switch {
	case errors.Is(err, host.ErrUnknownSession):
		response.NotFound(w, r, fmt.Sprintf("session %q is not active", sessionID))
	case errors.As(err, &verr):
		response.BadRequest(w, r, verr.Error(), models.CoordinateFieldErrors(verr))
	case errors.Is(err, host.ErrMissingCoordinate), errors.Is(err, session.ErrMissingSessionID):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, session.ErrShuttingDown):
		response.ServiceUnavailable(w, r, err.Error())
	default:
		response.InternalError(w, r, "failed to deliver event")
	}
}
