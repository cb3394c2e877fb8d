package models

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/breatheroute/airvoice/internal/geo"
)

// Problem is an RFC 7807 error body, written as application/problem+json.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// TraceID is the request id, for correlating with logs.
	TraceID string `json:"traceId"`

	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError is a validation failure on one request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Problem types.
const (
	ProblemTypeValidation      = "https://airvoice.dev/problems/validation-error"
	ProblemTypeNotFound        = "https://airvoice.dev/problems/not-found"
	ProblemTypeTooManyRequests = "https://airvoice.dev/problems/too-many-requests"
	ProblemTypeInternal        = "https://airvoice.dev/problems/internal-error"
	ProblemTypeUnavailable     = "https://airvoice.dev/problems/service-unavailable"
)

// CodeInvalidCoordinate marks a rejected latitude or longitude.
const CodeInvalidCoordinate = "INVALID_COORDINATE"

type problemKind struct {
	typ    string
	title  string
	status int
}

var (
	kindValidation      = problemKind{ProblemTypeValidation, "Validation error", http.StatusBadRequest}
	kindNotFound        = problemKind{ProblemTypeNotFound, "Not found", http.StatusNotFound}
	kindTooManyRequests = problemKind{ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests}
	kindInternal        = problemKind{ProblemTypeInternal, "Internal server error", http.StatusInternalServerError}
	kindUnavailable     = problemKind{ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable}
)

func (k problemKind) new(traceID, detail string) *Problem {
	return &Problem{
		Type:    k.typ,
		Title:   k.title,
		Status:  k.status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// WithInstance sets the request path the problem occurred on.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// Write writes the Problem as JSON to w.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest creates a 400 problem with optional field errors.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := kindValidation.new(traceID, detail)
	p.Errors = errors
	return p
}

// NewNotFound creates a 404 problem.
func NewNotFound(traceID, detail string) *Problem {
	return kindNotFound.new(traceID, detail)
}

// NewTooManyRequests creates a 429 problem.
func NewTooManyRequests(traceID, detail string) *Problem {
	return kindTooManyRequests.new(traceID, detail)
}

// NewInternalError creates a 500 problem.
func NewInternalError(traceID, detail string) *Problem {
	return kindInternal.new(traceID, detail)
}

// NewServiceUnavailable creates a 503 problem.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return kindUnavailable.new(traceID, detail)
}

// CoordinateFieldErrors maps a coordinate validation failure onto the
// request's field names. It returns nil for other errors.
func CoordinateFieldErrors(err error) []FieldError {
	var verr *geo.ValidationError
	if !errors.As(err, &verr) {
		return nil
	}
	field := "coordinate"
	switch verr.Field {
	case "lat":
		field = "latitude"
	case "lon":
		field = "longitude"
	}
	return []FieldError{{Field: field, Message: verr.Reason, Code: CodeInvalidCoordinate}}
}
