package models

// Host webhook request types.
const (
	WebhookSessionRequest = "session_request"
	WebhookStopRequest    = "stop_request"
)

// WebhookRequest is the host's session lifecycle callback.
type WebhookRequest struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	ClientIP  string `json:"clientIp,omitempty"`
}

// WebhookResponse acknowledges a lifecycle callback.
type WebhookResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId"`
}

// TranscriptionRequest is one speech-to-text result.
type TranscriptionRequest struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// EventAccepted acknowledges an event handed to a session.
type EventAccepted struct {
	SessionID string `json:"sessionId"`
	Accepted  bool   `json:"accepted"`
}

// SessionStatus describes one live session.
type SessionStatus struct {
	SessionID    string         `json:"sessionId"`
	UserID       string         `json:"userId,omitempty"`
	StartedAt    Timestamp      `json:"startedAt"`
	TriggerState string         `json:"triggerState"`
	DeviceFix    *DeviceFix     `json:"deviceFix,omitempty"`
	Cached       *CachedReading `json:"cachedReading,omitempty"`
}

// DeviceFix is the last coordinate the host pushed.
type DeviceFix struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ReceivedAt Timestamp `json:"receivedAt"`
}

// CachedReading summarizes the session's cached air-quality reading.
type CachedReading struct {
	AQI            int       `json:"aqi"`
	Level          string    `json:"level"`
	StationName    string    `json:"stationName,omitempty"`
	PlaceName      string    `json:"placeName"`
	LocationSource string    `json:"locationSource"`
	FetchedAt      Timestamp `json:"fetchedAt"`
	AgeSeconds     int64     `json:"ageSeconds"`
	Tier           string    `json:"tier"`
}
