// Package pubsub receives host session events from Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/breatheroute/airvoice/internal/geo"
	"github.com/breatheroute/airvoice/internal/host"
)

// Envelope types.
const (
	TypeSessionStart  = "session_start"
	TypeSessionEnd    = "session_end"
	TypeTranscription = "transcription"
	TypeLocation      = "location"
)

// Disposition is what to do with a delivered message.
type Disposition int

const (
	Ack Disposition = iota
	Nack
)

func (d Disposition) String() string {
	if d == Nack {
		return "nack"
	}
	return "ack"
}

// ErrMalformed marks payloads that can never be processed.
var ErrMalformed = errors.New("malformed host event")

// Envelope is a host event as published to the topic.
type Envelope struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
	ClientIP  string `json:"clientIp,omitempty"`
	Text      string `json:"text,omitempty"`
	IsFinal   bool   `json:"isFinal,omitempty"`
}

// Dispatch decodes one payload and hands it to d. Malformed payloads and
// transient dispatch failures are nacked. Unknown types, events for
// sessions that are gone and coordinates that fail validation are acked
// and dropped.
func Dispatch(ctx context.Context, d host.Dispatcher, data []byte) (Disposition, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Nack, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch env.Type {
	case TypeSessionStart, TypeSessionEnd, TypeTranscription, TypeLocation:
	default:
		return Ack, nil
	}
	if strings.TrimSpace(env.SessionID) == "" {
		return Nack, fmt.Errorf("%w: sessionId is required", ErrMalformed)
	}

	var err error
	switch env.Type {
	case TypeSessionStart:
		err = d.StartSession(ctx, host.SessionStart{
			SessionID: env.SessionID,
			UserID:    env.UserID,
			ClientIP:  env.ClientIP,
		})
	case TypeSessionEnd:
		err = d.EndSession(ctx, env.SessionID)
	case TypeTranscription:
		err = d.Transcription(ctx, env.SessionID, host.TranscriptionEvent{Text: env.Text, IsFinal: env.IsFinal})
	case TypeLocation:
		var event host.LocationEvent
		if uerr := json.Unmarshal(data, &event); uerr != nil {
			return Nack, fmt.Errorf("%w: %v", ErrMalformed, uerr)
		}
		err = d.Location(ctx, env.SessionID, event)
	}

	var invalid *geo.ValidationError
	switch {
	case err == nil:
		return Ack, nil
	case errors.Is(err, host.ErrUnknownSession), errors.As(err, &invalid):
		return Ack, err
	default:
		return Nack, err
	}
}

// Config holds configuration for the receiver.
type Config struct {
	ProjectID        string
	SubscriptionName string

	// MaxOutstandingMessages bounds concurrent handling (default 10).
	MaxOutstandingMessages int

	Logger zerolog.Logger
}

// Receiver pulls host events from a subscription.
type Receiver struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       host.Dispatcher
	logger           zerolog.Logger
}

// NewReceiver connects to Pub/Sub.
func NewReceiver(ctx context.Context, cfg Config, dispatcher host.Dispatcher) (*Receiver, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	outstanding := cfg.MaxOutstandingMessages
	if outstanding <= 0 {
		outstanding = 10
	}
	subscriber.ReceiveSettings.MaxOutstandingMessages = outstanding
	subscriber.ReceiveSettings.MaxExtension = time.Minute

	return &Receiver{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       dispatcher,
		logger:           cfg.Logger.With().Str("component", "pubsub").Logger(),
	}, nil
}

// Start receives messages until ctx is done.
func (r *Receiver) Start(ctx context.Context) error {
	r.logger.Info().
		Str("subscription", r.subscriptionName).
		Msg("starting pubsub receiver")

	return r.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		r.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (r *Receiver) Close() error {
	return r.client.Close()
}

func (r *Receiver) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := r.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	disposition, err := Dispatch(ctx, r.dispatcher, msg.Data)
	if err != nil {
		logger.Warn().Err(err).Str("disposition", disposition.String()).Msg("host event not processed")
	} else {
		logger.Debug().Msg("host event dispatched")
	}

	if disposition == Nack {
		msg.Nack()
		return
	}
	msg.Ack()
}
