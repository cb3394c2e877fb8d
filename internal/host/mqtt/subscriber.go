// Package mqtt receives host location and transcription events from an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/breatheroute/airvoice/internal/geo"
	"github.com/breatheroute/airvoice/internal/host"
)

// Topic kinds under {prefix}/{sessionId}/.
const (
	KindLocation      = "location"
	KindTranscription = "transcription"
)

// ErrStopped is returned by Connect after Disconnect.
var ErrStopped = errors.New("mqtt subscriber stopped")

// Config holds broker settings.
type Config struct {
	Broker      string
	Port        int
	ClientID    string
	TopicPrefix string

	// DispatchTimeout bounds each dispatched event (default 5s).
	DispatchTimeout time.Duration

	Logger zerolog.Logger
}

// Subscriber forwards broker messages to a host.Dispatcher.
type Subscriber struct {
	client     paho.Client
	cfg        Config
	dispatcher host.Dispatcher
	log        zerolog.Logger

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSubscriber creates a subscriber. Connect starts delivery.
func NewSubscriber(cfg Config, dispatcher host.Dispatcher) *Subscriber {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "airvoice/sessions"
	}
	cfg.TopicPrefix = strings.TrimSuffix(cfg.TopicPrefix, "/")
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 5 * time.Second
	}

	s := &Subscriber{
		cfg:        cfg,
		dispatcher: dispatcher,
		log:        cfg.Logger.With().Str("component", "mqtt").Logger(),
		stopCh:     make(chan struct{}),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ paho.Client) {
		s.setConnected(true)
		s.log.Info().Str("broker", cfg.Broker).Int("port", cfg.Port).Msg("mqtt connected")
		// Clean sessions drop subscriptions on reconnect.
		if err := s.subscribe(); err != nil {
			s.log.Error().Err(err).Msg("mqtt subscribe failed")
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.setConnected(false)
		s.log.Warn().Err(err).Msg("mqtt connection lost")
	})

	s.client = paho.NewClient(opts)
	return s
}

// Topics returns the subscribed topic filters.
func (s *Subscriber) Topics() []string {
	return []string{
		s.cfg.TopicPrefix + "/+/" + KindLocation,
		s.cfg.TopicPrefix + "/+/" + KindTranscription,
	}
}

// Connect dials the broker with exponential backoff until it succeeds,
// ctx is done or Disconnect is called.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}
	if s.IsConnected() {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	connect := func() error {
		token := s.client.Connect()
		for !token.WaitTimeout(200 * time.Millisecond) {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
		}
		return token.Error()
	}
	notify := func(err error, next time.Duration) {
		s.log.Warn().Err(err).Dur("retry_in", next).Msg("mqtt connect failed")
	}

	if err := backoff.RetryNotify(connect, backoff.WithContext(bo, ctx), notify); err != nil {
		select {
		case <-s.stopCh:
			return ErrStopped
		default:
		}
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (s *Subscriber) subscribe() error {
	filters := make(map[string]byte, 2)
	for _, topic := range s.Topics() {
		filters[topic] = 1
	}

	token := s.client.SubscribeMultiple(filters, func(_ paho.Client, msg paho.Message) {
		if err := s.HandleMessage(msg.Topic(), msg.Payload()); err != nil {
			s.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("dropping mqtt message")
		}
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for %v", s.Topics())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.log.Info().Strs("topics", s.Topics()).Msg("subscribed to mqtt topics")
	return nil
}

// HandleMessage validates one message and dispatches it.
func (s *Subscriber) HandleMessage(topic string, payload []byte) error {
	sessionID, kind, err := s.parseTopic(topic)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DispatchTimeout)
	defer cancel()

	switch kind {
	case KindLocation:
		var event host.LocationEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("decode location: %w", err)
		}
		if err := geo.Validate(event.Coordinate()); err != nil {
			return err
		}
		return s.dispatcher.Location(ctx, sessionID, event)

	case KindTranscription:
		var event host.TranscriptionEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("decode transcription: %w", err)
		}
		if strings.TrimSpace(event.Text) == "" {
			return errors.New("transcription text is empty")
		}
		return s.dispatcher.Transcription(ctx, sessionID, event)

	default:
		return fmt.Errorf("unsupported topic kind %q", kind)
	}
}

func (s *Subscriber) parseTopic(topic string) (sessionID, kind string, err error) {
	rest, ok := strings.CutPrefix(topic, s.cfg.TopicPrefix+"/")
	if !ok {
		return "", "", fmt.Errorf("topic %q outside prefix %q", topic, s.cfg.TopicPrefix)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("malformed topic %q", topic)
	}
	return parts[0], parts[1], nil
}

// IsConnected returns whether the client is connected.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect unsubscribes and closes the connection. Safe to call more than once.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.IsConnected() {
		token := s.client.Unsubscribe(s.Topics()...)
		token.WaitTimeout(2 * time.Second)
	}
	s.client.Disconnect(250)

	s.setConnected(false)
	s.log.Info().Msg("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
