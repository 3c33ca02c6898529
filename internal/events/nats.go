package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"sportclub/internal/config"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Connect opens a NATS connection with reconnect handlers that log through logger.
func Connect(cfg config.NATSConfig, logger *zerolog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Subject returns the subject an event type is published on.
func Subject(prefix, eventType string) string {
	return strings.TrimSuffix(prefix, ".") + "." + eventType
}

// Publisher is the part of *nats.Conn the forwarder needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSForwarder sends every bus event to NATS as a JSON envelope.
type NATSForwarder struct {
	pub    Publisher
	prefix string
	logger *zerolog.Logger
}

func NewNATSForwarder(pub Publisher, prefix string, logger *zerolog.Logger) *NATSForwarder {
	return &NATSForwarder{pub: pub, prefix: prefix, logger: logger}
}

// Attach subscribes the forwarder to all events of bus.
func (f *NATSForwarder) Attach(bus *EventBus) {
	bus.SubscribeAll(f.Forward)
}

func (f *NATSForwarder) Forward(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := Subject(f.prefix, event.Type)
	if err := f.pub.Publish(subject, data); err != nil {
		f.logger.Error().Err(err).Str("subject", subject).Str("event_id", event.ID).Msg("Failed to forward event")
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	f.logger.Debug().Str("subject", subject).Str("event_id", event.ID).Msg("Event forwarded")
	return nil
}

// DecodeEvent parses an envelope received from NATS.
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("event without type")
	}
	return &ev, nil
}
