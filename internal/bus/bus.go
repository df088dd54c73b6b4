package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/AbhayRathi/AlphaWEEX/internal/metrics"
)

// Event types published on the bus. The bus carries observability
// events only; no loop consumes it as an input.
const (
	EventAnalysis   = "analysis"
	EventEvolution  = "evolution"
	EventKillSwitch = "kill_switch"
	EventPromotion  = "promotion"
	EventRisk       = "risk"
	EventWhale      = "whale"
	EventAudit      = "audit"
	EventAlert      = "alert"
	EventStatus     = "status"
)

// Event is the envelope for every message on the bus
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventHandler is a callback for handling received events
type EventHandler func(ev *Event)

// Config configures the event bus
type Config struct {
	// Embedded starts an in-process NATS server on a random port
	Embedded bool
	// URL of an external NATS server; ignored when Embedded is set
	URL string
	// Prefix namespaces all subjects (default "alphaweex.")
	Prefix string
}

// Bus publishes process events over NATS, optionally running an
// embedded server so the binary has no external broker dependency.
type Bus struct {
	srv    *server.Server
	nc     *nats.Conn
	prefix string
}

// New creates the event bus, starting an embedded server when configured
func New(cfg Config) (*Bus, error) {
	url := cfg.URL
	var srv *server.Server

	if cfg.Embedded {
		opts := &server.Options{
			Host:   "127.0.0.1",
			Port:   -1, // Random port
			NoLog:  true,
			NoSigs: true,
		}
		var err error
		srv, err = server.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
		}
		go srv.Start()
		if !srv.ReadyForConnections(5 * time.Second) {
			srv.Shutdown()
			return nil, fmt.Errorf("embedded NATS server not ready")
		}
		url = srv.ClientURL()
	}

	nc, err := nats.Connect(
		url,
		nats.Name("alphaweex-bus"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		if srv != nil {
			srv.Shutdown()
		}
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "alphaweex."
	}

	log.Info().
		Str("url", url).
		Str("prefix", prefix).
		Bool("embedded", cfg.Embedded).
		Msg("Event bus initialized")

	return &Bus{srv: srv, nc: nc, prefix: prefix}, nil
}

// Publish publishes an event of the given type. The payload is
// marshalled to JSON and carried opaquely.
func (b *Bus) Publish(ctx context.Context, eventType, source string, payload interface{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !b.nc.IsConnected() {
		return fmt.Errorf("event bus not connected")
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	ev := Event{
		ID:        uuid.New(),
		Type:      eventType,
		Source:    source,
		Payload:   payloadJSON,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := b.prefix + eventType
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	metrics.BusMessagesPublished.Inc()

	log.Debug().
		Str("event_id", ev.ID.String()).
		Str("type", eventType).
		Str("source", source).
		Str("subject", subject).
		Msg("Published event")

	return nil
}

// Subscribe subscribes to a single event type
func (b *Bus) Subscribe(eventType string, handler EventHandler) (*Subscription, error) {
	subject := b.prefix + eventType
	sub, err := b.nc.Subscribe(subject, eventHandler(handler))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	log.Info().Str("subject", subject).Msg("Subscribed to events")
	return &Subscription{sub: sub, subject: subject}, nil
}

// SubscribeAll subscribes to every event on the bus
func (b *Bus) SubscribeAll(handler EventHandler) (*Subscription, error) {
	subject := b.prefix + ">"
	sub, err := b.nc.Subscribe(subject, eventHandler(handler))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	log.Info().Str("subject", subject).Msg("Subscribed to all events")
	return &Subscription{sub: sub, subject: subject}, nil
}

func eventHandler(handler EventHandler) func(*nats.Msg) {
	return func(natsMsg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(natsMsg.Data, &ev); err != nil {
			log.Warn().Err(err).Msg("Failed to unmarshal event")
			return
		}
		handler(&ev)
	}
}

// Subscription represents an active subscription
type Subscription struct {
	sub     *nats.Subscription
	subject string
}

// Unsubscribe removes the subscription
func (s *Subscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	log.Info().Str("subject", s.subject).Msg("Unsubscribed from events")
	return nil
}

// Stats returns bus statistics for the status surface
func (b *Bus) Stats() map[string]interface{} {
	stats := make(map[string]interface{})
	if b.nc != nil {
		stats["connected"] = b.nc.IsConnected()
		stats["status"] = b.nc.Status().String()
		stats["in_msgs"] = b.nc.Stats().InMsgs
		stats["out_msgs"] = b.nc.Stats().OutMsgs
		stats["reconnects"] = b.nc.Stats().Reconnects
	}
	stats["embedded"] = b.srv != nil
	return stats
}

// Close drains the connection and stops the embedded server if any
func (b *Bus) Close() error {
	if b.nc != nil {
		b.nc.Close()
	}
	if b.srv != nil {
		b.srv.Shutdown()
		b.srv.WaitForShutdown()
	}
	log.Info().Msg("Event bus closed")
	return nil
}
