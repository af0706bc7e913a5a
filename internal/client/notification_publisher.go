// Package client holds the engine's external collaborators: the NATS
// notification publisher, the establishments-service HTTP client, and the
// connectivity prober.
package client

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes workflow events for consumption by the
// notification service. Delivery itself is out of scope here; this is only
// the data that would drive it.
//
// Subject convention: notifications.inspections.<event_type>
// Event types: inspection_created, inspection_forwarded, inspection_rejected,
//              inspection_completed
//
// All publish operations are non-fatal: errors are logged but never
// propagated, so notification failures never interrupt workflow transitions.
type NotificationPublisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	InspectionID string         `json:"inspection_id"`
	Code         string         `json:"code"`
	District     string         `json:"district"`
	Law          string         `json:"law"`
	Stage        string         `json:"stage"`
	ActorID      string         `json:"actor_id,omitempty"`
	Recipients   []string       `json:"recipients,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher over an established NATS
// connection; conn may be nil to disable publishing entirely.
func NewNotificationPublisher(conn *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, log: log}
}

// Publish sends one workflow event. Never returns an error.
func (p *NotificationPublisher) Publish(event *NotificationEvent) {
	if p.conn == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).
			Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.inspections.%s", event.EventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("inspection_id", event.InspectionID).
			Msg("notification: failed to publish event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("inspection_id", event.InspectionID).
		Msg("notification: event published")
}
