package dto

import (
	"time"

	"github.com/mailflux/mailflux/internal/enum"
	"github.com/mailflux/mailflux/internal/models"
)

// IngestEventRequest is the POST /api/v1/events body for externally observed
// lifecycle events (bounces, complaints, unsubscribes, deliveries).
type IngestEventRequest struct {
	EventType      enum.EmailEventType `json:"eventType"`
	RecipientEmail string              `json:"recipientEmail"`
	MessageID      string              `json:"messageId"`
	Metadata       models.JSONMap      `json:"metadata"`
}

// EmailEventNotification is the RabbitMQ fan-out payload published for every
// inserted email event.
type EmailEventNotification struct {
	EventID        string              `json:"eventId"`
	UserID         string              `json:"userId"`
	MessageID      string              `json:"messageId"`
	EventType      enum.EmailEventType `json:"eventType"`
	RecipientEmail string              `json:"recipientEmail,omitempty"`
	SendingDomain  string              `json:"sendingDomain,omitempty"`
	OccurredAt     time.Time           `json:"occurredAt"`
}

// EventStats is the GET /api/v1/events/stats response. Rates are 2-decimal
// percentage strings.
type EventStats struct {
	Total        int64  `json:"total"`
	Queued       int64  `json:"queued"`
	Sent         int64  `json:"sent"`
	Delivered    int64  `json:"delivered"`
	Opened       int64  `json:"opened"`
	Clicked      int64  `json:"clicked"`
	Bounced      int64  `json:"bounced"`
	Complained   int64  `json:"complained"`
	Unsubscribed int64  `json:"unsubscribed"`
	Failed       int64  `json:"failed"`
	DeliveryRate string `json:"deliveryRate"`
	OpenRate     string `json:"openRate"`
	ClickRate    string `json:"clickRate"`
	BounceRate   string `json:"bounceRate"`
}
