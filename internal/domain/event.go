package domain

import (
	"encoding/json"
	"time"
)

// Event Grid event types handled by the webhook
const (
	EventTypeSubscriptionValidation = "Microsoft.EventGrid.SubscriptionValidationEvent"
	EventTypeBlobCreated            = "Microsoft.Storage.BlobCreated"
)

// EventGridEvent is a single event in the Event Grid schema
type EventGridEvent struct {
	ID              string          `json:"id" validate:"required"`
	Topic           string          `json:"topic,omitempty"`
	Subject         string          `json:"subject,omitempty"`
	EventType       string          `json:"eventType" validate:"required"`
	EventTime       time.Time       `json:"eventTime"`
	Data            json.RawMessage `json:"data,omitempty"`
	DataVersion     string          `json:"dataVersion,omitempty"`
	MetadataVersion string          `json:"metadataVersion,omitempty"`
}

// CloudEvent is a single event in the CloudEvents 1.0 schema, as sent by
// subscriptions created with the CloudEventSchemaV1_0 delivery schema
type CloudEvent struct {
	SpecVersion     string          `json:"specversion" validate:"required"`
	ID              string          `json:"id" validate:"required"`
	Source          string          `json:"source" validate:"required"`
	Type            string          `json:"type" validate:"required"`
	Subject         string          `json:"subject,omitempty"`
	Time            *time.Time      `json:"time,omitempty"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// EventGridEvent maps the CloudEvent onto the Event Grid schema. Blob
// events carry the same data payload in both schemas.
func (e CloudEvent) EventGridEvent() EventGridEvent {
	evt := EventGridEvent{
		ID:        e.ID,
		Topic:     e.Source,
		Subject:   e.Subject,
		EventType: e.Type,
		Data:      e.Data,
	}
	if e.Time != nil {
		evt.EventTime = *e.Time
	}
	return evt
}

// BlobEventData is the data payload of a storage blob event.
// Subject is not part of the storage schema but some producers repeat it there.
type BlobEventData struct {
	API           string `json:"api,omitempty"`
	ContentType   string `json:"contentType,omitempty"`
	ContentLength int64  `json:"contentLength,omitempty"`
	BlobType      string `json:"blobType,omitempty"`
	URL           string `json:"url,omitempty"`
	Subject       string `json:"subject,omitempty"`
}

// SubscriptionValidationData is the data payload of the subscription handshake
type SubscriptionValidationData struct {
	ValidationCode string `json:"validationCode" validate:"required"`
	ValidationURL  string `json:"validationUrl,omitempty"`
}

// SubscriptionValidationResponse is returned to Event Grid to confirm the subscription
type SubscriptionValidationResponse struct {
	ValidationResponse string `json:"validationResponse"`
}

// Notification is the raw inbound blob event, consumed once.
// An empty Subject stands for an absent subject.
type Notification struct {
	ID        string
	EventType string
	Subject   string
	URL       string
}

// NotificationFromEvent builds a Notification from an Event Grid event.
// The envelope subject wins; data.subject is used when the envelope has none.
func NotificationFromEvent(evt EventGridEvent) (Notification, error) {
	n := Notification{
		ID:        evt.ID,
		EventType: evt.EventType,
		Subject:   evt.Subject,
	}

	if len(evt.Data) == 0 || string(evt.Data) == "null" {
		return n, nil
	}

	var data BlobEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return n, err
	}

	if n.Subject == "" {
		n.Subject = data.Subject
	}
	n.URL = data.URL

	return n, nil
}
