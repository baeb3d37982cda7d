package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/straye-as/blob-processor/internal/domain"
	"github.com/straye-as/blob-processor/internal/logger"
	"go.uber.org/zap"
)

// CloudEvents abuse-protection handshake headers
const (
	headerWebHookRequestOrigin = "WebHook-Request-Origin"
	headerWebHookAllowedOrigin = "WebHook-Allowed-Origin"
	headerWebHookAllowedRate   = "WebHook-Allowed-Rate"
)

const invalidDeliveryMessage = "Invalid request body: expected a JSON array of Event Grid events or CloudEvents"

// EventProcessor handles one blob notification
type EventProcessor interface {
	Handle(ctx context.Context, n domain.Notification) domain.Outcome
}

// DeliverySummary is the response body of an accepted delivery
type DeliverySummary struct {
	Received  int `json:"received"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// EventHandler receives Event Grid webhook deliveries
type EventHandler struct {
	processor    EventProcessor
	maxBodyBytes int64
	logger       *zap.Logger
}

func NewEventHandler(processor EventProcessor, maxBodyBytes int64, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		processor:    processor,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Receive handles POST /api/events.
// The body is an array of Event Grid schema events, or CloudEvents 1.0 as a
// single event or a batch array. Events are processed one after another.
// Per-event failures are logged and counted; the delivery is still
// acknowledged with 200 so Event Grid does not retry.
func (h *EventHandler) Receive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Delivery too large: maximum size is %d bytes", maxErr.Limit))
			return
		}
		respondWithError(w, http.StatusBadRequest, invalidDeliveryMessage)
		return
	}

	elements, err := splitDelivery(payload)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, invalidDeliveryMessage)
		return
	}

	events := make([]domain.EventGridEvent, 0, len(elements))
	for i, raw := range elements {
		evt, err := decodeEvent(raw)
		if err != nil {
			if ve, ok := err.(validator.ValidationErrors); ok {
				respondValidationError(w, fmt.Sprintf("events[%d].", i), ve)
				return
			}
			respondWithError(w, http.StatusBadRequest, invalidDeliveryMessage)
			return
		}
		events = append(events, evt)
	}

	for _, evt := range events {
		if evt.EventType == domain.EventTypeSubscriptionValidation {
			h.respondSubscriptionValidation(w, r, evt)
			return
		}
	}

	log := logger.WithRequest(h.logger, r.Method, r.URL.Path, r.Header.Get("X-Request-ID"))
	log.Debug("Delivery received", zap.Int("events", len(events)))

	// Processing continues if the caller disconnects mid-delivery
	ctx := context.WithoutCancel(r.Context())

	summary := DeliverySummary{Received: len(events)}
	for _, evt := range events {
		n, err := domain.NotificationFromEvent(evt)
		if err != nil {
			// data that is not a blob event object; nothing can be resolved from it
			log.Error("Event data could not be decoded",
				zap.String("event_id", evt.ID),
				zap.String("event_type", evt.EventType),
				zap.Error(err),
			)
			summary.Failed++
			continue
		}

		outcome := h.processor.Handle(ctx, n)
		switch outcome.Status {
		case domain.OutcomeProcessed:
			summary.Processed++
		case domain.OutcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	log.Info("Delivery handled",
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	respondJSON(w, http.StatusOK, summary)
}

// splitDelivery returns the events of a delivery. A bare object is only
// accepted as a structured-mode CloudEvent.
func splitDelivery(payload json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if !isCloudEvent(trimmed) {
			return nil, errors.New("single event is not a CloudEvent")
		}
		return []json.RawMessage{trimmed}, nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(trimmed, &elements); err != nil {
		return nil, err
	}
	return elements, nil
}

func isCloudEvent(raw json.RawMessage) bool {
	var envelope struct {
		SpecVersion string `json:"specversion"`
	}
	return json.Unmarshal(raw, &envelope) == nil && envelope.SpecVersion != ""
}

// decodeEvent decodes and validates one event in either schema
func decodeEvent(raw json.RawMessage) (domain.EventGridEvent, error) {
	if isCloudEvent(raw) {
		var ce domain.CloudEvent
		if err := json.Unmarshal(raw, &ce); err != nil {
			return domain.EventGridEvent{}, err
		}
		if err := validate.Struct(ce); err != nil {
			return domain.EventGridEvent{}, err
		}
		return ce.EventGridEvent(), nil
	}

	var evt domain.EventGridEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return domain.EventGridEvent{}, err
	}
	if err := validate.Struct(evt); err != nil {
		return domain.EventGridEvent{}, err
	}
	return evt, nil
}

func (h *EventHandler) respondSubscriptionValidation(w http.ResponseWriter, r *http.Request, evt domain.EventGridEvent) {
	var data domain.SubscriptionValidationData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid subscription validation data")
		return
	}
	if err := validate.Struct(data); err != nil {
		respondValidationError(w, "data.", err)
		return
	}

	logger.WithRequest(h.logger, r.Method, r.URL.Path, r.Header.Get("X-Request-ID")).Info("Event Grid subscription validated",
		zap.String("event_id", evt.ID),
		zap.String("topic", evt.Topic),
	)

	respondJSON(w, http.StatusOK, domain.SubscriptionValidationResponse{
		ValidationResponse: data.ValidationCode,
	})
}

// Handshake handles OPTIONS /api/events, the CloudEvents webhook validation request
func (h *EventHandler) Handshake(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get(headerWebHookRequestOrigin)
	if origin == "" {
		respondWithError(w, http.StatusBadRequest, "Missing WebHook-Request-Origin header")
		return
	}

	h.logger.Info("CloudEvents webhook handshake", zap.String("origin", origin))

	w.Header().Set(headerWebHookAllowedOrigin, origin)
	w.Header().Set(headerWebHookAllowedRate, "*")
	w.WriteHeader(http.StatusOK)
}
