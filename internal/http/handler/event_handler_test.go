package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/straye-as/blob-processor/internal/domain"
	"github.com/straye-as/blob-processor/internal/http/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProcessor struct {
	received []domain.Notification
	ctxErrs  []error
	status   domain.OutcomeStatus
}

func (f *fakeProcessor) Handle(ctx context.Context, n domain.Notification) domain.Outcome {
	f.received = append(f.received, n)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	status := f.status
	if status == "" {
		status = domain.OutcomeProcessed
	}
	return domain.Outcome{Status: status}
}

func createEventHandler(p handler.EventProcessor) *handler.EventHandler {
	return handler.NewEventHandler(p, 64*1024, zap.NewNop())
}

func postEvents(h *handler.EventHandler, body string) *httptest.ResponseRecorder {
	return postEventsAs(h, body, "application/json")
}

func postEventsAs(h *handler.EventHandler, body, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.Receive(w, req)
	return w
}

const blobCreatedDelivery = `[{
	"id": "evt-1",
	"topic": "/subscriptions/x/resourceGroups/rg/providers/Microsoft.Storage/storageAccounts/acct",
	"subject": "/blobServices/default/containers/input/blobs/2024/data.csv",
	"eventType": "Microsoft.Storage.BlobCreated",
	"eventTime": "2024-05-01T10:00:00Z",
	"data": {
		"api": "PutBlob",
		"contentType": "text/csv",
		"blobType": "BlockBlob",
		"url": "https://acct.blob.core.windows.net/input/2024/data.csv"
	},
	"dataVersion": "",
	"metadataVersion": "1"
}]`

func TestEventHandler_Receive_BlobCreated(t *testing.T) {
	p := &fakeProcessor{}
	w := postEvents(createEventHandler(p), blobCreatedDelivery)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, p.received, 1)
	assert.Equal(t, domain.Notification{
		ID:        "evt-1",
		EventType: domain.EventTypeBlobCreated,
		Subject:   "/blobServices/default/containers/input/blobs/2024/data.csv",
		URL:       "https://acct.blob.core.windows.net/input/2024/data.csv",
	}, p.received[0])

	var summary handler.DeliverySummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, handler.DeliverySummary{Received: 1, Processed: 1}, summary)
}

func TestEventHandler_Receive_FailuresStillAcknowledged(t *testing.T) {
	p := &fakeProcessor{status: domain.OutcomeFailed}
	body := `[
		{"id": "1", "eventType": "Microsoft.Storage.BlobCreated", "data": {"url": "https://acct.blob.core.windows.net/input/a.csv"}},
		{"id": "2", "eventType": "Microsoft.Storage.BlobCreated", "data": {}}
	]`

	w := postEvents(createEventHandler(p), body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, p.received, 2)
	assert.Equal(t, "", p.received[1].URL)

	var summary handler.DeliverySummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Failed)
}

func TestEventHandler_Receive_SubjectFromData(t *testing.T) {
	p := &fakeProcessor{}
	body := `[{"id": "1", "eventType": "Microsoft.Storage.BlobCreated", "data": {
		"subject": "/blobServices/default/containers/input/blobs/a.csv",
		"url": "https://acct.blob.core.windows.net/input/a.csv"
	}}]`

	w := postEvents(createEventHandler(p), body)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, p.received, 1)
	assert.Equal(t, "/blobServices/default/containers/input/blobs/a.csv", p.received[0].Subject)
}

func TestEventHandler_Receive_UndecodableDataCountsAsFailed(t *testing.T) {
	p := &fakeProcessor{}
	body := `[{"id": "1", "eventType": "Microsoft.Storage.BlobCreated", "data": "not an object"}]`

	w := postEvents(createEventHandler(p), body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, p.received)
	var summary handler.DeliverySummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Failed)
}

func TestEventHandler_Receive_SubscriptionValidation(t *testing.T) {
	p := &fakeProcessor{}
	body := `[{
		"id": "2d1781af-3a4c-4d7c-bd0c-e34b19da4e66",
		"topic": "/subscriptions/x",
		"subject": "",
		"eventType": "Microsoft.EventGrid.SubscriptionValidationEvent",
		"eventTime": "2024-05-01T10:00:00Z",
		"data": {
			"validationCode": "512d38b6-c7b8-40c8-89fe-f46f9e9622b6",
			"validationUrl": "https://rp-eastus2.eventgrid.azure.net/validate"
		},
		"dataVersion": "1",
		"metadataVersion": "1"
	}]`

	w := postEvents(createEventHandler(p), body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, p.received)
	var resp domain.SubscriptionValidationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "512d38b6-c7b8-40c8-89fe-f46f9e9622b6", resp.ValidationResponse)
}

func TestEventHandler_Receive_SubscriptionValidationMissingCode(t *testing.T) {
	body := `[{"id": "1", "eventType": "Microsoft.EventGrid.SubscriptionValidationEvent", "data": {}}]`

	w := postEvents(createEventHandler(&fakeProcessor{}), body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Contains(t, apiErr.Errors, "data.validationCode")
}

func TestEventHandler_Receive_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected int
	}{
		{name: "not json", body: "hello", expected: http.StatusBadRequest},
		{name: "single event grid object instead of array", body: `{"id": "1", "eventType": "x"}`, expected: http.StatusBadRequest},
		{name: "array of strings", body: `["x"]`, expected: http.StatusBadRequest},
		{name: "cloud event missing source", body: `{"specversion": "1.0", "id": "1", "type": "Microsoft.Storage.BlobCreated"}`, expected: http.StatusBadRequest},
		{name: "missing event type", body: `[{"id": "1"}]`, expected: http.StatusBadRequest},
		{name: "missing id", body: `[{"eventType": "Microsoft.Storage.BlobCreated"}]`, expected: http.StatusBadRequest},
		{name: "too large", body: `[{"id": "` + strings.Repeat("x", 70*1024) + `"}]`, expected: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProcessor{}
			w := postEvents(createEventHandler(p), tt.body)
			assert.Equal(t, tt.expected, w.Code)
			assert.Empty(t, p.received)
		})
	}
}

func TestEventHandler_Receive_ProcessingSurvivesCancelledRequest(t *testing.T) {
	p := &fakeProcessor{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(blobCreatedDelivery)).WithContext(ctx)
	w := httptest.NewRecorder()
	createEventHandler(p).Receive(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, p.ctxErrs, 1)
	assert.NoError(t, p.ctxErrs[0])
}

const blobCreatedCloudEvent = `{
	"specversion": "1.0",
	"type": "Microsoft.Storage.BlobCreated",
	"source": "/subscriptions/x/resourceGroups/rg/providers/Microsoft.Storage/storageAccounts/acct",
	"id": "ce-1",
	"time": "2024-05-01T10:00:00Z",
	"subject": "/blobServices/default/containers/input/blobs/2024/data.csv",
	"datacontenttype": "application/json",
	"data": {
		"api": "PutBlob",
		"contentType": "text/csv",
		"blobType": "BlockBlob",
		"url": "https://acct.blob.core.windows.net/input/2024/data.csv"
	}
}`

func TestEventHandler_Receive_CloudEvents(t *testing.T) {
	want := domain.Notification{
		ID:        "ce-1",
		EventType: domain.EventTypeBlobCreated,
		Subject:   "/blobServices/default/containers/input/blobs/2024/data.csv",
		URL:       "https://acct.blob.core.windows.net/input/2024/data.csv",
	}

	tests := []struct {
		name        string
		body        string
		contentType string
		received    int
	}{
		{name: "structured single event", body: blobCreatedCloudEvent, contentType: "application/cloudevents+json; charset=utf-8", received: 1},
		{name: "batch", body: "[" + blobCreatedCloudEvent + "," + blobCreatedCloudEvent + "]", contentType: "application/cloudevents-batch+json; charset=utf-8", received: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProcessor{}
			w := postEventsAs(createEventHandler(p), tt.body, tt.contentType)

			assert.Equal(t, http.StatusOK, w.Code)
			require.Len(t, p.received, tt.received)
			for _, n := range p.received {
				assert.Equal(t, want, n)
			}

			var summary handler.DeliverySummary
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
			assert.Equal(t, handler.DeliverySummary{Received: tt.received, Processed: tt.received}, summary)
		})
	}
}

func TestEventHandler_Receive_CloudEventValidationError(t *testing.T) {
	body := `[{"specversion": "1.0", "id": "1", "source": "/x"}]`

	w := postEventsAs(createEventHandler(&fakeProcessor{}), body, "application/cloudevents-batch+json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Contains(t, apiErr.Errors, "events[0].type")
}

func TestEventHandler_Receive_EmptyArray(t *testing.T) {
	w := postEvents(createEventHandler(&fakeProcessor{}), `[]`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEventHandler_Handshake(t *testing.T) {
	h := createEventHandler(&fakeProcessor{})

	t.Run("echoes origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/events", nil)
		req.Header.Set("WebHook-Request-Origin", "eventgrid.azure.net")
		w := httptest.NewRecorder()
		h.Handshake(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "eventgrid.azure.net", w.Header().Get("WebHook-Allowed-Origin"))
		assert.Equal(t, "*", w.Header().Get("WebHook-Allowed-Rate"))
	})

	t.Run("missing origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/events", nil)
		w := httptest.NewRecorder()
		h.Handshake(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
