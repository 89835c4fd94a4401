package scrape

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", "test-actor", 5*time.Second, zap.NewNop())
}

func TestStartBatchSubmitsRun(t *testing.T) {
	var captured startRunRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/acts/test-actor/runs", r.URL.Path)
		assert.Equal(t, "test-token", r.URL.Query().Get("token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data": {"id": "run-123", "startedAt": "2026-03-10T12:00:00Z"}}`))
	})

	handle, err := client.StartBatch(context.Background(), []string{"B000TEST01", "B000TEST02"}, "https://example.com/webhook")
	require.NoError(t, err)
	assert.Equal(t, "run-123", handle.RunID)
	assert.Equal(t, []string{"B000TEST01", "B000TEST02"}, captured.ASINs)
	require.Len(t, captured.Webhooks, 1)
	assert.Equal(t, "https://example.com/webhook", captured.Webhooks[0].RequestURL)
	assert.Contains(t, captured.Webhooks[0].EventTypes, "ACTOR.RUN.SUCCEEDED")
}

func TestStartBatchRejectsEmptyList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.StartBatch(context.Background(), nil, "https://example.com/webhook")
	require.ErrorIs(t, err, monitor.ErrValidation)
}

func TestStartBatchRateLimitIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.StartBatch(context.Background(), []string{"B000TEST01"}, "https://example.com/webhook")
	require.Error(t, err)
	assert.True(t, monitor.IsTransient(err))
}

func TestStartBatchClientErrorIsPermanent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.StartBatch(context.Background(), []string{"B000TEST01"}, "https://example.com/webhook")
	require.Error(t, err)
	assert.False(t, monitor.IsTransient(err))
}

func TestFetchDatasetParsesItems(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/datasets/ds-9/items", r.URL.Path)
		_, _ = w.Write([]byte(`[{"asin": "B000TEST01", "price": 19.99}]`))
	})

	dataset, err := client.FetchDataset(context.Background(), "ds-9")
	require.NoError(t, err)
	require.Len(t, dataset.Items, 1)
	assert.Equal(t, "B000TEST01", dataset.Items[0].ASIN)
	assert.JSONEq(t, `[{"asin": "B000TEST01", "price": 19.99}]`, string(dataset.Raw))
}

func TestFetchDatasetServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FetchDataset(context.Background(), "ds-9")
	require.Error(t, err)
	assert.True(t, monitor.IsTransient(err))
}

func TestFetchDatasetInvalidItemFails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"title": "missing asin"}]`))
	})

	_, err := client.FetchDataset(context.Background(), "ds-9")
	require.Error(t, err)
	assert.False(t, monitor.IsTransient(err))
}
