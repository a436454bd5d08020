package restclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ismaiel54/trade-target-engine/internal/engine"
	"github.com/ismaiel54/trade-target-engine/internal/target"
)

var _ engine.Persister = (*Client)(nil)

func TestCreateTarget(t *testing.T) {
	var gotAuth string
	var gotBody target.CreatePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/order-targets", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data": {"id": 42, "orderId": "1001", "lotSize": 0.5}}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", Token: "secret"}, nil)
	got, err := c.CreateTarget(context.Background(), target.CreatePayload{OrderID: "1001", LotSize: 0.5})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "42", got.ID)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "1001", gotBody.OrderID)
}

func TestCreateTarget_NoIDInResponse(t *testing.T) {
	for _, body := range []string{``, `{"ok": true}`, `[1]`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		}))

		c := New(Config{BaseURL: srv.URL}, nil)
		got, err := c.CreateTarget(context.Background(), target.CreatePayload{})
		assert.NoError(t, err, "body %q", body)
		assert.Nil(t, got, "body %q", body)
		srv.Close()
	}
}

func TestUpdateAndDelete(t *testing.T) {
	var calls []string
	var update target.UpdatePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPut {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&update))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RPS: 100}, nil)
	ctx := context.Background()

	require.NoError(t, c.UpdateTarget(ctx, "7", target.UpdatePayload{LotSize: 0.3, StopLoss: 1.1}))
	require.NoError(t, c.DeleteTarget(ctx, "7"))

	assert.Equal(t, []string{"PUT /api/v1/order-targets/7", "DELETE /api/v1/order-targets/7"}, calls)
	assert.Equal(t, target.UpdatePayload{ID: "7", LotSize: 0.3, StopLoss: 1.1}, update)
}

func TestAPIErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{body: `{"message": "lot size exceeds remaining"}`, want: "lot size exceeds remaining"},
		{body: `{"error": "not found"}`, want: "not found"},
		{body: `{"error": {"message": "nested"}}`, want: "nested"},
		{body: `{"detail": "bad"}`, want: "bad"},
		{body: `oops`, want: ""},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, tt.body)
		}))

		c := New(Config{BaseURL: srv.URL}, nil)
		err := c.DeleteTarget(context.Background(), "1")

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), tt.body)
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
		assert.Equal(t, tt.want, apiErr.UserMessage())
		srv.Close()
	}
}

func TestEngineSurfacesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message": "market closed"}`)
	}))
	defer srv.Close()

	e := engine.New(New(Config{BaseURL: srv.URL}, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	_, err := e.OpenTargets(ctx, target.Order{ID: "1", LotSize: 1}, nil)
	require.NoError(t, err)

	_, err = e.CreateTarget(ctx, "1", target.Draft{LotSize: 0.5})
	var oe *engine.OperationError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, "market closed", oe.Message)
}

func TestCircuitBreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		err := c.DeleteTarget(ctx, "1")
		require.Error(t, err)
	}
	assert.Less(t, hits.Load(), int32(20))
}
