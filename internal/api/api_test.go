package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ismaiel54/trade-target-engine/internal/engine"
	"github.com/ismaiel54/trade-target-engine/internal/restclient"
	"github.com/ismaiel54/trade-target-engine/internal/target"
	"github.com/ismaiel54/trade-target-engine/internal/targetstore"
)

type stubPersister struct {
	mu        sync.Mutex
	next      int
	createErr error
	noID      bool
}

func (p *stubPersister) CreateTarget(_ context.Context, payload target.CreatePayload) (*target.Target, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	if p.noID {
		return nil, nil
	}
	p.next++
	return &target.Target{
		ID: strconv.Itoa(p.next), OrderID: payload.OrderID,
		LotSize: payload.LotSize, StopLoss: payload.StopLoss, TakeProfit: payload.TakeProfit,
	}, nil
}

func (p *stubPersister) UpdateTarget(context.Context, string, target.UpdatePayload) error { return nil }
func (p *stubPersister) DeleteTarget(context.Context, string) error                       { return nil }

func startEngine(t *testing.T, p engine.Persister) *engine.Engine {
	t.Helper()
	e := engine.New(p, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var testOrder = target.Order{
	AccountID: "acc-1", Side: target.Buy,
	LotSize: 1.0, MinLotSize: 0.1, LotStepSize: 0.01, EntryPrice: 1.15,
}

func openOrder(t *testing.T, h http.Handler) {
	t.Helper()
	rec := do(t, h, http.MethodPut, "/api/v1/orders/1001", OpenRequest{Order: testOrder})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestEngineAPI_Lifecycle(t *testing.T) {
	h := NewEngineServer(startEngine(t, &stubPersister{}), nil).Handler([]string{"*"})
	openOrder(t, h)

	rec := do(t, h, http.MethodPost, "/api/v1/orders/1001/targets", target.Draft{LotSize: 0.4, StopLoss: 1.1, TakeProfit: 1.2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[TargetResponse](t, rec)
	assert.Equal(t, "1", created.ID)
	assert.Equal(t, "1", created.Key)

	rec = do(t, h, http.MethodPut, "/api/v1/orders/1001/targets/1", target.Draft{LotSize: 0.6})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/orders/1001/targets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[ViewResponse](t, rec)
	require.Len(t, view.Targets, 1)
	assert.Equal(t, 0.6, view.Targets[0].LotSize)
	assert.InDelta(t, 0.4, view.Remaining, 1e-9)
	assert.Equal(t, "0.40", view.DefaultLot)

	rec = do(t, h, http.MethodDelete, "/api/v1/orders/1001/targets/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	views := decode[[]ViewResponse](t, rec)
	require.Len(t, views, 1)
	assert.Empty(t, views[0].Targets)
}

func TestEngineAPI_ValidationIs422(t *testing.T) {
	h := NewEngineServer(startEngine(t, &stubPersister{}), nil).Handler([]string{"*"})
	openOrder(t, h)

	rec := do(t, h, http.MethodPost, "/api/v1/orders/1001/targets", target.Draft{LotSize: 0.05})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "lotSize", body.Field)
	assert.NotEmpty(t, body.Message)

	rec = do(t, h, http.MethodPost, "/api/v1/orders/1001/targets", target.Draft{LotSize: 0.5, TakeProfit: 1.0})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "takeProfit", decode[ErrorResponse](t, rec).Field)
}

func TestEngineAPI_ErrorMapping(t *testing.T) {
	p := &stubPersister{createErr: errors.New("connection reset")}
	h := NewEngineServer(startEngine(t, p), nil).Handler([]string{"*"})

	rec := do(t, h, http.MethodGet, "/api/v1/orders/404/targets", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	openOrder(t, h)

	rec = do(t, h, http.MethodPost, "/api/v1/orders/1001/targets", target.Draft{LotSize: 0.5})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, engine.FallbackSaveMessage, decode[ErrorResponse](t, rec).Message)

	rec = do(t, h, http.MethodGet, "/api/v1/orders/1001/targets", nil)
	view := decode[ViewResponse](t, rec)
	assert.Empty(t, view.Targets)
	assert.Equal(t, engine.FallbackSaveMessage, view.Error)

	rec = do(t, h, http.MethodDelete, "/api/v1/orders/1001/targets/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders/1001/targets", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEngineAPI_PendingTargetNeedsLocalRemoval(t *testing.T) {
	h := NewEngineServer(startEngine(t, &stubPersister{noID: true}), nil).Handler([]string{"*"})
	openOrder(t, h)

	rec := do(t, h, http.MethodPost, "/api/v1/orders/1001/targets", target.Draft{LotSize: 0.5})
	require.Equal(t, http.StatusAccepted, rec.Code)
	pending := decode[TargetResponse](t, rec)
	require.True(t, pending.Pending)
	require.NotEmpty(t, pending.Key)

	rec = do(t, h, http.MethodPut, "/api/v1/orders/1001/targets/"+pending.Key, target.Draft{LotSize: 0.2})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/v1/orders/1001/targets/"+pending.Key, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/orders/1001/targets/local/"+pending.Key, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/orders/1001/targets", nil)
	assert.Empty(t, decode[ViewResponse](t, rec).Targets)
}

func TestEngineAPI_CORS(t *testing.T) {
	h := NewEngineServer(startEngine(t, &stubPersister{}), nil).Handler([]string{"http://localhost:3000"})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/orders/1001/targets", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func openStore(t *testing.T) *targetstore.Store {
	t.Helper()
	store, err := targetstore.Open(filepath.Join(t.TempDir(), "targets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBackendAPI(t *testing.T) {
	h := NewBackendServer(openStore(t), "", nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/order-targets", target.CreatePayload{OrderID: "1001", LotSize: 0.5})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/v1/orders/1001", testOrder)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/v1/order-targets", target.CreatePayload{OrderID: "1001", LotSize: 0.5})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[struct {
		Data target.Target `json:"data"`
	}](t, rec).Data
	require.NotEmpty(t, created.ID)

	rec = do(t, h, http.MethodPost, "/api/v1/order-targets", target.CreatePayload{OrderID: "1001", LotSize: 0.6})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "lotSize", decode[ErrorResponse](t, rec).Field)

	rec = do(t, h, http.MethodPut, "/api/v1/order-targets/"+created.ID, target.UpdatePayload{LotSize: 0.7})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/orders/1001/targets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Data []target.Target `json:"data"`
	}](t, rec).Data
	require.Len(t, list, 1)
	assert.Equal(t, 0.7, list[0].LotSize)

	rec = do(t, h, http.MethodDelete, "/api/v1/order-targets/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/v1/order-targets/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBackendAPI_Auth(t *testing.T) {
	h := NewBackendServer(openStore(t), "s3cret", nil).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/orders/1001/targets", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/1001/targets", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEndToEnd_EngineThroughBackend(t *testing.T) {
	store := openStore(t)
	backend := httptest.NewServer(NewBackendServer(store, "tok", nil).Handler())
	defer backend.Close()

	o := testOrder
	o.ID = "1001"
	require.NoError(t, store.UpsertOrder(context.Background(), o))

	client := restclient.New(restclient.Config{BaseURL: backend.URL, Token: "tok"}, nil)
	h := NewEngineServer(startEngine(t, client), nil).Handler([]string{"*"})
	openOrder(t, h)

	rec := do(t, h, http.MethodPost, "/api/v1/orders/1001/targets", target.Draft{LotSize: 0.7})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[TargetResponse](t, rec)
	assert.NotEmpty(t, created.ID)

	// another writer takes lot the engine has not seen yet; local validation
	// passes and the server rejects
	_, err := store.CreateTarget(context.Background(), target.CreatePayload{OrderID: "1001", LotSize: 0.3})
	require.NoError(t, err)

	rec = do(t, h, http.MethodPut, "/api/v1/orders/1001/targets/"+created.ID, target.Draft{LotSize: 0.9})
	require.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())
	assert.Contains(t, decode[ErrorResponse](t, rec).Message, "exceeds")

	rec = do(t, h, http.MethodGet, "/api/v1/orders/1001/targets", nil)
	view := decode[ViewResponse](t, rec)
	require.Len(t, view.Targets, 1)
	assert.Equal(t, 0.7, view.Targets[0].LotSize)

	list, err := store.ListTargets(context.Background(), "1001")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, target.Sum(list), 1e-9)
}
