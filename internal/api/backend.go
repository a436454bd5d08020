package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ismaiel54/trade-target-engine/internal/target"
	"github.com/ismaiel54/trade-target-engine/internal/targetstore"
)

// TargetStore is the persistence the backend API serves.
// *targetstore.Store implements it.
type TargetStore interface {
	UpsertOrder(ctx context.Context, o target.Order) error
	ListTargets(ctx context.Context, orderID string) ([]target.Target, error)
	CreateTarget(ctx context.Context, p target.CreatePayload) (*target.Target, error)
	UpdateTarget(ctx context.Context, id string, p target.UpdatePayload) error
	DeleteTarget(ctx context.Context, id string) error
}

// BackendServer is the order-target REST API the engine persists through
type BackendServer struct {
	store  TargetStore
	token  string
	router *mux.Router
	logger *zap.Logger
}

// NewBackendServer creates the backend API. An empty token disables auth.
func NewBackendServer(store TargetStore, token string, logger *zap.Logger) *BackendServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &BackendServer{store: store, token: token, router: mux.NewRouter(), logger: logger}
	s.setupRoutes()
	return s
}

func (s *BackendServer) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authenticate)

	api.HandleFunc("/orders/{orderId}", s.handleUpsertOrder).Methods("PUT")
	api.HandleFunc("/orders/{orderId}/targets", s.handleListTargets).Methods("GET")
	api.HandleFunc("/order-targets", s.handleCreate).Methods("POST")
	api.HandleFunc("/order-targets/{id}", s.handleUpdate).Methods("PUT")
	api.HandleFunc("/order-targets/{id}", s.handleDelete).Methods("DELETE")
}

// Handler returns the HTTP handler
func (s *BackendServer) Handler() http.Handler {
	return logRequests(s.logger, s.router)
}

func (s *BackendServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			want := "Bearer " + s.token
			if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(want)) != 1 {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *BackendServer) handleUpsertOrder(w http.ResponseWriter, r *http.Request) {
	var o target.Order
	if !decodeBody(w, r, &o) {
		return
	}
	o.ID = mux.Vars(r)["orderId"]

	if err := s.store.UpsertOrder(r.Context(), o); err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": o})
}

func (s *BackendServer) handleListTargets(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListTargets(r.Context(), mux.Vars(r)["orderId"])
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": list})
}

func (s *BackendServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var p target.CreatePayload
	if !decodeBody(w, r, &p) {
		return
	}

	created, err := s.store.CreateTarget(r.Context(), p)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.logger.Info("Target created",
		zap.String("order_id", created.OrderID),
		zap.String("target_id", created.ID),
		zap.Float64("lot_size", created.LotSize))
	respondJSON(w, http.StatusCreated, map[string]any{"data": created})
}

func (s *BackendServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var p target.UpdatePayload
	if !decodeBody(w, r, &p) {
		return
	}
	id := mux.Vars(r)["id"]

	if err := s.store.UpdateTarget(r.Context(), id, p); err != nil {
		s.respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *BackendServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTarget(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *BackendServer) respondStoreError(w http.ResponseWriter, err error) {
	if respondValidation(w, err) {
		return
	}

	var rej *targetstore.RejectError
	switch {
	case errors.As(err, &rej):
		respondError(w, http.StatusUnprocessableEntity, rej.UserMessage())
	case errors.Is(err, targetstore.ErrOrderNotFound), errors.Is(err, targetstore.ErrTargetNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("Store failure", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
