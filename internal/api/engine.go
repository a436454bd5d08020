package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/ismaiel54/trade-target-engine/internal/engine"
	"github.com/ismaiel54/trade-target-engine/internal/target"
)

// OpenRequest opens an order's target editor
type OpenRequest struct {
	Order   target.Order    `json:"order"`
	Targets []target.Target `json:"targets"`
}

// TargetResponse is a target with the key the UI addresses it by
type TargetResponse struct {
	target.Target
	Key string `json:"key"`
}

// ViewResponse is the engine state of one order
type ViewResponse struct {
	OrderID    string           `json:"orderId"`
	Order      target.Order     `json:"order"`
	Targets    []TargetResponse `json:"targets"`
	Remaining  float64          `json:"remaining"`
	DefaultLot string           `json:"defaultLot"`
	Error      string           `json:"error,omitempty"`
}

func newViewResponse(v engine.View) ViewResponse {
	resp := ViewResponse{
		OrderID:    v.OrderID,
		Order:      v.Order,
		Targets:    make([]TargetResponse, 0, len(v.Targets)),
		Remaining:  v.Remaining,
		DefaultLot: v.DefaultLot,
	}
	for i, t := range v.Targets {
		resp.Targets = append(resp.Targets, TargetResponse{Target: t, Key: target.Key(t, i)})
	}
	if v.Err != nil {
		resp.Error = userMessage(v.Err)
	}
	return resp
}

// EngineServer exposes the engine lifecycle to the UI
type EngineServer struct {
	engine *engine.Engine
	router *mux.Router
	logger *zap.Logger
}

// NewEngineServer creates the engine API
func NewEngineServer(eng *engine.Engine, logger *zap.Logger) *EngineServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &EngineServer{engine: eng, router: mux.NewRouter(), logger: logger}
	s.setupRoutes()
	return s
}

func (s *EngineServer) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders/{orderId}", s.handleOpen).Methods("PUT")
	api.HandleFunc("/orders/{orderId}/targets", s.handleGet).Methods("GET")
	api.HandleFunc("/orders/{orderId}/targets", s.handleCreate).Methods("POST")
	// registered before {key} so "local" is not taken for a key
	api.HandleFunc("/orders/{orderId}/targets/local/{key}", s.handleRemoveLocal).Methods("DELETE")
	api.HandleFunc("/orders/{orderId}/targets/{key}", s.handleUpdate).Methods("PUT")
	api.HandleFunc("/orders/{orderId}/targets/{key}", s.handleRemove).Methods("DELETE")
}

// Handler returns the router wrapped with CORS for the given origins
func (s *EngineServer) Handler(allowedOrigins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(logRequests(s.logger, s.router))
}

func (s *EngineServer) handleListOrders(w http.ResponseWriter, r *http.Request) {
	views, err := s.engine.Views(r.Context())
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	out := make([]ViewResponse, 0, len(views))
	for _, v := range views {
		out = append(out, newViewResponse(v))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *EngineServer) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Order.ID = mux.Vars(r)["orderId"]

	v, err := s.engine.OpenTargets(r.Context(), req.Order, req.Targets)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newViewResponse(v))
}

func (s *EngineServer) handleGet(w http.ResponseWriter, r *http.Request) {
	v, err := s.engine.View(r.Context(), mux.Vars(r)["orderId"])
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newViewResponse(v))
}

func (s *EngineServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var draft target.Draft
	if !decodeBody(w, r, &draft) {
		return
	}

	t, err := s.engine.CreateTarget(r.Context(), mux.Vars(r)["orderId"], draft)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	status := http.StatusCreated
	if t.Pending {
		status = http.StatusAccepted
	}
	respondJSON(w, status, TargetResponse{Target: t, Key: target.Key(t, 0)})
}

func (s *EngineServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var draft target.Draft
	if !decodeBody(w, r, &draft) {
		return
	}
	vars := mux.Vars(r)

	t, err := s.engine.UpdateTarget(r.Context(), vars["orderId"], vars["key"], draft)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, TargetResponse{Target: t, Key: target.Key(t, 0)})
}

func (s *EngineServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.engine.RemoveTarget(r.Context(), vars["orderId"], vars["key"]); err != nil {
		s.respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *EngineServer) handleRemoveLocal(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.engine.RemoveLocalTempTarget(r.Context(), vars["orderId"], vars["key"]); err != nil {
		s.respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *EngineServer) respondEngineError(w http.ResponseWriter, err error) {
	if respondValidation(w, err) {
		return
	}

	var oe *engine.OperationError
	switch {
	case errors.As(err, &oe):
		respondError(w, http.StatusBadGateway, oe.Message)
	case errors.Is(err, engine.ErrMissingID), errors.Is(err, engine.ErrNotTemp):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrUnknownOrder), errors.Is(err, engine.ErrTargetNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrInvalidOrder):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrStopped):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("Unhandled engine error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func userMessage(err error) string {
	var oe *engine.OperationError
	if errors.As(err, &oe) {
		return oe.Message
	}
	return err.Error()
}
