package engine

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ismaiel54/trade-target-engine/internal/allocation"
	"github.com/ismaiel54/trade-target-engine/internal/target"
)

// Persister is the REST persistence layer the engine writes through.
// CreateTarget may return a nil target (or one without an id) on success;
// the entry then stays pending until a snapshot confirms it.
type Persister interface {
	CreateTarget(ctx context.Context, payload target.CreatePayload) (*target.Target, error)
	UpdateTarget(ctx context.Context, id string, payload target.UpdatePayload) error
	DeleteTarget(ctx context.Context, id string) error
}

// Recorder receives engine metrics. All methods must be cheap.
type Recorder interface {
	Operation(op, result string)
	Snapshot(result string)
	TempSuperseded(n int)
	Remaining(orderID string, lot float64)
}

// Listener is called from the engine goroutine after every state change.
// It must not block or call back into the Engine.
type Listener func(View)

// Option configures an Engine
type Option func(*Engine)

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithListener registers a state change listener
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listener = l }
}

// WithTempIDs overrides the client temp id generator
func WithTempIDs(gen func() string) Option {
	return func(e *Engine) { e.newTempID = gen }
}

// Engine owns every per-order target list. State lives in a single goroutine
// (Run); lifecycle calls and snapshots reach it as messages, so each mutation
// is computed against the latest list.
type Engine struct {
	persister Persister
	logger    *zap.Logger
	recorder  Recorder
	listener  Listener
	newTempID func() string

	ops     chan func(*book)
	stopped chan struct{}
	book    *book
}

// New creates an engine. Its methods block until Run is started.
func New(persister Persister, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		persister: persister,
		logger:    logger,
		newTempID: uuid.NewString,
		ops:       make(chan func(*book)),
		stopped:   make(chan struct{}),
		book:      newBook(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run processes state mutations until ctx is cancelled. It must be called once.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)
	e.logger.Info("Target engine started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Target engine stopped")
			return nil
		case op := <-e.ops:
			op(e.book)
		}
	}
}

// do runs fn on the engine goroutine and waits for it
func (e *Engine) do(ctx context.Context, fn func(*book)) error {
	done := make(chan struct{})
	op := func(b *book) {
		defer close(done)
		fn(b)
	}
	select {
	case e.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
	<-done
	return nil
}

// View returns the current state of one order
func (e *Engine) View(ctx context.Context, orderID string) (View, error) {
	var (
		v     View
		found bool
	)
	err := e.do(ctx, func(b *book) {
		st, ok := b.get(orderID)
		if !ok {
			return
		}
		found = true
		v = st.view()
	})
	if err != nil {
		return View{}, err
	}
	if !found {
		return View{}, ErrUnknownOrder
	}
	return v, nil
}

// Views returns the state of every known order
func (e *Engine) Views(ctx context.Context) ([]View, error) {
	var out []View
	err := e.do(ctx, func(b *book) {
		out = make([]View, 0, len(b.orders))
		for _, st := range b.orders {
			out = append(out, st.view())
		}
	})
	return out, err
}

func (e *Engine) changed(st *orderState) {
	if e.recorder != nil {
		e.recorder.Remaining(st.order.ID, allocation.Remaining(st.order, st.targets, ""))
	}
	if e.listener != nil {
		e.listener(st.view())
	}
}

func (e *Engine) recordOp(op, result string) {
	if e.recorder != nil {
		e.recorder.Operation(op, result)
	}
}
