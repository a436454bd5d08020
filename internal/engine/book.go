package engine

import (
	"github.com/ismaiel54/trade-target-engine/internal/allocation"
	"github.com/ismaiel54/trade-target-engine/internal/target"
)

// book is the engine's owned state. Only the reducer goroutine touches it.
type book struct {
	orders map[string]*orderState
	seq    uint64
}

type orderState struct {
	order      target.Order
	targets    []target.Target
	defaultLot string
	err        error

	// tombstones holds ids removed by a confirmed delete
	tombstones map[string]struct{}
	// reserved holds the lot of every update still waiting for the server,
	// by target id and then by the update's sequence number
	reserved map[string]map[uint64]float64
}

func newBook() *book {
	return &book{orders: make(map[string]*orderState)}
}

func (b *book) get(orderID string) (*orderState, bool) {
	st, ok := b.orders[orderID]
	return st, ok
}

func (b *book) ensure(orderID string) *orderState {
	if st, ok := b.orders[orderID]; ok {
		return st
	}
	st := &orderState{
		order:      target.Order{ID: orderID},
		tombstones: make(map[string]struct{}),
		reserved:   make(map[string]map[uint64]float64),
	}
	b.orders[orderID] = st
	return st
}

func (b *book) nextSeq() uint64 {
	b.seq++
	return b.seq
}

func (st *orderState) reserve(id string, seq uint64, lot float64) {
	pending, ok := st.reserved[id]
	if !ok {
		pending = make(map[uint64]float64)
		st.reserved[id] = pending
	}
	pending[seq] = lot
}

func (st *orderState) release(id string, seq uint64) {
	pending := st.reserved[id]
	delete(pending, seq)
	if len(pending) == 0 {
		delete(st.reserved, id)
	}
}

// effective is the list validation runs against: a target with in-flight
// updates counts with the largest of its current and requested lots.
func (st *orderState) effective() []target.Target {
	if len(st.reserved) == 0 {
		return st.targets
	}
	out := target.Clone(st.targets)
	for i := range out {
		for _, lot := range st.reserved[target.GetTargetID(out[i])] {
			if lot > out[i].LotSize {
				out[i].LotSize = lot
			}
		}
	}
	return out
}

func (st *orderState) refreshDefault() {
	st.defaultLot = allocation.NextDefaultLot(st.order, st.targets)
}

func (st *orderState) removeAt(idx int) {
	st.targets = append(st.targets[:idx:idx], st.targets[idx+1:]...)
}

func (st *orderState) view() View {
	return View{
		OrderID:    st.order.ID,
		Order:      st.order,
		Targets:    target.Clone(st.targets),
		Remaining:  allocation.Remaining(st.order, st.targets, ""),
		DefaultLot: st.defaultLot,
		Err:        st.err,
	}
}

// refreshOrder copies the populated fields of next onto the read model
func (st *orderState) refreshOrder(next target.Order) {
	o := &st.order
	if next.AccountID != "" {
		o.AccountID = next.AccountID
	}
	if next.Side != "" {
		o.Side = next.Side
	}
	if next.LotSize > 0 {
		o.LotSize = next.LotSize
	}
	if next.MinLotSize > 0 {
		o.MinLotSize = next.MinLotSize
	}
	if next.LotStepSize > 0 {
		o.LotStepSize = next.LotStepSize
	}
	if next.EntryPrice > 0 {
		o.EntryPrice = next.EntryPrice
	}
}

// View is a read-only copy of one order's target state
type View struct {
	OrderID    string
	Order      target.Order
	Targets    []target.Target
	Remaining  float64
	DefaultLot string
	// Err is the last operation error on this order, cleared by the next success
	Err error
}
