package order

import (
	"context"
	"sync"
)

// Recorder is a Dispatcher for tests that keeps every submitted order.
type Recorder struct {
	mu sync.Mutex

	// Err, when set, is returned by Submit after recording the order.
	Err error

	Orders []Order
}

// Submit implements Dispatcher.
func (r *Recorder) Submit(ctx context.Context, o Order) (Ack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Orders = append(r.Orders, o)
	if r.Err != nil {
		return Ack{}, &DispatchError{Sink: "recorder", OrderID: o.ID, Cause: r.Err}
	}
	return Ack{OrderID: o.ID, Sink: "recorder"}, nil
}

// Submitted returns a copy of the recorded orders.
func (r *Recorder) Submitted() []Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Order(nil), r.Orders...)
}
