package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-fivestars/internal/log"
	"github.com/teslashibe/go-fivestars/pkg/catalog"
	"github.com/teslashibe/go-fivestars/pkg/conversation"
	"github.com/teslashibe/go-fivestars/pkg/order"
	"github.com/teslashibe/go-fivestars/pkg/room"
	"github.com/teslashibe/go-fivestars/pkg/session"
)

// script prepares the mocks for one room.
type script func(t *room.Mock, o *conversation.Mock)

func orderingCustomer(t *room.Mock, o *conversation.Mock) {
	t.Conn.Join(room.Participant{ID: "p", Identity: "customer"})
	o.Session.Say(conversation.RoleUser, "A small cheese pizza.")
	o.Session.Say(conversation.RoleAgent, `One 12" Cheese pizza, total $9.99`)
}

// absentCustomer never joins, so the session waits until cancelled.
func absentCustomer(*room.Mock, *conversation.Mock) {}

func newFactory(sink order.Dispatcher, scripts map[string]script) Factory {
	cat := catalog.FiveStars()
	return func(roomID string, obs session.Observer) (*session.Orchestrator, error) {
		transport, opener := room.NewMock(), conversation.NewMock()
		if s, ok := scripts[roomID]; ok {
			s(transport, opener)
		}
		return session.New(transport, opener, cat, sink,
			session.WithRoom(roomID),
			session.WithLinger(0),
			session.WithParticipantTimeout(time.Minute),
			session.WithObserver(obs),
			session.WithLogger(log.Discard()),
		)
	}
}

func TestPoolRunsSessionToCompletion(t *testing.T) {
	sink := &order.Recorder{}
	var mu sync.Mutex
	var updates []session.Update

	p := New(newFactory(sink, map[string]script{"r1": orderingCustomer}),
		WithLogger(log.Discard()),
		WithOnUpdate(func(u session.Update) {
			mu.Lock()
			updates = append(updates, u)
			mu.Unlock()
		}),
	)

	id, err := p.Start("r1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	p.Wait()

	st, ok := p.Get(id)
	if !ok {
		t.Fatal("status not found")
	}
	if st.Phase != session.PhaseCompleted {
		t.Errorf("Phase = %s, want completed (error %q)", st.Phase, st.Error)
	}
	if st.OrderID == "" || st.Total != "$9.99" {
		t.Errorf("OrderID = %q, Total = %q", st.OrderID, st.Total)
	}
	if st.Turns != 2 {
		t.Errorf("Turns = %d, want 2", st.Turns)
	}
	if st.EndedAt.IsZero() {
		t.Error("EndedAt not set")
	}
	if p.Active() != 0 {
		t.Errorf("Active() = %d, want 0", p.Active())
	}
	if len(sink.Submitted()) != 1 {
		t.Errorf("dispatched %d orders", len(sink.Submitted()))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(updates) == 0 || updates[0].SessionID != id || updates[0].Room != "r1" {
		t.Errorf("updates = %+v", updates)
	}
}

func TestPoolStartRules(t *testing.T) {
	p := New(newFactory(&order.Recorder{}, map[string]script{"a": absentCustomer, "b": absentCustomer}),
		WithMaxSessions(2), WithLogger(log.Discard()))

	if _, err := p.Start("a"); err != nil {
		t.Fatalf("Start(a) error = %v", err)
	}
	if _, err := p.Start("a"); !errors.Is(err, ErrRoomBusy) {
		t.Errorf("second Start(a) error = %v, want ErrRoomBusy", err)
	}
	if _, err := p.Start("b"); err != nil {
		t.Fatalf("Start(b) error = %v", err)
	}
	if _, err := p.Start("c"); !errors.Is(err, ErrFull) {
		t.Errorf("Start(c) error = %v, want ErrFull", err)
	}
	if p.Active() != 2 {
		t.Errorf("Active() = %d, want 2", p.Active())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if _, err := p.Start("d"); !errors.Is(err, ErrStopped) {
		t.Errorf("Start after shutdown error = %v, want ErrStopped", err)
	}

	list := p.List()
	if len(list) != 2 {
		t.Fatalf("List() returned %d sessions", len(list))
	}
	for _, st := range list {
		if st.Phase != session.PhaseFailed || st.Error == "" {
			t.Errorf("%s: Phase = %s, Error = %q", st.Room, st.Phase, st.Error)
		}
	}
}

func TestPoolFactoryError(t *testing.T) {
	p := New(func(string, session.Observer) (*session.Orchestrator, error) {
		return nil, errors.New("no model key")
	}, WithLogger(log.Discard()))

	if _, err := p.Start("r1"); err == nil {
		t.Fatal("expected error")
	}
	if p.Active() != 0 || len(p.List()) != 0 {
		t.Error("failed start left state behind")
	}
}

func TestGetUnknown(t *testing.T) {
	p := New(newFactory(&order.Recorder{}, nil), WithLogger(log.Discard()))
	if _, ok := p.Get("nope"); ok {
		t.Error("Get(nope) found a session")
	}
}

func TestPoolForgetsOldestEndedSessions(t *testing.T) {
	scripts := map[string]script{"r1": orderingCustomer, "r2": orderingCustomer, "r3": orderingCustomer}
	p := New(newFactory(&order.Recorder{}, scripts), WithMaxHistory(2), WithLogger(log.Discard()))

	var ids []string
	for _, r := range []string{"r1", "r2", "r3"} {
		id, err := p.Start(r)
		if err != nil {
			t.Fatalf("Start(%s) error = %v", r, err)
		}
		p.Wait()
		ids = append(ids, id)
	}

	if _, ok := p.Get(ids[0]); ok {
		t.Error("oldest ended session still tracked")
	}
	for _, id := range ids[1:] {
		if st, ok := p.Get(id); !ok || st.Phase != session.PhaseCompleted {
			t.Errorf("Get(%s) = %+v, %v", id, st, ok)
		}
	}
	if got := len(p.List()); got != 2 {
		t.Errorf("List() returned %d sessions, want 2", got)
	}
}

func TestPoolKeepsRunningSessionsPastHistoryCap(t *testing.T) {
	p := New(newFactory(&order.Recorder{}, map[string]script{"a": absentCustomer, "b": absentCustomer}),
		WithMaxHistory(1), WithLogger(log.Discard()))
	defer p.Shutdown(context.Background())

	for _, r := range []string{"a", "b"} {
		if _, err := p.Start(r); err != nil {
			t.Fatalf("Start(%s) error = %v", r, err)
		}
	}
	if got := len(p.List()); got != 2 {
		t.Errorf("List() returned %d sessions, want 2 running", got)
	}
}
