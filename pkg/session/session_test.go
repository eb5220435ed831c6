package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-fivestars/internal/log"
	"github.com/teslashibe/go-fivestars/pkg/catalog"
	"github.com/teslashibe/go-fivestars/pkg/conversation"
	"github.com/teslashibe/go-fivestars/pkg/order"
	"github.com/teslashibe/go-fivestars/pkg/room"
)

type harness struct {
	transport *room.Mock
	opener    *conversation.Mock
	sink      *order.Recorder

	mu      sync.Mutex
	closes  []string
	updates []Update
}

func newHarness() *harness {
	h := &harness{
		transport: room.NewMock(),
		opener:    conversation.NewMock(),
		sink:      &order.Recorder{},
	}
	h.transport.Conn.OnClose = func() { h.record("room") }
	h.opener.Session.OnClose = func() { h.record("model") }
	return h
}

func (h *harness) record(what string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes = append(h.closes, what)
}

func (h *harness) observe(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, u)
}

func (h *harness) closeOrder() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.closes...)
}

func (h *harness) phases() []Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Phase
	for _, u := range h.updates {
		if u.Kind == UpdatePhase || u.Kind == UpdateOrder {
			out = append(out, u.Phase)
		}
	}
	return out
}

func (h *harness) join() {
	h.transport.Conn.Join(room.Participant{ID: "p1", Identity: "customer"})
}

func (h *harness) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	base := []Option{
		WithRoom("pizza-line"),
		WithLinger(0),
		WithParticipantTimeout(time.Second),
		WithLogger(log.Discard()),
		WithObserver(h.observe),
	}
	o, err := New(h.transport, h.opener, catalog.FiveStars(), h.sink, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

type result struct {
	state State
	err   error
}

func runAsync(ctx context.Context, o *Orchestrator) <-chan result {
	done := make(chan result, 1)
	go func() {
		st, err := o.Run(ctx)
		done <- result{st, err}
	}()
	return done
}

func wait(t *testing.T, done <-chan result) result {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
		return result{}
	}
}

func assertReleased(t *testing.T, h *harness) {
	t.Helper()
	got := h.closeOrder()
	if len(got) != 2 || got[0] != "model" || got[1] != "room" {
		t.Errorf("close order = %v, want [model room]", got)
	}
}

func TestRunCompletesFromSpokenSummary(t *testing.T) {
	h := newHarness()
	h.join()
	s := h.opener.Session
	s.Say(conversation.RoleAgent, "Welcome to FiveStars Pizzeria. What can I get you?")
	s.Push(conversation.Event{Kind: conversation.EventAudio, Audio: []byte{1, 2, 3, 4}})
	s.Say(conversation.RoleUser, "A large cheese pizza please.")
	s.Say(conversation.RoleAgent, `Your order: one 16" Cheese pizza, total $13.99`)

	o := h.orchestrator(t)
	st, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if st.Phase != PhaseCompleted {
		t.Fatalf("Phase = %s, want completed", st.Phase)
	}
	if st.Order == nil {
		t.Fatal("Order = nil")
	}
	if st.Order.Total != 1399 {
		t.Errorf("Total = %d, want 1399", st.Order.Total)
	}
	if st.Order.SessionID != o.ID() {
		t.Errorf("SessionID = %q, want %q", st.Order.SessionID, o.ID())
	}
	if st.Ack == nil || st.Ack.Sink != "recorder" {
		t.Errorf("Ack = %+v", st.Ack)
	}
	if st.Participant != "customer" {
		t.Errorf("Participant = %q", st.Participant)
	}
	if len(st.Transcript) != 3 {
		t.Errorf("len(Transcript) = %d, want 3", len(st.Transcript))
	}
	if st.EndedAt.Before(st.StartedAt) {
		t.Error("EndedAt before StartedAt")
	}
	if got := h.sink.Submitted(); len(got) != 1 {
		t.Fatalf("dispatched %d orders, want 1", len(got))
	}

	msgs := s.Messages()
	if len(msgs) == 0 || msgs[0].Text != DefaultKickoff || msgs[0].Role != conversation.RoleSystem || !msgs[0].Respond {
		t.Errorf("first message = %+v, want kickoff", msgs)
	}
	if !strings.Contains(h.opener.Instructions, "FiveStars") {
		t.Error("instructions do not name the store")
	}
	if h.transport.Policies[0] != room.SubscribeAudioOnly {
		t.Errorf("policy = %v, want audio only", h.transport.Policies[0])
	}
	if len(h.transport.Conn.Published) != 1 {
		t.Errorf("published %d frames, want 1", len(h.transport.Conn.Published))
	}

	want := []Phase{PhaseConnecting, PhaseAwaitingParticipant, PhaseConversationActive, PhaseFinalizing, PhaseCompleted}
	got := h.phases()
	if len(got) != len(want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("phase[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	assertReleased(t, h)
}

func TestRunCompletesFromToolCall(t *testing.T) {
	h := newHarness()
	h.join()
	s := h.opener.Session
	s.Say(conversation.RoleUser, "Two large cheese pizzas with mushrooms, cash.")
	s.Push(conversation.Event{Kind: conversation.EventToolCall, Call: &conversation.ToolCall{
		ID:        "call-7",
		Name:      order.SubmitToolName,
		Arguments: `{"customer_name":"Ana","payment_method":"cash","items":[{"name":"Cheese","size":"large","quantity":2,"toppings":["Mushrooms"]}]}`,
	}})

	st, err := h.orchestrator(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if st.Phase != PhaseCompleted || st.Order == nil {
		t.Fatalf("Phase = %s, Order = %v", st.Phase, st.Order)
	}
	if st.Order.Customer.Name != "Ana" {
		t.Errorf("Customer.Name = %q", st.Order.Customer.Name)
	}
	if len(st.Order.Items) != 1 || st.Order.Items[0].Quantity != 2 {
		t.Errorf("Items = %+v", st.Order.Items)
	}

	out, ok := s.ToolResults["call-7"]
	if !ok {
		t.Fatal("no tool result for call-7")
	}
	if !strings.Contains(out, `"ok":true`) || !strings.Contains(out, st.Order.ID) {
		t.Errorf("tool result = %s", out)
	}
}

func TestUnknownToolCallIsAnswered(t *testing.T) {
	h := newHarness()
	h.join()
	s := h.opener.Session
	s.Push(conversation.Event{Kind: conversation.EventToolCall, Call: &conversation.ToolCall{ID: "c9", Name: "get_weather"}})
	s.Say(conversation.RoleAgent, `One 12" Cheese pizza, total $9.99`)

	st, err := h.orchestrator(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if st.Phase != PhaseCompleted {
		t.Errorf("Phase = %s", st.Phase)
	}
	out := s.ToolResults["c9"]
	if !strings.Contains(out, "unknown tool get_weather") {
		t.Errorf("tool result = %q", out)
	}
	if strings.Contains(out, `"ok":true`) {
		t.Errorf("unknown tool was acknowledged as the order: %q", out)
	}
	if len(s.ToolResults) != 1 {
		t.Errorf("tool results = %v, want only c9", s.ToolResults)
	}
}

func TestAPIErrorKeepsConversationActive(t *testing.T) {
	h := newHarness()
	h.join()
	s := h.opener.Session
	s.Push(conversation.Event{Kind: conversation.EventError, Err: conversation.NewAPIError(0, "conversation_already_has_active_response", "busy")})
	s.Push(conversation.Event{Kind: conversation.EventError, Err: conversation.NewAPIError(429, "rate_limit_exceeded", "slow down")})
	s.Say(conversation.RoleAgent, `One 12" Cheese pizza, total $9.99`)

	st, err := h.orchestrator(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if st.Phase != PhaseCompleted || st.Order == nil {
		t.Fatalf("Phase = %s, order = %v", st.Phase, st.Order)
	}
}

func TestQuestionKeepsConversationActive(t *testing.T) {
	h := newHarness()
	h.join()
	s := h.opener.Session
	s.Say(conversation.RoleAgent, "Welcome to FiveStars Pizzeria.")
	s.Say(conversation.RoleUser, "A large cheese pizza.")
	s.Say(conversation.RoleAgent, "Would you like any toppings?")

	asked := make(chan struct{})
	var once sync.Once
	o := h.orchestrator(t, WithObserver(func(u Update) {
		h.observe(u)
		if u.Kind == UpdateTurn && strings.HasSuffix(u.Turn.Content, "?") {
			once.Do(func() { close(asked) })
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, o)

	select {
	case <-asked:
	case <-time.After(5 * time.Second):
		t.Fatal("question never reached the transcript")
	}
	if phase := o.Snapshot().Phase; phase != PhaseConversationActive {
		t.Fatalf("Phase = %s, want conversation_active", phase)
	}

	cancel()
	r := wait(t, done)
	if !errors.Is(r.err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", r.err)
	}
	if r.state.Phase != PhaseFailed || r.state.Order != nil {
		t.Errorf("Phase = %s, Order = %v", r.state.Phase, r.state.Order)
	}
	if len(h.sink.Submitted()) != 0 {
		t.Error("cancelled session dispatched an order")
	}
	msgs := s.Messages()
	if last := msgs[len(msgs)-1]; last.Text != DefaultGoodbye {
		t.Errorf("last message = %q, want goodbye", last.Text)
	}
	assertReleased(t, h)
}

func TestCustomerAudioIsForwarded(t *testing.T) {
	h := newHarness()
	h.join()
	forwarded := make(chan []byte, 1)
	h.opener.Session.SendAudioFunc = func(pcm []byte) error {
		select {
		case forwarded <- pcm:
		default:
		}
		return nil
	}
	h.transport.Conn.Speak([]byte{9, 9})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, h.orchestrator(t))

	select {
	case pcm := <-forwarded:
		if len(pcm) != 2 || pcm[0] != 9 {
			t.Errorf("forwarded %v", pcm)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("customer audio not forwarded")
	}
	cancel()
	wait(t, done)
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness)
		opts      []Option
		wantKind  Kind
		wantIs    error
		wantPhase Phase
		opened    bool
		goodbye   bool
	}{
		{
			name:      "transport connect",
			setup:     func(h *harness) { h.transport.ConnectErr = room.ErrConnect },
			wantKind:  KindTransportConnect,
			wantIs:    room.ErrConnect,
			wantPhase: PhaseConnecting,
		},
		{
			name:      "no participant",
			opts:      []Option{WithParticipantTimeout(20 * time.Millisecond)},
			wantKind:  KindParticipantTimeout,
			wantIs:    room.ErrParticipantTimeout,
			wantPhase: PhaseAwaitingParticipant,
		},
		{
			name: "room gone while waiting",
			setup: func(h *harness) {
				h.transport.Conn.WaitErr = room.ErrDisconnected
			},
			wantKind:  KindDisconnected,
			wantIs:    room.ErrDisconnected,
			wantPhase: PhaseAwaitingParticipant,
		},
		{
			name: "model open",
			setup: func(h *harness) {
				h.join()
				h.opener.OpenErr = errors.New("dial refused")
			},
			wantKind:  KindModelOpen,
			wantPhase: PhaseAwaitingParticipant,
			opened:    true,
		},
		{
			name: "model connection lost",
			setup: func(h *harness) {
				h.join()
				h.opener.Session.Push(conversation.Event{Kind: conversation.EventError, Err: conversation.NewConnectionError("read failed", errors.New("connection reset"))})
			},
			wantKind:  KindStream,
			wantPhase: PhaseConversationActive,
			opened:    true,
			goodbye:   true,
		},
		{
			name: "model stream ends",
			setup: func(h *harness) {
				h.join()
				h.opener.Session.Push(conversation.Event{Kind: conversation.EventDone})
			},
			wantKind:  KindStream,
			wantPhase: PhaseConversationActive,
			opened:    true,
			goodbye:   true,
		},
		{
			name: "item not on the menu",
			setup: func(h *harness) {
				h.join()
				h.opener.Session.Push(conversation.Event{Kind: conversation.EventToolCall, Call: &conversation.ToolCall{
					ID:        "call-1",
					Name:      order.SubmitToolName,
					Arguments: `{"items":[{"name":"Margherita","size":"16\"","quantity":1}]}`,
				}})
			},
			wantKind:  KindExtraction,
			wantIs:    order.ErrExtraction,
			wantPhase: PhaseFinalizing,
			opened:    true,
			goodbye:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			if tt.setup != nil {
				tt.setup(h)
			}
			st, err := h.orchestrator(t, tt.opts...).Run(context.Background())

			if err == nil {
				t.Fatal("expected error")
			}
			if KindOf(err) != tt.wantKind {
				t.Errorf("KindOf(err) = %s, want %s", KindOf(err), tt.wantKind)
			}
			if !errors.Is(err, kindSentinels[tt.wantKind]) {
				t.Errorf("errors.Is(err, %v) = false", kindSentinels[tt.wantKind])
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("errors.Is(err, %v) = false; err = %v", tt.wantIs, err)
			}
			var se *Error
			if errors.As(err, &se) && se.Phase != tt.wantPhase {
				t.Errorf("failed in %s, want %s", se.Phase, tt.wantPhase)
			}
			if st.Phase != PhaseFailed {
				t.Errorf("Phase = %s, want failed", st.Phase)
			}
			if st.Order != nil {
				t.Errorf("Order = %+v, want nil", st.Order)
			}
			if n := len(h.sink.Submitted()); n != 0 {
				t.Errorf("dispatched %d orders", n)
			}
			if got := h.opener.OpenCalls > 0; got != tt.opened {
				t.Errorf("model opened = %v, want %v", got, tt.opened)
			}

			msgs := h.opener.Session.Messages()
			sentGoodbye := len(msgs) > 0 && msgs[len(msgs)-1].Text == DefaultGoodbye
			if sentGoodbye != tt.goodbye {
				t.Errorf("goodbye sent = %v, want %v", sentGoodbye, tt.goodbye)
			}

			if tt.wantKind != KindTransportConnect && !h.transport.Conn.Closed() {
				t.Error("room connection left open")
			}
			if tt.goodbye && !h.opener.Session.Closed() {
				t.Error("model session left open")
			}
		})
	}
}

func TestExtractionFailureAnswersToolCall(t *testing.T) {
	h := newHarness()
	h.join()
	h.opener.Session.Push(conversation.Event{Kind: conversation.EventToolCall, Call: &conversation.ToolCall{
		ID:        "call-1",
		Name:      order.SubmitToolName,
		Arguments: `{"items":[{"name":"Margherita","size":"16\"","quantity":1}]}`,
	}})

	if _, err := h.orchestrator(t).Run(context.Background()); !errors.Is(err, ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
	if out := h.opener.Session.ToolResults["call-1"]; !strings.Contains(out, `"ok":false`) {
		t.Errorf("tool result = %q", out)
	}
}

func TestDisconnectDuringConversation(t *testing.T) {
	h := newHarness()
	h.join()
	h.opener.Session.Say(conversation.RoleAgent, "Welcome to FiveStars Pizzeria.")

	o := h.orchestrator(t, WithObserver(func(u Update) {
		h.observe(u)
		if u.Kind == UpdateTurn {
			h.transport.Conn.Disconnect()
		}
	}))
	st, err := o.Run(context.Background())

	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("err = %v, want ErrDisconnected", err)
	}
	if !errors.Is(err, room.ErrDisconnected) {
		t.Errorf("cause lost: %v", err)
	}
	if st.Phase != PhaseFailed {
		t.Errorf("Phase = %s", st.Phase)
	}
	assertReleased(t, h)
}

func TestCancelledBeforeRun(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st, err := h.orchestrator(t).Run(ctx)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if st.Phase != PhaseFailed {
		t.Errorf("Phase = %s", st.Phase)
	}
	if h.opener.OpenCalls != 0 {
		t.Error("model opened after cancellation")
	}
}

func TestDispatchFailureStillCompletes(t *testing.T) {
	h := newHarness()
	h.join()
	h.sink.Err = errors.New("kitchen offline")
	h.opener.Session.Say(conversation.RoleAgent, `One 12" Cheese pizza, total $9.99`)

	st, err := h.orchestrator(t).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if st.Phase != PhaseCompleted || st.Order == nil {
		t.Fatalf("Phase = %s, Order = %v", st.Phase, st.Order)
	}
	if !errors.Is(st.DispatchErr, ErrDispatch) {
		t.Errorf("DispatchErr = %v, want ErrDispatch", st.DispatchErr)
	}
	if !errors.Is(st.DispatchErr, order.ErrDispatch) {
		t.Errorf("DispatchErr does not wrap order.ErrDispatch: %v", st.DispatchErr)
	}
	if st.Ack != nil {
		t.Errorf("Ack = %+v, want nil", st.Ack)
	}
	if len(h.sink.Submitted()) != 1 {
		t.Error("order was not handed to the dispatcher")
	}
	assertReleased(t, h)
}

func TestRunTwice(t *testing.T) {
	h := newHarness()
	h.transport.ConnectErr = room.ErrConnect
	o := h.orchestrator(t)

	if _, err := o.Run(context.Background()); err == nil {
		t.Fatal("expected first run to fail")
	}
	if _, err := o.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRun", err)
	}
	if h.transport.ConnectCalls != 1 {
		t.Errorf("ConnectCalls = %d, want 1", h.transport.ConnectCalls)
	}
}

func TestNewValidates(t *testing.T) {
	cat := catalog.FiveStars()
	if _, err := New(nil, conversation.NewMock(), cat, &order.Recorder{}, WithRoom("r")); err == nil {
		t.Error("expected error for nil transport")
	}
	if _, err := New(room.NewMock(), conversation.NewMock(), cat, &order.Recorder{}); err == nil {
		t.Error("expected error for missing room")
	}
	if _, err := New(room.NewMock(), conversation.NewMock(), cat, &order.Recorder{}, WithRoom("r"), WithKickoff("")); err == nil {
		t.Error("expected error for empty kickoff")
	}
}

func TestErrorMatching(t *testing.T) {
	err := &Error{Kind: KindExtraction, Phase: PhaseFinalizing, SessionID: "s1", Err: order.ErrExtraction}

	if !errors.Is(err, ErrExtraction) {
		t.Error("errors.Is(err, ErrExtraction) = false")
	}
	if errors.Is(err, ErrDispatch) {
		t.Error("errors.Is(err, ErrDispatch) = true")
	}
	if !errors.Is(err, order.ErrExtraction) {
		t.Error("cause not unwrapped")
	}
	if KindOf(err) != KindExtraction {
		t.Errorf("KindOf = %s", KindOf(err))
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Error("KindOf(plain) != 0")
	}
	if !strings.Contains(err.Error(), "ExtractionError in finalizing") {
		t.Errorf("Error() = %q", err.Error())
	}
}
