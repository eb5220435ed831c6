// Package session drives one order-taking call from room join to order
// dispatch.
//
// An Orchestrator owns a single State and moves it through
//
//	Idle → Connecting → AwaitingParticipant → ConversationActive → Finalizing → Completed
//
// with Failed reachable from every non-terminal phase. The room connection
// and model session are closed on every exit path, model first.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-fivestars/pkg/catalog"
	"github.com/teslashibe/go-fivestars/pkg/conversation"
	"github.com/teslashibe/go-fivestars/pkg/order"
	"github.com/teslashibe/go-fivestars/pkg/room"
)

// ErrAlreadyRun is returned when Run is called twice.
var ErrAlreadyRun = errors.New("session: orchestrator already ran")

// Orchestrator runs one session.
type Orchestrator struct {
	transport  room.Transport
	opener     conversation.Opener
	catalog    *catalog.Catalog
	extractor  *order.Extractor
	dispatcher order.Dispatcher

	config Config
	policy CompletionPolicy
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	signal Signal

	started atomic.Bool
	conn    room.Connection
	sess    conversation.Session
	pumps   sync.WaitGroup
}

// New creates an Orchestrator for one room.
func New(transport room.Transport, opener conversation.Opener, cat *catalog.Catalog, dispatcher order.Dispatcher, opts ...Option) (*Orchestrator, error) {
	if transport == nil || opener == nil || cat == nil || dispatcher == nil {
		return nil, errors.New("session: transport, opener, catalog and dispatcher are required")
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy := cfg.Policy
	if policy == nil {
		policy = DefaultPolicy(cat)
	}

	id := uuid.NewString()
	return &Orchestrator{
		transport:  transport,
		opener:     opener,
		catalog:    cat,
		extractor:  order.NewExtractor(cat),
		dispatcher: dispatcher,
		config:     cfg,
		policy:     policy,
		logger:     cfg.Logger.With("component", "session", "session", id, "room", cfg.Room),
		state: State{
			ID:    id,
			Room:  cfg.Room,
			Phase: PhaseIdle,
		},
	}, nil
}

// ID returns the session identifier.
func (o *Orchestrator) ID() string {
	return o.state.ID
}

// Snapshot returns a copy of the current state. It is safe to call from
// any goroutine.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Run drives the session to a terminal phase and returns the final state.
// The returned error is a *Error when the session failed. A dispatch
// failure does not fail the session; it is reported in State.DispatchErr.
func (o *Orchestrator) Run(ctx context.Context) (State, error) {
	if !o.started.CompareAndSwap(false, true) {
		return o.Snapshot(), ErrAlreadyRun
	}

	o.mu.Lock()
	o.state.StartedAt = time.Now()
	o.mu.Unlock()

	err := o.run(ctx)
	if err != nil {
		o.fail(ctx, err)
	}
	o.release()

	o.mu.Lock()
	o.state.EndedAt = time.Now()
	final := o.state.clone()
	o.mu.Unlock()

	if err != nil {
		return final, final.Err
	}
	return final, nil
}

func (o *Orchestrator) run(ctx context.Context) error {
	if err := o.transition(PhaseConnecting); err != nil {
		return err
	}
	conn, err := o.transport.Connect(ctx, o.config.Room, room.SubscribeAudioOnly)
	if err != nil {
		return o.errorf(ctx, KindTransportConnect, err)
	}
	o.conn = conn

	if err := o.transition(PhaseAwaitingParticipant); err != nil {
		return err
	}
	p, err := conn.WaitForParticipant(ctx, o.config.ParticipantTimeout)
	if err != nil {
		switch {
		case errors.Is(err, room.ErrParticipantTimeout):
			return o.errorf(ctx, KindParticipantTimeout, err)
		case errors.Is(err, room.ErrDisconnected):
			return o.errorf(ctx, KindDisconnected, err)
		default:
			return o.errorf(ctx, KindTransportConnect, err)
		}
	}
	o.mu.Lock()
	o.state.Participant = p.Identity
	o.mu.Unlock()
	o.logger.Info("participant joined", "participant", p.Identity, "participant_id", p.ID)

	instructions := o.catalog.Instructions(o.config.Locale, o.config.SubmitTool)
	sess, err := o.opener.Open(ctx, instructions, o.config.Modalities)
	if err != nil {
		return o.errorf(ctx, KindModelOpen, err)
	}
	o.sess = sess

	if err := o.transition(PhaseConversationActive); err != nil {
		return err
	}
	if err := sess.Send(ctx, conversation.Message{
		Role:    conversation.RoleSystem,
		Text:    o.config.Kickoff,
		Respond: true,
	}); err != nil {
		return o.errorf(ctx, KindStream, err)
	}

	loopCtx, cancel := context.WithCancelCause(ctx)
	o.startPumps(loopCtx, cancel)
	call, err := o.converse(loopCtx)
	cancel(nil)
	o.pumps.Wait()
	if err != nil {
		return err
	}

	return o.finalize(ctx, call)
}

// converse consumes the model stream until the completion policy fires.
// It returns the tool call that completed the order, if any.
func (o *Orchestrator) converse(ctx context.Context) (*conversation.ToolCall, error) {
	for {
		ev, err := o.sess.Next(ctx)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		if err != nil {
			if ctx.Err() != nil {
				if errors.Is(context.Cause(ctx), room.ErrDisconnected) {
					return nil, o.errorf(ctx, KindDisconnected, context.Cause(ctx))
				}
				return nil, o.errorf(ctx, KindCancelled, ctx.Err())
			}
			return nil, o.errorf(ctx, KindStream, err)
		}

		switch ev.Kind {
		case conversation.EventAudio:
			if err := o.conn.Publish(ev.Audio); err != nil {
				o.logger.Debug("publish audio failed", "error", err)
			}
			continue

		case conversation.EventUtterance:
			if !ev.Final {
				continue
			}
			o.appendTurn(ev)

		case conversation.EventToolCall:
			if ev.Call == nil {
				continue
			}
			o.logger.Info("tool call", "tool", ev.Call.Name, "call_id", ev.Call.ID)
			o.mu.Lock()
			o.signal.Call = ev.Call
			o.mu.Unlock()

		case conversation.EventError:
			if conversation.IsNotConnected(ev.Err) {
				return nil, o.errorf(ctx, KindStream, ev.Err)
			}
			o.logger.Warn("model error", "error", ev.Err, "rate_limited", conversation.IsRateLimited(ev.Err))
			continue

		case conversation.EventDone:
			return nil, o.errorf(ctx, KindStream, errors.New("model stream ended"))
		}

		o.mu.Lock()
		transcript, sig := o.state.Transcript, o.signal
		o.mu.Unlock()

		if o.policy.Complete(transcript, sig) {
			call := sig.Call
			if call != nil && call.Name != o.config.SubmitTool {
				call = nil
			}
			o.logger.Info("order complete", "turns", len(transcript), "tool_call", call != nil)
			return call, nil
		}
		if ev.Kind == conversation.EventToolCall {
			o.rejectToolCall(ev.Call)
			o.mu.Lock()
			o.signal.Call = nil
			o.mu.Unlock()
		}
	}
}

// finalize extracts and dispatches the order.
func (o *Orchestrator) finalize(ctx context.Context, call *conversation.ToolCall) error {
	if err := o.transition(PhaseFinalizing); err != nil {
		return err
	}

	o.mu.Lock()
	transcript := append(conversation.Transcript(nil), o.state.Transcript...)
	o.mu.Unlock()

	ord, err := o.extractor.Extract(o.state.ID, transcript, call)
	if err != nil {
		if call != nil {
			o.submitToolResult(call.ID, map[string]any{"ok": false, "error": err.Error()})
		}
		return o.errorf(ctx, KindExtraction, err)
	}

	o.mu.Lock()
	if !CanTransition(o.state.Phase, PhaseCompleted) {
		phase := o.state.Phase
		o.mu.Unlock()
		return o.errorf(ctx, KindInternal, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, phase, PhaseCompleted))
	}
	o.state.Phase = PhaseCompleted
	o.state.Order = ord
	o.mu.Unlock()

	o.logger.Info("phase", "to", PhaseCompleted, "order_id", ord.ID, "items", len(ord.Items), "total", ord.Total.String())
	o.notify(Update{Kind: UpdateOrder, Phase: PhaseCompleted, Order: ord})

	ack, err := o.dispatcher.Submit(ctx, *ord)
	if err != nil {
		derr := &Error{Kind: KindDispatch, Phase: PhaseCompleted, SessionID: o.state.ID, Err: err}
		o.mu.Lock()
		o.state.DispatchErr = derr
		o.mu.Unlock()
		o.logger.Error("dispatch failed", "order_id", ord.ID, "error", err)
		o.notify(Update{Kind: UpdateDispatch, Phase: PhaseCompleted, Error: derr.Error()})
	} else {
		o.mu.Lock()
		o.state.Ack = &ack
		o.mu.Unlock()
		o.logger.Info("order dispatched", "order_id", ack.OrderID, "sink", ack.Sink, "reference", ack.Reference)
		o.notify(Update{Kind: UpdateDispatch, Phase: PhaseCompleted, Ack: &ack})
	}

	if call != nil {
		result := map[string]any{"ok": true, "order_id": ord.ID, "total": ord.Total.String()}
		if err != nil {
			result["dispatch_error"] = "the kitchen did not confirm the order yet"
		}
		o.submitToolResult(call.ID, result)
	}
	o.linger(ctx)
	return nil
}

func (o *Orchestrator) appendTurn(ev conversation.Event) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	o.mu.Lock()
	before := len(o.state.Transcript)
	o.state.Transcript = o.state.Transcript.Append(ev.Role, ev.Text, at)
	added := len(o.state.Transcript) > before
	var turn conversation.Turn
	if added {
		turn = o.state.Transcript[len(o.state.Transcript)-1]
	}
	o.mu.Unlock()

	if added {
		o.logger.Debug("turn", "role", turn.Role, "text", turn.Content)
		o.notify(Update{Kind: UpdateTurn, Phase: PhaseConversationActive, Turn: &turn})
	}
}

// rejectToolCall answers a tool call the policy did not accept so the
// model does not wait on it.
func (o *Orchestrator) rejectToolCall(call *conversation.ToolCall) {
	if call.Name == o.config.SubmitTool {
		o.submitToolResult(call.ID, map[string]any{"ok": false, "error": "order not confirmed yet"})
		return
	}
	o.submitToolResult(call.ID, map[string]any{"ok": false, "error": "unknown tool " + call.Name})
}

func (o *Orchestrator) submitToolResult(callID string, result map[string]any) {
	out, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := o.sess.SubmitToolResult(callID, string(out)); err != nil {
		o.logger.Warn("submit tool result failed", "call_id", callID, "error", err)
	}
}

// startPumps forwards customer audio to the model and cancels ctx with
// room.ErrDisconnected when the room goes away.
func (o *Orchestrator) startPumps(ctx context.Context, cancel context.CancelCauseFunc) {
	o.pumps.Add(2)

	go func() {
		defer o.pumps.Done()
		audio := o.conn.Audio()
		for {
			select {
			case <-ctx.Done():
				return
			case pcm, ok := <-audio:
				if !ok {
					return
				}
				if err := o.sess.SendAudio(pcm); err != nil {
					o.logger.Debug("forward audio failed", "error", err)
				}
			}
		}
	}()

	go func() {
		defer o.pumps.Done()
		select {
		case <-ctx.Done():
		case <-o.conn.Disconnected():
			cancel(room.ErrDisconnected)
		}
	}()
}

// linger relays agent audio for a short while so the last response is
// heard. No transcript changes happen here.
func (o *Orchestrator) linger(ctx context.Context) {
	if o.config.Linger <= 0 || o.sess == nil || o.conn == nil || ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, o.config.Linger)
	defer cancel()

	for {
		select {
		case <-o.conn.Disconnected():
			return
		default:
		}
		ev, err := o.sess.Next(ctx)
		if err != nil {
			return
		}
		switch ev.Kind {
		case conversation.EventAudio:
			_ = o.conn.Publish(ev.Audio)
		case conversation.EventDone, conversation.EventError:
			return
		}
	}
}

// fail moves the session to Failed after saying goodbye.
func (o *Orchestrator) fail(ctx context.Context, err error) {
	var se *Error
	if !errors.As(err, &se) {
		se = &Error{Kind: KindInternal, Phase: o.Snapshot().Phase, SessionID: o.state.ID, Err: err}
	}

	if o.sess != nil && o.config.Goodbye != "" {
		gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.GoodbyeTimeout)
		if serr := o.sess.Send(gctx, conversation.Message{
			Role:    conversation.RoleSystem,
			Text:    o.config.Goodbye,
			Respond: true,
		}); serr != nil {
			o.logger.Warn("goodbye failed", "error", serr)
		}
		cancel()
		if se.Kind != KindDisconnected && se.Kind != KindCancelled {
			o.linger(ctx)
		}
	}

	o.mu.Lock()
	if !o.state.Phase.Terminal() {
		o.state.Phase = PhaseFailed
	}
	o.state.Err = se
	o.mu.Unlock()

	o.logger.Error("session failed", "phase", se.Phase, "kind", se.Kind, "error", se.Err)
	o.notify(Update{Kind: UpdatePhase, Phase: PhaseFailed, Error: se.Error()})
}

// release closes the model session and then the room connection.
func (o *Orchestrator) release() {
	if o.sess != nil {
		if err := o.sess.Close(); err != nil {
			o.logger.Debug("close model session", "error", err)
		}
	}
	if o.conn != nil {
		if err := o.conn.Close(); err != nil {
			o.logger.Debug("close room", "error", err)
		}
	}
}

func (o *Orchestrator) transition(to Phase) error {
	o.mu.Lock()
	from := o.state.Phase
	if !CanTransition(from, to) {
		o.mu.Unlock()
		return &Error{
			Kind:      KindInternal,
			Phase:     from,
			SessionID: o.state.ID,
			Err:       fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to),
		}
	}
	o.state.Phase = to
	o.mu.Unlock()

	o.logger.Info("phase", "from", from, "to", to)
	o.notify(Update{Kind: UpdatePhase, Phase: to})
	return nil
}

// errorf builds a session error in the current phase. A cancelled ctx
// always reports KindCancelled.
func (o *Orchestrator) errorf(ctx context.Context, kind Kind, err error) error {
	if ctx.Err() != nil && kind != KindDisconnected {
		kind = KindCancelled
	}
	o.mu.Lock()
	phase := o.state.Phase
	o.mu.Unlock()
	return &Error{Kind: kind, Phase: phase, SessionID: o.state.ID, Err: err}
}

func (o *Orchestrator) notify(u Update) {
	if o.config.Observer == nil {
		return
	}
	u.SessionID = o.state.ID
	u.Room = o.state.Room
	if u.At.IsZero() {
		u.At = time.Now()
	}
	o.config.Observer(u)
}
