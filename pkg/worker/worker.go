// Package worker runs order-taking sessions as jobs, one per room, and
// keeps a status snapshot of each for the HTTP surface.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-fivestars/pkg/session"
)

// Errors returned by Pool.Start.
var (
	ErrRoomBusy = errors.New("worker: room already has an active session")
	ErrFull     = errors.New("worker: session limit reached")
	ErrStopped  = errors.New("worker: pool is shut down")
)

// Factory builds the orchestrator for one room. The observer must be
// installed on the orchestrator so the pool can track it.
type Factory func(room string, observer session.Observer) (*session.Orchestrator, error)

// Status is a point-in-time view of one session.
type Status struct {
	ID            string        `json:"id"`
	Room          string        `json:"room"`
	Phase         session.Phase `json:"phase"`
	Participant   string        `json:"participant,omitempty"`
	OrderID       string        `json:"order_id,omitempty"`
	Total         string        `json:"total,omitempty"`
	Reference     string        `json:"reference,omitempty"`
	Error         string        `json:"error,omitempty"`
	DispatchError string        `json:"dispatch_error,omitempty"`
	Turns         int           `json:"turns"`
	StartedAt     time.Time     `json:"started_at"`
	EndedAt       time.Time     `json:"ended_at,omitempty"`
}

// Config configures a Pool.
type Config struct {
	// MaxSessions caps concurrent sessions. Zero means no limit.
	MaxSessions int

	// MaxHistory caps how many ended sessions keep their status; the
	// oldest are forgotten first. Zero means keep every one.
	MaxHistory int

	// OnUpdate receives every session update after the pool has
	// recorded it. It must not block.
	OnUpdate session.Observer

	Logger *slog.Logger
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxSessions: 32,
		MaxHistory:  256,
		Logger:      slog.Default(),
	}
}

// Option configures a Pool.
type Option func(*Config)

// WithMaxSessions sets the concurrency cap.
func WithMaxSessions(n int) Option {
	return func(c *Config) { c.MaxSessions = n }
}

// WithMaxHistory sets how many ended sessions stay queryable.
func WithMaxHistory(n int) Option {
	return func(c *Config) { c.MaxHistory = n }
}

// WithOnUpdate sets the update callback.
func WithOnUpdate(fn session.Observer) Option {
	return func(c *Config) { c.OnUpdate = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// Pool runs sessions concurrently. Sessions share no mutable state; the
// pool only holds their status snapshots.
type Pool struct {
	factory Factory
	config  Config
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	statuses map[string]*Status
	active   map[string]string // room -> session ID
	ended    []string          // ended session IDs, oldest first
	stopped  bool
}

// New creates a Pool.
func New(factory Factory, opts ...Option) *Pool {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		factory:  factory,
		config:   cfg,
		logger:   cfg.Logger.With("component", "worker"),
		ctx:      ctx,
		cancel:   cancel,
		statuses: make(map[string]*Status),
		active:   make(map[string]string),
	}
}

// Start launches a session for room and returns its ID.
func (p *Pool) Start(room string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.stopped:
		return "", ErrStopped
	case p.active[room] != "":
		return "", ErrRoomBusy
	case p.config.MaxSessions > 0 && len(p.active) >= p.config.MaxSessions:
		return "", ErrFull
	}

	orch, err := p.factory(room, p.observe)
	if err != nil {
		return "", err
	}

	id := orch.ID()
	p.statuses[id] = &Status{
		ID:        id,
		Room:      room,
		Phase:     session.PhaseIdle,
		StartedAt: time.Now(),
	}
	p.active[room] = id

	p.wg.Add(1)
	go p.run(orch, room)

	p.logger.Info("session started", "session", id, "room", room)
	return id, nil
}

func (p *Pool) run(orch *session.Orchestrator, room string) {
	defer p.wg.Done()

	st, err := orch.Run(p.ctx)

	p.mu.Lock()
	s := p.statuses[st.ID]
	s.Phase = st.Phase
	s.Participant = st.Participant
	s.Turns = len(st.Transcript)
	s.StartedAt = st.StartedAt
	s.EndedAt = st.EndedAt
	if st.Order != nil {
		s.OrderID = st.Order.ID
		s.Total = st.Order.Total.String()
	}
	if st.Ack != nil {
		s.Reference = st.Ack.Reference
	}
	if st.DispatchErr != nil {
		s.DispatchError = st.DispatchErr.Error()
	}
	if err != nil {
		s.Error = err.Error()
	}
	delete(p.active, room)
	p.ended = append(p.ended, st.ID)
	p.prune()
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("session ended", "session", st.ID, "room", room, "phase", st.Phase, "kind", session.KindOf(err))
		return
	}
	p.logger.Info("session ended", "session", st.ID, "room", room, "phase", st.Phase)
}

// prune forgets the oldest ended sessions beyond MaxHistory. p.mu must
// be held.
func (p *Pool) prune() {
	max := p.config.MaxHistory
	if max <= 0 || len(p.ended) <= max {
		return
	}
	evict := len(p.ended) - max
	for _, id := range p.ended[:evict] {
		delete(p.statuses, id)
	}
	p.ended = append([]string(nil), p.ended[evict:]...)
}

// observe records an update and forwards it.
func (p *Pool) observe(u session.Update) {
	p.mu.Lock()
	if s, ok := p.statuses[u.SessionID]; ok {
		s.Phase = u.Phase
		switch u.Kind {
		case session.UpdateTurn:
			s.Turns++
		case session.UpdateOrder:
			if u.Order != nil {
				s.OrderID = u.Order.ID
				s.Total = u.Order.Total.String()
			}
		case session.UpdateDispatch:
			if u.Ack != nil {
				s.Reference = u.Ack.Reference
			}
			s.DispatchError = u.Error
		case session.UpdatePhase:
			if u.Error != "" {
				s.Error = u.Error
			}
		}
	}
	p.mu.Unlock()

	if p.config.OnUpdate != nil {
		p.config.OnUpdate(u)
	}
}

// Get returns the status of a session.
func (p *Pool) Get(id string) (Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.statuses[id]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// List returns every known session, oldest first.
func (p *Pool) List() []Status {
	p.mu.Lock()
	out := make([]Status, 0, len(p.statuses))
	for _, s := range p.statuses {
		out = append(out, *s)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Active returns the number of running sessions.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Wait blocks until every started session has ended.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown stops accepting sessions, cancels running ones and waits for
// them to release their resources or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
