package session

import (
	"time"

	"github.com/teslashibe/go-fivestars/pkg/conversation"
	"github.com/teslashibe/go-fivestars/pkg/order"
)

// State is everything one session knows. Order is only set once Phase is
// Completed.
type State struct {
	ID          string                  `json:"id"`
	Room        string                  `json:"room"`
	Phase       Phase                   `json:"phase"`
	Participant string                  `json:"participant,omitempty"`
	Transcript  conversation.Transcript `json:"transcript"`
	Order       *order.Order            `json:"order,omitempty"`
	Ack         *order.Ack              `json:"ack,omitempty"`
	DispatchErr error                   `json:"-"`
	Err         error                   `json:"-"`
	StartedAt   time.Time               `json:"started_at"`
	EndedAt     time.Time               `json:"ended_at"`
}

// clone copies the state so callers can read it while the session runs.
func (s State) clone() State {
	s.Transcript = append(conversation.Transcript(nil), s.Transcript...)
	return s
}

// UpdateKind tags an Update.
type UpdateKind string

const (
	UpdatePhase    UpdateKind = "phase"
	UpdateTurn     UpdateKind = "turn"
	UpdateOrder    UpdateKind = "order"
	UpdateDispatch UpdateKind = "dispatch"
)

// Update is a lifecycle notification for observers.
type Update struct {
	SessionID string             `json:"session_id"`
	Room      string             `json:"room"`
	Kind      UpdateKind         `json:"kind"`
	Phase     Phase              `json:"phase"`
	Turn      *conversation.Turn `json:"turn,omitempty"`
	Order     *order.Order       `json:"order,omitempty"`
	Ack       *order.Ack         `json:"ack,omitempty"`
	Error     string             `json:"error,omitempty"`
	At        time.Time          `json:"at"`
}

// Observer receives Updates from the session goroutine.
type Observer func(Update)
