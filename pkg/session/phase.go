package session

import "fmt"

// Phase is a lifecycle stage of one session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseAwaitingParticipant
	PhaseConversationActive
	PhaseFinalizing
	PhaseCompleted
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseIdle:                "idle",
	PhaseConnecting:          "connecting",
	PhaseAwaitingParticipant: "awaiting_participant",
	PhaseConversationActive:  "conversation_active",
	PhaseFinalizing:          "finalizing",
	PhaseCompleted:           "completed",
	PhaseFailed:              "failed",
}

// String returns the snake_case phase name.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// next lists the legal forward edges. Failed is reachable from every
// non-terminal phase and is not listed.
var next = map[Phase]Phase{
	PhaseIdle:                PhaseConnecting,
	PhaseConnecting:          PhaseAwaitingParticipant,
	PhaseAwaitingParticipant: PhaseConversationActive,
	PhaseConversationActive:  PhaseFinalizing,
	PhaseFinalizing:          PhaseCompleted,
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to Phase) bool {
	if from.Terminal() {
		return false
	}
	if to == PhaseFailed {
		return true
	}
	n, ok := next[from]
	return ok && n == to
}
