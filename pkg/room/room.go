// Package room connects the agent to a real-time audio room.
//
// A Transport joins a room and returns a Connection. The Connection waits
// for one remote participant, delivers that participant's audio as PCM16
// mono chunks, and publishes the agent's audio back into the room.
package room

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the room package.
var (
	// ErrConnect indicates the room could not be joined.
	ErrConnect = errors.New("room: connect failed")

	// ErrParticipantTimeout indicates nobody joined before the deadline.
	ErrParticipantTimeout = errors.New("room: timed out waiting for participant")

	// ErrDisconnected indicates the room or participant went away.
	ErrDisconnected = errors.New("room: disconnected")

	// ErrClosed indicates the connection was closed locally.
	ErrClosed = errors.New("room: connection closed")
)

// Policy selects which remote tracks the agent subscribes to.
type Policy struct {
	Audio bool
	Video bool
}

// SubscribeAudioOnly subscribes to audio tracks and never to video.
var SubscribeAudioOnly = Policy{Audio: true}

// String returns a readable policy.
func (p Policy) String() string {
	switch {
	case p.Audio && p.Video:
		return "audio+video"
	case p.Audio:
		return "audio_only"
	case p.Video:
		return "video_only"
	default:
		return "none"
	}
}

// Participant is a remote member of the room.
type Participant struct {
	ID       string `json:"id"`
	Identity string `json:"identity"`
	JoinedAt time.Time
}

// Transport joins rooms.
type Transport interface {
	// Connect joins roomID with the given subscription policy.
	Connect(ctx context.Context, roomID string, policy Policy) (Connection, error)
}

// Connection is a joined room.
type Connection interface {
	// WaitForParticipant blocks until a remote participant joins, timeout
	// elapses (ErrParticipantTimeout) or ctx is done.
	WaitForParticipant(ctx context.Context, timeout time.Duration) (Participant, error)

	// Audio delivers the participant's audio as PCM16 mono chunks. The
	// channel is closed when the connection ends.
	Audio() <-chan []byte

	// Publish plays PCM16 mono agent audio into the room.
	Publish(pcm []byte) error

	// Disconnected is closed when the room or the participant goes away.
	Disconnected() <-chan struct{}

	// Close leaves the room. It is safe to call more than once.
	Close() error
}

// ConnectError wraps a failure to join a room.
type ConnectError struct {
	Room   string
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("room: connect %s: %s: %v", e.Room, e.Reason, e.Cause)
	}
	return fmt.Sprintf("room: connect %s: %s", e.Room, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectError) Unwrap() error {
	return e.Cause
}

// Is makes every ConnectError match ErrConnect.
func (e *ConnectError) Is(target error) bool {
	return target == ErrConnect
}

// Ensure the implementations satisfy the interfaces.
var (
	_ Transport  = (*WebRTC)(nil)
	_ Connection = (*webrtcConn)(nil)
	_ Transport  = (*Mock)(nil)
	_ Connection = (*MockConnection)(nil)
)
