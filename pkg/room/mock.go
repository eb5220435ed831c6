package room

import (
	"context"
	"sync"
	"time"
)

// Mock is a scripted Transport for testing.
type Mock struct {
	mu sync.Mutex

	// ConnectErr, when set, is returned by Connect.
	ConnectErr error

	// Conn is handed out by Connect.
	Conn *MockConnection

	// Captured calls for assertions
	ConnectCalls int
	Rooms        []string
	Policies     []Policy
}

// NewMock creates a Mock with a fresh connection.
func NewMock() *Mock {
	return &Mock{Conn: NewMockConnection()}
}

// Connect implements Transport.
func (m *Mock) Connect(ctx context.Context, roomID string, policy Policy) (Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ConnectCalls++
	m.Rooms = append(m.Rooms, roomID)
	m.Policies = append(m.Policies, policy)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.ConnectErr != nil {
		return nil, m.ConnectErr
	}
	return m.Conn, nil
}

// MockConnection is an in-memory Connection.
type MockConnection struct {
	mu sync.Mutex

	audio        chan []byte
	joined       chan Participant
	disconnected chan struct{}
	discOnce     sync.Once
	closeOnce    sync.Once

	// WaitErr, when set, is returned by WaitForParticipant.
	WaitErr error

	// OnClose runs on every Close call.
	OnClose func()

	// Captured calls for assertions
	Published  [][]byte
	CloseCalls int
	Waits      []time.Duration
}

// NewMockConnection creates a MockConnection.
func NewMockConnection() *MockConnection {
	return &MockConnection{
		audio:        make(chan []byte, 64),
		joined:       make(chan Participant, 1),
		disconnected: make(chan struct{}),
	}
}

// Join simulates a participant joining.
func (c *MockConnection) Join(p Participant) {
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	select {
	case c.joined <- p:
	default:
	}
}

// Speak queues customer audio.
func (c *MockConnection) Speak(pcm []byte) {
	c.audio <- pcm
}

// Disconnect simulates the room going away.
func (c *MockConnection) Disconnect() {
	c.discOnce.Do(func() { close(c.disconnected) })
}

// WaitForParticipant implements Connection.
func (c *MockConnection) WaitForParticipant(ctx context.Context, timeout time.Duration) (Participant, error) {
	c.mu.Lock()
	c.Waits = append(c.Waits, timeout)
	waitErr := c.WaitErr
	c.mu.Unlock()

	if waitErr != nil {
		return Participant{}, waitErr
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p := <-c.joined:
		return p, nil
	case <-timer.C:
		return Participant{}, ErrParticipantTimeout
	case <-c.disconnected:
		return Participant{}, ErrDisconnected
	case <-ctx.Done():
		return Participant{}, ctx.Err()
	}
}

// Audio implements Connection.
func (c *MockConnection) Audio() <-chan []byte {
	return c.audio
}

// Publish implements Connection.
func (c *MockConnection) Publish(pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CloseCalls > 0 {
		return ErrClosed
	}
	c.Published = append(c.Published, pcm)
	return nil
}

// Disconnected implements Connection.
func (c *MockConnection) Disconnected() <-chan struct{} {
	return c.disconnected
}

// Close implements Connection.
func (c *MockConnection) Close() error {
	c.mu.Lock()
	c.CloseCalls++
	onClose := c.OnClose
	c.mu.Unlock()
	if onClose != nil {
		onClose()
	}
	c.closeOnce.Do(func() { close(c.audio) })
	c.Disconnect()
	return nil
}

// Closed reports whether Close has been called.
func (c *MockConnection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CloseCalls > 0
}
