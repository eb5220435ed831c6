package conversation

import (
	"context"
	"sync"
	"time"
)

// Mock is a scripted Opener for testing. Each Open returns the same
// MockSession; tests feed events through Session.Push.
type Mock struct {
	mu sync.Mutex

	// OpenErr, when set, is returned by Open.
	OpenErr error

	// Session is the session handed out by Open.
	Session *MockSession

	// Captured calls for assertions
	OpenCalls    int
	Instructions string
	Modalities   []Modality
}

// NewMock creates a Mock with a fresh session.
func NewMock() *Mock {
	return &Mock{Session: NewMockSession()}
}

// Open implements Opener.
func (m *Mock) Open(ctx context.Context, instructions string, modalities []Modality) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.OpenCalls++
	m.Instructions = instructions
	m.Modalities = append([]Modality(nil), modalities...)

	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	if len(modalities) == 0 {
		return nil, ErrNoModalities
	}
	return m.Session, nil
}

// MockSession is an in-memory Session.
type MockSession struct {
	mu sync.Mutex

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	// Configurable behavior
	SendFunc      func(msg Message) error
	SendAudioFunc func(pcm []byte) error
	OnClose       func()

	// Captured calls for assertions
	Sent        []Message
	AudioSent   [][]byte
	ToolResults map[string]string
	CloseCalls  int
}

// NewMockSession creates a MockSession with a buffered event stream.
func NewMockSession() *MockSession {
	return &MockSession{
		events:      make(chan Event, 64),
		done:        make(chan struct{}),
		ToolResults: make(map[string]string),
	}
}

// Push queues events for Next.
func (s *MockSession) Push(events ...Event) {
	for _, ev := range events {
		if ev.At.IsZero() {
			ev.At = time.Now()
		}
		s.events <- ev
	}
}

// Say queues a final utterance.
func (s *MockSession) Say(role Role, text string) {
	s.Push(Event{Kind: EventUtterance, Role: role, Text: text, Final: true})
}

// Send implements Session.
func (s *MockSession) Send(ctx context.Context, msg Message) error {
	if s.SendFunc != nil {
		if err := s.SendFunc(msg); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed() {
		return ErrNotConnected
	}
	s.Sent = append(s.Sent, msg)
	return nil
}

// SendAudio implements Session.
func (s *MockSession) SendAudio(pcm []byte) error {
	if s.SendAudioFunc != nil {
		return s.SendAudioFunc(pcm)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed() {
		return ErrNotConnected
	}
	s.AudioSent = append(s.AudioSent, pcm)
	return nil
}

// SubmitToolResult implements Session.
func (s *MockSession) SubmitToolResult(callID, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed() {
		return ErrNotConnected
	}
	s.ToolResults[callID] = output
	return nil
}

// Next implements Session.
func (s *MockSession) Next(ctx context.Context) (Event, error) {
	select {
	case <-s.done:
		return Event{}, ErrSessionClosed
	default:
	}
	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case <-s.done:
		return Event{}, ErrSessionClosed
	case ev := <-s.events:
		return ev, nil
	}
}

// Close implements Session.
func (s *MockSession) Close() error {
	s.mu.Lock()
	s.CloseCalls++
	onClose := s.OnClose
	s.mu.Unlock()
	if onClose != nil {
		onClose()
	}
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Closed reports whether Close has been called.
func (s *MockSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCalls > 0
}

// Messages returns a copy of the sent messages.
func (s *MockSession) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.Sent...)
}

func (s *MockSession) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
