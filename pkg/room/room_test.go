package room

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-fivestars/internal/log"
)

func TestResample_SameRate(t *testing.T) {
	samples := []int16{100, 200, 300, 400, 500}
	result := Resample(samples, 24000, 24000)

	if len(result) != len(samples) {
		t.Errorf("Expected %d samples, got %d", len(samples), len(result))
	}
	for i, s := range samples {
		if result[i] != s {
			t.Errorf("Sample %d: expected %d, got %d", i, s, result[i])
		}
	}
}

func TestResample_OpusToModel(t *testing.T) {
	samples := make([]int16, OpusFrameSamples)
	for i := range samples {
		samples[i] = int16(i)
	}

	down := Resample(samples, OpusSampleRate, 24000)
	if len(down) != 480 {
		t.Errorf("Expected 480 samples, got %d", len(down))
	}

	up := Resample(down, 24000, OpusSampleRate)
	if len(up) != OpusFrameSamples {
		t.Errorf("Expected %d samples, got %d", OpusFrameSamples, len(up))
	}
}

func TestResample_Empty(t *testing.T) {
	if got := Resample(nil, 24000, 48000); len(got) != 0 {
		t.Errorf("Expected empty result for nil input")
	}
}

func TestSampleBytesRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	got := BytesToSamples(SamplesToBytes(samples))
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, samples[i], got[i])
		}
	}

	if n := len(BytesToSamples([]byte{1, 2, 3})); n != 1 {
		t.Errorf("odd byte count should drop the trailing byte, got %d samples", n)
	}
}

func TestFramer(t *testing.T) {
	f := newFramer(4)

	if frames := f.Push([]int16{1, 2, 3}); len(frames) != 0 {
		t.Fatalf("expected no frames, got %d", len(frames))
	}
	frames := f.Push([]int16{4, 5, 6, 7, 8, 9})
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0][0] != 1 || frames[1][3] != 8 {
		t.Errorf("unexpected frame contents %v", frames)
	}
	if f.Pending() != 1 {
		t.Errorf("expected 1 pending sample, got %d", f.Pending())
	}
}

func TestPolicyString(t *testing.T) {
	tests := []struct {
		policy Policy
		want   string
	}{
		{SubscribeAudioOnly, "audio_only"},
		{Policy{Audio: true, Video: true}, "audio+video"},
		{Policy{Video: true}, "video_only"},
		{Policy{}, "none"},
	}
	for _, tt := range tests {
		if got := tt.policy.String(); got != tt.want {
			t.Errorf("%+v.String() = %q, want %q", tt.policy, got, tt.want)
		}
	}
}

func TestConnectErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := error(&ConnectError{Room: "r1", Reason: "signalling dial failed", Cause: cause})

	if !errors.Is(err, ErrConnect) {
		t.Error("ConnectError should match ErrConnect")
	}
	if !errors.Is(err, cause) {
		t.Error("ConnectError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "r1") {
		t.Errorf("error should name the room: %v", err)
	}
}

func TestMockConnection(t *testing.T) {
	t.Run("participant joins", func(t *testing.T) {
		c := NewMockConnection()
		c.Join(Participant{ID: "p1", Identity: "customer"})

		p, err := c.WaitForParticipant(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("WaitForParticipant: %v", err)
		}
		if p.ID != "p1" || p.JoinedAt.IsZero() {
			t.Errorf("unexpected participant %+v", p)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		c := NewMockConnection()
		_, err := c.WaitForParticipant(context.Background(), 10*time.Millisecond)
		if !errors.Is(err, ErrParticipantTimeout) {
			t.Fatalf("expected ErrParticipantTimeout, got %v", err)
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		c := NewMockConnection()
		_ = c.Close()
		_ = c.Close()
		if c.CloseCalls != 2 {
			t.Errorf("expected 2 close calls, got %d", c.CloseCalls)
		}
		if _, ok := <-c.Audio(); ok {
			t.Error("audio channel should be closed")
		}
		if err := c.Publish([]byte{1, 2}); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	})
}

func TestMockTransport(t *testing.T) {
	m := NewMock()
	conn, err := m.Connect(context.Background(), "room-1", SubscribeAudioOnly)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if conn != m.Conn {
		t.Error("expected scripted connection")
	}
	if m.Rooms[0] != "room-1" || m.Policies[0] != SubscribeAudioOnly {
		t.Errorf("unexpected captured call %v %v", m.Rooms, m.Policies)
	}

	m.ConnectErr = &ConnectError{Room: "room-2", Reason: "refused"}
	if _, err := m.Connect(context.Background(), "room-2", SubscribeAudioOnly); !errors.Is(err, ErrConnect) {
		t.Errorf("expected ErrConnect, got %v", err)
	}
}

// fakeSignalServer answers the join handshake with reply and then sends
// the follow-up messages once the offer arrives.
func fakeSignalServer(t *testing.T, reply signal, followUp ...signal) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer room-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var join signal
		if err := conn.ReadJSON(&join); err != nil || join.Type != "join" {
			return
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}

		for {
			var msg signal
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == "offer" {
				for _, f := range followUp {
					_ = conn.WriteJSON(f)
				}
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebRTCConnectRejected(t *testing.T) {
	srv := fakeSignalServer(t, signal{Type: "error", Error: "room not found"})
	defer srv.Close()

	transport, err := NewWebRTC(Config{
		SignalURL: wsURL(srv),
		Token:     "room-token",
		Logger:    log.Discard(),
	})
	if err != nil {
		t.Fatalf("NewWebRTC: %v", err)
	}

	_, err = transport.Connect(context.Background(), "missing", SubscribeAudioOnly)
	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectError, got %v", err)
	}
	if connErr.Room != "missing" || !strings.Contains(err.Error(), "room not found") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestWebRTCConnectUnauthorized(t *testing.T) {
	srv := fakeSignalServer(t, signal{Type: "welcome"})
	defer srv.Close()

	transport, err := NewWebRTC(Config{SignalURL: wsURL(srv), Token: "wrong", Logger: log.Discard()})
	if err != nil {
		t.Fatalf("NewWebRTC: %v", err)
	}
	if _, err := transport.Connect(context.Background(), "r", SubscribeAudioOnly); !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
}

func TestWebRTCRequiresAudio(t *testing.T) {
	transport, err := NewWebRTC(Config{SignalURL: "ws://127.0.0.1:1", Logger: log.Discard()})
	if err != nil {
		t.Fatalf("NewWebRTC: %v", err)
	}
	if _, err := transport.Connect(context.Background(), "r", Policy{Video: true}); !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
}

func TestNewWebRTCRequiresSignalURL(t *testing.T) {
	if _, err := NewWebRTC(Config{}); err == nil {
		t.Fatal("expected error for missing signal URL")
	}
}

func TestWebRTCParticipantFlow(t *testing.T) {
	srv := fakeSignalServer(t,
		signal{Type: "welcome", PeerID: "agent-1"},
		signal{Type: "participantJoined", Participant: &Participant{ID: "p1", Identity: "customer"}},
		signal{Type: "participantLeft", Participant: &Participant{ID: "p1"}},
	)
	defer srv.Close()

	transport, err := NewWebRTC(Config{
		SignalURL: wsURL(srv),
		Token:     "room-token",
		Logger:    log.Discard(),
	})
	if err != nil {
		t.Fatalf("NewWebRTC: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := transport.Connect(ctx, "pizza-line", SubscribeAudioOnly)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	p, err := conn.WaitForParticipant(ctx, 2*time.Second)
	if err != nil {
		t.Fatalf("WaitForParticipant: %v", err)
	}
	if p.ID != "p1" || p.Identity != "customer" {
		t.Errorf("unexpected participant %+v", p)
	}

	select {
	case <-conn.Disconnected():
	case <-ctx.Done():
		t.Fatal("expected disconnect after participant left")
	}

	if err := conn.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := conn.Publish(make([]byte, 960)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
}

func TestReadersRefusedAfterClose(t *testing.T) {
	c := &webrtcConn{}
	if !c.addReader() {
		t.Fatal("addReader() = false on an open connection")
	}

	c.stopReaders()
	if c.addReader() {
		t.Fatal("addReader() = true after stopReaders")
	}

	stopped := make(chan struct{})
	go func() {
		c.readers.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Wait returned while a reader was still registered")
	case <-time.After(50 * time.Millisecond):
	}
	c.readers.Done()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the last reader finished")
	}
}
