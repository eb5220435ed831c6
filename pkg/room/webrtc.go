package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"gopkg.in/hraban/opus.v2"
)

// Config configures the WebRTC transport.
type Config struct {
	// SignalURL is the websocket signalling endpoint of the room server.
	SignalURL string

	// Token authenticates the agent with the room server.
	Token string

	// Identity is the agent's participant name in the room.
	Identity string

	// ICEServers lists STUN/TURN URLs.
	ICEServers []string

	// SampleRate is the PCM rate exchanged with the caller (model side).
	SampleRate int

	// HandshakeTimeout bounds the signalling dial and join handshake.
	HandshakeTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Identity:         "fivestars-agent",
		ICEServers:       []string{"stun:stun.l.google.com:19302"},
		SampleRate:       24000,
		HandshakeTimeout: 10 * time.Second,
		Logger:           slog.Default(),
	}
}

// WebRTC joins rooms through a websocket signalling server and exchanges
// Opus audio over a pion peer connection.
type WebRTC struct {
	config Config
	logger *slog.Logger
}

// NewWebRTC creates a WebRTC transport.
func NewWebRTC(cfg Config) (*WebRTC, error) {
	if cfg.SignalURL == "" {
		return nil, errors.New("room: signal URL is required")
	}
	def := DefaultConfig()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.Identity == "" {
		cfg.Identity = def.Identity
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	return &WebRTC{
		config: cfg,
		logger: cfg.Logger.With("component", "room.webrtc"),
	}, nil
}

// signal is the signalling wire format.
type signal struct {
	Type        string                   `json:"type"`
	Room        string                   `json:"room,omitempty"`
	Identity    string                   `json:"identity,omitempty"`
	Policy      string                   `json:"policy,omitempty"`
	PeerID      string                   `json:"peerId,omitempty"`
	SDP         *sdpPayload              `json:"sdp,omitempty"`
	ICE         *webrtc.ICECandidateInit `json:"ice,omitempty"`
	Participant *Participant             `json:"participant,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Connect joins roomID and negotiates the peer connection.
func (w *WebRTC) Connect(ctx context.Context, roomID string, policy Policy) (Connection, error) {
	if !policy.Audio {
		return nil, &ConnectError{Room: roomID, Reason: "audio subscription is required"}
	}

	u, err := url.Parse(w.config.SignalURL)
	if err != nil {
		return nil, &ConnectError{Room: roomID, Reason: "invalid signal url", Cause: err}
	}
	q := u.Query()
	q.Set("room", roomID)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	if w.config.Token != "" {
		headers.Set("Authorization", "Bearer "+w.config.Token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: w.config.HandshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, &ConnectError{Room: roomID, Reason: fmt.Sprintf("signalling dial failed with status %d", resp.StatusCode), Cause: err}
		}
		return nil, &ConnectError{Room: roomID, Reason: "signalling dial failed", Cause: err}
	}

	c := &webrtcConn{
		room:         roomID,
		config:       w.config,
		logger:       w.logger.With("room", roomID),
		ws:           ws,
		audio:        make(chan []byte, 64),
		participants: make(chan Participant, 1),
		disconnected: make(chan struct{}),
		framer:       newFramer(OpusFrameSamples),
	}

	if err := c.join(policy); err != nil {
		_ = ws.Close()
		return nil, &ConnectError{Room: roomID, Reason: "join rejected", Cause: err}
	}
	if err := c.negotiate(policy); err != nil {
		_ = c.Close()
		return nil, &ConnectError{Room: roomID, Reason: "peer negotiation failed", Cause: err}
	}

	go c.handleSignalling()

	c.logger.Info("joined room", "peer_id", c.peerID, "policy", policy.String())
	return c, nil
}

type webrtcConn struct {
	room   string
	config Config
	logger *slog.Logger

	ws      *websocket.Conn
	wsMutex sync.Mutex
	peerID  string

	pc    *webrtc.PeerConnection
	local *webrtc.TrackLocalStaticSample

	encMu   sync.Mutex
	encoder *opus.Encoder
	framer  *framer
	encBuf  []byte

	audio chan []byte

	// readersMu orders reader registration against Close.
	readersMu    sync.Mutex
	readers      sync.WaitGroup
	participants chan Participant
	participant  atomic.Pointer[Participant]

	disconnected     chan struct{}
	disconnectedOnce sync.Once
	closed           atomic.Bool
	closeOnce        sync.Once

	packetsReceived atomic.Int64
	decodeErrors    atomic.Int64
	droppedChunks   atomic.Int64
}

func (c *webrtcConn) join(policy Policy) error {
	if err := c.send(signal{
		Type:     "join",
		Room:     c.room,
		Identity: c.config.Identity,
		Policy:   policy.String(),
	}); err != nil {
		return err
	}

	_ = c.ws.SetReadDeadline(time.Now().Add(c.config.HandshakeTimeout))
	defer c.ws.SetReadDeadline(time.Time{})

	var welcome signal
	if err := c.ws.ReadJSON(&welcome); err != nil {
		return err
	}
	switch welcome.Type {
	case "welcome":
		c.peerID = welcome.PeerID
		return nil
	case "error":
		return errors.New(welcome.Error)
	default:
		return fmt.Errorf("expected welcome, got %s", welcome.Type)
	}
}

func (c *webrtcConn) negotiate(policy Policy) error {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: OpusSampleRate, Channels: 2},
		PayloadType:        111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return err
	}
	if policy.Video {
		if err := m.RegisterDefaultCodecs(); err != nil {
			return err
		}
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m))

	var ice []webrtc.ICEServer
	if len(c.config.ICEServers) > 0 {
		ice = []webrtc.ICEServer{{URLs: c.config.ICEServers}}
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: ice})
	if err != nil {
		return err
	}
	c.pc = pc

	// Sending the agent voice also receives the customer on the same transceiver.
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: OpusSampleRate, Channels: 2},
		"audio", c.config.Identity,
	)
	if err != nil {
		return err
	}
	if _, err := pc.AddTrack(local); err != nil {
		return err
	}
	c.local = local

	if policy.Video {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return err
		}
	}

	c.encoder, err = opus.NewEncoder(OpusSampleRate, 1, opus.AppVoIP)
	if err != nil {
		return err
	}
	c.encBuf = make([]byte, 1500)

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Info("got track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() != webrtc.RTPCodecTypeAudio || !c.addReader() {
			return
		}
		go c.readAudio(track)
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		if err := c.send(signal{Type: "ice", ICE: &init}); err != nil {
			c.logger.Warn("send ice failed", "error", err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Debug("connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			c.markDisconnected("peer connection " + state.String())
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return err
	}
	return c.send(signal{Type: "offer", SDP: &sdpPayload{Type: offer.Type.String(), SDP: offer.SDP}})
}

// handleSignalling processes server messages until the socket closes.
func (c *webrtcConn) handleSignalling() {
	for {
		var msg signal
		if err := c.ws.ReadJSON(&msg); err != nil {
			if !c.closed.Load() {
				c.logger.Warn("signalling error", "error", err)
				c.markDisconnected("signalling closed")
			}
			return
		}

		switch msg.Type {
		case "answer":
			if msg.SDP == nil {
				continue
			}
			if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP.SDP}); err != nil {
				c.logger.Error("set remote answer failed", "error", err)
			}

		case "offer":
			if msg.SDP != nil {
				c.handleRemoteOffer(msg.SDP.SDP)
			}

		case "ice":
			if msg.ICE != nil {
				if err := c.pc.AddICECandidate(*msg.ICE); err != nil {
					c.logger.Warn("add ice candidate failed", "error", err)
				}
			}

		case "participantJoined":
			if msg.Participant == nil {
				continue
			}
			p := *msg.Participant
			if p.JoinedAt.IsZero() {
				p.JoinedAt = time.Now()
			}
			if c.participant.CompareAndSwap(nil, &p) {
				c.participants <- p
			}

		case "participantLeft":
			if cur := c.participant.Load(); cur != nil && msg.Participant != nil && msg.Participant.ID == cur.ID {
				c.markDisconnected("participant left")
			}

		case "roomClosed":
			c.markDisconnected("room closed")
			return

		case "error":
			c.logger.Error("signalling server error", "error", msg.Error)
		}
	}
}

func (c *webrtcConn) handleRemoteOffer(sdp string) {
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		c.logger.Error("set remote offer failed", "error", err)
		return
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		c.logger.Error("create answer failed", "error", err)
		return
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		c.logger.Error("set local answer failed", "error", err)
		return
	}
	if err := c.send(signal{Type: "answer", SDP: &sdpPayload{Type: answer.Type.String(), SDP: answer.SDP}}); err != nil {
		c.logger.Warn("send answer failed", "error", err)
	}
}

// addReader registers a track reader unless the connection is closing.
func (c *webrtcConn) addReader() bool {
	c.readersMu.Lock()
	defer c.readersMu.Unlock()
	if c.closed.Load() {
		return false
	}
	c.readers.Add(1)
	return true
}

// stopReaders refuses new readers. Wait on c.readers afterwards.
func (c *webrtcConn) stopReaders() {
	c.readersMu.Lock()
	c.closed.Store(true)
	c.readersMu.Unlock()
}

// readAudio decodes the remote Opus track into PCM16 chunks.
func (c *webrtcConn) readAudio(track *webrtc.TrackRemote) {
	defer c.readers.Done()

	decoder, err := opus.NewDecoder(OpusSampleRate, 1)
	if err != nil {
		c.logger.Error("create opus decoder failed", "error", err)
		return
	}
	pcm := make([]int16, maxOpusFrame)

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Debug("audio track ended", "error", err)
			}
			return
		}

		chunk, err := c.decodePacket(decoder, pkt, pcm)
		if err != nil {
			if c.decodeErrors.Add(1) <= 5 {
				c.logger.Warn("opus decode error", "error", err, "payload_len", len(pkt.Payload))
			}
			continue
		}

		select {
		case c.audio <- chunk:
		default:
			c.droppedChunks.Add(1)
		}
	}
}

func (c *webrtcConn) decodePacket(decoder *opus.Decoder, pkt *rtp.Packet, pcm []int16) ([]byte, error) {
	c.packetsReceived.Add(1)
	if len(pkt.Payload) == 0 {
		return nil, errors.New("empty payload")
	}
	n, err := decoder.Decode(pkt.Payload, pcm)
	if err != nil {
		return nil, err
	}
	return SamplesToBytes(Resample(pcm[:n], OpusSampleRate, c.config.SampleRate)), nil
}

// WaitForParticipant blocks until the first remote participant joins.
func (c *webrtcConn) WaitForParticipant(ctx context.Context, timeout time.Duration) (Participant, error) {
	if p := c.participant.Load(); p != nil {
		return *p, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p := <-c.participants:
		return p, nil
	case <-timer.C:
		return Participant{}, ErrParticipantTimeout
	case <-c.disconnected:
		return Participant{}, ErrDisconnected
	case <-ctx.Done():
		return Participant{}, ctx.Err()
	}
}

// Audio returns the customer audio stream.
func (c *webrtcConn) Audio() <-chan []byte {
	return c.audio
}

// Publish encodes PCM16 agent audio into 20ms Opus frames.
func (c *webrtcConn) Publish(pcm []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}

	samples := Resample(BytesToSamples(pcm), c.config.SampleRate, OpusSampleRate)

	c.encMu.Lock()
	defer c.encMu.Unlock()

	for _, frame := range c.framer.Push(samples) {
		n, err := c.encoder.Encode(frame, c.encBuf)
		if err != nil {
			return fmt.Errorf("room: opus encode: %w", err)
		}
		if err := c.local.WriteSample(media.Sample{
			Data:     append([]byte(nil), c.encBuf[:n]...),
			Duration: 20 * time.Millisecond,
		}); err != nil {
			return fmt.Errorf("room: write sample: %w", err)
		}
	}
	return nil
}

// Disconnected is closed when the room goes away.
func (c *webrtcConn) Disconnected() <-chan struct{} {
	return c.disconnected
}

// Close leaves the room and tears down the peer connection.
func (c *webrtcConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.stopReaders()

		_ = c.send(signal{Type: "leave", Room: c.room})

		if c.pc != nil {
			err = c.pc.Close()
		}

		c.wsMutex.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.wsMutex.Unlock()
		_ = c.ws.Close()

		c.readers.Wait()
		close(c.audio)
		c.markDisconnected("closed")

		c.logger.Info("left room",
			"packets_received", c.packetsReceived.Load(),
			"decode_errors", c.decodeErrors.Load(),
			"dropped_chunks", c.droppedChunks.Load(),
		)
	})
	return err
}

func (c *webrtcConn) send(msg signal) error {
	c.wsMutex.Lock()
	defer c.wsMutex.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteJSON(msg)
}

func (c *webrtcConn) markDisconnected(reason string) {
	c.disconnectedOnce.Do(func() {
		if !c.closed.Load() {
			c.logger.Warn("room disconnected", "reason", reason)
		}
		close(c.disconnected)
	})
}
