package conversation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	openAIRealtimeURL = "wss://api.openai.com/v1/realtime"
	openAIModel       = "gpt-4o-realtime-preview-2024-12-17"
	writeTimeout      = 10 * time.Second
)

// OpenAI opens sessions against the OpenAI Realtime API.
type OpenAI struct {
	config *Config
	logger *slog.Logger
}

// NewOpenAI creates a new OpenAI Realtime opener.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}

	return &OpenAI{
		config: cfg,
		logger: cfg.Logger.With("component", "conversation.openai"),
	}, nil
}

// Open dials the Realtime API, configures the session and starts reading
// server events.
func (o *OpenAI) Open(ctx context.Context, instructions string, modalities []Modality) (Session, error) {
	if len(modalities) == 0 {
		return nil, ErrNoModalities
	}

	u, err := url.Parse(o.config.BaseURL)
	if err != nil {
		return nil, NewConnectionError("invalid base url", err)
	}
	q := u.Query()
	q.Set("model", o.config.Model)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+o.config.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{
		HandshakeTimeout: o.config.Timeout,
	}

	o.logger.Info("connecting to OpenAI Realtime API", "model", o.config.Model)

	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, NewConnectionError(fmt.Sprintf("dial failed with status %d", resp.StatusCode), err)
		}
		return nil, NewConnectionError("dial failed", err)
	}

	s := &openAISession{
		config: o.config,
		logger: o.logger,
		conn:   conn,
		events: make(chan Event, o.config.EventBuffer),
		done:   make(chan struct{}),
	}
	s.state.Store(int32(StateConnected))

	if err := s.configure(instructions, modalities); err != nil {
		_ = s.Close()
		return nil, err
	}

	go s.readLoop()

	o.logger.Info("connected to OpenAI Realtime API")
	return s, nil
}

type openAISession struct {
	config *Config
	logger *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32

	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
}

func (s *openAISession) configure(instructions string, modalities []Modality) error {
	mods := make([]string, len(modalities))
	for i, m := range modalities {
		mods[i] = string(m)
	}

	apiTools := make([]map[string]any, 0, len(s.config.Tools))
	for _, tool := range s.config.Tools {
		params := tool.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		apiTools = append(apiTools, map[string]any{
			"type":        "function",
			"name":        tool.Name,
			"description": tool.Description,
			"parameters":  params,
		})
	}

	session := map[string]any{
		"modalities":          mods,
		"instructions":        instructions,
		"voice":               s.config.Voice,
		"input_audio_format":  "pcm16",
		"output_audio_format": "pcm16",
		"input_audio_transcription": map[string]any{
			"model": s.config.TranscriptionModel,
		},
		"temperature":                s.config.Temperature,
		"max_response_output_tokens": s.config.MaxResponseTokens,
		"tools":                      apiTools,
		"tool_choice":                "auto",
	}
	if td := s.config.TurnDetection; td != nil {
		session["turn_detection"] = map[string]any{
			"type":                td.Type,
			"threshold":           td.Threshold,
			"prefix_padding_ms":   td.PrefixPaddingMs,
			"silence_duration_ms": td.SilenceDurationMs,
		}
	}

	if err := s.writeJSON(map[string]any{"type": "session.update", "session": session}); err != nil {
		return NewConnectionError("configure session failed", err)
	}
	return nil
}

// Send adds a conversation item and optionally requests a response.
func (s *openAISession) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	role, contentType := "user", "input_text"
	switch msg.Role {
	case RoleAgent:
		role, contentType = "assistant", "text"
	case RoleSystem:
		role = "system"
	}

	item := map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": role,
			"content": []map[string]any{
				{"type": contentType, "text": msg.Text},
			},
		},
	}
	if err := s.writeJSON(item); err != nil {
		return NewConnectionError("send message failed", err)
	}

	if msg.Respond {
		if err := s.writeJSON(map[string]string{"type": "response.create"}); err != nil {
			return NewConnectionError("request response failed", err)
		}
	}
	return nil
}

// SendAudio appends customer audio to the input buffer.
func (s *openAISession) SendAudio(pcm []byte) error {
	msg := map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	}
	if err := s.writeJSON(msg); err != nil {
		return NewConnectionError("send audio failed", err)
	}
	return nil
}

// SubmitToolResult returns a function call output and resumes the response.
func (s *openAISession) SubmitToolResult(callID, output string) error {
	resultMsg := map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	}
	if err := s.writeJSON(resultMsg); err != nil {
		return NewConnectionError("submit tool result failed", err)
	}
	if err := s.writeJSON(map[string]string{"type": "response.create"}); err != nil {
		return NewConnectionError("continue after tool result failed", err)
	}

	s.logger.Debug("submitted tool result", "call_id", callID, "result_len", len(output))
	return nil
}

// Next returns the next event from the stream.
func (s *openAISession) Next(ctx context.Context) (Event, error) {
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
	case ev, ok := <-s.events:
		if !ok {
			return Event{}, ErrSessionClosed
		}
		return ev, nil
	}
}

// Close ends the session.
func (s *openAISession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.state.Store(int32(StateClosed))

		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.writeMu.Unlock()
		_ = s.conn.Close()

		s.logger.Info("closed OpenAI Realtime session",
			"messages_sent", s.messagesSent.Load(),
			"messages_received", s.messagesReceived.Load(),
		)
	})
	return nil
}

func (s *openAISession) writeJSON(v any) error {
	if ConnectionState(s.state.Load()) != StateConnected {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(v); err != nil {
		return err
	}
	s.messagesSent.Add(1)
	return nil
}

// readLoop turns server messages into Events until the connection ends.
func (s *openAISession) readLoop() {
	defer close(s.events)

	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.state.Store(int32(StateDisconnected))
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("connection closed by server")
				s.emit(Event{Kind: EventDone})
				return
			}
			s.logger.Error("read error", "error", err)
			s.emit(Event{Kind: EventError, Err: NewConnectionError("read failed", err)})
			return
		}

		s.messagesReceived.Add(1)

		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("failed to parse message", "error", err)
			continue
		}

		s.handleMessage(msg)
	}
}

// handleMessage maps one server message onto zero or one Event.
func (s *openAISession) handleMessage(msg map[string]any) {
	msgType, _ := msg["type"].(string)

	switch msgType {
	case "session.created", "session.updated":
		s.logger.Debug("session event", "type", msgType)

	case "input_audio_buffer.speech_started":
		s.logger.Debug("speech started")

	case "conversation.item.input_audio_transcription.completed":
		if transcript, ok := msg["transcript"].(string); ok {
			s.emit(Event{Kind: EventUtterance, Role: RoleUser, Text: transcript, Final: true})
		}

	case "response.audio.delta":
		if delta, ok := msg["delta"].(string); ok {
			audio, err := base64.StdEncoding.DecodeString(delta)
			if err == nil {
				s.emit(Event{Kind: EventAudio, Audio: audio})
			}
		}

	case "response.audio_transcript.delta", "response.text.delta":
		if delta, ok := msg["delta"].(string); ok {
			s.emit(Event{Kind: EventUtterance, Role: RoleAgent, Text: delta})
		}

	case "response.audio_transcript.done":
		if transcript, ok := msg["transcript"].(string); ok {
			s.emit(Event{Kind: EventUtterance, Role: RoleAgent, Text: transcript, Final: true})
		}

	case "response.text.done":
		if text, ok := msg["text"].(string); ok {
			s.emit(Event{Kind: EventUtterance, Role: RoleAgent, Text: text, Final: true})
		}

	case "response.function_call_arguments.done":
		s.emit(Event{Kind: EventToolCall, Call: parseToolCall(msg)})

	case "error":
		if errData, ok := msg["error"].(map[string]any); ok {
			errMsg, _ := errData["message"].(string)
			errCode, _ := errData["code"].(string)
			apiErr := NewAPIError(0, errCode, errMsg)
			apiErr.Type, _ = errData["type"].(string)
			s.emit(Event{Kind: EventError, Err: apiErr})
		}

	default:
		// Ignore other message types
	}
}

func parseToolCall(msg map[string]any) *ToolCall {
	call := &ToolCall{}
	call.Name, _ = msg["name"].(string)
	call.ID, _ = msg["call_id"].(string)
	call.Arguments, _ = msg["arguments"].(string)

	if err := json.Unmarshal([]byte(call.Arguments), &call.Args); err != nil || call.Args == nil {
		call.Args = make(map[string]any)
	}
	return call
}

func (s *openAISession) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}
