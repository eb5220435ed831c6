package conversation

import "time"

// Modality is an output channel of the model.
type Modality string

const (
	ModalityAudio Modality = "audio"
	ModalityText  Modality = "text"
)

// ParseModalities converts config strings into Modalities, ignoring
// unknown values.
func ParseModalities(values []string) []Modality {
	var out []Modality
	for _, v := range values {
		switch Modality(v) {
		case ModalityAudio, ModalityText:
			out = append(out, Modality(v))
		}
	}
	return out
}

// Role identifies who produced a message or utterance.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Message is pushed into the conversation.
type Message struct {
	Role Role
	Text string
	// Respond asks the model to generate a response after the message.
	Respond bool
}

// EventKind tags an Event.
type EventKind int

const (
	// EventUtterance carries transcript text from the customer or the agent.
	EventUtterance EventKind = iota
	// EventToolCall carries a structured tool/function call from the model.
	EventToolCall
	// EventAudio carries agent audio to play to the customer.
	EventAudio
	// EventError reports a model-side error.
	EventError
	// EventDone marks the end of the stream.
	EventDone
)

// String returns a readable event kind.
func (k EventKind) String() string {
	switch k {
	case EventUtterance:
		return "utterance"
	case EventToolCall:
		return "tool_call"
	case EventAudio:
		return "audio"
	case EventError:
		return "error"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event is one item of the model output stream.
type Event struct {
	Kind EventKind
	At   time.Time

	// Utterance fields. Partial deltas have Final == false.
	Role  Role
	Text  string
	Final bool

	// Audio is PCM16 mono at the provider output sample rate.
	Audio []byte

	Call *ToolCall
	Err  error
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Args      map[string]any
}

// Tool defines a function that the model can call.
type Tool struct {
	// Name is the function name.
	Name string `json:"name"`

	// Description explains what the tool does.
	Description string `json:"description"`

	// Parameters is the JSON Schema object for the function parameters.
	Parameters map[string]any `json:"parameters"`
}

// TurnDetection configures voice activity detection for turn-taking.
type TurnDetection struct {
	// Type is the detection type: "server_vad" or "none".
	Type string

	// Threshold is the VAD threshold (0.0-1.0).
	Threshold float64

	// PrefixPaddingMs is audio kept before speech starts.
	PrefixPaddingMs int

	// SilenceDurationMs is silence duration to end a turn.
	SilenceDurationMs int
}

// ConnectionState represents the state of a session connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnected
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
