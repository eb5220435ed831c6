package conversation

import (
	"strings"
	"time"
)

// Turn is one final utterance in a conversation.
type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Transcript is the ordered list of turns. It only grows.
type Transcript []Turn

// Append adds a turn, skipping blank text.
func (t Transcript) Append(role Role, content string, at time.Time) Transcript {
	content = strings.TrimSpace(content)
	if content == "" {
		return t
	}
	return append(t, Turn{Role: role, Content: content, At: at})
}

// By returns every turn spoken by role, in order.
func (t Transcript) By(role Role) []Turn {
	var out []Turn
	for _, turn := range t {
		if turn.Role == role {
			out = append(out, turn)
		}
	}
	return out
}
