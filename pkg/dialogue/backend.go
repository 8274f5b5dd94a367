// Package dialogue provides the conversational backends of a call.
//
// A Backend receives the full ordered Turn history of a call and returns the
// next assistant utterance. Backends are selected at startup; the engine only
// sees the Backend interface. RetryBackend adds the per-attempt timeout and
// retry policy around any Backend.
package dialogue

import (
	"context"
	"errors"
)

// Role attributes a Turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the dialogue history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ErrMalformedResponse is returned when a backend answered but the answer
// could not be decoded into reply text.
var ErrMalformedResponse = errors.New("malformed dialogue response")

// Backend produces the next assistant utterance for a conversation.
type Backend interface {
	// Name returns the backend name (e.g. "openai")
	Name() string

	// Reply returns the assistant's next utterance given the full history.
	// Implementations must not retain or modify turns.
	Reply(ctx context.Context, turns []Turn) (string, error)
}

// CloneTurns returns a copy of turns that shares no backing array.
func CloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// modelNamer is implemented by backends that target a named model.
type modelNamer interface {
	Model() string
}

func modelOf(b Backend) string {
	if m, ok := b.(modelNamer); ok {
		return m.Model()
	}
	return ""
}
