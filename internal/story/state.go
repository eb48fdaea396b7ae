package story

import (
	"strings"

	"github.com/safetale/safetale-sync/internal/llm"
)

// Request is the input of one generation. History may only carry user and
// assistant turns; other roles are dropped before the pipeline sees them.
type Request struct {
	StoryContext string        `json:"story_context"`
	UserInput    string        `json:"user_input"`
	History      []llm.Message `json:"history,omitempty"`
}

// State is the working record of one pipeline run. A fresh State is created
// per request and returned by Pipeline.Run.
type State struct {
	StoryContext string
	UserInput    string
	History      []llm.Message
	SafetyPassed bool
	Response     string

	// Trail lists the stages that ran, in order.
	Trail []Stage
	// RetrievalErr and GenerationErr record swallowed collaborator failures.
	RetrievalErr  error
	GenerationErr error
}

func newState(req Request) *State {
	return &State{
		StoryContext: req.StoryContext,
		UserInput:    req.UserInput,
		History:      chatTurns(req.History),
	}
}

// chatTurns copies the user and assistant turns of history. A turn without
// a role counts as a user turn.
func chatTurns(history []llm.Message) []llm.Message {
	turns := make([]llm.Message, 0, len(history))
	for _, msg := range history {
		role, ok := ChatRole(msg.Role)
		if !ok {
			continue
		}
		turns = append(turns, llm.Message{Role: role, Content: msg.Content})
	}
	return turns
}

// ChatRole normalizes role and reports whether it is accepted in a
// request's history.
func ChatRole(role string) (string, bool) {
	switch r := strings.ToLower(strings.TrimSpace(role)); r {
	case "", llm.RoleUser:
		return llm.RoleUser, true
	case llm.RoleAssistant:
		return r, true
	default:
		return r, false
	}
}
