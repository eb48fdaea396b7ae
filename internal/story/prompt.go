package story

import (
	"fmt"

	"github.com/safetale/safetale-sync/internal/consts"
	"github.com/safetale/safetale-sync/internal/llm"
)

// Canned replies
const (
	PromptForInput  = "What would you like to happen next in the story?"
	EmptyReply      = "The story continues..."
	FallbackReply   = "Let's keep our tale safe and on topic. Try asking what happens next in the story!"
	apologyTemplate = "The story guide is resting. Make sure %s is running with %s and try again."
	loreHeader      = "\n\nRelevant lore:\n"
	contextHeader   = "\n\nCurrent story context:\n"
)

const systemInstruction = "You are a friendly Story Guide for a collaborative fairy-tale app. " +
	"Keep responses short, whimsical, and suitable for all ages. " +
	"Do not repeat or include PII. If story context is provided, use it."

// Apology is the reply used when the generation backend fails.
func Apology(backend, model string) string {
	return fmt.Sprintf(apologyTemplate, backend, model)
}

// buildMessages assembles the system instruction, the most recent history
// turns and the user message.
func buildMessages(state *State) []llm.Message {
	system := systemInstruction
	if state.StoryContext != "" {
		system += contextHeader + truncateRunes(state.StoryContext, consts.MaxContextChars)
	}

	history := state.History
	if len(history) > consts.MaxHistoryMessages {
		history = history[len(history)-consts.MaxHistoryMessages:]
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: state.UserInput})
	return messages
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
