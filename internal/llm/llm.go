// Package llm abstracts the chat-completion provider behind a small
// interface so pipelines can be tested against a scripted fake.
package llm

import "context"

// Client produces chat completions, whole or as a delta stream.
type Client interface {
	Chat(ctx context.Context, params Params, messages []Message) (string, error)
	// ChatStream delivers the reply incrementally; deliver is called once
	// per text delta, in order, and a non-nil return aborts the stream.
	ChatStream(ctx context.Context, params Params, messages []Message, deliver func(delta string) error) error
	Close() error
}

// Message roles follow the provider's convention.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one turn of a conversation.
type Message struct {
	Role string
	Text string
}

// Params tune a single completion call. Zero values mean provider defaults.
type Params struct {
	Temperature     float32
	MaxOutputTokens int32
	System          string
}

// User is shorthand for a single-turn user message slice.
func User(text string) []Message {
	return []Message{{Role: RoleUser, Text: text}}
}
