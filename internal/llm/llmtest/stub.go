// Package llmtest provides a scripted llm.Client for pipeline tests.
package llmtest

import (
	"context"
	"sync"

	"gitbridge/internal/apperr"
	"gitbridge/internal/llm"
)

// Stub replays canned responses in order. When the script runs out it
// returns a provider_other error, which usually means the test forgot a step.
type Stub struct {
	mu        sync.Mutex
	Responses []string
	Errs      []error // parallel to Responses; nil entries succeed
	Calls     []Call
}

// Call records one Chat invocation for assertions.
type Call struct {
	Params   llm.Params
	Messages []llm.Message
}

// Script creates a stub that returns the given responses in order.
func Script(responses ...string) *Stub {
	return &Stub{Responses: responses}
}

func (s *Stub) Chat(_ context.Context, params llm.Params, messages []llm.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := len(s.Calls)
	s.Calls = append(s.Calls, Call{Params: params, Messages: messages})
	if i < len(s.Errs) && s.Errs[i] != nil {
		return "", s.Errs[i]
	}
	if i >= len(s.Responses) {
		return "", apperr.E(apperr.KindProviderOther, "llm stub script exhausted at call %d", i)
	}
	return s.Responses[i], nil
}

// ChatStream replays the next scripted response as two deltas so consumers
// exercise incremental assembly.
func (s *Stub) ChatStream(ctx context.Context, params llm.Params, messages []llm.Message, deliver func(delta string) error) error {
	text, err := s.Chat(ctx, params, messages)
	if err != nil {
		return err
	}
	half := len(text) / 2
	for _, delta := range []string{text[:half], text[half:]} {
		if delta == "" {
			continue
		}
		if err := deliver(delta); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stub) Close() error { return nil }

// LastPrompt returns the text of the final message of the most recent call.
func (s *Stub) LastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Calls) == 0 {
		return ""
	}
	msgs := s.Calls[len(s.Calls)-1].Messages
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Text
}
