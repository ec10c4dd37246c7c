package llm

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"gitbridge/internal/apperr"
)

// VertexClient implements Client on top of Google's Vertex AI.
type VertexClient struct {
	client  *genai.Client
	modelID string
	timeout time.Duration
}

// NewVertexClient creates a Vertex AI chat client. Credentials come from
// GOOGLE_APPLICATION_CREDENTIALS or ambient ADC. timeout bounds each
// individual model call; zero disables the per-call deadline.
func NewVertexClient(ctx context.Context, projectID, location, modelID string, timeout time.Duration) (*VertexClient, error) {
	var opts []option.ClientOption
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	client, err := genai.NewClient(ctx, projectID, location, opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProviderOther, err, "create vertex client")
	}
	return &VertexClient{client: client, modelID: modelID, timeout: timeout}, nil
}

// session assembles a chat session carrying all but the last message as
// history, and returns the last message as the one to send.
func (v *VertexClient) session(params Params, messages []Message) (*genai.ChatSession, genai.Text) {
	model := v.client.GenerativeModel(v.modelID)
	model.SetTemperature(params.Temperature)
	if params.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(params.MaxOutputTokens)
	}
	if params.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(params.System)},
		}
	}

	session := model.StartChat()
	for _, m := range messages[:len(messages)-1] {
		session.History = append(session.History, &genai.Content{
			Role:  m.Role,
			Parts: []genai.Part{genai.Text(m.Text)},
		})
	}
	return session, genai.Text(messages[len(messages)-1].Text)
}

// callCtx derives the per-call context; every attempt gets a fresh deadline.
func (v *VertexClient) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, v.timeout)
}

// Chat sends the conversation and returns the model's reply text. Transient
// provider failures (rate limits, 5xx, timeouts) are retried up to 3 times
// with jittered exponential backoff.
func (v *VertexClient) Chat(ctx context.Context, params Params, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", apperr.E(apperr.KindInternal, "chat called with no messages")
	}
	session, last := v.session(params, messages)

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<attempt)*time.Second +
				time.Duration(rand.Intn(500))*time.Millisecond
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", apperr.Wrap(apperr.KindProviderTimeout, ctx.Err(), "llm call cancelled")
			}
		}

		actx, cancel := v.callCtx(ctx)
		resp, err := session.SendMessage(actx, last)
		cancel()
		if err != nil {
			lastErr = classify(err)
			if retryable(lastErr) && ctx.Err() == nil {
				continue
			}
			return "", lastErr
		}

		text, err := extractText(resp)
		if err != nil {
			lastErr = err
			if retryable(err) {
				continue
			}
			return "", err
		}
		return text, nil
	}
	return "", lastErr
}

// ChatStream sends the conversation and delivers the reply as text deltas
// through deliver. Retries only apply before the first delta has gone out;
// once text has been delivered, restarting the stream would repeat it, so a
// mid-stream failure is returned as-is.
func (v *VertexClient) ChatStream(ctx context.Context, params Params, messages []Message, deliver func(delta string) error) error {
	if len(messages) == 0 {
		return apperr.E(apperr.KindInternal, "chat called with no messages")
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<attempt)*time.Second +
				time.Duration(rand.Intn(500))*time.Millisecond
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return apperr.Wrap(apperr.KindProviderTimeout, ctx.Err(), "llm call cancelled")
			}
		}

		session, last := v.session(params, messages)
		actx, cancel := v.callCtx(ctx)
		delivered, err := streamOnce(actx, session, last, deliver)
		cancel()
		if err == nil {
			return nil
		}
		if delivered {
			return err
		}
		lastErr = err
		if retryable(err) && ctx.Err() == nil {
			continue
		}
		return err
	}
	return lastErr
}

// streamOnce drains one streaming call, reporting whether any delta reached
// the caller.
func streamOnce(ctx context.Context, session *genai.ChatSession, last genai.Text, deliver func(string) error) (bool, error) {
	it := session.SendMessageStream(ctx, last)
	delivered := false
	for {
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			if !delivered {
				return false, apperr.E(apperr.KindProviderOther, "model returned no candidates")
			}
			return true, nil
		}
		if err != nil {
			return delivered, classify(err)
		}
		delta, err := chunkText(resp)
		if err != nil {
			return delivered, err
		}
		if delta == "" {
			continue
		}
		if err := deliver(delta); err != nil {
			return true, apperr.Wrap(apperr.KindInternal, err, "deliver stream delta")
		}
		delivered = true
	}
}

func (v *VertexClient) Close() error {
	return v.client.Close()
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", apperr.E(apperr.KindProviderOther, "model returned no candidates")
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", apperr.E(apperr.KindProviderFiltered, "response blocked by safety filter")
	}
	if cand.Content == nil {
		return "", apperr.E(apperr.KindProviderOther, "candidate has no content")
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", apperr.E(apperr.KindProviderOther, "candidate has no text parts")
	}
	return b.String(), nil
}

// chunkText extracts the text of one streamed chunk. Unlike a full response,
// a chunk may legitimately carry no text (the closing chunk often holds only
// usage data), so emptiness is not an error here.
func chunkText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", nil
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", apperr.E(apperr.KindProviderFiltered, "response blocked by safety filter")
	}
	if cand.Content == nil {
		return "", nil
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

// classify maps a provider error to an error kind the HTTP layer understands.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindProviderTimeout, err, "llm call timed out")
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return apperr.Wrap(apperr.KindProviderRateLimited, err, "llm rate limit")
		case gerr.Code >= 500:
			return apperr.Wrap(apperr.KindProviderOther, err, "llm server error")
		}
	}
	// gRPC transports surface ResourceExhausted as plain text.
	if strings.Contains(err.Error(), "ResourceExhausted") || strings.Contains(err.Error(), "429") {
		return apperr.Wrap(apperr.KindProviderRateLimited, err, "llm rate limit")
	}
	return apperr.Wrap(apperr.KindProviderOther, err, "llm call failed")
}

func retryable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindProviderRateLimited, apperr.KindProviderTimeout:
		return true
	case apperr.KindProviderOther:
		return strings.Contains(apperr.Message(err), "server error") ||
			strings.Contains(apperr.Message(err), "no candidates")
	default:
		return false
	}
}
