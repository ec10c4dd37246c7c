package llm

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"gitbridge/internal/apperr"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind apperr.Kind
	}{
		{"deadline", context.DeadlineExceeded, apperr.KindProviderTimeout},
		{"http 429", &googleapi.Error{Code: 429}, apperr.KindProviderRateLimited},
		{"http 503", &googleapi.Error{Code: 503}, apperr.KindProviderOther},
		{"grpc resource exhausted", errors.New("rpc error: code = ResourceExhausted"), apperr.KindProviderRateLimited},
		{"anything else", errors.New("boom"), apperr.KindProviderOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, apperr.KindOf(classify(tc.err)))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(classify(&googleapi.Error{Code: 429})))
	assert.True(t, retryable(classify(&googleapi.Error{Code: 500})))
	assert.True(t, retryable(classify(context.DeadlineExceeded)), "a timed-out call gets another attempt")
	assert.False(t, retryable(classify(errors.New("boom"))))
	assert.False(t, retryable(apperr.E(apperr.KindProviderFiltered, "blocked")))
}

func TestExtractText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("hello "), genai.Text("world")}},
		}},
	}
	text, err := extractText(resp)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestExtractTextSafetyBlock(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	}
	_, err := extractText(resp)
	require.Error(t, err)
	assert.Equal(t, apperr.KindProviderFiltered, apperr.KindOf(err))
}

func TestExtractTextNoCandidates(t *testing.T) {
	_, err := extractText(&genai.GenerateContentResponse{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindProviderOther, apperr.KindOf(err))
}

func TestChunkTextToleratesEmptyChunks(t *testing.T) {
	text, err := chunkText(&genai.GenerateContentResponse{})
	require.NoError(t, err)
	assert.Empty(t, text)

	text, err = chunkText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("partial ")}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "partial ", text)
}

func TestChunkTextSafetyBlock(t *testing.T) {
	_, err := chunkText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindProviderFiltered, apperr.KindOf(err))
}
