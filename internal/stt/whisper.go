// Package stt transcribes audio clips through an OpenAI-compatible
// /audio/transcriptions endpoint (Whisper or a local stand-in).
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"gitbridge/internal/apperr"
)

const defaultModel = "whisper-1"

// Transcriber converts a WAV clip to text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Client posts clips to a Whisper-compatible HTTP API.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	model   string
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   defaultModel,
	}
}

// Transcribe uploads the clip and returns its transcript text.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if len(wav) == 0 {
		return "", apperr.E(apperr.KindInvalidInput, "audio clip is empty")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "clip.wav")
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "build transcription form")
	}
	if _, err := fw.Write(wav); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "write transcription form")
	}
	if err := mw.WriteField("model", c.model); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "write transcription form")
	}
	mw.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "build transcription request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindProviderTimeout, err, "transcription request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", apperr.E(apperr.KindProviderRateLimited, "transcription rate limit exceeded")
		}
		return "", apperr.E(apperr.KindProviderOther, "transcription: status %s: %s",
			resp.Status, strings.TrimSpace(string(body)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.Wrap(apperr.KindProviderOther, err, "decode transcription response")
	}
	return strings.TrimSpace(out.Text), nil
}
