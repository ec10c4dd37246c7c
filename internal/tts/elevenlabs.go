// Package tts speaks text through the ElevenLabs API. Synthesis requests
// raw PCM so the audio layer can splice segments without re-encoding.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitbridge/internal/apperr"
	"gitbridge/internal/models"
)

const defaultBaseURL = "https://api.elevenlabs.io"

// modelID is the provider's low-latency conversational model.
const modelID = "eleven_turbo_v2_5"

// Synthesizer converts text to PCM16 audio at 22050 Hz.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string, settings models.VoiceSettings) ([]byte, error)
	Voices(ctx context.Context) ([]models.VoiceInfo, error)
}

// Client is the ElevenLabs-backed Synthesizer.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func NewClient(apiKey string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
	}
}

// WithBaseURL points the client at a different API root (tests).
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimSuffix(base, "/")
	return c
}

type synthesizeBody struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// Synthesize returns raw PCM16 at 22050 Hz for the given text.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string, settings models.VoiceSettings) ([]byte, error) {
	if c.apiKey == "" {
		return nil, apperr.E(apperr.KindProviderOther, "tts is not configured (missing api key)")
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperr.E(apperr.KindInvalidInput, "tts text is empty")
	}

	body, err := json.Marshal(synthesizeBody{
		Text:    text,
		ModelID: modelID,
		VoiceSettings: voiceSettings{
			Stability:       settings.Stability,
			SimilarityBoost: settings.SimilarityBoost,
			Style:           settings.Style,
			UseSpeakerBoost: settings.UseSpeakerBoost,
		},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "encode tts request")
	}

	u := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=pcm_22050", c.baseURL, url.PathEscape(voiceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "build tts request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProviderTimeout, err, "tts request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ttsError(resp)
	}
	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProviderOther, err, "read tts audio")
	}
	if len(pcm) == 0 {
		return nil, apperr.E(apperr.KindProviderOther, "tts returned empty audio")
	}
	return pcm, nil
}

// Voices lists the synthesizer voices available to the account.
func (c *Client) Voices(ctx context.Context) ([]models.VoiceInfo, error) {
	if c.apiKey == "" {
		return nil, apperr.E(apperr.KindProviderOther, "tts is not configured (missing api key)")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "build voices request")
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProviderTimeout, err, "voices request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ttsError(resp)
	}

	var raw struct {
		Voices []struct {
			VoiceID  string `json:"voice_id"`
			Name     string `json:"name"`
			Category string `json:"category"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, apperr.Wrap(apperr.KindProviderOther, err, "decode voices response")
	}

	voices := make([]models.VoiceInfo, 0, len(raw.Voices))
	for _, v := range raw.Voices {
		voices = append(voices, models.VoiceInfo{VoiceID: v.VoiceID, Name: v.Name, Category: v.Category})
	}
	return voices, nil
}

func ttsError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperr.E(apperr.KindProviderRateLimited, "tts rate limit exceeded")
	case resp.StatusCode == http.StatusUnauthorized:
		return apperr.E(apperr.KindProviderOther, "tts authentication failed")
	default:
		return apperr.E(apperr.KindProviderOther, "tts: status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
}
