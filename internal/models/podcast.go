package models

import "time"

// Speaker labels for podcast script turns. The first turn is always the host.
const (
	SpeakerHost   = "host"
	SpeakerExpert = "expert"
)

// VoiceSettings selects the two speaker voices and the synthesis quality
// knobs passed through to the TTS provider.
type VoiceSettings struct {
	HostVoiceID     string  `json:"host_voice_id"`
	ExpertVoiceID   string  `json:"expert_voice_id"`
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings mirrors the provider's recommended conversational
// preset; the voice ids are the stock podcaster pair.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		HostVoiceID:     "zGjIP4SZlMnY9m93k97r",
		ExpertVoiceID:   "L0Dsvb3SLTyegXwtm47J",
		Stability:       0.75,
		SimilarityBoost: 0.75,
		Style:           0.5,
		UseSpeakerBoost: true,
	}
}

// GeneratePodcastRequest is the payload for both podcast endpoints.
type GeneratePodcastRequest struct {
	RepoURL         string         `json:"repo_url"`
	DurationMinutes int            `json:"duration_minutes"`
	VoiceSettings   *VoiceSettings `json:"voice_settings,omitempty"`
}

// ScriptTurn is one speaker utterance. StartMS/EndMS are filled in once the
// turn's audio segment has been synthesized.
type ScriptTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Index   int    `json:"index"`
	StartMS int64  `json:"start_ms,omitempty"`
	EndMS   int64  `json:"end_ms,omitempty"`
}

// Words counts whitespace-separated words in the turn text.
func (t ScriptTurn) Words() int {
	n, inWord := 0, false
	for _, r := range t.Text {
		if r == ' ' || r == '\t' || r == '\n' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}

// PodcastFiles holds the storage handles (not URLs) of the persisted
// artifacts; the serving layer resolves them at response time.
type PodcastFiles struct {
	AudioFile    string `json:"audio_file"`
	ScriptFile   string `json:"script_file"`
	MetadataFile string `json:"metadata_file"`
}

// PodcastMetadata describes a generated episode.
type PodcastMetadata struct {
	RepoName          string    `json:"repo_name"`
	EpisodeTitle      string    `json:"episode_title"`
	EstimatedDuration string    `json:"estimated_duration"`
	KeyTopics         []string  `json:"key_topics"`
	GeneratedAt       time.Time `json:"generated_at"`
	ScriptLength      int       `json:"script_length"`
	DurationMS        int64     `json:"duration_ms"`
	Warnings          []string  `json:"warnings,omitempty"`
}

// PodcastCacheEntry is the persisted index record for one generated podcast.
type PodcastCacheEntry struct {
	CacheKey        string          `json:"cache_key"`
	RepoURL         string          `json:"repo_url"`
	DurationMinutes int             `json:"duration_minutes"`
	VoiceSettings   VoiceSettings   `json:"voice_settings"`
	Files           PodcastFiles    `json:"files"`
	Metadata        PodcastMetadata `json:"metadata"`
	CreatedAt       time.Time       `json:"created_at"`
	LastAccessed    time.Time       `json:"last_accessed"`
	AccessCount     int             `json:"access_count"`
	ContentHash     string          `json:"content_hash"`
	EstimatedCost   float64         `json:"estimated_cost"`
}

// GeneratePodcastResponse is the non-streaming endpoint's reply.
type GeneratePodcastResponse struct {
	Status        string          `json:"status"`
	CacheKey      string          `json:"cache_key"`
	Files         PodcastFiles    `json:"files"`
	Metadata      PodcastMetadata `json:"metadata"`
	AudioURL      string          `json:"audio_url"`
	ScriptURL     string          `json:"script_url"`
	EstimatedCost float64         `json:"estimated_cost"`
	FromCache     bool            `json:"from_cache"`
}

// ScriptDocument is the script endpoint's reply: the timed turn list plus
// the episode's metadata and storage handles.
type ScriptDocument struct {
	CacheKey string          `json:"cache_key"`
	Script   []ScriptTurn    `json:"script"`
	Metadata PodcastMetadata `json:"metadata"`
	Files    PodcastFiles    `json:"files"`
}

// Stream event statuses, in the order a successful build emits them.
const (
	StreamProcessing   = "processing"
	StreamSegmentReady = "segment_ready"
	StreamComplete     = "complete"
	StreamError        = "error"
)

// StreamEvent is one server-sent event of the podcast stream.
type StreamEvent struct {
	Status        string  `json:"status"`
	Progress      float64 `json:"progress"`
	Message       string  `json:"message,omitempty"`
	SegmentIndex  *int    `json:"segment_index,omitempty"`
	TotalSegments int     `json:"total_segments,omitempty"`
	SegmentURL    string  `json:"segment_url,omitempty"`
	DurationMS    int64   `json:"duration_ms,omitempty"`
	CacheKey      string  `json:"cache_key,omitempty"`
	AudioURL      string  `json:"audio_url,omitempty"`
	ScriptURL     string  `json:"script_url,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Status == StreamComplete || e.Status == StreamError
}
