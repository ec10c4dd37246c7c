package models

// AnalyzeRepoRequest is the payload for POST /voice/analyze-repo.
type AnalyzeRepoRequest struct {
	RepoURL string `json:"repo_url"`
}

// AnalyzeRepoResponse seeds the client's voice session view.
type AnalyzeRepoResponse struct {
	Success               bool   `json:"success"`
	SessionID             string `json:"session_id"`
	RepoName              string `json:"repo_name"`
	RepoDescription       string `json:"repo_description,omitempty"`
	AnalysisSummary       string `json:"analysis_summary"`
	IntroductionText      string `json:"introduction_text"`
	IntroductionAudioSize int    `json:"introduction_audio_size"`
}

// STTResponse carries the transcript of an uploaded clip; empty when no
// speech was detected.
type STTResponse struct {
	Transcript string `json:"transcript"`
}

// AskRequest is the payload for POST /voice/ask.
type AskRequest struct {
	Transcript string `json:"transcript"`
}

// AskResponse is the LLM reply text for the transcript.
type AskResponse struct {
	Response string `json:"response"`
}

// TTSRequest is the payload for POST /voice/tts.
type TTSRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id,omitempty"`
}

// VoiceInfo describes one synthesizer voice for GET /voice/voices.
type VoiceInfo struct {
	VoiceID  string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}
