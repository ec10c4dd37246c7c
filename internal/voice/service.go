package voice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"gitbridge/internal/apperr"
	"gitbridge/internal/audio"
	"gitbridge/internal/ingest"
	"gitbridge/internal/llm"
	"gitbridge/internal/models"
	"gitbridge/internal/stt"
	"gitbridge/internal/tts"
	"gitbridge/internal/vad"
)

// phraseCacheSize bounds the synthesized-phrase cache. Introductions and
// stock phrases repeat across sessions, so re-synthesis is pure waste.
const phraseCacheSize = 64

// answerMaxTokens keeps replies short enough to speak comfortably.
const answerMaxTokens = 600

const conversationalPrompt = "You are GitBridge Voice, a friendly, conversational AI voice assistant for developers. " +
	"Answer questions clearly and concisely, using short sentences (1-3 per response) and natural, speakable language. " +
	"Use a warm, approachable tone, like a helpful colleague. Use contractions and avoid sounding robotic. " +
	"Break down complex ideas into simple steps if needed. Reference the user's context (like repo or file) when possible. " +
	"If context is missing, ask clarifying questions. Invite follow-up questions and acknowledge interruptions gracefully. " +
	"If you're unsure, admit it and offer to help further. Keep answers brief unless the user asks for more detail."

const genericIntro = "Hello! I'm ready to discuss your repository. What would you like to know?"

// Snapshotter is the slice of the ingest layer the service needs.
type Snapshotter interface {
	Fetch(ctx context.Context, repoURL string) (*ingest.Snapshot, error)
}

// Service wires the voice pipeline together.
type Service struct {
	snap          Snapshotter
	llm           llm.Client
	tts           tts.Synthesizer
	stt           stt.Transcriber
	sessions      *Manager
	phrases       *lru.Cache[string, []byte]
	contextTokens int
	defaultVoice  string
}

func NewService(snap Snapshotter, llmClient llm.Client, synth tts.Synthesizer, transcriber stt.Transcriber, contextTokens int) *Service {
	phrases, _ := lru.New[string, []byte](phraseCacheSize)
	return &Service{
		snap:          snap,
		llm:           llmClient,
		tts:           synth,
		stt:           transcriber,
		sessions:      NewManager(),
		phrases:       phrases,
		contextTokens: contextTokens,
		defaultVoice:  models.DefaultVoiceSettings().HostVoiceID,
	}
}

// Session exposes session lookup for handlers.
func (s *Service) Session(id string) *Session {
	return s.sessions.Get(id)
}

// AnalyzeRepo studies the repository, pins its context into the session and
// pre-synthesizes the spoken introduction.
func (s *Service) AnalyzeRepo(ctx context.Context, sessionID, repoURL string) (models.AnalyzeRepoResponse, error) {
	sess := s.sessions.Get(sessionID)

	snap, err := s.snap.Fetch(ctx, repoURL)
	if err != nil {
		return models.AnalyzeRepoResponse{}, err
	}

	repoContext := ingest.BuildContext(snap, ingest.PurposeQA, s.contextTokens)
	analysis, err := s.llm.Chat(ctx, llm.Params{
		Temperature:     0.6,
		MaxOutputTokens: 2000,
		System:          conversationalPrompt,
	}, llm.User(fmt.Sprintf(
		"Analyze this repository and summarize its purpose, architecture, key technologies and notable design choices so you can answer spoken questions about it.\n\n%s",
		repoContext)))
	if err != nil {
		return models.AnalyzeRepoResponse{}, err
	}
	analysis = strings.TrimSpace(analysis)

	repoName := snap.Info.FullName
	system := fmt.Sprintf(`%s

You have deep knowledge of the GitHub repository %s.

Repository description: %s

REPOSITORY ANALYSIS:
%s

Answer questions about this specific repository: its architecture, structure, technologies, code patterns and how components work together. Keep responses conversational, as if pair programming with the user, and reference specific parts of the codebase when relevant.`,
		conversationalPrompt, repoName, orDefault(snap.Info.Description, "none available"), analysis)

	intro := fmt.Sprintf(
		"Hello! I'm your AI assistant, and I'm excited to discuss the %s repository with you today. "+
			"I've analyzed the codebase and I'm ready to help you understand its architecture, explore the code structure, or answer any questions you have about this project. "+
			"What would you like to know about %s?", repoName, repoName)

	summary := analysis
	if len(summary) > 500 {
		summary = summary[:500] + "..."
	}
	sess.BindRepo(system, repoName, snap.Info.Description, intro, summary)

	introAudio, err := s.speak(ctx, intro, s.defaultVoice)
	if err != nil {
		// Analysis succeeded; a synthesis hiccup shouldn't lose it. The
		// introduction can be fetched again later.
		log.Printf("voice: introduction synthesis failed: %v", err)
		introAudio = nil
	}

	return models.AnalyzeRepoResponse{
		Success:               true,
		SessionID:             sess.ID,
		RepoName:              repoName,
		RepoDescription:       snap.Info.Description,
		AnalysisSummary:       summary,
		IntroductionText:      intro,
		IntroductionAudioSize: len(introAudio),
	}, nil
}

// IntroductionAudio returns the session's spoken introduction as WAV.
func (s *Service) IntroductionAudio(ctx context.Context, sessionID string) ([]byte, error) {
	sess := s.sessions.Get(sessionID)
	text := sess.IntroText()
	if text == "" {
		text = genericIntro
	}
	return s.speak(ctx, text, s.defaultVoice)
}

// Transcribe gates the clip through the VAD and transcribes the speech
// region. Clips with no speech return an empty transcript without touching
// the transcription provider.
func (s *Service) Transcribe(ctx context.Context, sessionID string, wavClip []byte) (models.STTResponse, error) {
	sess := s.sessions.Get(sessionID)
	sess.setState(StateListening)
	defer sess.setState(StateIdle)

	pcm, rate, err := audio.DecodeWAV(wavClip)
	if err != nil {
		return models.STTResponse{}, err
	}

	trimmed, ok := vad.NewDetector(rate).Trim(pcm)
	if !ok {
		return models.STTResponse{Transcript: ""}, nil
	}

	transcript, err := s.stt.Transcribe(ctx, audio.EncodeWAV(trimmed, rate))
	if err != nil {
		return models.STTResponse{}, err
	}
	sess.setLastTranscript(transcript)
	return models.STTResponse{Transcript: transcript}, nil
}

// Ask answers a transcript in the session's repository context. An interrupt
// never cancels the answer in flight; the reply is small and the exchange is
// kept so the conversation stays coherent.
func (s *Service) Ask(ctx context.Context, sessionID, transcript string) (models.AskResponse, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return models.AskResponse{}, apperr.E(apperr.KindInvalidInput, "transcript is required")
	}

	sess := s.sessions.Get(sessionID)
	sess.setState(StateThinking)
	defer sess.setState(StateIdle)

	system, history := sess.conversation()
	if system == "" {
		system = conversationalPrompt
	}
	messages := append(history, llm.Message{Role: llm.RoleUser, Text: transcript})

	answer, err := s.llm.Chat(ctx, llm.Params{
		Temperature:     0.7,
		MaxOutputTokens: answerMaxTokens,
		System:          system,
	}, messages)
	if err != nil {
		return models.AskResponse{}, err
	}

	answer = strings.TrimSpace(answer)
	sess.remember(transcript, answer)
	return models.AskResponse{Response: answer}, nil
}

// Speak synthesizes arbitrary text for the session, returning WAV. The call
// is interruptible: POST /voice/interrupt aborts the synthesis and the
// session drops to listening.
func (s *Service) Speak(ctx context.Context, sessionID, text, voiceID string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.E(apperr.KindInvalidInput, "text is required")
	}
	sess := s.sessions.Get(sessionID)
	sess.setState(StateSpeaking)

	if voiceID == "" {
		voiceID = s.defaultVoice
	}

	callCtx := sess.beginInflight(ctx)
	defer sess.endInflight()

	wav, err := s.speak(callCtx, text, voiceID)
	if err != nil {
		if errors.Is(callCtx.Err(), context.Canceled) && ctx.Err() == nil {
			// Interrupted; the session is already listening again.
			return nil, apperr.E(apperr.KindInvalidInput, "synthesis was interrupted")
		}
		sess.setState(StateIdle)
		return nil, err
	}
	sess.setState(StateIdle)
	return wav, nil
}

// Voices lists the synthesizer's available voices.
func (s *Service) Voices(ctx context.Context) ([]models.VoiceInfo, error) {
	return s.tts.Voices(ctx)
}

// Interrupt aborts the session's in-flight answer, if any.
func (s *Service) Interrupt(sessionID string) {
	s.sessions.Get(sessionID).Interrupt()
}

// speak synthesizes text to WAV with an LRU over repeated phrases.
func (s *Service) speak(ctx context.Context, text, voiceID string) ([]byte, error) {
	key := phraseKey(text, voiceID)
	if wav, ok := s.phrases.Get(key); ok {
		return wav, nil
	}

	pcm, err := s.tts.Synthesize(ctx, text, voiceID, models.DefaultVoiceSettings())
	if err != nil {
		return nil, err
	}
	wav := audio.EncodeWAV(pcm, audio.DefaultSampleRate)
	s.phrases.Add(key, wav)
	return wav, nil
}

func phraseKey(text, voiceID string) string {
	h := sha256.Sum256([]byte(voiceID + "\x00" + text))
	return hex.EncodeToString(h[:])
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
