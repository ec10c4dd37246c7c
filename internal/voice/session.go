// Package voice implements the interactive Q&A surface: repository
// analysis, speech-to-text with a VAD gate, conversational answers and
// speech synthesis, all hung off per-session state.
package voice

import (
	"context"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"gitbridge/internal/llm"
)

// Session lifecycle states.
const (
	StateIdle      = "idle"
	StateListening = "listening"
	StateThinking  = "thinking"
	StateSpeaking  = "speaking"
)

// maxHistoryPairs caps the conversation memory at this many user/model
// exchanges; the system context is pinned and never trimmed.
const maxHistoryPairs = 16

// Session is one user's voice conversation. All fields are guarded by mu.
type Session struct {
	ID string

	mu              sync.Mutex
	state           string
	system          string // pinned repository context
	history         []llm.Message
	lastTranscript  string
	repoName        string
	repoDescription string
	introText       string
	analysisSummary string
	cancelInflight  context.CancelFunc
}

func newSession(id string) *Session {
	return &Session{ID: id, state: StateIdle}
}

// State returns the current lifecycle state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// BindRepo replaces the session's repository context and clears history.
func (s *Session) BindRepo(system, repoName, repoDescription, introText, analysisSummary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.system = system
	s.repoName = repoName
	s.repoDescription = repoDescription
	s.introText = introText
	s.analysisSummary = analysisSummary
	s.history = nil
	s.lastTranscript = ""
	s.state = StateIdle
}

// Snapshot of fields the status endpoint reports.
func (s *Session) Info() (state, repoName string, historyLen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.repoName, len(s.history)
}

func (s *Session) IntroText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.introText
}

func (s *Session) setLastTranscript(t string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTranscript = t
}

// conversation returns the system prompt and a copy of the history.
func (s *Session) conversation() (string, []llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return s.system, out
}

// remember appends one exchange and trims the oldest beyond the cap.
func (s *Session) remember(userText, modelText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		llm.Message{Role: llm.RoleUser, Text: userText},
		llm.Message{Role: llm.RoleModel, Text: modelText},
	)
	if over := len(s.history) - maxHistoryPairs*2; over > 0 {
		s.history = append([]llm.Message(nil), s.history[over:]...)
	}
}

// beginInflight registers a cancellable context for the current synthesis
// call so an interrupt can abort it. It returns the derived context.
func (s *Session) beginInflight(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancelInflight != nil {
		s.cancelInflight()
	}
	s.cancelInflight = cancel
	s.mu.Unlock()
	return ctx
}

func (s *Session) endInflight() {
	s.mu.Lock()
	if s.cancelInflight != nil {
		s.cancelInflight()
		s.cancelInflight = nil
	}
	s.mu.Unlock()
}

// Interrupt aborts any in-flight synthesis and moves to listening, ready for
// the user's next utterance. An in-flight answer is left to finish.
func (s *Session) Interrupt() {
	s.mu.Lock()
	if s.cancelInflight != nil {
		s.cancelInflight()
		s.cancelInflight = nil
	}
	s.state = StateListening
	s.mu.Unlock()
}

// maxSessions bounds how many conversations are held in memory at once; the
// least recently touched session is evicted past the cap. An evicted client
// comes back as a fresh session and re-analyzes its repository.
const maxSessions = 512

// Manager hands out sessions by id, creating them on first sight.
type Manager struct {
	sessions *lru.Cache[string, *Session]
}

func NewManager() *Manager {
	sessions, _ := lru.New[string, *Session](maxSessions)
	return &Manager{sessions: sessions}
}

// Get returns the session for id, minting a fresh id when blank.
func (m *Manager) Get(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	if s, ok := m.sessions.Get(id); ok {
		return s
	}
	s := newSession(id)
	// Two first contacts racing on one id must converge on one session.
	if prev, existed, _ := m.sessions.PeekOrAdd(id, s); existed {
		return prev
	}
	return s
}
