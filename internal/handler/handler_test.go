package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitbridge/internal/apperr"
	"gitbridge/internal/ingest"
	"gitbridge/internal/models"
	"gitbridge/internal/podcast"
	"gitbridge/internal/storage"
	"gitbridge/internal/voice"
)

type fakeFetcher struct {
	err error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (*ingest.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ingest.Snapshot{
		Info:   models.RepoInfo{Owner: "acme", Name: "rocket", FullName: "acme/rocket"},
		Tree:   []models.TreeEntry{{Path: "main.go", Type: "file"}},
		Readme: "# rocket",
	}, nil
}

type fakeInfo struct{}

func (fakeInfo) GetRepoInfo(_ context.Context, owner, name string) (models.RepoInfo, error) {
	if owner == "missing" {
		return models.RepoInfo{}, apperr.E(apperr.KindUpstreamNotFound, "repository %s/%s not found", owner, name)
	}
	return models.RepoInfo{Owner: owner, Name: name, FullName: owner + "/" + name}, nil
}

type fakeDiagrams struct {
	err error
}

func (f *fakeDiagrams) Generate(_ context.Context, _, _ string) (models.GenerateDiagramResponse, error) {
	if f.err != nil {
		return models.GenerateDiagramResponse{}, f.err
	}
	return models.GenerateDiagramResponse{DiagramCode: "flowchart TD\n  A --> B", Explanation: "two boxes"}, nil
}

type fakePodcasts struct {
	events []models.StreamEvent
}

func (f *fakePodcasts) Generate(_ context.Context, req models.GeneratePodcastRequest) (models.GeneratePodcastResponse, error) {
	if req.RepoURL == "" {
		return models.GeneratePodcastResponse{}, apperr.E(apperr.KindInvalidInput, "repository URL is required")
	}
	return models.GeneratePodcastResponse{Status: "completed", CacheKey: "abc123", FromCache: false}, nil
}

func (f *fakePodcasts) Stream(_ models.GeneratePodcastRequest) (<-chan models.StreamEvent, func(), error) {
	ch := make(chan models.StreamEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, func() {}, nil
}

func (f *fakePodcasts) Audio(_ context.Context, key string) ([]byte, error) {
	if key != "abc123" {
		return nil, apperr.E(apperr.KindNotFound, "no podcast for cache key %s", key)
	}
	return []byte("RIFFfakewav"), nil
}

func (f *fakePodcasts) Script(_ context.Context, key string) (models.ScriptDocument, error) {
	return models.ScriptDocument{
		CacheKey: key,
		Script:   []models.ScriptTurn{{Speaker: models.SpeakerHost, Text: "hi", Index: 0}},
		Metadata: models.PodcastMetadata{ScriptLength: 1},
	}, nil
}

func (f *fakePodcasts) Segment(_ context.Context, key string, index int) ([]byte, error) {
	if index > 0 {
		return nil, apperr.E(apperr.KindNotFound, "segment %d not found", index)
	}
	return []byte("RIFFsegment"), nil
}

func (f *fakePodcasts) Cached() []models.PodcastCacheEntry {
	return []models.PodcastCacheEntry{{CacheKey: "abc123", RepoURL: "https://github.com/acme/rocket"}}
}

func (f *fakePodcasts) Stats(_ context.Context) (podcast.StorageStats, error) {
	return podcast.StorageStats{Podcasts: 1, TotalBytes: 42, ByPrefix: map[string]int64{storage.PrefixAudio: 42}}, nil
}

func (f *fakePodcasts) CleanupOlderThan(_ context.Context, _ time.Duration) (int, error) {
	return 2, nil
}

type fakeVoice struct {
	sessions    *voice.Manager
	interrupted string
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{sessions: voice.NewManager()}
}

func (f *fakeVoice) AnalyzeRepo(_ context.Context, sessionID, repoURL string) (models.AnalyzeRepoResponse, error) {
	sess := f.sessions.Get(sessionID)
	return models.AnalyzeRepoResponse{
		Success: true, SessionID: sess.ID, RepoName: "acme/rocket",
		AnalysisSummary: "summary", IntroductionText: "hello", IntroductionAudioSize: 9,
	}, nil
}

func (f *fakeVoice) IntroductionAudio(_ context.Context, _ string) ([]byte, error) {
	return []byte("RIFFintro"), nil
}

func (f *fakeVoice) Transcribe(_ context.Context, _ string, clip []byte) (models.STTResponse, error) {
	if len(clip) < 4 {
		return models.STTResponse{}, apperr.E(apperr.KindInvalidInput, "clip too short")
	}
	return models.STTResponse{Transcript: "what is this"}, nil
}

func (f *fakeVoice) Ask(_ context.Context, _, transcript string) (models.AskResponse, error) {
	if strings.TrimSpace(transcript) == "" {
		return models.AskResponse{}, apperr.E(apperr.KindInvalidInput, "transcript is required")
	}
	return models.AskResponse{Response: "an answer"}, nil
}

func (f *fakeVoice) Speak(_ context.Context, _, text, _ string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.E(apperr.KindInvalidInput, "text is required")
	}
	return []byte("RIFFspeech"), nil
}

func (f *fakeVoice) Voices(_ context.Context) ([]models.VoiceInfo, error) {
	return []models.VoiceInfo{{VoiceID: "v1", Name: "Alice"}}, nil
}

func (f *fakeVoice) Interrupt(sessionID string) { f.interrupted = sessionID }

func (f *fakeVoice) Session(id string) *voice.Session { return f.sessions.Get(id) }

func newTestApp(t *testing.T) (*fiber.App, *fakePodcasts, *fakeVoice) {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	podcasts := &fakePodcasts{events: []models.StreamEvent{
		{Status: models.StreamProcessing, Progress: 0.1, Message: "working"},
		{Status: models.StreamComplete, Progress: 1, CacheKey: "abc123"},
	}}
	voices := newFakeVoice()

	app := fiber.New()
	RegisterRoutes(app, &fakeFetcher{}, fakeInfo{}, &fakeDiagrams{}, podcasts, voices, store, "gemini-2.0-flash-001")
	return app, podcasts, voices
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestParseRepo(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodPost, "/parse-repo",
		models.ParseRepoRequest{RepoURL: "https://github.com/acme/rocket"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out models.ParseRepoResponse
	decodeBody(t, resp, &out)
	assert.Contains(t, out.FileTree, "main.go")
	assert.Equal(t, "# rocket", out.ReadmeContent)
	assert.Equal(t, "acme/rocket", out.RepoInfo.FullName)
}

func TestParseRepoRequiresURL(t *testing.T) {
	app, _, _ := newTestApp(t)
	resp := doJSON(t, app, fiber.MethodPost, "/parse-repo", models.ParseRepoRequest{}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestParseRepoMapsUpstreamError(t *testing.T) {
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	app := fiber.New()
	fetcher := &fakeFetcher{err: apperr.E(apperr.KindUpstreamNotFound, "repository not found")}
	RegisterRoutes(app, fetcher, fakeInfo{}, &fakeDiagrams{}, &fakePodcasts{}, newFakeVoice(), store, "gemini-2.0-flash-001")

	resp := doJSON(t, app, fiber.MethodPost, "/parse-repo",
		models.ParseRepoRequest{RepoURL: "https://github.com/acme/gone"}, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGenerateDiagram(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodPost, "/generate-diagram",
		models.GenerateDiagramRequest{FileTree: "main.go"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out models.GenerateDiagramResponse
	decodeBody(t, resp, &out)
	assert.Contains(t, out.DiagramCode, "flowchart")

	resp = doJSON(t, app, fiber.MethodPost, "/generate-diagram",
		models.GenerateDiagramRequest{}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRepoInfo(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodGet, "/repo-info/acme/rocket", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out models.RepoInfo
	decodeBody(t, resp, &out)
	assert.Equal(t, "acme/rocket", out.FullName)

	resp = doJSON(t, app, fiber.MethodGet, "/repo-info/missing/repo", nil, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGeneratePodcast(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodPost, "/generate-podcast",
		models.GeneratePodcastRequest{RepoURL: "https://github.com/acme/rocket"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out models.GeneratePodcastResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, "completed", out.Status)
	assert.Equal(t, "abc123", out.CacheKey)
}

func TestGeneratePodcastStreamFramesSSE(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodPost, "/generate-podcast-stream",
		models.GeneratePodcastRequest{RepoURL: "https://github.com/acme/rocket"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get(fiber.HeaderContentType))

	defer resp.Body.Close()
	var events []models.StreamEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev models.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.Equal(t, models.StreamProcessing, events[0].Status)
	assert.Equal(t, models.StreamComplete, events[1].Status)
	assert.Equal(t, "abc123", events[1].CacheKey)
}

func TestPodcastArtifacts(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodGet, "/podcast-audio/abc123", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get(fiber.HeaderContentType))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "RIFF", string(body[:4]))

	resp = doJSON(t, app, fiber.MethodGet, "/podcast-audio/nope", nil, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, app, fiber.MethodGet, "/podcast-script/abc123", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var doc models.ScriptDocument
	decodeBody(t, resp, &doc)
	assert.Equal(t, "abc123", doc.CacheKey)
	require.Len(t, doc.Script, 1)

	resp = doJSON(t, app, fiber.MethodGet, "/podcast-segment/abc123/0", nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, fiber.MethodGet, "/podcast-segment/abc123/notanumber", nil, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCachedPodcastsAndStats(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodGet, "/cached-podcasts", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var cached struct {
		Count    int                        `json:"count"`
		Podcasts []models.PodcastCacheEntry `json:"podcasts"`
	}
	decodeBody(t, resp, &cached)
	assert.Equal(t, 1, cached.Count)

	resp = doJSON(t, app, fiber.MethodGet, "/storage-stats", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var stats podcast.StorageStats
	decodeBody(t, resp, &stats)
	assert.Equal(t, 1, stats.Podcasts)
}

func TestCleanup(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodDelete, "/cleanup-old-files?days_old=1", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out map[string]int
	decodeBody(t, resp, &out)
	assert.Equal(t, 2, out["removed"])
	assert.Equal(t, 1, out["days_old"])
}

func TestVoiceAnalyzeRepoEchoesSession(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodPost, "/voice/analyze-repo",
		models.AnalyzeRepoRequest{RepoURL: "https://github.com/acme/rocket"},
		map[string]string{headerSessionID: "sess-9"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "sess-9", resp.Header.Get(headerSessionID))

	var out models.AnalyzeRepoResponse
	decodeBody(t, resp, &out)
	assert.True(t, out.Success)
	assert.Equal(t, "sess-9", out.SessionID)
}

func TestVoiceSTTRawBody(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/voice/stt", bytes.NewReader([]byte("RIFFclipbytes")))
	req.Header.Set(headerSessionID, "sess-9")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out models.STTResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, "what is this", out.Transcript)
}

func TestVoiceSTTMissingClip(t *testing.T) {
	app, _, _ := newTestApp(t)
	req := httptest.NewRequest(fiber.MethodPost, "/voice/stt", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestVoiceAskAndTTS(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodPost, "/voice/ask",
		models.AskRequest{Transcript: "what is this repo"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out models.AskResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, "an answer", out.Response)

	resp = doJSON(t, app, fiber.MethodPost, "/voice/ask", models.AskRequest{}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, fiber.MethodPost, "/voice/tts",
		models.TTSRequest{Text: "say this"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get(fiber.HeaderContentType))
}

func TestVoiceStatusAndInterrupt(t *testing.T) {
	app, _, voices := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodGet, "/voice/status", nil,
		map[string]string{headerSessionID: "sess-9"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var status map[string]any
	decodeBody(t, resp, &status)
	assert.Equal(t, "sess-9", status["session_id"])
	assert.Equal(t, voice.StateIdle, status["state"])

	resp = doJSON(t, app, fiber.MethodPost, "/voice/interrupt", nil,
		map[string]string{headerSessionID: "sess-9"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "sess-9", voices.interrupted)
}

func TestHealth(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doJSON(t, app, fiber.MethodGet, "/health", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out map[string]string
	decodeBody(t, resp, &out)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "gemini-2.0-flash-001", out["model"])
	assert.Equal(t, "connected", out["storage"])
}
