package handler

import (
	"context"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"gitbridge/internal/apperr"
	"gitbridge/internal/models"
	"gitbridge/internal/voice"
)

// headerSessionID threads the voice session through every voice route.
const headerSessionID = "X-Session-ID"

// VoiceService is the voice surface the handlers need.
type VoiceService interface {
	AnalyzeRepo(ctx context.Context, sessionID, repoURL string) (models.AnalyzeRepoResponse, error)
	IntroductionAudio(ctx context.Context, sessionID string) ([]byte, error)
	Transcribe(ctx context.Context, sessionID string, wavClip []byte) (models.STTResponse, error)
	Ask(ctx context.Context, sessionID, transcript string) (models.AskResponse, error)
	Speak(ctx context.Context, sessionID, text, voiceID string) ([]byte, error)
	Voices(ctx context.Context) ([]models.VoiceInfo, error)
	Interrupt(sessionID string)
	Session(id string) *voice.Session
}

// VoiceHandler wires HTTP → VoiceService.
type VoiceHandler struct {
	svc VoiceService
}

// NewVoiceHandler creates a new VoiceHandler.
func NewVoiceHandler(svc VoiceService) *VoiceHandler {
	return &VoiceHandler{svc: svc}
}

// Register mounts the voice routes on a /voice group.
func (h *VoiceHandler) Register(r fiber.Router) {
	g := r.Group("/voice")
	g.Post("/analyze-repo", h.analyzeRepo)
	g.Get("/introduction-audio", h.introductionAudio)
	g.Post("/stt", h.transcribe)
	g.Post("/ask", h.ask)
	g.Post("/tts", h.speak)
	g.Get("/voices", h.voices)
	g.Get("/status", h.status)
	g.Post("/interrupt", h.interrupt)
}

func sessionID(c *fiber.Ctx) string {
	return c.Get(headerSessionID)
}

// analyzeRepo handles POST /voice/analyze-repo  { "repo_url": "..." }
func (h *VoiceHandler) analyzeRepo(c *fiber.Ctx) error {
	var req models.AnalyzeRepoRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if strings.TrimSpace(req.RepoURL) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "repo_url is required")
	}

	resp, err := h.svc.AnalyzeRepo(c.UserContext(), sessionID(c), req.RepoURL)
	if err != nil {
		return apperr.ToFiber(err)
	}
	c.Set(headerSessionID, resp.SessionID)
	return c.JSON(resp)
}

// introductionAudio handles GET /voice/introduction-audio
func (h *VoiceHandler) introductionAudio(c *fiber.Ctx) error {
	wav, err := h.svc.IntroductionAudio(c.UserContext(), sessionID(c))
	if err != nil {
		return apperr.ToFiber(err)
	}
	c.Set(fiber.HeaderContentType, "audio/wav")
	return c.Send(wav)
}

// transcribe handles POST /voice/stt. The clip arrives either as a multipart
// "audio" file or as the raw request body, WAV in both cases.
func (h *VoiceHandler) transcribe(c *fiber.Ctx) error {
	clip, err := audioClip(c)
	if err != nil {
		return err
	}

	resp, err := h.svc.Transcribe(c.UserContext(), sessionID(c), clip)
	if err != nil {
		return apperr.ToFiber(err)
	}
	return c.JSON(resp)
}

func audioClip(c *fiber.Ctx) ([]byte, error) {
	if fh, err := c.FormFile("audio"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "unreadable audio upload")
		}
		defer f.Close()
		clip, err := io.ReadAll(f)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "unreadable audio upload")
		}
		return clip, nil
	}
	if len(c.Body()) == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "audio clip is required")
	}
	return c.Body(), nil
}

// ask handles POST /voice/ask  { "transcript": "..." }
func (h *VoiceHandler) ask(c *fiber.Ctx) error {
	var req models.AskRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}

	resp, err := h.svc.Ask(c.UserContext(), sessionID(c), req.Transcript)
	if err != nil {
		return apperr.ToFiber(err)
	}
	return c.JSON(resp)
}

// speak handles POST /voice/tts  { "text": "...", "voice_id": "..." }
func (h *VoiceHandler) speak(c *fiber.Ctx) error {
	var req models.TTSRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}

	wav, err := h.svc.Speak(c.UserContext(), sessionID(c), req.Text, req.VoiceID)
	if err != nil {
		return apperr.ToFiber(err)
	}
	c.Set(fiber.HeaderContentType, "audio/wav")
	return c.Send(wav)
}

// voices handles GET /voice/voices
func (h *VoiceHandler) voices(c *fiber.Ctx) error {
	voices, err := h.svc.Voices(c.UserContext())
	if err != nil {
		return apperr.ToFiber(err)
	}
	return c.JSON(fiber.Map{"voices": voices})
}

// status handles GET /voice/status
func (h *VoiceHandler) status(c *fiber.Ctx) error {
	sess := h.svc.Session(sessionID(c))
	state, repoName, historyLen := sess.Info()
	c.Set(headerSessionID, sess.ID)
	return c.JSON(fiber.Map{
		"session_id":     sess.ID,
		"state":          state,
		"repo_name":      repoName,
		"history_length": historyLen,
	})
}

// interrupt handles POST /voice/interrupt
func (h *VoiceHandler) interrupt(c *fiber.Ctx) error {
	h.svc.Interrupt(sessionID(c))
	return c.JSON(fiber.Map{"success": true})
}
