package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"gitbridge/internal/apperr"
	"gitbridge/internal/models"
)

// NormalizeRepoURL canonicalizes a repository URL so that trivially
// different spellings share one cache identity: lowercase owner and name,
// no scheme/host variance, no trailing slash or .git suffix.
func NormalizeRepoURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", apperr.E(apperr.KindInvalidInput, "repo_url is required")
	}
	if i := strings.Index(strings.ToLower(s), "github.com/"); i >= 0 {
		s = s[i+len("github.com/"):]
	} else if strings.Contains(s, "://") {
		return "", apperr.E(apperr.KindInvalidInput, "unsupported repository host in %q", raw)
	}
	parts := strings.Split(strings.TrimSuffix(s, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", apperr.E(apperr.KindInvalidInput, "invalid repository URL %q", raw)
	}
	owner := strings.ToLower(parts[0])
	name := strings.ToLower(strings.TrimSuffix(parts[1], ".git"))
	return "https://github.com/" + owner + "/" + name, nil
}

// CacheKey derives the podcast cache identity from everything that changes
// the produced audio: the normalized URL, the target duration and the voice
// configuration. The voice settings are rendered as canonical JSON (keys
// sorted, floats rounded to 4 decimals) so equivalent settings always hash
// the same. Full SHA-256, hex encoded.
func CacheKey(normalizedURL string, durationMinutes int, vs models.VoiceSettings) string {
	canon := fmt.Sprintf(
		`{"expert_voice_id":%q,"host_voice_id":%q,"similarity_boost":%.4f,"stability":%.4f,"style":%.4f,"use_speaker_boost":%t}`,
		vs.ExpertVoiceID, vs.HostVoiceID,
		vs.SimilarityBoost, vs.Stability, vs.Style, vs.UseSpeakerBoost)
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", normalizedURL, durationMinutes, canon)))
	return hex.EncodeToString(h[:])
}
