package podcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gitbridge/internal/apperr"
	"gitbridge/internal/audio"
	"gitbridge/internal/ingest"
	"gitbridge/internal/models"
	"gitbridge/internal/storage"
)

// turnGapMS is the silence inserted between consecutive turns.
const turnGapMS = 200

// presignTTL bounds direct-download URLs minted for object storage.
const presignTTL = time.Hour

// costPerChar approximates the synthesis provider's per-character price,
// used for the cost estimate surfaced in responses.
const costPerChar = 0.00011

// Snapshotter is the slice of the ingest layer the service needs.
type Snapshotter interface {
	Fetch(ctx context.Context, repoURL string) (*ingest.Snapshot, error)
}

// Service owns podcast generation end to end: cache lookup, script
// generation, synthesis, assembly, persistence and streaming fan-out.
type Service struct {
	snap          Snapshotter
	scripts       *ScriptGenerator
	batcher       *Batcher
	store         storage.Backend
	index         *storage.Index
	registry      *Registry
	baseURL       string
	contextTokens int
	buildTimeout  time.Duration
}

func NewService(
	snap Snapshotter,
	scripts *ScriptGenerator,
	batcher *Batcher,
	store storage.Backend,
	index *storage.Index,
	baseURL string,
	contextTokens int,
	buildTimeout time.Duration,
) *Service {
	return &Service{
		snap:          snap,
		scripts:       scripts,
		batcher:       batcher,
		store:         store,
		index:         index,
		registry:      NewRegistry(),
		baseURL:       baseURL,
		contextTokens: contextTokens,
		buildTimeout:  buildTimeout,
	}
}

// normalize validates the request and derives its cache identity.
func (s *Service) normalize(req models.GeneratePodcastRequest) (normURL, cacheKey string, vs models.VoiceSettings, err error) {
	normURL, err = storage.NormalizeRepoURL(req.RepoURL)
	if err != nil {
		return "", "", vs, err
	}
	if req.DurationMinutes < 1 || req.DurationMinutes > 15 {
		return "", "", vs, apperr.E(apperr.KindInvalidInput, "duration_minutes must be between 1 and 15")
	}
	vs = models.DefaultVoiceSettings()
	if req.VoiceSettings != nil {
		vs = *req.VoiceSettings
	}
	for _, knob := range []struct {
		name  string
		value float64
	}{
		{"stability", vs.Stability},
		{"similarity_boost", vs.SimilarityBoost},
		{"style", vs.Style},
	} {
		if knob.value < 0 || knob.value > 1 {
			return "", "", vs, apperr.E(apperr.KindInvalidInput,
				"%s must be between 0 and 1, got %g", knob.name, knob.value)
		}
	}
	return normURL, storage.CacheKey(normURL, req.DurationMinutes, vs), vs, nil
}

// Generate builds (or reuses) a podcast synchronously.
func (s *Service) Generate(ctx context.Context, req models.GeneratePodcastRequest) (models.GeneratePodcastResponse, error) {
	normURL, key, vs, err := s.normalize(req)
	if err != nil {
		return models.GeneratePodcastResponse{}, err
	}

	bc, owner := s.registry.Begin(key)
	if owner {
		defer s.registry.End(key)
		entry, fromCache, err := s.build(ctx, bc, key, normURL, req.DurationMinutes, vs)
		if err != nil {
			return models.GeneratePodcastResponse{}, err
		}
		return s.response(ctx, entry, fromCache), nil
	}

	// Another request is already building this key; ride along.
	events, cancel := bc.Subscribe()
	defer cancel()
	for ev := range events {
		if !ev.Terminal() {
			continue
		}
		if ev.Status == models.StreamError {
			return models.GeneratePodcastResponse{}, apperr.E(apperr.KindInternal, "%s", ev.Message)
		}
		break
	}
	entry, ok := s.index.Get(key)
	if !ok {
		return models.GeneratePodcastResponse{}, apperr.E(apperr.KindInternal, "build finished but cache entry %s is missing", key)
	}
	return s.response(ctx, entry, true), nil
}

// Stream returns the event channel for a build, starting one if none is in
// flight. The channel replays history for late subscribers and closes on
// the terminal event. cancel releases the subscription. The build itself
// runs on a detached context bounded by the configured build timeout, so a
// disconnecting subscriber never kills a shared build.
func (s *Service) Stream(req models.GeneratePodcastRequest) (<-chan models.StreamEvent, func(), error) {
	normURL, key, vs, err := s.normalize(req)
	if err != nil {
		return nil, nil, err
	}

	bc, owner := s.registry.Begin(key)
	events, cancel := bc.Subscribe()
	if owner {
		// The build outlives the subscriber that started it.
		go func() {
			bctx, done := context.WithTimeout(context.Background(), s.buildTimeout)
			defer done()
			defer s.registry.End(key)
			if _, _, err := s.build(bctx, bc, key, normURL, req.DurationMinutes, vs); err != nil {
				log.Printf("podcast: build %s failed: %v", key, err)
			}
		}()
	}
	return events, cancel, nil
}

// build runs the full pipeline, publishing progress to bc. Every return
// path has published a terminal event first.
func (s *Service) build(ctx context.Context, bc *Broadcast, key, normURL string, durationMinutes int, vs models.VoiceSettings) (models.PodcastCacheEntry, bool, error) {
	fail := func(err error) (models.PodcastCacheEntry, bool, error) {
		// Segments stored before the failure would otherwise be orphaned;
		// nothing indexes them once the build is abandoned.
		s.deleteSegments(context.Background(), key)
		bc.Publish(models.StreamEvent{
			Status:   models.StreamError,
			Message:  fmt.Sprintf("%s: %s", apperr.KindOf(err), apperr.Message(err)),
			CacheKey: key,
		})
		return models.PodcastCacheEntry{}, false, err
	}

	bc.Publish(models.StreamEvent{
		Status: models.StreamProcessing, Progress: 0.02,
		Message: "Fetching repository snapshot", CacheKey: key,
	})

	snap, err := s.snap.Fetch(ctx, normURL)
	if err != nil {
		return fail(err)
	}

	// Cache reuse requires the artifacts to still exist and the repository
	// not to have changed since they were generated.
	if entry, ok := s.index.Get(key); ok {
		if entry.ContentHash == snap.ContentHash && s.artifactsExist(ctx, entry.Files) {
			if err := s.index.Touch(ctx, key); err != nil {
				log.Printf("podcast: touch %s: %v", key, err)
			}
			bc.Publish(s.completeEvent(ctx, entry))
			return entry, true, nil
		}
		log.Printf("podcast: cache entry %s is stale, regenerating", key)
		s.evict(ctx, entry)
	}

	bc.Publish(models.StreamEvent{
		Status: models.StreamProcessing, Progress: 0.1,
		Message: "Writing the episode script", CacheKey: key,
	})

	repoContext := ingest.BuildContext(snap, ingest.PurposePodcast, s.contextTokens)
	script, err := s.scripts.Generate(ctx, snap.Info.FullName, repoContext, durationMinutes)
	if err != nil {
		return fail(err)
	}

	total := len(script.Turns)
	bc.Publish(models.StreamEvent{
		Status: models.StreamProcessing, Progress: 0.2,
		Message:       fmt.Sprintf("Synthesizing %d segments", total),
		TotalSegments: total, CacheKey: key,
	})

	var (
		pcms     [][]byte
		warnings []string
		cursorMS int64
	)
	err = s.batcher.Run(ctx, script.Turns, vs, func(seg Segment) error {
		segKey := segmentKey(key, seg.Index)
		wav := audio.EncodeWAV(seg.PCM, audio.DefaultSampleRate)
		if err := s.store.Put(ctx, segKey, wav, "audio/wav"); err != nil {
			return err
		}

		durMS := audio.PCMDuration(len(seg.PCM), audio.DefaultSampleRate).Milliseconds()
		script.Turns[seg.Index].StartMS = cursorMS
		script.Turns[seg.Index].EndMS = cursorMS + durMS
		cursorMS += durMS + turnGapMS

		if seg.Warning != "" {
			warnings = append(warnings, seg.Warning)
		}
		pcms = append(pcms, seg.PCM)

		idx := seg.Index
		bc.Publish(models.StreamEvent{
			Status:        models.StreamSegmentReady,
			Progress:      0.2 + 0.75*float64(idx+1)/float64(total),
			SegmentIndex:  &idx,
			TotalSegments: total,
			SegmentURL:    fmt.Sprintf("%s/podcast-segment/%s/%d", s.baseURL, key, idx),
			DurationMS:    durMS,
			CacheKey:      key,
		})
		return nil
	})
	if err != nil {
		return fail(err)
	}

	entry, err := s.persist(ctx, key, normURL, durationMinutes, vs, snap.ContentHash, script, pcms, warnings)
	if err != nil {
		return fail(err)
	}

	bc.Publish(s.completeEvent(ctx, entry))
	return entry, false, nil
}

// persist assembles the final audio and writes the three artifacts plus the
// index entry.
func (s *Service) persist(ctx context.Context, key, normURL string, durationMinutes int, vs models.VoiceSettings, contentHash string, script *ScriptResult, pcms [][]byte, warnings []string) (models.PodcastCacheEntry, error) {
	joined := audio.ConcatPCM(pcms, audio.DefaultSampleRate, turnGapMS*time.Millisecond)
	wav := audio.EncodeWAV(joined, audio.DefaultSampleRate)

	stamp := time.Now().UTC().Format("20060102_150405")
	files := models.PodcastFiles{
		AudioFile:    fmt.Sprintf("%spodcast_%s_%s.wav", storage.PrefixAudio, key, stamp),
		ScriptFile:   fmt.Sprintf("%sscript_%s_%s.json", storage.PrefixScripts, key, stamp),
		MetadataFile: fmt.Sprintf("%smeta_%s_%s.json", storage.PrefixMetadata, key, stamp),
	}

	meta := script.Metadata
	meta.DurationMS = audio.PCMDuration(len(joined), audio.DefaultSampleRate).Milliseconds()
	meta.Warnings = warnings

	scriptDoc, err := json.MarshalIndent(script.Turns, "", "  ")
	if err != nil {
		return models.PodcastCacheEntry{}, apperr.Wrap(apperr.KindInternal, err, "encode script")
	}
	metaDoc, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return models.PodcastCacheEntry{}, apperr.Wrap(apperr.KindInternal, err, "encode metadata")
	}

	if err := s.store.Put(ctx, files.AudioFile, wav, "audio/wav"); err != nil {
		return models.PodcastCacheEntry{}, err
	}
	if err := s.store.Put(ctx, files.ScriptFile, scriptDoc, "application/json"); err != nil {
		return models.PodcastCacheEntry{}, err
	}
	if err := s.store.Put(ctx, files.MetadataFile, metaDoc, "application/json"); err != nil {
		return models.PodcastCacheEntry{}, err
	}

	chars := 0
	for _, t := range script.Turns {
		chars += len(t.Text)
	}

	entry := models.PodcastCacheEntry{
		CacheKey:        key,
		RepoURL:         normURL,
		DurationMinutes: durationMinutes,
		VoiceSettings:   vs,
		Files:           files,
		Metadata:        meta,
		CreatedAt:       time.Now().UTC(),
		LastAccessed:    time.Now().UTC(),
		AccessCount:     0,
		ContentHash:     contentHash,
		EstimatedCost:   float64(chars) * costPerChar,
	}
	if err := s.index.Put(ctx, entry); err != nil {
		return models.PodcastCacheEntry{}, err
	}
	return entry, nil
}

func (s *Service) completeEvent(ctx context.Context, entry models.PodcastCacheEntry) models.StreamEvent {
	return models.StreamEvent{
		Status:     models.StreamComplete,
		Progress:   1,
		Message:    entry.Metadata.EpisodeTitle,
		CacheKey:   entry.CacheKey,
		DurationMS: entry.Metadata.DurationMS,
		AudioURL:   s.artifactURL(ctx, entry.Files.AudioFile, "/podcast-audio/"+entry.CacheKey),
		ScriptURL:  s.artifactURL(ctx, entry.Files.ScriptFile, "/podcast-script/"+entry.CacheKey),
	}
}

func (s *Service) response(ctx context.Context, entry models.PodcastCacheEntry, fromCache bool) models.GeneratePodcastResponse {
	return models.GeneratePodcastResponse{
		Status:        "completed",
		CacheKey:      entry.CacheKey,
		Files:         entry.Files,
		Metadata:      entry.Metadata,
		AudioURL:      s.artifactURL(ctx, entry.Files.AudioFile, "/podcast-audio/"+entry.CacheKey),
		ScriptURL:     s.artifactURL(ctx, entry.Files.ScriptFile, "/podcast-script/"+entry.CacheKey),
		EstimatedCost: entry.EstimatedCost,
		FromCache:     fromCache,
	}
}

// artifactURL prefers a presigned direct URL and falls back to the API route.
func (s *Service) artifactURL(ctx context.Context, objectKey, route string) string {
	if u, ok, err := s.store.Presign(ctx, objectKey, presignTTL); err == nil && ok {
		return u
	}
	return s.baseURL + route
}

// evict drops a stale entry and its artifacts.
func (s *Service) evict(ctx context.Context, entry models.PodcastCacheEntry) {
	for _, key := range []string{entry.Files.AudioFile, entry.Files.ScriptFile, entry.Files.MetadataFile} {
		if key == "" {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			log.Printf("podcast: delete %s: %v", key, err)
		}
	}
	if err := s.index.Remove(ctx, entry.CacheKey); err != nil {
		log.Printf("podcast: remove index entry %s: %v", entry.CacheKey, err)
	}
}

// deleteSegments removes every stored segment WAV for the key.
func (s *Service) deleteSegments(ctx context.Context, cacheKey string) {
	objs, err := s.store.List(ctx, storage.PrefixSegments+cacheKey+"/")
	if err != nil {
		log.Printf("podcast: list segments %s: %v", cacheKey, err)
		return
	}
	for _, o := range objs {
		if err := s.store.Delete(ctx, o.Key); err != nil {
			log.Printf("podcast: delete %s: %v", o.Key, err)
		}
	}
}

// artifactsExist reports whether the three storage handles behind an index
// entry are still present.
func (s *Service) artifactsExist(ctx context.Context, files models.PodcastFiles) bool {
	for _, key := range []string{files.AudioFile, files.ScriptFile, files.MetadataFile} {
		objs, err := s.store.List(ctx, key)
		if err != nil || len(objs) == 0 {
			return false
		}
	}
	return true
}

func segmentKey(cacheKey string, index int) string {
	return fmt.Sprintf("%s%s/segment_%03d.wav", storage.PrefixSegments, cacheKey, index)
}

// Audio returns the assembled episode audio and records the access.
func (s *Service) Audio(ctx context.Context, cacheKey string) ([]byte, error) {
	entry, ok := s.index.Get(cacheKey)
	if !ok {
		return nil, apperr.E(apperr.KindNotFound, "podcast %s not found", cacheKey)
	}
	data, err := s.store.Get(ctx, entry.Files.AudioFile)
	if err != nil {
		return nil, err
	}
	if err := s.index.Touch(ctx, cacheKey); err != nil {
		log.Printf("podcast: touch %s: %v", cacheKey, err)
	}
	return data, nil
}

// Script returns the persisted turn list together with the episode's
// metadata and storage handles.
func (s *Service) Script(ctx context.Context, cacheKey string) (models.ScriptDocument, error) {
	entry, ok := s.index.Get(cacheKey)
	if !ok {
		return models.ScriptDocument{}, apperr.E(apperr.KindNotFound, "podcast %s not found", cacheKey)
	}
	data, err := s.store.Get(ctx, entry.Files.ScriptFile)
	if err != nil {
		return models.ScriptDocument{}, err
	}
	var turns []models.ScriptTurn
	if err := json.Unmarshal(data, &turns); err != nil {
		return models.ScriptDocument{}, apperr.Wrap(apperr.KindInternal, err, "decode script %s", cacheKey)
	}
	return models.ScriptDocument{
		CacheKey: cacheKey,
		Script:   turns,
		Metadata: entry.Metadata,
		Files:    entry.Files,
	}, nil
}

// Segment returns one segment's WAV, available while a build streams and
// afterwards.
func (s *Service) Segment(ctx context.Context, cacheKey string, index int) ([]byte, error) {
	if index < 0 {
		return nil, apperr.E(apperr.KindInvalidInput, "segment index must be non-negative")
	}
	return s.store.Get(ctx, segmentKey(cacheKey, index))
}

// Cached lists every cataloged podcast, newest first.
func (s *Service) Cached() []models.PodcastCacheEntry {
	return s.index.All()
}

// StorageStats summarizes artifact usage per prefix.
type StorageStats struct {
	Podcasts   int              `json:"podcasts"`
	TotalBytes int64            `json:"total_bytes"`
	ByPrefix   map[string]int64 `json:"by_prefix"`
}

// Stats walks the artifact prefixes and tallies object sizes.
func (s *Service) Stats(ctx context.Context) (StorageStats, error) {
	stats := StorageStats{Podcasts: s.index.Len(), ByPrefix: map[string]int64{}}
	for _, prefix := range []string{storage.PrefixAudio, storage.PrefixScripts, storage.PrefixMetadata, storage.PrefixSegments} {
		objs, err := s.store.List(ctx, prefix)
		if err != nil {
			return StorageStats{}, err
		}
		for _, o := range objs {
			stats.ByPrefix[prefix] += o.Size
			stats.TotalBytes += o.Size
		}
	}
	return stats, nil
}

// CleanupOlderThan removes podcasts whose last access is older than maxAge,
// along with their artifacts and segments. Returns how many were removed.
func (s *Service) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range s.index.All() {
		last := entry.LastAccessed
		if last.IsZero() {
			last = entry.CreatedAt
		}
		if last.After(cutoff) {
			continue
		}
		s.evict(ctx, entry)
		s.deleteSegments(ctx, entry.CacheKey)
		removed++
	}
	return removed, nil
}
