package podcast

import (
	"context"
	"fmt"
	"log"
	"time"

	"gitbridge/internal/audio"
	"gitbridge/internal/models"
	"gitbridge/internal/tts"
)

// ttsRetries is the number of extra attempts per turn before the batcher
// substitutes silence and keeps going.
const ttsRetries = 2

// Segment is one synthesized turn.
type Segment struct {
	Index   int
	Turn    models.ScriptTurn
	PCM     []byte
	Warning string // non-empty when the audio is a silence substitute
}

// Batcher synthesizes script turns in order. Synthesis of turn n+1 overlaps
// delivery of turn n (a depth-1 pipeline), which hides storage and network
// latency without reordering the provider calls.
type Batcher struct {
	tts        tts.Synthesizer
	sampleRate int
	retryDelay time.Duration
}

func NewBatcher(synth tts.Synthesizer) *Batcher {
	return &Batcher{tts: synth, sampleRate: audio.DefaultSampleRate, retryDelay: time.Second}
}

// Run synthesizes every turn and hands each segment to deliver, in index
// order. A deliver error aborts the run; a synthesis failure does not, it
// degrades that turn to timed silence with a warning.
func (b *Batcher) Run(ctx context.Context, turns []models.ScriptTurn, vs models.VoiceSettings, deliver func(Segment) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	segments := make(chan Segment, 1)
	errc := make(chan error, 1)

	go func() {
		defer close(segments)
		for i, turn := range turns {
			seg := b.synthesize(ctx, i, turn, vs)
			select {
			case segments <- seg:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		for seg := range segments {
			if err := deliver(seg); err != nil {
				errc <- err
				cancel()
				return
			}
		}
		errc <- nil
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// synthesize runs one turn with retries; on exhaustion it returns timed
// silence sized from the turn's word count at the standard speaking rate.
func (b *Batcher) synthesize(ctx context.Context, index int, turn models.ScriptTurn, vs models.VoiceSettings) Segment {
	voiceID := vs.HostVoiceID
	if turn.Speaker == models.SpeakerExpert {
		voiceID = vs.ExpertVoiceID
	}

	var lastErr error
	for attempt := 0; attempt <= ttsRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * b.retryDelay):
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break
			}
		}
		pcm, err := b.tts.Synthesize(ctx, turn.Text, voiceID, vs)
		if err == nil {
			return Segment{Index: index, Turn: turn, PCM: pcm}
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	d := time.Duration(float64(turn.Words()) / wordsPerMinute * float64(time.Minute))
	log.Printf("podcast: synthesis of turn %d failed after %d attempts, substituting %s of silence: %v",
		index, ttsRetries+1, d.Round(time.Second), lastErr)
	return Segment{
		Index:   index,
		Turn:    turn,
		PCM:     audio.Silence(b.sampleRate, d),
		Warning: fmt.Sprintf("turn %d could not be synthesized; substituted %s of silence", index, d.Round(time.Second)),
	}
}
