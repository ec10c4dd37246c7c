package podcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitbridge/internal/models"
)

// fakeSynth returns deterministic PCM per voice; voices listed in failText
// fail every attempt.
type fakeSynth struct {
	mu       sync.Mutex
	failText map[string]bool
	calls    []string
}

func (f *fakeSynth) Synthesize(_ context.Context, text, voiceID string, _ models.VoiceSettings) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.failText[text] {
		return nil, errors.New("synthesis exploded")
	}
	return []byte(voiceID + ":" + text), nil
}

func (f *fakeSynth) Voices(context.Context) ([]models.VoiceInfo, error) { return nil, nil }

func testTurns(n int) []models.ScriptTurn {
	turns := make([]models.ScriptTurn, n)
	for i := range turns {
		speaker := models.SpeakerHost
		if i%2 == 1 {
			speaker = models.SpeakerExpert
		}
		turns[i] = models.ScriptTurn{
			Speaker: speaker,
			Text:    fmt.Sprintf("turn %d with a healthy number of spoken words", i),
			Index:   i,
		}
	}
	return turns
}

func TestBatcherDeliversInOrder(t *testing.T) {
	synth := &fakeSynth{}
	b := NewBatcher(synth)
	vs := models.DefaultVoiceSettings()

	var got []Segment
	err := b.Run(context.Background(), testTurns(5), vs, func(seg Segment) error {
		got = append(got, seg)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 5)

	for i, seg := range got {
		assert.Equal(t, i, seg.Index)
		assert.Empty(t, seg.Warning)
		wantVoice := vs.HostVoiceID
		if i%2 == 1 {
			wantVoice = vs.ExpertVoiceID
		}
		assert.Equal(t, []byte(wantVoice+":"+seg.Turn.Text), seg.PCM)
	}
}

func TestBatcherSubstitutesSilenceOnFailure(t *testing.T) {
	turns := testTurns(3)
	synth := &fakeSynth{failText: map[string]bool{turns[1].Text: true}}
	b := NewBatcher(synth)
	b.retryDelay = 0

	var got []Segment
	err := b.Run(context.Background(), turns, models.DefaultVoiceSettings(), func(seg Segment) error {
		got = append(got, seg)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Empty(t, got[0].Warning)
	assert.Contains(t, got[1].Warning, "silence")
	assert.NotEmpty(t, got[1].PCM, "silence substitute still produces audio")
	assert.Empty(t, got[2].Warning)

	// Initial attempt plus two retries for the failing turn.
	failures := 0
	for _, call := range synth.calls {
		if call == turns[1].Text {
			failures++
		}
	}
	assert.Equal(t, ttsRetries+1, failures)
}

func TestBatcherAbortsOnDeliverError(t *testing.T) {
	synth := &fakeSynth{}
	b := NewBatcher(synth)

	delivered := 0
	err := b.Run(context.Background(), testTurns(10), models.DefaultVoiceSettings(), func(seg Segment) error {
		delivered++
		if seg.Index == 1 {
			return errors.New("client went away")
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 2, delivered)
	// Pipelining may have synthesized at most one turn beyond the abort.
	assert.LessOrEqual(t, len(synth.calls), 4)
}
