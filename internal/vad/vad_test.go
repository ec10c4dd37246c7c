package vad

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitbridge/internal/audio"
)

// sine generates amplitude-scaled PCM16 at 440Hz.
func sine(sampleRate int, d time.Duration, amplitude float64) []byte {
	samples := int(d.Seconds() * float64(sampleRate))
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * 32767 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return pcm
}

func clip(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestTrimFindsSpeechRegion(t *testing.T) {
	d := NewDetector(audio.DefaultSampleRate)
	lead := audio.Silence(audio.DefaultSampleRate, time.Second)
	speech := sine(audio.DefaultSampleRate, 500*time.Millisecond, 0.3)
	tail := audio.Silence(audio.DefaultSampleRate, time.Second)

	trimmed, ok := d.Trim(clip(lead, speech, tail))
	require.True(t, ok)
	// Speech plus padding, but well under the original 2.5s clip.
	got := audio.PCMDuration(len(trimmed), audio.DefaultSampleRate)
	assert.Greater(t, got, 400*time.Millisecond)
	assert.Less(t, got, time.Second)
}

func TestTrimRejectsSilence(t *testing.T) {
	d := NewDetector(audio.DefaultSampleRate)
	_, ok := d.Trim(audio.Silence(audio.DefaultSampleRate, 2*time.Second))
	assert.False(t, ok)
}

func TestTrimRejectsQuietNoise(t *testing.T) {
	d := NewDetector(audio.DefaultSampleRate)
	_, ok := d.Trim(sine(audio.DefaultSampleRate, time.Second, 0.005))
	assert.False(t, ok)
}

func TestTrimRejectsTooShort(t *testing.T) {
	d := NewDetector(audio.DefaultSampleRate)
	_, ok := d.Trim(sine(audio.DefaultSampleRate, 20*time.Millisecond, 0.5))
	assert.False(t, ok)
}

func TestSpeechDuration(t *testing.T) {
	d := NewDetector(audio.DefaultSampleRate)
	c := clip(
		audio.Silence(audio.DefaultSampleRate, 500*time.Millisecond),
		sine(audio.DefaultSampleRate, time.Second, 0.3),
	)
	got := d.SpeechDuration(c)
	assert.InDelta(t, float64(time.Second), float64(got), float64(100*time.Millisecond))
}
