// Package vad gates the speech-to-text path with a cheap energy-based
// voice activity detector. It trims leading and trailing silence and
// rejects clips with no audible speech at all, so the transcriber never
// burns a call on dead air.
package vad

import (
	"math"
	"time"

	"gitbridge/internal/audio"
)

const (
	// windowMS is the analysis frame length.
	windowMS = 30
	// speechRMS is the minimum per-window RMS (of full-scale int16) treated
	// as speech. Tuned against typical browser microphone capture.
	speechRMS = 0.012
	// minSpeechWindows is how many speech windows a clip needs before we
	// consider it to contain speech at all.
	minSpeechWindows = 3
	// padMS keeps a little context around the detected speech region.
	padMS = 120
)

// Detector trims PCM16 clips to their speech region.
type Detector struct {
	sampleRate int
}

func NewDetector(sampleRate int) *Detector {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &Detector{sampleRate: sampleRate}
}

// Trim returns the speech region of pcm with padding, and whether any
// speech was found. When none is found the returned slice is nil.
func (d *Detector) Trim(pcm []byte) ([]byte, bool) {
	win := d.sampleRate * windowMS / 1000 * 2 // bytes per window
	if win == 0 || len(pcm) < win {
		return nil, false
	}

	firstWin, lastWin := -1, -1
	speechWins := 0
	n := len(pcm) / win
	for i := 0; i < n; i++ {
		if rms(pcm[i*win:(i+1)*win]) >= speechRMS {
			speechWins++
			if firstWin < 0 {
				firstWin = i
			}
			lastWin = i
		}
	}
	if speechWins < minSpeechWindows {
		return nil, false
	}

	pad := d.sampleRate * padMS / 1000 * 2
	start := firstWin*win - pad
	if start < 0 {
		start = 0
	}
	end := (lastWin+1)*win + pad
	if end > len(pcm) {
		end = len(pcm)
	}
	return pcm[start:end], true
}

// SpeechDuration reports how much audible speech the clip contains.
func (d *Detector) SpeechDuration(pcm []byte) time.Duration {
	win := d.sampleRate * windowMS / 1000 * 2
	if win == 0 {
		return 0
	}
	speech := 0
	for i := 0; i+win <= len(pcm); i += win {
		if rms(pcm[i:i+win]) >= speechRMS {
			speech++
		}
	}
	return time.Duration(speech) * windowMS * time.Millisecond
}

// rms computes the window's root-mean-square amplitude normalized to [0,1].
func rms(window []byte) float64 {
	var sum float64
	samples := len(window) / 2
	if samples == 0 {
		return 0
	}
	for i := 0; i < samples; i++ {
		v := int16(window[i*2]) | int16(window[i*2+1])<<8
		f := float64(v) / 32768
		sum += f * f
	}
	return math.Sqrt(sum / float64(samples))
}
