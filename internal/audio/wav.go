// Package audio holds the small amount of PCM plumbing the podcast and
// voice pipelines need: WAV framing, silence generation and concatenation.
// All audio is 16-bit little-endian mono PCM.
package audio

import (
	"bytes"
	"encoding/binary"
	"time"

	"gitbridge/internal/apperr"
)

// DefaultSampleRate matches the synthesizer's pcm_22050 output format.
const DefaultSampleRate = 22050

const (
	bitsPerSample = 16
	numChannels   = 1
)

// EncodeWAV wraps raw PCM16 samples in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// DecodeWAV extracts PCM16 samples and the sample rate from a WAV file.
// Only uncompressed 16-bit mono is accepted.
func DecodeWAV(wav []byte) ([]byte, int, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, 0, apperr.E(apperr.KindInvalidInput, "not a RIFF/WAVE file")
	}

	var sampleRate int
	var pcm []byte
	sawFmt := false

	// Walk the chunk list; ignore anything that isn't fmt or data.
	for off := 12; off+8 <= len(wav); {
		id := string(wav[off : off+4])
		size := int(binary.LittleEndian.Uint32(wav[off+4 : off+8]))
		body := off + 8
		if body+size > len(wav) {
			return nil, 0, apperr.E(apperr.KindInvalidInput, "wav chunk %q overruns file", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, apperr.E(apperr.KindInvalidInput, "short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(wav[body : body+2])
			channels := binary.LittleEndian.Uint16(wav[body+2 : body+4])
			sampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(wav[body+14 : body+16])
			if format != 1 || channels != numChannels || bits != bitsPerSample {
				return nil, 0, apperr.E(apperr.KindInvalidInput,
					"unsupported wav format (format=%d channels=%d bits=%d)", format, channels, bits)
			}
			sawFmt = true
		case "data":
			pcm = wav[body : body+size]
		}

		off = body + size
		if size%2 == 1 {
			off++ // chunks are word-aligned
		}
	}

	if !sawFmt || pcm == nil {
		return nil, 0, apperr.E(apperr.KindInvalidInput, "wav missing fmt or data chunk")
	}
	return pcm, sampleRate, nil
}

// Silence returns d worth of PCM16 silence.
func Silence(sampleRate int, d time.Duration) []byte {
	samples := int(d.Seconds() * float64(sampleRate))
	return make([]byte, samples*2)
}

// ConcatPCM joins segments with a fixed silence gap between consecutive ones.
func ConcatPCM(segments [][]byte, sampleRate int, gap time.Duration) []byte {
	gapPCM := Silence(sampleRate, gap)
	total := 0
	for _, s := range segments {
		total += len(s)
	}
	if len(segments) > 1 {
		total += len(gapPCM) * (len(segments) - 1)
	}

	out := make([]byte, 0, total)
	for i, s := range segments {
		if i > 0 {
			out = append(out, gapPCM...)
		}
		out = append(out, s...)
	}
	return out
}

// PCMDuration converts a PCM16 byte count to playback time.
func PCMDuration(n, sampleRate int) time.Duration {
	samples := n / 2
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}
