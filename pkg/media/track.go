// Package media normalizes uploaded lecture recordings into a canonical
// audio stream for transcription: mono PCM at a fixed sample rate, with an
// optional silence-stripped variant.
package media

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// TargetSampleRate is the canonical sample rate for transcription input.
// 16 kHz mono is what speech models expect.
const TargetSampleRate = 16000

// AudioTrack is a normalized mono PCM stream. Samples are in [-1, 1].
type AudioTrack struct {
	SampleRate int
	Samples    []float64
	SourceFile string
}

// Duration returns the track length.
func (t *AudioTrack) Duration() time.Duration {
	if t.SampleRate == 0 {
		return 0
	}
	seconds := float64(len(t.Samples)) / float64(t.SampleRate)
	return time.Duration(seconds * float64(time.Second))
}

// EncodePCM16 converts samples to little-endian signed 16-bit PCM bytes,
// the same shape ffmpeg produces. Out-of-range samples are clamped.
func EncodePCM16(samples []float64) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s*math.MaxInt16)))
	}
	return out
}

// DecodePCM16 converts little-endian signed 16-bit PCM bytes back into
// samples in [-1, 1].
func DecodePCM16(raw []byte) []float64 {
	samples := make([]float64, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		samples[i] = float64(v) / math.MaxInt16
	}
	return samples
}

// decodePCM16 builds an AudioTrack from a raw PCM stream, rejecting
// truncated streams with an odd byte length.
func decodePCM16(raw []byte, sampleRate int) (*AudioTrack, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("pcm stream has odd byte length %d", len(raw))
	}
	return &AudioTrack{SampleRate: sampleRate, Samples: DecodePCM16(raw)}, nil
}
