package media

import (
	"math"
	"time"
)

// StripSilence removes silent intervals longer than minDuration from the
// track. An interval is silent when every sample's amplitude stays below
// threshold. Shorter quiet stretches are natural pauses and stay in place,
// so running the strip twice changes nothing.
//
// The input track is not modified.
func StripSilence(track *AudioTrack, threshold float64, minDuration time.Duration) *AudioTrack {
	if len(track.Samples) == 0 {
		return &AudioTrack{SampleRate: track.SampleRate, SourceFile: track.SourceFile}
	}

	minSamples := int(minDuration.Seconds() * float64(track.SampleRate))
	if minSamples <= 0 {
		minSamples = 1
	}

	out := make([]float64, 0, len(track.Samples))
	runStart := -1 // start of the current silent run, -1 when in speech

	flush := func(end int) {
		runLen := end - runStart
		if runLen < minSamples {
			// Short pause, keep it.
			out = append(out, track.Samples[runStart:end]...)
		}
		runStart = -1
	}

	for i, s := range track.Samples {
		if math.Abs(s) < threshold {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 {
			flush(i)
		}
		out = append(out, s)
	}
	if runStart >= 0 {
		flush(len(track.Samples))
	}

	return &AudioTrack{
		SampleRate: track.SampleRate,
		Samples:    out,
		SourceFile: track.SourceFile,
	}
}
