// Package transcript defines the canonical transcript shape and the adapter
// over the external speech-to-text service. The service is a black box; this
// package's job is normalizing whatever it returns into an ordered,
// non-overlapping, time-monotonic segment sequence.
package transcript

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lecternlabs/lectern/pkg/errors"
	"github.com/lecternlabs/lectern/pkg/logging"
	"github.com/lecternlabs/lectern/pkg/media"
)

// Segment is one timestamped chunk of transcript text. Immutable once
// produced.
type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// Duration returns the segment length.
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// Service is the transcription service boundary. Implementations may return
// segments with inconsistent timestamps; the adapter repairs them.
type Service interface {
	Transcribe(ctx context.Context, track *media.AudioTrack, languageHint string) ([]Segment, error)
}

// Adapter wraps a Service and enforces the canonical segment invariants.
type Adapter struct {
	svc    Service
	logger logging.Logger
}

// NewAdapter creates an Adapter.
func NewAdapter(svc Service, logger logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Adapter{
		svc:    svc,
		logger: logger.With(logging.F("component", "transcriber")),
	}
}

// Transcribe runs the external service and normalizes its output. A service
// error or an empty transcript fails with ErrTranscriptionFailed.
func (a *Adapter) Transcribe(ctx context.Context, track *media.AudioTrack, languageHint string) ([]Segment, error) {
	raw, err := a.svc.Transcribe(ctx, track, languageHint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrTranscriptionFailed, err)
	}

	segments := Normalize(raw)
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: service returned no usable segments", errors.ErrTranscriptionFailed)
	}

	a.logger.Debug("transcript normalized",
		logging.F("raw_segments", len(raw)),
		logging.F("segments", len(segments)),
		logging.F("end", segments[len(segments)-1].End))

	return segments, nil
}

// Normalize turns raw service output into an ordered, non-overlapping,
// monotonic sequence:
//   - segments with empty text are dropped
//   - segments are ordered by start time
//   - an inverted segment (end before start) is treated as zero-length at
//     its start
//   - a segment overlapping its predecessor is clipped to start at the
//     predecessor's end; if clipping consumes it entirely, its text merges
//     into the predecessor
func Normalize(raw []Segment) []Segment {
	cleaned := make([]Segment, 0, len(raw))
	for _, s := range raw {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		if s.Start < 0 {
			s.Start = 0
		}
		if s.End < s.Start {
			s.End = s.Start
		}
		cleaned = append(cleaned, s)
	}

	sort.SliceStable(cleaned, func(i, j int) bool {
		return cleaned[i].Start < cleaned[j].Start
	})

	out := make([]Segment, 0, len(cleaned))
	for _, s := range cleaned {
		if len(out) == 0 {
			out = append(out, s)
			continue
		}

		prev := &out[len(out)-1]
		if s.Start < prev.End {
			s.Start = prev.End
		}
		if s.End <= s.Start {
			// Fully contained in the predecessor: keep its words, drop its span.
			prev.Text = prev.Text + " " + s.Text
			continue
		}
		out = append(out, s)
	}

	return out
}

// Text joins segment texts into one string, in order.
func Text(segments []Segment) string {
	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = s.Text
	}
	return strings.Join(parts, " ")
}

// End returns the end time of the final segment, or zero for an empty
// transcript.
func End(segments []Segment) time.Duration {
	if len(segments) == 0 {
		return 0
	}
	return segments[len(segments)-1].End
}
