// Package segment partitions a timestamped transcript into topical chapters.
// Boundaries come from silence gaps between segments and from a maximum
// chapter duration, so a continuously-spoken lecture still breaks up.
package segment

import (
	"fmt"
	"strings"
	"time"

	"github.com/lecternlabs/lectern/config"
	"github.com/lecternlabs/lectern/pkg/errors"
	"github.com/lecternlabs/lectern/pkg/transcript"
)

// titleWords is how many leading words of the first segment become the
// chapter title.
const titleWords = 6

// Chapter is a contiguous run of transcript segments. Chapters partition the
// transcript timeline: the first starts at zero, each starts where its
// predecessor ends, and the last ends at the transcript end.
type Chapter struct {
	Index    int                  `json:"index"`
	Title    string               `json:"title"`
	Start    time.Duration        `json:"start"`
	End      time.Duration        `json:"end"`
	Segments []transcript.Segment `json:"segments"`
}

// Duration returns the chapter length.
func (c Chapter) Duration() time.Duration {
	return c.End - c.Start
}

// Text joins the chapter's segment texts.
func (c Chapter) Text() string {
	return transcript.Text(c.Segments)
}

// Segmenter computes chapter boundaries from configured thresholds.
type Segmenter struct {
	cfg config.ChapterConfig
}

// New creates a Segmenter.
func New(cfg config.ChapterConfig) *Segmenter {
	return &Segmenter{cfg: cfg}
}

// Split partitions the segments into chapters. The returned chapters always
// satisfy the partition invariant; a violation is a logic bug surfaced as
// ErrSegmentationInvariant.
func (s *Segmenter) Split(segments []transcript.Segment) ([]Chapter, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: empty transcript", errors.ErrSegmentationInvariant)
	}

	groups := s.groupByBoundary(segments)
	groups = s.mergeShort(groups)

	chapters := buildChapters(groups, transcript.End(segments))
	if err := Verify(chapters, segments); err != nil {
		return nil, err
	}
	return chapters, nil
}

// groupByBoundary opens a new group when the silence gap before a segment
// exceeds the gap threshold, or when the running chapter would exceed the
// maximum duration.
func (s *Segmenter) groupByBoundary(segments []transcript.Segment) [][]transcript.Segment {
	var groups [][]transcript.Segment
	current := []transcript.Segment{segments[0]}
	chapterStart := time.Duration(0)

	for _, seg := range segments[1:] {
		prev := current[len(current)-1]
		gap := seg.Start - prev.End
		elapsed := seg.Start - chapterStart

		if gap > s.cfg.GapThreshold || elapsed >= s.cfg.MaxDuration {
			groups = append(groups, current)
			current = nil
			chapterStart = seg.Start
		}
		current = append(current, seg)
	}
	groups = append(groups, current)

	return groups
}

// mergeShort folds groups shorter than the minimum chapter duration into
// their following group. The final group may stay short; there is nothing
// after it to merge into.
func (s *Segmenter) mergeShort(groups [][]transcript.Segment) [][]transcript.Segment {
	merged := make([][]transcript.Segment, 0, len(groups))

	for i := 0; i < len(groups); i++ {
		group := groups[i]
		for i < len(groups)-1 && groupDuration(group) < s.cfg.MinDuration {
			group = append(group, groups[i+1]...)
			i++
		}
		merged = append(merged, group)
	}

	return merged
}

// groupDuration spans from the group's first segment start to its last end.
func groupDuration(group []transcript.Segment) time.Duration {
	return group[len(group)-1].End - group[0].Start
}

// buildChapters assigns partition boundaries: chapter i ends where chapter
// i+1's first segment starts; the first chapter starts at zero and the last
// ends at the transcript end.
func buildChapters(groups [][]transcript.Segment, transcriptEnd time.Duration) []Chapter {
	chapters := make([]Chapter, len(groups))
	for i, group := range groups {
		start := time.Duration(0)
		if i > 0 {
			start = group[0].Start
		}
		end := transcriptEnd
		if i < len(groups)-1 {
			end = groups[i+1][0].Start
		}

		chapters[i] = Chapter{
			Index:    i,
			Title:    Title(group[0].Text),
			Start:    start,
			End:      end,
			Segments: group,
		}
	}
	return chapters
}

// Title derives a chapter title from the leading words of text.
func Title(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return "Untitled chapter"
	}
	if len(words) > titleWords {
		words = words[:titleWords]
		return strings.Join(words, " ") + "…"
	}
	return strings.Join(words, " ")
}

// Verify checks the partition invariant: chapters contiguous and ordered,
// covering [0, transcript_end], with every input segment assigned to exactly
// one chapter in order. Any violation is ErrSegmentationInvariant.
func Verify(chapters []Chapter, segments []transcript.Segment) error {
	if len(chapters) == 0 {
		return fmt.Errorf("%w: no chapters produced", errors.ErrSegmentationInvariant)
	}

	if chapters[0].Start != 0 {
		return fmt.Errorf("%w: first chapter starts at %s, want 0", errors.ErrSegmentationInvariant, chapters[0].Start)
	}
	if end := chapters[len(chapters)-1].End; end != transcript.End(segments) {
		return fmt.Errorf("%w: last chapter ends at %s, want %s", errors.ErrSegmentationInvariant, end, transcript.End(segments))
	}

	var flat []transcript.Segment
	for i, ch := range chapters {
		if ch.Index != i {
			return fmt.Errorf("%w: chapter %d carries index %d", errors.ErrSegmentationInvariant, i, ch.Index)
		}
		if ch.Title == "" {
			return fmt.Errorf("%w: chapter %d has no title", errors.ErrSegmentationInvariant, i)
		}
		if len(ch.Segments) == 0 {
			return fmt.Errorf("%w: chapter %d has no segments", errors.ErrSegmentationInvariant, i)
		}
		if i > 0 && chapters[i-1].End != ch.Start {
			return fmt.Errorf("%w: gap between chapters %d and %d", errors.ErrSegmentationInvariant, i-1, i)
		}
		flat = append(flat, ch.Segments...)
	}

	if len(flat) != len(segments) {
		return fmt.Errorf("%w: %d segments assigned, want %d", errors.ErrSegmentationInvariant, len(flat), len(segments))
	}
	for i := range flat {
		if flat[i] != segments[i] {
			return fmt.Errorf("%w: segment %d reassigned out of order", errors.ErrSegmentationInvariant, i)
		}
	}

	return nil
}
