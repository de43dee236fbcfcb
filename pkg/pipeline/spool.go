package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lecternlabs/lectern/pkg/media"
)

// spoolMeta describes a spooled run so a retry can rebuild the record
// without the original upload.
type spoolMeta struct {
	LectureID      string `json:"lecture_id"`
	Title          string `json:"title"`
	SourceFilename string `json:"source_filename"`
	Language       string `json:"language"`
	SampleRate     int    `json:"sample_rate"`
}

// Spool keeps preprocessed audio on disk between a transcription failure
// and its retry, so resuming never re-decodes the raw media.
type Spool struct {
	dir string
}

// NewSpool creates the spool directory if needed.
func NewSpool(dir string) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating spool dir: %w", err)
	}
	return &Spool{dir: dir}, nil
}

func (s *Spool) metaPath(id string) string { return filepath.Join(s.dir, id+".json") }
func (s *Spool) pcmPath(id string) string  { return filepath.Join(s.dir, id+".pcm") }

// Save writes the track and its metadata for the given lecture id,
// replacing any previous spool entry.
func (s *Spool) Save(id, title, sourceFilename, language string, track *media.AudioTrack) error {
	meta := spoolMeta{
		LectureID:      id,
		Title:          title,
		SourceFilename: sourceFilename,
		Language:       language,
		SampleRate:     track.SampleRate,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling spool metadata: %w", err)
	}
	if err := os.WriteFile(s.pcmPath(id), media.EncodePCM16(track.Samples), 0o644); err != nil {
		return fmt.Errorf("writing spooled audio: %w", err)
	}
	if err := os.WriteFile(s.metaPath(id), metaBytes, 0o644); err != nil {
		return fmt.Errorf("writing spool metadata: %w", err)
	}
	return nil
}

// Load reads a spooled run back. The boolean is false when nothing is
// spooled under the id.
func (s *Spool) Load(id string) (*media.AudioTrack, *spoolMeta, bool, error) {
	metaBytes, err := os.ReadFile(s.metaPath(id))
	if os.IsNotExist(err) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("reading spool metadata: %w", err)
	}

	var meta spoolMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, false, fmt.Errorf("parsing spool metadata: %w", err)
	}

	pcm, err := os.ReadFile(s.pcmPath(id))
	if err != nil {
		return nil, nil, false, fmt.Errorf("reading spooled audio: %w", err)
	}

	track := &media.AudioTrack{
		SampleRate: meta.SampleRate,
		Samples:    media.DecodePCM16(pcm),
		SourceFile: meta.SourceFilename,
	}
	return track, &meta, true, nil
}

// Remove deletes the spool entry. Missing files are not an error.
func (s *Spool) Remove(id string) {
	os.Remove(s.pcmPath(id))
	os.Remove(s.metaPath(id))
}
