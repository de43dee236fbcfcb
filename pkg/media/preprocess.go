package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lecternlabs/lectern/config"
	lcerrors "github.com/lecternlabs/lectern/pkg/errors"
	"github.com/lecternlabs/lectern/pkg/logging"
)

// Preprocessor turns uploaded media files into canonical AudioTracks.
type Preprocessor struct {
	exec    Executor
	silence config.SilenceConfig
	logger  logging.Logger
}

// NewPreprocessor creates a Preprocessor.
func NewPreprocessor(exec Executor, silence config.SilenceConfig, logger logging.Logger) *Preprocessor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Preprocessor{
		exec:    exec,
		silence: silence,
		logger:  logger.With(logging.F("component", "preprocessor")),
	}
}

// Process decodes the media file to 16 kHz mono PCM and optionally strips
// silence. Unsupported extensions fail with ErrUnsupportedFormat; decode
// failures (corrupt file, empty stream) fail with ErrPreprocessingFailed.
func (p *Preprocessor) Process(ctx context.Context, path string) (*AudioTrack, error) {
	if !config.IsSupportedMedia(path) {
		return nil, fmt.Errorf("%w: %q", lcerrors.ErrUnsupportedFormat, filepath.Ext(path))
	}

	p.logger.Info("decoding media", logging.F("file", filepath.Base(path)))

	// -vn drops any video stream; s16le on stdout avoids a temp file.
	args := []string{
		"-i", path,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(TargetSampleRate),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"pipe:1",
	}

	raw, err := p.exec.Run(ctx, "ffmpeg", args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lcerrors.ErrPreprocessingFailed, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: decoded stream is empty", lcerrors.ErrPreprocessingFailed)
	}

	track, err := decodePCM16(raw, TargetSampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lcerrors.ErrPreprocessingFailed, err)
	}
	track.SourceFile = filepath.Base(path)

	p.logger.Debug("decoded audio",
		logging.F("duration", track.Duration()),
		logging.F("samples", len(track.Samples)))

	if p.silence.Enabled {
		before := track.Duration()
		track = StripSilence(track, p.silence.Threshold, p.silence.MinDuration)
		p.logger.Info("silence stripped",
			logging.F("before", before),
			logging.F("after", track.Duration()))
	}

	return track, nil
}

// Title derives a human-readable lecture title from the source filename.
func Title(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}
