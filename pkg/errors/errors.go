// Package errors provides the domain error types for lectern.
//
// It defines sentinel errors for the conditions a caller is expected to
// branch on, so packages can use errors.Is() checks instead of string
// matching.
//
// Usage:
//
//	import lcerrors "github.com/lecternlabs/lectern/pkg/errors"
//
//	// Return a domain error
//	return nil, lcerrors.ErrNotFound
//
//	// Check for domain errors
//	if lcerrors.IsNotFound(err) {
//	    // handle not found case
//	}
package errors

import "errors"

// Domain errors - sentinel errors for the pipeline and retrieval surface.
var (
	// ErrUnsupportedFormat indicates the uploaded media extension is not accepted.
	ErrUnsupportedFormat = errors.New("unsupported media format")

	// ErrPreprocessingFailed indicates the media could not be decoded to audio.
	ErrPreprocessingFailed = errors.New("media preprocessing failed")

	// ErrTranscriptionFailed indicates the transcription service errored or
	// returned an empty transcript.
	ErrTranscriptionFailed = errors.New("transcription failed")

	// ErrSegmentationInvariant indicates the chapter segmenter produced chapters
	// that do not partition the transcript. This is a logic bug, never an input error.
	ErrSegmentationInvariant = errors.New("segmentation invariant violation")

	// ErrGenerationFailed indicates note generation failed for a chapter/kind.
	ErrGenerationFailed = errors.New("note generation failed")

	// ErrDuplicateLecture indicates a lecture with the same id already exists.
	ErrDuplicateLecture = errors.New("duplicate lecture")

	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = errors.New("not found")

	// ErrIndexUnavailable indicates no lectures have been indexed yet.
	ErrIndexUnavailable = errors.New("search index unavailable")
)

// IsUnsupportedFormat reports whether any error in err's chain is ErrUnsupportedFormat.
func IsUnsupportedFormat(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat)
}

// IsPreprocessingFailed reports whether any error in err's chain is ErrPreprocessingFailed.
func IsPreprocessingFailed(err error) bool {
	return errors.Is(err, ErrPreprocessingFailed)
}

// IsTranscriptionFailed reports whether any error in err's chain is ErrTranscriptionFailed.
func IsTranscriptionFailed(err error) bool {
	return errors.Is(err, ErrTranscriptionFailed)
}

// IsSegmentationInvariant reports whether any error in err's chain is ErrSegmentationInvariant.
func IsSegmentationInvariant(err error) bool {
	return errors.Is(err, ErrSegmentationInvariant)
}

// IsGenerationFailed reports whether any error in err's chain is ErrGenerationFailed.
func IsGenerationFailed(err error) bool {
	return errors.Is(err, ErrGenerationFailed)
}

// IsDuplicateLecture reports whether any error in err's chain is ErrDuplicateLecture.
func IsDuplicateLecture(err error) bool {
	return errors.Is(err, ErrDuplicateLecture)
}

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsIndexUnavailable reports whether any error in err's chain is ErrIndexUnavailable.
func IsIndexUnavailable(err error) bool {
	return errors.Is(err, ErrIndexUnavailable)
}
