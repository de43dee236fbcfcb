// Package notes turns chapter text into study artifacts by prompting an
// external generative-text service, one call per artifact kind. Chapters of
// the same lecture generate concurrently under a bounded semaphore; failures
// are recorded per chapter and kind so the rest of the lecture still
// completes.
package notes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lecternlabs/lectern/config"
	lcerrors "github.com/lecternlabs/lectern/pkg/errors"
	"github.com/lecternlabs/lectern/pkg/logging"
	"github.com/lecternlabs/lectern/pkg/segment"
)

// LectureLevel marks artifacts that belong to the whole lecture rather than
// a chapter.
const LectureLevel = -1

// Service is the generative-text boundary: one prompt in, one completion out.
type Service interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Artifact is one generated study product, immutable once produced.
type Artifact struct {
	Kind        Kind      `json:"kind"`
	Language    string    `json:"language"`
	Content     string    `json:"content"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ArtifactSet holds the artifacts of one chapter (or the lecture rollup)
// keyed by kind.
type ArtifactSet map[Kind]Artifact

// Merge overlays other onto the set, replacing artifacts of the same kind.
// Merging the same set twice leaves the result unchanged.
func (s ArtifactSet) Merge(other ArtifactSet) ArtifactSet {
	if s == nil {
		s = make(ArtifactSet, len(other))
	}
	for k, a := range other {
		s[k] = a
	}
	return s
}

// Kinds returns the set's kinds in generation order.
func (s ArtifactSet) Kinds() []Kind {
	var kinds []Kind
	for _, k := range AllKinds() {
		if _, ok := s[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Missing records one artifact that failed to generate and why, so it can be
// retried independently later.
type Missing struct {
	Chapter int    `json:"chapter"`
	Kind    Kind   `json:"kind"`
	Reason  string `json:"reason"`
}

// Result is the outcome of generating notes for a lecture: per-chapter
// artifact sets, the lecture-level rollup, and the manifest of anything that
// failed.
type Result struct {
	Chapters map[int]ArtifactSet
	Lecture  ArtifactSet
	Missing  []Missing
}

// Complete reports whether every requested artifact generated.
func (r *Result) Complete() bool {
	return len(r.Missing) == 0
}

// GenerationError identifies which chapter and kind a service failure
// belongs to. It matches ErrGenerationFailed under errors.Is.
type GenerationError struct {
	Chapter int
	Kind    Kind
	Cause   error
}

func (e *GenerationError) Error() string {
	if e.Chapter == LectureLevel {
		return fmt.Sprintf("generating lecture %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("generating %s for chapter %d: %v", e.Kind, e.Chapter, e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

func (e *GenerationError) Is(target error) bool {
	return target == lcerrors.ErrGenerationFailed
}

// Generator produces artifact sets for chapters and lectures.
type Generator struct {
	svc    Service
	cfg    config.NotesConfig
	logger logging.Logger
}

// NewGenerator creates a Generator backed by the given service.
func NewGenerator(svc Service, cfg config.NotesConfig, logger logging.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.ChapterConcurrency <= 0 {
		cfg.ChapterConcurrency = 1
	}
	return &Generator{svc: svc, cfg: cfg, logger: logger}
}

// RequestedKinds resolves the configured kind list, appending the ELI5
// rewrite when enabled. ELI5 never replaces the standard summary.
func (g *Generator) RequestedKinds() ([]Kind, error) {
	kinds, err := ParseKinds(g.cfg.Kinds)
	if err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		kinds = []Kind{KindSummary, KindDefinitions, KindExamPoints, KindQuiz, KindFlashcards}
	}
	if g.cfg.ELI5 && !containsKind(kinds, KindELI5) {
		kinds = append(kinds, KindELI5)
	}
	return kinds, nil
}

// GenerateAll produces artifacts for every chapter plus the lecture rollup.
// Chapters run concurrently, bounded by the configured concurrency. A
// failed kind becomes a Missing entry; only context cancellation or an
// invalid configuration aborts the whole call.
func (g *Generator) GenerateAll(ctx context.Context, chapters []segment.Chapter) (*Result, error) {
	lang, err := ValidateLanguage(g.cfg.Language)
	if err != nil {
		return nil, err
	}
	kinds, err := g.RequestedKinds()
	if err != nil {
		return nil, err
	}

	result := &Result{Chapters: make(map[int]ArtifactSet, len(chapters))}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = newSemaphore(g.cfg.ChapterConcurrency)
	)
	for _, ch := range chapters {
		if err := sem.acquire(ctx); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		go func(ch segment.Chapter) {
			defer wg.Done()
			defer sem.release()

			set, missing := g.GenerateChapter(ctx, ch, kinds, lang)

			mu.Lock()
			defer mu.Unlock()
			result.Chapters[ch.Index] = set
			result.Missing = append(result.Missing, missing...)
		}(ch)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rollup, missing := g.GenerateRollup(ctx, chapters, lang)
	result.Lecture = rollup
	result.Missing = append(result.Missing, missing...)

	sortMissing(result.Missing)

	g.logger.Info("notes generation finished",
		logging.F("chapters", len(chapters)),
		logging.F("kinds", len(kinds)),
		logging.F("missing", len(result.Missing)))

	return result, ctx.Err()
}

// GenerateChapter produces one chapter's artifact set, calling the service
// once per kind. Failed kinds are reported in the missing manifest rather
// than aborting the remaining kinds.
func (g *Generator) GenerateChapter(ctx context.Context, ch segment.Chapter, kinds []Kind, lang string) (ArtifactSet, []Missing) {
	set := make(ArtifactSet, len(kinds))
	var missing []Missing

	for _, kind := range kinds {
		if ctx.Err() != nil {
			missing = append(missing, Missing{Chapter: ch.Index, Kind: kind, Reason: ctx.Err().Error()})
			continue
		}
		artifact, err := g.generateOne(ctx, kind, lang, BuildPrompt(kind, lang, ch.Text()))
		if err != nil {
			genErr := &GenerationError{Chapter: ch.Index, Kind: kind, Cause: err}
			g.logger.Warn("artifact generation failed", logging.Err(genErr),
				logging.F("chapter", ch.Index), logging.F("kind", string(kind)))
			missing = append(missing, Missing{Chapter: ch.Index, Kind: kind, Reason: err.Error()})
			continue
		}
		set[kind] = artifact
	}

	return set, missing
}

// GenerateRollup produces the lecture-level summary across all chapters.
func (g *Generator) GenerateRollup(ctx context.Context, chapters []segment.Chapter, lang string) (ArtifactSet, []Missing) {
	titles := make([]string, len(chapters))
	var texts []string
	for i, ch := range chapters {
		titles[i] = ch.Title
		texts = append(texts, ch.Text())
	}

	prompt := BuildRollupPrompt(lang, titles, strings.Join(texts, "\n\n"))
	artifact, err := g.generateOne(ctx, KindSummary, lang, prompt)
	if err != nil {
		genErr := &GenerationError{Chapter: LectureLevel, Kind: KindSummary, Cause: err}
		g.logger.Warn("lecture rollup failed", logging.Err(genErr))
		return nil, []Missing{{Chapter: LectureLevel, Kind: KindSummary, Reason: err.Error()}}
	}
	return ArtifactSet{KindSummary: artifact}, nil
}

func (g *Generator) generateOne(ctx context.Context, kind Kind, lang, prompt string) (Artifact, error) {
	content, err := g.svc.Generate(ctx, prompt)
	if err != nil {
		return Artifact{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Artifact{}, fmt.Errorf("service returned empty completion")
	}
	return Artifact{
		Kind:        kind,
		Language:    lang,
		Content:     content,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, have := range kinds {
		if have == k {
			return true
		}
	}
	return false
}

func sortMissing(missing []Missing) {
	order := make(map[Kind]int, len(AllKinds()))
	for i, k := range AllKinds() {
		order[k] = i
	}
	sort.SliceStable(missing, func(i, j int) bool {
		if missing[i].Chapter != missing[j].Chapter {
			return missing[i].Chapter < missing[j].Chapter
		}
		return order[missing[i].Kind] < order[missing[j].Kind]
	})
}
