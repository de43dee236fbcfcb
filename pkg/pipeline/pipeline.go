// Package pipeline orchestrates the lecture ingestion stages: preprocess,
// transcribe, segment, generate notes, store, index. One Run owns one
// lecture id from start to finish. Stage-fatal failures abort the run with
// the failed stage identified; note-generation failures degrade to a
// missing-artifact manifest on the stored record.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	lcerrors "github.com/lecternlabs/lectern/pkg/errors"
	"github.com/lecternlabs/lectern/pkg/index"
	"github.com/lecternlabs/lectern/pkg/logging"
	"github.com/lecternlabs/lectern/pkg/media"
	"github.com/lecternlabs/lectern/pkg/notes"
	"github.com/lecternlabs/lectern/pkg/segment"
	"github.com/lecternlabs/lectern/pkg/store"
	"github.com/lecternlabs/lectern/pkg/transcript"
)

// Pipeline stage names, in execution order.
const (
	StagePreprocess = "preprocess"
	StageTranscribe = "transcribe"
	StageSegment    = "segment"
	StageGenerate   = "generate"
	StageStore      = "store"
	StageIndex      = "index"
)

// Request describes one ingestion run.
type Request struct {
	// Path is the media file to ingest.
	Path string

	// Title overrides the filename-derived lecture title when set.
	Title string

	// Language is the transcription hint and notes output language.
	Language string

	// LectureID pins the run to an existing id, used when resuming a
	// failed run. Empty means a fresh id.
	LectureID string
}

// StageResult records one stage's outcome for reporting.
type StageResult struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// RunResult is the outcome of a completed run.
type RunResult struct {
	Record  *store.LectureRecord `json:"record"`
	Stages  []StageResult        `json:"stages"`
	Resumed bool                 `json:"resumed"`
}

// Pipeline wires the stages together.
type Pipeline struct {
	pre       *media.Preprocessor
	adapter   *transcript.Adapter
	segmenter *segment.Segmenter
	generator *notes.Generator
	store     store.Store
	index     *index.Index
	spool     *Spool
	metrics   *Metrics
	tracer    trace.Tracer
	logger    logging.Logger
}

// Deps carries the pipeline's collaborators.
type Deps struct {
	Preprocessor *media.Preprocessor
	Transcriber  *transcript.Adapter
	Segmenter    *segment.Segmenter
	Generator    *notes.Generator
	Store        store.Store
	Index        *index.Index
	Spool        *Spool
	Metrics      *Metrics
	Logger       logging.Logger
}

// New assembles a Pipeline from its dependencies.
func New(deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Pipeline{
		pre:       deps.Preprocessor,
		adapter:   deps.Transcriber,
		segmenter: deps.Segmenter,
		generator: deps.Generator,
		store:     deps.Store,
		index:     deps.Index,
		spool:     deps.Spool,
		metrics:   metrics,
		tracer:    otel.Tracer("lectern/pipeline"),
		logger:    logger.With(logging.F("component", "pipeline")),
	}
}

// Run executes the full pipeline for one lecture. When the request pins a
// lecture id with spooled audio from an earlier transcription failure, the
// run resumes from the spooled track instead of re-decoding the media.
func (p *Pipeline) Run(ctx context.Context, req Request) (*RunResult, error) {
	id := req.LectureID
	if id == "" {
		id = uuid.NewString()
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("lecture_id", id)))
	defer span.End()

	result := &RunResult{}
	logger := p.logger.With(logging.F("lecture_id", id))
	logger.Info("pipeline run starting", logging.F("path", req.Path))

	title := req.Title
	sourceFilename := filepath.Base(req.Path)

	// Resume path: a prior run already preprocessed this lecture.
	var track *media.AudioTrack
	if req.LectureID != "" && p.spool != nil {
		spooled, meta, ok, err := p.spool.Load(id)
		if err != nil {
			logger.Warn("spool unreadable, preprocessing from scratch", logging.Err(err))
		} else if ok {
			track = spooled
			result.Resumed = true
			sourceFilename = meta.SourceFilename
			if title == "" {
				title = meta.Title
			}
			if req.Language == "" {
				req.Language = meta.Language
			}
			logger.Info("resuming from spooled audio")
		}
	}
	if title == "" {
		title = media.Title(req.Path)
	}

	if track == nil {
		err := p.stage(ctx, result, StagePreprocess, func(ctx context.Context) error {
			var err error
			track, err = p.pre.Process(ctx, req.Path)
			return err
		})
		if err != nil {
			return result, p.fail(span, err)
		}
	}

	var segments []transcript.Segment
	err := p.stage(ctx, result, StageTranscribe, func(ctx context.Context) error {
		var err error
		segments, err = p.adapter.Transcribe(ctx, track, req.Language)
		return err
	})
	if err != nil {
		// Keep the preprocessed audio so a retry resumes here.
		if p.spool != nil {
			if spoolErr := p.spool.Save(id, title, sourceFilename, req.Language, track); spoolErr != nil {
				logger.Warn("failed to spool audio for retry", logging.Err(spoolErr))
			} else {
				logger.Info("audio spooled for retry", logging.F("lecture_id", id))
			}
		}
		return result, p.fail(span, fmt.Errorf("lecture %s: %w", id, err))
	}

	var chapters []segment.Chapter
	err = p.stage(ctx, result, StageSegment, func(ctx context.Context) error {
		var err error
		chapters, err = p.segmenter.Split(segments)
		return err
	})
	if err != nil {
		return result, p.fail(span, err)
	}

	var generated *notes.Result
	err = p.stage(ctx, result, StageGenerate, func(ctx context.Context) error {
		var err error
		generated, err = p.generator.GenerateAll(ctx, chapters)
		return err
	})
	if err != nil {
		return result, p.fail(span, err)
	}
	p.metrics.MissingArtifacts.Add(float64(len(generated.Missing)))

	// Nothing is visible to store readers until the record is complete.
	record := &store.LectureRecord{
		ID:             id,
		Title:          title,
		SourceFilename: sourceFilename,
		Language:       req.Language,
		CreatedAt:      time.Now().UTC(),
		Transcript:     segments,
		Chapters:       chapters,
		Notes:          generated.Chapters,
		Missing:        generated.Missing,
	}
	if generated.Lecture != nil {
		record.ApplyNotes(notes.LectureLevel, generated.Lecture)
	}

	err = p.stage(ctx, result, StageStore, func(ctx context.Context) error {
		return p.store.Create(ctx, record)
	})
	if err != nil {
		return result, p.fail(span, err)
	}

	err = p.stage(ctx, result, StageIndex, func(ctx context.Context) error {
		return p.index.Add(ctx, record)
	})
	if err != nil {
		return result, p.fail(span, err)
	}

	if p.spool != nil {
		p.spool.Remove(id)
	}

	result.Record = record
	p.metrics.RunsTotal.WithLabelValues("success").Inc()
	logger.Info("pipeline run completed",
		logging.F("chapters", len(chapters)),
		logging.F("missing_artifacts", len(generated.Missing)))
	return result, nil
}

// Delete removes a lecture everywhere. The index entry goes first so search
// never returns a record the store no longer has.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	p.index.Remove(id)
	if err := p.store.Delete(ctx, id); err != nil {
		return err
	}
	if p.spool != nil {
		p.spool.Remove(id)
	}
	p.logger.Info("lecture deleted", logging.F("lecture_id", id))
	return nil
}

// RegenerateNotes re-runs note generation for the given chapters (all when
// empty), overwrites the stored artifacts, and re-embeds the affected
// chapters.
func (p *Pipeline) RegenerateNotes(ctx context.Context, id string, chapterIdx []int, kinds []notes.Kind) error {
	record, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}

	lang := record.Language
	if lang == "" {
		lang = "English"
	}

	targets := record.Chapters
	if len(chapterIdx) > 0 {
		targets = targets[:0:0]
		for _, idx := range chapterIdx {
			ch, ok := record.Chapter(idx)
			if !ok {
				return fmt.Errorf("%w: lecture %s has no chapter %d", lcerrors.ErrNotFound, id, idx)
			}
			targets = append(targets, ch)
		}
	}
	if len(kinds) == 0 {
		kinds, err = p.generator.RequestedKinds()
		if err != nil {
			return err
		}
	}

	var changed []int
	for _, ch := range targets {
		set, missing := p.generator.GenerateChapter(ctx, ch, kinds, lang)
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(missing) > 0 {
			p.metrics.MissingArtifacts.Add(float64(len(missing)))
			p.logger.Warn("regeneration left artifacts missing",
				logging.F("lecture_id", id),
				logging.F("chapter", ch.Index),
				logging.F("missing", len(missing)))
		}
		if len(set) == 0 {
			continue
		}
		if err := p.store.UpdateNotes(ctx, id, ch.Index, set); err != nil {
			return err
		}
		changed = append(changed, ch.Index)
	}

	if len(changed) == 0 {
		return nil
	}

	updated, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return p.index.Reindex(ctx, updated, changed)
}

// stage runs one pipeline stage with tracing, metrics, and timing.
func (p *Pipeline) stage(ctx context.Context, result *RunResult, name string, fn func(ctx context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "stage."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	status := "ok"
	sr := StageResult{Stage: name, Duration: elapsed}
	if err != nil {
		status = "error"
		classified := lcerrors.Classify(err, name)
		classified.Duration = elapsed
		sr.Error = classified.Error()
		span.RecordError(classified)
		span.SetStatus(codes.Error, classified.Message)
		err = classified
	}
	result.Stages = append(result.Stages, sr)
	p.metrics.StageSeconds.WithLabelValues(name, status).Observe(elapsed.Seconds())

	p.logger.Debug("stage finished",
		logging.F("stage", name),
		logging.F("status", status),
		logging.F("duration", elapsed.String()))
	return err
}

func (p *Pipeline) fail(span trace.Span, err error) error {
	p.metrics.RunsTotal.WithLabelValues("error").Inc()
	span.SetStatus(codes.Error, err.Error())
	return err
}
