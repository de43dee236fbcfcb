// Package search answers free-text queries against the semantic index.
package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/lecternlabs/lectern/config"
	lcerrors "github.com/lecternlabs/lectern/pkg/errors"
	"github.com/lecternlabs/lectern/pkg/index"
	"github.com/lecternlabs/lectern/pkg/logging"
)

// Result is one ranked search hit.
type Result struct {
	LectureID string  `json:"lecture_id"`
	Chapter   int     `json:"chapter"`
	Excerpt   string  `json:"excerpt"`
	Score     float64 `json:"score"`
}

// Options narrows a search.
type Options struct {
	// LectureID restricts results to one lecture. The in-query
	// "lecture:<id>" filter takes precedence when both are present.
	LectureID string

	// TopK caps the result count; zero uses the configured default. An
	// in-query "limit:" filter takes precedence.
	TopK int
}

// Service ranks indexed chapters against query embeddings.
type Service struct {
	index  *index.Index
	parser *Parser
	cfg    config.SearchConfig
	logger logging.Logger
}

// New creates a search service over the given index.
func New(ix *index.Index, cfg config.SearchConfig, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		index:  ix,
		parser: NewParser(),
		cfg:    cfg,
		logger: logger.With(logging.F("component", "search")),
	}
}

// Search embeds the query and returns the best matches above the configured
// similarity floor, best first. Structured filters in the query (lecture:,
// chapter:, after:, before:, sort:, limit:) narrow and reorder the results.
// An index with no lectures at all yields ErrIndexUnavailable; an index with
// no relevant matches yields an empty result.
func (s *Service) Search(ctx context.Context, rawQuery string, opts Options) ([]Result, error) {
	parsed, err := s.parser.Parse(rawQuery)
	if err != nil {
		return nil, err
	}
	if parsed.TextQuery == "" {
		return nil, fmt.Errorf("query has no search terms")
	}

	lectureID := parsed.LectureID
	if lectureID == "" {
		lectureID = opts.LectureID
	}

	if s.index.Empty() {
		return nil, fmt.Errorf("%w: no lectures indexed", lcerrors.ErrIndexUnavailable)
	}

	topK := parsed.Limit
	if topK <= 0 {
		topK = opts.TopK
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	vector, err := s.index.EmbedQuery(ctx, parsed.TextQuery)
	if err != nil {
		return nil, err
	}

	// Filters may drop matches, so rank everything above the floor and cap
	// at the end.
	matches := s.index.Query(vector, lectureID, 0, s.cfg.MinScore)
	matches = filterMatches(matches, parsed)
	sortMatches(matches, parsed.Sort)
	if len(matches) > topK {
		matches = matches[:topK]
	}

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			LectureID: m.LectureID,
			Chapter:   m.Chapter,
			Excerpt:   m.Excerpt,
			Score:     m.Score,
		}
	}

	s.logger.Debug("search completed",
		logging.F("query", parsed.TextQuery),
		logging.F("lecture_filter", lectureID),
		logging.F("results", len(results)))
	return results, nil
}

// filterMatches applies the chapter and date filters.
func filterMatches(matches []index.Match, parsed *ParsedQuery) []index.Match {
	if parsed.Chapter == 0 && parsed.DateFrom == nil && parsed.DateTo == nil {
		return matches
	}
	kept := matches[:0]
	for _, m := range matches {
		if parsed.Chapter > 0 && m.Chapter != parsed.Chapter-1 {
			continue
		}
		if parsed.DateFrom != nil && m.LectureCreated.Before(*parsed.DateFrom) {
			continue
		}
		if parsed.DateTo != nil && !m.LectureCreated.Before(*parsed.DateTo) {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

// sortMatches reorders by lecture date when requested. Relevance order is
// what the index already returned.
func sortMatches(matches []index.Match, order SortOrder) {
	switch order {
	case SortDateDesc:
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].LectureCreated.After(matches[j].LectureCreated)
		})
	case SortDateAsc:
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].LectureCreated.Before(matches[j].LectureCreated)
		})
	}
}
