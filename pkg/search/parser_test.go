package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedParser(now time.Time) *Parser {
	p := NewParser()
	p.now = func() time.Time { return now }
	return p
}

func TestParse_PlainText(t *testing.T) {
	parsed, err := NewParser().Parse("how does mergesort partition")
	require.NoError(t, err)
	assert.Equal(t, "how does mergesort partition", parsed.TextQuery)
	assert.Empty(t, parsed.LectureID)
	assert.Equal(t, SortRelevance, parsed.Sort)
	assert.Zero(t, parsed.Limit)
}

func TestParse_EmptyQuery(t *testing.T) {
	_, err := NewParser().Parse("   ")
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Message, "empty query")
}

func TestParse_LectureFilter(t *testing.T) {
	parsed, err := NewParser().Parse("lecture:4f7c9a12 recursion base case")
	require.NoError(t, err)
	assert.Equal(t, "4f7c9a12", parsed.LectureID)
	assert.Equal(t, "recursion base case", parsed.TextQuery)

	// Filter position does not matter.
	parsed, err = NewParser().Parse("recursion lecture:4f7c9a12 base case")
	require.NoError(t, err)
	assert.Equal(t, "4f7c9a12", parsed.LectureID)
	assert.Equal(t, "recursion base case", parsed.TextQuery)
}

func TestParse_ChapterFilter(t *testing.T) {
	parsed, err := NewParser().Parse("chapter:3 integration by parts")
	require.NoError(t, err)
	assert.Equal(t, 3, parsed.Chapter)
	assert.Equal(t, "integration by parts", parsed.TextQuery)

	_, err = NewParser().Parse("chapter:zero integration")
	require.Error(t, err)
	_, err = NewParser().Parse("chapter:0 integration")
	require.Error(t, err)
}

func TestParse_DateFilters(t *testing.T) {
	parsed, err := NewParser().Parse("after:2026-03-01 before:2026-06-01 photosynthesis")
	require.NoError(t, err)
	require.NotNil(t, parsed.DateFrom)
	require.NotNil(t, parsed.DateTo)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *parsed.DateFrom)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), *parsed.DateTo)
	assert.Equal(t, "photosynthesis", parsed.TextQuery)
}

func TestParse_InvalidDate(t *testing.T) {
	_, err := NewParser().Parse("after:someday photosynthesis")
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Context, "after:")
}

func TestParse_RelativeDates(t *testing.T) {
	// A Wednesday.
	now := time.Date(2026, 8, 26, 15, 30, 0, 0, time.UTC)
	p := fixedParser(now)

	parsed, err := p.Parse("after:yesterday quiz prep")
	require.NoError(t, err)
	require.NotNil(t, parsed.DateFrom)
	assert.Equal(t, time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC), *parsed.DateFrom)

	parsed, err = p.Parse("after:thisweek quiz prep")
	require.NoError(t, err)
	require.NotNil(t, parsed.DateFrom)
	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), *parsed.DateFrom)

	parsed, err = p.Parse("after:lastmonth quiz prep")
	require.NoError(t, err)
	require.NotNil(t, parsed.DateFrom)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), *parsed.DateFrom)
}

func TestParse_SortFilter(t *testing.T) {
	parsed, err := NewParser().Parse("sort:newest exam review")
	require.NoError(t, err)
	assert.Equal(t, SortDateDesc, parsed.Sort)

	parsed, err = NewParser().Parse("sort:oldest exam review")
	require.NoError(t, err)
	assert.Equal(t, SortDateAsc, parsed.Sort)

	_, err = NewParser().Parse("sort:sideways exam review")
	require.Error(t, err)
}

func TestParse_LimitFilter(t *testing.T) {
	parsed, err := NewParser().Parse("limit:3 exam review")
	require.NoError(t, err)
	assert.Equal(t, 3, parsed.Limit)

	_, err = NewParser().Parse("limit:none exam review")
	require.Error(t, err)
}

func TestParse_QuotedPhrase(t *testing.T) {
	parsed, err := NewParser().Parse(`"base case" recursion`)
	require.NoError(t, err)
	assert.Equal(t, "base case recursion", parsed.TextQuery)

	_, err = NewParser().Parse(`"unclosed phrase`)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Message, "unclosed")
}

func TestParse_QuotedFilterValue(t *testing.T) {
	parsed, err := NewParser().Parse(`lecture:"4f7c 9a12" recursion`)
	require.NoError(t, err)
	assert.Equal(t, "4f7c 9a12", parsed.LectureID)
	assert.Equal(t, "recursion", parsed.TextQuery)
}

func TestParse_UnknownColonWordStaysText(t *testing.T) {
	parsed, err := NewParser().Parse("16:9 aspect ratios")
	require.NoError(t, err)
	assert.Equal(t, "16:9 aspect ratios", parsed.TextQuery)
	assert.Empty(t, parsed.LectureID)
}

func TestSortOrder_String(t *testing.T) {
	assert.Equal(t, "relevance", SortRelevance.String())
	assert.Equal(t, "date_desc", SortDateDesc.String())
	assert.Equal(t, "date_asc", SortDateAsc.String())
}
