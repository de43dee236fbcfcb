package search

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// SortOrder defines the ordering of search results.
type SortOrder int

const (
	// SortRelevance sorts by similarity score (default).
	SortRelevance SortOrder = iota
	// SortDateDesc sorts by lecture date, newest first.
	SortDateDesc
	// SortDateAsc sorts by lecture date, oldest first.
	SortDateAsc
)

// String returns the string representation of a SortOrder.
func (s SortOrder) String() string {
	switch s {
	case SortDateDesc:
		return "date_desc"
	case SortDateAsc:
		return "date_asc"
	default:
		return "relevance"
	}
}

// ParsedQuery is a search query split into its text portion and the
// structured filters embedded in it.
type ParsedQuery struct {
	// TextQuery is the text portion handed to the embedder.
	TextQuery string
	// LectureID restricts results to one lecture ("lecture:<id>").
	LectureID string
	// Chapter restricts results to one chapter, 1-based ("chapter:2").
	// Zero means no chapter filter.
	Chapter int
	// DateFrom keeps only lectures recorded on or after this time ("after:").
	DateFrom *time.Time
	// DateTo keeps only lectures recorded before this time ("before:").
	DateTo *time.Time
	// Sort is the requested ordering ("sort:newest").
	Sort SortOrder
	// Limit caps the result count ("limit:3"). Zero means use the default.
	Limit int
	// OriginalQuery is the raw input.
	OriginalQuery string
}

// ParseError reports where in the query parsing failed.
type ParseError struct {
	Message  string
	Position int
	Context  string
}

func (e *ParseError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("parse error at position %d: %s (near '%s')", e.Position, e.Message, e.Context)
	}
	return fmt.Sprintf("parse error at position %d: %s", e.Position, e.Message)
}

// Parser parses search queries into structured ParsedQuery objects.
type Parser struct {
	// dateLayouts are the date formats we accept.
	dateLayouts []string
	// now is injectable for relative-date tests.
	now func() time.Time
}

// NewParser creates a new Parser instance.
func NewParser() *Parser {
	return &Parser{
		dateLayouts: []string{
			"2006-01-02",
			"2006/01/02",
			"01-02-2006",
			"Jan 2, 2006",
			"2 Jan 2006",
			time.RFC3339,
		},
		now: time.Now,
	}
}

// Parse parses the input query string and returns a ParsedQuery. Filters
// may appear anywhere; everything else becomes the text query.
func (p *Parser) Parse(input string) (*ParsedQuery, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &ParseError{Message: "empty query"}
	}

	result := &ParsedQuery{
		OriginalQuery: input,
		Sort:          SortRelevance,
	}

	tokens, err := p.tokenize(input)
	if err != nil {
		return nil, err
	}

	var terms []string
	for _, tok := range tokens {
		if !tok.isFilter {
			terms = append(terms, tok.value)
			continue
		}
		if err := p.applyFilter(tok, result); err != nil {
			return nil, err
		}
	}
	result.TextQuery = strings.Join(terms, " ")

	return result, nil
}

// token is one parsed unit of the input.
type token struct {
	value    string
	position int
	isFilter bool
	key      string
}

// tokenize breaks the input into words, quoted phrases, and key:value
// filters.
func (p *Parser) tokenize(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	n := len(runes)
	pos := 0

	for pos < n {
		for pos < n && unicode.IsSpace(runes[pos]) {
			pos++
		}
		if pos >= n {
			break
		}

		startPos := pos

		// Quoted phrase, kept as one token.
		if runes[pos] == '"' {
			phrase, next, err := p.readQuoted(runes, pos)
			if err != nil {
				return nil, &ParseError{
					Message:  "unclosed quoted string",
					Position: startPos,
					Context:  string(runes[startPos:min(startPos+20, n)]),
				}
			}
			pos = next
			tokens = append(tokens, token{value: phrase, position: startPos})
			continue
		}

		var sb strings.Builder
		for pos < n && !unicode.IsSpace(runes[pos]) && runes[pos] != '"' {
			sb.WriteRune(runes[pos])
			pos++
		}
		word := sb.String()
		if word == "" {
			continue
		}

		colonIdx := strings.Index(word, ":")
		if colonIdx <= 0 {
			tokens = append(tokens, token{value: word, position: startPos})
			continue
		}

		key := strings.ToLower(word[:colonIdx])
		value := word[colonIdx+1:]

		// Quoted value directly after the colon.
		if value == "" && pos < n && runes[pos] == '"' {
			phrase, next, err := p.readQuoted(runes, pos)
			if err != nil {
				return nil, &ParseError{
					Message:  "unclosed quoted string in filter value",
					Position: startPos,
					Context:  key + ":",
				}
			}
			pos = next
			value = phrase
		}

		if !knownFilterKey(key) {
			// Not a filter we understand; keep the whole word as text so
			// queries like "16:9 aspect ratios" still work.
			tokens = append(tokens, token{value: word, position: startPos})
			continue
		}

		tokens = append(tokens, token{value: value, position: startPos, isFilter: true, key: key})
	}

	return tokens, nil
}

// readQuoted consumes a quoted string starting at the opening quote and
// returns the unquoted content and the position after the closing quote.
func (p *Parser) readQuoted(runes []rune, pos int) (string, int, error) {
	n := len(runes)
	pos++ // opening quote
	var sb strings.Builder
	for pos < n && runes[pos] != '"' {
		if runes[pos] == '\\' && pos+1 < n {
			pos++
		}
		sb.WriteRune(runes[pos])
		pos++
	}
	if pos >= n {
		return "", pos, fmt.Errorf("unclosed quote")
	}
	return sb.String(), pos + 1, nil
}

func knownFilterKey(key string) bool {
	switch key {
	case "lecture", "chapter", "after", "before", "sort", "limit":
		return true
	}
	return false
}

// applyFilter folds one filter token into the result.
func (p *Parser) applyFilter(tok token, result *ParsedQuery) error {
	switch tok.key {
	case "lecture":
		result.LectureID = tok.value

	case "chapter":
		ch, err := strconv.Atoi(tok.value)
		if err != nil || ch < 1 {
			return &ParseError{
				Message:  fmt.Sprintf("invalid chapter number: %s", tok.value),
				Position: tok.position,
				Context:  "chapter:" + tok.value,
			}
		}
		result.Chapter = ch

	case "after":
		date, err := p.parseDate(tok.value)
		if err != nil {
			return &ParseError{
				Message:  fmt.Sprintf("invalid date format for 'after': %s", tok.value),
				Position: tok.position,
				Context:  "after:" + tok.value,
			}
		}
		result.DateFrom = &date

	case "before":
		date, err := p.parseDate(tok.value)
		if err != nil {
			return &ParseError{
				Message:  fmt.Sprintf("invalid date format for 'before': %s", tok.value),
				Position: tok.position,
				Context:  "before:" + tok.value,
			}
		}
		result.DateTo = &date

	case "sort":
		switch strings.ToLower(tok.value) {
		case "date", "date_desc", "newest":
			result.Sort = SortDateDesc
		case "date_asc", "oldest":
			result.Sort = SortDateAsc
		case "relevance", "score":
			result.Sort = SortRelevance
		default:
			return &ParseError{
				Message:  fmt.Sprintf("unknown sort order: %s", tok.value),
				Position: tok.position,
				Context:  "sort:" + tok.value,
			}
		}

	case "limit":
		limit, err := strconv.Atoi(tok.value)
		if err != nil || limit < 1 {
			return &ParseError{
				Message:  fmt.Sprintf("invalid limit: %s", tok.value),
				Position: tok.position,
				Context:  "limit:" + tok.value,
			}
		}
		result.Limit = limit
	}

	return nil
}

// parseDate attempts to parse a date string in various formats, including
// relative references like "yesterday" and "lastweek".
func (p *Parser) parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	now := p.now()

	switch lower {
	case "today":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	case "yesterday":
		yesterday := now.AddDate(0, 0, -1)
		return time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, now.Location()), nil
	case "thisweek", "this_week":
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		startOfWeek := now.AddDate(0, 0, -weekday+1)
		return time.Date(startOfWeek.Year(), startOfWeek.Month(), startOfWeek.Day(), 0, 0, 0, 0, now.Location()), nil
	case "thismonth", "this_month":
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), nil
	case "lastweek", "last_week":
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		startOfLastWeek := now.AddDate(0, 0, -weekday-6)
		return time.Date(startOfLastWeek.Year(), startOfLastWeek.Month(), startOfLastWeek.Day(), 0, 0, 0, 0, now.Location()), nil
	case "lastmonth", "last_month":
		lastMonth := now.AddDate(0, -1, 0)
		return time.Date(lastMonth.Year(), lastMonth.Month(), 1, 0, 0, 0, 0, now.Location()), nil
	}

	for _, layout := range p.dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}
