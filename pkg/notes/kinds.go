package notes

import (
	"fmt"
	"strings"
)

// Kind names one generated study artifact type.
type Kind string

const (
	KindSummary     Kind = "summary"
	KindDefinitions Kind = "definitions"
	KindExamPoints  Kind = "exam_points"
	KindQuiz        Kind = "quiz"
	KindFlashcards  Kind = "flashcards"
	KindELI5        Kind = "eli5"
)

// AllKinds lists every supported artifact kind in generation order.
func AllKinds() []Kind {
	return []Kind{KindSummary, KindDefinitions, KindExamPoints, KindQuiz, KindFlashcards, KindELI5}
}

// ParseKind validates a user-supplied kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllKinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown artifact kind %q", s)
}

// ParseKinds validates a list of kind names, deduplicating while preserving
// generation order.
func ParseKinds(names []string) ([]Kind, error) {
	want := make(map[Kind]bool, len(names))
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		want[k] = true
	}
	var kinds []Kind
	for _, k := range AllKinds() {
		if want[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}
