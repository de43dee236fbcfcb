package notes

import (
	"fmt"
	"strings"
)

// promptFrames holds the per-kind instruction sent ahead of the chapter text.
var promptFrames = map[Kind]string{
	KindSummary:     "Summarize the following lecture section in clear, well-organized prose. Capture the main ideas and their connections.",
	KindDefinitions: "List the key terms introduced in the following lecture section. For each term, give a precise one or two sentence definition.",
	KindExamPoints:  "Extract the most exam-relevant points from the following lecture section and explain each clearly for exam preparation.",
	KindQuiz:        "Write five quiz questions testing understanding of the following lecture section. Provide the answer after each question.",
	KindFlashcards:  "Create flashcards for the following lecture section. Format each as 'Q:' on one line and 'A:' on the next.",
	KindELI5:        "Explain the following lecture section in very simple words, as if to someone hearing about the topic for the first time. Keep the standard terminology but unpack it.",
}

// BuildPrompt assembles the generative-service prompt for one artifact kind.
// The language directive is always explicit so the service never picks its
// own output language.
func BuildPrompt(kind Kind, lang, text string) string {
	var b strings.Builder
	b.WriteString(promptFrames[kind])
	b.WriteString(fmt.Sprintf(" Respond entirely in %s.\n\n", lang))
	b.WriteString(text)
	return b.String()
}

// BuildRollupPrompt assembles the lecture-level summary prompt from chapter
// titles and their individual texts.
func BuildRollupPrompt(lang string, chapterTitles []string, fullText string) string {
	var b strings.Builder
	b.WriteString("Summarize the following lecture as a whole. The lecture covers these sections: ")
	b.WriteString(strings.Join(chapterTitles, "; "))
	b.WriteString(fmt.Sprintf(". Give a cohesive overview connecting the sections. Respond entirely in %s.\n\n", lang))
	b.WriteString(fullText)
	return b.String()
}
