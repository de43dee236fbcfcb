package notes

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// namedLanguages maps the display names the CLI accepts to their tags.
// Free-form BCP 47 tags are also accepted via language.Parse.
var namedLanguages = map[string]language.Tag{
	"english":   language.English,
	"malayalam": language.Malayalam,
	"hindi":     language.Hindi,
	"tamil":     language.Tamil,
	"kannada":   language.Kannada,
}

// SupportedLanguages lists the display names with first-class support.
func SupportedLanguages() []string {
	return []string{"English", "Malayalam", "Hindi", "Tamil", "Kannada"}
}

// ValidateLanguage checks that name is either a known display name or a
// parseable BCP 47 tag, returning the canonical form to embed in prompts.
func ValidateLanguage(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("output language must not be empty")
	}
	if _, ok := namedLanguages[strings.ToLower(trimmed)]; ok {
		return cases.Title(language.English).String(strings.ToLower(trimmed)), nil
	}
	if _, err := language.Parse(trimmed); err != nil {
		return "", fmt.Errorf("unrecognized output language %q: %w", name, err)
	}
	return trimmed, nil
}
