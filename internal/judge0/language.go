package judge0

import (
	"errors"
	"strings"
)

// LanguageID is the numeric language identifier understood by Judge0.
type LanguageID int

// ErrUnsupportedLanguage is returned by ResolveLanguage for names outside the table.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Judge0 CE ids. Adding a language is a table change only.
var languageIDs = map[string]LanguageID{
	"c++":        54,
	"java":       62,
	"javascript": 63,
}

var languageAliases = map[string]string{
	"cpp": "c++",
	"js":  "javascript",
}

// NormalizeLanguage lowercases name and maps editor aliases onto judge names.
func NormalizeLanguage(name string) string {
	lang := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := languageAliases[lang]; ok {
		return canonical
	}
	return lang
}

// ResolveLanguage maps a human-readable language name to its Judge0 id.
func ResolveLanguage(name string) (LanguageID, error) {
	id, ok := languageIDs[NormalizeLanguage(name)]
	if !ok {
		return 0, ErrUnsupportedLanguage
	}
	return id, nil
}
