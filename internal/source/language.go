// Package source inspects what the user wants migrated: the language of a
// code snippet and the repository it lives in.
package source

import (
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// DefaultLanguage is sent when a snippet's language cannot be detected.
const DefaultLanguage = "python"

// snippetCandidates are the languages the classifier chooses between when a
// snippet has no filename. They cover the SDKs the backend can rewrite.
var snippetCandidates = []string{"Python", "JavaScript", "TypeScript", "Java", "Go", "C#"}

var languageIDs = map[string]string{
	"C#":         "csharp",
	"JavaScript": "javascript",
	"TypeScript": "typescript",
}

// DetectLanguage returns the backend language id of a snippet. The filename
// is optional; without it only shebangs, modelines and the content classifier
// are consulted. It returns "" when nothing matches.
func DetectLanguage(filename string, content []byte) string {
	var language string
	if filename != "" {
		language = enry.GetLanguage(filename, content)
	}
	if language == "" {
		if lang, safe := enry.GetLanguageByShebang(content); safe {
			language = lang
		}
	}
	if language == "" {
		if lang, safe := enry.GetLanguageByModeline(content); safe {
			language = lang
		}
	}
	if language == "" && len(strings.TrimSpace(string(content))) > 0 {
		language, _ = enry.GetLanguageByClassifier(content, snippetCandidates)
	}
	return languageID(language)
}

func languageID(language string) string {
	if language == "" || language == enry.OtherLanguage {
		return ""
	}
	if id, ok := languageIDs[language]; ok {
		return id
	}
	return strings.ToLower(language)
}
