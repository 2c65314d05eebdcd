// Package model holds the request and result shapes shared by every language runner.
package model

import "strings"

// Language identifies a supported runner.
type Language string

const (
	Python     Language = "python"
	Java       Language = "java"
	JavaScript Language = "javascript"
	C          Language = "c"
	CPP        Language = "cpp"
)

// SupportedLanguages lists runners in display order.
var SupportedLanguages = []Language{Python, Java, JavaScript, C, CPP}

var languageAliases = map[string]Language{
	"python":     Python,
	"py":         Python,
	"java":       Java,
	"javascript": JavaScript,
	"js":         JavaScript,
	"c":          C,
	"cpp":        CPP,
	"c++":        CPP,
}

// NormalizeLanguage resolves aliases case-insensitively. ok is false for unknown names.
func NormalizeLanguage(name string) (Language, bool) {
	lang, ok := languageAliases[strings.ToLower(strings.TrimSpace(name))]
	return lang, ok
}

// Compiled reports whether the language runs separate compile and run phases.
func (l Language) Compiled() bool {
	return l == Java || l == C || l == CPP
}

// DisplayName is used in badges and messages.
func (l Language) DisplayName() string {
	switch l {
	case Python:
		return "Python"
	case Java:
		return "Java"
	case JavaScript:
		return "JavaScript"
	case C:
		return "C"
	case CPP:
		return "C++"
	default:
		return string(l)
	}
}

func supportedList() string {
	names := make([]string, 0, len(SupportedLanguages))
	for _, l := range SupportedLanguages {
		names = append(names, string(l))
	}
	return strings.Join(names, ", ")
}
