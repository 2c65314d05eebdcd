// Package model holds challenge types shared by the catalog, generator and learning flow.
package model

import (
	"encoding/json"
	"strings"

	harness "learnhub/internal/harness/model"
)

// Difficulty levels.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Challenge sources reported by the generator.
const (
	SourceAI      = "ai"
	SourceCatalog = "catalog"
)

// Challenge is a challenge projected onto one language.
type Challenge struct {
	ID           string             `json:"id"`
	Topic        string             `json:"topic"`
	Difficulty   string             `json:"difficulty"`
	Title        string             `json:"title"`
	Prompt       string             `json:"prompt"`
	Language     harness.Language   `json:"language"`
	FunctionName string             `json:"functionName"`
	Signature    string             `json:"signature"`
	StarterCode  string             `json:"starterCode"`
	Solution     string             `json:"solution"`
	TestCases    []harness.TestCase `json:"testCases"`
}

// MaskedCase is a test case with the expected value withheld.
type MaskedCase struct {
	Idx  int               `json:"idx"`
	Args []json.RawMessage `json:"args"`
}

// NormalizeDifficulty lowercases d and reports whether it is a known level. Empty is allowed.
func NormalizeDifficulty(d string) (string, bool) {
	d = strings.ToLower(strings.TrimSpace(d))
	switch d {
	case "", DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, true
	default:
		return d, false
	}
}

// Mask strips expected values from the challenge's cases.
func (c *Challenge) Mask() []MaskedCase {
	out := make([]MaskedCase, 0, len(c.TestCases))
	for i, tc := range c.TestCases {
		args := tc.Args
		if args == nil {
			args = []json.RawMessage{}
		}
		out = append(out, MaskedCase{Idx: i, Args: args})
	}
	return out
}
