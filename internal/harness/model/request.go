package model

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	appErr "learnhub/pkg/errors"
)

const (
	// DefaultMaxCodeSize is the largest accepted submission, in characters.
	DefaultMaxCodeSize = 50000
	// DefaultMaxCases caps the number of test cases in one request.
	DefaultMaxCases = 100
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var jsonNull = json.RawMessage("null")

// TestCase is one call of the user's function. Args are spread positionally.
type TestCase struct {
	Args        []json.RawMessage `json:"args"`
	Expected    json.RawMessage   `json:"expected"`
	Description string            `json:"description"`
}

// UnmarshalJSON accepts a scalar args value as a single argument.
func (t *TestCase) UnmarshalJSON(data []byte) error {
	var raw struct {
		Args        json.RawMessage `json:"args"`
		Expected    json.RawMessage `json:"expected"`
		Description string          `json:"description"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Description = raw.Description
	t.Expected = raw.Expected
	if len(bytes.TrimSpace(t.Expected)) == 0 {
		t.Expected = jsonNull
	}
	args := bytes.TrimSpace(raw.Args)
	switch {
	case len(args) == 0 || bytes.Equal(args, jsonNull):
		t.Args = []json.RawMessage{}
	case args[0] == '[':
		if err := json.Unmarshal(args, &t.Args); err != nil {
			return err
		}
	default:
		t.Args = []json.RawMessage{json.RawMessage(args)}
	}
	return nil
}

// ExpectedJSON returns the expected value, defaulting to null.
func (t TestCase) ExpectedJSON() json.RawMessage {
	if len(t.Expected) == 0 {
		return jsonNull
	}
	return t.Expected
}

// ArgsJSON returns the argument list as one JSON array.
func (t TestCase) ArgsJSON() json.RawMessage {
	if len(t.Args) == 0 {
		return json.RawMessage("[]")
	}
	data, err := json.Marshal(t.Args)
	if err != nil {
		return json.RawMessage("[]")
	}
	return data
}

// ExecutionRequest is a single harness invocation.
type ExecutionRequest struct {
	Language     string     `json:"language"`
	FunctionName string     `json:"functionName"`
	Code         string     `json:"code"`
	TestCases    []TestCase `json:"testCases"`
}

// Limits bounds request validation.
type Limits struct {
	MaxCodeSize int
	MaxCases    int
}

// Validate checks the request before anything is written or spawned.
func (r ExecutionRequest) Validate(limits Limits) (Language, error) {
	if limits.MaxCodeSize <= 0 {
		limits.MaxCodeSize = DefaultMaxCodeSize
	}
	if limits.MaxCases <= 0 {
		limits.MaxCases = DefaultMaxCases
	}
	if strings.TrimSpace(r.Code) == "" {
		return "", appErr.New(appErr.EmptyCode).WithMessage("code is required")
	}
	if utf8.RuneCountInString(r.Code) > limits.MaxCodeSize {
		return "", appErr.Newf(appErr.CodeTooLarge, "code exceeds %d characters", limits.MaxCodeSize)
	}
	if strings.TrimSpace(r.Language) == "" {
		return "", appErr.ValidationError("language", "is required")
	}
	lang, ok := NormalizeLanguage(r.Language)
	if !ok {
		return "", appErr.Newf(appErr.LanguageNotSupported,
			"Unsupported language: %s. Supported languages: %s.", r.Language, supportedList()).
			WithDetail("language", r.Language)
	}
	if !identPattern.MatchString(r.FunctionName) {
		return "", appErr.ValidationError("functionName", "must be a valid identifier")
	}
	if len(r.TestCases) == 0 {
		return "", appErr.ValidationError("testCases", "at least one test case is required")
	}
	if len(r.TestCases) > limits.MaxCases {
		return "", appErr.ValidationError("testCases", "too many test cases")
	}
	return lang, nil
}
