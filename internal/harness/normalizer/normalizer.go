// Package normalizer turns raw runner output into an ExecutionResult or a classified fatal error.
package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"learnhub/internal/harness/model"
	"learnhub/internal/harness/sandbox"
	appErr "learnhub/pkg/errors"
)

const maxDiagnosticBytes = 8 * 1024

// Output is what one run phase left behind.
type Output struct {
	ExitCode  int
	Signal    string
	Stdout    []byte
	Stderr    []byte
	TimedOut  bool
	OOMKilled bool
	// Fallback is used as the message when stderr is empty.
	Fallback string
	// Workspace is scrubbed from diagnostics.
	Workspace string
	// Marker is the run's result marker. Only text after its last occurrence is read.
	Marker string
	// Cases is how many test cases were submitted. Zero skips the count check.
	Cases int
}

type document struct {
	Results   []model.CaseResult `json:"results"`
	AllPassed *bool              `json:"allPassed"`
	Fatal     *string            `json:"fatal"`
	Kind      string             `json:"kind"`
}

// Normalize parses a run phase. Fatal runs return model.FailedResult() with the error.
func Normalize(out Output) (*model.ExecutionResult, error) {
	stderr := Diagnostic(out.Stderr, out.Workspace)
	if out.TimedOut {
		return model.FailedResult(), appErr.New(appErr.ExecutionTimeout).
			WithMessage("Execution timed out").
			WithDiagnostic(stderr)
	}
	payload := extractPayload(out.Stdout, out.Marker)

	if out.ExitCode != 0 || len(payload) == 0 {
		if doc, ok := parseDocument(payload); ok && doc.Fatal != nil {
			return model.FailedResult(), fatalFromDocument(doc, stderr, out.Workspace)
		}
		return model.FailedResult(), appErr.New(appErr.RuntimeFatal).
			WithMessage(runtimeMessage(out, stderr)).
			WithDiagnostic(stderr)
	}

	doc, ok := parseDocument(payload)
	if !ok || doc.AllPassed == nil {
		return model.FailedResult(), appErr.New(appErr.InvalidToolOutput).
			WithDetail("output", truncate(sandbox.ScrubPath(string(payload), out.Workspace), 512)).
			WithDiagnostic(stderr)
	}
	if doc.Fatal != nil {
		return model.FailedResult(), fatalFromDocument(doc, stderr, out.Workspace)
	}
	if err := checkShape(doc.Results, *doc.AllPassed, out.Cases); err != nil {
		return model.FailedResult(), appErr.Wrap(err, appErr.InvalidToolOutput).
			WithDetail("output", truncate(sandbox.ScrubPath(string(payload), out.Workspace), 512)).
			WithDiagnostic(stderr)
	}
	return &model.ExecutionResult{Results: doc.Results, AllPassed: *doc.AllPassed}, nil
}

// checkShape accepts one result per case numbered 1..n, with allPassed equal to every case passing.
func checkShape(results []model.CaseResult, allPassed bool, cases int) error {
	if len(results) == 0 {
		return fmt.Errorf("result document has no case results")
	}
	if cases > 0 && len(results) != cases {
		return fmt.Errorf("result document has %d case results for %d cases", len(results), cases)
	}
	every := true
	for i, r := range results {
		if r.Case != i+1 {
			return fmt.Errorf("case result %d is numbered %d", i+1, r.Case)
		}
		every = every && r.Passed
	}
	if allPassed != every {
		return fmt.Errorf("allPassed=%t does not match the case results", allPassed)
	}
	return nil
}

// Compile classifies a compile phase. A nil error means the build succeeded.
func Compile(out Output, classify func(diagnostic string) appErr.ErrorCode) error {
	stderr := Diagnostic(out.Stderr, out.Workspace)
	if out.TimedOut {
		return appErr.New(appErr.ExecutionTimeout).
			WithMessage("Compilation timed out").
			WithDiagnostic(stderr)
	}
	if out.ExitCode == 0 {
		return nil
	}
	if stderr == "" {
		stderr = Diagnostic(out.Stdout, out.Workspace)
	}
	code := appErr.CompilationError
	if classify != nil {
		code = classify(stderr)
	}
	msg := firstLine(stderr)
	if msg == "" {
		msg = out.Fallback
	}
	if msg == "" {
		msg = code.Message()
	}
	return appErr.New(code).WithMessage(msg).WithDiagnostic(stderr)
}

// Diagnostic scrubs the workspace path and bounds the text.
func Diagnostic(raw []byte, workspace string) string {
	text := strings.TrimSpace(string(bytes.ToValidUTF8(raw, []byte("?"))))
	text = sandbox.ScrubPath(text, workspace)
	return truncate(text, maxDiagnosticBytes)
}

// extractPayload returns the text after the last marker. Without the marker there is no payload.
func extractPayload(stdout []byte, marker string) []byte {
	if marker == "" {
		return nil
	}
	idx := bytes.LastIndex(stdout, []byte(marker))
	if idx < 0 {
		return nil
	}
	return bytes.TrimSpace(stdout[idx+len(marker):])
}

func parseDocument(payload []byte) (*document, bool) {
	if len(payload) == 0 {
		return nil, false
	}
	var doc document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, false
	}
	return &doc, true
}

func fatalFromDocument(doc *document, stderr, workspace string) error {
	msg := sandbox.ScrubPath(strings.TrimSpace(*doc.Fatal), workspace)
	code := model.CodeForKind(doc.Kind)
	if msg == "" {
		msg = code.Message()
	}
	diagnostic := msg
	if stderr != "" {
		diagnostic = msg + "\n" + stderr
	}
	return appErr.New(code).WithMessage(msg).WithDiagnostic(diagnostic)
}

func runtimeMessage(out Output, stderr string) string {
	if out.OOMKilled {
		return "Memory limit exceeded"
	}
	if line := summaryLine(stderr); line != "" {
		return line
	}
	if out.Signal != "" {
		return fmt.Sprintf("Process terminated by signal: %s", out.Signal)
	}
	if out.Fallback != "" {
		return out.Fallback
	}
	if out.ExitCode != 0 {
		return fmt.Sprintf("Process exited with status %d", out.ExitCode)
	}
	return "Process produced no output"
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

// summaryLine picks the last line that is not a stack frame.
func summaryLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "at ") || strings.HasPrefix(line, "... ") {
			continue
		}
		return line
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n... (truncated)"
}
