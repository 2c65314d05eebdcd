// Package adapter turns a function, its source and test cases into a runnable artifact per language.
package adapter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"learnhub/internal/harness/model"
	appErr "learnhub/pkg/errors"

	"github.com/google/shlex"
	"github.com/google/uuid"
)

// NewResultMarker returns a fresh marker for one run. The runner reads it as the first line
// of stdin before any user code loads and prints it in front of the result document.
func NewResultMarker() string {
	return "__LEARNHUB_RESULT_" + strings.ReplaceAll(uuid.NewString(), "-", "") + "__"
}

// Phase names.
const (
	PhaseCompile = "compile"
	PhaseRun     = "run"
)

const defaultCaseTimeout = 3 * time.Second

// Phase is one process invocation. An empty Tool runs the compiled binary.
type Phase struct {
	Name     string
	Tool     string
	Template string
	// Flags picks {flags} from the located tool version and the workspace dir.
	Flags func(version, dir string) []string
}

// Artifact is everything a run needs: files for the workspace plus the commands to run.
type Artifact struct {
	Files   map[string][]byte
	Sources []string
	Binary  string
	Main    string
	Compile *Phase
	Run     Phase
}

// Adapter builds artifacts for one language.
type Adapter interface {
	Language() model.Language
	Build(functionName, code string, cases []model.TestCase) (*Artifact, error)
	// ClassifyCompile maps a failed compile's diagnostic to an error code.
	ClassifyCompile(functionName, diagnostic string) appErr.ErrorCode
}

// Options tune adapter output.
type Options struct {
	CaseTimeout time.Duration
}

// For returns the adapter for a normalized language.
func For(lang model.Language, opts Options) (Adapter, error) {
	if opts.CaseTimeout <= 0 {
		opts.CaseTimeout = defaultCaseTimeout
	}
	switch lang {
	case model.Python:
		return pythonAdapter{}, nil
	case model.JavaScript:
		return javascriptAdapter{caseTimeout: opts.CaseTimeout}, nil
	case model.Java:
		return javaAdapter{}, nil
	case model.C:
		return cFamilyAdapter{cpp: false}, nil
	case model.CPP:
		return cFamilyAdapter{cpp: true}, nil
	default:
		return nil, appErr.Newf(appErr.LanguageNotSupported, "Unsupported language: %s", lang)
	}
}

// Vars are substituted into command templates.
type Vars struct {
	Tool    string
	Dir     string
	Sources []string
	Binary  string
	Main    string
	// Flags are extra interpreter arguments chosen at run time.
	Flags []string
}

// Expand splits a template with shell quoting rules and substitutes placeholders per token.
// A token that is exactly {src} expands to every source file, {flags} to every flag.
func Expand(template string, vars Vars) ([]string, error) {
	tokens, err := shlex.Split(template)
	if err != nil {
		return nil, fmt.Errorf("parse command template: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty command template")
	}
	r := strings.NewReplacer(
		"{tool}", vars.Tool,
		"{dir}", vars.Dir,
		"{bin}", vars.Binary,
		"{main}", vars.Main,
		"{src}", strings.Join(vars.Sources, " "),
	)
	out := make([]string, 0, len(tokens)+len(vars.Sources)+len(vars.Flags))
	for _, tok := range tokens {
		switch tok {
		case "{src}":
			out = append(out, vars.Sources...)
			continue
		case "{flags}":
			out = append(out, vars.Flags...)
			continue
		}
		out = append(out, r.Replace(tok))
	}
	return out, nil
}

func harnessSpecFile(functionName string, cases []model.TestCase, caseTimeout time.Duration) ([]byte, error) {
	doc := struct {
		FunctionName  string           `json:"functionName"`
		CaseTimeoutMs int64            `json:"caseTimeoutMs,omitempty"`
		Cases         []model.TestCase `json:"cases"`
	}{
		FunctionName:  functionName,
		CaseTimeoutMs: caseTimeout.Milliseconds(),
		Cases:         normalizeCases(cases),
	}
	return marshalJSON(doc)
}

func normalizeCases(cases []model.TestCase) []model.TestCase {
	out := make([]model.TestCase, len(cases))
	for i, tc := range cases {
		if tc.Args == nil {
			tc.Args = []json.RawMessage{}
		}
		tc.Expected = tc.ExpectedJSON()
		out[i] = tc
	}
	return out
}
