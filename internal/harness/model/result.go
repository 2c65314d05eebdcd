package model

import (
	"encoding/json"

	appErr "learnhub/pkg/errors"
)

// CaseResult reports one test case. Case is 1-based.
type CaseResult struct {
	Case        int               `json:"case"`
	Args        []json.RawMessage `json:"args"`
	Expected    json.RawMessage   `json:"expected"`
	Output      json.RawMessage   `json:"output"`
	Passed      bool              `json:"passed"`
	Error       *string           `json:"error"`
	Description string            `json:"description"`
}

// ExecutionResult is the canonical shape every runner reports.
type ExecutionResult struct {
	Results   []CaseResult `json:"results"`
	AllPassed bool         `json:"allPassed"`
}

// FailedResult is the body attached to every fatal run.
func FailedResult() *ExecutionResult {
	return &ExecutionResult{Results: []CaseResult{}, AllPassed: false}
}

// Failure kinds reported alongside a fatal run.
const (
	KindValidation       = "ValidationError"
	KindToolchainMissing = "ToolchainMissing"
	KindCompileError     = "CompileError"
	KindRuntimeFatal     = "RuntimeFatal"
	KindTimeout          = "ExecutionTimeout"
	KindInvalidOutput    = "InvalidToolOutput"
	KindFunctionNotFound = "FunctionNotFound"
	KindUnsupportedType  = "UnsupportedType"
	KindCodeTooLarge     = "CodeTooLarge"
	KindBusy             = "HarnessBusy"
	KindSystem           = "HarnessSystemError"
)

// KindOf names the failure class of a harness error.
func KindOf(err error) string {
	switch appErr.GetCode(err) {
	case appErr.EmptyCode, appErr.LanguageNotSupported, appErr.ValidationFailed, appErr.InvalidParams:
		return KindValidation
	case appErr.CodeTooLarge:
		return KindCodeTooLarge
	case appErr.ToolchainMissing:
		return KindToolchainMissing
	case appErr.CompilationError:
		return KindCompileError
	case appErr.RuntimeFatal:
		return KindRuntimeFatal
	case appErr.ExecutionTimeout:
		return KindTimeout
	case appErr.InvalidToolOutput:
		return KindInvalidOutput
	case appErr.FunctionNotFound:
		return KindFunctionNotFound
	case appErr.UnsupportedType:
		return KindUnsupportedType
	case appErr.HarnessBusy:
		return KindBusy
	default:
		return KindSystem
	}
}

// CodeForKind maps a kind reported by a runner back to an error code.
func CodeForKind(kind string) appErr.ErrorCode {
	switch kind {
	case KindCompileError:
		return appErr.CompilationError
	case KindFunctionNotFound:
		return appErr.FunctionNotFound
	case KindUnsupportedType:
		return appErr.UnsupportedType
	case KindTimeout:
		return appErr.ExecutionTimeout
	default:
		return appErr.RuntimeFatal
	}
}

// FailedRun is the data payload of a fatal run: the empty result plus the error text.
type FailedRun struct {
	Results   []CaseResult `json:"results"`
	AllPassed bool         `json:"allPassed"`
	Kind      string       `json:"kind"`
	Error     string       `json:"error"`
}

// NewFailedRun builds the failure payload for err. Error holds the diagnostic when one exists.
func NewFailedRun(err error) *FailedRun {
	text := appErr.Diagnostic(err)
	if text == "" && err != nil {
		text = err.Error()
	}
	return &FailedRun{Results: []CaseResult{}, Kind: KindOf(err), Error: text}
}
