package controller

import (
	"learnhub/internal/harness/archive"
	"learnhub/internal/harness/model"
)

// RunTestsRequest is the body of POST /ai/run-tests.
type RunTestsRequest struct {
	Language     string           `json:"language"`
	FunctionName string           `json:"functionName"`
	Code         string           `json:"code"`
	TestCases    []model.TestCase `json:"testCases"`
}

// ToolchainResponse reports one located toolchain.
type ToolchainResponse struct {
	Tool    string   `json:"tool"`
	Status  string   `json:"status"`
	Path    string   `json:"path,omitempty"`
	Version string   `json:"version,omitempty"`
	Tried   []string `json:"tried,omitempty"`
}

// ArchiveLinkResponse carries a presigned download URL.
type ArchiveLinkResponse struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expiresIn"`
}

// ArchiveInspectResponse lists an archived run.
type ArchiveInspectResponse struct {
	Meta  *archive.Meta  `json:"meta"`
	Files []archive.File `json:"files"`
}
