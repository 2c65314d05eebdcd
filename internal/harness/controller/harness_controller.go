package controller

import (
	"context"
	"strings"
	"time"

	"learnhub/internal/harness/archive"
	"learnhub/internal/harness/model"
	"learnhub/internal/harness/sandbox"
	appErr "learnhub/pkg/errors"
	"learnhub/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const defaultLinkTTL = 15 * time.Minute

// Runner executes submissions.
type Runner interface {
	Run(ctx context.Context, req model.ExecutionRequest) (*model.ExecutionResult, error)
	Toolchains(ctx context.Context) []sandbox.LookupResult
}

// ArchiveReader exposes archived failed runs.
type ArchiveReader interface {
	List(ctx context.Context, day string) ([]archive.Entry, error)
	Link(ctx context.Context, key string, ttl time.Duration) (string, error)
	Inspect(ctx context.Context, key string) (*archive.Meta, []archive.File, error)
}

// HarnessController handles code execution endpoints.
type HarnessController struct {
	runner   Runner
	archives ArchiveReader
}

// NewHarnessController creates a new controller. archives may be nil.
func NewHarnessController(runner Runner, archives ArchiveReader) *HarnessController {
	return &HarnessController{runner: runner, archives: archives}
}

// RunTests executes user code against the supplied cases.
func (h *HarnessController) RunTests(c *gin.Context) {
	var req RunTestsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondRunError(c, appErr.Wrapf(err, appErr.InvalidParams, "Invalid request parameters"))
		return
	}
	result, err := h.runner.Run(c.Request.Context(), model.ExecutionRequest{
		Language:     req.Language,
		FunctionName: req.FunctionName,
		Code:         req.Code,
		TestCases:    req.TestCases,
	})
	if err != nil {
		RespondRunError(c, err)
		return
	}
	response.Success(c, result)
}

// Toolchains reports which toolchains are installed.
func (h *HarnessController) Toolchains(c *gin.Context) {
	tools := h.runner.Toolchains(c.Request.Context())
	out := make([]ToolchainResponse, 0, len(tools))
	for _, p := range tools {
		out = append(out, ToolchainResponse{
			Tool:    p.Tool,
			Status:  string(p.Status),
			Path:    p.Path,
			Version: p.Version,
			Tried:   p.Tried,
		})
	}
	response.Success(c, out)
}

// ListArchives lists archived runs for ?day=YYYY-MM-DD (today by default).
func (h *HarnessController) ListArchives(c *gin.Context) {
	if !h.archiveEnabled(c) {
		return
	}
	day := strings.TrimSpace(c.Query("day"))
	if day == "" {
		day = time.Now().UTC().Format(time.DateOnly)
	}
	if _, err := time.Parse(time.DateOnly, day); err != nil {
		response.BadRequest(c, "Invalid day")
		return
	}
	entries, err := h.archives.List(c.Request.Context(), day)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entries)
}

// LinkArchive returns a presigned URL for ?key=.
func (h *HarnessController) LinkArchive(c *gin.Context) {
	if !h.archiveEnabled(c) {
		return
	}
	key := strings.TrimSpace(c.Query("key"))
	if key == "" {
		response.BadRequest(c, "Invalid archive key")
		return
	}
	url, err := h.archives.Link(c.Request.Context(), key, defaultLinkTTL)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ArchiveLinkResponse{Key: key, URL: url, ExpiresIn: int64(defaultLinkTTL / time.Second)})
}

// InspectArchive lists the metadata and files of ?key=.
func (h *HarnessController) InspectArchive(c *gin.Context) {
	if !h.archiveEnabled(c) {
		return
	}
	key := strings.TrimSpace(c.Query("key"))
	if key == "" {
		response.BadRequest(c, "Invalid archive key")
		return
	}
	meta, files, err := h.archives.Inspect(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ArchiveInspectResponse{Meta: meta, Files: files})
}

func (h *HarnessController) archiveEnabled(c *gin.Context) bool {
	if h.archives == nil {
		response.ErrorWithCode(c, appErr.ServiceUnavailable, "Run archive is disabled")
		return false
	}
	return true
}

// RespondRunError writes a harness failure. The body always carries the empty result shape.
func RespondRunError(c *gin.Context, err error) {
	response.ErrorWithData(c, err, model.NewFailedRun(err))
}
