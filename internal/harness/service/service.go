// Package service runs submissions through adapter, workspace, engine and normalizer.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"learnhub/internal/harness/adapter"
	"learnhub/internal/harness/archive"
	"learnhub/internal/harness/model"
	"learnhub/internal/harness/normalizer"
	"learnhub/internal/harness/sandbox"
	"learnhub/internal/harness/sandbox/engine"
	"learnhub/internal/harness/sandbox/helperproto"
	appErr "learnhub/pkg/errors"
	"learnhub/pkg/utils/contextkey"
	"learnhub/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ToolLocator locates toolchain executables.
type ToolLocator interface {
	Locate(ctx context.Context, tool string) sandbox.LookupResult
}

// Config holds service dependencies and settings.
type Config struct {
	Engine   engine.Engine
	Locator  ToolLocator
	Archiver *archive.Archiver
	Settings Settings
}

// Service executes submissions. It is safe for concurrent use.
type Service struct {
	engine   engine.Engine
	locator  ToolLocator
	archiver *archive.Archiver
	settings Settings
	sem      chan struct{}
	newRunID func() string
}

// NewService creates a harness service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Locator == nil {
		return nil, fmt.Errorf("locator is required")
	}
	settings := cfg.Settings.withDefaults()
	return &Service{
		engine:   cfg.Engine,
		locator:  cfg.Locator,
		archiver: cfg.Archiver,
		settings: settings,
		sem:      make(chan struct{}, settings.MaxConcurrent),
		newRunID: uuid.NewString,
	}, nil
}

// Run executes req. On any failure the returned result is model.FailedResult().
func (s *Service) Run(ctx context.Context, req model.ExecutionRequest) (*model.ExecutionResult, error) {
	lang, err := req.Validate(model.Limits{MaxCodeSize: s.settings.MaxCodeSize, MaxCases: s.settings.MaxCases})
	if err != nil {
		return model.FailedResult(), err
	}
	ad, err := adapter.For(lang, adapter.Options{CaseTimeout: s.settings.CaseTimeout})
	if err != nil {
		return model.FailedResult(), err
	}
	art, err := ad.Build(req.FunctionName, req.Code, req.TestCases)
	if err != nil {
		return model.FailedResult(), err
	}
	tools, err := s.resolveTools(ctx, art)
	if err != nil {
		return model.FailedResult(), err
	}

	if err := s.acquireSlot(ctx); err != nil {
		return model.FailedResult(), err
	}
	defer s.releaseSlot()

	runID := s.newRunID()
	marker := adapter.NewResultMarker()
	ctx = context.WithValue(ctx, contextkey.RunID, runID)
	start := time.Now()

	ws, err := sandbox.NewWorkspace(s.settings.WorkRoot, "learnhub-"+string(lang)+"-")
	if err != nil {
		logger.Error(ctx, "create workspace failed", zap.Error(err))
		return model.FailedResult(), appErr.Wrapf(err, appErr.HarnessSystemError, "create workspace failed")
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			logger.Warn(ctx, "remove workspace failed", zap.String("dir", ws.Dir()), zap.Error(err))
		}
	}()
	if err := ws.WriteFiles(art.Files); err != nil {
		logger.Error(ctx, "write workspace failed", zap.Error(err))
		return model.FailedResult(), appErr.Wrapf(err, appErr.HarnessSystemError, "write workspace failed")
	}

	vars := adapter.Vars{Dir: ws.Dir(), Sources: art.Sources, Main: art.Main}
	if art.Binary != "" {
		vars.Binary = ws.Path(art.Binary)
	}
	ls := s.settings.language(lang)

	if art.Compile != nil {
		out, err := s.runPhase(ctx, runID, lang, ls, *art.Compile, vars, tools, ws, nil)
		if err != nil {
			return model.FailedResult(), err
		}
		classify := func(diagnostic string) appErr.ErrorCode {
			return ad.ClassifyCompile(req.FunctionName, diagnostic)
		}
		if err := normalizer.Compile(out, classify); err != nil {
			return s.fail(ctx, runID, lang, req, ws, err)
		}
	}

	out, err := s.runPhase(ctx, runID, lang, ls, art.Run, vars, tools, ws, []byte(marker+"\n"))
	if err != nil {
		return model.FailedResult(), err
	}
	out.Marker = marker
	out.Cases = len(req.TestCases)
	result, err := normalizer.Normalize(out)
	if err != nil {
		return s.fail(ctx, runID, lang, req, ws, err)
	}

	logger.Info(ctx, "harness run finished",
		zap.String("language", string(lang)),
		zap.Int("cases", len(result.Results)),
		zap.Bool("all_passed", result.AllPassed),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// Toolchains looks up every known toolchain.
func (s *Service) Toolchains(ctx context.Context) []sandbox.LookupResult {
	specs := sandbox.DefaultToolSpecs()
	out := make([]sandbox.LookupResult, 0, len(specs))
	for _, spec := range specs {
		out = append(out, s.locator.Locate(ctx, spec.Name))
	}
	return out
}

func (s *Service) resolveTools(ctx context.Context, art *adapter.Artifact) (map[string]sandbox.LookupResult, error) {
	phases := []adapter.Phase{art.Run}
	if art.Compile != nil {
		phases = append(phases, *art.Compile)
	}
	tools := make(map[string]sandbox.LookupResult)
	for _, phase := range phases {
		if phase.Tool == "" {
			continue
		}
		res := s.locator.Locate(ctx, phase.Tool)
		if !res.Found() {
			return nil, appErr.Newf(appErr.ToolchainMissing, "%s is not installed (tried %s)", phase.Tool, strings.Join(res.Tried, ", ")).
				WithDetail("tool", phase.Tool)
		}
		tools[phase.Tool] = res
	}
	return tools, nil
}

func (s *Service) runPhase(ctx context.Context, runID string, lang model.Language, ls LanguageSettings,
	phase adapter.Phase, vars adapter.Vars, tools map[string]sandbox.LookupResult, ws *sandbox.Workspace, stdin []byte) (normalizer.Output, error) {
	template := phase.Template
	timeout := ls.RunTimeout
	limits := ls.Limits
	cgroup := ls.Cgroup
	if phase.Name == adapter.PhaseCompile {
		timeout = ls.CompileTimeout
		limits = helperproto.Limits{FileSizeMB: 64}
		cgroup = engine.CgroupLimits{}
		if ls.CompileTemplate != "" {
			template = ls.CompileTemplate
		}
	} else if ls.RunTemplate != "" {
		template = ls.RunTemplate
	}
	tool := tools[phase.Tool]
	vars.Tool = tool.Path
	if phase.Flags != nil {
		vars.Flags = phase.Flags(tool.Version, ws.Dir())
	}
	cmd, err := adapter.Expand(template, vars)
	if err != nil {
		return normalizer.Output{}, appErr.Wrapf(err, appErr.HarnessSystemError, "invalid %s command template", phase.Name)
	}

	res, err := s.engine.Run(ctx, engine.RunSpec{
		Label:   runID + "-" + phase.Name,
		Cmd:     cmd,
		Dir:     ws.Dir(),
		Env:     buildEnv(ws.Dir(), ls.Env),
		Stdin:   stdin,
		Timeout: timeout,
		Limits:  limits,
		Cgroup:  cgroup,
	})
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return normalizer.Output{}, appErr.Wrapf(err, appErr.ToolchainMissing, "%s could not be started", phase.Tool)
		}
		logger.Error(ctx, "engine run failed", zap.String("phase", phase.Name), zap.Error(err))
		return normalizer.Output{}, appErr.Wrapf(err, appErr.HarnessSystemError, "%s phase could not be started", phase.Name)
	}

	logger.Debug(ctx, "harness phase finished",
		zap.String("language", string(lang)),
		zap.String("phase", phase.Name),
		zap.Int("exit_code", res.ExitCode),
		zap.Bool("timed_out", res.TimedOut),
		zap.Duration("duration", res.Duration),
	)

	name := phase.Tool
	if name == "" {
		name = "program"
	}
	return normalizer.Output{
		ExitCode:  res.ExitCode,
		Signal:    res.Signal,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		TimedOut:  res.TimedOut,
		OOMKilled: res.OOMKilled,
		Fallback:  fmt.Sprintf("%s exited without producing results", name),
		Workspace: ws.Dir(),
	}, nil
}

// fail logs a fatal run and archives its workspace before cleanup.
func (s *Service) fail(ctx context.Context, runID string, lang model.Language, req model.ExecutionRequest,
	ws *sandbox.Workspace, err error) (*model.ExecutionResult, error) {
	kind := model.KindOf(err)
	logger.Warn(ctx, "harness run failed",
		zap.String("language", string(lang)),
		zap.String("kind", kind),
		zap.String("message", err.Error()),
	)
	if s.archiver != nil {
		meta := archive.Meta{
			RunID:        runID,
			Language:     string(lang),
			FunctionName: req.FunctionName,
			Kind:         kind,
			Message:      err.Error(),
			Diagnostic:   appErr.Diagnostic(err),
		}
		if _, archErr := s.archiver.Archive(context.WithoutCancel(ctx), ws.Dir(), meta); archErr != nil {
			logger.Warn(ctx, "archive run failed", zap.Error(archErr))
		}
	}
	return model.FailedResult(), err
}

func (s *Service) acquireSlot(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.settings.QueueWait):
		return appErr.New(appErr.HarnessBusy).WithMessage("all execution slots are busy")
	}
}

func (s *Service) releaseSlot() {
	select {
	case <-s.sem:
	default:
	}
}

func buildEnv(dir string, extra []string) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + dir,
		"TMPDIR=" + dir,
		"LANG=C.UTF-8",
		"LC_ALL=C.UTF-8",
	}
	return append(env, extra...)
}
