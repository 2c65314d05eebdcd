//go:build linux

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"syscall"
	"time"

	"learnhub/pkg/utils/logger"

	"go.uber.org/zap"
)

type linuxEngine struct {
	cfg Config
}

// NewEngine creates a Linux process engine. Each run gets its own process group.
func NewEngine(cfg Config) (Engine, error) {
	cfg = cfg.withDefaults()
	if cfg.EnableCgroup && cfg.CgroupRoot == "" {
		return nil, fmt.Errorf("cgroup root is required when cgroups are enabled")
	}
	return &linuxEngine{cfg: cfg}, nil
}

func (e *linuxEngine) Run(ctx context.Context, spec RunSpec) (RunResult, error) {
	if err := validateRunSpec(spec); err != nil {
		return RunResult{}, err
	}

	cgroupPath := ""
	if e.cfg.EnableCgroup {
		path, cleanup, err := createRunCgroup(e.cfg.CgroupRoot, spec.Label)
		if err != nil {
			return RunResult{}, fmt.Errorf("create cgroup: %w", err)
		}
		defer cleanup()
		if err := applyCgroupLimits(path, spec.Cgroup); err != nil {
			return RunResult{}, fmt.Errorf("apply cgroup limits: %w", err)
		}
		cgroupPath = path
	}

	cmd, stdin, err := newCommand(ctx, e.cfg, spec)
	if err != nil {
		return RunResult{}, err
	}
	if stdin != nil {
		defer stdin.Close()
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	cmd.Cancel = func() error {
		e.kill(cmd.Process.Pid, cgroupPath)
		return nil
	}
	cmd.WaitDelay = defaultWaitDelay

	stdout := newLimitedBuffer(e.cfg.StdoutMaxBytes)
	stderr := newLimitedBuffer(e.cfg.StderrMaxBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return RunResult{}, fmt.Errorf("%w: %w", ErrStart, err)
	}

	if cgroupPath != "" {
		if err := addProcessToCgroup(cgroupPath, cmd.Process.Pid); err != nil {
			logger.Warn(ctx, "add process to cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		timer := time.NewTimer(spec.Timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			timedOut.Store(true)
			e.kill(cmd.Process.Pid, cgroupPath)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	res := RunResult{
		ExitCode:        exitCodeFromErr(waitErr, cmd.ProcessState),
		Stdout:          stdout.Bytes(),
		Stderr:          stderr.Bytes(),
		StdoutTruncated: stdout.truncated,
		StderrTruncated: stderr.truncated,
		TimedOut:        timedOut.Load(),
		OOMKilled:       wasOomKilled(cgroupPath),
		Duration:        time.Since(start),
	}
	if status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		res.Signal = status.Signal().String()
	}
	if res.TimedOut && res.ExitCode == 0 {
		res.ExitCode = -1
	}
	if waitErr != nil && errors.Is(waitErr, context.DeadlineExceeded) {
		res.ExitCode = -1
	}

	logger.Debug(ctx, "process finished",
		zap.String("label", spec.Label),
		zap.Int("exit_code", res.ExitCode),
		zap.String("signal", res.Signal),
		zap.Bool("timed_out", res.TimedOut),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (e *linuxEngine) kill(pid int, cgroupPath string) {
	if cgroupPath != "" {
		if err := killCgroup(cgroupPath); err == nil {
			return
		}
	}
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
