//go:build !linux

package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

type portableEngine struct {
	cfg Config
}

// NewEngine creates an engine without process groups, cgroups or the init helper.
func NewEngine(cfg Config) (Engine, error) {
	cfg = cfg.withDefaults()
	cfg.HelperPath = ""
	cfg.EnableCgroup = false
	return &portableEngine{cfg: cfg}, nil
}

func (e *portableEngine) Run(ctx context.Context, spec RunSpec) (RunResult, error) {
	if err := validateRunSpec(spec); err != nil {
		return RunResult{}, err
	}
	runCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	cmd, _, err := newCommand(runCtx, e.cfg, spec)
	if err != nil {
		return RunResult{}, err
	}
	var timedOut atomic.Bool
	cmd.Cancel = func() error {
		if runCtx.Err() == context.DeadlineExceeded {
			timedOut.Store(true)
		}
		return cmd.Process.Kill()
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
	waitErr := cmd.Wait()
	res := RunResult{
		ExitCode:        exitCodeFromErr(waitErr, cmd.ProcessState),
		Stdout:          stdout.Bytes(),
		Stderr:          stderr.Bytes(),
		StdoutTruncated: stdout.truncated,
		StderrTruncated: stderr.truncated,
		TimedOut:        timedOut.Load(),
		Duration:        time.Since(start),
	}
	if res.TimedOut && res.ExitCode == 0 {
		res.ExitCode = -1
	}
	return res, nil
}
