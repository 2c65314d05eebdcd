// Package engine spawns toolchain processes under a wall-clock limit with bounded output capture.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"learnhub/internal/harness/sandbox/helperproto"
)

const (
	defaultOutputMaxBytes int64 = 1 << 20
	defaultWaitDelay            = 2 * time.Second
)

// ErrStart marks failures to launch the process at all.
var ErrStart = errors.New("start process")

// Engine executes one command.
type Engine interface {
	Run(ctx context.Context, spec RunSpec) (RunResult, error)
}

// Config controls engine behavior.
type Config struct {
	HelperPath     string              `yaml:"helperPath"`
	StdoutMaxBytes int64               `yaml:"stdoutMaxBytes"`
	StderrMaxBytes int64               `yaml:"stderrMaxBytes"`
	EnableCgroup   bool                `yaml:"enableCgroup"`
	CgroupRoot     string              `yaml:"cgroupRoot"`
	Seccomp        helperproto.Seccomp `yaml:"seccomp"`
}

// CgroupLimits apply only when cgroups are enabled.
type CgroupLimits struct {
	MemoryMB int64 `yaml:"memoryMB"`
	PIDs     int64 `yaml:"pids"`
}

// RunSpec is one process invocation.
type RunSpec struct {
	Label string
	Cmd   []string
	Dir   string
	Env   []string
	// Stdin is fed to the process and then closed. Nil reads from /dev/null.
	Stdin   []byte
	Timeout time.Duration
	Limits  helperproto.Limits
	Cgroup  CgroupLimits
}

// RunResult is what the process left behind.
type RunResult struct {
	ExitCode        int
	Signal          string
	Stdout          []byte
	Stderr          []byte
	StdoutTruncated bool
	StderrTruncated bool
	TimedOut        bool
	OOMKilled       bool
	Duration        time.Duration
}

func (c Config) withDefaults() Config {
	if c.StdoutMaxBytes <= 0 {
		c.StdoutMaxBytes = defaultOutputMaxBytes
	}
	if c.StderrMaxBytes <= 0 {
		c.StderrMaxBytes = defaultOutputMaxBytes
	}
	return c
}

func validateRunSpec(spec RunSpec) error {
	if spec.Dir == "" {
		return fmt.Errorf("work dir is required")
	}
	if len(spec.Cmd) == 0 || spec.Cmd[0] == "" {
		return fmt.Errorf("command is required")
	}
	if spec.Timeout <= 0 {
		return fmt.Errorf("timeout is required")
	}
	return nil
}

// newCommand builds the process, routing through the helper when configured.
func newCommand(ctx context.Context, cfg Config, spec RunSpec) (*exec.Cmd, io.Closer, error) {
	if cfg.HelperPath == "" {
		cmd := exec.CommandContext(ctx, spec.Cmd[0], spec.Cmd[1:]...)
		cmd.Dir = spec.Dir
		cmd.Env = spec.Env
		if spec.Stdin != nil {
			cmd.Stdin = bytes.NewReader(spec.Stdin)
		}
		return cmd, nil, nil
	}
	req := helperproto.Request{
		Path:    spec.Cmd[0],
		Args:    spec.Cmd[1:],
		Env:     spec.Env,
		Dir:     spec.Dir,
		Stdin:   string(spec.Stdin),
		Limits:  spec.Limits,
		Seccomp: cfg.Seccomp,
	}
	stdin, err := jsonToPipe(req)
	if err != nil {
		return nil, nil, fmt.Errorf("encode init request: %w", err)
	}
	cmd := exec.CommandContext(ctx, cfg.HelperPath)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdin = stdin
	return cmd, stdin, nil
}

func jsonToPipe(req helperproto.Request) (io.ReadCloser, error) {
	reader, writer := io.Pipe()
	go func() {
		enc := json.NewEncoder(writer)
		err := enc.Encode(req)
		_ = writer.CloseWithError(err)
	}()
	return reader, nil
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// limitedBuffer keeps the first max bytes and drops the rest.
type limitedBuffer struct {
	buf       []byte
	max       int64
	truncated bool
}

func newLimitedBuffer(max int64) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.max - int64(len(b.buf))
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if int64(len(p)) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte {
	return b.buf
}
