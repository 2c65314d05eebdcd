//go:build linux

// Command harness-init applies resource limits and a syscall filter, then execs the target.
// It reads one helperproto.Request from stdin.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"learnhub/internal/harness/sandbox/helperproto"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

const mb = 1024 * 1024

// maxStdinBytes keeps the write below the pipe buffer so it never blocks.
const maxStdinBytes = 4096

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "harness-init: "+err.Error())
		os.Exit(1)
	}
}

func run() error {
	req, err := decodeRequest(os.Stdin)
	if err != nil {
		return err
	}
	if err := validateRequest(req); err != nil {
		return err
	}
	if err := os.Chdir(req.Dir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}
	if err := applyRlimits(req.Limits); err != nil {
		return err
	}
	if err := redirectStdin(req.Stdin); err != nil {
		return err
	}
	if req.Seccomp.Enabled {
		if err := applySeccomp(denyList(req.Seccomp)); err != nil {
			return err
		}
	}

	env := buildEnv(req.Env)
	cmdPath, err := resolveCommand(req.Path, env)
	if err != nil {
		return err
	}
	argv := append([]string{req.Path}, req.Args...)
	return unix.Exec(cmdPath, argv, env)
}

func decodeRequest(r io.Reader) (helperproto.Request, error) {
	dec := json.NewDecoder(r)
	var req helperproto.Request
	if err := dec.Decode(&req); err != nil {
		return helperproto.Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func validateRequest(req helperproto.Request) error {
	if req.Path == "" {
		return fmt.Errorf("command is required")
	}
	if req.Dir == "" {
		return fmt.Errorf("work dir is required")
	}
	return nil
}

// rlimits maps request limits to setrlimit resources. Zero values are skipped.
func rlimits(limits helperproto.Limits) map[int]uint64 {
	out := make(map[int]uint64)
	if limits.CPUSeconds > 0 {
		out[unix.RLIMIT_CPU] = limits.CPUSeconds
	}
	if limits.AddressMB > 0 {
		out[unix.RLIMIT_AS] = limits.AddressMB * mb
	}
	if limits.FileSizeMB > 0 {
		out[unix.RLIMIT_FSIZE] = limits.FileSizeMB * mb
	}
	if limits.OpenFiles > 0 {
		out[unix.RLIMIT_NOFILE] = limits.OpenFiles
	}
	if limits.Processes > 0 {
		out[unix.RLIMIT_NPROC] = limits.Processes
	}
	if limits.StackMB > 0 {
		out[unix.RLIMIT_STACK] = limits.StackMB * mb
	}
	return out
}

func applyRlimits(limits helperproto.Limits) error {
	for resource, value := range rlimits(limits) {
		if err := unix.Setrlimit(resource, &unix.Rlimit{Cur: value, Max: value}); err != nil {
			return fmt.Errorf("set rlimit %d: %w", resource, err)
		}
	}
	return nil
}

// redirectStdin detaches the target from the request pipe. A non-empty data is served
// from a fresh pipe that is already closed for writing.
func redirectStdin(data string) error {
	if data == "" {
		devNull, err := os.Open(os.DevNull)
		if err != nil {
			return fmt.Errorf("open stdin: %w", err)
		}
		defer devNull.Close()
		if err := unix.Dup2(int(devNull.Fd()), int(os.Stdin.Fd())); err != nil {
			return fmt.Errorf("dup stdin: %w", err)
		}
		return nil
	}
	if len(data) > maxStdinBytes {
		return fmt.Errorf("stdin is %d bytes, limit %d", len(data), maxStdinBytes)
	}
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	defer unix.Close(fds[0])
	if _, err := unix.Write(fds[1], []byte(data)); err != nil {
		_ = unix.Close(fds[1])
		return fmt.Errorf("write stdin: %w", err)
	}
	if err := unix.Close(fds[1]); err != nil {
		return fmt.Errorf("close stdin writer: %w", err)
	}
	if err := unix.Dup2(fds[0], int(os.Stdin.Fd())); err != nil {
		return fmt.Errorf("dup stdin: %w", err)
	}
	return nil
}

func buildEnv(env []string) []string {
	if len(env) > 0 {
		return env
	}
	return []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
}

// resolveCommand looks the command up on the target's PATH, not ours.
func resolveCommand(path string, env []string) (string, error) {
	for _, kv := range env {
		if len(kv) > 5 && kv[:5] == "PATH=" {
			if err := os.Setenv("PATH", kv[5:]); err != nil {
				return "", fmt.Errorf("set path: %w", err)
			}
		}
	}
	cmdPath, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve command: %w", err)
	}
	return cmdPath, nil
}

func denyList(cfg helperproto.Seccomp) []string {
	names := cfg.Deny
	if len(names) == 0 {
		names = helperproto.DefaultDenySyscalls
	}
	out := append([]string(nil), names...)
	if cfg.DenyNetwork {
		out = append(out, helperproto.NetworkSyscalls...)
	}
	return out
}

func applySeccomp(deny []string) error {
	filter, err := seccomp.NewFilter(seccomp.ActAllow)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	defer filter.Release()
	action := seccomp.ActErrno.SetReturnCode(int16(unix.EPERM))
	for _, name := range deny {
		call, err := seccomp.GetSyscallFromName(name)
		if err != nil {
			// not present on this architecture
			continue
		}
		if err := filter.AddRule(call, action); err != nil {
			return fmt.Errorf("add seccomp rule %s: %w", name, err)
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}
