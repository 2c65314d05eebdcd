//go:build linux

package main

import (
	"strings"
	"testing"

	"learnhub/internal/harness/sandbox/helperproto"

	"golang.org/x/sys/unix"
)

func TestDecodeAndValidate(t *testing.T) {
	req, err := decodeRequest(strings.NewReader(`{"path":"python3","args":["-I","runner.py"],"dir":"/tmp/x","limits":{"cpuSeconds":2}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Path != "python3" || len(req.Args) != 2 || req.Limits.CPUSeconds != 2 {
		t.Fatalf("unexpected request %+v", req)
	}
	if err := validateRequest(req); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := validateRequest(helperproto.Request{Path: "x"}); err == nil {
		t.Fatalf("expected missing dir error")
	}
	if _, err := decodeRequest(strings.NewReader("{")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestRlimits(t *testing.T) {
	got := rlimits(helperproto.Limits{CPUSeconds: 3, AddressMB: 512, OpenFiles: 64})
	if len(got) != 3 {
		t.Fatalf("expected 3 limits, got %v", got)
	}
	if got[unix.RLIMIT_AS] != 512*mb || got[unix.RLIMIT_CPU] != 3 || got[unix.RLIMIT_NOFILE] != 64 {
		t.Fatalf("unexpected limits %v", got)
	}
}

func TestDenyList(t *testing.T) {
	base := denyList(helperproto.Seccomp{Enabled: true})
	if len(base) != len(helperproto.DefaultDenySyscalls) {
		t.Fatalf("expected default deny list")
	}
	withNet := denyList(helperproto.Seccomp{Enabled: true, Deny: []string{"ptrace"}, DenyNetwork: true})
	if withNet[0] != "ptrace" || len(withNet) != 1+len(helperproto.NetworkSyscalls) {
		t.Fatalf("unexpected deny list %v", withNet)
	}
	if len(helperproto.DefaultDenySyscalls) > 0 && &base[0] == &helperproto.DefaultDenySyscalls[0] {
		t.Fatalf("deny list must not alias the defaults")
	}
}
