package sandbox

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Tool names used by the language adapters.
const (
	ToolPython = "python"
	ToolNode   = "node"
	ToolJavac  = "javac"
	ToolJava   = "java"
	ToolGCC    = "gcc"
	ToolGPP    = "g++"
)

const (
	defaultLookupTTL      = time.Minute
	defaultVersionTimeout = 5 * time.Second
)

// LookupStatus is the outcome of a toolchain lookup.
type LookupStatus string

const (
	StatusFound    LookupStatus = "found"
	StatusNotFound LookupStatus = "not_found"
)

// LookupResult is Found(path) or NotFound.
type LookupResult struct {
	Tool    string
	Status  LookupStatus
	Path    string
	Version string
	Tried   []string
}

// Found reports whether a usable executable was located.
func (r LookupResult) Found() bool {
	return r.Status == StatusFound
}

// ToolSpec describes how to find one toolchain executable.
type ToolSpec struct {
	Name           string   `yaml:"name"`
	Candidates     []string `yaml:"candidates"`
	VersionArgs    []string `yaml:"versionArgs"`
	VersionPattern string   `yaml:"versionPattern"`
}

// DefaultToolSpecs returns the preference lists for every supported toolchain.
func DefaultToolSpecs() []ToolSpec {
	return []ToolSpec{
		{Name: ToolPython, Candidates: []string{"python3", "python", "py"}, VersionArgs: []string{"--version"}, VersionPattern: `Python 3\.`},
		{Name: ToolNode, Candidates: []string{"node", "nodejs"}, VersionArgs: []string{"--version"}},
		{Name: ToolJavac, Candidates: []string{"javac"}, VersionArgs: []string{"-version"}},
		{Name: ToolJava, Candidates: []string{"java"}, VersionArgs: []string{"-version"}},
		{Name: ToolGCC, Candidates: []string{"gcc", "cc"}, VersionArgs: []string{"--version"}},
		{Name: ToolGPP, Candidates: []string{"g++", "c++", "clang++"}, VersionArgs: []string{"--version"}},
	}
}

type lookupEntry struct {
	result  LookupResult
	expires time.Time
}

// Locator resolves toolchains in preference order and caches the answer.
type Locator struct {
	specs      map[string]ToolSpec
	ttl        time.Duration
	timeout    time.Duration
	lookPath   func(string) (string, error)
	runVersion func(ctx context.Context, path string, args []string) (string, error)
	now        func() time.Time

	mu    sync.Mutex
	cache map[string]lookupEntry
}

// NewLocator builds a locator. Specs override the defaults by name.
func NewLocator(overrides []ToolSpec, ttl time.Duration) *Locator {
	if ttl <= 0 {
		ttl = defaultLookupTTL
	}
	specs := make(map[string]ToolSpec)
	for _, s := range DefaultToolSpecs() {
		specs[s.Name] = s
	}
	for _, s := range overrides {
		base, ok := specs[s.Name]
		if ok {
			if len(s.Candidates) > 0 {
				base.Candidates = s.Candidates
			}
			if len(s.VersionArgs) > 0 {
				base.VersionArgs = s.VersionArgs
			}
			if s.VersionPattern != "" {
				base.VersionPattern = s.VersionPattern
			}
			specs[s.Name] = base
			continue
		}
		specs[s.Name] = s
	}
	return &Locator{
		specs:      specs,
		ttl:        ttl,
		timeout:    defaultVersionTimeout,
		lookPath:   exec.LookPath,
		runVersion: runVersionCommand,
		now:        time.Now,
		cache:      make(map[string]lookupEntry),
	}
}

// Locate returns the first candidate that exists and answers its version check.
func (l *Locator) Locate(ctx context.Context, tool string) LookupResult {
	now := l.now()
	l.mu.Lock()
	if entry, ok := l.cache[tool]; ok && now.Before(entry.expires) {
		l.mu.Unlock()
		return entry.result
	}
	l.mu.Unlock()

	result, settled := l.lookup(ctx, tool)
	if !settled {
		return result
	}

	l.mu.Lock()
	l.cache[tool] = lookupEntry{result: result, expires: now.Add(l.ttl)}
	l.mu.Unlock()
	return result
}

// Invalidate drops cached answers so the next Locate looks again.
func (l *Locator) Invalidate() {
	l.mu.Lock()
	l.cache = make(map[string]lookupEntry)
	l.mu.Unlock()
}

// lookup reports settled=false when a version check ran out of time, so the answer is not cached.
// Version checks do not inherit the caller's cancellation.
func (l *Locator) lookup(ctx context.Context, tool string) (LookupResult, bool) {
	res := LookupResult{Tool: tool, Status: StatusNotFound}
	spec, ok := l.specs[tool]
	if !ok {
		return res, true
	}
	var pattern *regexp.Regexp
	if spec.VersionPattern != "" {
		pattern, _ = regexp.Compile(spec.VersionPattern)
	}
	settled := true
	for _, candidate := range spec.Candidates {
		res.Tried = append(res.Tried, candidate)
		path, err := l.lookPath(candidate)
		if err != nil {
			continue
		}
		version := ""
		if len(spec.VersionArgs) > 0 {
			checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
			out, err := l.runVersion(checkCtx, path, spec.VersionArgs)
			expired := checkCtx.Err() != nil
			cancel()
			if err != nil {
				if expired {
					settled = false
				}
				continue
			}
			if pattern != nil && !pattern.MatchString(out) {
				continue
			}
			version = firstLine(out)
		}
		res.Status = StatusFound
		res.Path = path
		res.Version = version
		return res, true
	}
	return res, settled
}

func runVersionCommand(ctx context.Context, path string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return out.String(), nil
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
