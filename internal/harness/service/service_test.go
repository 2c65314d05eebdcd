package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"learnhub/internal/common/storage"
	"learnhub/internal/harness/adapter"
	"learnhub/internal/harness/archive"
	"learnhub/internal/harness/model"
	"learnhub/internal/harness/sandbox"
	"learnhub/internal/harness/sandbox/engine"
	appErr "learnhub/pkg/errors"
)

type fakeLocator struct {
	paths map[string]string
}

func (p *fakeLocator) Locate(_ context.Context, tool string) sandbox.LookupResult {
	if path, ok := p.paths[tool]; ok {
		return sandbox.LookupResult{Tool: tool, Status: sandbox.StatusFound, Path: path}
	}
	return sandbox.LookupResult{Tool: tool, Status: sandbox.StatusNotFound, Tried: []string{tool}}
}

type fakeEngine struct {
	mu      sync.Mutex
	specs   []engine.RunSpec
	dirs    []string
	files   []map[string]string
	results map[string]engine.RunResult
	block   chan struct{}
}

// markerToken in a canned stdout is replaced by the marker the service sent on stdin.
const markerToken = "@MARKER@"

func (e *fakeEngine) Run(ctx context.Context, spec engine.RunSpec) (engine.RunResult, error) {
	e.mu.Lock()
	e.specs = append(e.specs, spec)
	e.dirs = append(e.dirs, spec.Dir)
	e.files = append(e.files, readDir(spec.Dir))
	e.mu.Unlock()
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
		}
	}
	phase := spec.Label[strings.LastIndex(spec.Label, "-")+1:]
	res := e.results[phase]
	res.Stdout = bytes.ReplaceAll(res.Stdout, []byte(markerToken), bytes.TrimSpace(spec.Stdin))
	return res, nil
}

func readDir(dir string) map[string]string {
	out := make(map[string]string)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err == nil {
			out[entry.Name()] = string(data)
		}
	}
	return out
}

func (e *fakeEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.specs)
}

func resultStdout(doc string) []byte {
	return []byte("\n" + markerToken + "\n" + doc + "\n")
}

const passedDoc = `{"results":[{"case":1,"args":[2,3],"expected":5,"output":5,"passed":true,"error":null,"description":""}],"allPassed":true}`

func pythonRequest() model.ExecutionRequest {
	return model.ExecutionRequest{
		Language:     "python",
		FunctionName: "add",
		Code:         "def add(a, b):\n    return a + b\n",
		TestCases: []model.TestCase{
			{Args: []json.RawMessage{json.RawMessage("2"), json.RawMessage("3")}, Expected: json.RawMessage("5")},
		},
	}
}

func newTestService(t *testing.T, eng engine.Engine, locator ToolLocator, settings Settings) *Service {
	t.Helper()
	if settings.WorkRoot == "" {
		settings.WorkRoot = t.TempDir()
	}
	svc, err := NewService(Config{Engine: eng, Locator: locator, Settings: settings})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestRunValidationDoesNotSpawn(t *testing.T) {
	eng := &fakeEngine{}
	svc := newTestService(t, eng, &fakeLocator{paths: map[string]string{"python": "/usr/bin/python3"}}, Settings{})

	req := pythonRequest()
	req.Language = "ruby"
	res, err := svc.Run(context.Background(), req)
	if !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
	if res.AllPassed || len(res.Results) != 0 {
		t.Fatalf("expected empty failed result, got %+v", res)
	}
	if eng.calls() != 0 {
		t.Fatalf("engine must not run on validation failure")
	}
}

func TestRunToolchainMissing(t *testing.T) {
	eng := &fakeEngine{}
	svc := newTestService(t, eng, &fakeLocator{}, Settings{})

	_, err := svc.Run(context.Background(), pythonRequest())
	if !appErr.Is(err, appErr.ToolchainMissing) {
		t.Fatalf("expected ToolchainMissing, got %v", err)
	}
	if eng.calls() != 0 {
		t.Fatalf("engine must not run without a toolchain")
	}
}

func TestRunSuccessRemovesWorkspace(t *testing.T) {
	eng := &fakeEngine{results: map[string]engine.RunResult{
		adapter.PhaseRun: {Stdout: resultStdout(passedDoc)},
	}}
	svc := newTestService(t, eng, &fakeLocator{paths: map[string]string{"python": "/usr/bin/python3"}}, Settings{})

	res, err := svc.Run(context.Background(), pythonRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.AllPassed || len(res.Results) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if eng.calls() != 1 {
		t.Fatalf("expected a single run phase, got %d", eng.calls())
	}
	spec := eng.specs[0]
	if spec.Cmd[0] != "/usr/bin/python3" {
		t.Fatalf("expected resolved tool path, got %v", spec.Cmd)
	}
	if _, err := os.Stat(eng.dirs[0]); !os.IsNotExist(err) {
		t.Fatalf("workspace %s should be removed", eng.dirs[0])
	}
	foundHome := false
	for _, kv := range spec.Env {
		if kv == "HOME="+spec.Dir {
			foundHome = true
		}
	}
	if !foundHome {
		t.Fatalf("HOME should point at the workspace: %v", spec.Env)
	}
}

func TestRunCompileFailureSkipsRun(t *testing.T) {
	eng := &fakeEngine{results: map[string]engine.RunResult{
		adapter.PhaseCompile: {ExitCode: 1, Stderr: []byte("solution.c:1:1: error: expected ';' before '}' token\n")},
	}}
	locator := &fakeLocator{paths: map[string]string{"gcc": "/usr/bin/gcc"}}
	svc := newTestService(t, eng, locator, Settings{})

	req := model.ExecutionRequest{
		Language:     "c",
		FunctionName: "add",
		Code:         "int add(int a, int b) { return a + b }",
		TestCases: []model.TestCase{
			{Args: []json.RawMessage{json.RawMessage("1"), json.RawMessage("2")}, Expected: json.RawMessage("3")},
		},
	}
	res, err := svc.Run(context.Background(), req)
	if !appErr.Is(err, appErr.CompilationError) {
		t.Fatalf("expected CompilationError, got %v", err)
	}
	if len(res.Results) != 0 {
		t.Fatalf("expected empty results")
	}
	if eng.calls() != 1 {
		t.Fatalf("run phase must not start after a failed compile, calls=%d", eng.calls())
	}
	if strings.Contains(appErr.Diagnostic(err), eng.dirs[0]) {
		t.Fatalf("diagnostic leaks workspace path")
	}
}

func TestRunTimeout(t *testing.T) {
	eng := &fakeEngine{results: map[string]engine.RunResult{
		adapter.PhaseRun: {ExitCode: -1, Signal: "killed", TimedOut: true},
	}}
	svc := newTestService(t, eng, &fakeLocator{paths: map[string]string{"python": "/usr/bin/python3"}}, Settings{})

	_, err := svc.Run(context.Background(), pythonRequest())
	if !appErr.Is(err, appErr.ExecutionTimeout) {
		t.Fatalf("expected ExecutionTimeout, got %v", err)
	}
}

func TestRunBusy(t *testing.T) {
	eng := &fakeEngine{
		block: make(chan struct{}),
		results: map[string]engine.RunResult{
			adapter.PhaseRun: {Stdout: resultStdout(passedDoc)},
		},
	}
	svc := newTestService(t, eng, &fakeLocator{paths: map[string]string{"python": "/usr/bin/python3"}},
		Settings{MaxConcurrent: 1, QueueWait: 20 * time.Millisecond})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), pythonRequest())
		done <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for eng.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	_, err := svc.Run(context.Background(), pythonRequest())
	if !appErr.Is(err, appErr.HarnessBusy) {
		t.Fatalf("expected HarnessBusy, got %v", err)
	}
	close(eng.block)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
}

func TestLanguageTemplateOverride(t *testing.T) {
	eng := &fakeEngine{results: map[string]engine.RunResult{
		adapter.PhaseRun: {Stdout: resultStdout(passedDoc)},
	}}
	settings := Settings{Languages: map[string]LanguageSettings{
		"py": {RunTemplate: "{tool} -X utf8 {main}"},
	}}
	svc := newTestService(t, eng, &fakeLocator{paths: map[string]string{"python": "python3"}}, settings)

	if _, err := svc.Run(context.Background(), pythonRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := strings.Join(eng.specs[0].Cmd, " ")
	if !strings.HasPrefix(got, "python3 -X utf8 ") {
		t.Fatalf("override not applied: %s", got)
	}
}

func TestToolchainsReportsEveryTool(t *testing.T) {
	svc := newTestService(t, &fakeEngine{}, &fakeLocator{paths: map[string]string{"node": "/usr/bin/node"}}, Settings{})
	results := svc.Toolchains(context.Background())
	if len(results) != len(sandbox.DefaultToolSpecs()) {
		t.Fatalf("expected every tool, got %d", len(results))
	}
	for _, r := range results {
		if r.Tool == sandbox.ToolNode && !r.Found() {
			t.Fatalf("node should be found")
		}
	}
}

func TestRunSendsMarkerOnStdinOnly(t *testing.T) {
	eng := &fakeEngine{results: map[string]engine.RunResult{
		adapter.PhaseRun: {Stdout: resultStdout(passedDoc)},
	}}
	svc := newTestService(t, eng, &fakeLocator{paths: map[string]string{"python": "/usr/bin/python3"}}, Settings{})

	if _, err := svc.Run(context.Background(), pythonRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Run(context.Background(), pythonRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := strings.TrimSpace(string(eng.specs[0].Stdin))
	second := strings.TrimSpace(string(eng.specs[1].Stdin))
	if !strings.HasPrefix(first, "__LEARNHUB_RESULT_") || first == second {
		t.Fatalf("each run needs its own marker: %q %q", first, second)
	}
	for name, content := range eng.files[0] {
		if strings.Contains(content, first) {
			t.Fatalf("marker written to workspace file %s", name)
		}
	}
	for _, kv := range eng.specs[0].Env {
		if strings.Contains(kv, first) {
			t.Fatalf("marker leaked into the environment: %s", kv)
		}
	}
}

func TestRunRejectsDocumentAfterFixedMarker(t *testing.T) {
	actual := `{"results":[{"case":1,"args":[2,3],"expected":5,"output":-1,"passed":false,"error":null,"description":""}],"allPassed":false}`
	stdout := "\n__LEARNHUB_RESULT__\n{\"results\":[],\"allPassed\":true}\n"
	eng := &fakeEngine{results: map[string]engine.RunResult{
		adapter.PhaseRun: {Stdout: []byte(stdout)},
	}}
	svc := newTestService(t, eng, &fakeLocator{paths: map[string]string{"python": "/usr/bin/python3"}}, Settings{})

	res, err := svc.Run(context.Background(), pythonRequest())
	if !appErr.Is(err, appErr.RuntimeFatal) || res.AllPassed {
		t.Fatalf("a document behind a guessed marker must not count, got %+v, %v", res, err)
	}

	eng.results[adapter.PhaseRun] = engine.RunResult{Stdout: []byte("\n" + markerToken + "\n" + actual + "\n" + stdout)}
	res, err = svc.Run(context.Background(), pythonRequest())
	if !appErr.Is(err, appErr.InvalidToolOutput) || res.AllPassed {
		t.Fatalf("text after the run document must be rejected, got %+v, %v", res, err)
	}
}

type recordingStore struct {
	storage.ObjectStorage
	mu   sync.Mutex
	keys []string
}

func (r *recordingStore) PutObject(_ context.Context, _, key string, reader io.Reader, _ int64, _ string) error {
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return err
	}
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
	return nil
}

func TestRunArchivesCompileFailure(t *testing.T) {
	eng := &fakeEngine{results: map[string]engine.RunResult{
		adapter.PhaseCompile: {ExitCode: 1, Stderr: []byte("solution.c:1:1: error: expected ';'\n")},
	}}
	store := &recordingStore{}
	svc, err := NewService(Config{
		Engine:   eng,
		Locator:  &fakeLocator{paths: map[string]string{"gcc": "/usr/bin/gcc"}},
		Archiver: archive.NewArchiver(store, archive.Config{Enabled: true, Bucket: "runs"}),
		Settings: Settings{WorkRoot: t.TempDir()},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.newRunID = func() string { return "run-1" }

	_, err = svc.Run(context.Background(), model.ExecutionRequest{
		Language:     "c",
		FunctionName: "add",
		Code:         "int add(int a, int b) { return a + b }",
		TestCases: []model.TestCase{
			{Args: []json.RawMessage{json.RawMessage("1"), json.RawMessage("2")}, Expected: json.RawMessage("3")},
		},
	})
	if !appErr.Is(err, appErr.CompilationError) {
		t.Fatalf("expected CompilationError, got %v", err)
	}
	if len(store.keys) != 1 || !strings.HasSuffix(store.keys[0], "/run-1.tar.zst") {
		t.Fatalf("compile failure should be archived, got %v", store.keys)
	}
}
