package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestWorkspaceLifecycle(t *testing.T) {
	root := t.TempDir()
	ws, err := NewWorkspace(root, "learnhub-python-")
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(ws.Dir()), "learnhub-python-") {
		t.Fatalf("unexpected dir name %s", ws.Dir())
	}
	if err := ws.WriteFiles(map[string][]byte{"runner.py": []byte("print(1)")}); err != nil {
		t.Fatalf("write files: %v", err)
	}
	data, err := os.ReadFile(ws.Path("runner.py"))
	if err != nil || string(data) != "print(1)" {
		t.Fatalf("read back: %q %v", data, err)
	}
	if err := ws.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(ws.Dir()); !os.IsNotExist(err) {
		t.Fatalf("workspace should be removed, stat err=%v", err)
	}
}

func TestWorkspaceRejectsNestedNames(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), "learnhub-")
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	defer ws.Cleanup()
	for _, name := range []string{"../escape.py", "sub/file.c", ".."} {
		if err := ws.WriteFiles(map[string][]byte{name: nil}); err == nil {
			t.Fatalf("expected error for %q", name)
		}
	}
}

func TestWorkspacesNeverCollide(t *testing.T) {
	root := t.TempDir()
	const n = 32
	dirs := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ws, err := NewWorkspace(root, "learnhub-")
			if err != nil {
				t.Errorf("new workspace: %v", err)
				return
			}
			dirs[i] = ws.Dir()
		}(i)
	}
	wg.Wait()
	seen := make(map[string]bool)
	for _, d := range dirs {
		if seen[d] {
			t.Fatalf("duplicate workspace %s", d)
		}
		seen[d] = true
	}
}

func TestScrubPath(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), "learnhub-")
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	defer ws.Cleanup()
	text := ws.Path("solution.c") + ":3:5: error: expected ';'"
	got := ws.Scrub(text)
	if strings.Contains(got, ws.Dir()) {
		t.Fatalf("path leaked: %s", got)
	}
	if !strings.HasPrefix(got, PathPlaceholder+"/solution.c") {
		t.Fatalf("unexpected scrub result %s", got)
	}
}
