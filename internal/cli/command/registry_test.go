package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRegistryKeys(t *testing.T) {
	commands := Registry()
	for _, name := range []string{
		"run tests", "run toolchains", "challenge generate", "challenge next", "challenge run",
		"progress get", "award challenge", "quiz generate", "quiz submit", "quiz finish",
		"activity log", "activity history", "archive list", "archive link", "archive inspect",
	} {
		cmd, ok := commands[name]
		if !ok {
			t.Fatalf("missing command %q", name)
		}
		if !strings.HasPrefix(cmd.PathTemplate, "/api/v1/") {
			t.Fatalf("unexpected path for %q: %s", name, cmd.PathTemplate)
		}
	}
}

func TestBuildRequestPathAndQuery(t *testing.T) {
	commands := Registry()

	req, err := BuildRequest(commands["progress get"], Params{"user": "ada lovelace"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if req.Method != "GET" || req.Path != "/api/v1/progress/ada%20lovelace" || req.Body != nil {
		t.Fatalf("unexpected request: %+v", req)
	}

	req, err = BuildRequest(commands["activity history"], Params{"username": "ada", "limit": "5"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if req.Path != "/api/v1/activity/history/ada?limit=5" {
		t.Fatalf("unexpected path: %s", req.Path)
	}

	if _, err := BuildRequest(commands["activity history"], Params{"username": "ada", "limit": "many"}); err == nil {
		t.Fatalf("expected invalid limit error")
	}
	if _, err := BuildRequest(commands["progress get"], Params{}); err == nil {
		t.Fatalf("expected missing username error")
	}
}

func TestBuildRequestTypedBody(t *testing.T) {
	req, err := BuildRequest(Registry()["award challenge"], Params{
		"username":   "ada",
		"id":         "arrays-two-sum",
		"difficulty": "easy",
		"passed":     "yes",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["challengeId"] != "arrays-two-sum" || body["passed"] != true {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, ok := body["challengeTitle"]; ok {
		t.Fatalf("empty optional field should be omitted: %v", body)
	}

	req, err = BuildRequest(Registry()["quiz finish"], Params{"username": "ada", "score": "3", "total": "5"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if string(req.Body) != `{"score":3,"total":5,"username":"ada"}` {
		t.Fatalf("unexpected body: %s", req.Body)
	}

	if _, err := BuildRequest(Registry()["quiz submit"], Params{"question": "q1", "answer": "b"}); err == nil {
		t.Fatalf("expected invalid answer error")
	}
}

func TestBuildRequestReadsFiles(t *testing.T) {
	dir := t.TempDir()
	codePath := filepath.Join(dir, "solution.py")
	casesPath := filepath.Join(dir, "cases.json")
	if err := os.WriteFile(codePath, []byte("def add(a, b):\n    return a + b\n"), 0o644); err != nil {
		t.Fatalf("write code: %v", err)
	}
	if err := os.WriteFile(casesPath, []byte(`[{"args":[1,2],"expected":3}]`), 0o644); err != nil {
		t.Fatalf("write cases: %v", err)
	}

	req, err := BuildRequest(Registry()["run tests"], Params{
		"lang":       "python",
		"fn":         "add",
		"file":       codePath,
		"cases_file": casesPath,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var body struct {
		Language     string            `json:"language"`
		FunctionName string            `json:"functionName"`
		Code         string            `json:"code"`
		TestCases    []json.RawMessage `json:"testCases"`
	}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Language != "python" || body.FunctionName != "add" || !strings.Contains(body.Code, "return a + b") || len(body.TestCases) != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}

	if _, err := BuildRequest(Registry()["run tests"], Params{"lang": "python", "file": filepath.Join(dir, "nope.py"), "cases": "[]"}); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestMissingHonorsSharedKeys(t *testing.T) {
	cmd := Registry()["challenge run"]
	missing := cmd.Missing(Params{"username": "ada", "challenge": "x", "language": "go", "code_file": "main.go"})
	if len(missing) != 0 {
		t.Fatalf("code_file should satisfy code, missing=%v", missing)
	}
	missing = cmd.Missing(Params{"username": "ada"})
	if len(missing) != 3 {
		t.Fatalf("expected 3 missing fields, got %d", len(missing))
	}
}

func TestParseBool(t *testing.T) {
	for input, want := range map[string]bool{"true": true, "Y": true, "no": false, "0": false} {
		got, err := ParseBool(input)
		if err != nil || got != want {
			t.Fatalf("ParseBool(%q) = %v, %v", input, got, err)
		}
	}
	if _, err := ParseBool("maybe"); err == nil {
		t.Fatalf("expected error")
	}
}
