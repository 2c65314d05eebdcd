package adapter

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"learnhub/internal/harness/model"
	appErr "learnhub/pkg/errors"
)

func cases(t *testing.T, data string) []model.TestCase {
	t.Helper()
	var out []model.TestCase
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		t.Fatalf("decode cases: %v", err)
	}
	return out
}

func TestForDispatch(t *testing.T) {
	for _, lang := range model.SupportedLanguages {
		a, err := For(lang, Options{})
		if err != nil {
			t.Fatalf("%s: %v", lang, err)
		}
		if a.Language() != lang {
			t.Fatalf("adapter for %s reports %s", lang, a.Language())
		}
	}
	if _, err := For(model.Language("ruby"), Options{}); !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
}

func TestExpand(t *testing.T) {
	got, err := Expand(`{tool} -encoding UTF-8 -d {dir} {src}`, Vars{
		Tool:    "/opt/jdk bin/javac",
		Dir:     "/tmp/ws",
		Sources: []string{"Solution.java", "LearnhubRunner.java"},
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	want := []string{"/opt/jdk bin/javac", "-encoding", "UTF-8", "-d", "/tmp/ws", "Solution.java", "LearnhubRunner.java"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
	if _, err := Expand("   ", Vars{}); err == nil {
		t.Fatalf("expected error for empty template")
	}
}

func TestPythonBuild(t *testing.T) {
	a, _ := For(model.Python, Options{})
	art, err := a.Build("add", "def add(a, b):\n    return a + b\n", cases(t, `[{"args":[2,3],"expected":5}]`))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if art.Compile != nil || art.Run.Tool != "python" || art.Main != "runner.py" {
		t.Fatalf("unexpected artifact %+v", art)
	}
	var spec struct {
		FunctionName string           `json:"functionName"`
		Cases        []model.TestCase `json:"cases"`
	}
	if err := json.Unmarshal(art.Files["harness.json"], &spec); err != nil {
		t.Fatalf("harness spec: %v", err)
	}
	if spec.FunctionName != "add" || len(spec.Cases) != 1 || string(spec.Cases[0].Expected) != "5" {
		t.Fatalf("unexpected spec %+v", spec)
	}
	runner := string(art.Files["runner.py"])
	if !strings.Contains(runner, "read_marker()") || !strings.Contains(runner, "os._exit(status)") {
		t.Fatalf("runner should read the marker from stdin and exit hard after the document")
	}
	for name, content := range art.Files {
		if strings.Contains(string(content), "__LEARNHUB_RESULT") {
			t.Fatalf("%s must not carry a result marker", name)
		}
	}
}

func TestNewResultMarkerIsUnique(t *testing.T) {
	a, b := NewResultMarker(), NewResultMarker()
	if a == b || !strings.HasPrefix(a, "__LEARNHUB_RESULT_") || strings.ContainsAny(a, " \n") {
		t.Fatalf("unexpected markers %q %q", a, b)
	}
}

func TestJavaScriptBuildCarriesCaseTimeout(t *testing.T) {
	a, _ := For(model.JavaScript, Options{})
	art, err := a.Build("add", "function add(a,b){return a+b}", cases(t, `[{"args":[1,2],"expected":3}]`))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(string(art.Files["harness.json"]), `"caseTimeoutMs":3000`) {
		t.Fatalf("missing case timeout: %s", art.Files["harness.json"])
	}
	runner := string(art.Files["runner.js"])
	if !strings.Contains(runner, "codeGeneration") || !strings.Contains(runner, "Object.create(null)") {
		t.Fatalf("runner should build a null-prototype context without code generation")
	}
	if art.Run.Flags == nil {
		t.Fatalf("node run phase should pick permission flags")
	}
}

func TestExpandFlags(t *testing.T) {
	got, err := Expand("{tool} {flags} --max-old-space-size=256 {main}", Vars{Tool: "node", Main: "runner.js", Flags: []string{"--permission", "--allow-fs-read=/ws"}})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	want := []string{"node", "--permission", "--allow-fs-read=/ws", "--max-old-space-size=256", "runner.js"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
	got, _ = Expand("{tool} {flags} {main}", Vars{Tool: "node", Main: "runner.js"})
	if !reflect.DeepEqual(got, []string{"node", "runner.js"}) {
		t.Fatalf("empty flags should vanish, got %q", got)
	}
}

func TestNodeFlags(t *testing.T) {
	tests := []struct {
		version string
		want    []string
	}{
		{"v24.1.0", []string{"--permission", "--allow-fs-read=/ws"}},
		{"v23.5.0", []string{"--permission", "--allow-fs-read=/ws"}},
		{"v22.13.1", []string{"--permission", "--allow-fs-read=/ws"}},
		{"v22.12.0", []string{"--experimental-permission", "--allow-fs-read=/ws"}},
		{"v20.11.1", []string{"--experimental-permission", "--allow-fs-read=/ws"}},
		{"v18.19.0", nil},
		{"", nil},
	}
	for _, tt := range tests {
		if got := nodeFlags(tt.version, "/ws"); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("%q: got %q want %q", tt.version, got, tt.want)
		}
	}
}

func TestJavaLiterals(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`5`, `5`},
		{`3000000000`, `3000000000L`},
		{`1.5`, `1.5`},
		{`true`, `true`},
		{`null`, `null`},
		{`"a\"b\n"`, `"a\"b\n"`},
		{`[]`, `new int[]{}`},
		{`[1,2,3]`, `new int[]{1, 2, 3}`},
		{`[1,2.5]`, `new double[]{1.0, 2.5}`},
		{`["x","y"]`, `new String[]{"x", "y"}`},
		{`[true,false]`, `new boolean[]{true, false}`},
		{`[[1,2],[3]]`, `new int[][]{{1, 2}, {3}}`},
		{`[["a"],[]]`, `new String[][]{{"a"}, {}}`},
	}
	for _, tt := range tests {
		v, err := decodeValue(json.RawMessage(tt.in))
		if err != nil {
			t.Fatalf("decode %s: %v", tt.in, err)
		}
		got, err := javaLiteral(v)
		if err != nil {
			t.Fatalf("literal %s: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("literal %s: got %s want %s", tt.in, got, tt.want)
		}
	}
	for _, bad := range []string{`{"a":1}`, `[1,"x"]`} {
		v, _ := decodeValue(json.RawMessage(bad))
		if _, err := javaLiteral(v); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
}

func TestJavaStringAvoidsUnicodeEscapes(t *testing.T) {
	got := javaString("a\x01b\\u000a")
	if got != `"a\001b\\u000a"` {
		t.Fatalf("unexpected java string %s", got)
	}
}

func TestJavaBuildWrapsBareMethod(t *testing.T) {
	a, _ := For(model.Java, Options{})
	code := "import java.util.*;\npublic static int add(int a, int b) { return a + b; }\n"
	art, err := a.Build("add", code, cases(t, `[{"args":[2,3],"expected":5}]`))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	src := string(art.Files["Solution.java"])
	if !strings.HasPrefix(src, "import java.util.*;\npublic class Solution {") {
		t.Fatalf("unexpected wrapped source:\n%s", src)
	}
	runner := string(art.Files["LearnhubRunner.java"])
	if !strings.Contains(runner, "output = Solution.add(2, 3);") {
		t.Fatalf("runner does not call the method:\n%s", runner)
	}
	if !strings.Contains(runner, "String marker = readMarker();") || !strings.Contains(runner, "Runtime.getRuntime().halt(0);") {
		t.Fatalf("runner should keep the marker local and halt after printing")
	}
	if art.Compile == nil || art.Compile.Tool != "javac" || art.Run.Tool != "java" {
		t.Fatalf("unexpected phases %+v", art)
	}
}

func TestJavaBuildDetectsPublicClass(t *testing.T) {
	a, _ := For(model.Java, Options{})
	code := "package demo;\npublic class MathUtil {\n  public static int add(int a, int b) { return a + b; }\n}\n"
	art, err := a.Build("add", code, cases(t, `[{"args":[1,1],"expected":2}]`))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	src, ok := art.Files["MathUtil.java"]
	if !ok {
		t.Fatalf("expected MathUtil.java, got %v", art.Sources)
	}
	if strings.Contains(string(src), "package demo") {
		t.Fatalf("package line should be removed")
	}
}

func TestJavaClassifyCompile(t *testing.T) {
	a := javaAdapter{}
	diag := "LearnhubRunner.java:12: error: cannot find symbol\n  symbol:   method add(int,int)\n  location: class Solution"
	if got := a.ClassifyCompile("add", diag); got != appErr.FunctionNotFound {
		t.Fatalf("expected FunctionNotFound, got %v", got)
	}
	if got := a.ClassifyCompile("add", "Solution.java:3: error: ';' expected"); got != appErr.CompilationError {
		t.Fatalf("expected CompilationError, got %v", got)
	}
}

func TestParseCSignature(t *testing.T) {
	tests := []struct {
		code   string
		fn     string
		cpp    bool
		ret    returnCategory
		params []paramCategory
	}{
		{"int sumArray(int arr[], int size) {\n  return 0;\n}", "sumArray", false, retInteger, []paramCategory{paramIntArray, paramInteger}},
		{"long long\nfactorial(int n)\n{\n  return n <= 1 ? 1 : n * factorial(n - 1);\n}", "factorial", false, retInteger, []paramCategory{paramInteger}},
		{"char* reverseString(char* s) { return s; }", "reverseString", false, retCString, []paramCategory{paramCString}},
		{"int* twoSum(int* nums, int size, int target) { return NULL; }", "twoSum", false, retIntPointer, []paramCategory{paramIntArray, paramInteger, paramInteger}},
		{"vector<int> twoSum(vector<int>& nums, int target) { return {}; }", "twoSum", true, retIntVector, []paramCategory{paramIntVector, paramInteger}},
		{"std::string reverseString(const std::string &s) { return s; }", "reverseString", true, retStdString, []paramCategory{paramStdString}},
		{"bool isAnagram(string a, string b) { return a == b; }", "isAnagram", true, retBoolean, []paramCategory{paramStdString, paramStdString}},
		{"// fib(n) is below\nstatic int fib(int n) { return n < 2 ? n : fib(n-1) + fib(n-2); }", "fib", false, retInteger, []paramCategory{paramInteger}},
	}
	for _, tt := range tests {
		sig, err := parseCSignature(tt.code, tt.fn, tt.cpp)
		if err != nil {
			t.Fatalf("%s: %v", tt.fn, err)
		}
		if sig.ret != tt.ret {
			t.Fatalf("%s: return category %d want %d (%q)", tt.fn, sig.ret, tt.ret, sig.returnType)
		}
		got := make([]paramCategory, len(sig.params))
		for i, p := range sig.params {
			got[i] = p.category
		}
		if !reflect.DeepEqual(got, tt.params) {
			t.Fatalf("%s: params %v want %v", tt.fn, got, tt.params)
		}
	}
}

func TestParseCSignatureErrors(t *testing.T) {
	if _, err := parseCSignature("int add(int a, int b);", "add", false); !appErr.Is(err, appErr.FunctionNotFound) {
		t.Fatalf("prototype only should be FunctionNotFound, got %v", err)
	}
	if _, err := parseCSignature("double avg(int* a, int n) { return 0; }", "avg", false); !appErr.Is(err, appErr.UnsupportedType) {
		t.Fatalf("double return should be UnsupportedType, got %v", err)
	}
	if _, err := parseCSignature("void touch(int n) { }", "touch", true); !appErr.Is(err, appErr.UnsupportedType) {
		t.Fatalf("void return should be UnsupportedType, got %v", err)
	}
}

func TestCBuildFillsArrayLength(t *testing.T) {
	a, _ := For(model.C, Options{})
	code := "int sumArray(int arr[], int size) { int s = 0; for (int i = 0; i < size; i++) s += arr[i]; return s; }"
	art, err := a.Build("sumArray", code, cases(t, `[{"args":[[1,2,3]],"expected":6,"description":"small"}]`))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	src := string(art.Files["solution.c"])
	for _, want := range []string{
		"int a0[] = {1, 2, 3};",
		"long long out = (long long)sumArray(a0, 3);",
		"int passed = (out == 6LL) ? 1 : 0;",
		`lh_case_open(1, "[[1,2,3]]", "6");`,
		"if (!lh_read_marker(lh_marker, sizeof lh_marker)) {",
		"lh_finish(lh_all, lh_marker);",
		"_exit(0);",
	} {
		if !strings.Contains(src, want) {
			t.Fatalf("generated source missing %q:\n%s", want, src)
		}
	}
	if art.Compile.Tool != "gcc" || art.Run.Tool != "" || art.Binary != "solution" {
		t.Fatalf("unexpected phases %+v", art)
	}
}

func TestCBuildRenamesUserMain(t *testing.T) {
	a, _ := For(model.C, Options{})
	code := "int add(int a, int b) { return a + b; }\nint main(void) { return add(1, 2); }\n"
	art, err := a.Build("add", code, cases(t, `[{"args":[1,2],"expected":3}]`))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	src := string(art.Files["solution.c"])
	if !strings.Contains(src, "#define main learnhub_user_main") || !strings.Contains(src, "#undef main") {
		t.Fatalf("user main should be renamed")
	}
}

func TestCBuildArgumentMismatch(t *testing.T) {
	a, _ := For(model.C, Options{})
	code := "int add(int a, int b) { return a + b; }"
	if _, err := a.Build("add", code, cases(t, `[{"args":[1,2,3],"expected":3}]`)); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
	if _, err := a.Build("add", code, cases(t, `[{"args":["x",2],"expected":3}]`)); !appErr.Is(err, appErr.UnsupportedType) {
		t.Fatalf("expected UnsupportedType, got %v", err)
	}
}

func TestCPPBuildVectorExpectedNull(t *testing.T) {
	a, _ := For(model.CPP, Options{})
	code := "vector<int> twoSum(vector<int>& nums, int target) { return {}; }"
	art, err := a.Build("twoSum", code, cases(t, `[{"args":[[1,2],7],"expected":null}]`))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	src := string(art.Files["solution.cpp"])
	if !strings.Contains(src, "std::vector<int> a0 = {1, 2};") || !strings.Contains(src, "int passed = (out.empty()) ? 1 : 0;") {
		t.Fatalf("unexpected generated source:\n%s", src)
	}
}

func TestCString(t *testing.T) {
	if got := cString("a\"b?\\\n\xc3\xa9"); got != `"a\"b\?\\\012\303\251"` {
		t.Fatalf("unexpected C literal %s", got)
	}
}

func TestCClassifyCompile(t *testing.T) {
	a := cFamilyAdapter{}
	if got := a.ClassifyCompile("add", "solution.c:(.text+0x1d): undefined reference to `add'"); got != appErr.FunctionNotFound {
		t.Fatalf("expected FunctionNotFound, got %v", got)
	}
	if got := a.ClassifyCompile("add", "solution.c:2:1: error: expected ';'"); got != appErr.CompilationError {
		t.Fatalf("expected CompilationError, got %v", got)
	}
}
