package adapter

import (
	"learnhub/internal/harness/model"
	"learnhub/internal/harness/sandbox"
	appErr "learnhub/pkg/errors"
)

const (
	pythonUserFile   = "user_code.py"
	pythonRunnerFile = "runner.py"
	harnessSpecName  = "harness.json"
)

type pythonAdapter struct{}

func (pythonAdapter) Language() model.Language { return model.Python }

func (pythonAdapter) Build(functionName, code string, cases []model.TestCase) (*Artifact, error) {
	spec, err := harnessSpecFile(functionName, cases, 0)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.HarnessSystemError, "encode test cases failed")
	}
	return &Artifact{
		Files: map[string][]byte{
			pythonUserFile:   []byte(code),
			pythonRunnerFile: []byte(pythonRunner),
			harnessSpecName:  spec,
		},
		Main: pythonRunnerFile,
		Run: Phase{
			Name:     PhaseRun,
			Tool:     sandbox.ToolPython,
			Template: "{tool} -I {main}",
		},
	}, nil
}

func (pythonAdapter) ClassifyCompile(string, string) appErr.ErrorCode {
	return appErr.CompilationError
}

// pythonRunner loads user_code.py into its own namespace and calls the function once per case.
// The process ends with os._exit right after the document so atexit hooks never print after it.
const pythonRunner = `import copy
import io
import json
import os
import sys
import traceback


def read_marker():
    line = sys.stdin.readline().strip()
    sys.stdin.close()
    return line


def emit(marker, payload, status=0):
    out = sys.__stdout__
    out.write("\n" + marker + "\n")
    out.write(json.dumps(payload, default=repr))
    out.write("\n")
    out.flush()
    sys.__stderr__.flush()
    os._exit(status)


def fatal(marker, kind, message):
    emit(marker, {"results": [], "allPassed": False, "fatal": message, "kind": kind}, 1)


def describe(exc):
    return "".join(traceback.format_exception_only(type(exc), exc)).strip()


def normalize(value):
    return json.loads(json.dumps(value, default=repr))


def same(a, b):
    if isinstance(a, bool) or isinstance(b, bool):
        return isinstance(a, bool) and isinstance(b, bool) and a == b
    if isinstance(a, (int, float)) and isinstance(b, (int, float)):
        return a == b
    if isinstance(a, list) and isinstance(b, list):
        return len(a) == len(b) and all(same(x, y) for x, y in zip(a, b))
    if isinstance(a, dict) and isinstance(b, dict):
        return a.keys() == b.keys() and all(same(a[k], b[k]) for k in a)
    return type(a) is type(b) and a == b


def main():
    marker = read_marker()
    with open("harness.json", encoding="utf-8") as fh:
        spec = json.load(fh)
    name = spec["functionName"]
    with open("user_code.py", encoding="utf-8") as fh:
        source = fh.read()

    sys.stdout = io.StringIO()
    try:
        code = compile(source, "user_code.py", "exec")
    except (SyntaxError, ValueError) as exc:
        fatal(marker, "CompileError", describe(exc))

    namespace = {"__name__": "user_code"}
    try:
        exec(code, namespace)
    except BaseException as exc:
        fatal(marker, "RuntimeFatal", describe(exc))

    fn = namespace.get(name)
    if not callable(fn):
        fatal(marker, "FunctionNotFound", "Function %s not found" % name)

    results = []
    all_passed = True
    for index, case in enumerate(spec["cases"], start=1):
        args = case.get("args") or []
        expected = case.get("expected")
        entry = {
            "case": index,
            "args": args,
            "expected": expected,
            "output": None,
            "passed": False,
            "error": None,
            "description": case.get("description") or "",
        }
        try:
            output = normalize(fn(*copy.deepcopy(args)))
            entry["output"] = output
            entry["passed"] = same(output, expected)
        except BaseException as exc:
            entry["error"] = "%s: %s" % (type(exc).__name__, exc)
        if not entry["passed"]:
            all_passed = False
        results.append(entry)

    emit(marker, {"results": results, "allPassed": all_passed})


if __name__ == "__main__":
    main()
`

var _ Adapter = pythonAdapter{}
