package adapter

import (
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"learnhub/internal/harness/model"
	"learnhub/internal/harness/sandbox"
	appErr "learnhub/pkg/errors"
)

const (
	jsUserFile   = "user_code.js"
	jsRunnerFile = "runner.js"
)

type javascriptAdapter struct {
	caseTimeout time.Duration
}

func (javascriptAdapter) Language() model.Language { return model.JavaScript }

func (a javascriptAdapter) Build(functionName, code string, cases []model.TestCase) (*Artifact, error) {
	spec, err := harnessSpecFile(functionName, cases, a.caseTimeout)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.HarnessSystemError, "encode test cases failed")
	}
	return &Artifact{
		Files: map[string][]byte{
			jsUserFile:      []byte(code),
			jsRunnerFile:    []byte(javascriptRunner),
			harnessSpecName: spec,
		},
		Main: jsRunnerFile,
		Run: Phase{
			Name:     PhaseRun,
			Tool:     sandbox.ToolNode,
			Template: "{tool} {flags} --max-old-space-size=256 {main}",
			Flags:    nodeFlags,
		},
	}, nil
}

func (javascriptAdapter) ClassifyCompile(string, string) appErr.ErrorCode {
	return appErr.CompilationError
}

// nodeFlags returns the permission model flags node understands at version, limiting
// reads to dir. Releases before the permission model get none.
func nodeFlags(version, dir string) []string {
	major, minor, ok := nodeVersion(version)
	if !ok {
		return nil
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	read := "--allow-fs-read=" + dir
	switch {
	case major > 23 || (major == 23 && minor >= 5) || (major == 22 && minor >= 13):
		return []string{"--permission", read}
	case major >= 20:
		return []string{"--experimental-permission", read}
	default:
		return nil
	}
}

func nodeVersion(version string) (int, int, bool) {
	m := nodeVersionPattern.FindStringSubmatch(version)
	if m == nil {
		return 0, 0, false
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}

var nodeVersionPattern = regexp.MustCompile(`v?(\d+)\.(\d+)`)

// javascriptRunner evaluates every case in a fresh vm context. The context global has a null
// prototype and its console is built inside the context, so user code reaches no host object.
// Results are serialized inside the context under the case timeout.
const javascriptRunner = `'use strict';
const fs = require('fs');
const path = require('path');
const vm = require('vm');

function readMarker() {
  try {
    return fs.readFileSync(0, 'utf8').split('\n')[0].trim();
  } catch (err) {
    return '';
  }
}

const marker = readMarker();
const spec = JSON.parse(fs.readFileSync(path.join(__dirname, 'harness.json'), 'utf8'));
const source = fs.readFileSync(path.join(__dirname, 'user_code.js'), 'utf8');
const timeout = spec.caseTimeoutMs > 0 ? spec.caseTimeoutMs : 3000;
const name = spec.functionName;

const CONSOLE = 'var console = (function () { var noop = function () {}; ' +
  'return { log: noop, info: noop, warn: noop, error: noop, debug: noop, trace: noop }; })();';

function emit(payload, status) {
  process.stdout.write('\n' + marker + '\n' + JSON.stringify(payload) + '\n');
  process.exitCode = status || 0;
}

function fatal(kind, message) {
  emit({ results: [], allPassed: false, fatal: message, kind: kind }, 1);
}

function describe(err) {
  try {
    if (err !== null && typeof err === 'object' && 'message' in err) {
      return (err.name ? String(err.name) + ': ' : '') + String(err.message);
    }
    return String(err);
  } catch (inner) {
    return 'Error';
  }
}

function freshContext() {
  const ctx = vm.createContext(Object.create(null), {
    codeGeneration: { strings: false, wasm: false },
    microtaskMode: 'afterEvaluate',
  });
  vm.runInContext(CONSOLE, ctx);
  return ctx;
}

// evaluate runs the user source followed by tail, which must yield JSON text or undefined.
function evaluate(tail) {
  const text = vm.runInContext(source + '\n;' + tail, freshContext(), { filename: 'user_code.js', timeout: timeout });
  if (text === undefined) {
    return undefined;
  }
  if (typeof text !== 'string') {
    throw new TypeError('result is not JSON serializable');
  }
  return JSON.parse(text);
}

function canonical(value) {
  if (Array.isArray(value)) {
    return '[' + value.map(canonical).join(',') + ']';
  }
  if (value !== null && typeof value === 'object') {
    return '{' + Object.keys(value).sort().map(function (k) {
      return JSON.stringify(k) + ':' + canonical(value[k]);
    }).join(',') + '}';
  }
  return JSON.stringify(value);
}

function main() {
  try {
    new vm.Script(source, { filename: 'user_code.js' });
  } catch (err) {
    fatal('CompileError', describe(err));
    return;
  }

  let found;
  try {
    found = evaluate("JSON.stringify(typeof " + name + " === 'function');");
  } catch (err) {
    fatal('RuntimeFatal', describe(err));
    return;
  }
  if (found !== true) {
    fatal('FunctionNotFound', 'Function ' + name + ' not found');
    return;
  }

  const results = [];
  let allPassed = true;
  spec.cases.forEach(function (tc, i) {
    const args = Array.isArray(tc.args) ? tc.args : [];
    const expected = tc.expected === undefined ? null : tc.expected;
    const entry = {
      case: i + 1,
      args: args,
      expected: expected,
      output: null,
      passed: false,
      error: null,
      description: tc.description || '',
    };
    const tail = 'JSON.stringify(' + name + '.apply(null, JSON.parse(' +
      JSON.stringify(JSON.stringify(args)) + ')));';
    try {
      const output = evaluate(tail);
      entry.output = output === undefined ? null : output;
      entry.passed = output !== undefined && canonical(output) === canonical(expected);
    } catch (err) {
      entry.error = describe(err);
    }
    if (!entry.passed) {
      allPassed = false;
    }
    results.push(entry);
  });

  emit({ results: results, allPassed: allPassed }, 0);
}

main();
`

var _ Adapter = javascriptAdapter{}
