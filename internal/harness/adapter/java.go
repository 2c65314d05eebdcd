package adapter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"learnhub/internal/harness/model"
	"learnhub/internal/harness/sandbox"
	appErr "learnhub/pkg/errors"
)

const (
	javaRunnerClass  = "LearnhubRunner"
	javaDefaultClass = "Solution"
)

var (
	javaPublicClass = regexp.MustCompile(`\bpublic\s+(?:(?:final|abstract|static)\s+)*class\s+([A-Za-z_$][\w$]*)`)
	javaAnyClass    = regexp.MustCompile(`\bclass\s+([A-Za-z_$][\w$]*)`)
	javaPackageLine = regexp.MustCompile(`(?m)^\s*package\s+[\w.]+\s*;`)
	javaImportLine  = regexp.MustCompile(`(?m)^\s*import\s+(?:static\s+)?[\w.*]+\s*;\s*$`)
)

type javaAdapter struct{}

func (javaAdapter) Language() model.Language { return model.Java }

func (javaAdapter) Build(functionName, code string, cases []model.TestCase) (*Artifact, error) {
	className, source := prepareJavaSource(code)
	runner, err := javaRunner(className, functionName, cases)
	if err != nil {
		return nil, err
	}
	userFile := className + ".java"
	return &Artifact{
		Files: map[string][]byte{
			userFile:                  []byte(source),
			javaRunnerClass + ".java": []byte(runner),
		},
		Sources: []string{userFile, javaRunnerClass + ".java"},
		Main:    javaRunnerClass,
		Compile: &Phase{
			Name:     PhaseCompile,
			Tool:     sandbox.ToolJavac,
			Template: "{tool} -encoding UTF-8 -nowarn -d {dir} {src}",
		},
		Run: Phase{
			Name:     PhaseRun,
			Tool:     sandbox.ToolJava,
			Template: "{tool} -XX:+UseSerialGC -XX:TieredStopAtLevel=1 -Xmx256m -cp {dir} {main}",
		},
	}, nil
}

// ClassifyCompile reports FunctionNotFound when javac cannot resolve the method itself.
func (javaAdapter) ClassifyCompile(functionName, diagnostic string) appErr.ErrorCode {
	if strings.Contains(diagnostic, "cannot find symbol") &&
		strings.Contains(diagnostic, "method "+functionName+"(") {
		return appErr.FunctionNotFound
	}
	return appErr.CompilationError
}

// prepareJavaSource finds the class holding the method. Bare methods are wrapped in Solution.
func prepareJavaSource(code string) (string, string) {
	code = javaPackageLine.ReplaceAllString(code, "")
	if m := javaPublicClass.FindStringSubmatch(code); m != nil {
		return m[1], code
	}
	if m := javaAnyClass.FindStringSubmatch(code); m != nil {
		return m[1], code
	}
	imports := javaImportLine.FindAllString(code, -1)
	body := javaImportLine.ReplaceAllString(code, "")
	var b strings.Builder
	for _, imp := range imports {
		b.WriteString(strings.TrimSpace(imp))
		b.WriteString("\n")
	}
	b.WriteString("public class " + javaDefaultClass + " {\n")
	b.WriteString(body)
	b.WriteString("\n}\n")
	return javaDefaultClass, b.String()
}

func javaRunner(className, functionName string, cases []model.TestCase) (string, error) {
	var b strings.Builder
	b.WriteString(javaRunnerHeader)
	b.WriteString("    static void runCases(StringBuilder out) {\n")
	b.WriteString("        List<String> results = new ArrayList<>();\n")
	b.WriteString("        boolean allPassed = true;\n")
	for i, tc := range cases {
		idx := i + 1
		args := make([]string, 0, len(tc.Args))
		for j, raw := range tc.Args {
			v, err := decodeValue(raw)
			if err != nil {
				return "", unsupportedArg(idx, j, "invalid JSON")
			}
			lit, err := javaLiteral(v)
			if err != nil {
				return "", unsupportedArg(idx, j, "%v", err)
			}
			args = append(args, lit)
		}
		expectedValue, err := decodeValue(tc.ExpectedJSON())
		if err != nil {
			return "", appErr.Newf(appErr.UnsupportedType, "case %d: invalid expected value", idx)
		}
		expected, err := javaLiteral(expectedValue)
		if err != nil {
			return "", appErr.Newf(appErr.UnsupportedType, "case %d expected value: %v", idx, err)
		}
		fmt.Fprintf(&b, "        {\n")
		fmt.Fprintf(&b, "            Object output = null;\n")
		fmt.Fprintf(&b, "            boolean passed = false;\n")
		fmt.Fprintf(&b, "            String error = null;\n")
		fmt.Fprintf(&b, "            try {\n")
		fmt.Fprintf(&b, "                output = %s.%s(%s);\n", className, functionName, strings.Join(args, ", "))
		fmt.Fprintf(&b, "                passed = deepEquals(output, (Object) %s);\n", expected)
		fmt.Fprintf(&b, "            } catch (Throwable t) {\n")
		fmt.Fprintf(&b, "                output = null;\n")
		fmt.Fprintf(&b, "                error = describe(t);\n")
		fmt.Fprintf(&b, "            }\n")
		fmt.Fprintf(&b, "            if (!passed) allPassed = false;\n")
		fmt.Fprintf(&b, "            results.add(caseJson(%d, %s, %s, output, passed, error, %s));\n",
			idx, javaString(compactJSON(tc.ArgsJSON())), javaString(compactJSON(tc.ExpectedJSON())), javaString(tc.Description))
		fmt.Fprintf(&b, "        }\n")
	}
	b.WriteString("        out.append(\"{\\\"results\\\":[\").append(String.join(\",\", results))\n")
	b.WriteString("           .append(\"],\\\"allPassed\\\":\").append(allPassed).append(\"}\");\n")
	b.WriteString("    }\n")
	b.WriteString(javaRunnerHelpers)
	b.WriteString("}\n")
	return b.String(), nil
}

// javaLiteral renders a JSON value as a Java expression.
func javaLiteral(v any) (string, error) {
	switch kindOf(v) {
	case kindNull:
		return "null", nil
	case kindBool:
		return strconv.FormatBool(v.(bool)), nil
	case kindInt:
		return javaIntLiteral(intValue(v)), nil
	case kindFloat:
		return floatLiteral(floatValue(v)), nil
	case kindString:
		return javaString(v.(string)), nil
	case kindArray:
		return javaArrayLiteral(v.([]any))
	default:
		return "", fmt.Errorf("objects are not supported in Java test cases")
	}
}

func javaIntLiteral(n int64) string {
	if fitsInt32(n) {
		return strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10) + "L"
}

func javaArrayLiteral(items []any) (string, error) {
	kind, ok := elementKind(items)
	if !ok {
		return "", fmt.Errorf("mixed-type arrays are not supported")
	}
	parts := make([]string, 0, len(items))
	switch kind {
	case kindNull:
		return "new int[]{}", nil
	case kindInt:
		nums, _ := intSlice(items)
		wide := false
		for _, n := range nums {
			if !fitsInt32(n) {
				wide = true
			}
		}
		if wide {
			return "new long[]{" + joinInts(nums, func(int64) string { return "L" }) + "}", nil
		}
		return "new int[]{" + joinInts(nums, func(int64) string { return "" }) + "}", nil
	case kindFloat:
		for _, item := range items {
			parts = append(parts, floatLiteral(floatValue(item)))
		}
		return "new double[]{" + strings.Join(parts, ", ") + "}", nil
	case kindBool:
		for _, item := range items {
			parts = append(parts, strconv.FormatBool(item.(bool)))
		}
		return "new boolean[]{" + strings.Join(parts, ", ") + "}", nil
	case kindString:
		for _, item := range items {
			parts = append(parts, javaString(item.(string)))
		}
		return "new String[]{" + strings.Join(parts, ", ") + "}", nil
	case kindArray:
		return javaMatrixLiteral(items)
	default:
		return "", fmt.Errorf("arrays of %s are not supported", kind)
	}
}

// javaMatrixLiteral supports int[][] and String[][].
func javaMatrixLiteral(rows []any) (string, error) {
	rowKind := kindNull
	for _, row := range rows {
		k, ok := elementKind(row.([]any))
		if !ok {
			return "", fmt.Errorf("mixed-type arrays are not supported")
		}
		if k == kindNull {
			continue
		}
		if rowKind != kindNull && rowKind != k {
			return "", fmt.Errorf("mixed-type arrays are not supported")
		}
		rowKind = k
	}
	parts := make([]string, 0, len(rows))
	switch rowKind {
	case kindNull, kindInt:
		for _, row := range rows {
			nums, _ := intSlice(row)
			for _, n := range nums {
				if !fitsInt32(n) {
					return "", fmt.Errorf("2D arrays of long are not supported")
				}
			}
			parts = append(parts, "{"+joinInts(nums, func(int64) string { return "" })+"}")
		}
		return "new int[][]{" + strings.Join(parts, ", ") + "}", nil
	case kindString:
		for _, row := range rows {
			cells := row.([]any)
			strs := make([]string, len(cells))
			for i, c := range cells {
				strs[i] = javaString(c.(string))
			}
			parts = append(parts, "{"+strings.Join(strs, ", ")+"}")
		}
		return "new String[][]{" + strings.Join(parts, ", ") + "}", nil
	default:
		return "", fmt.Errorf("2D arrays of %s are not supported", rowKind)
	}
}

// javaString quotes s as a Java string literal. Control characters use octal escapes
// since javac translates \u escapes before lexing.
func javaString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\%03o`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// javaRunnerHeader reads the run marker into a local before any user class is touched and
// halts the VM after printing, so shutdown hooks never run.
const javaRunnerHeader = `import java.io.BufferedReader;
import java.io.InputStreamReader;
import java.lang.reflect.Array;
import java.nio.charset.StandardCharsets;
import java.util.*;

public class ` + javaRunnerClass + ` {
    public static void main(String[] args) throws Exception {
        String marker = readMarker();
        if (marker.isEmpty()) {
            System.err.println("result marker missing");
            Runtime.getRuntime().halt(3);
        }
        final StringBuilder out = new StringBuilder();
        Thread worker = new Thread(null, () -> runCases(out), "learnhub-runner", 256L * 1024 * 1024);
        worker.start();
        worker.join();
        if (out.length() == 0) {
            System.out.flush();
            Runtime.getRuntime().halt(1);
        }
        System.out.print("\n" + marker + "\n" + out + "\n");
        System.out.flush();
        System.err.flush();
        Runtime.getRuntime().halt(0);
    }

    static String readMarker() {
        try {
            BufferedReader in = new BufferedReader(new InputStreamReader(System.in, StandardCharsets.UTF_8));
            String line = in.readLine();
            in.close();
            return line == null ? "" : line.trim();
        } catch (Exception e) {
            return "";
        }
    }

`

const javaRunnerHelpers = `
    static String caseJson(int idx, String args, String expected, Object output, boolean passed, String error, String description) {
        StringBuilder sb = new StringBuilder();
        sb.append("{\"case\":").append(idx);
        sb.append(",\"args\":").append(args);
        sb.append(",\"expected\":").append(expected);
        sb.append(",\"output\":").append(toJson(output));
        sb.append(",\"passed\":").append(passed);
        sb.append(",\"error\":").append(error == null ? "null" : quote(error));
        sb.append(",\"description\":").append(quote(description));
        sb.append("}");
        return sb.toString();
    }

    static String describe(Throwable t) {
        String message = t.getMessage();
        return t.getClass().getSimpleName() + (message == null ? "" : ": " + message);
    }

    static boolean isIntegral(Object o) {
        return o instanceof Integer || o instanceof Long || o instanceof Short || o instanceof Byte;
    }

    static List<Object> asList(Object o) {
        if (o.getClass().isArray()) {
            int n = Array.getLength(o);
            List<Object> list = new ArrayList<>(n);
            for (int i = 0; i < n; i++) {
                list.add(Array.get(o, i));
            }
            return list;
        }
        if (o instanceof Collection) {
            return new ArrayList<Object>((Collection<?>) o);
        }
        return null;
    }

    static boolean deepEquals(Object a, Object b) {
        if (a == null || b == null) {
            return a == b;
        }
        if (a instanceof Character) {
            a = String.valueOf(a);
        }
        if (b instanceof Character) {
            b = String.valueOf(b);
        }
        if (a instanceof Number && b instanceof Number) {
            if (isIntegral(a) && isIntegral(b)) {
                return ((Number) a).longValue() == ((Number) b).longValue();
            }
            return Math.abs(((Number) a).doubleValue() - ((Number) b).doubleValue()) <= 1e-9;
        }
        List<Object> la = asList(a);
        List<Object> lb = asList(b);
        if (la != null || lb != null) {
            if (la == null || lb == null || la.size() != lb.size()) {
                return false;
            }
            for (int i = 0; i < la.size(); i++) {
                if (!deepEquals(la.get(i), lb.get(i))) {
                    return false;
                }
            }
            return true;
        }
        return a.equals(b);
    }

    static String toJson(Object o) {
        if (o == null) {
            return "null";
        }
        if (o instanceof Boolean) {
            return o.toString();
        }
        if (o instanceof Double || o instanceof Float) {
            double d = ((Number) o).doubleValue();
            if (Double.isNaN(d) || Double.isInfinite(d)) {
                return "null";
            }
            return Double.toString(d);
        }
        if (o instanceof Number) {
            return o.toString();
        }
        if (o instanceof Character || o instanceof CharSequence) {
            return quote(o.toString());
        }
        if (o instanceof Map) {
            StringBuilder sb = new StringBuilder("{");
            boolean first = true;
            for (Map.Entry<?, ?> e : ((Map<?, ?>) o).entrySet()) {
                if (!first) {
                    sb.append(",");
                }
                first = false;
                sb.append(quote(String.valueOf(e.getKey()))).append(":").append(toJson(e.getValue()));
            }
            return sb.append("}").toString();
        }
        List<Object> list = asList(o);
        if (list != null) {
            StringBuilder sb = new StringBuilder("[");
            for (int i = 0; i < list.size(); i++) {
                if (i > 0) {
                    sb.append(",");
                }
                sb.append(toJson(list.get(i)));
            }
            return sb.append("]").toString();
        }
        return quote(o.toString());
    }

    static String quote(String s) {
        StringBuilder sb = new StringBuilder("\"");
        for (int i = 0; i < s.length(); i++) {
            char c = s.charAt(i);
            switch (c) {
                case '"': sb.append("\\\""); break;
                case '\\': sb.append("\\\\"); break;
                case '\n': sb.append("\\n"); break;
                case '\r': sb.append("\\r"); break;
                case '\t': sb.append("\\t"); break;
                default:
                    if (c < 0x20) {
                        sb.append(String.format("\\u%04x", (int) c));
                    } else {
                        sb.append(c);
                    }
            }
        }
        return sb.append("\"").toString();
    }
`

var _ Adapter = javaAdapter{}
