package harness_test

import (
	"strings"
	"testing"

	"codejudge/internal/judge/harness"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
)

func squareSig() harness.Signature {
	return harness.Signature{
		FunctionName: "solve",
		Args:         []model.Arg{{Name: "n", Type: "number"}},
		ReturnType:   "number",
	}
}

func TestProfileUnknownLanguage(t *testing.T) {
	gen := harness.NewGenerator(harness.DefaultProfiles())
	_, err := gen.Profile("ruby")
	if !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
	if err.Error() != "Language 'ruby' is not supported." {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if _, err := gen.Generate("ruby", "x", squareSig()); !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("generate should reject unknown language, got %v", err)
	}
}

func TestLanguagesSorted(t *testing.T) {
	gen := harness.NewGenerator(harness.DefaultProfiles())
	got := strings.Join(gen.Languages(), ",")
	if got != "cpp,javascript,python" {
		t.Fatalf("unexpected languages: %s", got)
	}
}

func TestGenerateRejectsUnsupportedType(t *testing.T) {
	gen := harness.NewGenerator(harness.DefaultProfiles())
	sig := squareSig()
	sig.Args = append(sig.Args, model.Arg{Name: "m", Type: "Map[int,int]"})
	for _, lang := range gen.Languages() {
		if _, err := gen.Generate(lang, "code", sig); !appErr.Is(err, appErr.UnsupportedType) {
			t.Fatalf("%s: expected UnsupportedType, got %v", lang, err)
		}
	}
}

func TestGenerateRejectsBadFunctionName(t *testing.T) {
	gen := harness.NewGenerator(harness.DefaultProfiles())
	sig := squareSig()
	sig.FunctionName = "solve(); evil"
	if _, err := gen.Generate("python", "code", sig); !appErr.Is(err, appErr.ProblemInvalid) {
		t.Fatalf("expected ProblemInvalid, got %v", err)
	}
}

func TestGenerateJavaScript(t *testing.T) {
	gen := harness.NewGenerator(harness.DefaultProfiles())
	sig := harness.Signature{
		FunctionName: "add",
		Args:         []model.Arg{{Name: "nums", Type: "List[int]"}, {Name: "k", Type: "number"}},
		ReturnType:   "List[int]",
	}
	code := "const add = (nums, k) => nums.map((x) => x + k);;  "
	out, err := gen.Generate("javascript", code, sig)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !strings.HasPrefix(out, "const add = (nums, k) => nums.map((x) => x + k)\n") {
		t.Fatalf("user code should come first without trailing semicolons:\n%s", out)
	}
	for _, want := range []string{
		"args.push(parseList(lines[0]));",
		"args.push(parseNumber(lines[1]));",
		"let result = add(...args);",
		"if (typeof result === 'function')",
		"Insufficient input lines: expected 2, got ",
		"'[' + Array.from(result).map(String).join(',') + ']'",
		"process.exit(1);",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestGeneratePython(t *testing.T) {
	gen := harness.NewGenerator(harness.DefaultProfiles())
	code := "def solve(n):\n\n\treturn n * n   \n"
	out, err := gen.Generate("python", code, squareSig())
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !strings.HasPrefix(out, "def solve(n):\n    return n * n\n") {
		t.Fatalf("user code not sanitized:\n%s", out)
	}
	for _, want := range []string{
		"args.append(_judge_parse_int(lines[0]))",
		"result = solve(*args)",
		"print(str(result))",
		"if __name__ == \"__main__\":",
		"print(f\"ERROR: {e}\", file=_judge_sys.stderr)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "typeof result") {
		t.Fatalf("curried call belongs to javascript only")
	}
}

func TestGenerateCPP(t *testing.T) {
	gen := harness.NewGenerator(harness.DefaultProfiles())
	sig := harness.Signature{
		FunctionName: "rev",
		Args:         []model.Arg{{Name: "v", Type: "int[]"}, {Name: "s", Type: "string"}, {Name: "f", Type: "boolean"}},
		ReturnType:   "List[int]",
	}
	code := "vector<int> rev(vector<int> v, string s, bool f) { return v; }"
	out, err := gen.Generate("cpp", code, sig)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	userAt := strings.Index(out, code)
	mainAt := strings.Index(out, "int main()")
	if userAt < 0 || mainAt < 0 || userAt > mainAt {
		t.Fatalf("user code must precede main:\n%s", out)
	}
	for _, want := range []string{
		"using namespace std;",
		"vector<int> judge_arg0 = judge_parse_list(judge_next_line(0, 3));",
		"string judge_arg1 = judge_parse_string(judge_next_line(1, 3));",
		"bool judge_arg2 = judge_parse_bool(judge_next_line(2, 3));",
		"auto result = rev(judge_arg0, judge_arg1, judge_arg2);",
		"judge_print_list(result);",
		"cerr << \"Exception: \" << e.what() << endl;",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	gen := harness.NewGenerator(harness.DefaultProfiles())
	for _, lang := range gen.Languages() {
		a, err := gen.Generate(lang, "code", squareSig())
		if err != nil {
			t.Fatalf("%s: %v", lang, err)
		}
		b, _ := gen.Generate(lang, "code", squareSig())
		if a != b {
			t.Fatalf("%s: output differs between calls", lang)
		}
	}
}

func TestApplyOverrides(t *testing.T) {
	profiles, err := harness.ApplyOverrides(harness.DefaultProfiles(), map[string]harness.Override{
		"cpp": {CompileCmd: "g++ main.cpp -o main -O2 -std=c++20"},
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	p, err := harness.NewGenerator(profiles).Profile("cpp")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.CompileCmd != "g++ main.cpp -o main -O2 -std=c++20" || p.ExecCmd != "./main" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if harness.DefaultProfiles()[0].CompileCmd == p.CompileCmd {
		t.Fatalf("defaults must not be mutated")
	}
}

func TestApplyOverridesRejects(t *testing.T) {
	cases := map[string]map[string]harness.Override{
		"unknown language": {"go": {ExecCmd: "./main"}},
		"unbalanced quote": {"python": {ExecCmd: "python3 'main.py"}},
		"path in file":     {"python": {FileName: "../main.py"}},
	}
	for name, overrides := range cases {
		if _, err := harness.ApplyOverrides(harness.DefaultProfiles(), overrides); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
