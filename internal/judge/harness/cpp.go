package harness

import (
	"fmt"
	"strings"

	"codejudge/internal/judge/typeregistry"
	appErr "codejudge/pkg/errors"
)

const cppPrelude = `#include <algorithm>
#include <cctype>
#include <iostream>
#include <limits>
#include <sstream>
#include <stdexcept>
#include <string>
#include <vector>
using namespace std;
`

const cppHelpers = `static string judge_trim(const string& s) {
    size_t begin = 0, end = s.size();
    while (begin < end && isspace(static_cast<unsigned char>(s[begin]))) ++begin;
    while (end > begin && isspace(static_cast<unsigned char>(s[end - 1]))) --end;
    return s.substr(begin, end - begin);
}

static string judge_next_line(int index, int expected) {
    string line;
    if (!getline(cin, line)) {
        throw runtime_error("Insufficient input lines: expected " + to_string(expected) + ", got " + to_string(index));
    }
    if (!line.empty() && line.back() == '\r') line.pop_back();
    return line;
}

static int judge_parse_int(const string& line) {
    string s = judge_trim(line);
    size_t used = 0;
    int v = stoi(s, &used);
    if (used != s.size()) throw runtime_error("Invalid number input: " + line);
    return v;
}

static string judge_parse_string(const string& line) {
    string s = judge_trim(line);
    if (!s.empty() && s.front() == '"') s.erase(0, 1);
    if (!s.empty() && s.back() == '"') s.pop_back();
    return s;
}

static vector<int> judge_parse_list(const string& line) {
    string s = judge_trim(line);
    if (!s.empty() && (s.front() == '{' || s.front() == '[')) s.erase(0, 1);
    if (!s.empty() && (s.back() == '}' || s.back() == ']')) s.pop_back();
    vector<int> out;
    stringstream ss(s);
    string item;
    while (getline(ss, item, ',')) {
        item = judge_trim(item);
        if (!item.empty()) out.push_back(judge_parse_int(item));
    }
    return out;
}

static bool judge_parse_bool(const string& line) {
    string s = judge_trim(line);
    transform(s.begin(), s.end(), s.begin(), [](unsigned char c) { return tolower(c); });
    return s == "true";
}

static void judge_print_int(long long v) { cout << v << endl; }

static void judge_print_string(const string& v) { cout << judge_trim(v) << endl; }

static void judge_print_list(const vector<int>& v) {
    cout << "{";
    for (size_t i = 0; i < v.size(); ++i) {
        if (i > 0) cout << ",";
        cout << v[i];
    }
    cout << "}" << endl;
}

static void judge_print_bool(bool v) { cout << (v ? "true" : "false") << endl; }
`

var cppKinds = map[typeregistry.Kind]struct {
	hostType string
	parser   string
	printer  string
}{
	typeregistry.KindInteger: {"int", "judge_parse_int", "judge_print_int"},
	typeregistry.KindString:  {"string", "judge_parse_string", "judge_print_string"},
	typeregistry.KindIntList: {"vector<int>", "judge_parse_list", "judge_print_list"},
	typeregistry.KindBool:    {"bool", "judge_parse_bool", "judge_print_bool"},
}

// generateCPP places the user code before main so the function is declared when called.
func generateCPP(userCode string, sig ResolvedSignature) (string, error) {
	ret, ok := cppKinds[sig.Return.Kind]
	if !ok {
		return "", appErr.Newf(appErr.UnsupportedType, "Unsupported type kind: %s", sig.Return.Kind)
	}
	var b strings.Builder
	b.WriteString(cppPrelude)
	b.WriteString("\n")
	b.WriteString(userCode)
	b.WriteString("\n\n")
	b.WriteString(cppHelpers)
	b.WriteString("\nint main() {\n")
	b.WriteString("    try {\n")
	names := make([]string, 0, len(sig.Args))
	for i, arg := range sig.Args {
		k, ok := cppKinds[arg.Type.Kind]
		if !ok {
			return "", appErr.Newf(appErr.UnsupportedType, "Unsupported type kind: %s", arg.Type.Kind)
		}
		name := fmt.Sprintf("judge_arg%d", i)
		fmt.Fprintf(&b, "        %s %s = %s(judge_next_line(%d, %d));\n", k.hostType, name, k.parser, i, len(sig.Args))
		names = append(names, name)
	}
	fmt.Fprintf(&b, "        auto result = %s(%s);\n", sig.FunctionName, strings.Join(names, ", "))
	fmt.Fprintf(&b, "        %s(result);\n", ret.printer)
	b.WriteString("    } catch (const exception& e) {\n")
	b.WriteString("        cerr << \"Exception: \" << e.what() << endl;\n")
	b.WriteString("        return 1;\n")
	b.WriteString("    }\n")
	b.WriteString("    return 0;\n")
	b.WriteString("}\n")
	return b.String(), nil
}
