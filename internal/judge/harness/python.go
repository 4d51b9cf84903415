package harness

import (
	"fmt"
	"strings"

	"codejudge/internal/judge/typeregistry"
	appErr "codejudge/pkg/errors"
)

const pyHelpers = `def _judge_parse_int(line):
    return int(line.strip())


def _judge_parse_str(line):
    s = line.strip()
    if s.startswith('"'):
        s = s[1:]
    if s.endswith('"'):
        s = s[:-1]
    return s


def _judge_parse_list(line):
    s = line.strip()
    if s[:1] in ('[', '{'):
        s = s[1:]
    if s[-1:] in (']', '}'):
        s = s[:-1]
    return [int(x) for x in s.split(',') if x.strip() != '']


def _judge_parse_bool(line):
    return line.strip().lower() == 'true'
`

func pyParser(kind typeregistry.Kind) (string, error) {
	switch kind {
	case typeregistry.KindInteger:
		return "_judge_parse_int", nil
	case typeregistry.KindString:
		return "_judge_parse_str", nil
	case typeregistry.KindIntList:
		return "_judge_parse_list", nil
	case typeregistry.KindBool:
		return "_judge_parse_bool", nil
	}
	return "", appErr.Newf(appErr.UnsupportedType, "Unsupported type kind: %s", kind)
}

func pyFormatter(kind typeregistry.Kind) (string, error) {
	switch kind {
	case typeregistry.KindInteger:
		return "str(result)", nil
	case typeregistry.KindString:
		return "str(result).strip()", nil
	case typeregistry.KindIntList:
		return "'[' + ','.join(str(x) for x in result) + ']'", nil
	case typeregistry.KindBool:
		return "str(bool(result)).lower()", nil
	}
	return "", appErr.Newf(appErr.UnsupportedType, "Unsupported type kind: %s", kind)
}

// sanitizePython expands tabs, trims trailing whitespace and drops blank lines.
func sanitizePython(code string) string {
	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(strings.ReplaceAll(line, "\t", "    "), " \r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func generatePython(userCode string, sig ResolvedSignature) (string, error) {
	format, err := pyFormatter(sig.Return.Kind)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(sanitizePython(userCode))
	b.WriteString("\n\n\n")
	b.WriteString(pyHelpers)
	b.WriteString("\n\ndef _judge_main():\n")
	b.WriteString("    import sys\n")
	b.WriteString("    lines = sys.stdin.read().replace('\\r', '').split('\\n')\n")
	b.WriteString("    while lines and lines[-1].strip() == '':\n")
	b.WriteString("        lines.pop()\n")
	fmt.Fprintf(&b, "    if len(lines) < %d:\n", len(sig.Args))
	fmt.Fprintf(&b, "        raise ValueError('Insufficient input lines: expected %d, got %%d' %% len(lines))\n", len(sig.Args))
	b.WriteString("    args = []\n")
	for i, arg := range sig.Args {
		parser, err := pyParser(arg.Type.Kind)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "    args.append(%s(lines[%d]))\n", parser, i)
	}
	fmt.Fprintf(&b, "    result = %s(*args)\n", sig.FunctionName)
	fmt.Fprintf(&b, "    print(%s)\n", format)
	b.WriteString("\n\nif __name__ == \"__main__\":\n")
	b.WriteString("    import sys as _judge_sys\n")
	b.WriteString("    try:\n")
	b.WriteString("        _judge_main()\n")
	b.WriteString("    except Exception as e:\n")
	b.WriteString("        print(f\"ERROR: {e}\", file=_judge_sys.stderr)\n")
	b.WriteString("        _judge_sys.exit(1)\n")
	return b.String(), nil
}
