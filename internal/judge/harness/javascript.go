package harness

import (
	"fmt"
	"regexp"
	"strings"

	"codejudge/internal/judge/typeregistry"
	appErr "codejudge/pkg/errors"
)

var trailingSemicolons = regexp.MustCompile(`;+\s*$`)

const jsHelpers = `    const parseNumber = (line) => {
        const v = parseInt(String(line).trim(), 10);
        if (isNaN(v)) throw new Error('Invalid number input: ' + line);
        return v;
    };
    const parseString = (line) => String(line).trim().replace(/^"|"$/g, '');
    const parseList = (line) => {
        const body = String(line).trim().replace(/^[\[{]|[\]}]$/g, '').trim();
        if (body === '') return [];
        return body.split(',').map((v) => parseNumber(v));
    };
    const parseBool = (line) => String(line).trim().toLowerCase() === 'true';
`

func jsParser(kind typeregistry.Kind) (string, error) {
	switch kind {
	case typeregistry.KindInteger:
		return "parseNumber", nil
	case typeregistry.KindString:
		return "parseString", nil
	case typeregistry.KindIntList:
		return "parseList", nil
	case typeregistry.KindBool:
		return "parseBool", nil
	}
	return "", appErr.Newf(appErr.UnsupportedType, "Unsupported type kind: %s", kind)
}

func jsFormatter(kind typeregistry.Kind) (string, error) {
	switch kind {
	case typeregistry.KindInteger:
		return "String(result)", nil
	case typeregistry.KindString:
		return "String(result).trim()", nil
	case typeregistry.KindIntList:
		return "'[' + Array.from(result).map(String).join(',') + ']'", nil
	case typeregistry.KindBool:
		return "String(Boolean(result))", nil
	}
	return "", appErr.Newf(appErr.UnsupportedType, "Unsupported type kind: %s", kind)
}

// generateJavaScript calls the user function and, when it returns a function,
// calls that once more with the same arguments.
func generateJavaScript(userCode string, sig ResolvedSignature) (string, error) {
	format, err := jsFormatter(sig.Return.Kind)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(trailingSemicolons.ReplaceAllString(strings.TrimSpace(userCode), ""))
	b.WriteString("\n\n;(() => {\n")
	b.WriteString(jsHelpers)
	b.WriteString("    let input = '';\n")
	b.WriteString("    process.stdin.setEncoding('utf8');\n")
	b.WriteString("    process.stdin.on('data', (chunk) => { input += chunk; });\n")
	b.WriteString("    process.stdin.on('end', () => {\n")
	b.WriteString("        try {\n")
	b.WriteString("            const lines = input.replace(/\\r/g, '').split('\\n');\n")
	b.WriteString("            while (lines.length > 0 && lines[lines.length - 1].trim() === '') lines.pop();\n")
	fmt.Fprintf(&b, "            if (lines.length < %d) {\n", len(sig.Args))
	fmt.Fprintf(&b, "                throw new Error('Insufficient input lines: expected %d, got ' + lines.length);\n", len(sig.Args))
	b.WriteString("            }\n")
	b.WriteString("            const args = [];\n")
	for i, arg := range sig.Args {
		parser, err := jsParser(arg.Type.Kind)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "            args.push(%s(lines[%d]));\n", parser, i)
	}
	fmt.Fprintf(&b, "            let result = %s(...args);\n", sig.FunctionName)
	b.WriteString("            if (typeof result === 'function') {\n")
	b.WriteString("                result = result(...args);\n")
	b.WriteString("            }\n")
	fmt.Fprintf(&b, "            console.log(%s);\n", format)
	b.WriteString("        } catch (err) {\n")
	b.WriteString("            console.error('Execution failure:', err && err.message ? err.message : String(err));\n")
	b.WriteString("            process.exit(1);\n")
	b.WriteString("        }\n")
	b.WriteString("    });\n")
	b.WriteString("})();\n")
	return b.String(), nil
}
