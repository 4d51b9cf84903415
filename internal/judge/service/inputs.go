package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"codejudge/internal/judge/harness"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
)

// preparedCase is a test case with its harness input already encoded.
type preparedCase struct {
	model.TestCase
	Encoded string
}

// SplitInput splits a raw test-case input into argument fields. Inputs
// containing a newline split on lines; otherwise on top-level commas that are
// outside brackets and outside a field that opens with a quote. Empty fields
// are dropped.
func SplitInput(raw string) []string {
	var parts []string
	if strings.Contains(raw, "\n") {
		parts = strings.Split(raw, "\n")
	} else {
		parts = splitTopLevel(raw)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitTopLevel(raw string) []string {
	var (
		parts []string
		depth int
		quote rune
		start int
	)
	for i, r := range raw {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case (r == '"' || r == '\'') && strings.TrimSpace(raw[start:i]) == "":
			quote = r
		case r == '[' || r == '{' || r == '(':
			depth++
		case r == ']' || r == '}' || r == ')':
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			parts = append(parts, raw[start:i])
			start = i + 1
		}
	}
	return append(parts, raw[start:])
}

// prepareCases validates every test case against sig and encodes its input
// for lang. Expected outputs must decode as the return type.
func prepareCases(cases []model.TestCase, sig harness.ResolvedSignature, lang string) ([]preparedCase, error) {
	out := make([]preparedCase, 0, len(cases))
	for _, tc := range cases {
		encoded, err := encodeCase(tc, sig, lang)
		if err != nil {
			return nil, err
		}
		out = append(out, preparedCase{TestCase: tc, Encoded: encoded})
	}
	return out, nil
}

func encodeCase(tc model.TestCase, sig harness.ResolvedSignature, lang string) (string, error) {
	fields := SplitInput(tc.Input)
	if len(fields) == 0 && len(sig.Args) > 0 {
		return "", invalidCase(tc, sig, "Input is empty or null")
	}
	if len(fields) != len(sig.Args) {
		return "", invalidCase(tc, sig, fmt.Sprintf("Input args count mismatch: Expected %d args, got %d values", len(sig.Args), len(fields)))
	}
	lines := make([]string, len(fields))
	for i, field := range fields {
		lines[i] = sig.Args[i].Type.EncodeInput(field, lang)
	}
	if _, err := sig.Return.DecodeOutput(tc.Output); err != nil {
		return "", invalidCase(tc, sig, "Invalid expected output: "+err.Error())
	}
	return strings.Join(lines, "\n"), nil
}

func invalidCase(tc model.TestCase, sig harness.ResolvedSignature, reason string) error {
	names := make([]string, len(sig.Args))
	for i, a := range sig.Args {
		names[i] = a.Name
	}
	input, _ := json.Marshal(tc.Input)
	expected, _ := json.Marshal(names)
	return appErr.Newf(appErr.TestCaseInvalid, "%s (Input: %s, Expected args: %s)", reason, input, expected)
}
