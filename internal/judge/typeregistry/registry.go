// Package typeregistry maps the abstract value types used in problem signatures
// to their per-language literal forms and their canonical output values.
package typeregistry

import (
	"fmt"
	"strconv"
	"strings"

	appErr "codejudge/pkg/errors"
)

// Kind identifies the shape of a value independent of its type name.
type Kind int

const (
	KindInteger Kind = iota + 1
	KindString
	KindIntList
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindString:
		return "string"
	case KindIntList:
		return "integer-list"
	case KindBool:
		return "boolean"
	default:
		return "unknown"
	}
}

// LiteralStyle describes how one language's harness expects argument lines to look.
type LiteralStyle struct {
	ListOpen     string
	ListClose    string
	QuoteStrings bool
}

// DefaultStyle is used for languages without a registered style.
var DefaultStyle = LiteralStyle{ListOpen: "[", ListClose: "]"}

// TypeInfo holds the encode/decode rules of one value type.
type TypeInfo struct {
	Name   string
	Kind   Kind
	styles map[string]LiteralStyle
}

// EncodeInput converts a human-authored test-case field into the argument line
// consumed by the harness generated for lang.
func (t *TypeInfo) EncodeInput(raw, lang string) string {
	style, ok := t.styles[lang]
	if !ok {
		style = DefaultStyle
	}
	value := strings.TrimSpace(raw)
	switch t.Kind {
	case KindString:
		if style.QuoteStrings {
			return `"` + unquote(value) + `"`
		}
		return value
	case KindIntList:
		return style.ListOpen + strings.Join(splitListBody(value), ",") + style.ListClose
	case KindBool:
		return strings.ToLower(value)
	default:
		return value
	}
}

// DecodeOutput parses raw program output into a canonical value.
func (t *TypeInfo) DecodeOutput(raw string) (Value, error) {
	text := strings.TrimSpace(raw)
	switch t.Kind {
	case KindInteger:
		n, err := parseInt(text)
		if err != nil {
			return Value{}, appErr.Newf(appErr.InvalidFormat, "Invalid number output: %s", text)
		}
		return Int(n), nil
	case KindString:
		return String(unquote(text)), nil
	case KindIntList:
		parts := splitListBody(text)
		items := make([]int64, 0, len(parts))
		for _, p := range parts {
			n, err := parseInt(p)
			if err != nil {
				return Value{}, appErr.Newf(appErr.InvalidFormat, "Invalid list element in output: %s", p)
			}
			items = append(items, n)
		}
		return List(items), nil
	case KindBool:
		switch strings.ToLower(text) {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
		return Value{}, appErr.Newf(appErr.InvalidFormat, "Invalid boolean output: %s", text)
	default:
		return Value{}, appErr.Newf(appErr.UnsupportedType, "Unsupported type: %s", t.Name)
	}
}

// unquote drops one leading and one trailing double quote, the same way the
// generated parsers do.
func unquote(text string) string {
	text = strings.TrimPrefix(text, `"`)
	return strings.TrimSuffix(text, `"`)
}

// splitListBody strips one pair of surrounding brackets or braces and returns
// the trimmed, non-empty elements.
func splitListBody(text string) []string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "[") || strings.HasPrefix(text, "{") {
		text = text[1:]
	}
	if strings.HasSuffix(text, "]") || strings.HasSuffix(text, "}") {
		text = text[:len(text)-1]
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	raw := strings.Split(text, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if v := strings.TrimSpace(r); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseInt(text string) (int64, error) {
	text = strings.TrimPrefix(text, "+")
	return strconv.ParseInt(text, 10, 64)
}

// Registry resolves type names, including aliases, to TypeInfo.
// It is immutable once built.
type Registry struct {
	types   map[string]*TypeInfo
	aliases map[string]string
}

var builtinTypes = []struct {
	name    string
	kind    Kind
	aliases []string
}{
	{"number", KindInteger, []string{"int", "integer"}},
	{"string", KindString, []string{"str"}},
	{"List[int]", KindIntList, []string{"number[]", "int[]", "list"}},
	{"bool", KindBool, []string{"boolean"}},
}

// New builds a registry with the builtin types and the given per-language literal styles.
func New(styles map[string]LiteralStyle) *Registry {
	copied := make(map[string]LiteralStyle, len(styles))
	for lang, style := range styles {
		copied[lang] = style
	}
	r := &Registry{
		types:   make(map[string]*TypeInfo, len(builtinTypes)),
		aliases: make(map[string]string),
	}
	for _, bt := range builtinTypes {
		r.types[bt.name] = &TypeInfo{Name: bt.name, Kind: bt.kind, styles: copied}
		for _, alias := range bt.aliases {
			r.aliases[alias] = bt.name
		}
	}
	return r
}

// Resolve returns the TypeInfo for name or an UnsupportedType error.
func (r *Registry) Resolve(name string) (*TypeInfo, error) {
	key := strings.TrimSpace(name)
	if info, ok := r.types[key]; ok {
		return info, nil
	}
	if canonical, ok := r.aliases[key]; ok {
		return r.types[canonical], nil
	}
	return nil, appErr.Newf(appErr.UnsupportedType, "Unsupported type: %s", name)
}

// Value is a canonical, language-independent program value.
type Value struct {
	Kind Kind
	I    int64
	S    string
	L    []int64
	B    bool
}

// Int returns an integer value.
func Int(n int64) Value { return Value{Kind: KindInteger, I: n} }

// String returns a string value.
func String(s string) Value { return Value{Kind: KindString, S: s} }

// List returns an integer-list value.
func List(l []int64) Value { return Value{Kind: KindIntList, L: l} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, B: b} }

// Equal reports whether two canonical values are the same.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindInteger:
		return v.I == other.I
	case KindString:
		return v.S == other.S
	case KindIntList:
		if len(v.L) != len(other.L) {
			return false
		}
		for i := range v.L {
			if v.L[i] != other.L[i] {
				return false
			}
		}
		return true
	case KindBool:
		return v.B == other.B
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case KindInteger:
		return strconv.FormatInt(v.I, 10)
	case KindString:
		return v.S
	case KindIntList:
		parts := make([]string, len(v.L))
		for i, n := range v.L {
			parts[i] = strconv.FormatInt(n, 10)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindBool:
		return strconv.FormatBool(v.B)
	}
	return fmt.Sprintf("<%s>", v.Kind)
}
