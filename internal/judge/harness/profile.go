// Package harness synthesizes runnable programs that wrap a user's function
// with argument parsing and canonical result printing.
package harness

import (
	"regexp"
	"sort"
	"strings"

	"codejudge/internal/judge/model"
	"codejudge/internal/judge/sandbox/result"
	"codejudge/internal/judge/typeregistry"
	appErr "codejudge/pkg/errors"
)

// Signature is the function a generated harness calls.
type Signature struct {
	FunctionName string
	Args         []model.Arg
	ReturnType   string
}

// ResolvedArg is an argument whose type has been resolved.
type ResolvedArg struct {
	Name string
	Type *typeregistry.TypeInfo
}

// ResolvedSignature is a Signature with every type resolved.
type ResolvedSignature struct {
	FunctionName string
	Args         []ResolvedArg
	Return       *typeregistry.TypeInfo
}

// GenerateFunc renders a complete program from user code and a resolved signature.
type GenerateFunc func(userCode string, sig ResolvedSignature) (string, error)

// Profile is everything needed to build, run and judge one language.
type Profile struct {
	Language   string
	FileName   string
	CompileCmd string
	ExecCmd    string
	Recipe     string
	Style      typeregistry.LiteralStyle
	Generate   GenerateFunc
	Classify   result.Classifier
}

// DefaultProfiles returns the builtin language profiles.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Language:   "cpp",
			FileName:   "main.cpp",
			CompileCmd: "g++ main.cpp -o main -O2 -std=c++17",
			ExecCmd:    "./main",
			Recipe:     "cpp",
			Style:      typeregistry.LiteralStyle{ListOpen: "{", ListClose: "}", QuoteStrings: true},
			Generate:   generateCPP,
			Classify:   result.WithCompileExitCode(result.TextClassifier(result.ContainsAny("g++", "error:"))),
		},
		{
			Language: "python",
			FileName: "main.py",
			ExecCmd:  "python3 main.py",
			Recipe:   "py",
			Style:    typeregistry.DefaultStyle,
			Generate: generatePython,
			Classify: result.TextClassifier(result.ContainsAny("g++", "syntaxerror", "indentationerror")),
		},
		{
			Language: "javascript",
			FileName: "main.js",
			ExecCmd:  "node main.js",
			Recipe:   "js",
			Style:    typeregistry.DefaultStyle,
			Generate: generateJavaScript,
			Classify: result.DefaultClassifier,
		},
	}
}

// Generator looks up language profiles and renders harness programs.
type Generator struct {
	profiles map[string]Profile
	types    *typeregistry.Registry
}

// NewGenerator builds a generator over profiles. Later profiles replace earlier ones with the same language.
func NewGenerator(profiles []Profile) *Generator {
	g := &Generator{profiles: make(map[string]Profile, len(profiles))}
	styles := make(map[string]typeregistry.LiteralStyle, len(profiles))
	for _, p := range profiles {
		if p.Classify == nil {
			p.Classify = result.DefaultClassifier
		}
		g.profiles[p.Language] = p
		styles[p.Language] = p.Style
	}
	g.types = typeregistry.New(styles)
	return g
}

// Profile returns the profile for lang.
func (g *Generator) Profile(lang string) (Profile, error) {
	p, ok := g.profiles[lang]
	if !ok {
		return Profile{}, appErr.Newf(appErr.LanguageNotSupported, "Language '%s' is not supported.", lang)
	}
	return p, nil
}

// Languages lists the supported language keys in sorted order.
func (g *Generator) Languages() []string {
	out := make([]string, 0, len(g.profiles))
	for lang := range g.profiles {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Resolve checks a signature and resolves its types.
func (g *Generator) Resolve(sig Signature) (ResolvedSignature, error) {
	name := strings.TrimSpace(sig.FunctionName)
	if !identifierPattern.MatchString(name) {
		return ResolvedSignature{}, appErr.Newf(appErr.ProblemInvalid, "Invalid function name: %q", sig.FunctionName)
	}
	out := ResolvedSignature{FunctionName: name, Args: make([]ResolvedArg, 0, len(sig.Args))}
	for _, arg := range sig.Args {
		info, err := g.types.Resolve(arg.Type)
		if err != nil {
			return ResolvedSignature{}, err
		}
		out.Args = append(out.Args, ResolvedArg{Name: arg.Name, Type: info})
	}
	ret, err := g.types.Resolve(sig.ReturnType)
	if err != nil {
		return ResolvedSignature{}, err
	}
	out.Return = ret
	return out, nil
}

// Generate renders the harness program for lang. It has no side effects.
func (g *Generator) Generate(lang, userCode string, sig Signature) (string, error) {
	p, err := g.Profile(lang)
	if err != nil {
		return "", err
	}
	resolved, err := g.Resolve(sig)
	if err != nil {
		return "", err
	}
	return p.Generate(userCode, resolved)
}
