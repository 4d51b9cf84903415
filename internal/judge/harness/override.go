package harness

import (
	"strings"

	"github.com/google/shlex"

	appErr "codejudge/pkg/errors"
)

// Override replaces parts of a builtin profile. Empty fields keep the builtin value.
type Override struct {
	FileName   string `yaml:"fileName"`
	CompileCmd string `yaml:"compileCmd"`
	ExecCmd    string `yaml:"execCmd"`
	Recipe     string `yaml:"recipe"`
}

// ApplyOverrides merges overrides into profiles keyed by language.
// Overrides for languages without a builtin profile are rejected.
func ApplyOverrides(profiles []Profile, overrides map[string]Override) ([]Profile, error) {
	out := make([]Profile, len(profiles))
	copy(out, profiles)
	index := make(map[string]int, len(out))
	for i, p := range out {
		index[p.Language] = i
	}
	for lang, o := range overrides {
		i, ok := index[lang]
		if !ok {
			return nil, appErr.Newf(appErr.LanguageNotSupported, "Language '%s' is not supported.", lang)
		}
		p := out[i]
		if o.FileName != "" {
			if strings.ContainsAny(o.FileName, `/\`) {
				return nil, appErr.Newf(appErr.InvalidParams, "language %s: file name must not contain a path", lang)
			}
			p.FileName = o.FileName
		}
		if o.CompileCmd != "" {
			if err := checkCommand(o.CompileCmd); err != nil {
				return nil, appErr.Wrapf(err, appErr.InvalidParams, "language %s: invalid compile command", lang)
			}
			p.CompileCmd = o.CompileCmd
		}
		if o.ExecCmd != "" {
			if err := checkCommand(o.ExecCmd); err != nil {
				return nil, appErr.Wrapf(err, appErr.InvalidParams, "language %s: invalid exec command", lang)
			}
			p.ExecCmd = o.ExecCmd
		}
		if o.Recipe != "" {
			p.Recipe = o.Recipe
		}
		out[i] = p
	}
	return out, nil
}

func checkCommand(cmd string) error {
	fields, err := shlex.Split(cmd)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return appErr.New(appErr.InvalidParams).WithMessage("command is empty")
	}
	return nil
}
