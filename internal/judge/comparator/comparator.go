// Package comparator performs type-aware comparison of program output.
package comparator

import (
	"codejudge/internal/judge/typeregistry"
	appErr "codejudge/pkg/errors"
)

// Comparison is the outcome of one output check.
type Comparison struct {
	Passed   bool
	Actual   typeregistry.Value
	Expected typeregistry.Value
	// DecodeErr is set when the actual output could not be parsed as the return type.
	DecodeErr error
}

// Compare decodes both outputs through info and checks them for equality.
// Unparsable actual output is a mismatch. Unparsable expected output is an error.
func Compare(info *typeregistry.TypeInfo, actual, expected string) (Comparison, error) {
	if info == nil {
		return Comparison{}, appErr.New(appErr.InvalidParams).WithMessage("return type is required")
	}
	want, err := info.DecodeOutput(expected)
	if err != nil {
		return Comparison{}, appErr.Wrapf(err, appErr.TestCaseInvalid, "invalid expected output: %s", err.Error())
	}
	got, err := info.DecodeOutput(actual)
	if err != nil {
		return Comparison{Expected: want, DecodeErr: err}, nil
	}
	return Comparison{Passed: got.Equal(want), Actual: got, Expected: want}, nil
}
