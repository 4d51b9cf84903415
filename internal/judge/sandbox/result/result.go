// Package result defines sandbox execution results and their classification.
package result

import (
	"fmt"
	"strings"
	"time"

	"codejudge/internal/judge/model"
)

// CompileFailedExitCode is the launcher's exit status when the compile step fails.
const CompileFailedExitCode = 97

const memoryExceededDetail = "memory limit exceeded"

// RunResult captures raw data of one contained execution.
type RunResult struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	TimedOut  bool
	// OOMKilled is set when the kernel OOM killer stopped the program.
	OOMKilled bool
	Duration  time.Duration
}

// Succeeded reports whether the program exited normally with status zero.
func (r RunResult) Succeeded() bool {
	return !r.TimedOut && !r.OOMKilled && r.ExitCode == 0
}

// Failure is a classified execution failure.
type Failure struct {
	Status model.SubmissionStatus
	Detail string
}

// Classifier maps a run outcome to a failure. ok is false when the run succeeded.
type Classifier func(res RunResult, timeout time.Duration) (failure Failure, ok bool)

// MarkerFunc reports whether lower-cased stderr indicates a compile failure.
type MarkerFunc func(stderr string) bool

// ContainsAny returns a MarkerFunc matching any of the given lower-case markers.
func ContainsAny(markers ...string) MarkerFunc {
	return func(stderr string) bool {
		for _, m := range markers {
			if strings.Contains(stderr, m) {
				return true
			}
		}
		return false
	}
}

// TextClassifier classifies by timeout first, then compile markers in stderr, then runtime failure.
// Only the deadline yields a time limit; an OOM kill or a bare exit 137 is a runtime error.
// It is best effort: programs that print compiler-like text to stderr are reported as compile errors.
func TextClassifier(isCompile MarkerFunc) Classifier {
	return func(res RunResult, timeout time.Duration) (Failure, bool) {
		if res.Succeeded() {
			return Failure{}, false
		}
		if res.TimedOut {
			return Failure{
				Status: model.StatusTimeLimitExceeded,
				Detail: fmt.Sprintf("Execution timed out after %s.", formatSeconds(timeout)),
			}, true
		}
		if res.OOMKilled {
			return Failure{Status: model.StatusRuntimeError, Detail: "Execution failed: " + memoryExceededDetail}, true
		}
		detail := errorDetail(res)
		if isCompile != nil && isCompile(strings.ToLower(detail)) {
			return Failure{Status: model.StatusCompileError, Detail: "Code failed to compile: " + detail}, true
		}
		return Failure{Status: model.StatusRuntimeError, Detail: "Execution failed: " + detail}, true
	}
}

// WithCompileExitCode treats the launcher's compile-failure exit status as a compile error
// before delegating to next.
func WithCompileExitCode(next Classifier) Classifier {
	return func(res RunResult, timeout time.Duration) (Failure, bool) {
		if !res.TimedOut && !res.OOMKilled && res.ExitCode == CompileFailedExitCode {
			return Failure{Status: model.StatusCompileError, Detail: "Code failed to compile: " + errorDetail(res)}, true
		}
		return next(res, timeout)
	}
}

// DefaultClassifier flags compiler invocations mentioned in stderr.
var DefaultClassifier = TextClassifier(ContainsAny("g++"))

func errorDetail(res RunResult) string {
	if detail := strings.TrimSpace(res.Stderr); detail != "" {
		return detail
	}
	return fmt.Sprintf("process exited with code %d", res.ExitCode)
}

func formatSeconds(d time.Duration) string {
	secs := d.Seconds()
	if secs == float64(int64(secs)) {
		return fmt.Sprintf("%d seconds", int64(secs))
	}
	return fmt.Sprintf("%.1f seconds", secs)
}
