package service_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"codejudge/internal/judge/model"
	"codejudge/internal/judge/sandbox/result"
	appErr "codejudge/pkg/errors"
)

func caseMessage(t *testing.T, msg model.Message) model.TestCaseMessage {
	t.Helper()
	tc, ok := msg.(model.TestCaseMessage)
	if !ok {
		t.Fatalf("expected test case message, got %T", msg)
	}
	return tc
}

func fatalMessage(t *testing.T, msgs []model.Message) model.FatalMessage {
	t.Helper()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(msgs))
	}
	fatal, ok := msgs[0].(model.FatalMessage)
	if !ok {
		t.Fatalf("expected fatal message, got %T", msgs[0])
	}
	return fatal
}

func TestAllCasesPass(t *testing.T) {
	f := newFixture(t,
		model.TestCase{Input: "5", Output: "25"},
		model.TestCase{Input: "3", Output: "9"},
		model.TestCase{Input: "-2", Output: "4"},
	)
	sink := &recordingSink{}
	f.svc.Process(context.Background(), f.job("python", sink))

	msgs := sink.messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 3 test case messages and a terminal message, got %d", len(msgs))
	}
	for i := 0; i < 3; i++ {
		tc := caseMessage(t, msgs[i])
		if tc.TestCase != i+1 || !tc.Passed || tc.Error != nil || tc.Actual == nil {
			t.Fatalf("unexpected message %d: %+v", i, tc)
		}
	}
	if term, ok := msgs[3].(model.TerminalMessage); !ok || term.Status != "All test cases passed!" {
		t.Fatalf("expected terminal message last, got %+v", msgs[3])
	}
	if got := f.subs.only(t).Status; got != model.StatusAccepted {
		t.Fatalf("expected ACCEPTED, got %s", got)
	}
	if len(f.subs.cases) != 3 {
		t.Fatalf("expected 3 recorded test cases, got %d", len(f.subs.cases))
	}
	want := []string{"build:runner-id-1", "run:runner-id-1", "run:runner-id-1", "run:runner-id-1", "remove:runner-id-1"}
	if got := f.runtime.log(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected runtime calls: %v", got)
	}
	if len(f.published) != 1 || f.published[0].Status != model.StatusAccepted || f.published[0].PassedTests != 3 {
		t.Fatalf("unexpected published events: %+v", f.published)
	}
	f.assertCleanedUp(t)
}

func TestSquareScenario(t *testing.T) {
	f := newFixture(t, model.TestCase{Input: "5", Output: "25"})
	sink := &recordingSink{}
	f.svc.Process(context.Background(), f.job("python", sink))

	tc := caseMessage(t, sink.messages()[0])
	if !tc.Passed || *tc.Actual != "25" || tc.Input != "5" || tc.Expected != "25" {
		t.Fatalf("unexpected verdict: %+v", tc)
	}
	if got := f.runtime.inputs[0]; got != "5\n" {
		t.Fatalf("unexpected staged input %q", got)
	}
}

func TestStopsAtFirstMismatch(t *testing.T) {
	f := newFixture(t,
		model.TestCase{Input: "5", Output: "25"},
		model.TestCase{Input: "5", Output: "26"},
		model.TestCase{Input: "2", Output: "4"},
	)
	sink := &recordingSink{}
	f.svc.Process(context.Background(), f.job("python", sink))

	msgs := sink.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	tc := caseMessage(t, msgs[1])
	if tc.Passed || tc.Error != nil || tc.Actual == nil || *tc.Actual != "25" {
		t.Fatalf("expected a plain mismatch, got %+v", tc)
	}
	if got := f.subs.only(t).Status; got != model.StatusWrongAnswer {
		t.Fatalf("expected WRONG_ANSWER, got %s", got)
	}
	if len(f.runtime.inputs) != 2 {
		t.Fatalf("expected the run to stop after case 2, got %d runs", len(f.runtime.inputs))
	}
	if f.subs.cases[1].Status != model.StatusWrongAnswer {
		t.Fatalf("expected recorded WRONG_ANSWER, got %s", f.subs.cases[1].Status)
	}
	f.assertCleanedUp(t)
}

func TestRuntimeErrorStopsRun(t *testing.T) {
	f := newFixture(t,
		model.TestCase{Input: "1", Output: "1"},
		model.TestCase{Input: "0", Output: "0"},
		model.TestCase{Input: "2", Output: "4"},
	)
	f.runtime.respond = func(input string) result.RunResult {
		if strings.TrimSpace(input) == "0" {
			return result.RunResult{Stderr: "ERROR: division by zero\n", ExitCode: 1}
		}
		return squareOutput(input)
	}
	sink := &recordingSink{}
	f.svc.Process(context.Background(), f.job("python", sink))

	msgs := sink.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	tc := caseMessage(t, msgs[1])
	if tc.Passed || tc.Error == nil || tc.Error.Type != model.StatusRuntimeError || tc.Actual != nil {
		t.Fatalf("expected runtime error verdict, got %+v", tc)
	}
	if tc.Error.Detail != "Execution failed: ERROR: division by zero" {
		t.Fatalf("unexpected detail %q", tc.Error.Detail)
	}
	if got := f.subs.only(t).Status; got != model.StatusRuntimeError {
		t.Fatalf("expected RUNTIME_ERROR, got %s", got)
	}
}

func TestFailureClassification(t *testing.T) {
	tests := []struct {
		name   string
		lang   string
		res    result.RunResult
		status model.SubmissionStatus
		detail string
	}{
		{
			name:   "timeout",
			lang:   "python",
			res:    result.RunResult{TimedOut: true, ExitCode: 137},
			status: model.StatusTimeLimitExceeded,
			detail: "Execution timed out after 10 seconds.",
		},
		{
			name:   "python syntax error",
			lang:   "python",
			res:    result.RunResult{Stderr: "SyntaxError: invalid syntax", ExitCode: 1},
			status: model.StatusCompileError,
			detail: "Code failed to compile: SyntaxError: invalid syntax",
		},
		{
			name:   "cpp compile step",
			lang:   "cpp",
			res:    result.RunResult{Stderr: "main.cpp:3:1: expected ';'", ExitCode: result.CompileFailedExitCode},
			status: model.StatusCompileError,
			detail: "Code failed to compile: main.cpp:3:1: expected ';'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, model.TestCase{Input: "5", Output: "25"})
			f.runtime.respond = func(string) result.RunResult { return tt.res }
			sink := &recordingSink{}
			f.svc.Process(context.Background(), f.job(tt.lang, sink))

			tc := caseMessage(t, sink.messages()[0])
			if tc.Error == nil || tc.Error.Type != tt.status || tc.Error.Detail != tt.detail {
				t.Fatalf("unexpected verdict: %+v", tc.Error)
			}
			if got := f.subs.only(t).Status; got != tt.status {
				t.Fatalf("expected %s, got %s", tt.status, got)
			}
		})
	}
}

func TestUnsupportedLanguage(t *testing.T) {
	f := newFixture(t, model.TestCase{Input: "5", Output: "25"})
	sink := &recordingSink{}
	f.svc.Process(context.Background(), f.job("ruby", sink))

	fatal := fatalMessage(t, sink.messages())
	if fatal.Error != "Unsupported language" || fatal.Detail != "Language 'ruby' is not supported." {
		t.Fatalf("unexpected fatal message: %+v", fatal)
	}
	if got := f.subs.only(t).Status; got != model.StatusRuntimeError {
		t.Fatalf("expected RUNTIME_ERROR, got %s", got)
	}
	if len(f.runtime.log()) != 0 {
		t.Fatalf("expected no sandbox work, got %v", f.runtime.log())
	}
}

func TestProblemErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		f := newFixture(t)
		sink := &recordingSink{}
		job := f.job("python", sink)
		job.ProblemID = "missing"
		f.svc.Process(context.Background(), job)

		fatal := fatalMessage(t, sink.messages())
		if fatal.Error != "Problem Not Found" || fatal.Detail != "Problem with ID 'missing' does not exist." {
			t.Fatalf("unexpected fatal message: %+v", fatal)
		}
		if got := f.subs.only(t).Status; got != model.StatusRuntimeError {
			t.Fatalf("expected RUNTIME_ERROR, got %s", got)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture(t)
		f.problems.err = appErr.New(appErr.DatabaseError).WithMessage("dial tcp 10.0.0.1:3306: refused")
		sink := &recordingSink{}
		f.svc.Process(context.Background(), f.job("python", sink))

		fatal := fatalMessage(t, sink.messages())
		if fatal.Error != "Internal Server Error" || strings.Contains(fatal.Detail, "10.0.0.1") {
			t.Fatalf("expected a generic internal error, got %+v", fatal)
		}
	})

	t.Run("no test cases", func(t *testing.T) {
		f := newFixture(t)
		sink := &recordingSink{}
		f.svc.Process(context.Background(), f.job("python", sink))

		fatal := fatalMessage(t, sink.messages())
		if fatal.Error != "No Test Cases" {
			t.Fatalf("unexpected fatal message: %+v", fatal)
		}
		if len(f.runtime.log()) != 0 {
			t.Fatalf("expected no sandbox work, got %v", f.runtime.log())
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		f := newFixture(t, model.TestCase{Input: "5", Output: "25"})
		spec := squareProblem()
		spec.ReturnType = "float"
		f.problems.specs["p1"] = spec
		sink := &recordingSink{}
		f.svc.Process(context.Background(), f.job("python", sink))

		fatal := fatalMessage(t, sink.messages())
		if fatal.Error != "Unsupported Type" {
			t.Fatalf("unexpected fatal message: %+v", fatal)
		}
		if got := f.subs.only(t).Status; got != model.StatusRuntimeError {
			t.Fatalf("expected RUNTIME_ERROR, got %s", got)
		}
	})
}

func TestInvalidTestCaseSkipsBuild(t *testing.T) {
	f := newFixture(t,
		model.TestCase{Input: "5", Output: "25"},
		model.TestCase{Input: "", Output: "0"},
	)
	spec := squareProblem()
	spec.Args = append(spec.Args, model.Arg{Name: "m", Type: "number"})
	f.problems.specs["p1"] = spec
	sink := &recordingSink{}
	f.svc.Process(context.Background(), f.job("python", sink))

	fatal := fatalMessage(t, sink.messages())
	if fatal.Error != "Invalid Test Case Input" {
		t.Fatalf("unexpected fatal message: %+v", fatal)
	}
	if !strings.Contains(fatal.Detail, "Expected 2 args, got 1 values") || !strings.Contains(fatal.Detail, `["n","m"]`) {
		t.Fatalf("unexpected detail %q", fatal.Detail)
	}
	if got := f.subs.only(t).Status; got != model.StatusRuntimeError {
		t.Fatalf("expected RUNTIME_ERROR, got %s", got)
	}
	if len(f.runtime.log()) != 0 {
		t.Fatalf("expected no sandbox build, got %v", f.runtime.log())
	}
	f.assertCleanedUp(t)
}

func TestBuildFailure(t *testing.T) {
	f := newFixture(t, model.TestCase{Input: "5", Output: "25"})
	f.runtime.buildErr = appErr.New(appErr.SandboxBuildFailed).WithMessage("failed to pull /var/lib/secret")
	sink := &recordingSink{}
	f.svc.Process(context.Background(), f.job("python", sink))

	fatal := fatalMessage(t, sink.messages())
	if fatal.Error != "Build Error" || strings.Contains(fatal.Detail, "/var/lib") {
		t.Fatalf("unexpected fatal message: %+v", fatal)
	}
	if got := f.subs.only(t).Status; got != model.StatusRuntimeError {
		t.Fatalf("expected RUNTIME_ERROR, got %s", got)
	}
	f.assertCleanedUp(t)
}

func TestCreateSubmissionFailure(t *testing.T) {
	f := newFixture(t, model.TestCase{Input: "5", Output: "25"})
	f.subs.createErr = errors.New("connection refused")
	sink := &recordingSink{}
	f.svc.Process(context.Background(), f.job("python", sink))

	fatal := fatalMessage(t, sink.messages())
	if fatal.Error != "Database Error" || fatal.Detail != "Failed to create submission in database." {
		t.Fatalf("unexpected fatal message: %+v", fatal)
	}
	if len(f.subs.updates) != 0 || len(f.published) != 0 {
		t.Fatalf("expected no status writes, got %v", f.subs.updates)
	}
}

func TestClosedSinkSkipsJob(t *testing.T) {
	f := newFixture(t, model.TestCase{Input: "5", Output: "25"})
	sink := &recordingSink{closed: true}
	f.svc.Process(context.Background(), f.job("python", sink))

	if got := f.subs.only(t).Status; got != model.StatusPending {
		t.Fatalf("expected PENDING, got %s", got)
	}
	if len(f.runtime.log()) != 0 {
		t.Fatalf("expected no sandbox work, got %v", f.runtime.log())
	}
	if len(f.published) != 0 {
		t.Fatalf("expected no final event, got %+v", f.published)
	}
}

func TestDisconnectMidRun(t *testing.T) {
	f := newFixture(t,
		model.TestCase{Input: "1", Output: "1"},
		model.TestCase{Input: "2", Output: "4"},
		model.TestCase{Input: "3", Output: "9"},
	)
	sink := &recordingSink{closeAfter: 1}
	f.svc.Process(context.Background(), f.job("python", sink))

	if got := len(sink.messages()); got != 1 {
		t.Fatalf("expected 1 message before disconnect, got %d", got)
	}
	if got := len(f.runtime.inputs); got != 1 {
		t.Fatalf("expected no further runs after disconnect, got %d", got)
	}
	if got := f.subs.only(t).Status; got != model.StatusPending {
		t.Fatalf("expected PENDING to be kept, got %s", got)
	}
	log := f.runtime.log()
	if log[len(log)-1] != "remove:runner-id-1" {
		t.Fatalf("expected cleanup after disconnect, got %v", log)
	}
	f.assertCleanedUp(t)
}

func TestTerminalStatusWrittenOnce(t *testing.T) {
	f := newFixture(t,
		model.TestCase{Input: "5", Output: "26"},
		model.TestCase{Input: "2", Output: "4"},
	)
	sink := &recordingSink{}
	f.svc.Process(context.Background(), f.job("python", sink))

	if len(f.subs.updates) != 1 || f.subs.updates[0] != model.StatusWrongAnswer {
		t.Fatalf("expected a single terminal write, got %v", f.subs.updates)
	}
	for _, msg := range sink.messages() {
		if _, ok := msg.(model.TerminalMessage); ok {
			t.Fatalf("unexpected terminal success message after a failure")
		}
	}
}
