package sandbox_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"codejudge/internal/judge/sandbox"
	"codejudge/internal/judge/sandbox/result"
	appErr "codejudge/pkg/errors"
)

type fakeRuntime struct {
	mu        sync.Mutex
	calls     []string
	builds    []sandbox.BuildSpec
	runs      []sandbox.RunSpec
	inputs    []string
	buildErr  error
	removeErr error
}

func (f *fakeRuntime) BuildImage(ctx context.Context, spec sandbox.BuildSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "build")
	f.builds = append(f.builds, spec)
	if f.buildErr != nil {
		return "", f.buildErr
	}
	return spec.Tag, nil
}

func (f *fakeRuntime) RunContained(ctx context.Context, spec sandbox.RunSpec) (result.RunResult, error) {
	data, _ := os.ReadFile(filepath.Join(spec.HostDir, "input.txt"))
	f.mu.Lock()
	f.calls = append(f.calls, "run")
	f.runs = append(f.runs, spec)
	f.inputs = append(f.inputs, string(data))
	f.mu.Unlock()
	return result.RunResult{Stdout: "ok\n"}, nil
}

func (f *fakeRuntime) RemoveImage(ctx context.Context, imageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "remove:"+imageID)
	return f.removeErr
}

func newRunner(t *testing.T, rt sandbox.Runtime) (*sandbox.Runner, string) {
	t.Helper()
	root := t.TempDir()
	recipes := t.TempDir()
	if err := os.WriteFile(filepath.Join(recipes, "cpp.dockerfile"), []byte("FROM gcc:13\n"), 0o644); err != nil {
		t.Fatalf("write recipe: %v", err)
	}
	return sandbox.NewRunner(sandbox.Config{WorkRoot: root, RecipeDir: recipes}, rt, nil), root
}

func cppWorkload() sandbox.Workload {
	return sandbox.Workload{
		JobID:      "job-1",
		Language:   "cpp",
		FileName:   "main.cpp",
		Program:    "int main() { return 0; }",
		CompileCmd: "g++ main.cpp -o main -O2 -std=c++17",
		ExecCmd:    "./main",
		Recipe:     "cpp",
	}
}

func TestLauncherScript(t *testing.T) {
	got := sandbox.LauncherScript("g++ main.cpp -o main", "./main", "/app/input.txt")
	want := "#!/bin/sh\nset -e\ng++ main.cpp -o main || exit 97\n./main < /app/input.txt\n"
	if got != want {
		t.Fatalf("unexpected launcher:\n%s", got)
	}
	got = sandbox.LauncherScript("", "python3 main.py", "/app/input.txt")
	if strings.Contains(got, "exit 97") || !strings.HasSuffix(got, "python3 main.py < /app/input.txt\n") {
		t.Fatalf("unexpected launcher without compile step:\n%s", got)
	}
}

func TestSessionLifecycle(t *testing.T) {
	rt := &fakeRuntime{}
	runner, root := newRunner(t, rt)
	ctx := context.Background()

	session, err := runner.Open(ctx, cppWorkload())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if session.Dir() != filepath.Join(root, "code-job-1") || session.Image() != "runner-job-1" {
		t.Fatalf("unexpected session: dir=%s image=%s", session.Dir(), session.Image())
	}
	program, err := os.ReadFile(filepath.Join(session.Dir(), "main.cpp"))
	if err != nil || string(program) != "int main() { return 0; }" {
		t.Fatalf("program not written: %q %v", program, err)
	}
	if _, err := os.Stat(filepath.Join(session.Dir(), "run.sh")); err != nil {
		t.Fatalf("launcher not written: %v", err)
	}
	if got := rt.builds[0].RecipePath; !strings.HasSuffix(got, "cpp.dockerfile") {
		t.Fatalf("unexpected recipe path %s", got)
	}

	for _, in := range []string{"1", "2\n3"} {
		if _, err := session.Run(ctx, in, time.Second); err != nil {
			t.Fatalf("run failed: %v", err)
		}
	}
	if rt.inputs[0] != "1\n" || rt.inputs[1] != "2\n3\n" {
		t.Fatalf("unexpected inputs: %q", rt.inputs)
	}
	if rt.runs[0].Timeout != time.Second || rt.runs[0].Image != "runner-job-1" {
		t.Fatalf("unexpected run spec: %+v", rt.runs[0])
	}

	session.Close(ctx)
	session.Close(ctx)
	if _, err := os.Stat(session.Dir()); !os.IsNotExist(err) {
		t.Fatalf("scratch directory should be removed, stat err=%v", err)
	}
	want := "build,run,run,remove:runner-job-1"
	if got := strings.Join(rt.calls, ","); got != want {
		t.Fatalf("expected calls %s, got %s", want, got)
	}
	if _, err := session.Run(ctx, "1", time.Second); err == nil {
		t.Fatalf("run after close should fail")
	}
}

func TestOpenBuildFailureCleansUp(t *testing.T) {
	rt := &fakeRuntime{buildErr: errors.New("no such base image")}
	runner, root := newRunner(t, rt)

	_, err := runner.Open(context.Background(), cppWorkload())
	if !appErr.Is(err, appErr.SandboxBuildFailed) {
		t.Fatalf("expected SandboxBuildFailed, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "code-job-1")); !os.IsNotExist(statErr) {
		t.Fatalf("scratch directory should be removed after failed build")
	}
	for _, c := range rt.calls {
		if strings.HasPrefix(c, "remove:") {
			t.Fatalf("no image to remove after failed build, calls=%v", rt.calls)
		}
	}
}

func TestCloseSwallowsCleanupErrors(t *testing.T) {
	rt := &fakeRuntime{removeErr: errors.New("image in use")}
	runner, _ := newRunner(t, rt)
	session, err := runner.Open(context.Background(), cppWorkload())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	session.Close(context.Background())
	if _, err := os.Stat(session.Dir()); !os.IsNotExist(err) {
		t.Fatalf("directory must be removed even when image removal fails")
	}
}

func TestOpenRejectsDuplicateJob(t *testing.T) {
	rt := &fakeRuntime{}
	runner, _ := newRunner(t, rt)
	first, err := runner.Open(context.Background(), cppWorkload())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer first.Close(context.Background())
	if _, err := runner.Open(context.Background(), cppWorkload()); !appErr.Is(err, appErr.JudgeSystemError) {
		t.Fatalf("expected JudgeSystemError for colliding job id, got %v", err)
	}
}

func TestRelativeWorkRootIsMountedByAbsolutePath(t *testing.T) {
	cwd := t.TempDir()
	prevWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(cwd); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prevWD) })
	recipes := t.TempDir()
	if err := os.WriteFile(filepath.Join(recipes, "cpp.dockerfile"), []byte("FROM gcc:13\n"), 0o644); err != nil {
		t.Fatalf("write recipe: %v", err)
	}
	rt := &fakeRuntime{}
	runner := sandbox.NewRunner(sandbox.Config{WorkRoot: "./tmp", RecipeDir: recipes}, rt, nil)
	ctx := context.Background()

	session, err := runner.Open(ctx, cppWorkload())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer session.Close(ctx)
	if _, err := session.Run(ctx, "1", time.Second); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	hostDir := rt.runs[0].HostDir
	if !filepath.IsAbs(hostDir) {
		t.Fatalf("expected an absolute host dir, got %s", hostDir)
	}
	if want := filepath.Join(cwd, "tmp", "code-job-1"); hostDir != want {
		t.Fatalf("expected host dir %s, got %s", want, hostDir)
	}
	if rt.inputs[0] != "1\n" {
		t.Fatalf("input not staged under the resolved root: %q", rt.inputs[0])
	}
}
