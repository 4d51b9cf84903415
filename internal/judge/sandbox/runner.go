package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codejudge/internal/judge/sandbox/observer"
	"codejudge/internal/judge/sandbox/result"
	appErr "codejudge/pkg/errors"
)

const (
	launcherFileName    = "run.sh"
	inputFileName       = "input.txt"
	defaultBuildTimeout = 60 * time.Second
)

// Config controls scratch space and image builds.
type Config struct {
	WorkRoot     string        `yaml:"workRoot"`
	RecipeDir    string        `yaml:"recipeDir"`
	BuildTimeout time.Duration `yaml:"buildTimeout"`
	MountPath    string        `yaml:"mountPath"`
}

// Workload is one job's program and how to build and run it.
type Workload struct {
	JobID      string
	Language   string
	FileName   string
	Program    string
	CompileCmd string
	ExecCmd    string
	Recipe     string
}

// Runner prepares sandboxes on a Runtime.
type Runner struct {
	cfg      Config
	runtime  Runtime
	observer observer.Observer
}

// NewRunner creates a runner. A nil observer logs through the global logger.
// WorkRoot is resolved against the working directory because scratch
// directories are bind-mounted by host path.
func NewRunner(cfg Config, rt Runtime, obs observer.Observer) *Runner {
	if abs, err := filepath.Abs(cfg.WorkRoot); err == nil {
		cfg.WorkRoot = abs
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = defaultBuildTimeout
	}
	if cfg.MountPath == "" {
		cfg.MountPath = defaultMountPath
	}
	if obs == nil {
		obs = observer.LogObserver{}
	}
	return &Runner{cfg: cfg, runtime: rt, observer: obs}
}

// Open creates the scratch directory, writes the program and launcher, and
// builds the job image. On failure everything created so far is removed.
func (r *Runner) Open(ctx context.Context, w Workload) (*Session, error) {
	if w.JobID == "" || w.FileName == "" || w.ExecCmd == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("workload is incomplete")
	}
	if err := os.MkdirAll(r.cfg.WorkRoot, 0o755); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "create work root failed")
	}
	dir := filepath.Join(r.cfg.WorkRoot, "code-"+w.JobID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "create scratch directory failed")
	}
	s := &Session{runner: r, jobID: w.JobID, language: w.Language, dir: dir}

	if err := r.stage(dir, w); err != nil {
		s.Close(ctx)
		return nil, err
	}

	buildCtx, cancel := context.WithTimeout(ctx, r.cfg.BuildTimeout)
	defer cancel()
	start := time.Now()
	imageID, err := r.runtime.BuildImage(buildCtx, BuildSpec{
		Tag:        "runner-" + w.JobID,
		ContextDir: dir,
		RecipePath: filepath.Join(r.cfg.RecipeDir, w.Recipe+".dockerfile"),
	})
	r.observer.BuildFinished(ctx, w.Language, err, time.Since(start))
	if err != nil {
		s.Close(ctx)
		if appErr.GetCode(err) == appErr.SandboxBuildFailed {
			return nil, err
		}
		return nil, appErr.Wrapf(err, appErr.SandboxBuildFailed, "build sandbox image failed")
	}
	s.image = imageID
	return s, nil
}

func (r *Runner) stage(dir string, w Workload) error {
	if err := os.WriteFile(filepath.Join(dir, w.FileName), []byte(w.Program), 0o644); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "write program failed")
	}
	launcher := LauncherScript(w.CompileCmd, w.ExecCmd, r.cfg.MountPath+"/"+inputFileName)
	if err := os.WriteFile(filepath.Join(dir, launcherFileName), []byte(launcher), 0o755); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "write launcher failed")
	}
	return nil
}

// LauncherScript renders the shell launcher. A failing compile step exits
// with result.CompileFailedExitCode.
func LauncherScript(compileCmd, execCmd, inputPath string) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\nset -e\n")
	if strings.TrimSpace(compileCmd) != "" {
		fmt.Fprintf(&b, "%s || exit %d\n", compileCmd, result.CompileFailedExitCode)
	}
	fmt.Fprintf(&b, "%s < %s\n", execCmd, inputPath)
	return b.String()
}

// Session is a built sandbox owned by one job.
type Session struct {
	runner   *Runner
	jobID    string
	language string
	dir      string
	image    string

	mu     sync.Mutex
	closed bool
}

// Dir returns the host scratch directory.
func (s *Session) Dir() string { return s.dir }

// Image returns the built image tag.
func (s *Session) Image() string { return s.image }

// Run writes input to the job-local input file and executes the program once.
func (s *Session) Run(ctx context.Context, input string, timeout time.Duration) (result.RunResult, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return result.RunResult{}, appErr.New(appErr.JudgeSystemError).WithMessage("sandbox session is closed")
	}
	if !strings.HasSuffix(input, "\n") {
		input += "\n"
	}
	if err := os.WriteFile(filepath.Join(s.dir, inputFileName), []byte(input), 0o644); err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "write input failed")
	}
	res, err := s.runner.runtime.RunContained(ctx, RunSpec{Image: s.image, HostDir: s.dir, Timeout: timeout})
	s.runner.observer.RunFinished(ctx, s.language, res, err)
	return res, err
}

// Close removes the image and then the scratch directory. Failures are
// reported to the observer only. Calling Close more than once is a no-op.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	var imageErr error
	if s.image != "" {
		imageErr = s.runner.runtime.RemoveImage(context.WithoutCancel(ctx), s.image)
	}
	dirErr := os.RemoveAll(s.dir)
	s.runner.observer.CleanupFinished(ctx, imageErr, dirErr)
}
