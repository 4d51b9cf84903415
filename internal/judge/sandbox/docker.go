package sandbox

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/shlex"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"codejudge/internal/judge/sandbox/result"
	appErr "codejudge/pkg/errors"
)

const (
	recipeFileName     = ".judge.dockerfile"
	defaultMountPath   = "/app"
	defaultLauncher    = "sh /app/run.sh"
	defaultOutputLimit = 64 << 10
	killedExitCode     = 137
	cleanupTimeout     = 30 * time.Second
)

// dockerAPI is the subset of the engine client the runtime needs.
type dockerAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

// DockerConfig controls the docker runtime.
type DockerConfig struct {
	// Launcher is the command run inside the container.
	Launcher string `yaml:"launcher"`
	// MountPath is where the scratch directory is mounted.
	MountPath string `yaml:"mountPath"`
	// OutputLimitBytes caps captured stdout and stderr each.
	OutputLimitBytes int `yaml:"outputLimitBytes"`
}

// DockerRuntime runs programs through the local docker engine.
type DockerRuntime struct {
	api         dockerAPI
	launcher    []string
	mountPath   string
	outputLimit int
}

// NewDockerRuntime connects to the engine configured by the DOCKER_* environment.
func NewDockerRuntime(cfg DockerConfig) (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxUnavailable, "create docker client failed")
	}
	rt, err := newDockerRuntime(cli, cfg)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}
	return rt, nil
}

func newDockerRuntime(api dockerAPI, cfg DockerConfig) (*DockerRuntime, error) {
	if cfg.Launcher == "" {
		cfg.Launcher = defaultLauncher
	}
	if cfg.MountPath == "" {
		cfg.MountPath = defaultMountPath
	}
	if cfg.OutputLimitBytes <= 0 {
		cfg.OutputLimitBytes = defaultOutputLimit
	}
	launcher, err := shlex.Split(cfg.Launcher)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse launcher command failed")
	}
	if len(launcher) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("launcher command is empty")
	}
	return &DockerRuntime{
		api:         api,
		launcher:    launcher,
		mountPath:   cfg.MountPath,
		outputLimit: cfg.OutputLimitBytes,
	}, nil
}

// Close releases the engine client.
func (d *DockerRuntime) Close() error {
	return d.api.Close()
}

// BuildImage builds spec.Tag from the recipe using spec.ContextDir as context.
func (d *DockerRuntime) BuildImage(ctx context.Context, spec BuildSpec) (string, error) {
	recipe, err := os.ReadFile(spec.RecipePath)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.SandboxBuildFailed, "read build recipe failed")
	}
	if err := os.WriteFile(filepath.Join(spec.ContextDir, recipeFileName), recipe, 0o644); err != nil {
		return "", appErr.Wrapf(err, appErr.JudgeSystemError, "stage build recipe failed")
	}
	tar, err := archive.TarWithOptions(spec.ContextDir, &archive.TarOptions{})
	if err != nil {
		return "", appErr.Wrapf(err, appErr.JudgeSystemError, "archive build context failed")
	}
	defer tar.Close()

	resp, err := d.api.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:        []string{spec.Tag},
		Dockerfile:  recipeFileName,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return "", d.wrap(err, appErr.SandboxBuildFailed, "image build failed")
	}
	defer resp.Body.Close()

	var progress bytes.Buffer
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, &limitedBuffer{limit: d.outputLimit, buf: &progress}, 0, false, nil); err != nil {
		return "", appErr.Wrapf(err, appErr.SandboxBuildFailed, "image build failed: %s", err.Error())
	}
	return spec.Tag, nil
}

// RunContained runs the launcher in a fresh network-less container and waits
// up to spec.Timeout. On deadline the container is killed and TimedOut is set.
// OOMKilled comes from the engine's container state, not from the exit code.
func (d *DockerRuntime) RunContained(ctx context.Context, spec RunSpec) (result.RunResult, error) {
	created, err := d.api.ContainerCreate(ctx,
		&container.Config{
			Image:           spec.Image,
			Cmd:             d.launcher,
			WorkingDir:      d.mountPath,
			NetworkDisabled: true,
			AttachStdout:    true,
			AttachStderr:    true,
		},
		&container.HostConfig{
			NetworkMode: "none",
			Binds:       []string{spec.HostDir + ":" + d.mountPath},
		}, nil, nil, "")
	if err != nil {
		return result.RunResult{}, d.wrap(err, appErr.JudgeSystemError, "create container failed")
	}
	defer d.removeContainer(created.ID)

	start := time.Now()
	if err := d.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return result.RunResult{}, d.wrap(err, appErr.JudgeSystemError, "start container failed")
	}

	waitCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()
	statusCh, errCh := d.api.ContainerWait(waitCtx, created.ID, container.WaitConditionNotRunning)

	var res result.RunResult
	select {
	case status := <-statusCh:
		res.ExitCode = int(status.StatusCode)
		res.OOMKilled = d.oomKilled(created.ID)
	case err := <-errCh:
		if ctx.Err() != nil {
			d.kill(created.ID)
			return result.RunResult{}, appErr.Wrapf(ctx.Err(), appErr.Timeout, "run cancelled")
		}
		if waitCtx.Err() == nil {
			return result.RunResult{}, d.wrap(err, appErr.JudgeSystemError, "wait container failed")
		}
		d.kill(created.ID)
		res.TimedOut = true
		res.ExitCode = killedExitCode
	}
	res.Duration = time.Since(start)

	if err := d.collectLogs(created.ID, &res); err != nil {
		return result.RunResult{}, err
	}
	return res, nil
}

// oomKilled reports whether the kernel OOM killer stopped the container.
// An inspect failure counts as no.
func (d *DockerRuntime) oomKilled(containerID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	info, err := d.api.ContainerInspect(ctx, containerID)
	if err != nil || info.ContainerJSONBase == nil || info.State == nil {
		return false
	}
	return info.State.OOMKilled
}

// RemoveImage removes an image. A missing image is not an error.
func (d *DockerRuntime) RemoveImage(ctx context.Context, imageID string) error {
	_, err := d.api.ImageRemove(ctx, imageID, image.RemoveOptions{Force: true, PruneChildren: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return d.wrap(err, appErr.JudgeSystemError, "remove image failed")
	}
	return nil
}

func (d *DockerRuntime) collectLogs(containerID string, res *result.RunResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	logs, err := d.api.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return d.wrap(err, appErr.JudgeSystemError, "read container logs failed")
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(
		&limitedBuffer{limit: d.outputLimit, buf: &stdout},
		&limitedBuffer{limit: d.outputLimit, buf: &stderr},
		logs,
	); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "demultiplex container logs failed")
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	return nil
}

func (d *DockerRuntime) kill(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	_ = d.api.ContainerKill(ctx, containerID, "KILL")
}

func (d *DockerRuntime) removeContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	_ = d.api.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

func (d *DockerRuntime) wrap(err error, code appErr.ErrorCode, msg string) error {
	if client.IsErrConnectionFailed(err) {
		return appErr.Wrapf(err, appErr.SandboxUnavailable, "docker engine unreachable")
	}
	return appErr.Wrapf(err, code, "%s: %s", msg, err.Error())
}

// limitedBuffer keeps the first limit bytes and discards the rest while
// reporting full writes, so stream copies never fail on large output.
type limitedBuffer struct {
	limit int
	buf   *bytes.Buffer
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := l.limit - l.buf.Len(); room > 0 {
		if len(p) > room {
			l.buf.Write(p[:room])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}
