// Package sandbox builds per-job images and runs untrusted programs in
// network-isolated containers.
package sandbox

import (
	"context"
	"time"

	"codejudge/internal/judge/sandbox/result"
)

// BuildSpec describes one image build.
type BuildSpec struct {
	// Tag is the image tag to produce, unique per job.
	Tag string
	// ContextDir is the host directory sent as the build context.
	ContextDir string
	// RecipePath is the host path of the build recipe.
	RecipePath string
}

// RunSpec describes one contained execution.
type RunSpec struct {
	Image   string
	HostDir string
	Timeout time.Duration
}

// Runtime is the process-supervision boundary around the container engine.
type Runtime interface {
	BuildImage(ctx context.Context, spec BuildSpec) (string, error)
	RunContained(ctx context.Context, spec RunSpec) (result.RunResult, error)
	RemoveImage(ctx context.Context, imageID string) error
}
