// Package observer defines hooks around sandbox builds and runs.
package observer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"codejudge/internal/judge/sandbox/result"
	"codejudge/pkg/utils/logger"
)

// Observer receives sandbox lifecycle events.
type Observer interface {
	BuildFinished(ctx context.Context, language string, err error, elapsed time.Duration)
	RunFinished(ctx context.Context, language string, res result.RunResult, err error)
	CleanupFinished(ctx context.Context, imageErr, dirErr error)
}

// LogObserver writes sandbox events to the structured logger.
type LogObserver struct{}

// BuildFinished logs the outcome of an image build.
func (LogObserver) BuildFinished(ctx context.Context, language string, err error, elapsed time.Duration) {
	if err != nil {
		logger.Error(ctx, "sandbox build failed", zap.String("language", language), zap.Duration("elapsed", elapsed), zap.Error(err))
		return
	}
	logger.Info(ctx, "sandbox build finished", zap.String("language", language), zap.Duration("elapsed", elapsed))
}

// RunFinished logs one contained execution.
func (LogObserver) RunFinished(ctx context.Context, language string, res result.RunResult, err error) {
	if err != nil {
		logger.Error(ctx, "sandbox run failed", zap.String("language", language), zap.Error(err))
		return
	}
	logger.Debug(ctx, "sandbox run finished",
		zap.String("language", language),
		zap.Int("exit_code", res.ExitCode),
		zap.Bool("timed_out", res.TimedOut),
		zap.Duration("elapsed", res.Duration),
		zap.Int("stdout_bytes", len(res.Stdout)),
		zap.Int("stderr_bytes", len(res.Stderr)),
	)
}

// CleanupFinished logs cleanup failures. Cleanup never fails a job.
func (LogObserver) CleanupFinished(ctx context.Context, imageErr, dirErr error) {
	if imageErr != nil {
		logger.Warn(ctx, "remove sandbox image failed", zap.Error(imageErr))
	}
	if dirErr != nil {
		logger.Warn(ctx, "remove scratch directory failed", zap.Error(dirErr))
	}
	if imageErr == nil && dirErr == nil {
		logger.Debug(ctx, "sandbox cleaned up")
	}
}
