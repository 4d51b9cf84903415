package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"codejudge/internal/judge/model"
	"codejudge/pkg/utils/logger"
)

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *Service) createSubmission(ctx context.Context, sub *model.Submission) error {
	ctxStore, cancel := s.storeContext(ctx)
	defer cancel()
	return s.submissions.Create(ctxStore, sub)
}

// updateStatus persists a terminal status. Store failures are logged only.
func (s *Service) updateStatus(ctx context.Context, submissionID string, status model.SubmissionStatus) {
	ctxStore, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.submissions.UpdateStatus(ctxStore, submissionID, status); err != nil {
		logger.Error(ctx, "update submission status failed", zap.String("status", string(status)), zap.Error(err))
	}
}

func (s *Service) recordTestCase(ctx context.Context, tc model.SubmittedTestCase) {
	ctxStore, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.submissions.AddTestCase(ctxStore, tc); err != nil {
		logger.Error(ctx, "record test case failed", zap.Int("position", tc.Position), zap.Error(err))
	}
}

func (s *Service) loadProblem(ctx context.Context, problemID string) (model.ProblemSpec, error) {
	ctxStore, cancel := s.storeContext(ctx)
	defer cancel()
	return s.problems.GetSpec(ctxStore, problemID)
}

func (s *Service) loadTestCases(ctx context.Context, problemID string) ([]model.TestCase, error) {
	ctxStore, cancel := s.storeContext(ctx)
	defer cancel()
	return s.problems.ListTestCases(ctxStore, problemID)
}

// archiveSource stores the submitted code. Failures are logged only.
func (s *Service) archiveSource(ctx context.Context, submissionID, fileName, code string) {
	if s.archive == nil {
		return
	}
	ctxStore, cancel := s.storeContext(ctx)
	defer cancel()
	key, err := s.archive.Store(ctxStore, submissionID, fileName, code)
	if err != nil {
		logger.Warn(ctx, "archive source failed", zap.Error(err))
		return
	}
	logger.Debug(ctx, "source archived", zap.String("key", key))
}

// publish emits the final status event once a terminal status was reached.
func (r *run) publish(ctx context.Context) {
	s := r.svc
	if s.publisher == nil || r.terminal == "" {
		return
	}
	ctxStore, cancel := s.storeContext(context.WithoutCancel(ctx))
	defer cancel()
	err := s.publisher.PublishFinalStatus(ctxStore, model.StatusEvent{
		SubmissionID: r.sub.ID,
		UserID:       r.sub.UserID,
		ProblemID:    r.sub.ProblemID,
		Language:     model.StoredLanguage(r.sub.Language),
		Status:       r.terminal,
		PassedTests:  r.passed,
		TotalTests:   r.total,
		CreatedAt:    time.Now().Unix(),
	})
	if err != nil {
		logger.Warn(ctx, "publish final status failed", zap.Error(err))
	}
}
