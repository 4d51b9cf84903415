package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"codejudge/internal/judge/comparator"
	"codejudge/internal/judge/harness"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/repository"
	"codejudge/internal/judge/sandbox"
	"codejudge/internal/judge/sandbox/result"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/contextkey"
	"codejudge/pkg/utils/logger"
)

const (
	defaultRunTimeout   = 10 * time.Second
	defaultStoreTimeout = 5 * time.Second

	detailCreateFailed  = "Failed to create submission in database."
	detailNoTestCases   = "No test cases configured for this problem."
	detailBuildFailed   = "Failed to build the execution environment. Check the build recipe or server setup."
	detailFileSystem    = "Server encountered a file system issue."
	detailInternal      = "An unexpected error occurred on the server."
	detailSandboxFailed = "Execution failed: the sandbox could not run the program."
)

// Service runs judge jobs through the submission state machine.
type Service struct {
	submissions  repository.SubmissionRepository
	problems     repository.ProblemRepository
	generator    *harness.Generator
	runner       *sandbox.Runner
	publisher    repository.StatusEventPublisher
	archive      repository.SourceArchive
	runTimeout   time.Duration
	storeTimeout time.Duration
	newID        func() string
}

// Config holds service dependencies and settings.
type Config struct {
	Submissions repository.SubmissionRepository
	Problems    repository.ProblemRepository
	Generator   *harness.Generator
	Runner      *sandbox.Runner
	// Publisher and Archive are optional.
	Publisher    repository.StatusEventPublisher
	Archive      repository.SourceArchive
	RunTimeout   time.Duration
	StoreTimeout time.Duration
	// NewID generates submission and job identifiers. Defaults to random UUIDs.
	NewID func() string
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem repository is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("harness generator is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("sandbox runner is required")
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Service{
		submissions:  cfg.Submissions,
		problems:     cfg.Problems,
		generator:    cfg.Generator,
		runner:       cfg.Runner,
		publisher:    cfg.Publisher,
		archive:      cfg.Archive,
		runTimeout:   cfg.RunTimeout,
		storeTimeout: cfg.StoreTimeout,
		newID:        cfg.NewID,
	}, nil
}

// Process runs job to completion. Every failure is reported to the job's sink
// and logged; nothing is returned to the dispatcher.
func (s *Service) Process(ctx context.Context, job Job) {
	jobID := s.newID()
	ctx = context.WithValue(ctx, contextkey.JobID, jobID)
	ctx = context.WithValue(ctx, contextkey.UserID, job.UserID)
	start := time.Now()
	logger.Info(ctx, "job received", zap.String("lang", job.Lang), zap.String("problem_id", job.ProblemID))

	sub := &model.Submission{
		ID:        s.newID(),
		UserID:    job.UserID,
		ProblemID: job.ProblemID,
		Language:  job.Lang,
		Code:      job.Code,
		Status:    model.StatusPending,
	}
	if err := s.createSubmission(ctx, sub); err != nil {
		logger.Error(ctx, "create submission failed", zap.Error(err))
		s.send(ctx, job.Sink, model.FatalMessage{Error: model.FatalDatabase, Detail: detailCreateFailed})
		return
	}
	ctx = context.WithValue(ctx, contextkey.SubmissionID, sub.ID)
	logger.Info(ctx, "submission created")

	r := &run{svc: s, job: job, jobID: jobID, sub: sub}
	defer func() {
		r.publish(ctx)
		logger.Info(ctx, "job finished",
			zap.String("status", string(r.status())),
			zap.Int("passed", r.passed),
			zap.Int("total", r.total),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()

	if !job.Sink.Open() {
		logger.Info(ctx, "submitter disconnected before job start")
		return
	}
	r.execute(ctx)
}

// run is the mutable state of one job.
type run struct {
	svc      *Service
	job      Job
	jobID    string
	sub      *model.Submission
	terminal model.SubmissionStatus
	passed   int
	total    int
}

func (r *run) status() model.SubmissionStatus {
	if r.terminal == "" {
		return model.StatusPending
	}
	return r.terminal
}

func (r *run) execute(ctx context.Context) {
	s := r.svc
	profile, err := s.generator.Profile(r.job.Lang)
	if err != nil {
		logger.Warn(ctx, "unsupported language requested", zap.String("lang", r.job.Lang))
		r.abort(ctx, model.FatalUnsupportedLanguage, err.Error())
		return
	}
	s.archiveSource(ctx, r.sub.ID, profile.FileName, r.job.Code)

	problem, err := s.loadProblem(ctx, r.job.ProblemID)
	if err != nil {
		if appErr.Is(err, appErr.ProblemNotFound) {
			logger.Info(ctx, "problem not found", zap.String("problem_id", r.job.ProblemID))
			r.abort(ctx, model.FatalProblemNotFound, err.Error())
			return
		}
		logger.Error(ctx, "load problem failed", zap.Error(err))
		r.abort(ctx, model.FatalInternal, detailInternal)
		return
	}
	sig := harness.Signature{FunctionName: problem.FunctionName, Args: problem.Args, ReturnType: problem.ReturnType}
	resolved, err := s.generator.Resolve(sig)
	if err != nil {
		r.abortOnGenerate(ctx, err)
		return
	}
	program, err := s.generator.Generate(r.job.Lang, r.job.Code, sig)
	if err != nil {
		r.abortOnGenerate(ctx, err)
		return
	}

	cases, err := s.loadTestCases(ctx, r.job.ProblemID)
	if err != nil {
		logger.Error(ctx, "load test cases failed", zap.Error(err))
		r.abort(ctx, model.FatalInternal, detailInternal)
		return
	}
	if len(cases) == 0 {
		logger.Info(ctx, "problem has no test cases", zap.String("problem_id", r.job.ProblemID))
		r.abort(ctx, model.FatalNoTestCases, detailNoTestCases)
		return
	}
	prepared, err := prepareCases(cases, resolved, r.job.Lang)
	if err != nil {
		logger.Info(ctx, "invalid test case input", zap.Error(err))
		r.abort(ctx, model.FatalInvalidTestCase, err.Error())
		return
	}
	r.total = len(prepared)

	if !r.job.Sink.Open() {
		logger.Info(ctx, "submitter disconnected before sandbox build")
		return
	}
	session, err := s.runner.Open(ctx, sandbox.Workload{
		JobID:      r.jobID,
		Language:   profile.Language,
		FileName:   profile.FileName,
		Program:    program,
		CompileCmd: profile.CompileCmd,
		ExecCmd:    profile.ExecCmd,
		Recipe:     profile.Recipe,
	})
	if err != nil {
		r.abortOnSandbox(ctx, err)
		return
	}
	defer session.Close(ctx)

	r.runCases(ctx, session, profile, resolved, prepared)
}

func (r *run) runCases(ctx context.Context, session *sandbox.Session, profile harness.Profile, sig harness.ResolvedSignature, cases []preparedCase) {
	s := r.svc
	for i, tc := range cases {
		if !r.job.Sink.Open() {
			logger.Info(ctx, "submitter disconnected, stopping test cases", zap.Int("test_case", i+1))
			return
		}
		res, runErr := session.Run(ctx, tc.Encoded, s.runTimeout)
		msg, status := s.evaluate(ctx, profile, sig, i+1, tc, res, runErr)
		logger.Info(ctx, "test case evaluated",
			zap.Int("test_case", i+1),
			zap.String("status", string(status)),
			zap.Duration("duration", res.Duration),
		)
		s.recordTestCase(ctx, model.SubmittedTestCase{
			SubmissionID:   r.sub.ID,
			Position:       i,
			Status:         status,
			Input:          tc.Input,
			ExpectedOutput: tc.Output,
			Output:         res.Stdout,
		})
		if status != model.StatusAccepted {
			r.conclude(ctx, status)
			s.send(ctx, r.job.Sink, msg)
			return
		}
		r.passed++
		s.send(ctx, r.job.Sink, msg)
	}
	r.conclude(ctx, model.StatusAccepted)
	s.send(ctx, r.job.Sink, model.TerminalMessage{Status: model.AllPassedStatus})
}

// evaluate classifies one run and builds its result message. The returned
// status is ACCEPTED for a passing case.
func (s *Service) evaluate(ctx context.Context, profile harness.Profile, sig harness.ResolvedSignature, num int, tc preparedCase, res result.RunResult, runErr error) (model.TestCaseMessage, model.SubmissionStatus) {
	msg := model.TestCaseMessage{TestCase: num, Input: tc.Input, Expected: tc.Output}
	if runErr != nil {
		logger.Error(ctx, "sandbox run failed", zap.Int("test_case", num), zap.Error(runErr))
		msg.Error = &model.TestCaseError{Type: model.StatusRuntimeError, Detail: detailSandboxFailed}
		return msg, model.StatusRuntimeError
	}
	if failure, failed := profile.Classify(res, s.runTimeout); failed {
		msg.Error = &model.TestCaseError{Type: failure.Status, Detail: failure.Detail}
		return msg, failure.Status
	}
	actual := strings.TrimSpace(res.Stdout)
	msg.Actual = &actual
	cmp, err := comparator.Compare(sig.Return, res.Stdout, tc.Output)
	if err != nil {
		logger.Error(ctx, "compare output failed", zap.Int("test_case", num), zap.Error(err))
		msg.Actual = nil
		msg.Error = &model.TestCaseError{Type: model.StatusRuntimeError, Detail: detailInternal}
		return msg, model.StatusRuntimeError
	}
	if cmp.DecodeErr != nil {
		logger.Debug(ctx, "output does not decode as return type", zap.Int("test_case", num), zap.Error(cmp.DecodeErr))
	}
	msg.Passed = cmp.Passed
	if !cmp.Passed {
		return msg, model.StatusWrongAnswer
	}
	return msg, model.StatusAccepted
}

func (r *run) abortOnGenerate(ctx context.Context, err error) {
	if appErr.Is(err, appErr.UnsupportedType) {
		logger.Info(ctx, "problem uses an unsupported type", zap.Error(err))
		r.abort(ctx, model.FatalUnsupportedType, err.Error())
		return
	}
	logger.Error(ctx, "generate harness failed", zap.Error(err))
	r.abort(ctx, model.FatalInternal, detailInternal)
}

func (r *run) abortOnSandbox(ctx context.Context, err error) {
	switch appErr.GetCode(err) {
	case appErr.SandboxBuildFailed:
		logger.Error(ctx, "sandbox build failed", zap.Error(err))
		r.abort(ctx, model.FatalBuild, detailBuildFailed)
	case appErr.JudgeSystemError:
		logger.Error(ctx, "sandbox scratch space failed", zap.Error(err))
		r.abort(ctx, model.FatalFileSystem, detailFileSystem)
	default:
		logger.Error(ctx, "open sandbox failed", zap.Error(err))
		r.abort(ctx, model.FatalInternal, detailInternal)
	}
}

// abort marks the submission RUNTIME_ERROR and reports a fatal message.
func (r *run) abort(ctx context.Context, title, detail string) {
	r.conclude(ctx, model.StatusRuntimeError)
	r.svc.send(ctx, r.job.Sink, model.FatalMessage{Error: title, Detail: detail})
}

// conclude sets the terminal status once. Later calls are ignored.
func (r *run) conclude(ctx context.Context, status model.SubmissionStatus) bool {
	if r.terminal != "" {
		logger.Warn(ctx, "terminal status already set",
			zap.String("status", string(r.terminal)),
			zap.String("rejected", string(status)),
		)
		return false
	}
	r.terminal = status
	r.svc.updateStatus(ctx, r.sub.ID, status)
	return true
}

func (s *Service) send(ctx context.Context, sink Sink, msg model.Message) {
	if sink == nil || !sink.Open() {
		return
	}
	if err := sink.Send(ctx, msg); err != nil {
		logger.Warn(ctx, "send result message failed", zap.Error(err))
	}
}
