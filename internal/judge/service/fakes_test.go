package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"codejudge/internal/judge/harness"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/sandbox"
	"codejudge/internal/judge/sandbox/result"
	"codejudge/internal/judge/service"
	appErr "codejudge/pkg/errors"
)

type memorySubmissions struct {
	mu        sync.Mutex
	createErr error
	subs      map[string]*model.Submission
	updates   []model.SubmissionStatus
	cases     []model.SubmittedTestCase
}

func newMemorySubmissions() *memorySubmissions {
	return &memorySubmissions{subs: make(map[string]*model.Submission)}
}

func (m *memorySubmissions) Create(_ context.Context, sub *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	copied := *sub
	m.subs[sub.ID] = &copied
	return nil
}

func (m *memorySubmissions) UpdateStatus(_ context.Context, id string, status model.SubmissionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, status)
	sub, ok := m.subs[id]
	if !ok || sub.Status != model.StatusPending {
		return appErr.New(appErr.SubmissionFinalized)
	}
	sub.Status = status
	return nil
}

func (m *memorySubmissions) AddTestCase(_ context.Context, tc model.SubmittedTestCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases = append(m.cases, tc)
	return nil
}

func (m *memorySubmissions) ListByUser(context.Context, string, int) ([]model.SubmissionSummary, error) {
	return nil, nil
}

func (m *memorySubmissions) GetDetail(context.Context, string) (*model.SubmissionDetail, error) {
	return nil, appErr.New(appErr.SubmissionNotFound)
}

// only returns the single stored submission.
func (m *memorySubmissions) only(t *testing.T) model.Submission {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.subs) != 1 {
		t.Fatalf("expected one submission, got %d", len(m.subs))
	}
	for _, sub := range m.subs {
		return *sub
	}
	return model.Submission{}
}

type memoryProblems struct {
	specs map[string]model.ProblemSpec
	cases map[string][]model.TestCase
	err   error
}

func (p *memoryProblems) GetSpec(_ context.Context, id string) (model.ProblemSpec, error) {
	if p.err != nil {
		return model.ProblemSpec{}, p.err
	}
	spec, ok := p.specs[id]
	if !ok {
		return model.ProblemSpec{}, appErr.Newf(appErr.ProblemNotFound, "Problem with ID '%s' does not exist.", id)
	}
	return spec, nil
}

func (p *memoryProblems) ListTestCases(_ context.Context, id string) ([]model.TestCase, error) {
	return p.cases[id], nil
}

// recordingSink collects messages and can disconnect after a number of sends.
type recordingSink struct {
	mu         sync.Mutex
	msgs       []model.Message
	closed     bool
	closeAfter int
}

func (s *recordingSink) Send(_ context.Context, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("sink closed")
	}
	s.msgs = append(s.msgs, msg)
	if s.closeAfter > 0 && len(s.msgs) >= s.closeAfter {
		s.closed = true
	}
	return nil
}

func (s *recordingSink) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *recordingSink) messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.msgs...)
}

// scriptedRuntime answers runs by the staged input and logs every call.
type scriptedRuntime struct {
	mu       sync.Mutex
	events   []string
	inputs   []string
	buildErr error
	respond  func(input string) result.RunResult
}

func (r *scriptedRuntime) BuildImage(_ context.Context, spec sandbox.BuildSpec) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "build:"+spec.Tag)
	if r.buildErr != nil {
		return "", r.buildErr
	}
	return spec.Tag, nil
}

func (r *scriptedRuntime) RunContained(_ context.Context, spec sandbox.RunSpec) (result.RunResult, error) {
	data, err := os.ReadFile(filepath.Join(spec.HostDir, "input.txt"))
	if err != nil {
		return result.RunResult{}, err
	}
	r.mu.Lock()
	r.events = append(r.events, "run:"+spec.Image)
	r.inputs = append(r.inputs, string(data))
	respond := r.respond
	r.mu.Unlock()
	if respond == nil {
		return result.RunResult{}, nil
	}
	return respond(string(data)), nil
}

func (r *scriptedRuntime) RemoveImage(_ context.Context, imageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "remove:"+imageID)
	return nil
}

func (r *scriptedRuntime) log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fixture struct {
	svc       *service.Service
	subs      *memorySubmissions
	problems  *memoryProblems
	runtime   *scriptedRuntime
	workRoot  string
	published []model.StatusEvent
}

func (f *fixture) PublishFinalStatus(_ context.Context, event model.StatusEvent) error {
	f.published = append(f.published, event)
	return nil
}

func squareProblem() model.ProblemSpec {
	return model.ProblemSpec{
		ID:           "p1",
		Title:        "Square",
		FunctionName: "square",
		Args:         []model.Arg{{Name: "n", Type: "number"}},
		ReturnType:   "number",
	}
}

// squareOutput answers each input n with n*n.
func squareOutput(input string) result.RunResult {
	var n int
	if _, err := fmt.Sscanf(input, "%d", &n); err != nil {
		return result.RunResult{Stderr: "ERROR: bad input", ExitCode: 1}
	}
	return result.RunResult{Stdout: fmt.Sprintf("%d\n", n*n)}
}

func newFixture(t *testing.T, cases ...model.TestCase) *fixture {
	t.Helper()
	f := &fixture{
		subs: newMemorySubmissions(),
		problems: &memoryProblems{
			specs: map[string]model.ProblemSpec{"p1": squareProblem()},
			cases: map[string][]model.TestCase{"p1": cases},
		},
		runtime:  &scriptedRuntime{respond: squareOutput},
		workRoot: t.TempDir(),
	}
	var (
		mu   sync.Mutex
		next int
	)
	runner := sandbox.NewRunner(sandbox.Config{WorkRoot: f.workRoot, RecipeDir: t.TempDir()}, f.runtime, nil)
	svc, err := service.NewService(service.Config{
		Submissions: f.subs,
		Problems:    f.problems,
		Generator:   harness.NewGenerator(harness.DefaultProfiles()),
		Runner:      runner,
		Publisher:   f,
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			next++
			return fmt.Sprintf("id-%d", next)
		},
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) job(lang string, sink *recordingSink) service.Job {
	return service.Job{UserID: "u1", Lang: lang, Code: "def square(n):\n    return n * n\n", ProblemID: "p1", Sink: sink}
}

func (f *fixture) assertCleanedUp(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.workRoot)
	if err != nil {
		t.Fatalf("read work root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected scratch space removed, found %d entries", len(entries))
	}
}
