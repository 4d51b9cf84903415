package model

import (
	"strings"
	"time"
)

// SubmissionStatus is the lifecycle state of a submission.
type SubmissionStatus string

const (
	StatusPending           SubmissionStatus = "PENDING"
	StatusAccepted          SubmissionStatus = "ACCEPTED"
	StatusWrongAnswer       SubmissionStatus = "WRONG_ANSWER"
	StatusTimeLimitExceeded SubmissionStatus = "TIME_LIMIT_EXCEEDED"
	StatusRuntimeError      SubmissionStatus = "RUNTIME_ERROR"
	StatusCompileError      SubmissionStatus = "COMPILE_ERROR"
)

// IsTerminal reports whether no further transition may follow s.
func (s SubmissionStatus) IsTerminal() bool {
	switch s {
	case StatusAccepted, StatusWrongAnswer, StatusTimeLimitExceeded, StatusRuntimeError, StatusCompileError:
		return true
	}
	return false
}

// Submission is the persistent record of one job.
type Submission struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	ProblemID string           `json:"problemId"`
	Language  string           `json:"language"`
	Code      string           `json:"code,omitempty"`
	Status    SubmissionStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// SubmittedTestCase is the audit record of one evaluated test case.
type SubmittedTestCase struct {
	SubmissionID   string           `json:"submissionId"`
	Position       int              `json:"position"`
	Status         SubmissionStatus `json:"status"`
	Input          string           `json:"input"`
	ExpectedOutput string           `json:"expectedOutput"`
	Output         string           `json:"output"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// SubmissionSummary is a list row of a user's submissions.
type SubmissionSummary struct {
	ID          string           `json:"id"`
	Status      SubmissionStatus `json:"status"`
	Language    string           `json:"language"`
	ProblemName string           `json:"problemName"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// SubmissionDetail is a submission together with its evaluated test cases.
type SubmissionDetail struct {
	Submission
	TestCases []SubmittedTestCase `json:"testCases"`
}

// StoredLanguage returns the persisted form of a language key.
func StoredLanguage(lang string) string {
	return strings.ToUpper(lang)
}
