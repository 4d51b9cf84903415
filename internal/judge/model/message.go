package model

// SubmitRequest is the inbound job message.
type SubmitRequest struct {
	Lang      string `json:"lang"`
	Code      string `json:"code"`
	ProblemID string `json:"problemId"`
}

// Message is any outbound message on the result channel.
type Message interface {
	messageKind() string
}

// TestCaseError describes an execution failure of one test case.
type TestCaseError struct {
	Type   SubmissionStatus `json:"type"`
	Detail string           `json:"detail"`
}

// TestCaseMessage reports the verdict of one test case.
type TestCaseMessage struct {
	TestCase int            `json:"testCase"`
	Input    string         `json:"input"`
	Expected string         `json:"expected"`
	Actual   *string        `json:"actual,omitempty"`
	Passed   bool           `json:"passed"`
	Error    *TestCaseError `json:"error,omitempty"`
}

// TerminalMessage closes a fully successful run.
type TerminalMessage struct {
	Status string `json:"status"`
}

// FatalMessage reports a job-level failure.
type FatalMessage struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (TestCaseMessage) messageKind() string { return "testCase" }
func (TerminalMessage) messageKind() string { return "terminal" }
func (FatalMessage) messageKind() string { return "fatal" }

// AllPassedStatus is the terminal status text sent after every test case passed.
const AllPassedStatus = "All test cases passed!"

// Fatal error titles sent to the submitter.
const (
	FatalInvalidMessage      = "Invalid message format"
	FatalDatabase            = "Database Error"
	FatalUnsupportedLanguage = "Unsupported language"
	FatalProblemNotFound     = "Problem Not Found"
	FatalUnsupportedType     = "Unsupported Type"
	FatalNoTestCases         = "No Test Cases"
	FatalInvalidTestCase     = "Invalid Test Case Input"
	FatalBuild               = "Build Error"
	FatalFileSystem          = "File System Error"
	FatalQueueFull           = "Queue Full"
	FatalInternal            = "Internal Server Error"
)

// StatusEventFinal marks the final status event of a submission.
const StatusEventFinal = "final"

// StatusEvent is published once a submission reaches a terminal status.
type StatusEvent struct {
	Type         string           `json:"type"`
	SubmissionID string           `json:"submissionId"`
	UserID       string           `json:"userId"`
	ProblemID    string           `json:"problemId"`
	Language     string           `json:"language"`
	Status       SubmissionStatus `json:"status"`
	PassedTests  int              `json:"passedTests"`
	TotalTests   int              `json:"totalTests"`
	CreatedAt    int64            `json:"createdAt"`
}
