package model

// Arg is one declared parameter of a problem's target function.
type Arg struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ProblemSpec is the function signature a submission must implement.
type ProblemSpec struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	FunctionName string `json:"functionName"`
	Args         []Arg  `json:"args"`
	ReturnType   string `json:"returnType"`
}

// TestCase is one stored input/expected-output pair. Position orders the cases of a problem.
type TestCase struct {
	ID       int64  `json:"id"`
	Position int    `json:"position"`
	Input    string `json:"input"`
	Output   string `json:"output"`
}
