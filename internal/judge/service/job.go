package service

import (
	"context"

	"codejudge/internal/judge/model"
)

// Sink receives the ordered result messages of one job.
type Sink interface {
	// Send delivers msg. Sends after the sink closed are dropped.
	Send(ctx context.Context, msg model.Message) error
	// Open reports whether the submitter is still connected.
	Open() bool
}

// Job is one submitter's request to run code against a problem.
type Job struct {
	UserID    string
	Lang      string
	Code      string
	ProblemID string
	Sink      Sink
}
