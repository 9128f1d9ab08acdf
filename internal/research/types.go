// Package research orchestrates asynchronous research jobs: it owns the job
// lifecycle, collects the facts an Engine reports while it runs and stores the
// final report.
package research

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool { return s == StatusDone || s == StatusFailed }

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusDone || next == StatusFailed
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }

type Job struct {
	ID        string
	UserID    string
	Topic     string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fact is one discovery recorded while a job runs.
type Fact struct {
	ID         int64
	JobID      string
	Text       string
	Source     string
	CapturedAt time.Time
}

// Report is the terminal artifact of a successful job.
type Report struct {
	JobID     string
	Title     string
	Outline   []string
	Body      string
	Sources   []string
	WordCount int
	CreatedAt time.Time
}

// ErrInvalidReport wraps every reason a report is rejected.
var ErrInvalidReport = errors.New("invalid report")

// Validate rejects reports that cannot be shown to a user. A zero word count
// on a non-empty body is filled in from the body.
func (r *Report) Validate() error {
	if r == nil {
		return errors.Join(ErrInvalidReport, errors.New("engine returned no report"))
	}
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return errors.Join(ErrInvalidReport, errors.New("title is empty"))
	}
	if strings.TrimSpace(r.Body) == "" {
		return errors.Join(ErrInvalidReport, errors.New("body is empty"))
	}
	if len(r.Outline) == 0 {
		return errors.Join(ErrInvalidReport, errors.New("outline is empty"))
	}
	if r.WordCount < 0 {
		return errors.Join(ErrInvalidReport, errors.New("word count is negative"))
	}
	if r.WordCount == 0 {
		r.WordCount = len(strings.Fields(r.Body))
	}
	return nil
}

// JobStatus is the polling view of a job.
type JobStatus struct {
	Job   Job
	Facts []Fact
}

// FactSink receives facts while an Engine runs. Each Record call is durable
// once it returns nil.
type FactSink interface {
	Record(ctx context.Context, text, source string) error
}

// Engine performs the research for one topic.
type Engine interface {
	Run(ctx context.Context, topic string, sink FactSink) (*Report, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, topic string, sink FactSink) (*Report, error)

func (f EngineFunc) Run(ctx context.Context, topic string, sink FactSink) (*Report, error) {
	return f(ctx, topic, sink)
}

// EngineResolver builds the Engine used for a job owned by userID.
type EngineResolver func(ctx context.Context, userID string) (Engine, error)

// StaticEngine resolves every user to the same engine.
func StaticEngine(e Engine) EngineResolver {
	return func(context.Context, string) (Engine, error) { return e, nil }
}
