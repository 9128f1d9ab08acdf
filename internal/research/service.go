package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/researcher/internal/logger"
	"github.com/mohammad-safakhou/researcher/internal/store"
)

// Store is the persistence the orchestrator needs. *store.Store satisfies it.
type Store interface {
	CreateJob(ctx context.Context, job store.JobRecord) (store.JobRecord, error)
	GetJob(ctx context.Context, id string) (store.JobRecord, error)
	ListJobsByUser(ctx context.Context, userID string) ([]store.JobRecord, error)
	ListJobsByStatus(ctx context.Context, status string) ([]store.JobRecord, error)
	TransitionJob(ctx context.Context, id, from, to string) error
	CompleteJob(ctx context.Context, rep store.ReportRecord) error
	GetReport(ctx context.Context, jobID string) (store.ReportRecord, error)
	AppendFact(ctx context.Context, f store.FactRecord) (store.FactRecord, error)
	ListFacts(ctx context.Context, jobID string) ([]store.FactRecord, error)
}

var _ Store = (*store.Store)(nil)

// finishTimeout bounds the terminal status write once the engine has returned.
const finishTimeout = 5 * time.Second

// Service is the job orchestrator.
type Service struct {
	store      Store
	resolve    EngineResolver
	dispatcher *Dispatcher
	locker     Locker
	metrics    *Metrics
	log        *logger.Logger
}

type Option func(*Service)

// WithLocker enables cross-replica execution locks.
func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }

func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

func NewService(st Store, resolve EngineResolver, d *Dispatcher, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Service{
		store:      st,
		resolve:    resolve,
		dispatcher: d,
		log:        log.With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit creates a pending job and schedules it. It returns as soon as the
// job is persisted.
func (s *Service) Submit(ctx context.Context, userID, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", ErrEmptyTopic
	}
	rec, err := s.store.CreateJob(ctx, store.JobRecord{
		ID:     uuid.NewString(),
		UserID: userID,
		Topic:  topic,
		Status: store.JobStatusPending,
	})
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	s.metrics.jobSubmitted()
	s.log.Info("job submitted", "job_id", rec.ID, "user_id", userID)
	s.schedule(jobFromRecord(rec))
	return rec.ID, nil
}

func (s *Service) schedule(job Job) {
	err := s.dispatcher.Dispatch(func(ctx context.Context) {
		s.Execute(ctx, job)
	})
	if err != nil {
		// the row stays pending and is picked up by Recover on the next start
		s.log.Warn("job not scheduled", "job_id", job.ID, "error", err)
	}
}

// Execute runs one pending job to a terminal status. Failures never escape:
// they end as StatusFailed and an error log line.
func (s *Service) Execute(ctx context.Context, job Job) {
	log := s.log.With("job_id", job.ID)

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, job.ID)
		switch {
		case err != nil:
			log.Warn("job lock unavailable, relying on status check", "error", err)
		case !ok:
			log.Info("job already held by another worker")
			return
		default:
			defer release()
		}
	}

	if err := s.store.TransitionJob(ctx, job.ID, store.JobStatusPending, store.JobStatusRunning); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			log.Info("job no longer pending, skipping")
			return
		}
		log.Error("mark job running", "error", err)
		return
	}
	s.metrics.jobStarted()
	started := time.Now()
	log.Info("job running")

	status := s.complete(ctx, log, job)
	s.metrics.jobFinished(status, time.Since(started))
}

func (s *Service) complete(ctx context.Context, log *logger.Logger, job Job) Status {
	rep, err := s.invoke(ctx, job)

	// the terminal write must land even when the task context was cancelled
	// by a shutdown that gave up waiting
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if err == nil {
		err = rep.Validate()
	}
	if err != nil {
		log.Error("research engine failed", "error", err)
		s.fail(wctx, log, job.ID)
		return StatusFailed
	}
	err = s.store.CompleteJob(wctx, store.ReportRecord{
		JobID:     job.ID,
		Title:     rep.Title,
		Outline:   rep.Outline,
		Body:      rep.Body,
		Sources:   rep.Sources,
		WordCount: rep.WordCount,
	})
	if err != nil {
		log.Error("persist report", "error", err)
		s.fail(wctx, log, job.ID)
		return StatusFailed
	}
	log.Info("job done", "word_count", rep.WordCount)
	return StatusDone
}

// invoke resolves and runs the engine, converting panics into errors.
func (s *Service) invoke(ctx context.Context, job Job) (rep *Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			rep, err = nil, fmt.Errorf("engine panic: %v", r)
		}
	}()
	engine, err := s.resolve(ctx, job.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve engine: %w", err)
	}
	return engine.Run(ctx, job.Topic, &jobSink{svc: s, jobID: job.ID})
}

func (s *Service) fail(ctx context.Context, log *logger.Logger, jobID string) {
	if err := s.store.TransitionJob(ctx, jobID, store.JobStatusRunning, store.JobStatusFailed); err != nil {
		log.Error("mark job failed", "error", err)
	}
}

// owned loads a job and hides jobs of other users behind ErrNotFound.
func (s *Service) owned(ctx context.Context, jobID, userID string) (Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return Job{}, ErrNotFound
	}
	rec, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("load job: %w", err)
	}
	if rec.UserID != userID {
		return Job{}, ErrNotFound
	}
	return jobFromRecord(rec), nil
}

// GetStatus returns the job status and every fact recorded so far in capture order.
func (s *Service) GetStatus(ctx context.Context, jobID, userID string) (JobStatus, error) {
	job, err := s.owned(ctx, jobID, userID)
	if err != nil {
		return JobStatus{}, err
	}
	recs, err := s.store.ListFacts(ctx, job.ID)
	if err != nil {
		return JobStatus{}, fmt.Errorf("list facts: %w", err)
	}
	facts := make([]Fact, 0, len(recs))
	for _, r := range recs {
		facts = append(facts, Fact{ID: r.ID, JobID: r.JobID, Text: r.Fact, Source: r.Source, CapturedAt: r.CapturedAt})
	}
	return JobStatus{Job: job, Facts: facts}, nil
}

// GetReport returns the report of a done job, or a *NotReadyError otherwise.
func (s *Service) GetReport(ctx context.Context, jobID, userID string) (Report, error) {
	job, err := s.owned(ctx, jobID, userID)
	if err != nil {
		return Report{}, err
	}
	if job.Status != StatusDone {
		return Report{}, &NotReadyError{Status: job.Status}
	}
	rec, err := s.store.GetReport(ctx, job.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.log.Error("job is done but has no report", "job_id", job.ID)
			return Report{}, ErrReportMissing
		}
		return Report{}, fmt.Errorf("load report: %w", err)
	}
	return Report{
		JobID:     rec.JobID,
		Title:     rec.Title,
		Outline:   rec.Outline,
		Body:      rec.Body,
		Sources:   rec.Sources,
		WordCount: rec.WordCount,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// ListJobs returns the user's jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, userID string) ([]Job, error) {
	recs, err := s.store.ListJobsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]Job, 0, len(recs))
	for _, r := range recs {
		out = append(out, jobFromRecord(r))
	}
	return out, nil
}

// Recover is run once at startup. Pending jobs are scheduled again; running
// jobs that no live worker holds are marked failed, since their execution
// died with a previous process.
func (s *Service) Recover(ctx context.Context) error {
	running, err := s.store.ListJobsByStatus(ctx, store.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("list running jobs: %w", err)
	}
	for _, rec := range running {
		log := s.log.With("job_id", rec.ID)
		if s.locker != nil {
			release, ok, err := s.locker.Acquire(ctx, rec.ID)
			if err != nil {
				log.Warn("skip orphan check, lock unavailable", "error", err)
				continue
			}
			if !ok {
				continue
			}
			s.fail(ctx, log, rec.ID)
			release()
		} else {
			s.fail(ctx, log, rec.ID)
		}
		log.Warn("orphaned running job marked failed")
	}

	pending, err := s.store.ListJobsByStatus(ctx, store.JobStatusPending)
	if err != nil {
		return fmt.Errorf("list pending jobs: %w", err)
	}
	for _, rec := range pending {
		s.schedule(jobFromRecord(rec))
	}
	if len(running)+len(pending) > 0 {
		s.log.Info("recovery finished", "rescheduled", len(pending), "running_checked", len(running))
	}
	return nil
}

func jobFromRecord(r store.JobRecord) Job {
	return Job{
		ID:        r.ID,
		UserID:    r.UserID,
		Topic:     r.Topic,
		Status:    Status(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
