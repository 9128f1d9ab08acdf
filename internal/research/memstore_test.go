package research

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mohammad-safakhou/researcher/internal/store"
)

// memStore mimics the Postgres store semantics the orchestrator relies on,
// including rejecting writes on a cancelled context.
type memStore struct {
	mu       sync.Mutex
	jobs     map[string]store.JobRecord
	facts    map[string][]store.FactRecord
	reports  map[string]store.ReportRecord
	history  map[string][]string
	nextFact int64

	completeErr error
}

func newMemStore() *memStore {
	return &memStore{
		jobs:    map[string]store.JobRecord{},
		facts:   map[string][]store.FactRecord{},
		reports: map[string]store.ReportRecord{},
		history: map[string][]string{},
	}
}

func (m *memStore) CreateJob(_ context.Context, job store.JobRecord) (store.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return store.JobRecord{}, store.ErrDuplicate
	}
	now := time.Now()
	job.CreatedAt, job.UpdatedAt = now, now
	m.jobs[job.ID] = job
	m.history[job.ID] = []string{job.Status}
	return job, nil
}

func (m *memStore) GetJob(_ context.Context, id string) (store.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return store.JobRecord{}, store.ErrNotFound
	}
	return j, nil
}

func (m *memStore) ListJobsByUser(_ context.Context, userID string) ([]store.JobRecord, error) {
	return m.filter(func(j store.JobRecord) bool { return j.UserID == userID }), nil
}

func (m *memStore) ListJobsByStatus(_ context.Context, status string) ([]store.JobRecord, error) {
	return m.filter(func(j store.JobRecord) bool { return j.Status == status }), nil
}

func (m *memStore) filter(keep func(store.JobRecord) bool) []store.JobRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.JobRecord
	for _, j := range m.jobs {
		if keep(j) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

func (m *memStore) TransitionJob(ctx context.Context, id, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(id, from, to)
}

func (m *memStore) transitionLocked(id, from, to string) error {
	j, ok := m.jobs[id]
	if !ok || j.Status != from {
		return fmt.Errorf("%w: %s", store.ErrInvalidTransition, id)
	}
	j.Status = to
	j.UpdatedAt = time.Now()
	m.jobs[id] = j
	m.history[id] = append(m.history[id], to)
	return nil
}

func (m *memStore) CompleteJob(ctx context.Context, rep store.ReportRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return m.completeErr
	}
	if err := m.transitionLocked(rep.JobID, store.JobStatusRunning, store.JobStatusDone); err != nil {
		return err
	}
	rep.CreatedAt = time.Now()
	m.reports[rep.JobID] = rep
	return nil
}

func (m *memStore) GetReport(_ context.Context, jobID string) (store.ReportRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[jobID]
	if !ok {
		return store.ReportRecord{}, store.ErrNotFound
	}
	return r, nil
}

func (m *memStore) AppendFact(_ context.Context, f store.FactRecord) (store.FactRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextFact++
	f.ID = m.nextFact
	f.CapturedAt = time.Now()
	m.facts[f.JobID] = append(m.facts[f.JobID], f)
	return f, nil
}

func (m *memStore) ListFacts(_ context.Context, jobID string) ([]store.FactRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.FactRecord(nil), m.facts[jobID]...), nil
}

func (m *memStore) statusHistory(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history[id]...)
}

func (m *memStore) hasReport(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.reports[id]
	return ok
}

// seed inserts a job directly, bypassing Submit.
func (m *memStore) seed(id, userID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.jobs[id] = store.JobRecord{ID: id, UserID: userID, Topic: "seeded", Status: status, CreatedAt: now, UpdatedAt: now}
	m.history[id] = []string{status}
}
