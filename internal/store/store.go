package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type Store struct {
	DB *sql.DB
}

var (
	// ErrNotFound is returned when a row does not exist or is not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("already exists")
	// ErrInvalidTransition is returned when a job is not in the expected status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Job statuses as stored in research_jobs.status.
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// DefaultFactSource is stored when a fact arrives without a source.
const DefaultFactSource = "unspecified"

const (
	pqUniqueViolation   = "23505"
	pqInvalidTextRepr   = "22P02"
	pqForeignKeyMissing = "23503"
)

type UserRecord struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// APIKeyRecord is a third-party credential stored on behalf of a user.
type APIKeyRecord struct {
	ID        int64
	UserID    string
	Name      string
	Value     string
	CreatedAt time.Time
}

type JobRecord struct {
	ID        string
	UserID    string
	Topic     string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type FactRecord struct {
	ID         int64
	JobID      string
	Fact       string
	Source     string
	CapturedAt time.Time
}

// ReportRecord is the terminal output of a completed job.
type ReportRecord struct {
	JobID     string
	Title     string
	Outline   []string
	Body      string
	Sources   []string
	WordCount int
	CreatedAt time.Time
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Close() error { return s.DB.Close() }

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
		case pqInvalidTextRepr, pqForeignKeyMissing:
			// malformed uuid or dangling owner reference
			return ErrNotFound
		}
	}
	return err
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) (UserRecord, error) {
	u := UserRecord{Email: email, PasswordHash: hash}
	err := s.DB.QueryRowContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2) RETURNING id, created_at`, email, hash).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return UserRecord{}, translate(err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (UserRecord, error) {
	var u UserRecord
	err := s.DB.QueryRowContext(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email=$1`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	return u, translate(err)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (UserRecord, error) {
	var u UserRecord
	err := s.DB.QueryRowContext(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE id=$1`, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	return u, translate(err)
}

// API key operations
func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]APIKeyRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, user_id, name, key_value, created_at FROM api_keys WHERE user_id=$1 ORDER BY id`, userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var out []APIKeyRecord
	for rows.Next() {
		var k APIKeyRecord
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.Value, &k.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) GetAPIKeyByName(ctx context.Context, userID, name string) (APIKeyRecord, error) {
	var k APIKeyRecord
	err := s.DB.QueryRowContext(ctx, `SELECT id, user_id, name, key_value, created_at FROM api_keys WHERE user_id=$1 AND name=$2`, userID, name).Scan(&k.ID, &k.UserID, &k.Name, &k.Value, &k.CreatedAt)
	return k, translate(err)
}

// CreateAPIKey stores a named key. Names are unique per user; a clash yields ErrDuplicate.
func (s *Store) CreateAPIKey(ctx context.Context, userID, name, value string) (APIKeyRecord, error) {
	k := APIKeyRecord{UserID: userID, Name: name, Value: value}
	err := s.DB.QueryRowContext(ctx, `INSERT INTO api_keys (user_id, name, key_value) VALUES ($1,$2,$3) RETURNING id, created_at`, userID, name, value).Scan(&k.ID, &k.CreatedAt)
	if err != nil {
		return APIKeyRecord{}, translate(err)
	}
	return k, nil
}

// DeleteAPIKey removes a key owned by userID. Keys of other users are reported as ErrNotFound.
func (s *Store) DeleteAPIKey(ctx context.Context, userID string, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Job operations
func (s *Store) CreateJob(ctx context.Context, job JobRecord) (JobRecord, error) {
	if job.ID == "" {
		return JobRecord{}, fmt.Errorf("job id must be provided")
	}
	if job.Status == "" {
		job.Status = JobStatusPending
	}
	err := s.DB.QueryRowContext(ctx, `INSERT INTO research_jobs (id, user_id, topic, status) VALUES ($1,$2,$3,$4) RETURNING created_at, updated_at`,
		job.ID, job.UserID, job.Topic, job.Status).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return JobRecord{}, translate(err)
	}
	return job, nil
}

const jobColumns = `id, user_id, topic, status, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (JobRecord, error) {
	var j JobRecord
	err := row.Scan(&j.ID, &j.UserID, &j.Topic, &j.Status, &j.CreatedAt, &j.UpdatedAt)
	return j, err
}

func (s *Store) GetJob(ctx context.Context, id string) (JobRecord, error) {
	j, err := scanJob(s.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM research_jobs WHERE id=$1`, id))
	return j, translate(err)
}

// ListJobsByUser returns the user's jobs newest first.
func (s *Store) ListJobsByUser(ctx context.Context, userID string) ([]JobRecord, error) {
	return s.listJobs(ctx, `SELECT `+jobColumns+` FROM research_jobs WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

// ListJobsByStatus returns all jobs in the given status, oldest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status string) ([]JobRecord, error) {
	return s.listJobs(ctx, `SELECT `+jobColumns+` FROM research_jobs WHERE status=$1 ORDER BY created_at`, status)
}

func (s *Store) listJobs(ctx context.Context, query string, arg any) ([]JobRecord, error) {
	rows, err := s.DB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var out []JobRecord
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// TransitionJob moves a job from one status to another. The update only applies
// while the job is still in `from`, otherwise ErrInvalidTransition is returned.
func (s *Store) TransitionJob(ctx context.Context, id, from, to string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE research_jobs SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: job %s is not %s", ErrInvalidTransition, id, from)
	}
	return nil
}

// CompleteJob stores the report and marks the job done in one transaction.
func (s *Store) CompleteJob(ctx context.Context, rep ReportRecord) (err error) {
	outline, err := json.Marshal(nonNil(rep.Outline))
	if err != nil {
		return err
	}
	sources, err := json.Marshal(nonNil(rep.Sources))
	if err != nil {
		return err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx, `UPDATE research_jobs SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2`, rep.JobID, JobStatusRunning, JobStatusDone)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: job %s is not %s", ErrInvalidTransition, rep.JobID, JobStatusRunning)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO research_reports (job_id, title, outline, body, sources, word_count) VALUES ($1,$2,$3,$4,$5,$6)`,
		rep.JobID, rep.Title, outline, rep.Body, sources, rep.WordCount)
	if err != nil {
		return translate(err)
	}
	return tx.Commit()
}

func (s *Store) GetReport(ctx context.Context, jobID string) (ReportRecord, error) {
	var (
		r                ReportRecord
		outline, sources []byte
	)
	err := s.DB.QueryRowContext(ctx, `SELECT job_id, title, outline, body, sources, word_count, created_at FROM research_reports WHERE job_id=$1`, jobID).
		Scan(&r.JobID, &r.Title, &outline, &r.Body, &sources, &r.WordCount, &r.CreatedAt)
	if err != nil {
		return ReportRecord{}, translate(err)
	}
	if err := json.Unmarshal(outline, &r.Outline); err != nil {
		return ReportRecord{}, fmt.Errorf("decode outline: %w", err)
	}
	if err := json.Unmarshal(sources, &r.Sources); err != nil {
		return ReportRecord{}, fmt.Errorf("decode sources: %w", err)
	}
	return r, nil
}

// Fact operations

// AppendFact inserts one fact. The row is committed when AppendFact returns.
func (s *Store) AppendFact(ctx context.Context, f FactRecord) (FactRecord, error) {
	if f.Source == "" {
		f.Source = DefaultFactSource
	}
	err := s.DB.QueryRowContext(ctx, `INSERT INTO research_facts (job_id, fact, source) VALUES ($1,$2,$3) RETURNING id, captured_at`, f.JobID, f.Fact, f.Source).
		Scan(&f.ID, &f.CapturedAt)
	if err != nil {
		return FactRecord{}, translate(err)
	}
	return f, nil
}

// ListFacts returns the job's facts in capture order.
func (s *Store) ListFacts(ctx context.Context, jobID string) ([]FactRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, job_id, fact, source, captured_at FROM research_facts WHERE job_id=$1 ORDER BY id`, jobID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var out []FactRecord
	for rows.Next() {
		var f FactRecord
		if err := rows.Scan(&f.ID, &f.JobID, &f.Fact, &f.Source, &f.CapturedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
