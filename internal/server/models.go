package server

import "time"

// HTTPError is the error envelope returned by every endpoint.
type HTTPError struct {
	Error string `json:"error"`
}

// CredentialsRequest is the register and login payload. Username is the
// OAuth2 password form field and is read only by login.
type CredentialsRequest struct {
	Email    string `json:"email" form:"email"`
	Username string `json:"-" form:"username"`
	Password string `json:"password" form:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// UserResponse describes the authenticated user.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateAPIKeyRequest struct {
	Name     string `json:"name"`
	KeyValue string `json:"key_value"`
}

// APIKeyResponse never carries the full key value.
type APIKeyResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	KeyValue  string    `json:"key_value"`
	CreatedAt time.Time `json:"created_at"`
}

type StartResearchRequest struct {
	Topic string `json:"topic"`
}

type StartResearchResponse struct {
	JobID string `json:"job_id"`
}

// JobResponse is one row of the job history.
type JobResponse struct {
	JobID     string    `json:"job_id"`
	Topic     string    `json:"topic"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type FactResponse struct {
	Fact      string    `json:"fact"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse is the polling view of a job.
type StatusResponse struct {
	JobID          string         `json:"job_id"`
	Status         string         `json:"status"`
	CollectedFacts []FactResponse `json:"collected_facts"`
}

// ReportResponse is the final report of a done job.
type ReportResponse struct {
	JobID     string    `json:"job_id"`
	Title     string    `json:"title"`
	Outline   []string  `json:"outline"`
	Report    string    `json:"report"`
	Sources   []string  `json:"sources"`
	WordCount int       `json:"word_count"`
	CreatedAt time.Time `json:"created_at"`
}
