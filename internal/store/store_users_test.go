package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func TestCreateUserDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (email, password_hash) VALUES ($1,$2) RETURNING id, created_at`)).
		WithArgs("a@example.com", "hash").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err = st.CreateUser(context.Background(), "a@example.com", "hash")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetUserByEmailMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, email, password_hash, created_at FROM users WHERE email=$1`)).
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	if _, err := st.GetUserByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetUserByIDMalformed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, email, password_hash, created_at FROM users WHERE id=$1`)).
		WithArgs("not-a-uuid").
		WillReturnError(&pq.Error{Code: "22P02"})

	if _, err := st.GetUserByID(context.Background(), "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAPIKeys(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	now := time.Now()
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO api_keys (user_id, name, key_value) VALUES ($1,$2,$3) RETURNING id, created_at`)).
		WithArgs("u1", "OpenAI", "sk-123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO api_keys (user_id, name, key_value) VALUES ($1,$2,$3) RETURNING id, created_at`)).
		WithArgs("u1", "OpenAI", "sk-456").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, name, key_value, created_at FROM api_keys WHERE user_id=$1 ORDER BY id`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "key_value", "created_at"}).AddRow(int64(7), "u1", "OpenAI", "sk-123", now))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM api_keys WHERE id=$1 AND user_id=$2`)).
		WithArgs(int64(7), "u2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM api_keys WHERE id=$1 AND user_id=$2`)).
		WithArgs(int64(7), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	k, err := st.CreateAPIKey(ctx, "u1", "OpenAI", "sk-123")
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if k.ID != 7 || k.Name != "OpenAI" {
		t.Fatalf("unexpected key %+v", k)
	}
	if _, err := st.CreateAPIKey(ctx, "u1", "OpenAI", "sk-456"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	keys, err := st.ListAPIKeys(ctx, "u1")
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(keys) != 1 || keys[0].Value != "sk-123" {
		t.Fatalf("unexpected keys %+v", keys)
	}
	if err := st.DeleteAPIKey(ctx, "u2", 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign key, got %v", err)
	}
	if err := st.DeleteAPIKey(ctx, "u1", 7); err != nil {
		t.Fatalf("DeleteAPIKey: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
