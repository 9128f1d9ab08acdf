package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohammad-safakhou/researcher/internal/i18n"
	"github.com/mohammad-safakhou/researcher/internal/runtime"
	"github.com/mohammad-safakhou/researcher/internal/store"
)

func newAuthHandler(t *testing.T) (*AuthHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &AuthHandler{Store: &store.Store{DB: db}, Secret: []byte(testSecret), TTL: time.Hour}, mock
}

func jsonContext(method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func httpCode(t *testing.T, err error) (int, i18n.Key) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	msg, _ := he.Message.(i18n.Message)
	return he.Code, msg.Key
}

func TestRegisterValidation(t *testing.T) {
	h, _ := newAuthHandler(t)
	cases := []struct {
		body string
		key  i18n.Key
	}{
		{`{"email":"not-an-email","password":"long-enough"}`, i18n.MsgInvalidEmail},
		{`{"email":"Ada <ada@example.com>","password":"long-enough"}`, i18n.MsgInvalidEmail},
		{`{"email":"ada@example.com","password":"short"}`, i18n.MsgPasswordTooShort},
		{`{"email":`, i18n.MsgInvalidRequest},
	}
	for _, tc := range cases {
		c, _ := jsonContext(http.MethodPost, tc.body)
		code, key := httpCode(t, h.register(c))
		if code != http.StatusBadRequest || key != tc.key {
			t.Errorf("%s: expected 400/%s got %d/%s", tc.body, tc.key, code, key)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h, mock := newAuthHandler(t)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (email, password_hash) VALUES ($1,$2) RETURNING id, created_at`)).
		WithArgs("ada@example.com", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	c, _ := jsonContext(http.MethodPost, `{"email":" Ada@Example.com ","password":"correct-horse"}`)
	code, key := httpCode(t, h.register(c))
	if code != http.StatusConflict || key != i18n.MsgEmailExists {
		t.Fatalf("expected 409/%s got %d/%s", i18n.MsgEmailExists, code, key)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRegisterIssuesToken(t *testing.T) {
	h, mock := newAuthHandler(t)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (email, password_hash) VALUES ($1,$2) RETURNING id, created_at`)).
		WithArgs("ada@example.com", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(testUserID, time.Now()))

	c, rec := jsonContext(http.MethodPost, `{"email":"ada@example.com","password":"correct-horse"}`)
	if err := h.register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TokenType != "bearer" {
		t.Fatalf("unexpected token type %q", resp.TokenType)
	}
	sub, err := runtime.NewVerifier([]byte(testSecret), nil).Verify(context.Background(), resp.AccessToken)
	if err != nil || sub != testUserID {
		t.Fatalf("token does not verify: %q %v", sub, err)
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), "auth=") {
		t.Fatalf("expected auth cookie")
	}
}

func expectLoginLookup(t *testing.T, mock sqlmock.Sqlmock, password string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, email, password_hash, created_at FROM users WHERE email=$1`)).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at"}).
			AddRow(testUserID, "ada@example.com", string(hash), time.Now()))
}

func TestLoginWrongPassword(t *testing.T) {
	h, mock := newAuthHandler(t)
	expectLoginLookup(t, mock, "correct-horse")

	c, rec := jsonContext(http.MethodPost, `{"email":"ada@example.com","password":"battery-staple"}`)
	code, key := httpCode(t, h.login(c))
	if code != http.StatusUnauthorized || key != i18n.MsgInvalidCredentials {
		t.Fatalf("expected 401/%s got %d/%s", i18n.MsgInvalidCredentials, code, key)
	}
	if rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("expected WWW-Authenticate header")
	}
}

func TestLoginUnknownUser(t *testing.T) {
	h, mock := newAuthHandler(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email=$1`)).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at"}))

	c, _ := jsonContext(http.MethodPost, `{"email":"ghost@example.com","password":"whatever1"}`)
	code, _ := httpCode(t, h.login(c))
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", code)
	}
}

func TestLoginPasswordForm(t *testing.T) {
	h, mock := newAuthHandler(t)
	expectLoginLookup(t, mock, "correct-horse")

	form := url.Values{"username": {"ada@example.com"}, "password": {"correct-horse"}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	if err := h.login(c); err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get(echo.HeaderAuthorization), "Bearer ") {
		t.Fatalf("expected bearer header")
	}
}

func TestNormalizeEmail(t *testing.T) {
	for in, want := range map[string]bool{
		"ada@example.com":       true,
		"  ADA@Example.COM ":    true,
		"ada":                   false,
		"ada@":                  false,
		"Ada <ada@example.com>": false,
	} {
		if _, ok := normalizeEmail(in); ok != want {
			t.Errorf("normalizeEmail(%q) = %v, want %v", in, ok, want)
		}
	}
}
