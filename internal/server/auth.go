package server

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohammad-safakhou/researcher/internal/i18n"
	"github.com/mohammad-safakhou/researcher/internal/runtime"
	"github.com/mohammad-safakhou/researcher/internal/store"
)

const minPasswordLen = 8

type AuthHandler struct {
	Store    *store.Store
	Secret   []byte
	TTL      time.Duration
	Verifier *runtime.Verifier
	// SecureCookie marks the auth cookie Secure; enabled in prod.
	SecureCookie bool
}

func (a *AuthHandler) Register(g *echo.Group) {
	g.POST("/register", a.register)
	g.POST("/login", a.login)
	g.POST("/logout", a.logout)
	g.GET("/me", a.me, runtime.EchoAuthMiddleware(a.Verifier))
}

// register creates an account and signs the user in.
func (a *AuthHandler) register(c echo.Context) error {
	var req CredentialsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	email, ok := normalizeEmail(req.Email)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, i18n.M(i18n.MsgInvalidEmail))
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLen {
		return echo.NewHTTPError(http.StatusBadRequest, i18n.M(i18n.MsgPasswordTooShort, minPasswordLen))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user, err := a.Store.CreateUser(c.Request().Context(), email, string(hash))
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return echo.NewHTTPError(http.StatusConflict, i18n.M(i18n.MsgEmailExists)).SetInternal(err)
		}
		return err
	}
	return a.issue(c, http.StatusCreated, user.ID)
}

// login accepts JSON {email,password} or an OAuth2 password form (username,password).
func (a *AuthHandler) login(c echo.Context) error {
	var req CredentialsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	if req.Email == "" {
		req.Email = req.Username
	}
	email, _ := normalizeEmail(req.Email)
	user, err := a.Store.GetUserByEmail(c.Request().Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return a.invalidCredentials(c)
		}
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return a.invalidCredentials(c)
	}
	return a.issue(c, http.StatusOK, user.ID)
}

func (a *AuthHandler) invalidCredentials(c echo.Context) error {
	c.Response().Header().Set("WWW-Authenticate", "Bearer")
	return echo.NewHTTPError(http.StatusUnauthorized, i18n.M(i18n.MsgInvalidCredentials))
}

func (a *AuthHandler) logout(c echo.Context) error {
	cookie := new(http.Cookie)
	cookie.Name = "auth"
	cookie.Value = ""
	cookie.Path = "/"
	cookie.MaxAge = -1
	c.SetCookie(cookie)
	return c.NoContent(http.StatusOK)
}

func (a *AuthHandler) me(c echo.Context) error {
	user, err := a.Store.GetUserByID(c.Request().Context(), c.Get("user_id").(string))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return runtime.ErrUnauthenticated
		}
		return err
	}
	return c.JSON(http.StatusOK, UserResponse{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt})
}

// issue signs a token for userID and returns it in the body, a cookie and the
// Authorization header.
func (a *AuthHandler) issue(c echo.Context, code int, userID string) error {
	signed, err := runtime.SignJWT(userID, a.Secret, a.TTL)
	if err != nil {
		return err
	}
	cookie := new(http.Cookie)
	cookie.Name = "auth"
	cookie.Value = signed
	cookie.Path = "/"
	cookie.HttpOnly = true
	cookie.SameSite = http.SameSiteLaxMode
	cookie.Secure = a.SecureCookie
	cookie.MaxAge = int(a.TTL / time.Second)
	c.SetCookie(cookie)
	c.Response().Header().Set("Authorization", "Bearer "+signed)
	return c.JSON(code, TokenResponse{AccessToken: signed, TokenType: "bearer"})
}

// normalizeEmail lower-cases a bare address and reports whether it is valid.
func normalizeEmail(raw string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return email, false
	}
	return email, true
}
