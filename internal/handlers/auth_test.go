package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/elfein/storefront/internal/middleware/auth"
	"github.com/elfein/storefront/internal/models"
)

func setupAuth(t *testing.T) (*echo.Echo, *AuthHandler) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	e := echo.New()
	h := &AuthHandler{DB: db, Tokens: &auth.TokenService{JWTSecret: []byte("test-secret")}}
	return e, h
}

func doJSON(e *echo.Echo, handler echo.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestRegister(t *testing.T) {
	e, h := setupAuth(t)

	rec := doJSON(e, h.Register, `{"name":"asha","email":"Asha@Example.com","password":"secret123"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var user models.User
	require.NoError(t, h.DB.Where("email = ?", "asha@example.com").First(&user).Error)
	require.Equal(t, "user", user.Role)
	require.NotEqual(t, "secret123", user.PasswordHash)
}

func TestRegisterShortPassword(t *testing.T) {
	e, h := setupAuth(t)
	rec := doJSON(e, h.Register, `{"email":"a@b.com","password":"short"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	e, h := setupAuth(t)
	doJSON(e, h.Register, `{"name":"asha","email":"a@b.com","password":"secret123"}`)

	rec := doJSON(e, h.Register, `{"name":"other","email":"a@b.com","password":"secret123"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogin(t *testing.T) {
	e, h := setupAuth(t)
	doJSON(e, h.Register, `{"name":"asha","email":"a@b.com","password":"secret123"}`)

	rec := doJSON(e, h.Login, `{"email":"a@b.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["token"])
	require.Equal(t, "user", resp["role"])
}

func TestLoginWrongPassword(t *testing.T) {
	e, h := setupAuth(t)
	doJSON(e, h.Register, `{"name":"asha","email":"a@b.com","password":"secret123"}`)

	rec := doJSON(e, h.Login, `{"email":"a@b.com","password":"wrongpass"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginBlockedAccount(t *testing.T) {
	e, h := setupAuth(t)
	doJSON(e, h.Register, `{"name":"asha","email":"a@b.com","password":"secret123"}`)
	require.NoError(t, h.DB.Model(&models.User{}).Where("email = ?", "a@b.com").Update("is_blocked", true).Error)

	rec := doJSON(e, h.Login, `{"email":"a@b.com","password":"secret123"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTokenRoundTrip(t *testing.T) {
	_, h := setupAuth(t)

	token, err := h.Tokens.SignAccessToken(42, "admin")
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	mw := h.Tokens.Middleware(func(c echo.Context) error {
		called = true
		require.Equal(t, uint(42), auth.UserID(c))
		require.Equal(t, "admin", c.Get("role"))
		return nil
	})
	require.NoError(t, mw(c))
	require.True(t, called)
}

func TestMiddlewareRejectsBadToken(t *testing.T) {
	_, h := setupAuth(t)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer not.a.token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := h.Tokens.Middleware(func(c echo.Context) error { return nil })
	err := mw(c)
	require.Error(t, err)

	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestAdminMiddlewareRejectsUserRole(t *testing.T) {
	_, h := setupAuth(t)

	token, err := h.Tokens.SignAccessToken(7, "user")
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := h.Tokens.AdminMiddleware(func(c echo.Context) error { return nil })
	err = mw(c)
	require.Error(t, err)

	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusForbidden, httpErr.Code)
}
