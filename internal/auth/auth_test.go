package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tahcohcat/voicepanel/config"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func withPassword(t *testing.T, password string) {
	t.Helper()
	var hash string
	if password != "" {
		var err error
		hash, err = HashPassword(password)
		require.NoError(t, err)
	}
	Init(config.AuthConfig{SessionSecret: "test-secret", PasswordHash: hash})

	page := filepath.Join(t.TempDir(), "login.html")
	require.NoError(t, os.WriteFile(page, []byte(`<form>{{if .}}{{.Error}}{{end}}</form>`), 0o600))
	prev := LoginPage
	LoginPage = page
	t.Cleanup(func() { LoginPage = prev })
}

func TestMiddlewareOpenWithoutPassword(t *testing.T) {
	withPassword(t, "")

	rec := httptest.NewRecorder()
	AuthMiddleware(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/state", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareGuardsWithPassword(t *testing.T) {
	withPassword(t, "hunter2")

	rec := httptest.NewRecorder()
	AuthMiddleware(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/play", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	AuthMiddleware(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestLoginFlow(t *testing.T) {
	withPassword(t, "hunter2")

	post := func(password string) *httptest.ResponseRecorder {
		form := url.Values{"password": {password}}
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		LoginHandler(rec, req)
		return rec
	}

	bad := post("wrong")
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
	assert.Contains(t, bad.Body.String(), "Invalid password")

	good := post("hunter2")
	require.Equal(t, http.StatusFound, good.Code)
	cookies := good.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	AuthMiddleware(okHandler).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutRequiresPost(t *testing.T) {
	withPassword(t, "hunter2")

	form := url.Values{"password": {"hunter2"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	login := httptest.NewRecorder()
	LoginHandler(login, req)
	require.Equal(t, http.StatusFound, login.Code)
	cookies := login.Result().Cookies()

	withCookies := func(method, path string) *http.Request {
		req := httptest.NewRequest(method, path, nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		return req
	}

	rec := httptest.NewRecorder()
	LogoutHandler(rec, withCookies(http.MethodGet, "/logout"))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	rec = httptest.NewRecorder()
	AuthMiddleware(okHandler).ServeHTTP(rec, withCookies(http.MethodGet, "/api/v1/state"))
	assert.Equal(t, http.StatusOK, rec.Code, "a GET must not end the session")

	out := httptest.NewRecorder()
	LogoutHandler(out, withCookies(http.MethodPost, "/logout"))
	require.Equal(t, http.StatusFound, out.Code)
	cookies = out.Result().Cookies()

	rec = httptest.NewRecorder()
	AuthMiddleware(okHandler).ServeHTTP(rec, withCookies(http.MethodGet, "/api/v1/state"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")))
}

func TestPanelIDIsStable(t *testing.T) {
	withPassword(t, "")

	rec := httptest.NewRecorder()
	first := PanelID(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, first)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	assert.Equal(t, first, PanelID(httptest.NewRecorder(), req))

	other := PanelID(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEqual(t, first, other)
}
