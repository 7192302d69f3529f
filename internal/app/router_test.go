package app_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-app/gatehouse/internal/app"
	"github.com/gatehouse-app/gatehouse/internal/auth"
	"github.com/gatehouse-app/gatehouse/internal/shared"
	"github.com/gatehouse-app/gatehouse/internal/view"
	_ "github.com/gatehouse-app/gatehouse/testing"
)

type stubRepo struct {
	byID    map[string]*auth.User
	byEmail map[string]*auth.User
}

func newStubRepo() *stubRepo {
	return &stubRepo{byID: make(map[string]*auth.User), byEmail: make(map[string]*auth.User)}
}

func (s *stubRepo) CountByEmail(ctx context.Context, email string) (int64, error) {
	if _, ok := s.byEmail[email]; ok {
		return 1, nil
	}
	return 0, nil
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	user, ok := s.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id string) (*auth.User, error) {
	user, ok := s.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (s *stubRepo) Create(ctx context.Context, email, passwordHash, fullName string) (*auth.User, error) {
	if _, ok := s.byEmail[email]; ok {
		return nil, shared.ErrEmailTaken
	}
	user := &auth.User{ID: "u1", Email: email, PasswordHash: passwordHash, FullName: fullName}
	s.byID[user.ID] = user
	s.byEmail[user.Email] = user
	return user, nil
}

var _ auth.Repository = (*stubRepo)(nil)

func newTestServer(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()

	cfg := &app.Config{AppEnv: "development", AppRequestTimeout: 30 * time.Second}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessionManager := shared.NewSessionManager("test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)

	service := auth.NewService(newStubRepo())
	handler := auth.NewHandler(logger, service, templates, sessionManager, csrfManager, nil, nil)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    handler,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return server, client
}

var csrfTokenPattern = regexp.MustCompile(`name="csrf_token" value="([^"]*)"`)

func fetchCSRFToken(t *testing.T, client *http.Client, pageURL string) string {
	t.Helper()
	res, err := client.Get(pageURL)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	match := csrfTokenPattern.FindSubmatch(body)
	require.NotNil(t, match, "expected csrf token in page")
	return string(match[1])
}

func TestHealthz(t *testing.T) {
	server, client := newTestServer(t)

	res, err := client.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestHomeRedirectsAnonymousToLogin(t *testing.T) {
	server, client := newTestServer(t)

	res, err := client.Get(server.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusSeeOther, res.StatusCode)

	loc, err := url.Parse(res.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/auth/login", loc.Path)
	assert.Equal(t, "/", loc.Query().Get("redirectTo"))
}

func TestWelcomePage(t *testing.T) {
	server, client := newTestServer(t)

	res, err := client.Get(server.URL + "/welcome")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Welcome to Gatehouse")
}

func TestPostWithoutCSRFTokenIsRejected(t *testing.T) {
	server, client := newTestServer(t)

	// Prime a session so the failure comes from the token check.
	_ = fetchCSRFToken(t, client, server.URL+"/auth/login")

	form := url.Values{}
	form.Set("email", "a@x.com")
	form.Set("password", "secret123")
	res, err := client.PostForm(server.URL+"/auth/login", form)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestRegisterLoginLogoutFlow(t *testing.T) {
	server, client := newTestServer(t)

	// Register through the real middleware chain.
	token := fetchCSRFToken(t, client, server.URL+"/auth/register")
	form := url.Values{}
	form.Set("csrf_token", token)
	form.Set("email", "a@x.com")
	form.Set("password", "secret123")
	form.Set("fullName", "Ann")
	res, err := client.PostForm(server.URL+"/auth/register", form)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/", res.Header.Get("Location"))

	// The issued cookie now reaches the home page.
	res, err = client.Get(server.URL + "/")
	require.NoError(t, err)
	homeBody, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(homeBody), "Ann")
	assert.Contains(t, string(homeBody), "a@x.com")

	// Log out and verify the cookie no longer authenticates.
	match := csrfTokenPattern.FindSubmatch(homeBody)
	require.NotNil(t, match)
	logoutForm := url.Values{}
	logoutForm.Set("csrf_token", string(match[1]))
	res, err = client.PostForm(server.URL+"/auth/logout", logoutForm)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/auth/login", res.Header.Get("Location"))

	res, err = client.Get(server.URL + "/")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	loc, err := url.Parse(res.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/auth/login", loc.Path)
}
