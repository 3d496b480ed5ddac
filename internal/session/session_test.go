package session

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time { return c.t }

func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRouter(m *Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(NewCookieStore(testSecret)))

	router.POST("/issue", func(c *gin.Context) {
		s, err := m.Issue(c, "admin", "Administrator")
		if err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		c.String(http.StatusOK, s.ID)
	})
	router.GET("/check", func(c *gin.Context) {
		s, err := m.Validate(c)
		if err != nil {
			c.String(http.StatusUnauthorized, err.Error())
			return
		}
		c.String(http.StatusOK, s.Identity+"/"+s.Role)
	})
	router.POST("/renew", func(c *gin.Context) {
		s, err := m.Validate(c)
		if err != nil {
			c.String(http.StatusUnauthorized, err.Error())
			return
		}
		if err := m.Renew(c, s); err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		c.String(http.StatusOK, s.ExpiresAt.UTC().Format(time.RFC3339))
	})
	router.POST("/revoke", func(c *gin.Context) {
		s, err := m.Validate(c)
		if err != nil {
			c.String(http.StatusUnauthorized, err.Error())
			return
		}
		if err := m.Revoke(c, s); err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		c.Status(http.StatusOK)
	})
	return router
}

func do(router *gin.Engine, method, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			found = c
		}
	}
	if found == nil {
		t.Fatalf("session cookie not found in %v", rec.Header().Values("Set-Cookie"))
	}
	return found
}

func TestIssueAndValidate(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	m := NewManager(nil, WithClock(clock.Now))
	router := newTestRouter(m)

	rec := do(router, http.MethodPost, "/issue", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookie := sessionCookie(t, rec)

	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.False(t, cookie.Secure)
	assert.Equal(t, int(Lifetime.Seconds()), cookie.MaxAge)

	rec = do(router, http.MethodGet, "/check", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "admin/Administrator", rec.Body.String())
}

func TestIssueSecureOverTLS(t *testing.T) {
	m := NewManager(nil)
	router := newTestRouter(m)

	req := httptest.NewRequest(http.MethodPost, "/issue", nil)
	req.TLS = &tls.ConnectionState{}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sessionCookie(t, rec).Secure)
}

func TestValidateWithoutCookie(t *testing.T) {
	router := newTestRouter(NewManager(nil))

	rec := do(router, http.MethodGet, "/check", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrNoSession.Error(), rec.Body.String())
}

func TestValidateTamperedCookie(t *testing.T) {
	router := newTestRouter(NewManager(nil))

	cookie := sessionCookie(t, do(router, http.MethodPost, "/issue", nil))
	mid := len(cookie.Value) / 2
	replacement := "A"
	if cookie.Value[mid] == 'A' {
		replacement = "B"
	}
	cookie.Value = cookie.Value[:mid] + replacement + cookie.Value[mid+1:]

	rec := do(router, http.MethodGet, "/check", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrNoSession.Error(), rec.Body.String())
}

func TestValidateCookieFromOtherSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	other := gin.New()
	other.Use(Middleware(NewCookieStore([]byte("another-secret-another-secret-xx"))))
	m := NewManager(nil)
	other.POST("/issue", func(c *gin.Context) {
		_, _ = m.Issue(c, "admin", "Administrator")
	})
	forged := sessionCookie(t, do(other, http.MethodPost, "/issue", nil))

	rec := do(newTestRouter(m), http.MethodGet, "/check", forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidateExpired(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	router := newTestRouter(NewManager(nil, WithClock(clock.Now)))
	cookie := sessionCookie(t, do(router, http.MethodPost, "/issue", nil))

	clock.Advance(Lifetime - time.Second)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/check", cookie).Code)

	clock.Advance(time.Second)
	rec := do(router, http.MethodGet, "/check", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrExpired.Error(), rec.Body.String())
}

func TestRenewSlidesExpiry(t *testing.T) {
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := &testClock{t: start}
	router := newTestRouter(NewManager(nil, WithClock(clock.Now)))
	cookie := sessionCookie(t, do(router, http.MethodPost, "/issue", nil))

	clock.Advance(6 * 24 * time.Hour)
	rec := do(router, http.MethodPost, "/renew", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, clock.Now().Add(Lifetime).Format(time.RFC3339), rec.Body.String())
	renewed := sessionCookie(t, rec)

	// 発行から8日後でも延長後のCookieは有効
	clock.Advance(2 * 24 * time.Hour)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/check", renewed).Code)
	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/check", cookie).Code)
}

func TestRevokeRejectsReplay(t *testing.T) {
	router := newTestRouter(NewManager(nil))
	cookie := sessionCookie(t, do(router, http.MethodPost, "/issue", nil))

	rec := do(router, http.MethodPost, "/revoke", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := sessionCookie(t, rec)
	assert.True(t, cleared.MaxAge < 0)

	rec = do(router, http.MethodGet, "/check", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrRevoked.Error(), rec.Body.String())
}

type failingRevocations struct{}

func (failingRevocations) Revoke(ctx context.Context, id string, until time.Time) error {
	return errors.New("backend down")
}

func (failingRevocations) IsRevoked(ctx context.Context, id string) (bool, error) {
	return false, errors.New("backend down")
}

func TestValidateFailsClosedOnRevocationError(t *testing.T) {
	router := newTestRouter(NewManager(failingRevocations{}))
	cookie := sessionCookie(t, do(router, http.MethodPost, "/issue", nil))

	rec := do(router, http.MethodGet, "/check", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "backend down"))
}
