// Package session は署名付きCookieによるログインセッションの発行・検証・失効を提供します。
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// CookieName はセッションCookieの名前です。
	CookieName = "slowpoke_auth"

	// Lifetime はセッションの有効期間です。リクエストごとに延長されます。
	Lifetime = 7 * 24 * time.Hour

	keyID           = "sid"
	keyIdentity     = "user"
	keyRole         = "role"
	keyIssuedAt     = "issued_at"
	keyExpiresAt    = "expires_at"
	keyAllowRefresh = "allow_refresh"
)

var (
	ErrNoSession = errors.New("session not found")
	ErrExpired   = errors.New("session expired")
	ErrRevoked   = errors.New("session revoked")
	ErrMalformed = errors.New("session malformed")
)

// Session は1つのログインセッションを表します。
type Session struct {
	ID           string
	Identity     string
	Role         string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	AllowRefresh bool
}

// Manager はセッションの発行・検証・延長・失効を担います。
// セッションの中身は署名付きCookieに保持され、サーバー側には失効リストのみを持ちます。
type Manager struct {
	revocations Revocations
	lifetime    time.Duration
	now         func() time.Time
}

// Option は Manager の設定を変更します。
type Option func(*Manager)

// WithClock は現在時刻の取得関数を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager はセッションマネージャーを作成します。
func NewManager(revocations Revocations, opts ...Option) *Manager {
	m := &Manager{
		revocations: revocations,
		lifetime:    Lifetime,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.revocations == nil {
		m.revocations = NewMemoryRevocations(m.now)
	}
	return m
}

// NewCookieStore はセッション用のCookieストアを作成します。値は secret でHMAC署名されます。
func NewCookieStore(secret []byte) sessions.Store {
	store := cookie.NewStore(secret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(Lifetime.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return store
}

// Middleware はリクエストにセッションを紐付ける gin ミドルウェアを返します。
func Middleware(store sessions.Store) gin.HandlerFunc {
	return sessions.Sessions(CookieName, store)
}

// Issue は新しいセッションを発行し、Cookie を書き込みます。
func (m *Manager) Issue(c *gin.Context, identity, role string) (*Session, error) {
	now := m.now()
	s := &Session{
		ID:           uuid.NewString(),
		Identity:     identity,
		Role:         role,
		IssuedAt:     now,
		ExpiresAt:    now.Add(m.lifetime),
		AllowRefresh: true,
	}

	sess := sessions.Default(c)
	sess.Clear()
	sess.Set(keyID, s.ID)
	sess.Set(keyIdentity, s.Identity)
	sess.Set(keyRole, s.Role)
	sess.Set(keyIssuedAt, s.IssuedAt.Unix())
	sess.Set(keyExpiresAt, s.ExpiresAt.Unix())
	sess.Set(keyAllowRefresh, s.AllowRefresh)
	sess.Options(m.cookieOptions(c, s.ExpiresAt))

	if err := sess.Save(); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return s, nil
}

// Validate はリクエストのセッションを検証します。
// 署名が不正なCookieはストアが読み捨てるため ErrNoSession になります。
func (m *Manager) Validate(c *gin.Context) (*Session, error) {
	sess := sessions.Default(c)
	id, _ := sess.Get(keyID).(string)
	if id == "" {
		return nil, ErrNoSession
	}

	identity, _ := sess.Get(keyIdentity).(string)
	role, _ := sess.Get(keyRole).(string)
	allowRefresh, _ := sess.Get(keyAllowRefresh).(bool)
	s := &Session{
		ID:           id,
		Identity:     identity,
		Role:         role,
		IssuedAt:     readUnix(sess.Get(keyIssuedAt)),
		ExpiresAt:    readUnix(sess.Get(keyExpiresAt)),
		AllowRefresh: allowRefresh,
	}
	if s.Identity == "" || s.IssuedAt.IsZero() || s.ExpiresAt.IsZero() {
		return nil, ErrMalformed
	}

	if !m.now().Before(s.ExpiresAt) {
		return nil, ErrExpired
	}

	revoked, err := m.revocations.IsRevoked(c.Request.Context(), s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		return nil, ErrRevoked
	}
	return s, nil
}

// Renew は有効期限を現在時刻から Lifetime 後まで延長します（スライディング有効期限）。
func (m *Manager) Renew(c *gin.Context, s *Session) error {
	if s == nil || !s.AllowRefresh {
		return nil
	}
	s.ExpiresAt = m.now().Add(m.lifetime)

	sess := sessions.Default(c)
	sess.Set(keyExpiresAt, s.ExpiresAt.Unix())
	sess.Options(m.cookieOptions(c, s.ExpiresAt))
	if err := sess.Save(); err != nil {
		return fmt.Errorf("failed to renew session: %w", err)
	}
	return nil
}

// Revoke はセッションを失効リストに登録し、クライアントのCookieを削除します。
func (m *Manager) Revoke(c *gin.Context, s *Session) error {
	if s != nil {
		if err := m.revocations.Revoke(c.Request.Context(), s.ID, s.ExpiresAt); err != nil {
			return fmt.Errorf("failed to revoke session: %w", err)
		}
	}
	return m.Clear(c)
}

// Clear はクライアントにCookieの破棄を指示します。
func (m *Manager) Clear(c *gin.Context) error {
	sess := sessions.Default(c)
	sess.Clear()
	opts := m.cookieOptions(c, time.Time{})
	opts.MaxAge = -1
	sess.Options(opts)
	return sess.Save()
}

func (m *Manager) cookieOptions(c *gin.Context, expiresAt time.Time) sessions.Options {
	maxAge := 0
	if !expiresAt.IsZero() {
		maxAge = int(expiresAt.Sub(m.now()).Seconds())
	}
	return sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		// 接続がTLSのときだけ Secure を付ける
		Secure:   c.Request.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	}
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
