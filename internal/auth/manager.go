// Package auth は認証・認可機能を提供します。
package auth

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/yourusername/slowpoke-api/internal/metrics"
	"github.com/yourusername/slowpoke-api/internal/session"
)

// ハンドラー間でログイン情報を共有するためのキーです。
const (
	ContextUserKey    = "auth.user"
	ContextRoleKey    = "auth.role"
	ContextSessionKey = "auth.session"
)

const (
	msgInvalidPassword = "Invalid password"
	msgNotConfigured   = "Server configuration error: Password not set"
	msgUnauthorized    = "Unauthorized"
)

// Options は Manager の追加設定です。
type Options struct {
	// ログイン試行制限。MaxAttempts が0以下なら無効
	MaxAttempts  int
	Window       time.Duration
	LockDuration time.Duration

	Metrics *metrics.Manager
	Now     func() time.Time
}

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	credentials CredentialStore
	sessions    *session.Manager
	limiter     *loginLimiter
	metrics     *metrics.Manager
}

// NewManager は認証マネージャーを作成します。
func NewManager(credentials CredentialStore, sessions *session.Manager, opts Options) *Manager {
	return &Manager{
		credentials: credentials,
		sessions:    sessions,
		limiter:     newLoginLimiter(opts.MaxAttempts, opts.Window, opts.LockDuration, opts.Now),
		metrics:     opts.Metrics,
	}
}

type loginRequest struct {
	Password string `json:"password"`
}

// Login は POST /api/auth/login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	// パスワード未設定は入力に関係なくサーバーエラー
	if !m.credentials.Configured() {
		log.Error("login rejected: no password configured (AUTH_PASSWORD / AUTH_DEFAULT_PASSWORD)")
		m.metrics.LoginAttempt(metrics.LoginMisconfigured)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgNotConfigured})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "password を JSON で送ってください",
		})
		return
	}

	ip := c.ClientIP()
	if retryAfter := m.limiter.checkLock(ip); retryAfter > 0 {
		m.metrics.LoginAttempt(metrics.LoginLocked)
		// Retry-After は秒数で返す（切り上げ）
		c.Header("Retry-After", strconv.FormatInt(int64((retryAfter+time.Second-1)/time.Second), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many login attempts"})
		return
	}

	principal, err := m.credentials.Authenticate(req.Password)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			m.metrics.LoginAttempt(metrics.LoginMisconfigured)
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgNotConfigured})
			return
		}
		remaining := m.limiter.recordFailure(ip)
		log.WithFields(log.Fields{"ip": ip, "remaining": remaining}).Warn("login failed: invalid password")
		m.metrics.LoginAttempt(metrics.LoginInvalid)
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgInvalidPassword})
		return
	}

	m.limiter.reset(ip)

	s, err := m.sessions.Issue(c, principal.Name, principal.Role)
	if err != nil {
		log.Errorf("login: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの保存に失敗しました",
		})
		return
	}

	log.WithFields(log.Fields{"ip": ip, "user": s.Identity, "expires_at": s.ExpiresAt}).Info("login succeeded")
	m.metrics.LoginAttempt(metrics.LoginSucceeded)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Logout は POST /api/auth/logout のハンドラーです。RequireLogin の後に置きます。
func (m *Manager) Logout(c *gin.Context) {
	s, _ := CurrentSession(c)
	if err := m.sessions.Revoke(c, s); err != nil {
		log.Errorf("logout: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの削除に失敗しました",
		})
		return
	}
	m.metrics.Logout()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RequireLogin はセッションを検証するミドルウェアを返します。
// 有効なセッションが無ければ後続のハンドラーを呼ばずに 401 を返します。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := m.sessions.Validate(c)
		if err != nil {
			m.reject(c, err)
			return
		}

		if err := m.sessions.Renew(c, s); err != nil {
			// 延長に失敗しても現在のセッションは有効
			log.Warnf("session renew failed: %v", err)
		}

		c.Set(ContextUserKey, s.Identity)
		c.Set(ContextRoleKey, s.Role)
		c.Set(ContextSessionKey, s)
		c.Request = c.Request.WithContext(NewContext(c.Request.Context(), Principal{
			Name: s.Identity,
			Role: s.Role,
		}))
		c.Next()
	}
}

func (m *Manager) reject(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNoSession):
		log.Tracef("[auth] no session => %s", c.Request.URL.Path)
	case errors.Is(err, session.ErrExpired), errors.Is(err, session.ErrRevoked), errors.Is(err, session.ErrMalformed):
		log.Debugf("[auth] %v => %s", err, c.Request.URL.Path)
	default:
		log.Errorf("[auth] session check failed => %s: %v", c.Request.URL.Path, err)
	}

	// 読めない・失効したCookieが残っていれば削除を指示する
	if _, cookieErr := c.Cookie(session.CookieName); cookieErr == nil {
		if clearErr := m.sessions.Clear(c); clearErr != nil {
			log.Warnf("failed to clear session cookie: %v", clearErr)
		}
	}

	m.metrics.Unauthorized()
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgUnauthorized})
}

// CurrentSession は RequireLogin が検証したセッションを返します。
func CurrentSession(c *gin.Context) (*session.Session, bool) {
	v, ok := c.Get(ContextSessionKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*session.Session)
	return s, ok
}
