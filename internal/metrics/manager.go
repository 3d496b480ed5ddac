// Package metrics は Prometheus メトリクスを提供します。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン試行の結果ラベル
const (
	LoginSucceeded     = "success"
	LoginInvalid       = "invalid_password"
	LoginLocked        = "locked"
	LoginMisconfigured = "misconfigured"
)

// Manager はアプリケーションのメトリクスをまとめた構造体です。
type Manager struct {
	// counters
	CounterRequests           *prometheus.CounterVec
	CounterLoginAttempts      *prometheus.CounterVec
	CounterLogouts            prometheus.Counter
	CounterUnauthorized       prometheus.Counter
	CounterHandleRequestPanic prometheus.Counter

	// histograms
	HistogramRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewTestManager はテスト用に独立したレジストリを持つ Manager を返します。
func NewTestManager() *Manager {
	return NewManager("slowpoke", "test", prometheus.NewRegistry())
}

// NewManager は reg にメトリクスを登録した Manager を作成します。
func NewManager(namespace, subsystem string, reg *prometheus.Registry) *Manager {
	factory := promauto.With(reg)

	return &Manager{
		CounterRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "The total number of handled requests",
		}, []string{"method", "status"}),
		CounterLoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "login_attempts_total",
			Help:      "The total number of login attempts by result",
		}, []string{"result"}),
		CounterLogouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "logouts_total",
			Help:      "The total number of logouts",
		}),
		CounterUnauthorized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "unauthorized_requests_total",
			Help:      "The total number of requests rejected by the session gate",
		}),
		CounterHandleRequestPanic: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handle_request_panic_total",
			Help:      "The total number of serve request panics",
		}),
		HistogramRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		gatherer: reg,
	}
}

// LoginAttempt はログイン試行を結果別に数えます。nil の Manager でも呼び出せます。
func (m *Manager) LoginAttempt(result string) {
	if m == nil {
		return
	}
	m.CounterLoginAttempts.WithLabelValues(result).Inc()
}

// Logout はログアウト回数を数えます。
func (m *Manager) Logout() {
	if m == nil {
		return
	}
	m.CounterLogouts.Inc()
}

// Unauthorized はセッション検証で拒否したリクエストを数えます。
func (m *Manager) Unauthorized() {
	if m == nil {
		return
	}
	m.CounterUnauthorized.Inc()
}

// Panic はハンドラー内の panic を数えます。
func (m *Manager) Panic() {
	if m == nil {
		return
	}
	m.CounterHandleRequestPanic.Inc()
}

// RequestMetrics はリクエスト数と処理時間を記録する gin ミドルウェアです。
func (m *Manager) RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.CounterRequests.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.HistogramRequestDuration.WithLabelValues(c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Handler は /metrics 用のハンドラーを返します。
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
