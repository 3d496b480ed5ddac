package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/slowpoke-api/internal/auth"
	"github.com/yourusername/slowpoke-api/internal/config"
	"github.com/yourusername/slowpoke-api/internal/logging"
	"github.com/yourusername/slowpoke-api/internal/metrics"
	"github.com/yourusername/slowpoke-api/internal/session"
	"github.com/yourusername/slowpoke-api/internal/todo"
)

type routerDeps struct {
	sessionSecret []byte
	revocations   session.Revocations
	metrics       *metrics.Manager
	now           func() time.Time
}

// newRouter はミドルウェアとルーティングを設定した gin.Engine を返します。
func newRouter(cfg *config.Config, deps routerDeps) (*gin.Engine, error) {
	router := gin.New()
	router.Use(
		logging.Recovery(deps.metrics.Panic),
		logging.RequestLogger(),
		deps.metrics.RequestMetrics(),
	)

	// CORSミドルウェアの設定（Cookie を送るため credentials を許可）
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	// セッションストアの設定（クッキー署名鍵は必須）
	router.Use(session.Middleware(session.NewCookieStore(deps.sessionSecret)))

	if err := setupRoutes(router, cfg, deps); err != nil {
		return nil, err
	}
	return router, nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "slowpoke-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, deps routerDeps) error {
	// 誰でも叩けるエンドポイント
	router.GET("/health", handleHealth)
	router.GET("/metrics", gin.WrapH(deps.metrics.Handler()))

	sessions := session.NewManager(deps.revocations, session.WithClock(deps.now))
	authManager := auth.NewManager(auth.NewSingleAdmin(cfg.Password()), sessions, auth.Options{
		MaxAttempts:  cfg.LoginMaxAttempts,
		Window:       time.Duration(cfg.LoginWindowMinutes) * time.Minute,
		LockDuration: time.Duration(cfg.LoginLockMinutes) * time.Minute,
		Metrics:      deps.metrics,
		Now:          deps.now,
	})

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			// ログインはセッション無しで呼べる
			authRoutes.POST("/login", authManager.Login)
			authRoutes.POST("/logout", authManager.RequireLogin(), authManager.Logout)
		}
	}

	todos, err := todo.NewRepository(todo.Seed(deps.now()))
	if err != nil {
		return fmt.Errorf("failed to seed todos: %w", err)
	}

	todoRoutes := router.Group("/todos")
	todoRoutes.Use(authManager.RequireLogin())
	{
		todoRoutes.GET("/", todo.ListHandler(todos))
		todoRoutes.GET("/:id", todo.GetHandler(todos))
	}
	return nil
}
