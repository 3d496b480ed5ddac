// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/yourusername/slowpoke-api/internal/config"
	"github.com/yourusername/slowpoke-api/internal/logging"
	"github.com/yourusername/slowpoke-api/internal/metrics"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.Setup(logging.Params{
		Level:       cfg.LogLevel,
		FormatJSON:  cfg.LogFormatJSON,
		FileName:    cfg.LogFile,
		LogToStdout: true,
	})

	if cfg.Password() == "" {
		log.Warn("AUTH_PASSWORD / AUTH_DEFAULT_PASSWORD is not set; every login will fail with 500")
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret, err = randomKey(32)
		if err != nil {
			log.Fatalf("Failed to generate session secret: %v", err)
		}
		log.Warn("SESSION_SECRET is not set; using a random key, sessions will not survive a restart")
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsManager := metrics.NewManager("slowpoke", "api", registry)

	revocations, closeRevocations, err := setupRevocations(cfg)
	if err != nil {
		log.Fatalf("Failed to set up session revocations: %v", err)
	}
	defer closeRevocations()

	router, err := newRouter(cfg, routerDeps{
		sessionSecret: secret,
		revocations:   revocations,
		metrics:       metricsManager,
		now:           time.Now,
	})
	if err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Starting API server on %s (mode: %s)", srv.Addr, cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}
}

func randomKey(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
