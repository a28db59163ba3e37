package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SupplyChainLedger/internal/api/handler"
	"github.com/jmerrifield20/SupplyChainLedger/internal/app"
	"github.com/jmerrifield20/SupplyChainLedger/internal/config"
	"github.com/jmerrifield20/SupplyChainLedger/internal/identity"
	"github.com/jmerrifield20/SupplyChainLedger/internal/integrity"
)

const sessionIssuer = "ledgerd"

func main() {
	// Bootstrap logger until the configured one is built.
	logger, _ := zap.NewProduction()

	cfg, err := config.Load(config.New(os.Getenv("LEDGER_CONFIG")))
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	configured, err := config.NewLogger(cfg.Log)
	if err != nil {
		logger.Fatal("build logger", zap.Error(err))
	}
	logger = configured
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("ledgerd exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.File != "" {
		logger.Info("config loaded", zap.String("file", cfg.File))
	}

	// ── Ledger ───────────────────────────────────────────────────────────────
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close ledger", zap.Error(err))
		}
	}()
	handler.SetRecordsGauge(a.Store.Len())

	// ── Identity ─────────────────────────────────────────────────────────────
	created, err := identity.EnsureFile(cfg.Auth.UsersFile)
	if err != nil {
		return err
	}
	if created {
		logger.Warn("wrote demo credentials; change them before exposing the server",
			zap.String("users_file", cfg.Auth.UsersFile))
	}
	users, err := identity.LoadDirectory(cfg.Auth.UsersFile)
	if err != nil {
		return err
	}

	secret := []byte(cfg.Auth.SessionSecret)
	if len(secret) == 0 {
		if secret, err = identity.RandomSecret(); err != nil {
			return err
		}
		logger.Warn("auth.session_secret not set; sessions will not survive a restart")
	}
	sessions := identity.NewSessionIssuer(secret, sessionIssuer, cfg.Auth.SessionTTL)
	if cfg.Auth.AdminSecret == "" {
		logger.Info("auth.admin_secret not set; ledger reset over HTTP is disabled")
	}

	// ── Integrity auditor ────────────────────────────────────────────────────
	auditor := integrity.New(a.Store, integrity.Config{Interval: cfg.Integrity.Interval}, logger)
	auditor.SetMetricsRecord(handler.RecordIntegrityCheck)
	go auditor.Start(ctx)

	router := newRouter(ctx, cfg, a, users, sessions, auditor, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledgerd HTTP listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("storage", cfg.Storage.Driver),
			zap.Bool("enforce_transitions", a.Tracking.EnforcesTransitions()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down ledgerd...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("ledgerd stopped")
	return nil
}

// newRouter assembles middleware and routes. ctx bounds background work such
// as the rate limiter's cleanup loop.
func newRouter(
	ctx context.Context,
	cfg *config.Config,
	a *app.App,
	users *identity.Directory,
	sessions *identity.SessionIssuer,
	auditor *integrity.Auditor,
	logger *zap.Logger,
) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS
	origins := cfg.Server.CORSOrigins
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	router.Use(handler.RateLimiter(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitRPS*2))
	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", handler.HealthHandler(auditor))
	router.GET("/metrics", handler.MetricsHandler())

	onAppend := func() {
		handler.RecordAppend()
		handler.SetRecordsGauge(a.Store.Len())
	}
	onReset := func() {
		handler.RecordReset()
		handler.SetRecordsGauge(a.Store.Len())
	}

	v1 := router.Group("/api/v1")
	handler.NewAuthHandler(users, sessions, cfg.Auth.AdminSecret, logger).Register(v1)
	handler.NewProductHandler(a.Tracking, a.Query, sessions, onAppend, logger).Register(v1)
	handler.NewLedgerHandler(a.Store, sessions, onReset, logger).Register(v1)

	return router
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
