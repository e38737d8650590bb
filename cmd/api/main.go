package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"event-access/internal/access"
	"event-access/internal/app"
	"event-access/internal/audit"
	"event-access/internal/auth"
	"event-access/internal/config"
	"event-access/internal/httpapi"
	"event-access/internal/i18n"
	"event-access/internal/occupancy"
	"event-access/internal/rbac"
	"event-access/pkg/logger"
	"event-access/pkg/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	catalog, err := i18n.New(cfg.App.Locale)
	if err != nil {
		log.Error("i18n init failed", "err", err)
		os.Exit(1)
	}

	store, err := app.OpenStorage(rootCtx, cfg, cfg.DB.MigrateOnStart, log)
	if err != nil {
		log.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	auditSvc := audit.NewService(store.Audit)
	opts := access.Options{
		Audit:        access.AuditAdapter{Audit: auditSvc},
		Location:     cfg.Location(),
		HistoryLimit: cfg.Access.HistoryLimit,
	}

	var feed *occupancy.Feed
	if cfg.RedisEnabled() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()

		opts.Publisher = occupancy.NewPublisher(rdb)
		if cfg.Access.ScanDebounce > 0 {
			opts.Debouncer = occupancy.NewDebouncer(rdb, cfg.Access.ScanDebounce)
		}
		feed = occupancy.NewFeed(rdb)
	} else {
		log.Warn("redis disabled: no live occupancy and no scan debounce")
	}

	h := httpapi.Handlers{
		Access:   access.NewService(store.Access, opts),
		Auth:     authManager,
		Accounts: auth.NewAccounts(adminAccount(cfg.Auth)),
		Audit:    auditSvc,
		Feed:     feed,
		Location: cfg.Location(),
	}

	// Gin router
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(httpapi.ClientIP())
	r.Use(i18n.Middleware(catalog))

	registerRoutes(r, h, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// WriteTimeout stays zero: the live stats stream is long-lived.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "db_driver", store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// adminAccount is the bootstrap login. Without a hash it is skipped and
// only accessctl-minted tokens work.
func adminAccount(cfg config.AuthConfig) auth.Account {
	return auth.Account{
		ID:           cfg.AdminUser,
		Username:     cfg.AdminUser,
		Name:         cfg.AdminUser,
		Role:         rbac.RoleAdmin,
		PasswordHash: cfg.AdminPasswordHash,
	}
}
