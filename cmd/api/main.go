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

	"dialdesk/internal/agents"
	"dialdesk/internal/auth"
	"dialdesk/internal/billing"
	"dialdesk/internal/calls"
	"dialdesk/internal/config"
	"dialdesk/internal/gateway"
	"dialdesk/internal/telephony"
	"dialdesk/pkg/logger"
	"dialdesk/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
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

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	voiceIssuer, err := telephony.NewAccessTokenIssuer(cfg.Twilio)
	if err != nil {
		log.Error("voice token init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	var legs telephony.LegMap
	switch cfg.LegMap.Backend {
	case "redis":
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		legs = telephony.NewRedisLegMap(rdb, cfg.LegMap.TTL)
	default:
		legs = telephony.NewMemoryLegMap(cfg.LegMap.TTL, time.Minute)
	}
	defer legs.Close()

	hub := gateway.NewHub(log)
	go hub.Run()
	defer hub.Stop()

	store := calls.NewPostgresStore(db)

	a := &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		auth:     authManager,
		agents:   agents.NewPostgresRepo(db),
		store:    store,
		legs:     legs,
		hub:      hub,
		provider: telephony.NewTwilioProvider(cfg.Twilio),
		voice:    voiceIssuer,
		billing:  billing.NewService(store, cfg.Billing.RatePerMinute),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	a.registerRoutes(r)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
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
