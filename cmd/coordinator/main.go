package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BruksfildServices01/slot-coordinator/internal/audit"
	"github.com/BruksfildServices01/slot-coordinator/internal/auth"
	"github.com/BruksfildServices01/slot-coordinator/internal/backend"
	"github.com/BruksfildServices01/slot-coordinator/internal/broadcast"
	"github.com/BruksfildServices01/slot-coordinator/internal/config"
	dbpkg "github.com/BruksfildServices01/slot-coordinator/internal/db"
	domain "github.com/BruksfildServices01/slot-coordinator/internal/domain/appointment"
	"github.com/BruksfildServices01/slot-coordinator/internal/logger"
	"github.com/BruksfildServices01/slot-coordinator/internal/metrics"
	"github.com/BruksfildServices01/slot-coordinator/internal/notify"
	"github.com/BruksfildServices01/slot-coordinator/internal/realtime"
	"github.com/BruksfildServices01/slot-coordinator/internal/routes"
	"github.com/BruksfildServices01/slot-coordinator/internal/scheduling"
	"github.com/BruksfildServices01/slot-coordinator/internal/slotcount"
	"github.com/BruksfildServices01/slot-coordinator/internal/timezone"
)

type logNavigator struct {
	logger *zap.Logger
}

func (n logNavigator) Redirect(path string) {
	n.logger.Info("scheduling finished, leaving page", zap.String("path", path))
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg := config.Load()

	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("coordinator stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(); err != nil {
		return err
	}
	userID, err := auth.UserID(cfg.AccessToken, cfg.JWTSecret)
	if err != nil {
		return err
	}
	if !timezone.IsValid(cfg.Timezone) {
		zl.Warn("unknown scheduling timezone, using default",
			zap.String("timezone", cfg.Timezone), zap.String("default", timezone.DefaultTimezone))
		cfg.Timezone = timezone.DefaultTimezone
	}

	sessionID := uuid.NewString()
	zl = zl.With(zap.String("user_id", userID))
	zl.Info("starting coordinator", zap.String("session_id", sessionID), zap.String("env", cfg.Env))

	catalog, err := domain.NewCatalog(domain.WorkingHours{
		Start:       cfg.WorkStart,
		End:         cfg.WorkEnd,
		LunchStart:  cfg.LunchStart,
		LunchEnd:    cfg.LunchEnd,
		SlotMinutes: cfg.SlotMinutes,
	})
	if err != nil {
		return err
	}

	// ======================================================
	// INFRA
	// ======================================================
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	schedulingMetrics := metrics.NewSchedulingMetrics(registry)

	api, err := backend.New(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
		Logger:  zl,
		Observe: schedulingMetrics.ObserveBackend,
	})
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	var sink audit.Sink = audit.NewZapSink(zl)
	if cfg.DBUrl != "" {
		db, err := dbpkg.NewDB(cfg)
		if err != nil {
			return err
		}
		sink = audit.New(db)
	}
	auditDispatcher := audit.NewDispatcher(sink, zl)
	defer auditDispatcher.Close()

	var transport realtime.Transport
	ws, err := realtime.DialWS(ctx, cfg.PushURL, cfg.AccessToken, zl)
	if err != nil {
		zl.Warn("push hub unavailable, running without live updates", zap.Error(err))
	} else {
		transport = ws
		defer func() { _ = ws.Close() }()
	}

	feed := notify.NewFeed(50)

	// ======================================================
	// SCHEDULING
	// ======================================================
	coord, err := scheduling.New(scheduling.Config{
		Token:     cfg.AccessToken,
		UserID:    userID,
		SessionID: sessionID,
		Timezone:  cfg.Timezone,
		Preferences: domain.Preferences{
			SendEmailToUser:         cfg.SendEmailToUser,
			SendNotificationToUser:  cfg.SendNotificationToUser,
			SendEmailToStaff:        cfg.SendEmailToStaff,
			SendNotificationToStaff: cfg.SendNotificationToStaff,
		},
		FetchDebounce:  cfg.FetchDebounce,
		TickInterval:   cfg.TickInterval,
		RedirectDelay:  cfg.RedirectDelay,
		RedirectPath:   cfg.RedirectPath,
		BackendTimeout: cfg.BackendTimeout,
	}, scheduling.Deps{
		Backend:   api,
		Catalog:   catalog,
		Bridge:    broadcast.NewBridge(broadcast.NewRedisChannel(rdb, userID), sessionID, zl),
		Listener:  realtime.NewListener(transport, zl),
		Counts:    slotcount.New(api, rdb, cfg.SlotCountTTL, zl),
		Audit:     auditDispatcher,
		Metrics:   schedulingMetrics,
		Feed:      feed,
		Navigator: logNavigator{logger: zl},
		Logger:    zl,
	})
	if err != nil {
		return err
	}
	coord.Start(ctx)
	defer coord.Close()

	if cfg.DefaultStaffID != "" {
		if err := coord.SelectStaff(ctx, cfg.DefaultStaffID); err != nil {
			zl.Warn("default staff not selected", zap.Error(err))
		}
	}

	// ======================================================
	// HTTP
	// ======================================================
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	routes.RegisterRoutes(r, cfg, routes.Deps{
		Coordinator: coord,
		Feed:        feed,
		UserID:      userID,
		SessionID:   sessionID,
		Metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Logger:      zl,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server running", zap.String("addr", cfg.Addr()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
