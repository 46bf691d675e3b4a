package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BruksfildServices01/slot-coordinator/internal/config"
	"github.com/BruksfildServices01/slot-coordinator/internal/handlers"
	"github.com/BruksfildServices01/slot-coordinator/internal/middleware"
	"github.com/BruksfildServices01/slot-coordinator/internal/notify"
)

type Deps struct {
	Coordinator handlers.Coordinator
	Feed        *notify.Feed
	UserID      string
	SessionID   string
	Metrics     http.Handler
	Logger      *zap.Logger
}

func RegisterRoutes(r *gin.Engine, cfg *config.Config, deps Deps) {

	// ======================================================
	// GLOBAL MIDDLEWARE
	// ======================================================
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	// ======================================================
	// HANDLERS
	// ======================================================
	healthHandler := handlers.NewHealthHandler(deps.SessionID)
	schedulingHandler := handlers.NewSchedulingHandler(deps.Coordinator, deps.Feed)

	r.GET("/health", healthHandler.Health)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	// ======================================================
	// API (JSON)
	// ======================================================
	api := r.Group("/api")
	api.Use(middleware.RateLimitMiddleware(apiLimiter(cfg), deps.Logger))
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret, deps.UserID))
	{
		api.GET("/state", schedulingHandler.GetState)
		api.GET("/notifications", schedulingHandler.Notifications)
		api.GET("/slot-counts", schedulingHandler.SlotCounts)

		api.POST("/staff", schedulingHandler.SelectStaff)
		api.POST("/date", schedulingHandler.SelectDate)
		api.POST("/refresh", schedulingHandler.Refresh)
		api.POST("/slot", schedulingHandler.SelectSlot)

		api.POST("/lock/cancel", schedulingHandler.CancelLock)
		api.POST("/confirm", schedulingHandler.Confirm)
		api.POST("/conflict/resolve", schedulingHandler.ResolveConflict)
	}
}

func apiLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.APIRate <= 0 {
		return nil
	}
	burst := cfg.APIBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.APIRate), burst)
}
