package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"attendance-backend/config"
	"attendance-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()

	limit := rate.Limit(10)
	if cfg.RateLimitPerSec > 0 {
		limit = rate.Limit(cfg.RateLimitPerSec)
	}
	rateLimiter := mw.RateLimiter(limit, 5)

	cacheTTL := 5 * time.Second
	if cfg.CacheTTLSeconds > 0 {
		cacheTTL = time.Duration(cfg.CacheTTLSeconds) * time.Second
	}
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/device/status", h.GetDeviceStatus)
		api.POST("/device/connect", h.ConnectDevice)
		api.POST("/device/clear", h.ClearTemplates)

		api.POST("/enroll", h.Enroll)

		api.POST("/attendance/record", h.RecordAttendance)
		api.GET("/attendance/today", h.GetTodayAttendance)
		api.GET("/employees", caching, h.GetEmployees)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	// The live feed and metrics sit outside the rate limiter: the feed is
	// one long-lived connection and prometheus scrapes on its own schedule.
	r.GET("/ws/events", h.StreamEvents)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
