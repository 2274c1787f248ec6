package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"laundryspot-backend/internal/mw"
)

// RouterOptions carries the tunables the router needs from configuration.
type RouterOptions struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst)

	// Micro-cache for the read-mostly washer state endpoint only.
	cacheStore := cache.New(opts.CacheTTL, 10*opts.CacheTTL)
	caching := mw.Cache(cacheStore, opts.CacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/jobs", h.CreateJob)
		api.GET("/jobs", h.ListJobs)
		api.POST("/jobs/:id/accept", h.AcceptJob)
		api.POST("/jobs/:id/cancel", h.CancelJob)
		api.POST("/jobs/:id/pay", h.PayJob)

		api.POST("/washers", h.CreateWasher)
		api.GET("/washers/:id", caching, h.GetWasher)
		api.POST("/washers/:id/onboarding-link", h.WasherOnboardingLink)
		api.POST("/washers/:id/refresh", h.RefreshWasher)

		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
