package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"locker-access-backend/internal/mw"
)

// RouterConfig tunes the middleware applied to the API group.
type RouterConfig struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration
}

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, rc RouterConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(rc.RateLimitPerSec), rc.RateLimitBurst)

	// Read-side cache for the browse endpoints only; command endpoints must
	// never serve stale responses.
	cacheStore := cache.New(rc.CacheTTL, 2*rc.CacheTTL)
	caching := mw.Cache(cacheStore, rc.CacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// GET /api/cabinets
		api.GET("/cabinets", caching, handler.GetCabinets)

		// GET /api/cabinets/{cabinet_id}/lockers
		api.GET("/cabinets/:cabinet_id/lockers", handler.GetCabinetLockers)

		// Locker commands
		api.POST("/lockers/unlock", handler.Unlock)
		api.POST("/lockers/lock", handler.Lock)
		api.GET("/lockers/:locker_id/transactions", handler.GetLockerTransactions)

		// One-time access tokens
		api.POST("/qr/generate", handler.GenerateToken)
		api.POST("/qr/scan", handler.ScanToken)

		// Push subscriptions
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
