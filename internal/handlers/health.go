package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/viewcache/internal/cache"
	"github.com/charlesng35/viewcache/pkg/response"
)

// Health reports readiness of the database and the cache store.
func Health(db *gorm.DB, store cache.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := requestContext(c)

		status := gin.H{"status": "ok"}
		healthy := true

		if db != nil {
			if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
				status["database"] = "unreachable"
				healthy = false
			} else {
				status["database"] = "ok"
			}
		}

		if store != nil {
			probe := "vc:health:" + time.Now().UTC().Format(time.RFC3339Nano)
			if err := store.Set(ctx, probe, []byte("1"), time.Minute); err != nil {
				status["cache"] = "unreachable"
				healthy = false
			} else {
				_ = store.Delete(ctx, probe)
				status["cache"] = "ok"
			}
		}

		if !healthy {
			status["status"] = "degraded"
			response.Success(c, http.StatusServiceUnavailable, status)
			return
		}
		response.Success(c, http.StatusOK, status)
	}
}
