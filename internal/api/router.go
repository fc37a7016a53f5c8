package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/viewcache/internal/app"
	"github.com/charlesng35/viewcache/internal/cache"
	"github.com/charlesng35/viewcache/internal/handlers"
	"github.com/charlesng35/viewcache/internal/middleware"
	"github.com/charlesng35/viewcache/internal/services"
	"github.com/charlesng35/viewcache/internal/viewcache"
)

// NewRouter builds the Gin engine, wires middleware and registers the cached
// view routes.
func NewRouter(db *gorm.DB, store cache.Store, vc *viewcache.Cache, cfg *app.Config) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if store == nil {
		return nil, fmt.Errorf("cache store must be provided")
	}
	if vc == nil {
		return nil, fmt.Errorf("view cache must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	if limit := cfg.Server.RateLimit; limit.Enabled {
		r.Use(middleware.RateLimit(middleware.NewStoreRateStore(store), limit.MaxRequests, limit.Window))
	}

	// Health endpoint (public)
	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(db, store))
	}

	authorSvc, err := services.NewAuthorService(db)
	if err != nil {
		return nil, err
	}
	articleSvc, err := services.NewArticleService(db)
	if err != nil {
		return nil, err
	}
	commentSvc, err := services.NewCommentService(db)
	if err != nil {
		return nil, err
	}

	authorHandler := handlers.NewAuthorHandler(authorSvc, vc, db)
	articleHandler := handlers.NewArticleHandler(articleSvc, vc, db)
	commentHandler := handlers.NewCommentHandler(commentSvc, vc, db)

	api := r.Group("/api")

	authors := api.Group("/authors")
	{
		authors.GET("", authorHandler.List)
		authors.GET("/:id", authorHandler.Get)
		authors.POST("", authorHandler.Create)
		authors.PATCH("/:id", authorHandler.Update)
		authors.DELETE("/:id", authorHandler.Delete)
	}

	articles := api.Group("/articles")
	{
		articles.GET("", articleHandler.List)
		articles.GET("/:id", articleHandler.Get)
		articles.POST("", articleHandler.Create)
		articles.PATCH("/:id", articleHandler.Update)
		articles.POST("/:id/publish", articleHandler.Publish)
		articles.DELETE("/:id", articleHandler.Delete)

		articles.GET("/:id/comments", commentHandler.ListForArticle)
		articles.POST("/:id/comments", commentHandler.Create)
		articles.PATCH("/:id/comments/:commentId", commentHandler.Update)
		articles.DELETE("/:id/comments/:commentId", commentHandler.Delete)
	}

	// Metrics endpoint
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
