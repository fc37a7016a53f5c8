package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/viewcache/internal/api"
	"github.com/charlesng35/viewcache/internal/app"
	"github.com/charlesng35/viewcache/internal/app/maintenance"
	"github.com/charlesng35/viewcache/internal/cache"
	"github.com/charlesng35/viewcache/internal/database"
	"github.com/charlesng35/viewcache/internal/services"
	"github.com/charlesng35/viewcache/internal/viewcache"
	"github.com/charlesng35/viewcache/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("viewcache-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	store, dbStore, closeStore := selectCacheStore(cfg, db, log)
	defer closeStore()

	registry := viewcache.NewRegistry()
	if err := services.RegisterBindings(registry, db); err != nil {
		return fmt.Errorf("register cache bindings: %w", err)
	}

	vc, err := viewcache.New(store, registry, cfg.Cache.ViewCacheOptions())
	if err != nil {
		return fmt.Errorf("initialise view cache: %w", err)
	}

	worker, err := viewcache.NewWorker(vc, 0)
	if err != nil {
		return fmt.Errorf("initialise invalidation worker: %w", err)
	}
	worker.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := worker.Stop(stopCtx); err != nil {
			log.Warn("invalidation worker drain failed", zap.Error(err))
		}
	}()

	plugin, err := viewcache.NewPlugin(worker, registry)
	if err != nil {
		return fmt.Errorf("initialise invalidation plugin: %w", err)
	}
	if err := db.Use(plugin); err != nil {
		return fmt.Errorf("install invalidation plugin: %w", err)
	}

	if cfg.Maintenance.Enabled && dbStore != nil {
		cleaner := maintenance.NewCleaner(dbStore, maintenance.WithSchedule(cfg.Maintenance.Schedule))
		if err := cleaner.Start(); err != nil {
			return fmt.Errorf("start maintenance jobs: %w", err)
		}
		defer func() {
			stopCtx := cleaner.Stop()
			if err := cleaner.RunOnce(stopCtx); err != nil {
				log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
			}
		}()
	}

	router, err := api.NewRouter(db, store, vc, cfg)
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

// selectCacheStore picks the configured backend, falling through to the next
// candidate when a remote backend is unreachable: redis, memcached, the SQL
// cache table, and finally the in-process store. The returned DatabaseStore is
// non-nil only when the SQL table is in use and needs scheduled purging.
func selectCacheStore(cfg *app.Config, db *gorm.DB, log *zap.Logger) (cache.Store, *cache.DatabaseStore, func()) {
	if cfg.Cache.Redis.Enabled {
		client, err := cache.NewRedisClient(cfg.Cache.RedisClientConfig())
		if err != nil {
			log.Warn("redis unavailable; trying next cache backend", zap.Error(err))
		} else {
			log.Info("cache backend: redis", zap.String("addr", cfg.Cache.Redis.Address))
			return client, nil, func() { _ = client.Close() }
		}
	}

	if cfg.Cache.Memcached.Enabled {
		store, err := cache.NewMemcachedStore(cfg.Cache.MemcachedClientConfig())
		if err != nil {
			log.Warn("memcached unavailable; trying next cache backend", zap.Error(err))
		} else {
			log.Info("cache backend: memcached", zap.Strings("addrs", cfg.Cache.Memcached.Addresses))
			return store, nil, func() {}
		}
	}

	if cfg.Cache.Database.Enabled {
		store := cache.NewDatabaseStore(db)
		log.Info("cache backend: database")
		return store, store, func() {}
	}

	store := cache.NewMemoryStore()
	log.Info("cache backend: memory")
	return store, nil, store.Stop
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.MigrateAll(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
