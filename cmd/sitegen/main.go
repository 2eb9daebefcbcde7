package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	v1 "go_sitegen/api/v1"
	"go_sitegen/internal/auth"
	"go_sitegen/internal/cache"
	"go_sitegen/internal/config"
	"go_sitegen/internal/db"
	"go_sitegen/internal/deploy"
	"go_sitegen/internal/hosting"
	"go_sitegen/internal/stage"
	"go_sitegen/internal/unique"
	"go_sitegen/internal/ws"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("✓ Configuration loaded")

	auth.InitJWT(cfg.JWT.Secret)

	// 2. Initialize MySQL
	if err := db.InitMySQL(cfg.MySQL.DSN); err != nil {
		log.Fatalf("Failed to initialize MySQL: %v", err)
	}
	defer db.Close()

	if cfg.Migrate {
		if err := db.Migrate(db.GetDB()); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		log.Println("✓ Database migrated")
	}

	// 3. Initialize Redis; fall back to the in-process mapping cache when
	// Redis is unavailable so rebuilds still work (slower, not wrong).
	var mappingCache unique.MappingCache
	if err := cache.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		log.Printf("Redis unavailable (%v), using in-memory mapping cache", err)
		mappingCache = unique.NewMemoryMappingCache()
	} else {
		defer cache.Close()
		mappingCache = unique.NewRedisMappingCache(cache.Client, 24*time.Hour)
	}

	// 4. Class-name pools for CSS uniquification
	var pools unique.Pools
	if cfg.Unique.PoolFile != "" {
		pools, err = unique.LoadPools(cfg.Unique.PoolFile)
		if err != nil {
			log.Fatalf("Failed to load class pools: %v", err)
		}
		log.Printf("✓ Loaded %d class pools", len(pools))
	}

	// 5. Staging area for generated site trees
	stager, err := stage.NewStager(cfg.Stage.Root)
	if err != nil {
		log.Fatalf("Failed to initialize stager: %v", err)
	}

	// 6. WebSocket hub for live build-log streaming
	hub, err := ws.NewHub()
	if err != nil {
		log.Fatalf("Failed to initialize websocket hub: %v", err)
	}
	defer hub.Close()

	// 7. Deploy service, runner and background worker
	store := deploy.NewGormStore(db.GetDB())
	deploySvc := deploy.NewService(store, hub)

	hostingCfg := cfg.Hosting
	runner := deploy.NewRunner(deploy.RunnerConfig{
		Store:        store,
		Pools:        pools,
		MappingCache: mappingCache,
		Stager:       stager,
		NewPublisher: func() (deploy.Publisher, error) {
			return hosting.NewClient(
				hostingCfg.APIURL,
				hostingCfg.APIToken,
				hostingCfg.Account,
				time.Duration(hostingCfg.TimeoutSec)*time.Second,
			)
		},
		Broadcast:      hub,
		PublishTimeout: time.Duration(hostingCfg.TimeoutSec) * time.Second,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DeployWorker.Enabled {
		worker := deploy.NewWorker(deploy.WorkerConfig{
			Store:       store,
			Runner:      runner,
			Broadcast:   hub,
			IntervalSec: cfg.DeployWorker.IntervalSec,
			MaxAttempts: cfg.DeployWorker.MaxAttempts,
		})
		go worker.RunLoop(ctx)
		log.Println("✓ Deploy worker started")
	}

	// 8. Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	v1.SetupRouter(r, db.GetDB(), cfg, deploySvc)

	// Socket.io endpoint (JWT checked at handshake)
	r.GET("/socket.io/*any", gin.WrapH(hub.Handler()))
	r.POST("/socket.io/*any", gin.WrapH(hub.Handler()))

	log.Printf("✓ Server starting on %s", cfg.HTTPAddr)

	// Start server
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
