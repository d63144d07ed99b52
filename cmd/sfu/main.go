package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"
	"sfucore/internal/core/services"
	"sfucore/internal/infrastructure/distributed"
	"sfucore/internal/infrastructure/httpapi"
	"sfucore/internal/infrastructure/mediaengine"
	"sfucore/internal/infrastructure/middleware"
	"sfucore/internal/infrastructure/monitoring"
	redisrepo "sfucore/internal/infrastructure/repositories/redis"
	signaling "sfucore/internal/infrastructure/signal"
	"sfucore/pkg/config"
	"sfucore/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// defaultCodecs is the fixed codec set every router advertises (spec.md
// §4.1 RouterOptions.MediaCodecs); a production deployment would source
// this from config the same way cfg.WebRTC.ICEServers is sourced, but no
// spec scenario exercises more than one codec set.
var defaultCodecs = []ports.MediaCodec{
	{Kind: "audio", MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
	{Kind: "video", MimeType: "video/VP8", ClockRate: 90000},
	{Kind: "video", MimeType: "video/H264", ClockRate: 90000},
}

func main() {
	startTime := time.Now()

	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/root/configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	var iceServers []webrtc.ICEServer
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	engine := mediaengine.NewEngine(iceServers, cfg.WebRTC.PortRange.Min, cfg.WebRTC.PortRange.Max, log)
	metrics := monitoring.NewPrometheusCollector()
	healthChecker := monitoring.NewHealthChecker()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var eventBus ports.EventBus
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		client, rerr := redisrepo.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, log)
		if rerr != nil {
			log.Warnw("failed to connect to redis, falling back to a local event bus", "error", rerr)
			eventBus = distributed.NewLocalEventBus()
		} else {
			if merr := redisrepo.Migrate(ctx, client, log); merr != nil {
				log.Warnw("redis schema migration failed", "error", merr)
			}
			redisClient = client
			instanceID := os.Getenv("HOSTNAME")
			if instanceID == "" {
				instanceID = "sfucore-0"
			}
			eventBus = distributed.NewRedisEventBus(client, instanceID, log)
			healthChecker.AddRedisCheck(client, 30*time.Second, 5*time.Second)
		}
	} else {
		eventBus = distributed.NewLocalEventBus()
	}

	// srv.OnWorkerDied needs a live *Server, but building a Server needs a
	// live WorkerPool first; the pool is handed a thin trampoline closure
	// here and srv is assigned into it below, right after construction.
	var srv *services.Server
	pool, err := services.NewWorkerPool(ctx, engine, cfg.SFU.NumWorkers, cfg.SFU.BaseWorkerPort, cfg.SFU.WorkerLogLevel,
		func(workerID domain.WorkerID, dieErr error) {
			if srv != nil {
				srv.OnWorkerDied(workerID, dieErr)
			}
		}, log)
	if err != nil {
		log.Fatalw("failed to start worker pool", "error", err)
	}

	scheduler := services.NewScheduler(pool, defaultCodecs, eventBus, metrics, log)

	shaper := mediaengine.NewTCShaper(cfg.Security.ThrottleInterface, log)
	throttle := services.NewThrottleCoordinator(shaper, cfg.Security.ThrottleSecret, log)

	srv = services.NewServer(pool, scheduler, throttle, eventBus, log)

	healthChecker.AddWorkerPoolCheck(func() bool { return pool.Size() > 0 }, 30*time.Second, 5*time.Second)
	healthChecker.AddReadinessCheck(redisClient, func() bool { return pool.Size() > 0 }, 30*time.Second, 5*time.Second)

	getOrCreateRoom := func(ctx context.Context, roomID domain.RoomID) (*services.Room, error) {
		return srv.GetOrCreateRoom(ctx, roomID, cfg.SFU.ConsumerReplicas, cfg.SFU.UsePipeTransports)
	}

	signalHandler := signaling.NewHandler(
		func(ctx context.Context, roomID domain.RoomID) (signaling.RoomOps, error) { return getOrCreateRoom(ctx, roomID) },
		throttle,
		log,
	)

	broadcasterHandler := httpapi.NewHandler(
		func(ctx context.Context, roomID domain.RoomID) (httpapi.RoomOps, error) { return getOrCreateRoom(ctx, roomID) },
		log,
	)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	router.Use(middleware.OriginMiddleware(cfg.Security.Origin))
	router.Use(middleware.ErrorHandlerMiddleware(log))

	broadcasterHandler.SetupRoutes(router)

	router.GET("/rooms/:roomId/peers/:peerId/ws", func(c *gin.Context) {
		roomID := domain.RoomID(c.Param("roomId"))
		peerID := domain.PeerID(c.Param("peerId"))
		signalHandler.ServeHTTP(c.Writer, c.Request, roomID, peerID)
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"uptime": time.Since(startTime).String(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	httpSrv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting sfu server", "address", cfg.Server.Address)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigCh:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during http shutdown", "error", err)
		_ = httpSrv.Close()
	}

	srv.Shutdown()
	_ = eventBus.Close()
	cancel()

	log.Info("sfu server stopped")
}
