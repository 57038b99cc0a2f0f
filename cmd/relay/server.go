package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"framerelay/internal/core/domain"
	"framerelay/internal/core/ports"
	"framerelay/internal/core/services"
	httphandlers "framerelay/internal/handlers/http"
	"framerelay/internal/infrastructure/distributed"
	"framerelay/internal/infrastructure/middleware"
	"framerelay/internal/infrastructure/monitoring"
	"framerelay/internal/infrastructure/relay"
	"framerelay/internal/infrastructure/repositories"
	"framerelay/pkg/config"
	"framerelay/pkg/logger"
	"framerelay/pkg/tracing"
	"framerelay/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// app holds every long-lived component of one relay process.
type app struct {
	cfg        *config.Config
	log        *zap.SugaredLogger
	instanceID string
	started    time.Time

	metrics   *services.MetricsService
	promReg   *prometheus.Registry
	registry  *services.SessionRegistry
	factory   *repositories.RepositoryFactory
	directory ports.StreamDirectory
	health    *monitoring.HealthChecker
	relay     *relay.Relay
	ws        *relay.WebSocketServer
	requests  *logger.ContextLogger
}

func newApp(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) *app {
	log := zapLogger.Sugar()
	a := &app{
		cfg:        cfg,
		log:        log,
		instanceID: instanceID(),
		started:    utils.Now(),
		metrics:    services.NewMetricsService(),
		health:     monitoring.NewHealthChecker(),
		requests:   logger.NewContextLogger(zapLogger.Named("http")),
	}

	var relayMetrics ports.RelayMetrics = a.metrics
	if cfg.Monitoring.PrometheusEnabled {
		a.promReg = prometheus.NewRegistry()
		a.promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		relayMetrics = services.MultiMetrics{a.metrics, monitoring.NewPrometheusCollector(a.promReg)}
	}

	a.registry = services.NewSessionRegistry(services.RegistryConfig{
		Limits: domain.Limits{
			MaxStreams:          cfg.Relay.MaxStreams,
			MaxViewersPerStream: cfg.Relay.MaxViewersPerStream,
		},
		ChannelCapacity: cfg.Relay.ChannelCapacity,
		StreamIDLength:  cfg.Relay.StreamIDLength,
	}, relayMetrics, log.Named("registry"))

	a.factory = repositories.NewRepositoryFactory(ctx, cfg, a.instanceID, log.Named("repositories"))
	a.directory = a.factory.CreateStreamDirectory()
	a.health.AddDirectoryCheck(a.directory, 2*time.Second)

	a.relay = relay.NewRelay(a.registry, a.directory, relayMetrics, log.Named("relay"))
	a.ws = relay.NewWebSocketServer(a.relay, relay.Options{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		MaxMessageSize:  cfg.WebSocket.MaxMessageSizeBytes,
		AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
	}, log.Named("websocket"))

	return a
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "relay"
	}
	return host + "-" + uuid.NewString()[:8]
}

// router builds the HTTP surface. Websocket routes sit outside the HTTP
// rate limiter because a connection holds its request open for its whole
// lifetime.
func (a *app) router() *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(a.log),
		middleware.RequestLoggerMiddleware(a.requests),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(a.log),
	)

	ws := router.Group("/ws", middleware.NewWebSocketRateLimitMiddleware(a.cfg))
	{
		ws.GET("/stream", gin.WrapF(a.ws.HandlePublish))
		ws.GET("/view", gin.WrapF(a.ws.HandleView))
	}

	if path := a.cfg.Server.BlocklistPath; path != "" {
		if _, err := os.Stat(path); err == nil {
			router.StaticFile("/blocklist.txt", path)
		} else {
			a.log.Infow("blocklist file not found, /blocklist.txt disabled", "path", path)
		}
	}

	router.GET("/health", a.handleHealth)
	router.GET("/ready", a.handleReady)

	if a.promReg != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{})))
	}

	api := router.Group("", middleware.NewHTTPRateLimitMiddleware(a.cfg))
	httphandlers.NewStreamHandler(a.registry, a.directory).SetupRoutes(api)

	return router
}

func (a *app) handleHealth(c *gin.Context) {
	snap := a.metrics.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":      monitoring.StatusHealthy,
		"instance_id": a.instanceID,
		"streams":     a.registry.Len(),
		"viewers":     snap.ActiveViewers,
		"connections": a.ws.ActiveConnections(),
		"uptime":      utils.FormatDuration(utils.Since(a.started)),
		"timestamp":   utils.Now().UTC(),
		"metrics":     snap,
	})
}

func (a *app) handleReady(c *gin.Context) {
	status := a.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != monitoring.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// watchRemoteStreams logs stream lifecycle events from other relays.
func (a *app) watchRemoteStreams(ctx context.Context, bus *distributed.EventBus) {
	log := a.log.Named("events")
	err := bus.Subscribe(ctx, func(e *distributed.Event) error {
		log.Infow("remote stream event",
			"type", e.Type,
			"stream_id", e.StreamID,
			"instance_id", e.InstanceID,
		)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warnw("event subscription ended", "error", err)
	}
}

func run(ctx context.Context, configPath, logLevel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("tracing disabled", "error", err)
		tp = &tracing.TracerProvider{}
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	a := newApp(ctx, cfg, zapLogger)

	eventsCtx, stopEvents := context.WithCancel(ctx)
	defer stopEvents()
	if bus := a.factory.EventBus(); bus != nil {
		go a.watchRemoteStreams(eventsCtx, bus)
	}

	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           a.router(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting relay",
			"address", srv.Addr,
			"instance_id", a.instanceID,
			"max_streams", cfg.Relay.MaxStreams,
			"max_viewers_per_stream", cfg.Relay.MaxViewersPerStream,
			"channel_capacity", cfg.Relay.ChannelCapacity,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case err := <-serverErr:
		runErr = fmt.Errorf("server failed: %w", err)
		log.Errorw("server failed", "error", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting first, then close live connections so every publisher
	// unregisters and every viewer releases its slot.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		_ = srv.Close()
	}
	if err := a.ws.Shutdown(shutdownCtx); err != nil {
		log.Warnw("websocket connections did not drain", "error", err)
	}

	stopEvents()
	if err := a.factory.Close(shutdownCtx); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warnw("error flushing traces", "error", err)
	}

	log.Infow("relay stopped", "uptime", utils.FormatDuration(utils.Since(a.started)))
	return runErr
}
