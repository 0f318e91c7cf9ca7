package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"roster/internal/config"
	"roster/internal/employee"
	"roster/internal/httpapi"
	"roster/internal/httpmiddleware"
	"roster/internal/logger"
	"roster/internal/metrics"
	"roster/internal/queue"
	"roster/internal/snapshot"
	"roster/internal/store"
	"roster/internal/student"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		stdlog.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = log.Sync() }()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	studentDB, err := store.NewDB(cfg.StudentsDB)
	if err != nil {
		return err
	}
	defer studentDB.Close()

	employeeDB, err := store.NewDB(cfg.EmployeesDB)
	if err != nil {
		return err
	}
	defer employeeDB.Close()

	var redisClient *store.Redis
	if cfg.RedisAddr != "" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		if !redisClient.Healthy(ctx) {
			log.Warn("redis not reachable at startup", zap.String("addr", cfg.RedisAddr))
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	var q queue.Queue
	if cfg.UseRedis(cfg.QueueBackend) {
		q = queue.NewRedisQueue(redisClient.Client, "")
	} else {
		q = queue.NewInMemory(256)
	}

	studentOpts := []student.Option{student.WithEvents(q), student.WithMetrics(m)}
	employeeOpts := []employee.Option{employee.WithEvents(q), employee.WithMetrics(m)}
	if redisClient != nil {
		studentOpts = append(studentOpts, student.WithCache(redisClient, cfg.DashboardTTL))
		employeeOpts = append(employeeOpts, employee.WithCache(redisClient, cfg.DashboardTTL))
	}

	studentRepo, err := student.NewRepository(ctx, studentDB)
	if err != nil {
		return err
	}
	employeeRepo, err := employee.NewRepository(ctx, employeeDB)
	if err != nil {
		return err
	}
	students := student.NewService(studentRepo, log.Named("student"), studentOpts...)
	employees := employee.NewService(employeeRepo, log.Named("employee"), employeeOpts...)

	// Without a shared queue nobody else will see our events, so consume them here.
	if _, inProcess := q.(*queue.InMemory); inProcess {
		worker, err := newSnapshotWorker(cfg, log, students, employees, redisClient)
		if err != nil {
			return err
		}
		events, err := q.Consume(ctx)
		if err != nil {
			return err
		}
		go worker.Run(ctx, events)
	}

	var limiter httpmiddleware.Limiter
	if cfg.UseRedis(cfg.RateLimitBackend) {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	} else {
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.AccessLog(log.Named("http"), "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(m.GinMiddleware())
	r.Use(httpmiddleware.RateLimit(limiter, log))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlerOpts := []httpapi.Option{
		httpapi.WithHardDelete(cfg.AllowHardDelete),
		httpapi.WithImportLimit(int64(cfg.ImportMaxBytes)),
		httpapi.WithHealthCheck("students_db", studentDB.Healthy),
		httpapi.WithHealthCheck("employees_db", employeeDB.Healthy),
	}
	if redisClient != nil {
		handlerOpts = append(handlerOpts, httpapi.WithHealthCheck("redis", redisClient.Healthy))
	}
	httpapi.New(students, employees, log.Named("api"), handlerOpts...).Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	cancel()

	log.Info("server exited")
	return nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	return c
}

func newSnapshotWorker(cfg config.App, log *zap.Logger, students *student.Service, employees *employee.Service, redisClient *store.Redis) (*snapshot.Worker, error) {
	sinks, err := snapshot.Sinks(cfg.SnapshotDir, snapshot.S3Config{
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		return nil, err
	}
	sources := []snapshot.Source{
		snapshot.ExportSource(student.Entity, student.DashboardCacheKey, students),
		snapshot.ExportSource(employee.Entity, employee.DashboardCacheKey, employees),
	}
	// a nil *store.Redis must not become a non-nil interface
	var cache snapshot.Invalidator
	if redisClient != nil {
		cache = redisClient
	}
	return snapshot.NewWorker(log.Named("snapshot"), sources, sinks, cache), nil
}
