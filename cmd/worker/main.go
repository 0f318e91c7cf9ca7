package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"roster/internal/config"
	"roster/internal/employee"
	"roster/internal/logger"
	"roster/internal/queue"
	"roster/internal/snapshot"
	"roster/internal/store"
	"roster/internal/student"
)

// Worker consumes change events from redis, invalidates cached dashboards and
// writes roster snapshots, and also snapshots on a schedule.
func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		stdlog.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	studentDB, err := store.NewDB(cfg.StudentsDB)
	if err != nil {
		log.Fatal("students db connect failed", zap.Error(err))
	}
	defer studentDB.Close()

	employeeDB, err := store.NewDB(cfg.EmployeesDB)
	if err != nil {
		log.Fatal("employees db connect failed", zap.Error(err))
	}
	defer employeeDB.Close()

	studentRepo, err := student.NewRepository(ctx, studentDB)
	if err != nil {
		log.Fatal("students schema failed", zap.Error(err))
	}
	employeeRepo, err := employee.NewRepository(ctx, employeeDB)
	if err != nil {
		log.Fatal("employees schema failed", zap.Error(err))
	}
	students := student.NewService(studentRepo, log.Named("student"))
	employees := employee.NewService(employeeRepo, log.Named("employee"))

	sinks, err := snapshot.Sinks(cfg.SnapshotDir, snapshot.S3Config{
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		log.Fatal("snapshot sinks init failed", zap.Error(err))
	}
	if len(sinks) == 0 {
		log.Warn("no snapshot sink configured (SNAPSHOT_DIR / S3_BUCKET), snapshots are skipped")
	}

	var (
		redisClient *store.Redis
		cache       snapshot.Invalidator
	)
	if cfg.RedisAddr != "" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		if !redisClient.Healthy(ctx) {
			log.Warn("redis not reachable at startup", zap.String("addr", cfg.RedisAddr))
		}
		cache = redisClient
	}

	worker := snapshot.NewWorker(log.Named("snapshot"), []snapshot.Source{
		snapshot.ExportSource(student.Entity, student.DashboardCacheKey, students),
		snapshot.ExportSource(employee.Entity, employee.DashboardCacheKey, employees),
	}, sinks, cache)

	sched, err := snapshot.NewScheduler(cfg.SnapshotSchedule, worker, log.Named("cron"))
	if err != nil {
		log.Fatal("snapshot schedule invalid", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	if !cfg.UseRedis(cfg.QueueBackend) {
		// the in-memory queue lives inside the api process, which consumes it itself
		log.Info("queue backend is not redis, running scheduled snapshots only",
			zap.String("queue_backend", cfg.QueueBackend))
		<-ctx.Done()
		return
	}

	events, err := queue.NewRedisQueue(redisClient.Client, "").Consume(ctx)
	if err != nil {
		log.Fatal("queue consume init failed", zap.Error(err))
	}
	worker.Run(ctx, events)
}
