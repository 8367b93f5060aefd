package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/devfleet/iot-device-api/internal/apperr"
	"github.com/devfleet/iot-device-api/internal/cache"
	"github.com/devfleet/iot-device-api/internal/config"
	"github.com/devfleet/iot-device-api/internal/database"
	"github.com/devfleet/iot-device-api/internal/handler"
	"github.com/devfleet/iot-device-api/internal/jobs"
	"github.com/devfleet/iot-device-api/internal/middleware"
	"github.com/devfleet/iot-device-api/internal/queue"
	"github.com/devfleet/iot-device-api/internal/repository"
	"github.com/devfleet/iot-device-api/internal/router"
	"github.com/devfleet/iot-device-api/internal/service"
	"github.com/devfleet/iot-device-api/internal/token"
)

func main() {
	// .env is optional; real deployments set variables in the environment.
	_ = godotenv.Load()

	cfg := config.Load()
	rateCfg := config.LoadRateLimitConfig()
	cacheCfg := config.LoadCacheConfig()
	exportCfg := config.LoadExportConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(ctx, db); err != nil {
		cancel()
		log.Fatalf("database: %v", err)
	}
	cancel()

	// Redis backs caching, rate limiting and the export lock. A missing
	// Redis degrades those paths rather than blocking startup.
	var store cache.Store
	if rc := config.NewRedisClient(); rc != nil {
		defer rc.Close()
		store = cache.NewRedis(rc)
	} else {
		log.Printf("redis unavailable; cache and rate limiting degraded")
	}

	users := repository.NewUserRepo(db)
	devices := repository.NewDeviceRepo(db)
	deviceLogs := repository.NewDeviceLogRepo(db)
	blacklist := repository.NewBlacklistRepo(db)
	exportJobs := repository.NewJobRepo(db)

	tokens := token.New(
		cfg.AccessSecret,
		cfg.RefreshSecret,
		time.Duration(cfg.AccessTTLMin)*time.Minute,
		time.Duration(cfg.RefreshTTLDays)*24*time.Hour,
		blacklist,
		users,
	)

	pub := queue.NewPublisher(exportCfg.AMQPURL, exportCfg.QueueName)

	deviceSvc := service.NewDeviceService(devices, store, cacheCfg)
	logSvc := service.NewLogService(devices, deviceLogs, store, cacheCfg)
	usageSvc := service.NewUsageService(devices, deviceLogs)
	exportSvc := service.NewExportService(exportJobs, devices, deviceLogs, pub)
	worker := service.NewExportWorker(exportJobs, deviceLogs, store, exportCfg)

	// The export consumer and the maintenance jobs share the process with
	// the API server; all of them stop when the server exits.
	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	consumer := queue.NewConsumer(exportCfg.AMQPURL, exportCfg.QueueName, worker.Handle)
	consumer.MaxAttempts = exportCfg.MaxAttempts
	consumer.Exhausted = func(ctx context.Context, ev queue.ExportRequestedEvent, err error) {
		if merr := exportJobs.MarkFailed(ctx, ev.JobID, err.Error()); merr != nil {
			log.Printf("export: close out job %s after retries: %v", ev.JobID, merr)
		}
	}
	go func() {
		if err := consumer.Start(rootCtx); err != nil && rootCtx.Err() == nil {
			log.Printf("export consumer stopped: %v", err)
		}
	}()

	sweep := jobs.NewDeactivationSweep(deviceSvc, 24*time.Hour, 24*time.Hour)
	sweep.Start()
	defer sweep.Stop()

	cleanup := jobs.NewBlacklistCleanup(blacklist, time.Hour, 1000)
	cleanup.Start()
	defer cleanup.Stop()

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler
	e.Use(middleware.RequestLog())

	h := router.Handlers{
		Auth:    handler.NewAuthHandler(users, tokens, cfg.BcryptCost),
		Devices: handler.NewDeviceHandler(deviceSvc),
		Logs:    handler.NewLogHandler(logSvc),
		Usage:   handler.NewUsageHandler(usageSvc),
		Exports: handler.NewExportHandler(exportSvc),
	}
	router.RegisterRoutes(e)
	router.RegisterAPI(e, h, tokens, store, rateCfg, exportCfg.Dir)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
