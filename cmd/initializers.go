package main

import (
	"fmt"
	"net/http"

	"procgrid/app/handler"
	"procgrid/app/router"
	"procgrid/internal/engine"
	"procgrid/internal/service"
	"procgrid/pkg/config"
	"procgrid/pkg/events"
	"procgrid/pkg/lock"
	"procgrid/pkg/logger"
	"procgrid/pkg/notify"
	"procgrid/pkg/policy"
	mysqlstore "procgrid/pkg/store/mysql"
	redisstore "procgrid/pkg/store/redis"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
		logger.InfoCtx(app.ctx, "Logging system has been closed")
	})
	return nil
}

// initMySQL initializes MySQL
func (app *Application) initMySQL() error {
	repo, err := mysqlstore.NewRepository(app.config.MySQL.DSN())
	if err != nil {
		return err
	}

	app.mysqlRepo = repo
	app.registerCleanup(func() {
		repo.Close()
		logger.InfoCtx(app.ctx, "MySQL connection has been closed")
	})

	return nil
}

// initRedis initializes Redis. Redis is optional: without it the instance
// runs single-node, events are not streamed and webhooks are not delivered.
func (app *Application) initRedis() error {
	if app.config.Redis.Addr == "" {
		logger.WarnCtx(app.ctx, "Redis not configured, running single-instance without event fan-out")
		return nil
	}

	client, err := redisstore.NewRedisClient(app.config)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	return nil
}

// initEventFanout initializes the lifecycle event publisher, the websocket
// subscriber and the asynq webhook dispatcher.
func (app *Application) initEventFanout() error {
	var redisClient *goredis.Client
	if app.redisClient != nil {
		redisClient = app.redisClient.GetClient()
	}

	app.publisher = events.NewPublisher(redisClient)
	if redisClient != nil {
		app.subscriber = events.NewSubscriber(redisClient)

		dispatcher, err := notify.NewDispatcher(app.config)
		if err != nil {
			return fmt.Errorf("failed to create webhook dispatcher: %w", err)
		}
		app.dispatcher = dispatcher
		app.registerCleanup(func() {
			dispatcher.Close()
			logger.InfoCtx(app.ctx, "Webhook dispatcher has been closed")
		})
	}

	app.notifier = service.NewLifecycleNotifier(app.mysqlRepo.ProcessEvent, app.publisher, app.dispatcher)
	return nil
}

// initServices initializes service layer
func (app *Application) initServices() error {
	pol := policy.NewHardwarePolicy()

	app.processService = service.NewProcessService(
		app.mysqlRepo.Process,
		app.mysqlRepo.Server,
		pol,
		app.notifier,
	)
	app.serverService = service.NewServerService(app.mysqlRepo.Server)

	return nil
}

// initEngine initializes the tick engine
func (app *Application) initEngine() error {
	interval := app.config.Engine.TickIntervalDuration()
	batchSize := app.config.Engine.SweepBatchSize

	var sweepLock lock.SweepLock
	if app.redisClient != nil {
		sweepLock = lock.NewRedisSweepLock(app.redisClient.GetClient(), "engine:sweep-lock")
	}

	app.tickEngine = engine.NewEngine(
		app.mysqlRepo.Process,
		app.notifier,
		policy.NewHardwarePolicy(),
		sweepLock,
		interval,
		engine.WithBatchSize(batchSize),
	)

	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.processHandler = handler.NewProcessHandler(app.processService)
	app.serverHandler = handler.NewServerHandler(app.serverService, app.mysqlRepo.ProcessEvent)

	if app.subscriber != nil {
		app.eventsHandler = handler.NewEventsHandler(app.subscriber)
		logger.InfoCtx(app.ctx, "Event stream handler initialized")
	}

	return nil
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	// Initialize router
	r := router.NewRouter(app.processHandler, app.serverHandler, app.eventsHandler)

	// Set Gin mode
	gin.SetMode(app.config.Server.Mode)

	// Create Gin engine
	app.ginEngine = gin.New()
	app.ginEngine.Use(gin.Recovery())

	// Setup routes
	r.Setup(app.ginEngine)

	// Create HTTP server
	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}

	return nil
}
