package main

import (
	"time"

	"procgrid/internal/engine"
	"procgrid/internal/jobs"
	"procgrid/pkg/logger"
)

func (app *Application) initJobs() error {
	if app.tickEngine == nil {
		logger.WarnCtx(app.ctx, "Tick engine not initialized yet, skipping background task registration")
		return nil
	}

	manager := jobs.NewManager(app.ctx)

	// The tick engine is itself a periodic job; its distributed lock keeps
	// a fleet of replicas down to one sweep per interval.
	manager.Register(app.tickEngine)

	// Terminal rows age out of the hot table daily.
	manager.Register(engine.NewPurgeJob(
		app.mysqlRepo.Process,
		app.config.Engine.ArchiveRetention(),
		24*time.Hour,
	))

	app.jobsManager = manager
	return nil
}
