package engine

import (
	"fmt"
	"log/slog"

	database "github.com/drummonds/godocx/database"
	"github.com/robfig/cron/v3"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// InitializeSchedules starts all the cron jobs (currently just one)
func (serverHandler *ServerHandler) InitializeSchedules(db database.Repository) {
	interval := serverHandler.ServerConfig.CleanupInterval
	if interval <= 0 {
		interval = 24
	}

	c := cron.New()
	var cleanupJob cron.Job
	cleanupJob = cron.FuncJob(func() { serverHandler.cleanupJobFunc(db) })
	cleanupJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(cleanupJob) //ensure we don't kick off another if old one is still running
	c.AddJob(fmt.Sprintf("@every %dh", interval), cleanupJob)
	Logger.Info("Adding cleanup job scheduler", "interval_hours", interval)
	c.Start()
}

// cleanupJobFunc runs the retention cleanup without job tracking, for the
// scheduler path.
func (serverHandler *ServerHandler) cleanupJobFunc(db database.Repository) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in cleanup job", "panic", r)
		}
	}()

	job, err := db.CreateJob(database.JobTypeCleanup, "Scheduled retention cleanup")
	if err != nil {
		Logger.Error("Failed to create scheduled cleanup job", "error", err)
		return
	}
	serverHandler.cleanupJobFuncWithTracking(db, job.ID)
}
