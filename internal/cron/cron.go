package cron

import (
	"context"
	"os"
	"sync"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"

	"github.com/taskwell/mailroom/config"
	cron_config "github.com/taskwell/mailroom/internal/cron/config"
	"github.com/taskwell/mailroom/internal/logger"
	"github.com/taskwell/mailroom/internal/tracing"
	"github.com/taskwell/mailroom/services/ingestion"
)

// CONSTANTS
const (
	// GroupMailroom is the group for poll-related jobs
	GroupMailroom = "mailroom"
)

// LOCK MANAGEMENT
var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupMailroom: new(sync.Mutex),
	},
}

// CronManager schedules the poll tick. Multiple instances can run the tick
// concurrently; the per-inbox lease keeps them from double-processing, so no
// process-level leader election is needed.
type CronManager struct {
	cfg    *config.Config
	log    logger.Logger
	cron   *cronv3.Cron
	stopCh chan struct{}
	jobIDs map[string]cronv3.EntryID
	poller *ingestion.Poller

	// ctx spans the manager's lifetime; Stop cancels it so in-flight poll
	// cycles halt at the next acknowledgment boundary instead of draining.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCronManager(cfg *config.Config, log logger.Logger, poller *ingestion.Poller) *CronManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &CronManager{
		cfg:    cfg,
		log:    log,
		stopCh: make(chan struct{}),
		jobIDs: make(map[string]cronv3.EntryID),
		poller: poller,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Stop gracefully stops the cron manager and waits for running jobs
func (cm *CronManager) Stop() {
	cm.cancel()
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		// Wait for jobs to finish
		<-ctx.Done()
	}
	cm.poller.Wait()
	close(cm.stopCh)
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	// Load cron config from environment variables
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}

	// Register heartbeat job
	if cronConfig.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		id, err := c.AddFunc(cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
		if err != nil {
			cm.log.Fatalf("Could not add heartbeat cron job: %v", err)
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cronConfig.CronScheduleHeartbeat)
	}

	// Register the inbox poll tick
	if cronConfig.CronSchedulePollTick != "" {
		id, err := c.AddFunc(cronConfig.CronSchedulePollTick, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupMailroom].Lock()
			defer jobLocks.locks[GroupMailroom].Unlock()
			cm.poller.Tick(cm.ctx)
		})
		if err != nil {
			cm.log.Fatalf("Could not add poll tick cron job: %v", err)
		}
		cm.jobIDs["poll_tick"] = id
		cm.log.Infof("Registered poll tick job with schedule: %s", cronConfig.CronSchedulePollTick)
	}
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	// Create a new cron with seconds field enabled and panic recovery
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger), // Skip if still running
			cronv3.Recover(cronv3.DefaultLogger),            // Default recovery as backup
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}
