package scheduler

import (
	"context"
	"sync"
	"time"

	"squad_recommender/internal/app"
	"squad_recommender/internal/domain/mission"
	"squad_recommender/internal/infra/ratelimit"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SchedulerActor is the rate-limit actor for scheduled catalog calls.
const SchedulerActor = "scheduler"

const (
	dailyBatchTimeout    = 30 * time.Minute
	deliverySweepTimeout = 10 * time.Minute
)

// BatchRunner runs the daily batch.
type BatchRunner interface {
	RunDailyBatch(ctx context.Context, now time.Time) (*app.RunResult, error)
}

// DeliverySweeper sends pending deliveries of the current cycle.
type DeliverySweeper interface {
	SweepPending(ctx context.Context, now time.Time) (*app.DeliveryResult, error)
}

// RunReporter receives the summary of each scheduled run.
type RunReporter interface {
	ReportRun(ctx context.Context, run *app.RunResult, sweep *app.DeliveryResult)
}

// MissionScheduler registers the cron jobs for batch creation and delivery.
// Jobs skip a tick while the previous run of the same job is still going, and
// the two sweep entry points never run at the same time.
type MissionScheduler struct {
	cronEngine            *cron.Cron
	sweepMu               sync.Mutex
	batchRunner           BatchRunner
	sweeper               DeliverySweeper
	reporter              RunReporter // Optional
	clock                 mission.Clock
	logger                *logrus.Entry
	cronSpecDailyBatch    string
	cronSpecDeliverySweep string
}

func NewMissionScheduler(
	batchRunner BatchRunner,
	sweeper DeliverySweeper,
	reporter RunReporter,
	clock mission.Clock,
	location *time.Location,
	logger *logrus.Entry,
	cronSpecDailyBatch string, // e.g., "0 6 * * *" (06:00 daily)
	cronSpecDeliverySweep string, // e.g., "*/10 * * * *" (every 10 minutes)
) *MissionScheduler {
	cronLogger := cron.PrintfLogger(logger)
	return &MissionScheduler{
		cronEngine: cron.New(
			cron.WithLocation(location),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		batchRunner:           batchRunner,
		sweeper:               sweeper,
		reporter:              reporter,
		clock:                 clock,
		logger:                logger,
		cronSpecDailyBatch:    cronSpecDailyBatch,
		cronSpecDeliverySweep: cronSpecDeliverySweep,
	}
}

// Start registers the jobs and starts the cron engine.
func (s *MissionScheduler) Start() error {
	s.logger.Info("Starting mission scheduler...")

	if _, err := s.cronEngine.AddFunc(s.cronSpecDailyBatch, func() {
		s.logger.Info("Cron job triggered for daily batch.")
		s.RunDailyBatch()
	}); err != nil {
		return err
	}

	if _, err := s.cronEngine.AddFunc(s.cronSpecDeliverySweep, func() {
		s.logger.Debug("Cron job triggered for delivery sweep.")
		s.RunDeliverySweep()
	}); err != nil {
		return err
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"daily_batch":    s.cronSpecDailyBatch,
		"delivery_sweep": s.cronSpecDeliverySweep,
	}).Info("Mission scheduler started with jobs.")
	return nil
}

// RunDailyBatch creates the cycle's batches and immediately sweeps their deliveries.
func (s *MissionScheduler) RunDailyBatch() {
	ctx, cancel := context.WithTimeout(ratelimit.WithActor(context.Background(), SchedulerActor), dailyBatchTimeout)
	defer cancel()

	run, err := s.batchRunner.RunDailyBatch(ctx, s.clock.Now())
	if err != nil {
		s.logger.WithError(err).Error("Daily batch run failed")
		return
	}

	sweep, err := s.sweep(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Delivery sweep after daily batch failed")
	}

	if s.reporter != nil {
		s.reporter.ReportRun(ctx, run, sweep)
	}
}

// RunDeliverySweep sends whatever is still pending in the current cycle.
func (s *MissionScheduler) RunDeliverySweep() {
	ctx, cancel := context.WithTimeout(context.Background(), deliverySweepTimeout)
	defer cancel()

	if _, err := s.sweep(ctx); err != nil {
		s.logger.WithError(err).Error("Delivery sweep failed")
	}
}

func (s *MissionScheduler) sweep(ctx context.Context) (*app.DeliveryResult, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()
	return s.sweeper.SweepPending(ctx, s.clock.Now())
}

func (s *MissionScheduler) Stop() {
	s.logger.Info("Stopping mission scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Mission scheduler gracefully stopped.")
}
