// internal/app/scheduled_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"squad_recommender/internal/domain/mission"
	"squad_recommender/internal/domain/squad"
	idb "squad_recommender/internal/infra/database"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RunResult summarizes one scheduled batch run.
type RunResult struct {
	RunID      string
	CycleStart time.Time
	Attempted  int
	Succeeded  int
	Failed     int
	Skipped    int // Scope already had a batch for the cycle
}

// ScheduledService drives the daily batch across every active scope.
type ScheduledService struct {
	directory   squad.Directory
	missionRepo mission.Repository
	creator     *RecommendationCreator
	workers     int
	logger      *logrus.Entry
}

func NewScheduledService(
	dir squad.Directory,
	mr mission.Repository,
	creator *RecommendationCreator,
	workers int,
	logger *logrus.Entry,
) *ScheduledService {
	if workers < 1 {
		workers = 1
	}
	return &ScheduledService{
		directory:   dir,
		missionRepo: mr,
		creator:     creator,
		workers:     workers,
		logger:      logger.WithField("component", "scheduled_service"),
	}
}

type scopeOutcome int

const (
	scopeSkipped scopeOutcome = iota
	scopeSucceeded
	scopeFailed
)

// RunDailyBatch creates a SCHEDULED batch for every scope active on now's
// weekday that has none in [CycleStart(now), now]. A scope's failure is
// counted and never aborts the run; only failing to list scopes is an error.
func (s *ScheduledService) RunDailyBatch(ctx context.Context, now time.Time) (*RunResult, error) {
	result := &RunResult{
		RunID:      uuid.NewString(),
		CycleStart: mission.CycleStart(now),
	}
	log := s.logger.WithFields(logrus.Fields{
		"run_id":      result.RunID,
		"cycle_start": result.CycleStart.Format(time.RFC3339),
		"weekday":     now.Weekday().String(),
	})
	log.Info("Daily batch run started")

	scopes, err := s.directory.ListActiveOn(ctx, now.Weekday())
	if err != nil {
		log.WithError(err).Error("Failed to list active scopes")
		return result, fmt.Errorf("failed to list scopes active on %s: %w", now.Weekday(), err)
	}
	log.WithField("scope_count", len(scopes)).Info("Active scopes loaded")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, scope := range scopes {
		scope := scope
		g.Go(func() error {
			outcome := s.runScope(gctx, log, scope, result.CycleStart, now)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case scopeSucceeded:
				result.Attempted++
				result.Succeeded++
			case scopeFailed:
				result.Attempted++
				result.Failed++
			default:
				result.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait() // runScope converts every error into an outcome

	log.WithFields(logrus.Fields{
		"attempted": result.Attempted,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
	}).Info("Daily batch run finished")
	return result, nil
}

func (s *ScheduledService) runScope(ctx context.Context, runLog *logrus.Entry, scope *squad.Scope, cycleStart, now time.Time) (outcome scopeOutcome) {
	log := runLog.WithField("scope", scope.Key())
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Panic while creating batch; scope counted as failed")
			outcome = scopeFailed
		}
	}()

	existing, err := s.missionRepo.FindBatchInWindow(ctx, scope.Key(), cycleStart, now)
	if err == nil {
		log.WithField("batch_id", existing.ID).Debug("Scope already has a batch this cycle; skipping")
		return scopeSkipped
	}
	if !errors.Is(err, idb.ErrBatchNotFound) {
		log.WithError(err).Error("Failed to check existing batch")
		return scopeFailed
	}

	batch, err := s.creator.CreateBatchAt(ctx, scope, mission.TriggerScheduled, now)
	if err != nil {
		if errors.Is(err, idb.ErrDuplicateBatch) {
			log.Info("Batch created concurrently for this cycle; skipping")
			return scopeSkipped
		}
		log.WithError(err).Warn("Batch creation failed")
		return scopeFailed
	}
	log.WithFields(logrus.Fields{
		"batch_id":   batch.ID,
		"problems":   len(batch.Problems),
		"deliveries": len(batch.Deliveries),
	}).Info("Scheduled batch created")
	return scopeSucceeded
}
