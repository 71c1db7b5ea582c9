// internal/app/manual_service.go
package app

import (
	"context"
	"errors"
	"fmt"

	"squad_recommender/internal/domain/mission"
	"squad_recommender/internal/domain/squad"
	idb "squad_recommender/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// ManualService creates an on-demand batch for one scope and emails it
// right away. Authorization is the caller's concern.
type ManualService struct {
	missionRepo mission.Repository
	creator     *RecommendationCreator
	delivery    *DeliveryService
	clock       mission.Clock
	blocked     mission.BlockedWindow
	logger      *logrus.Entry
}

func NewManualService(
	mr mission.Repository,
	creator *RecommendationCreator,
	delivery *DeliveryService,
	clock mission.Clock,
	blocked mission.BlockedWindow,
	logger *logrus.Entry,
) *ManualService {
	return &ManualService{
		missionRepo: mr,
		creator:     creator,
		delivery:    delivery,
		clock:       clock,
		blocked:     blocked,
		logger:      logger.WithField("component", "manual_service"),
	}
}

// CreateManual checks, in order, the blocked window and the cycle idempotency,
// then creates a MANUAL batch and sends its deliveries synchronously.
func (s *ManualService) CreateManual(ctx context.Context, scope *squad.Scope) (*mission.Batch, error) {
	now := s.clock.Now()
	log := s.logger.WithField("scope", scope.Key())

	if s.blocked.Contains(now) {
		log.WithField("now", now.Format("15:04")).Info("Manual recommendation refused inside blocked window")
		return nil, ErrRecommendationBlockedTime
	}

	cycleStart := mission.CycleStart(now)
	existing, err := s.missionRepo.FindBatchInWindow(ctx, scope.Key(), cycleStart, mission.CycleEnd(cycleStart))
	if err == nil {
		log.WithField("batch_id", existing.ID).Info("Manual recommendation refused; batch already exists this cycle")
		return nil, ErrAlreadyExistsToday
	}
	if !errors.Is(err, idb.ErrBatchNotFound) {
		return nil, fmt.Errorf("failed to check existing batch for %s: %w", scope.Key(), err)
	}

	batch, err := s.creator.CreateBatchAt(ctx, scope, mission.TriggerManual, now)
	if err != nil {
		if errors.Is(err, idb.ErrDuplicateBatch) {
			return nil, ErrAlreadyExistsToday
		}
		return nil, err
	}

	result := s.delivery.SendNow(ctx, batch.Deliveries)
	log.WithFields(logrus.Fields{
		"batch_id": batch.ID,
		"sent":     result.Sent,
		"failed":   result.Failed,
	}).Info("Manual batch created and delivered")
	return batch, nil
}
