// internal/app/recommendation_creator.go
package app

import (
	"context"
	"fmt"
	"time"

	"squad_recommender/internal/domain/catalog"
	"squad_recommender/internal/domain/mission"
	"squad_recommender/internal/domain/squad"

	"github.com/sirupsen/logrus"
)

// RecommendationCreator builds one batch for one scope: the batch row, its
// ordered problems, and a PENDING delivery plus problem records per member.
type RecommendationCreator struct {
	missionRepo mission.Repository
	directory   squad.Directory
	recommender catalog.Recommender
	syncer      catalog.Syncer
	clock       mission.Clock
	logger      *logrus.Entry
}

func NewRecommendationCreator(
	mr mission.Repository,
	dir squad.Directory,
	rec catalog.Recommender,
	syncer catalog.Syncer,
	clock mission.Clock,
	logger *logrus.Entry,
) *RecommendationCreator {
	return &RecommendationCreator{
		missionRepo: mr,
		directory:   dir,
		recommender: rec,
		syncer:      syncer,
		clock:       clock,
		logger:      logger.WithField("component", "recommendation_creator"),
	}
}

// CreateBatch runs one full batch creation for scope at the current time.
func (c *RecommendationCreator) CreateBatch(ctx context.Context, scope *squad.Scope, trigger mission.TriggerKind) (*mission.Batch, error) {
	return c.CreateBatchAt(ctx, scope, trigger, c.clock.Now())
}

// CreateBatchAt runs one full batch creation for scope, stamping the batch with
// now and its cycle. Callers that already checked idempotency against now pass
// the same reading. Writes are not rolled back on later failures: a batch may be
// left with fewer problems or deliveries.
func (c *RecommendationCreator) CreateBatchAt(ctx context.Context, scope *squad.Scope, trigger mission.TriggerKind, now time.Time) (*mission.Batch, error) {
	log := c.logger.WithFields(logrus.Fields{"scope": scope.Key(), "trigger": trigger})

	// Settings are resolved first so a misconfigured scope does not consume its cycle.
	tiers, err := scope.Settings.TierRange()
	if err != nil {
		log.WithError(err).Warn("Scope settings are invalid")
		return nil, fmt.Errorf("scope %s settings: %w", scope.Key(), err)
	}

	// 1. Persist the batch header
	batch := &mission.Batch{
		ScopeKey:   scope.Key(),
		TeamID:     scope.TeamID,
		SquadID:    scope.SquadID,
		ScopeName:  scope.Name,
		Trigger:    trigger,
		CycleStart: mission.CycleStart(now),
		CreatedAt:  now,
	}
	if err := c.missionRepo.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch for %s: %w", scope.Key(), err)
	}
	log = log.WithField("batch_id", batch.ID)
	log.Info("Recommendation batch created")

	// 2. Resolve verified handles
	handles, err := c.directory.VerifiedHandles(ctx, scope)
	if err != nil {
		return batch, fmt.Errorf("failed to resolve verified handles for %s: %w", scope.Key(), err)
	}
	if len(handles) == 0 {
		log.Warn("No verified handles in scope; batch left empty")
		return batch, ErrNoVerifiedHandle
	}

	// 3. Ask the catalog
	infos, err := c.recommender.Recommend(ctx, catalog.Query{
		Handles: handles,
		Count:   scope.Settings.Count(),
		MinTier: tiers.Min,
		MaxTier: tiers.Max,
		Tags:    scope.Settings.Tags(),
	})
	if err != nil {
		log.WithError(err).Error("Catalog recommendation failed")
		return batch, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	// 4. Sync into the local catalog, keeping recommender order
	problems := make([]mission.BatchProblem, 0, len(infos))
	for i, info := range infos {
		problemID, err := c.syncer.Upsert(ctx, info)
		if err != nil {
			return batch, fmt.Errorf("failed to sync problem %d: %w", info.ExternalID, err)
		}
		problems = append(problems, mission.BatchProblem{
			BatchID:    batch.ID,
			ProblemID:  problemID,
			Position:   i + 1,
			ExternalID: info.ExternalID,
			Title:      info.Title,
			Tier:       info.Tier,
		})
	}

	// 5. Attach problems
	if err := c.missionRepo.AddBatchProblems(ctx, batch.ID, problems); err != nil {
		return batch, fmt.Errorf("failed to attach problems to batch %d: %w", batch.ID, err)
	}
	batch.Problems = problems
	log.WithField("problem_count", len(problems)).Info("Problems attached to batch")

	// 6. Fan out to current members
	members, err := c.directory.CurrentMembers(ctx, scope)
	if err != nil {
		return batch, fmt.Errorf("failed to list members of %s: %w", scope.Key(), err)
	}
	batch.Deliveries = c.fanOut(ctx, log, batch, members)

	log.WithFields(logrus.Fields{
		"member_count":   len(members),
		"delivery_count": len(batch.Deliveries),
	}).Info("Batch fanned out to members")
	return batch, nil
}

// fanOut inserts a PENDING delivery and one problem record per problem for every
// member. Each insert stands alone; failures are logged and skipped.
func (c *RecommendationCreator) fanOut(ctx context.Context, log *logrus.Entry, batch *mission.Batch, members []*squad.Member) []*mission.MemberDelivery {
	deliveries := make([]*mission.MemberDelivery, 0, len(members))
	for _, m := range members {
		d := &mission.MemberDelivery{
			MemberID: m.ID,
			BatchID:  batch.ID,
			Status:   mission.DeliveryPending,
		}
		if err := c.missionRepo.CreateDelivery(ctx, d); err != nil {
			log.WithError(err).WithField("member_id", m.ID).Error("Failed to create member delivery")
		} else {
			deliveries = append(deliveries, d)
		}

		for _, p := range batch.Problems {
			rec := &mission.ProblemRecord{
				MemberID:  m.ID,
				BatchID:   batch.ID,
				ProblemID: p.ProblemID,
				ScopeKey:  batch.ScopeKey,
				TeamID:    batch.TeamID,
				SquadID:   batch.SquadID,
				ScopeName: batch.ScopeName,
			}
			if err := c.missionRepo.CreateProblemRecord(ctx, rec); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"member_id":  m.ID,
					"problem_id": p.ProblemID,
				}).Error("Failed to create member problem record")
			}
		}
	}
	return deliveries
}
