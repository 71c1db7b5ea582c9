// internal/app/delivery_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"squad_recommender/internal/domain/mail"
	"squad_recommender/internal/domain/mission"
	"squad_recommender/internal/domain/squad"
	idb "squad_recommender/internal/infra/database"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DeliveryResult counts the outcome of one delivery pass.
type DeliveryResult struct {
	Attempted int
	Sent      int
	Failed    int
	Skipped   int // Claimed elsewhere, not pending anymore, or recipient lookup errored
}

func (r *DeliveryResult) add(o deliveryOutcome) {
	switch o {
	case outcomeSent:
		r.Attempted++
		r.Sent++
	case outcomeFailed:
		r.Attempted++
		r.Failed++
	default:
		r.Skipped++
	}
}

type deliveryOutcome int

const (
	outcomeSkipped deliveryOutcome = iota
	outcomeSent
	outcomeFailed
)

// DeliveryService emails member deliveries and records SENT or FAILED.
// A delivery is claimed (PENDING to SENDING) before its email is sent, so
// overlapping sweeps and manual sends email each member at most once.
// FAILED is terminal; nothing re-queues it.
type DeliveryService struct {
	missionRepo mission.Repository
	directory   squad.Directory
	composer    mail.Composer
	transport   mail.Transport
	clock       mission.Clock
	sendTimeout time.Duration
	workers     int
	logger      *logrus.Entry
}

func NewDeliveryService(
	mr mission.Repository,
	dir squad.Directory,
	composer mail.Composer,
	transport mail.Transport,
	clock mission.Clock,
	sendTimeout time.Duration,
	workers int,
	logger *logrus.Entry,
) *DeliveryService {
	if workers < 1 {
		workers = 1
	}
	return &DeliveryService{
		missionRepo: mr,
		directory:   dir,
		composer:    composer,
		transport:   transport,
		clock:       clock,
		sendTimeout: sendTimeout,
		workers:     workers,
		logger:      logger.WithField("component", "delivery_service"),
	}
}

// SweepPending attempts every PENDING delivery whose batch was created in
// [CycleStart(now), now].
func (s *DeliveryService) SweepPending(ctx context.Context, now time.Time) (*DeliveryResult, error) {
	from := mission.CycleStart(now)
	pending, err := s.missionRepo.ListPendingDeliveries(ctx, from, now)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list pending deliveries")
		return nil, fmt.Errorf("failed to list pending deliveries: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"cycle_start": from.Format(time.RFC3339),
		"pending":     len(pending),
	}).Info("Delivery sweep started")

	result := s.attemptAll(ctx, pending)

	s.logger.WithFields(logrus.Fields{
		"attempted": result.Attempted,
		"sent":      result.Sent,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
	}).Info("Delivery sweep finished")
	return result, nil
}

// SendNow attempts an explicit list of deliveries, e.g. a freshly created manual batch.
func (s *DeliveryService) SendNow(ctx context.Context, deliveries []*mission.MemberDelivery) *DeliveryResult {
	return s.attemptAll(ctx, deliveries)
}

// StatusForBatch lists each member's delivery row for a batch.
func (s *DeliveryService) StatusForBatch(ctx context.Context, batchID int64) ([]*mission.MemberDelivery, error) {
	if _, err := s.missionRepo.GetBatchByID(ctx, batchID); err != nil {
		return nil, err
	}
	return s.missionRepo.ListDeliveriesByBatch(ctx, batchID)
}

func (s *DeliveryService) attemptAll(ctx context.Context, deliveries []*mission.MemberDelivery) *DeliveryResult {
	result := &DeliveryResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, d := range deliveries {
		d := d
		g.Go(func() error {
			outcome := s.attempt(gctx, d)
			mu.Lock()
			result.add(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // attempt never returns an error; outcomes are data

	return result
}

// attempt sends one delivery. Its outcome never affects other recipients.
func (s *DeliveryService) attempt(ctx context.Context, d *mission.MemberDelivery) deliveryOutcome {
	log := s.logger.WithFields(logrus.Fields{
		"delivery_id": d.ID,
		"batch_id":    d.BatchID,
		"member_id":   d.MemberID,
	})

	if !d.IsPending() {
		log.WithField("status", d.Status).Debug("Delivery is not pending; skipping")
		return outcomeSkipped
	}

	member, err := s.directory.GetMember(ctx, d.MemberID)
	if err != nil && !errors.Is(err, idb.ErrMemberNotFound) {
		log.WithError(err).Error("Failed to resolve recipient; leaving delivery pending")
		return outcomeSkipped
	}

	if err := s.missionRepo.ClaimDelivery(ctx, d.ID); err != nil {
		if errors.Is(err, idb.ErrDeliveryNotPending) {
			log.Debug("Delivery already claimed or finished; skipping")
		} else {
			log.WithError(err).Error("Failed to claim delivery; leaving it pending")
		}
		return outcomeSkipped
	}
	d.Status = mission.DeliverySending

	if member == nil || member.ContactAddress() == "" {
		log.Warn("Recipient has no contact address")
		return s.fail(ctx, log, d, errors.New("recipient has no contact address"))
	}

	msg, err := s.composer.Build(ctx, d, member)
	if err != nil {
		return s.fail(ctx, log, d, fmt.Errorf("failed to build message: %w", err))
	}

	sendCtx := ctx
	if s.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, s.sendTimeout)
		defer cancel()
	}
	if err := s.transport.Send(sendCtx, msg); err != nil {
		return s.fail(ctx, log, d, err)
	}

	sentAt := s.clock.Now()
	if err := s.missionRepo.MarkDeliverySent(ctx, d.ID, sentAt); err != nil {
		log.WithError(err).Error("Email sent but status update failed; delivery stays SENDING")
		return outcomeSent
	}
	d.Status = mission.DeliverySent
	d.SentAt.Time, d.SentAt.Valid = sentAt, true
	log.WithField("to", msg.To).Info("Delivery sent")
	return outcomeSent
}

func (s *DeliveryService) fail(ctx context.Context, log *logrus.Entry, d *mission.MemberDelivery, cause error) deliveryOutcome {
	log.WithError(fmt.Errorf("%w: %w", ErrDeliveryFailed, cause)).Warn("Delivery failed")
	if err := s.missionRepo.MarkDeliveryFailed(ctx, d.ID); err != nil {
		log.WithError(err).Error("Failed to record delivery failure")
		return outcomeFailed
	}
	d.Status = mission.DeliveryFailed
	return outcomeFailed
}
