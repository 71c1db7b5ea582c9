// internal/app/solve_service.go
package app

import (
	"context"
	"time"

	"squad_recommender/internal/domain/mission"

	"github.com/sirupsen/logrus"
)

// SolveService records that a member solved a recommended problem.
type SolveService struct {
	missionRepo mission.Repository
	clock       mission.Clock
	logger      *logrus.Entry
}

func NewSolveService(mr mission.Repository, clock mission.Clock, logger *logrus.Entry) *SolveService {
	return &SolveService{
		missionRepo: mr,
		clock:       clock,
		logger:      logger.WithField("component", "solve_service"),
	}
}

// MarkSolved stamps one record. Other records for the same member and problem
// are untouched. A zero solvedAt means now.
func (s *SolveService) MarkSolved(ctx context.Context, recordID int64, solvedAt time.Time) (*mission.ProblemRecord, error) {
	if solvedAt.IsZero() {
		solvedAt = s.clock.Now()
	}
	if err := s.missionRepo.MarkProblemSolved(ctx, recordID, solvedAt); err != nil {
		return nil, err
	}
	rec, err := s.missionRepo.GetProblemRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"record_id":  rec.ID,
		"member_id":  rec.MemberID,
		"problem_id": rec.ProblemID,
	}).Info("Problem record marked solved")
	return rec, nil
}
