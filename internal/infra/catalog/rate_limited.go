package catalog

import (
	"context"
	"errors"
	"fmt"

	domain "squad_recommender/internal/domain/catalog"
	"squad_recommender/internal/infra/ratelimit"
)

var ErrRateLimited = errors.New("catalog rate limit exceeded")

// Limiter decides whether an actor may make another request.
type Limiter interface {
	Allow(ctx context.Context, actor string) bool
}

// RateLimitedRecommender counts each call against the actor carried in the context.
type RateLimitedRecommender struct {
	next    domain.Recommender
	limiter Limiter
}

func NewRateLimitedRecommender(next domain.Recommender, limiter Limiter) *RateLimitedRecommender {
	return &RateLimitedRecommender{next: next, limiter: limiter}
}

func (r *RateLimitedRecommender) Recommend(ctx context.Context, q domain.Query) ([]domain.ProblemInfo, error) {
	actor := ratelimit.ActorFrom(ctx)
	if !r.limiter.Allow(ctx, actor) {
		return nil, fmt.Errorf("%w for %s", ErrRateLimited, actor)
	}
	return r.next.Recommend(ctx, q)
}
