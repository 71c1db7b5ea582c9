package ratelimit

import "context"

type actorKey struct{}

// DefaultActor is used when the context carries no actor.
const DefaultActor = "anonymous"

// WithActor tags ctx with the actor whose requests are counted.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored in ctx, or DefaultActor.
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return DefaultActor
}
