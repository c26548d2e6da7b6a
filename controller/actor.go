package controller

import "context"

// DefaultActor is recorded in history when the context names no actor.
const DefaultActor = "automatic"

type actorKey struct{}

// WithActor returns a context whose mutations are recorded as made by actor.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor carried by ctx, or DefaultActor.
func ActorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return DefaultActor
}
