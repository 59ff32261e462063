package auth

import (
	"context"

	"github.com/terra-clan/gigboard/internal/models"
)

type contextKey string

const actorContextKey contextKey = "actor"

// ActorFrom extracts the authenticated actor from context
func ActorFrom(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(models.Actor)
	return actor, ok
}

// WithActor adds actor to context
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}
