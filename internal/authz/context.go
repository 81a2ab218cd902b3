package authz

import (
	"context"
	"net/http"
)

type contextKey string

const actorKey contextKey = "actor"

// WithActor stores the authenticated principal on the context. The actor
// is recorded as triggered_by on manually created jobs.
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFromRequest(r *http.Request) (string, bool) {
	actor, ok := r.Context().Value(actorKey).(string)
	if !ok || actor == "" {
		return "", false
	}
	return actor, true
}
