package audit

import "context"

type actorKey struct{}

// SystemActor is recorded for changes made by background jobs.
const SystemActor = "system"

// WithActor attaches the acting admin or job identity to ctx.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the actor attached with WithActor, or SystemActor.
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return SystemActor
	}
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}
