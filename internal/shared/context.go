package shared

import "context"

type accountContextKey struct{}

type actorContextKey struct{}

// ContextWithAccount stores the owning account ID in context.
func ContextWithAccount(ctx context.Context, accountID int64) context.Context {
	return context.WithValue(ctx, accountContextKey{}, accountID)
}

// AccountFromContext extracts the owning account ID, 0 when absent.
func AccountFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(accountContextKey{}).(int64)
	return id
}

// ContextWithActor stores the acting user identifier in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting user identifier, empty when absent.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor
}
