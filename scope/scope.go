// Package scope provides helpers to capture and restore multi-tenant
// execution context (tenant and actor identity) from/to context.Context.
//
// The engine stamps tenant and actor onto every workflow run; when a run
// is resumed after a crash, the scope is restored into the context so
// handlers observe the same identity as the original request.
package scope

import "context"

type ctxKey struct{}

// Scope carries the tenant and actor under which an action executes.
type Scope struct {
	TenantID string
	ActorID  string
}

// With attaches a scope to the context.
func With(ctx context.Context, tenantID, actorID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, Scope{TenantID: tenantID, ActorID: actorID})
}

// From extracts the scope from the context.
func From(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(ctxKey{}).(Scope)
	return s, ok
}

// Capture extracts the tenant and actor identifiers from the context.
// Returns empty strings if no scope is present.
func Capture(ctx context.Context) (tenantID, actorID string) {
	s, ok := From(ctx)
	if !ok {
		return "", ""
	}
	return s.TenantID, s.ActorID
}

// Restore attaches a scope to the context using the given tenant and
// actor IDs. If both are empty, the context is returned unchanged.
func Restore(ctx context.Context, tenantID, actorID string) context.Context {
	if tenantID == "" && actorID == "" {
		return ctx
	}
	return With(ctx, tenantID, actorID)
}
