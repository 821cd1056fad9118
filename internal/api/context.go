package api

import "context"

type ctxKey string

const ctxKeyActor ctxKey = "actor"

// Actor is the authenticated caller. Eligibility for a step is decided by the
// engine from the stored user, never from the token role.
type Actor struct {
	UserID string
	Role   string
}

func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, a)
}

func ActorFromContext(ctx context.Context) *Actor {
	v := ctx.Value(ctxKeyActor)
	if v == nil {
		return nil
	}
	a, _ := v.(*Actor)
	return a
}
