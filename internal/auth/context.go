package auth

import "context"

type contextKey string

const principalKey contextKey = "admin_principal"

// Principal identifies an authenticated admin caller.
type Principal struct {
	// Fingerprint is the token fingerprint, safe to log.
	Fingerprint string
}

// ContextWithPrincipal stores p in ctx.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the caller, if the request was authenticated.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
