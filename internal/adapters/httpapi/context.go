package httpapi

import (
	"context"

	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/auth/jwtverifier"
)

type principalKey struct{}

func WithPrincipal(ctx context.Context, p jwtverifier.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (jwtverifier.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(jwtverifier.Principal)
	return p, ok && p.Subject != ""
}
