package middleware

import "context"

// Identity is the authenticated caller as read from the bearer token.
type Identity struct {
	UID   string
	Email string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, uid, email string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, Identity{UID: uid, Email: email})
}

// IdentityFromContext reports false for unauthenticated requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UID != ""
}

func UserIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.UID
}

func EmailFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.Email
}
