package auth

import "context"

// Identity is the authenticated user attached to the request context by the
// session gate. Subject is the identity provider's stable opaque identifier.
type Identity struct {
	Subject    string `json:"subject"`
	Email      string `json:"email"`
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
	PictureURL string `json:"pictureUrl"`
}

type ctxKey string

const identityKey ctxKey = "auth_identity"

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
