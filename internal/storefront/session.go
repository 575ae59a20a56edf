package storefront

import (
	"context"
	"strings"
)

type userKey struct{}

// WithUser marks ctx as belonging to a signed-in user. A blank id leaves ctx
// anonymous.
func WithUser(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey{}, userID)
}

func UserFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}

// ContextSession reads the user placed on the request context by WithUser.
type ContextSession struct{}

func (ContextSession) CurrentUser(ctx context.Context) (string, bool) { return UserFrom(ctx) }
