package auth

import "context"

type contextKey struct{}

type consentKey struct{}

// AuthContext carries the validated caller through a request.
type AuthContext struct {
	UserID        string
	SessionID     int64
	TwoFAVerified bool
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.UserID
}

func SessionID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.SessionID
}

// WithConsentDecision records which consent type admitted the request, for
// downstream audit logging.
func WithConsentDecision(ctx context.Context, consentType string) context.Context {
	return context.WithValue(ctx, consentKey{}, consentType)
}

func ConsentDecision(ctx context.Context) (string, bool) {
	ct, ok := ctx.Value(consentKey{}).(string)
	return ct, ok
}
